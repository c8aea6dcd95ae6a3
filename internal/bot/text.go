package bot

import (
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/lavrd/yt-audio-dl-tg/internal/types"
)

const (
	statusAnalyzing  = "🔍 Analyzing video..."
	statusExtracting = "⚡ Extracting audio information..."
	statusUploading  = "📤 Uploading to Telegram..."

	usageHint = "❌ Please send a valid YouTube URL.\n" +
		"Examples:\n" +
		"• https://www.youtube.com/watch?v=...\n" +
		"• https://youtu.be/...\n" +
		"• https://www.youtube.com/shorts/..."

	busyText     = "All workers are busy, try again later"
	internalText = "Something went wrong, try again later"

	summaryTitleLimit = 40
	uploadTitleLimit  = 64
	captionTitleLimit = 100
)

var linkMarkers = []string{"youtube.com/watch", "youtu.be/", "youtube.com/shorts/"}

// IsSupportedLink reports whether text contains a watch page, short link or shorts link.
func IsSupportedLink(text string) bool {
	for _, marker := range linkMarkers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

// Escape makes free text safe to embed into a MarkdownV2 message.
func Escape(text string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdownV2, strings.ReplaceAll(text, `\`, `\\`))
}

// userMessage translates a failure into the short text shown in chat.
func (b *Bot) userMessage(err error) string {
	kind, ok := types.KindOf(err)
	if !ok {
		return "❌ " + internalText
	}
	switch kind {
	case types.KindExtractionFailed:
		return "❌ Could not extract audio. Video may be restricted or unavailable."
	case types.KindVideoTooLong:
		return fmt.Sprintf("❌ Video too long (max %d minutes)", b.opts.MaxDuration/60)
	case types.KindLiveStreamUnsupported:
		return "❌ Live streams are not supported"
	case types.KindNoDirectURL:
		return "❌ No downloadable audio stream found"
	case types.KindURLUnreachable:
		return "❌ Audio stream is not reachable, try again later"
	case types.KindTimeout:
		return "❌ Download timeout. Try a shorter video."
	case types.KindNetworkError:
		return "❌ Network error, try again later"
	case types.KindTooLarge:
		return fmt.Sprintf("❌ File too large (max %s)", megabytes(b.opts.MaxSize))
	case types.KindEmptyPayload:
		return "❌ Downloaded file is empty"
	case types.KindUploadFailed:
		return "❌ Failed to upload audio to Telegram"
	default:
		return "❌ " + internalText
	}
}

func extractedText(result *types.Result, elapsed time.Duration) string {
	d := result.Descriptor
	return "✅ *Audio extracted\\!*\n" +
		"*Title:* " + Escape(truncate(d.Title, summaryTitleLimit)) + "\n" +
		"*Uploader:* " + Escape(d.Uploader) + "\n" +
		"*Duration:* " + Escape(formatDuration(d.Duration)) + "\n" +
		"*Size:* " + Escape(megabytes(result.Size())) + "\n" +
		"*Time:* " + Escape(seconds(elapsed))
}

func completedText(result *types.Result, elapsed time.Duration) string {
	return "✅ *Download complete\\!*\n" +
		"*Total time:* " + Escape(seconds(elapsed)) + "\n" +
		"*Size:* " + Escape(megabytes(result.Size())) + "\n" +
		"*Title:* " + Escape(truncate(result.Descriptor.Title, summaryTitleLimit)) + "\n\n" +
		"✨ Ready for another download\\!"
}

func (b *Bot) welcomeText() string {
	return "🎵 *YouTube Audio Downloader*\n\n" +
		Escape("Send me any YouTube link and I'll download the audio for you!") + "\n\n" +
		"*Limits:*\n" +
		Escape(fmt.Sprintf("• Max %d minutes per video", b.opts.MaxDuration/60)) + "\n" +
		Escape(fmt.Sprintf("• Max %s file size", megabytes(b.opts.MaxSize))) + "\n\n" +
		"*Troubleshooting:*\n" +
		Escape("1. Make sure the video is publicly available") + "\n" +
		Escape("2. Try shorter videos first") + "\n" +
		Escape("3. Use /debug to check bot status") + "\n\n" +
		Escape("Send a YouTube URL to begin!")
}

func truncate(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}

func formatDuration(secs int) string {
	return (time.Duration(secs) * time.Second).String()
}

func megabytes(n int64) string {
	return fmt.Sprintf("%.1fMB", float64(n)/1024/1024)
}

func seconds(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func fileName(d *types.Descriptor) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, truncate(d.Title, uploadTitleLimit))
	return name + "." + d.Ext
}
