package resolver

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kkdai/youtube/v2"

	"github.com/lavrd/yt-audio-dl-tg/internal/types"
)

// NativeStrategy talks to the platform directly without the external extractor.
// It is the last resort when the extractor binary is missing or rejected.
type NativeStrategy struct {
	client *youtube.Client
	// Bounds all platform calls of a single resolve.
	timeout time.Duration
}

// NativeTimeout is the default time limit of a native resolve.
const NativeTimeout = 30 * time.Second

// NewNativeStrategy returns strategy using httpClient for platform calls.
// Non-positive timeout means NativeTimeout.
func NewNativeStrategy(httpClient *http.Client, timeout time.Duration) *NativeStrategy {
	if timeout <= 0 {
		timeout = NativeTimeout
	}
	return &NativeStrategy{
		client:  &youtube.Client{HTTPClient: httpClient},
		timeout: timeout,
	}
}

func (*NativeStrategy) Name() string { return "native" }

func (s *NativeStrategy) Resolve(ctx context.Context, url string) (*types.Descriptor, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	video, err := s.client.GetVideoContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to get video: %w", err)
	}

	info := videoInfo(video, url)
	selected := SelectSmallestAudio(info)
	if selected == nil {
		return nil, errNoFormat
	}
	format := findFormat(video, selected.FormatID)
	if format == nil {
		return nil, errNoFormat
	}
	// Signed stream urls are not part of the metadata and must be deciphered.
	if selected.URL == "" {
		streamURL, err := s.client.GetStreamURLContext(ctx, video, format)
		if err != nil {
			return nil, fmt.Errorf("failed to get stream url: %w", err)
		}
		selected.URL = streamURL
	}
	return normalize(info, selected), nil
}

func videoInfo(video *youtube.Video, url string) *Info {
	info := &Info{
		Title:      video.Title,
		Uploader:   video.Author,
		Duration:   video.Duration.Seconds(),
		IsLive:     video.HLSManifestURL != "" && video.Duration == 0,
		WebpageURL: url,
		Formats:    make([]Format, 0, len(video.Formats)),
	}
	for i := range video.Formats {
		format := &video.Formats[i]
		converted := Format{
			FormatID: strconv.Itoa(format.ItagNo),
			URL:      format.URL,
			Ext:      mimeExt(format.MimeType, format.Width > 0),
			ACodec:   codecNone,
			VCodec:   codecNone,
		}
		if format.AudioChannels > 0 {
			converted.ACodec = "audio"
		}
		if format.Width > 0 {
			converted.VCodec = "video"
		}
		if format.ContentLength > 0 {
			size := float64(format.ContentLength)
			converted.Filesize = &size
		}
		info.Formats = append(info.Formats, converted)
	}
	return info
}

func findFormat(video *youtube.Video, formatID string) *youtube.Format {
	for i := range video.Formats {
		if strconv.Itoa(video.Formats[i].ItagNo) == formatID {
			return &video.Formats[i]
		}
	}
	return nil
}

// mimeExt maps "audio/mp4; codecs=..." to the file extension.
func mimeExt(mime string, hasVideo bool) string {
	if i := strings.Index(mime, ";"); i >= 0 {
		mime = mime[:i]
	}
	_, subtype, ok := strings.Cut(strings.TrimSpace(mime), "/")
	if !ok || subtype == "" {
		return ""
	}
	switch subtype {
	case "mp4":
		if hasVideo {
			return subtype
		}
		return defaultExt
	case "3gpp":
		return "3gp"
	default:
		return subtype
	}
}
