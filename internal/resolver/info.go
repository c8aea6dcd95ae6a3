package resolver

import (
	"math"

	"github.com/lavrd/yt-audio-dl-tg/internal/types"
)

const (
	defaultTitle    = "Audio"
	defaultUploader = "Unknown"
	defaultExt      = "m4a"
	defaultFormatID = "unknown"

	codecNone = "none"
)

// Info is raw platform metadata as returned by the extraction library.
type Info struct {
	Title      string  `json:"title"`
	Uploader   string  `json:"uploader"`
	Duration   float64 `json:"duration"`
	IsLive     bool    `json:"is_live"`
	WebpageURL string  `json:"webpage_url"`

	Formats []Format `json:"formats"`
	// Formats picked by the format filter of the request.
	RequestedFormats []Format `json:"requested_formats"`

	// When a single format is selected its fields are also set on the top level.
	URL      string   `json:"url"`
	FormatID string   `json:"format_id"`
	Ext      string   `json:"ext"`
	ACodec   string   `json:"acodec"`
	VCodec   string   `json:"vcodec"`
	Filesize *float64 `json:"filesize"`
}

type Format struct {
	FormatID string   `json:"format_id"`
	URL      string   `json:"url"`
	Ext      string   `json:"ext"`
	ACodec   string   `json:"acodec"`
	VCodec   string   `json:"vcodec"`
	Filesize *float64 `json:"filesize"`
}

// HasAudio is true unless the format explicitly declares no audio codec.
func (f *Format) HasAudio() bool { return f.ACodec != codecNone }

// Self returns the top level format fields as a format.
func (i *Info) Self() Format {
	return Format{
		FormatID: i.FormatID,
		URL:      i.URL,
		Ext:      i.Ext,
		ACodec:   i.ACodec,
		VCodec:   i.VCodec,
		Filesize: i.Filesize,
	}
}

// Selector picks the format to download from raw metadata; nil means nothing fits.
type Selector func(info *Info) *Format

// SelectRequestedOrFirstAudio prefers the pre-selected format and otherwise
// scans formats for the first one carrying audio.
func SelectRequestedOrFirstAudio(info *Info) *Format {
	if len(info.RequestedFormats) > 0 {
		return &info.RequestedFormats[0]
	}
	for i := range info.Formats {
		if info.Formats[i].HasAudio() {
			return &info.Formats[i]
		}
	}
	return nil
}

// SelectRequestedOrSelf prefers the pre-selected format and otherwise uses the
// top level info, which describes the single selected format.
func SelectRequestedOrSelf(info *Info) *Format {
	if len(info.RequestedFormats) > 0 {
		return &info.RequestedFormats[0]
	}
	self := info.Self()
	return &self
}

// SelectSmallestAudio picks the audio format with the smallest declared size.
// Formats without a declared size sort last and ties keep the encounter order.
// Without any audio format the first format of the response is used.
func SelectSmallestAudio(info *Info) *Format {
	formats := info.Formats
	if len(formats) == 0 {
		formats = []Format{info.Self()}
	}
	var best *Format
	bestSize := math.Inf(1)
	for i := range formats {
		format := &formats[i]
		if !format.HasAudio() {
			continue
		}
		size := math.Inf(1)
		if format.Filesize != nil {
			size = *format.Filesize
		}
		if best == nil || size < bestSize {
			best, bestSize = format, size
		}
	}
	if best == nil {
		return &formats[0]
	}
	return best
}

// normalize is the single mapping from raw metadata to descriptor shared by all strategies.
func normalize(info *Info, format *Format) *types.Descriptor {
	descriptor := &types.Descriptor{
		DirectURL: format.URL,
		Title:     orDefault(info.Title, defaultTitle),
		Uploader:  orDefault(info.Uploader, defaultUploader),
		Duration:  int(math.Ceil(math.Max(info.Duration, 0))),
		Ext:       orDefault(format.Ext, defaultExt),
		FormatID:  orDefault(format.FormatID, defaultFormatID),
		HasVideo:  format.VCodec != codecNone,
		IsLive:    info.IsLive,
		PageURL:   info.WebpageURL,
	}
	if format.Filesize != nil {
		size := int64(*format.Filesize)
		descriptor.SizeHint = &size
	}
	return descriptor
}

func orDefault(value, defaultValue string) string {
	if value == "" {
		return defaultValue
	}
	return value
}
