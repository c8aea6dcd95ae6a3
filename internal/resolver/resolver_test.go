package resolver

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/kkdai/youtube/v2"
	"github.com/stretchr/testify/require"

	"github.com/lavrd/yt-audio-dl-tg/internal/types"
)

const testURL = "https://www.youtube.com/watch?v=dQw4w9WgXcQ"

type fakeStrategy struct {
	descriptor *types.Descriptor
	err        error
	name       string
	calls      int
}

func (s *fakeStrategy) Name() string { return s.name }

func (s *fakeStrategy) Resolve(context.Context, string) (*types.Descriptor, error) {
	s.calls++
	return s.descriptor, s.err
}

type fakeExtractor struct {
	info *Info
	err  error
	reqs []Request
}

func (e *fakeExtractor) Extract(_ context.Context, _ string, req Request) (*Info, error) {
	e.reqs = append(e.reqs, req)
	return e.info, e.err
}

func size(v float64) *float64 { return &v }

func TestResolveFirstWins(t *testing.T) {
	r := require.New(t)

	a := &fakeStrategy{name: "a", descriptor: &types.Descriptor{DirectURL: "https://cdn/a"}}
	b := &fakeStrategy{name: "b", descriptor: &types.Descriptor{DirectURL: "https://cdn/b"}}
	c := &fakeStrategy{name: "c", descriptor: &types.Descriptor{DirectURL: "https://cdn/c"}}

	descriptor, err := New(a, b, c).Resolve(context.Background(), testURL)
	r.NoError(err)
	r.Equal("https://cdn/a", descriptor.DirectURL)
	r.Equal(1, a.calls)
	r.Zero(b.calls)
	r.Zero(c.calls)
}

func TestResolveFallsThrough(t *testing.T) {
	r := require.New(t)

	a := &fakeStrategy{name: "a", err: errors.New("sign in to confirm")}
	b := &fakeStrategy{name: "b", descriptor: &types.Descriptor{}}
	c := &fakeStrategy{name: "c", descriptor: &types.Descriptor{DirectURL: "https://cdn/c", Title: "C"}}

	descriptor, err := New(a, b, c).Resolve(context.Background(), testURL)
	r.NoError(err)
	r.Equal("C", descriptor.Title)
	r.Equal(1, a.calls)
	r.Equal(1, b.calls)
	r.Equal(1, c.calls)
}

func TestResolveAllFail(t *testing.T) {
	r := require.New(t)

	a := &fakeStrategy{name: "a", err: errors.New("a")}
	b := &fakeStrategy{name: "b"}
	c := &fakeStrategy{name: "c", err: errors.New("c")}

	_, err := New(a, b, c).Resolve(context.Background(), testURL)
	r.Error(err)
	r.True(errors.Is(err, types.KindExtractionFailed))
	kind, ok := types.KindOf(err)
	r.True(ok)
	r.Equal(types.KindExtractionFailed, kind)
}

func TestProfileStrategyFallback(t *testing.T) {
	r := require.New(t)

	failing := NewProfileStrategy(Thorough(), &fakeExtractor{err: errors.New("403")}, "")
	targeted := NewProfileStrategy(Targeted(), &fakeExtractor{info: &Info{
		Title:    "Song",
		Uploader: "Band",
		Duration: 212.3,
		URL:      "https://cdn/audio.m4a",
		FormatID: "140",
		Ext:      "m4a",
		ACodec:   "mp4a.40.2",
		VCodec:   "none",
		Filesize: size(3_400_000),
	}}, "")

	descriptor, err := New(failing, targeted).Resolve(context.Background(), testURL)
	r.NoError(err)
	r.Equal("https://cdn/audio.m4a", descriptor.DirectURL)
	r.Equal("Song", descriptor.Title)
	r.Equal("Band", descriptor.Uploader)
	r.Equal(213, descriptor.Duration)
	r.Equal("140", descriptor.FormatID)
	r.False(descriptor.HasVideo)
	r.NotNil(descriptor.SizeHint)
	r.EqualValues(3_400_000, *descriptor.SizeHint)
}

func TestProfileStrategyEmpty(t *testing.T) {
	r := require.New(t)

	_, err := NewProfileStrategy(Targeted(), &fakeExtractor{}, "").Resolve(context.Background(), testURL)
	r.ErrorIs(err, errEmptyInfo)

	_, err = NewProfileStrategy(Thorough(), &fakeExtractor{info: &Info{
		Formats: []Format{{URL: "https://cdn/video", ACodec: "none"}},
	}}, "").Resolve(context.Background(), testURL)
	r.ErrorIs(err, errNoFormat)
}

func TestProfileStrategyCookies(t *testing.T) {
	r := require.New(t)

	cookies := filepath.Join(t.TempDir(), "cookies.txt")
	extractor := &fakeExtractor{info: &Info{URL: "https://cdn/a"}}
	ctx := context.Background()

	_, err := NewProfileStrategy(Targeted(), extractor, cookies).Resolve(ctx, testURL)
	r.NoError(err)
	r.Empty(extractor.reqs[0].CookiesFile)

	r.NoError(os.WriteFile(cookies, []byte("# Netscape HTTP Cookie File\n"), 0o600))
	_, err = NewProfileStrategy(Targeted(), extractor, cookies).Resolve(ctx, testURL)
	r.NoError(err)
	r.Equal(cookies, extractor.reqs[1].CookiesFile)

	// Minimal profile never sends cookies.
	_, err = NewProfileStrategy(Minimal(), extractor, cookies).Resolve(ctx, testURL)
	r.NoError(err)
	r.Empty(extractor.reqs[2].CookiesFile)
	r.Equal("minimal", extractor.reqs[2].Profile.Name)
}

func TestExtractorArgs(t *testing.T) {
	r := require.New(t)

	thorough := Thorough()
	r.Equal("youtube:player_client=android,web,ios;skip=hls,dash", thorough.ExtractorArgs())
	targeted := Targeted()
	r.Equal("youtube:player_client=android", targeted.ExtractorArgs())
	minimal := Minimal()
	r.Empty(minimal.ExtractorArgs())
}

func TestNormalizeDefaults(t *testing.T) {
	r := require.New(t)

	descriptor := normalize(&Info{Duration: -5}, &Format{URL: "https://cdn/x"})
	r.Equal("Audio", descriptor.Title)
	r.Equal("Unknown", descriptor.Uploader)
	r.Equal("m4a", descriptor.Ext)
	r.Equal("unknown", descriptor.FormatID)
	r.Zero(descriptor.Duration)
	r.Nil(descriptor.SizeHint)
	r.True(descriptor.HasVideo)
}

func TestSelectors(t *testing.T) {
	r := require.New(t)

	info := &Info{
		RequestedFormats: []Format{{FormatID: "251"}},
		Formats: []Format{
			{FormatID: "137", ACodec: "none"},
			{FormatID: "140", ACodec: "mp4a"},
		},
		FormatID: "self",
	}
	r.Equal("251", SelectRequestedOrFirstAudio(info).FormatID)
	r.Equal("251", SelectRequestedOrSelf(info).FormatID)

	info.RequestedFormats = nil
	r.Equal("140", SelectRequestedOrFirstAudio(info).FormatID)
	r.Equal("self", SelectRequestedOrSelf(info).FormatID)

	info.Formats = []Format{{FormatID: "137", ACodec: "none"}}
	r.Nil(SelectRequestedOrFirstAudio(info))
}

func TestSelectSmallestAudio(t *testing.T) {
	r := require.New(t)

	info := &Info{Formats: []Format{
		{FormatID: "unsized", ACodec: "opus"},
		{FormatID: "video", ACodec: "none", Filesize: size(10)},
		{FormatID: "big", ACodec: "mp4a", Filesize: size(5000)},
		{FormatID: "small", ACodec: "opus", Filesize: size(1000)},
		{FormatID: "small-too", ACodec: "opus", Filesize: size(1000)},
	}}
	r.Equal("small", SelectSmallestAudio(info).FormatID)

	info.Formats = []Format{
		{FormatID: "first", ACodec: "opus"},
		{FormatID: "second", ACodec: "opus"},
	}
	r.Equal("first", SelectSmallestAudio(info).FormatID)

	info.Formats = []Format{
		{FormatID: "video-only", ACodec: "none"},
		{FormatID: "video-only-2", ACodec: "none"},
	}
	r.Equal("video-only", SelectSmallestAudio(info).FormatID)

	self := SelectSmallestAudio(&Info{FormatID: "self", URL: "https://cdn/self"})
	r.Equal("self", self.FormatID)
}

func TestDecodeInfo(t *testing.T) {
	r := require.New(t)

	_, err := decodeInfo("  null\n")
	r.ErrorIs(err, errEmptyInfo)
	_, err = decodeInfo("")
	r.ErrorIs(err, errEmptyInfo)
	_, err = decodeInfo("{")
	r.Error(err)

	info, err := decodeInfo(`{"title":"T","duration":10.5,"is_live":false,` +
		`"requested_formats":[{"format_id":"140","url":"https://cdn/a","acodec":"mp4a","vcodec":"none","filesize":123}]}`)
	r.NoError(err)
	r.Equal("T", info.Title)
	r.Len(info.RequestedFormats, 1)
	r.Equal(123.0, *info.RequestedFormats[0].Filesize)
}

func TestVideoInfo(t *testing.T) {
	r := require.New(t)

	video := &youtube.Video{
		Title:  "Native",
		Author: "Channel",
		Formats: youtube.FormatList{
			{ItagNo: 137, MimeType: `video/mp4; codecs="avc1"`, Width: 1920, ContentLength: 900},
			{ItagNo: 140, MimeType: `audio/mp4; codecs="mp4a.40.2"`, AudioChannels: 2, ContentLength: 500, URL: "https://cdn/140"},
			{ItagNo: 251, MimeType: `audio/webm; codecs="opus"`, AudioChannels: 2, ContentLength: 400, URL: "https://cdn/251"},
		},
	}
	info := videoInfo(video, testURL)
	selected := SelectSmallestAudio(info)
	r.Equal("251", selected.FormatID)
	r.Equal("webm", selected.Ext)
	r.Equal("m4a", info.Formats[1].Ext)
	r.Equal("mp4", info.Formats[0].Ext)
	r.False(info.IsLive)
	r.NotNil(findFormat(video, "140"))
	r.Nil(findFormat(video, "18"))

	video.HLSManifestURL = "https://manifest"
	r.True(videoInfo(video, testURL).IsLive)
}
