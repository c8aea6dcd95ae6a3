package pipeline_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lavrd/yt-audio-dl-tg/internal/pipeline"
	"github.com/lavrd/yt-audio-dl-tg/internal/types"
)

const testURL = "https://youtu.be/dQw4w9WgXcQ"

var policy = pipeline.Policy{MaxDuration: 1800, MaxSize: 50 * 1024 * 1024}

type resolverMock struct {
	descriptor *types.Descriptor
	err        error
}

func (m *resolverMock) Resolve(context.Context, string) (*types.Descriptor, error) {
	return m.descriptor, m.err
}

type proberMock struct {
	reachable bool
	calls     int
}

func (m *proberMock) IsReachable(context.Context, string) bool {
	m.calls++
	return m.reachable
}

type downloaderMock struct {
	data    []byte
	err     error
	maxSize int64
	calls   int
}

func (m *downloaderMock) Download(_ context.Context, _ string, maxSize int64) ([]byte, error) {
	m.calls++
	m.maxSize = maxSize
	return m.data, m.err
}

func descriptor(duration int) *types.Descriptor {
	return &types.Descriptor{DirectURL: "https://cdn/a.m4a", Title: "T", Duration: duration}
}

func TestFetch(t *testing.T) {
	r := require.New(t)

	downloader := &downloaderMock{data: []byte("audio")}
	p := pipeline.New(&resolverMock{descriptor: descriptor(1800)}, &proberMock{reachable: true}, downloader, policy)

	result, err := p.Fetch(context.Background(), testURL)
	r.NoError(err)
	r.Equal([]byte("audio"), result.Data)
	r.EqualValues(5, result.Size())
	r.Equal("T", result.Descriptor.Title)
	r.Equal(policy.MaxSize, downloader.maxSize)
}

func TestFetchFailures(t *testing.T) {
	tests := []struct {
		name       string
		descriptor *types.Descriptor
		resolveErr error
		reachable  bool
		dlErr      error
		kind       types.Kind
		downloads  int
	}{
		{
			name:       "too long",
			descriptor: descriptor(1801),
			reachable:  true,
			kind:       types.KindVideoTooLong,
		},
		{
			name:       "live",
			descriptor: &types.Descriptor{DirectURL: "https://cdn/live", IsLive: true},
			reachable:  true,
			kind:       types.KindLiveStreamUnsupported,
		},
		{
			name:       "no direct url",
			descriptor: &types.Descriptor{Duration: 10},
			reachable:  true,
			kind:       types.KindNoDirectURL,
		},
		{
			name:       "unreachable",
			descriptor: descriptor(10),
			kind:       types.KindURLUnreachable,
		},
		{
			name:       "extraction",
			resolveErr: types.NewError(types.KindExtractionFailed, nil, "all 3 strategies failed"),
			kind:       types.KindExtractionFailed,
		},
		{
			name:       "download",
			descriptor: descriptor(10),
			reachable:  true,
			dlErr:      types.NewError(types.KindTooLarge, nil, "too large"),
			kind:       types.KindTooLarge,
			downloads:  1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := require.New(t)

			downloader := &downloaderMock{err: tt.dlErr}
			p := pipeline.New(
				&resolverMock{descriptor: tt.descriptor, err: tt.resolveErr},
				&proberMock{reachable: tt.reachable},
				downloader,
				policy,
			)
			result, err := p.Fetch(context.Background(), testURL)
			r.Nil(result)
			r.True(errors.Is(err, tt.kind), "got %v", err)
			r.Equal(tt.downloads, downloader.calls)
		})
	}
}

func TestFetchDurationCheckedBeforeProbe(t *testing.T) {
	r := require.New(t)

	prober := &proberMock{reachable: true}
	p := pipeline.New(&resolverMock{descriptor: descriptor(4000)}, prober, &downloaderMock{}, policy)
	_, err := p.Fetch(context.Background(), testURL)
	r.True(errors.Is(err, types.KindVideoTooLong))
	r.Zero(prober.calls)
}
