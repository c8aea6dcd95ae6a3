// Package pipeline takes a page URL to downloaded bytes: resolve, check limits,
// validate the direct URL and download under the size guard.
package pipeline

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/lavrd/yt-audio-dl-tg/internal/types"
)

type Resolver interface {
	Resolve(ctx context.Context, url string) (*types.Descriptor, error)
}

type Prober interface {
	IsReachable(ctx context.Context, url string) bool
}

type Downloader interface {
	Download(ctx context.Context, url string, maxSize int64) ([]byte, error)
}

// Policy holds the limits applied to every item.
type Policy struct {
	// Maximum duration in seconds, inclusive.
	MaxDuration int
	// Maximum payload size in bytes, inclusive.
	MaxSize int64
}

type Pipeline struct {
	resolver   Resolver
	prober     Prober
	downloader Downloader
	policy     Policy
}

func New(resolver Resolver, prober Prober, downloader Downloader, policy Policy) *Pipeline {
	return &Pipeline{
		resolver:   resolver,
		prober:     prober,
		downloader: downloader,
		policy:     policy,
	}
}

// Fetch returns downloaded bytes with their descriptor or a classified error.
// The checks run in a fixed order and the first failing one wins.
func (p *Pipeline) Fetch(ctx context.Context, url string) (*types.Result, error) {
	descriptor, err := p.resolver.Resolve(ctx, url)
	if err != nil {
		return nil, err
	}
	if descriptor == nil {
		return nil, types.NewError(types.KindNoDirectURL, nil, "resolver returned no descriptor")
	}
	if descriptor.Duration > p.policy.MaxDuration {
		return nil, types.NewError(types.KindVideoTooLong, nil,
			"duration %ds exceeds limit of %ds", descriptor.Duration, p.policy.MaxDuration)
	}
	if descriptor.IsLive {
		return nil, types.NewError(types.KindLiveStreamUnsupported, nil, "live streams are not supported")
	}
	// Duration and liveness are already checked, so only the direct url can be missing.
	if !descriptor.Usable(p.policy.MaxDuration) {
		return nil, types.NewError(types.KindNoDirectURL, nil, "descriptor has no direct url")
	}
	if !p.prober.IsReachable(ctx, descriptor.DirectURL) {
		return nil, types.NewError(types.KindURLUnreachable, nil, "direct url is not reachable")
	}

	log.Debug().
		Str("url", url).Str("format_id", descriptor.FormatID).Int("duration", descriptor.Duration).
		Msg("downloading audio")
	data, err := p.downloader.Download(ctx, descriptor.DirectURL, p.policy.MaxSize)
	if err != nil {
		return nil, err
	}
	return &types.Result{Data: data, Descriptor: descriptor}, nil
}
