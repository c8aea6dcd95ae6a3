// Package resolver turns a video page URL into a normalized media descriptor by
// trying extraction strategies in a fixed priority order until one yields a usable
// direct URL.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lavrd/yt-audio-dl-tg/internal/types"
)

var errNoDirectURL = errors.New("strategy returned no direct url")

// Strategy is one configured attempt to extract a descriptor.
type Strategy interface {
	Name() string
	Resolve(ctx context.Context, url string) (*types.Descriptor, error)
}

type Resolver struct {
	strategies []Strategy
}

// New creates resolver; strategies are tried in the given order.
func New(strategies ...Strategy) *Resolver {
	return &Resolver{strategies: strategies}
}

// Resolve returns the descriptor of the first strategy that succeeds.
// Strategy failures are logged and never surface on their own.
func (r *Resolver) Resolve(ctx context.Context, url string) (*types.Descriptor, error) {
	logger := log.With().Str("url", url).Logger()
	var lastErr error
	for i, strategy := range r.strategies {
		logger := logger.With().
			Str("strategy", strategy.Name()).Str("attempt", fmt.Sprintf("%d/%d", i+1, len(r.strategies))).
			Logger()
		logger.Debug().Msg("trying strategy")
		start := time.Now()
		descriptor, err := strategy.Resolve(ctx, url)
		if err == nil && (descriptor == nil || descriptor.DirectURL == "") {
			err = errNoDirectURL
		}
		if err != nil {
			logger.Warn().Err(err).Dur("elapsed", time.Since(start)).Msg("strategy failed")
			lastErr = err
			continue
		}
		logger.Info().Dur("elapsed", time.Since(start)).Msg("extraction successful")
		return descriptor, nil
	}
	return nil, types.NewError(types.KindExtractionFailed, lastErr, "all %d strategies failed", len(r.strategies))
}
