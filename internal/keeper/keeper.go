// Package keeper is a request journal on top of the repository.
// Journal writes never fail a request: errors are logged and swallowed.
package keeper

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lavrd/yt-audio-dl-tg/internal/repo"
	"github.com/lavrd/yt-audio-dl-tg/internal/types"
)

type Keeper interface {
	Accept(ctx context.Context, id string, msg types.Message, uri string)
	Advance(ctx context.Context, id string, state types.RequestState)
	SetTitle(ctx context.Context, id, title string)
	Fail(ctx context.Context, id string, kind types.Kind)
	InProgress(ctx context.Context, userID int64) ([]*types.Request, error)
	Stats(ctx context.Context) (map[types.RequestState]int, error)
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}

type keeper struct {
	requestsRepo repo.RequestsRepository
}

func New(requestsRepo repo.RequestsRepository) Keeper {
	return &keeper{requestsRepo: requestsRepo}
}

func (k *keeper) Accept(ctx context.Context, id string, msg types.Message, uri string) {
	if _, err := k.requestsRepo.Create(ctx, id, msg.ChatID, msg.UserID, uri); err != nil {
		log.Error().Err(err).Str("request_id", id).Msg("failed to journal request")
	}
}

func (k *keeper) Advance(ctx context.Context, id string, state types.RequestState) {
	if err := k.requestsRepo.UpdateState(ctx, id, state, ""); err != nil {
		log.Error().Err(err).Str("request_id", id).Str("state", string(state)).Msg("failed to update request state")
	}
}

func (k *keeper) SetTitle(ctx context.Context, id, title string) {
	if err := k.requestsRepo.UpdateTitle(ctx, id, title); err != nil {
		log.Error().Err(err).Str("request_id", id).Msg("failed to update request title")
	}
}

func (k *keeper) Fail(ctx context.Context, id string, kind types.Kind) {
	if err := k.requestsRepo.UpdateState(ctx, id, types.FailedRequestState, kind); err != nil {
		log.Error().Err(err).Str("request_id", id).Msg("failed to mark request as failed")
	}
}

func (k *keeper) InProgress(ctx context.Context, userID int64) ([]*types.Request, error) {
	return k.requestsRepo.GetInProgress(ctx, userID)
}

func (k *keeper) Stats(ctx context.Context) (map[types.RequestState]int, error) {
	return k.requestsRepo.CountByState(ctx)
}

// Prune removes requests finished longer than olderThan ago.
func (k *keeper) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	return k.requestsRepo.DeleteFinishedBefore(ctx, time.Now().Add(-olderThan))
}
