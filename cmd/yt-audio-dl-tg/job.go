package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lavrd/yt-audio-dl-tg/internal/keeper"
)

const pruneTimeout = 10 * time.Second

type Job interface {
	Do() error
}

func StartJob(job Job, interval time.Duration, doneC chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		for {
			select {
			case <-ticker.C:
				if err := job.Do(); err != nil {
					log.Error().Err(err).Msg("failed to do job")
				}
			case <-doneC:
				ticker.Stop()
				return
			}
		}
	}()
}

// PruneJob deletes journal entries of requests finished more than olderThan ago.
type PruneJob struct {
	keeper    keeper.Keeper
	olderThan time.Duration
}

func (j *PruneJob) Do() error {
	ctx, cancel := context.WithTimeout(context.Background(), pruneTimeout)
	defer cancel()
	deleted, err := j.keeper.Prune(ctx, j.olderThan)
	if err != nil {
		return fmt.Errorf("failed to prune journal: %w", err)
	}
	log.Debug().Int64("deleted", deleted).Msg("journal pruned")
	return nil
}
