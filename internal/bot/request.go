package bot

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/lavrd/yt-audio-dl-tg/internal/types"
)

// request lives from dispatch until its task finishes.
type request struct {
	id     string
	url    string
	chatID int64
	userID int64
	// Zero until the status message is posted.
	statusID int
}

func (r *request) logger() zerolog.Logger {
	return log.With().
		Str("request_id", r.id).Int64("user_id", r.userID).Int64("chat_id", r.chatID).Str("url", r.url).
		Logger()
}

// process runs one request to a terminal state. Every terminal state ends with a final
// status message text which is deleted after the visibility delay.
func (b *Bot) process(ctx context.Context, req *request) {
	logger := req.logger()
	start := time.Now()

	statusID, err := b.transport.SendMessage(ctx, req.chatID, statusAnalyzing, false)
	if err != nil {
		logger.Error().Err(err).Msg("failed to send status message")
		b.keeper.Fail(ctx, req.id, types.KindStatusFailed)
		return
	}
	req.statusID = statusID

	defer func() {
		if rec := recover(); rec != nil {
			logger.Error().Interface("panic", rec).Bytes("stack", debug.Stack()).Msg("request task panicked")
			b.fail(ctx, req, fmt.Errorf("panic: %v: %w", rec, types.ErrInternal))
		}
	}()

	b.keeper.Advance(ctx, req.id, types.AnalyzingRequestState)
	b.edit(ctx, req, statusExtracting, false)
	b.keeper.Advance(ctx, req.id, types.ExtractingRequestState)

	result, err := b.fetcher.Fetch(ctx, req.url)
	if err != nil {
		b.fail(ctx, req, err)
		return
	}
	extracted := time.Since(start)
	b.keeper.SetTitle(ctx, req.id, result.Descriptor.Title)
	logger.Info().
		Str("title", result.Descriptor.Title).Int64("size", result.Size()).Dur("elapsed", extracted).
		Msg("audio downloaded")
	b.edit(ctx, req, extractedText(result, extracted), true)
	pause(ctx, b.opts.SummaryDelay)

	b.keeper.Advance(ctx, req.id, types.UploadingRequestState)
	b.edit(ctx, req, statusUploading, false)
	if err = b.upload(ctx, req, result); err != nil {
		b.fail(ctx, req, err)
		return
	}

	b.edit(ctx, req, completedText(result, time.Since(start)), true)
	b.keeper.Advance(ctx, req.id, types.CompletedRequestState)
	logger.Info().Dur("elapsed", time.Since(start)).Msg("request completed")
	b.deleteLater(req)
}

// upload sends big files as documents and the rest as playable audio.
func (b *Bot) upload(ctx context.Context, req *request, result *types.Result) error {
	if b.opts.UploadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.opts.UploadTimeout)
		defer cancel()
	}

	d := result.Descriptor
	upload := types.Upload{
		Data:     result.Data,
		FileName: fileName(d),
		Caption:  "🎵 " + Escape(truncate(d.Title, captionTitleLimit)),
	}
	var err error
	if useDocument(result.Size(), b.opts.AudioUploadLimit) {
		err = b.transport.SendDocument(ctx, req.chatID, upload)
	} else {
		upload.Title = truncate(d.Title, uploadTitleLimit)
		upload.Performer = truncate(d.Uploader, uploadTitleLimit)
		upload.Duration = min(d.Duration, b.opts.MaxDisplayDuration)
		err = b.transport.SendAudio(ctx, req.chatID, upload)
	}
	if err != nil {
		return types.NewError(types.KindUploadFailed, err, "failed to upload %d bytes", result.Size())
	}
	return nil
}

func useDocument(size, audioLimit int64) bool {
	return size > audioLimit
}

func (b *Bot) fail(ctx context.Context, req *request, err error) {
	var traced interface{ StackTrace() pkgerrors.StackTrace }
	if !errors.As(err, &traced) {
		err = pkgerrors.WithStack(err)
	}
	kind, _ := types.KindOf(err)
	logger := req.logger()
	logger.Error().Stack().Err(err).Str("kind", string(kind)).Msg("request failed")

	b.keeper.Fail(ctx, req.id, kind)
	b.edit(ctx, req, b.userMessage(err), false)
	b.deleteLater(req)
}

func (b *Bot) edit(ctx context.Context, req *request, text string, formatted bool) {
	if err := b.transport.EditMessage(ctx, req.chatID, req.statusID, text, formatted); err != nil {
		log.Error().Err(err).Str("request_id", req.id).Msg("failed to edit status message")
	}
}

// deleteLater removes the status message after the visibility delay without
// holding the worker.
func (b *Bot) deleteLater(req *request) {
	b.deletions.Add(1)
	time.AfterFunc(b.opts.StatusDelay, func() {
		defer b.deletions.Done()
		if err := b.transport.DeleteMessage(context.Background(), req.chatID, req.statusID); err != nil {
			log.Warn().Err(err).Str("request_id", req.id).Msg("failed to delete status message")
		}
	})
}

// pause waits for d unless ctx is done earlier.
func pause(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
