// Package bot dispatches inbound chat messages: it filters links, schedules one
// download task per accepted request on the worker pool and reports progress through
// a single status message edited in place.
package bot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/lavrd/yt-audio-dl-tg/internal/keeper"
	"github.com/lavrd/yt-audio-dl-tg/internal/task"
	"github.com/lavrd/yt-audio-dl-tg/internal/types"
)

// Transport is the chat platform as seen by the bot.
type Transport interface {
	SendMessage(ctx context.Context, chatID int64, text string, formatted bool) (int, error)
	EditMessage(ctx context.Context, chatID int64, messageID int, text string, formatted bool) error
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
	SendAudio(ctx context.Context, chatID int64, upload types.Upload) error
	SendDocument(ctx context.Context, chatID int64, upload types.Upload) error
}

type Fetcher interface {
	Fetch(ctx context.Context, url string) (*types.Result, error)
}

type Submitter interface {
	Submit(t task.Task) error
	Stats() task.Stats
}

//nolint:govet // for better reading
type Options struct {
	// Longest media the bot accepts, in seconds; only used in texts.
	MaxDuration int
	MaxSize     int64
	// Files bigger than this are sent as documents.
	AudioUploadLimit int64
	// Cap for the duration shown by the audio player, in seconds.
	MaxDisplayDuration int
	// How long the final status message stays visible.
	StatusDelay time.Duration
	// How long the extracted summary stays before it is replaced by the upload status.
	SummaryDelay  time.Duration
	UploadTimeout time.Duration
	LogFile       string
}

type Bot struct {
	transport Transport
	fetcher   Fetcher
	pool      Submitter
	keeper    keeper.Keeper

	opts Options

	// Tracks status messages scheduled for deletion.
	deletions sync.WaitGroup
}

func New(transport Transport, fetcher Fetcher, pool Submitter, journal keeper.Keeper, opts Options) *Bot {
	return &Bot{
		transport: transport,
		fetcher:   fetcher,
		pool:      pool,
		keeper:    journal,
		opts:      opts,
	}
}

// Run handles messages one by one until the channel is closed or ctx is done.
// Handling only schedules work, downloads never run on this loop.
func (b *Bot) Run(ctx context.Context, messagesC <-chan types.Message) {
	log.Info().Msg("bot has started and is waiting for updates")
	for {
		select {
		case msg, ok := <-messagesC:
			if !ok {
				return
			}
			b.Handle(ctx, msg)
		case <-ctx.Done():
			return
		}
	}
}

// Wait blocks until every scheduled status message deletion is done.
func (b *Bot) Wait() {
	b.deletions.Wait()
}

func (b *Bot) Handle(ctx context.Context, msg types.Message) {
	if msg.Command != "" {
		b.handleCommand(ctx, msg)
		return
	}

	url := strings.TrimSpace(msg.Text)
	if !IsSupportedLink(url) {
		b.reply(ctx, msg.ChatID, usageHint, false)
		return
	}

	req := &request{
		id:     uuid.NewString(),
		chatID: msg.ChatID,
		userID: msg.UserID,
		url:    url,
	}
	logger := req.logger()
	logger.Info().Msg("new request")

	// Inbound link is removed for privacy.
	if err := b.transport.DeleteMessage(ctx, msg.ChatID, msg.MessageID); err != nil {
		logger.Warn().Err(err).Msg("failed to delete inbound message")
	}
	b.keeper.Accept(ctx, req.id, msg, url)

	// Tasks outlive the receive loop so shutdown can drain them.
	taskCtx := context.WithoutCancel(ctx)
	err := b.pool.Submit(task.Func(func() { b.process(taskCtx, req) }))
	switch {
	case err == nil:
	case errors.Is(err, task.ErrQueueFull):
		logger.Warn().Err(err).Msg("request rejected")
		b.keeper.Fail(ctx, req.id, "")
		b.reply(ctx, msg.ChatID, busyText, false)
	default:
		logger.Error().Err(err).Msg("failed to submit request")
		b.keeper.Fail(ctx, req.id, "")
		b.reply(ctx, msg.ChatID, internalText, false)
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg types.Message) {
	switch msg.Command {
	case "start", "help":
		b.reply(ctx, msg.ChatID, b.welcomeText(), true)
	case "debug":
		b.reply(ctx, msg.ChatID, b.debugText(ctx), true)
	case "me":
		b.reply(ctx, msg.ChatID, strconv.FormatInt(msg.UserID, 10), false)
	case "pending":
		b.reply(ctx, msg.ChatID, b.pendingText(ctx, msg.UserID), false)
	default:
		b.reply(ctx, msg.ChatID, usageHint, false)
	}
}

func (b *Bot) debugText(ctx context.Context) string {
	stats := b.pool.Stats()
	text := "🤖 *Bot debug information*\n\n" +
		"*Status:* ✅ Running\n" +
		"*Workers:* " + Escape(fmt.Sprintf("%d (active %d, queued %d)", stats.Workers, stats.Active, stats.Queued)) + "\n"

	counts, err := b.keeper.Stats(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to get journal stats")
	} else {
		text += "*Requests:* " + Escape(fmt.Sprintf("%d completed, %d failed, %d in progress",
			counts[types.CompletedRequestState], counts[types.FailedRequestState], inProgress(counts))) + "\n"
	}

	if b.opts.LogFile != "" {
		text += "*Log file:* `" + Escape(b.opts.LogFile) + "`"
		if info, err := os.Stat(b.opts.LogFile); err == nil {
			text += " " + Escape(fmt.Sprintf("(%.1fKB)", float64(info.Size())/1024))
		}
		text += "\n"
	}
	return text + "\n" + Escape("Send a test URL or check the log file for details.")
}

func (b *Bot) pendingText(ctx context.Context, userID int64) string {
	requests, err := b.keeper.InProgress(ctx, userID)
	if err != nil {
		log.Error().Err(err).Int64("user_id", userID).Msg("failed to get requests in progress")
		return internalText
	}
	if len(requests) == 0 {
		return "You don't have downloads in progress."
	}
	text := "Downloads in progress"
	for _, req := range requests {
		name := req.Title
		if name == "" {
			name = req.URI
		}
		text = fmt.Sprintf("%s\n%s (%s)", text, name, req.State)
	}
	return text
}

func inProgress(counts map[types.RequestState]int) int {
	var n int
	for state, count := range counts {
		if !state.Finished() {
			n += count
		}
	}
	return n
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string, formatted bool) {
	if _, err := b.transport.SendMessage(ctx, chatID, text, formatted); err != nil {
		log.Error().Err(err).Int64("chat_id", chatID).Msg("failed to send message to user")
	}
}
