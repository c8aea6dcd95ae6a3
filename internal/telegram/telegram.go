// Package telegram is a thin client over the Bot API library used by the bot.
package telegram

import (
	"context"
	"fmt"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/lavrd/yt-audio-dl-tg/internal/types"
)

//nolint:govet // for better reading
type Options struct {
	Token    string
	Endpoint string
	// Long polling timeout in seconds.
	UpdatesTimeout int
	// Requests per second, zero disables pacing.
	RateLimit int
	// Per request timeout; uploads are the slowest requests.
	RequestTimeout time.Duration
}

type Client struct {
	tg      *tgbotapi.BotAPI
	limiter *rate.Limiter

	updatesTimeout int
}

func New(opts Options) (*Client, error) {
	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	// Long polling requests must outlive the updates timeout.
	timeout := opts.RequestTimeout
	if minimum := time.Duration(opts.UpdatesTimeout+10) * time.Second; timeout < minimum {
		timeout = minimum
	}
	tg, err := tgbotapi.NewBotAPIWithClient(opts.Token, endpoint, &http.Client{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize new telegram client: %w", err)
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), opts.RateLimit)
	}
	log.Info().Str("username", tg.Self.UserName).Msg("authorized in telegram")
	return &Client{
		tg:             tg,
		limiter:        limiter,
		updatesTimeout: opts.UpdatesTimeout,
	}, nil
}

// RemoveWebhook switches the bot to long polling.
func (c *Client) RemoveWebhook(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("failed to wait for rate limiter: %w", err)
	}
	if _, err := c.tg.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		return fmt.Errorf("failed to delete webhook: %w", err)
	}
	return nil
}

// Updates starts long polling and returns inbound text messages.
// Backlog accumulated while the bot was offline is dropped.
// The channel is closed after ctx is done.
func (c *Client) Updates(ctx context.Context) <-chan types.Message {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = c.updatesTimeout
	updatesC := c.tg.GetUpdatesChan(u)
	// Wait for updates and clear them if you don't want to handle a large backlog of old messages.
	time.Sleep(time.Second)
	updatesC.Clear()

	messagesC := make(chan types.Message)
	go func() {
		defer close(messagesC)
		for {
			select {
			case update, ok := <-updatesC:
				if !ok {
					return
				}
				msg, ok := toMessage(update)
				if !ok {
					continue
				}
				select {
				case messagesC <- msg:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return messagesC
}

// Stop stops long polling.
func (c *Client) Stop() {
	c.tg.StopReceivingUpdates()
}

func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, formatted bool) (int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, fmt.Errorf("failed to wait for rate limiter: %w", err)
	}
	msg := tgbotapi.NewMessage(chatID, text)
	if formatted {
		msg.ParseMode = tgbotapi.ModeMarkdownV2
	}
	msg.DisableWebPagePreview = true
	sent, err := c.tg.Send(msg)
	if err != nil {
		return 0, fmt.Errorf("failed to send message: %w", err)
	}
	return sent.MessageID, nil
}

func (c *Client) EditMessage(ctx context.Context, chatID int64, messageID int, text string, formatted bool) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("failed to wait for rate limiter: %w", err)
	}
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	if formatted {
		edit.ParseMode = tgbotapi.ModeMarkdownV2
	}
	edit.DisableWebPagePreview = true
	if _, err := c.tg.Request(edit); err != nil {
		return fmt.Errorf("failed to edit message: %w", err)
	}
	return nil
}

func (c *Client) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("failed to wait for rate limiter: %w", err)
	}
	if _, err := c.tg.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	return nil
}

// SendAudio sends upload as a playable audio; caption is MarkdownV2.
func (c *Client) SendAudio(ctx context.Context, chatID int64, upload types.Upload) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("failed to wait for rate limiter: %w", err)
	}
	audio := tgbotapi.NewAudio(chatID, tgbotapi.FileBytes{Name: upload.FileName, Bytes: upload.Data})
	audio.Title = upload.Title
	audio.Performer = upload.Performer
	audio.Duration = upload.Duration
	audio.Caption = upload.Caption
	audio.ParseMode = tgbotapi.ModeMarkdownV2
	if _, err := c.tg.Send(audio); err != nil {
		return fmt.Errorf("failed to send audio: %w", err)
	}
	return nil
}

// SendDocument sends upload as a generic file; caption is MarkdownV2.
func (c *Client) SendDocument(ctx context.Context, chatID int64, upload types.Upload) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("failed to wait for rate limiter: %w", err)
	}
	document := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: upload.FileName, Bytes: upload.Data})
	document.Caption = upload.Caption
	document.ParseMode = tgbotapi.ModeMarkdownV2
	if _, err := c.tg.Send(document); err != nil {
		return fmt.Errorf("failed to send document: %w", err)
	}
	return nil
}

func toMessage(update tgbotapi.Update) (types.Message, bool) {
	message := update.Message
	if message == nil || message.Chat == nil {
		return types.Message{}, false
	}
	msg := types.Message{
		ChatID:    message.Chat.ID,
		MessageID: message.MessageID,
		Text:      message.Text,
	}
	if message.From != nil {
		msg.UserID = message.From.ID
	}
	if message.IsCommand() {
		msg.Command = message.Command()
	}
	return msg, true
}
