package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/lavrd/yt-audio-dl-tg/internal/bot"
	"github.com/lavrd/yt-audio-dl-tg/internal/config"
	"github.com/lavrd/yt-audio-dl-tg/internal/fetch"
	"github.com/lavrd/yt-audio-dl-tg/internal/keeper"
	"github.com/lavrd/yt-audio-dl-tg/internal/logger"
	"github.com/lavrd/yt-audio-dl-tg/internal/pipeline"
	"github.com/lavrd/yt-audio-dl-tg/internal/repo"
	"github.com/lavrd/yt-audio-dl-tg/internal/resolver"
	"github.com/lavrd/yt-audio-dl-tg/internal/task"
	"github.com/lavrd/yt-audio-dl-tg/internal/telegram"
)

const (
	// Name of the shared in-memory journal database.
	journalName = "journal"
	// Finished requests are kept in the journal for this long.
	journalRetention = time.Hour

	ytdlpInstallTimeout = 5 * time.Minute
)

const cookiesInstructions = `How to create cookies.txt for YouTube:

1. Install "Get cookies.txt" extension in Chrome/Firefox
2. Log into YouTube in your browser
3. Click the extension and export cookies
4. Save as 'cookies.txt' in the bot directory
5. Restart the bot

This helps avoid YouTube bot detection.
`

func main() {
	log.Logger = log.
		Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		With().Caller().Logger().
		Level(zerolog.InfoLevel)

	cfg, err := config.Read()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to read config")
	}
	logFile, err := logger.Setup(cfg.Verbose, cfg.LogFile)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to setup logger")
	}

	if err = writeCookiesInstructions(cfg.CookiesInstructionsFile); err != nil {
		log.Error().Err(err).Msg("failed to write cookies instructions")
	}
	if cfg.YtdlpInstall {
		ctx, cancel := context.WithTimeout(context.Background(), ytdlpInstallTimeout)
		err = resolver.InstallYtdlp(ctx)
		cancel()
		if err != nil {
			log.Fatal().Err(err).Msg("failed to install yt-dlp")
		}
	}

	db, err := repo.OpenDBAndMigrate(journalName, repo.ModeMemory)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database and do migrations")
	}
	journal := keeper.New(repo.New(db))

	doneC := make(chan struct{})
	StartJob(&PruneJob{keeper: journal, olderThan: journalRetention}, time.Hour, doneC)

	// Every request is bounded by its own context timeout.
	httpClient := &http.Client{}
	strategies := []resolver.Strategy{
		resolver.NewProfileStrategy(resolver.Thorough(), resolver.YtdlpExtractor{}, cfg.CookiesFile),
		resolver.NewProfileStrategy(resolver.Targeted(), resolver.YtdlpExtractor{}, cfg.CookiesFile),
		resolver.NewProfileStrategy(resolver.Minimal(), resolver.YtdlpExtractor{}, cfg.CookiesFile),
	}
	if cfg.NativeFallback {
		strategies = append(strategies, resolver.NewNativeStrategy(httpClient, resolver.NativeTimeout))
	}
	fetcher := pipeline.New(
		resolver.New(strategies...),
		fetch.NewProber(httpClient, cfg.ProbeTimeout),
		fetch.NewDownloader(httpClient, cfg.DownloadTimeout),
		pipeline.Policy{MaxDuration: cfg.MaxDuration, MaxSize: cfg.MaxSize},
	)

	tg, err := telegram.New(telegram.Options{
		Token:          cfg.TgBotToken,
		Endpoint:       cfg.TgBotEndpoint,
		UpdatesTimeout: cfg.TgUpdatesTimeout,
		RateLimit:      cfg.TgRateLimit,
		RequestTimeout: cfg.UploadTimeout,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telegram bot")
	}
	ctx, cancel := context.WithCancel(context.Background())
	if err = tg.RemoveWebhook(ctx); err != nil {
		log.Warn().Err(err).Msg("could not remove webhook")
	}

	pool := task.NewPool(cfg.Workers, cfg.QueueSize)
	b := bot.New(tg, fetcher, pool, journal, bot.Options{
		MaxDuration:        cfg.MaxDuration,
		MaxSize:            cfg.MaxSize,
		AudioUploadLimit:   cfg.AudioUploadLimit,
		MaxDisplayDuration: cfg.MaxDisplayDuration,
		StatusDelay:        cfg.StatusDelay,
		SummaryDelay:       cfg.SummaryDelay,
		UploadTimeout:      cfg.UploadTimeout,
		LogFile:            cfg.LogFile,
	})
	runDoneC := make(chan struct{})
	go func() {
		defer close(runDoneC)
		b.Run(ctx, tg.Updates(ctx))
	}()

	interruptC := make(chan os.Signal, 1)
	defer close(interruptC)
	signal.Notify(interruptC, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)
	<-interruptC
	log.Debug().Msg("handle SIGINT, SIGQUIT, SIGTERM")

	// Stop receiving updates.
	tg.Stop()
	cancel()
	<-runDoneC
	// Let accepted requests finish and their status messages disappear.
	pool.Shutdown()
	b.Wait()
	close(doneC)
	if err = db.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close database connection")
	}
	log.Info().Msg("bot has been stopped")
	if err = logFile.Close(); err != nil {
		fmt.Println("failed to close log file:", err)
	}
}

// writeCookiesInstructions writes the cookies how-to once, an existing file is kept.
func writeCookiesInstructions(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to stat instructions file: %w", err)
	}
	if err := os.WriteFile(path, []byte(cookiesInstructions), 0o644); err != nil {
		return fmt.Errorf("failed to write instructions file: %w", err)
	}
	log.Info().Str("path", path).Msg("created cookies instructions file")
	return nil
}
