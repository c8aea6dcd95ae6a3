package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lrstanley/go-ytdlp"
	"github.com/rs/zerolog/log"
)

// YtdlpExtractor runs yt-dlp in metadata only mode.
type YtdlpExtractor struct{}

func (YtdlpExtractor) Extract(ctx context.Context, url string, req Request) (*Info, error) {
	profile := req.Profile
	cmd := ytdlp.New().
		DumpSingleJSON().
		SkipDownload().
		NoPlaylist()
	if profile.Timeout > 0 {
		cmd.SocketTimeout(profile.Timeout.Seconds())
	}
	if profile.Format != "" {
		cmd.Format(profile.Format)
	}
	if args := profile.ExtractorArgs(); args != "" {
		cmd.ExtractorArgs(args)
	}
	for _, header := range profile.Headers {
		cmd.AddHeaders(header)
	}
	if req.CookiesFile != "" {
		cmd.Cookies(req.CookiesFile)
	}
	if profile.IgnoreErrors {
		cmd.IgnoreErrors()
	}
	if profile.NoCheckCertificates {
		cmd.NoCheckCertificates()
	}
	if profile.Verbose {
		cmd.Verbose()
	} else {
		cmd.Quiet().NoWarnings()
	}

	res, err := cmd.Run(ctx, url)
	if err != nil {
		// Tolerant profiles accept whatever metadata was printed before the failure.
		if !profile.IgnoreErrors || res == nil || strings.TrimSpace(res.Stdout) == "" {
			return nil, fmt.Errorf("failed to run yt-dlp: %w", err)
		}
		log.Debug().Err(err).Str("profile", profile.Name).Msg("yt-dlp failed partially")
	}
	if res == nil {
		return nil, errEmptyInfo
	}
	return decodeInfo(res.Stdout)
}

func decodeInfo(raw string) (*Info, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return nil, errEmptyInfo
	}
	info := &Info{}
	if err := json.Unmarshal([]byte(raw), info); err != nil {
		return nil, fmt.Errorf("failed to decode yt-dlp metadata: %w", err)
	}
	return info, nil
}

// InstallYtdlp downloads a yt-dlp binary into the user cache when it is missing.
func InstallYtdlp(ctx context.Context) error {
	resolved, err := ytdlp.Install(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to install yt-dlp: %w", err)
	}
	log.Info().Str("executable", resolved.Executable).Str("version", resolved.Version).Msg("yt-dlp is ready")
	return nil
}
