package resolver

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lavrd/yt-audio-dl-tg/internal/types"
)

var (
	errEmptyInfo = errors.New("extractor returned no metadata")
	errNoFormat  = errors.New("no suitable format found")
)

// Profile is a declarative request profile for the extraction library.
// Profiles differ because the platform may reject one client identity and accept another.
//
//nolint:govet // for better reading
type Profile struct {
	Name string
	// Simulated player clients, most preferred first.
	PlayerClients []string
	// Streaming protocols the extractor should not consider.
	SkipProtocols []string
	Format        string
	// HTTP headers as "Field:Value".
	Headers             []string
	Timeout             time.Duration
	UseCookies          bool
	Verbose             bool
	IgnoreErrors        bool
	NoCheckCertificates bool
	Select              Selector
}

// ExtractorArgs renders player clients and skipped protocols as an extractor argument.
func (p *Profile) ExtractorArgs() string {
	args := make([]string, 0, 2)
	if len(p.PlayerClients) != 0 {
		args = append(args, "player_client="+strings.Join(p.PlayerClients, ","))
	}
	if len(p.SkipProtocols) != 0 {
		args = append(args, "skip="+strings.Join(p.SkipProtocols, ","))
	}
	if len(args) == 0 {
		return ""
	}
	return "youtube:" + strings.Join(args, ";")
}

// Thorough negotiates the broadest set of clients, tolerates partial failures
// and is the slowest profile.
func Thorough() Profile {
	return Profile{
		Name:          "thorough",
		PlayerClients: []string{"android", "web", "ios"},
		SkipProtocols: []string{"hls", "dash"},
		Format:        "bestaudio/best",
		Headers: []string{
			"User-Agent:Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
			"Accept:text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
			"Accept-Language:en-US,en;q=0.5",
		},
		Timeout:             30 * time.Second,
		UseCookies:          true,
		Verbose:             true,
		IgnoreErrors:        true,
		NoCheckCertificates: true,
		Select:              SelectRequestedOrFirstAudio,
	}
}

// Targeted asks a single mobile client for an m4a audio stream.
func Targeted() Profile {
	return Profile{
		Name:          "targeted",
		PlayerClients: []string{"android"},
		Format:        "bestaudio[ext=m4a]/bestaudio",
		Headers: []string{
			"User-Agent:Mozilla/5.0 (Linux; Android 10) AppleWebKit/537.36",
			"Accept:*/*",
		},
		Timeout:    20 * time.Second,
		UseCookies: true,
		Select:     SelectRequestedOrSelf,
	}
}

// Minimal requests any format without restrictions and prefers the smallest audio.
func Minimal() Profile {
	return Profile{
		Name:         "minimal",
		Format:       "best",
		Timeout:      15 * time.Second,
		IgnoreErrors: true,
		Select:       SelectSmallestAudio,
	}
}

// Request is what the extraction library receives for one attempt.
type Request struct {
	Profile *Profile
	// Empty when no authentication artifact is attached.
	CookiesFile string
}

// Extractor is the extraction library seen as a black box.
type Extractor interface {
	Extract(ctx context.Context, url string, req Request) (*Info, error)
}

// ProfileStrategy runs the extractor with one profile and normalizes its output.
type ProfileStrategy struct {
	extractor   Extractor
	profile     Profile
	cookiesFile string
}

func NewProfileStrategy(profile Profile, extractor Extractor, cookiesFile string) *ProfileStrategy {
	if profile.Select == nil {
		profile.Select = SelectRequestedOrFirstAudio
	}
	return &ProfileStrategy{
		profile:     profile,
		extractor:   extractor,
		cookiesFile: cookiesFile,
	}
}

func (s *ProfileStrategy) Name() string { return s.profile.Name }

func (s *ProfileStrategy) Resolve(ctx context.Context, url string) (*types.Descriptor, error) {
	if s.profile.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.profile.Timeout)
		defer cancel()
	}

	req := Request{Profile: &s.profile}
	if s.profile.UseCookies && s.cookiesFile != "" {
		// The cookies file is optional and may appear or vanish at runtime.
		if _, err := os.Stat(s.cookiesFile); err == nil {
			req.CookiesFile = s.cookiesFile
			log.Debug().Str("strategy", s.profile.Name).Msg("using cookies file for authentication")
		}
	}

	info, err := s.extractor.Extract(ctx, url, req)
	if err != nil {
		return nil, fmt.Errorf("failed to extract info: %w", err)
	}
	if info == nil {
		return nil, errEmptyInfo
	}
	format := s.profile.Select(info)
	if format == nil {
		return nil, errNoFormat
	}
	return normalize(info, format), nil
}
