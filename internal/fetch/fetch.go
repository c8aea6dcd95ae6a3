// Package fetch probes and downloads direct media URLs into memory.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lavrd/yt-audio-dl-tg/internal/types"
)

const (
	userAgent = "Mozilla/5.0"
	chunkSize = 8 * 1024

	DefaultProbeTimeout    = 10 * time.Second
	DefaultDownloadTimeout = 45 * time.Second
)

// Prober checks that a direct URL answers before a full download is attempted.
type Prober struct {
	client  *http.Client
	timeout time.Duration
}

func NewProber(client *http.Client, timeout time.Duration) *Prober {
	if client == nil {
		client = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	return &Prober{client: client, timeout: timeout}
}

// IsReachable never fails: any error or unexpected status means false.
func (p *Prober) IsReachable(ctx context.Context, url string) bool {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, http.NoBody)
	if err != nil {
		log.Debug().Err(err).Msg("failed to create probe request")
		return false
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Range", "bytes=0-1000")

	res, err := p.client.Do(req)
	if err != nil {
		log.Debug().Err(err).Msg("failed to probe direct url")
		return false
	}
	defer func() {
		if err = res.Body.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close response body")
		}
	}()
	return res.StatusCode == http.StatusOK || res.StatusCode == http.StatusPartialContent
}

// Downloader streams a direct URL into memory enforcing a maximum size.
type Downloader struct {
	client  *http.Client
	timeout time.Duration
}

func NewDownloader(client *http.Client, timeout time.Duration) *Downloader {
	if client == nil {
		client = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = DefaultDownloadTimeout
	}
	return &Downloader{client: client, timeout: timeout}
}

// Download returns the whole body. Timeout covers the full transfer, not only headers.
func (d *Downloader) Download(ctx context.Context, url string, maxSize int64) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, types.NewError(types.KindURLUnreachable, err, "bad direct url")
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "*/*")
	// Without compression declared content length matches delivered bytes.
	req.Header.Set("Accept-Encoding", "identity")

	res, err := d.client.Do(req)
	if err != nil {
		return nil, classify(err, "failed to do http request")
	}
	defer func() {
		if err = res.Body.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close response body")
		}
	}()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, types.NewError(types.KindURLUnreachable, nil, "unexpected status %d", res.StatusCode)
	}
	if res.ContentLength > maxSize {
		return nil, types.NewError(types.KindTooLarge, nil,
			"declared size %.1fMB exceeds limit %.1fMB", megabytes(res.ContentLength), megabytes(maxSize))
	}

	buf := &bytes.Buffer{}
	if res.ContentLength > 0 {
		buf.Grow(int(res.ContentLength))
	}
	chunk := make([]byte, chunkSize)
	for {
		n, readErr := res.Body.Read(chunk)
		if n > 0 {
			// Checked before writing, so the buffer never grows past the limit.
			if int64(buf.Len()+n) > maxSize {
				return nil, types.NewError(types.KindTooLarge, nil,
					"file exceeds size limit %.1fMB", megabytes(maxSize))
			}
			buf.Write(chunk[:n])
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			return nil, classify(readErr, "failed to read response body")
		}
	}

	if buf.Len() == 0 {
		return nil, types.NewError(types.KindEmptyPayload, nil, "downloaded empty file")
	}
	log.Debug().Str("size", fmt.Sprintf("%.2fMB", megabytes(int64(buf.Len())))).Msg("downloaded successfully")
	return buf.Bytes(), nil
}

func classify(err error, msg string) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return types.NewError(types.KindTimeout, err, "%s: server too slow", msg)
	}
	return types.NewError(types.KindNetworkError, err, "%s", msg)
}

func megabytes(n int64) float64 { return float64(n) / 1024 / 1024 }
