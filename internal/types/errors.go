package types

import (
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// Kind is a terminal failure kind of the download pipeline.
// Kind implements error, so errors.Is(err, KindTooLarge) matches any *Error of that kind.
type Kind string

const (
	KindExtractionFailed      Kind = "extraction_failed"
	KindVideoTooLong          Kind = "video_too_long"
	KindLiveStreamUnsupported Kind = "live_stream_unsupported"
	KindNoDirectURL           Kind = "no_direct_url"
	KindURLUnreachable        Kind = "url_unreachable"
	KindTimeout               Kind = "timeout"
	KindNetworkError          Kind = "network_error"
	KindTooLarge              Kind = "too_large"
	KindEmptyPayload          Kind = "empty_payload"
	KindUploadFailed          Kind = "upload_failed"
	// The chat refused the first status message, nothing was attempted.
	KindStatusFailed Kind = "status_failed"
)

func (k Kind) Error() string { return string(k) }

type Error struct {
	Err  error
	Kind Kind
	Msg  string
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	kind, ok := target.(Kind)
	return ok && kind == e.Kind
}

// NewError creates a classified error with a stack trace attached at the call site.
func NewError(kind Kind, cause error, format string, args ...any) error {
	return pkgerrors.WithStack(&Error{
		Kind: kind,
		Msg:  fmt.Sprintf(format, args...),
		Err:  cause,
	})
}

// KindOf returns the kind of the first classified error in the chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
