package types

import (
	"errors"
	"time"
)

var ErrInternal = errors.New("internal error")

// Message is an inbound chat message.
type Message struct {
	ChatID    int64
	UserID    int64
	MessageID int
	Text      string
	// Command is set without the leading slash when the message is a bot command.
	Command string
}

// Descriptor is normalized metadata of one media item plus its direct fetch URL.
type Descriptor struct {
	// Fetchable byte-stream location. Empty means resolution failed.
	DirectURL string
	Title     string
	Uploader  string
	// Duration in seconds.
	Duration int
	// Size declared by the platform, nil when unknown.
	SizeHint *int64
	Ext      string
	FormatID string
	HasVideo bool
	IsLive   bool
	PageURL  string
}

// Usable reports whether descriptor can be downloaded under the given duration limit.
func (d *Descriptor) Usable(maxDuration int) bool {
	return d != nil && d.DirectURL != "" && !d.IsLive && d.Duration <= maxDuration
}

// Result is a finished download. Data is owned by the receiver and discarded after upload.
type Result struct {
	Data       []byte
	Descriptor *Descriptor
}

func (r *Result) Size() int64 { return int64(len(r.Data)) }

// RequestState is a state of the per-request state machine.
type RequestState string

const (
	AcceptedRequestState   RequestState = "accepted"
	AnalyzingRequestState  RequestState = "analyzing"
	ExtractingRequestState RequestState = "extracting"
	UploadingRequestState  RequestState = "uploading"
	CompletedRequestState  RequestState = "completed"
	FailedRequestState     RequestState = "failed"
)

func (s RequestState) Finished() bool {
	return s == CompletedRequestState || s == FailedRequestState
}

type Request struct {
	DoneAt    *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
	ID        string
	URI       string
	Title     string
	State     RequestState
	ErrorKind Kind
	ChatID    int64
	UserID    int64
}

// Upload is a file sent back to the chat.
type Upload struct {
	Data      []byte
	FileName  string
	Caption   string
	Title     string
	Performer string
	// Duration in seconds, used for display only.
	Duration int
}
