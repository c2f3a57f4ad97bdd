package bot

import (
	"errors"
	"fmt"

	"github.com/s77rt/WatchItOffline/internal/media"
)

// Kind says why a request failed.
type Kind int

const (
	// KindExtraction is any extractor failure that has no more specific kind.
	KindExtraction Kind = iota
	KindValidation
	KindSizeLimit
	KindAuthRequired
	KindUnavailable
	// KindMissing means the download finished but the file is not there.
	KindMissing
	KindUpload
)

func (k Kind) String() string {
	switch k {
	case KindExtraction:
		return "extraction"
	case KindValidation:
		return "validation"
	case KindSizeLimit:
		return "size limit"
	case KindAuthRequired:
		return "authentication required"
	case KindUnavailable:
		return "unavailable"
	case KindMissing:
		return "missing file"
	case KindUpload:
		return "upload"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error is returned by Handler.Handle for every failed request.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string { return e.Kind.String() + ": " + e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }

// Text is what the user sees in the status message.
func (e *Error) Text() string {
	switch e.Kind {
	case KindValidation:
		return textInvalidURL
	case KindSizeLimit:
		return textTooLarge
	case KindAuthRequired:
		return textLoginRequired
	case KindUnavailable:
		return textUnavailable
	case KindMissing:
		return textFileNotFound
	}
	return fmt.Sprintf(textErrorFormat, e.Err)
}

// classify wraps err into an *Error, keeping the kind if it already is one.
func classify(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	switch {
	case errors.Is(err, media.ErrLoginRequired):
		return &Error{Kind: KindAuthRequired, Err: err}
	case errors.Is(err, media.ErrUnavailable):
		return &Error{Kind: KindUnavailable, Err: err}
	case errors.Is(err, media.ErrTooLarge):
		return &Error{Kind: KindSizeLimit, Err: err}
	}
	return &Error{Kind: KindExtraction, Err: err}
}
