// Package failure holds the pipeline error taxonomy. Every error that crosses a
// pipeline stage is a *Error whose Kind can be matched with errors.Is.
package failure

import (
	"errors"
	"fmt"
	"net/http"
)

// Kinds. ErrUnsupportedFormat is a ParseFailure as well.
var (
	ErrParse             = errors.New("parse failure")
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrEmbedding         = errors.New("embedding failure")
	ErrIndex             = errors.New("index failure")
	ErrGeneration        = errors.New("generation failure")
	ErrExtraction        = errors.New("extraction failure")
	ErrValidation        = errors.New("validation failure")
)

type Error struct {
	Kind error
	Op   string
	Err  error
}

func New(kind error, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Unsupported reports a rejected file extension.
func Unsupported(ext string) *Error {
	return &Error{
		Kind: ErrUnsupportedFormat,
		Op:   "parse",
		Err:  fmt.Errorf("extension %q", ext),
	}
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	default:
		return e.Kind.Error()
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	if target == e.Kind {
		return true
	}
	return e.Kind == ErrUnsupportedFormat && target == ErrParse
}

// Reason returns the stable reason string for err, the message of its kind,
// or "internal error" when err carries no kind.
func Reason(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind.Error()
	}
	return "internal error"
}

// Code maps err to the stable code used in HTTP error envelopes.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrUnsupportedFormat):
		return "UNSUPPORTED_FORMAT"
	case errors.Is(err, ErrParse):
		return "PARSE_FAILURE"
	case errors.Is(err, ErrEmbedding):
		return "EMBEDDING_FAILURE"
	case errors.Is(err, ErrIndex):
		return "INDEX_FAILURE"
	case errors.Is(err, ErrGeneration):
		return "GENERATION_FAILURE"
	case errors.Is(err, ErrExtraction):
		return "EXTRACTION_FAILURE"
	case errors.Is(err, ErrValidation):
		return "VALIDATION_ERROR"
	default:
		return "INTERNAL_ERROR"
	}
}

// Status is the HTTP status for err. Upstream provider and store failures
// are reported as bad gateways.
func Status(err error) int {
	switch {
	case errors.Is(err, ErrParse), errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrEmbedding), errors.Is(err, ErrGeneration), errors.Is(err, ErrIndex):
		return http.StatusBadGateway
	case errors.Is(err, ErrExtraction):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
