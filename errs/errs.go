// Package errs defines the failure kinds shared by the rule engine and its
// callers. Every error crossing a package boundary is one of these four, so
// the service layer can map kinds to responses without string matching.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError reports a malformed or incomplete source document.
// It is fatal to compilation and never worth retrying.
type ValidationError struct {
	Msg string
	Err error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *ValidationError) Unwrap() error { return e.Err }

func Validationf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

func ValidationWrap(err error, format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...), Err: err}
}

// UnsupportedFeatureError reports that a document depends on a host
// capability the sandbox refuses to provide. Tokens carries the offending
// feature names so the message can tell the user exactly what to remove.
type UnsupportedFeatureError struct {
	Tokens []string
}

// maxListedTokens bounds how many offenders the message spells out; the
// remainder is reported as a count.
const maxListedTokens = 5

func (e *UnsupportedFeatureError) Error() string {
	if len(e.Tokens) == 0 {
		return "source requires unsupported host features"
	}
	listed := e.Tokens
	extra := 0
	if len(listed) > maxListedTokens {
		extra = len(listed) - maxListedTokens
		listed = listed[:maxListedTokens]
	}
	var b strings.Builder
	b.WriteString("source requires unsupported host features: ")
	b.WriteString(strings.Join(listed, ", "))
	if extra > 0 {
		fmt.Fprintf(&b, " (and %d more)", extra)
	}
	return b.String()
}

func Unsupported(tokens ...string) error {
	return &UnsupportedFeatureError{Tokens: tokens}
}

// FetchError reports a network or HTTP failure. It is fatal to the single
// pipeline invocation; whether to retry is the caller's decision.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	if e.URL == "" {
		return "fetch: " + e.Err.Error()
	}
	return fmt.Sprintf("fetch %s: %s", e.URL, e.Err.Error())
}

func (e *FetchError) Unwrap() error { return e.Err }

func Fetch(url string, err error) error {
	return &FetchError{URL: url, Err: err}
}

// ExtractionError reports a selector or script failure on one field or
// element. It is normally recovered locally by omitting the field or
// element; it only escalates for the first element of a batch in debug
// mode, or for singleton stages with nothing else to return.
type ExtractionError struct {
	Msg string
	Err error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *ExtractionError) Unwrap() error { return e.Err }

func Extractionf(format string, args ...any) error {
	return &ExtractionError{Msg: fmt.Sprintf(format, args...)}
}

func ExtractionWrap(err error, format string, args ...any) error {
	return &ExtractionError{Msg: fmt.Sprintf(format, args...), Err: err}
}

// Kind helpers for callers that only need a branch, not the payload.

func IsValidation(err error) bool {
	var t *ValidationError
	return errors.As(err, &t)
}

func IsUnsupported(err error) bool {
	var t *UnsupportedFeatureError
	return errors.As(err, &t)
}

func IsFetch(err error) bool {
	var t *FetchError
	return errors.As(err, &t)
}

func IsExtraction(err error) bool {
	var t *ExtractionError
	return errors.As(err, &t)
}
