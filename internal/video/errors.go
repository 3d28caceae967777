package video

import (
	"errors"
	"net/http"
	"unicode/utf8"
)

// Kind is the coarse failure taxonomy used at the request boundary.
type Kind string

const (
	KindInvalidURL         Kind = "InvalidUrl"
	KindBackendUnavailable Kind = "ResolutionBackendUnavailable"
	KindResolutionFailed   Kind = "ResolutionFailed"
	KindScrapeFailed       Kind = "ThirdPartyScrapeFailed"
	KindUpstreamAPI        Kind = "UpstreamApiError"
)

// Error carries everything a handler needs: a user-safe Message, the
// classified Category, and the raw Detail (stderr, API payload) that is
// only ever logged.
type Error struct {
	Kind     Kind
	Category Category
	Backend  string
	Step     string
	Message  string
	Detail   string
	Err      error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Backend != "" {
		msg += " [" + e.Backend + "]"
	}
	if e.Step != "" {
		msg += " (" + e.Step + ")"
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	if e.Message != "" {
		return msg + ": " + e.Message
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Classified builds a ResolutionFailed error from raw backend output.
func Classified(backend, detail string, err error) *Error {
	c := Classify(detail)
	if detail == "" && err != nil {
		c = Classify(err.Error())
	}
	return &Error{
		Kind:     KindResolutionFailed,
		Category: c.Category,
		Backend:  backend,
		Message:  c.Message,
		Detail:   detail,
		Err:      err,
	}
}

// Unavailable marks a backend that could not run at all.
func Unavailable(backend string, err error) *Error {
	return &Error{
		Kind:     KindBackendUnavailable,
		Category: CategoryGeneric,
		Backend:  backend,
		Message:  "The video information service is temporarily unavailable. Please try again later.",
		Err:      err,
	}
}

func asError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the taxonomy kind of err, defaulting to ResolutionFailed.
func KindOf(err error) Kind {
	if e, ok := asError(err); ok && e.Kind != "" {
		return e.Kind
	}
	return KindResolutionFailed
}

// CategoryOf returns the classified category of err.
func CategoryOf(err error) Category {
	if e, ok := asError(err); ok && e.Category != "" {
		return e.Category
	}
	return CategoryGeneric
}

// UserMessage returns the only text about err that may reach a browser.
func UserMessage(err error) string {
	if e, ok := asError(err); ok && e.Message != "" {
		return e.Message
	}
	if err == nil {
		return ""
	}
	return genericMessage
}

// HTTPStatus maps err onto a response status: 400 for client input, 500
// for every backend or upstream failure.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if KindOf(err) == KindInvalidURL {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// IsEnvironmental reports whether err means the backend itself could not do
// its job, as opposed to YouTube refusing the content. A rejected or
// exhausted Data API key is a deployment problem and counts as environmental.
func IsEnvironmental(err error) bool {
	e, ok := asError(err)
	if !ok {
		return true
	}
	switch e.Kind {
	case KindBackendUnavailable:
		return true
	case KindResolutionFailed:
		return e.Category == CategoryGeneric
	case KindUpstreamAPI:
		return e.Category == CategoryAPIKey
	}
	return false
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
