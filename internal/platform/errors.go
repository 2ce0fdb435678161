package platform

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/maheshrc27/postflow-engine/internal/models"
	"golang.org/x/oauth2"
)

const maxDiagnosticRunes = 200

var (
	ErrMediaRequired   = errors.New("at least one image is required")
	ErrMediaTooLarge   = errors.New("media exceeds the platform size limit")
	ErrMediaNotReady   = errors.New("media is still being processed")
	ErrMediaRejected   = errors.New("media could not be processed")
	ErrMissingAccount  = errors.New("tokens carry no platform account id")
	ErrUnexpectedReply = errors.New("unexpected response from platform")
)

// APIError is a non-2xx answer from a platform API.
type APIError struct {
	Platform   models.Platform
	StatusCode int
	Diagnostic string
}

func (e *APIError) Error() string {
	if e.Diagnostic == "" {
		return fmt.Sprintf("%s API error (status %d)", e.Platform.DisplayName(), e.StatusCode)
	}
	return fmt.Sprintf("%s API error (status %d): %s", e.Platform.DisplayName(), e.StatusCode, e.Diagnostic)
}

// NetworkError is a transport-level failure talking to a platform.
type NetworkError struct {
	Platform models.Platform
	Err      error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s network error: %v", e.Platform.DisplayName(), e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// diagnostic pulls a short message out of an error body. Platforms disagree on
// the shape, so a few common fields are tried before falling back to the raw text.
func diagnostic(body []byte) string {
	var shaped struct {
		Error       json.RawMessage `json:"error"`
		Message     string          `json:"message"`
		Detail      string          `json:"detail"`
		Description string          `json:"error_description"`
	}
	msg := ""
	if json.Unmarshal(body, &shaped) == nil {
		var nested struct {
			Message string `json:"message"`
		}
		var plain string
		switch {
		case shaped.Description != "":
			msg = shaped.Description
		case shaped.Detail != "":
			msg = shaped.Detail
		case shaped.Message != "":
			msg = shaped.Message
		case json.Unmarshal(shaped.Error, &nested) == nil && nested.Message != "":
			msg = nested.Message
		case json.Unmarshal(shaped.Error, &plain) == nil && plain != "":
			msg = plain
		}
	}
	if msg == "" {
		msg = string(body)
	}
	return shorten(strings.Join(strings.Fields(msg), " "), maxDiagnosticRunes)
}

func shorten(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// wrapOAuthError turns token endpoint failures into the package's error types.
func wrapOAuthError(p models.Platform, err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		status := 0
		if re.Response != nil {
			status = re.Response.StatusCode
		}
		return &APIError{Platform: p, StatusCode: status, Diagnostic: diagnostic(re.Body)}
	}
	return &NetworkError{Platform: p, Err: err}
}
