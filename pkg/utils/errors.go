package utils

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// --- Sentinel Errors for Categorization ---
var (
	ErrRetryFailed     = errors.New("request failed after all retries") // Wraps the last underlying error
	ErrClientHTTPError = errors.New("client HTTP error (4xx)")          // Wraps original error/status
	ErrServerHTTPError = errors.New("server HTTP error (5xx)")          // Wraps original error/status
	ErrOtherHTTPError  = errors.New("other HTTP error (non-2xx)")       // Wraps original error/status

	ErrValidation          = errors.New("validation error")
	ErrDuplicateSiteName   = errors.New("site name already exists")
	ErrUnknownSource       = errors.New("unsupported search source")
	ErrNotFound            = errors.New("record not found")
	ErrAlreadyDepthCrawled = errors.New("record already depth crawled")
	ErrAlreadyExists       = errors.New("record already exists")

	ErrParsing            = errors.New("parsing error") // Wraps specific parsing error (HTML, URL, JSON)
	ErrDatabase           = errors.New("database error") // Wraps badger errors
	ErrRequestCreation    = errors.New("failed to create HTTP request")
	ErrResponseBodyRead   = errors.New("failed to read response body")
	ErrMarkdownConversion = errors.New("failed to convert HTML to markdown")
	ErrConfigValidation   = errors.New("configuration validation error")
	ErrEventPublish       = errors.New("failed to publish event")
	ErrCache              = errors.New("cache error")
)

// WrapErrorf wraps a sentinel with a formatted message so errors.Is keeps matching the sentinel.
func WrapErrorf(sentinel error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))
}

// IsValidationError reports whether err should be shown to the caller as a rejected request
// rather than an internal failure.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrDuplicateSiteName) ||
		errors.Is(err, ErrUnknownSource)
}

// IsRetryable reports whether a failed fetch may be attempted again by a caller.
// Client errors (including 403 and 429) are not retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrClientHTTPError) || errors.Is(err, ErrRequestCreation) || errors.Is(err, context.Canceled) {
		return false
	}
	return true
}

// CategorizeError maps an error to a predefined category string for logging and batch reports.
func CategorizeError(err error) string {
	if err == nil {
		return "None"
	}

	switch {
	case errors.Is(err, ErrDuplicateSiteName):
		return "Validation_DuplicateSiteName"
	case errors.Is(err, ErrUnknownSource):
		return "Validation_UnknownSource"
	case errors.Is(err, ErrValidation):
		return "Validation"
	case errors.Is(err, ErrNotFound):
		return "State_NotFound"
	case errors.Is(err, ErrAlreadyDepthCrawled):
		return "State_AlreadyDepthCrawled"
	case errors.Is(err, ErrAlreadyExists):
		return "State_AlreadyExists"
	case errors.Is(err, ErrRetryFailed):
		// Retry errors are joined with their cause, so inspect the whole tree
		if errors.Is(err, ErrServerHTTPError) {
			return "RetryFailed_HTTPServer"
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return "RetryFailed_NetworkTimeout"
		}
		if errors.Is(err, ErrOtherHTTPError) || errors.Is(err, ErrResponseBodyRead) {
			return "RetryFailed_Unknown"
		}
		return "RetryFailed_NetworkOther"
	case errors.Is(err, ErrClientHTTPError):
		errMsg := err.Error()
		for _, code := range []string{"403", "404", "401", "429"} {
			if strings.Contains(errMsg, " "+code+" ") || strings.HasSuffix(errMsg, " "+code) {
				return "HTTP_" + code
			}
		}
		return "HTTP_4xx"
	case errors.Is(err, ErrServerHTTPError):
		return "HTTP_5xx"
	case errors.Is(err, ErrOtherHTTPError):
		return "HTTP_OtherStatus"
	case errors.Is(err, ErrParsing):
		errMsg := err.Error()
		if strings.Contains(errMsg, "URL") {
			return "Content_ParsingURL"
		}
		if strings.Contains(errMsg, "HTML") {
			return "Content_ParsingHTML"
		}
		if strings.Contains(errMsg, "JSON") {
			return "Content_ParsingJSON"
		}
		return "Content_ParsingOther"
	case errors.Is(err, ErrMarkdownConversion):
		return "Content_Markdown"
	case errors.Is(err, ErrDatabase):
		return "Database_Other"
	case errors.Is(err, ErrRequestCreation):
		return "Internal_RequestCreation"
	case errors.Is(err, ErrResponseBodyRead):
		return "Network_BodyRead"
	case errors.Is(err, ErrConfigValidation):
		return "Config_Validation"
	case errors.Is(err, ErrEventPublish):
		return "Events_Publish"
	case errors.Is(err, ErrCache):
		return "Cache_Other"
	}

	if errors.Is(err, context.Canceled) {
		return "System_ContextCanceled"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "Network_Timeout"
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "Network_Timeout"
	}
	lowerErrMsg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lowerErrMsg, "timeout"):
		return "Network_Timeout"
	case strings.Contains(lowerErrMsg, "connection refused"):
		return "Network_ConnectionRefused"
	case strings.Contains(lowerErrMsg, "no such host"):
		return "Network_DNSLookup"
	case strings.Contains(lowerErrMsg, "tls") || strings.Contains(lowerErrMsg, "certificate"):
		return "Network_TLS"
	case strings.Contains(lowerErrMsg, "reset by peer"):
		return "Network_ConnectionReset"
	}

	return "Unknown"
}
