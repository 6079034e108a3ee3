package embedder

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// Error codes reported by providers.
const (
	CodeHostUnavailable    = "HOST_UNAVAILABLE"
	CodeNetworkError       = "NETWORK_ERROR"
	CodeRateLimited        = "RATE_LIMITED"
	CodeLicenseInvalid     = "LICENSE_INVALID"
	CodeHTTPError          = "HTTP_ERROR"
	CodeUnexpectedResponse = "UNEXPECTED_RESPONSE"
	CodeInvalidResponse    = "INVALID_RESPONSE"
)

// ProviderError is the normalized form of every embedding failure.
type ProviderError struct {
	Code           string        `json:"code"`
	Status         int           `json:"status,omitempty"`
	Message        string        `json:"message,omitempty"`
	Transient      bool          `json:"transient"`
	LicenseRelated bool          `json:"licenseRelated,omitempty"`
	RetryAfter     time.Duration `json:"retryAfter,omitempty"`

	// NonJSON is set when the transport answered with something other than
	// JSON where JSON was expected.
	NonJSON bool `json:"nonJson,omitempty"`

	Err error `json:"-"`
}

func (e *ProviderError) Error() string {
	var b strings.Builder
	b.WriteString(e.Code)
	if e.Status != 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil && e.Message == "" {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsContentRejection reports whether the payload was silently rejected by
// the transport, as opposed to an ordinary HTTP or upstream failure.
func (e *ProviderError) IsContentRejection() bool {
	return e.NonJSON && e.Status < http.StatusInternalServerError
}

// IsFatal reports whether the error must stop a run immediately.
func (e *ProviderError) IsFatal() bool {
	return !e.Transient || e.LicenseRelated
}

// IsUpstreamOutage reports a 5xx or unreachable host.
func (e *ProviderError) IsUpstreamOutage() bool {
	return e.Code == CodeHostUnavailable || e.Status >= http.StatusInternalServerError
}

// Classify normalizes any error into a *ProviderError. Unknown errors are
// treated as transient. Callers check context cancellation first.
func Classify(err error) *ProviderError {
	if err == nil {
		return nil
	}

	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) || errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.EHOSTUNREACH) {
		return &ProviderError{Code: CodeHostUnavailable, Message: err.Error(), Transient: true, Err: err}
	}

	var netErr net.Error
	var urlErr *url.Error
	if errors.As(err, &netErr) || errors.As(err, &urlErr) {
		return &ProviderError{Code: CodeNetworkError, Message: err.Error(), Transient: true, Err: err}
	}

	return &ProviderError{Code: CodeUnexpectedResponse, Message: err.Error(), Transient: true, Err: err}
}

// FromHTTPStatus classifies a non-2xx response. A body that is not JSON is
// reported as UNEXPECTED_RESPONSE with NonJSON set, regardless of status.
func FromHTTPStatus(status int, body []byte, retryAfter string) *ProviderError {
	trimmed := bytes.TrimSpace(body)
	isJSON := len(trimmed) > 0 && json.Valid(trimmed)
	msg := errorMessage(trimmed, isJSON)

	switch {
	case !isJSON && status < http.StatusInternalServerError:
		return &ProviderError{Code: CodeUnexpectedResponse, Status: status, Message: msg, Transient: true, NonJSON: true}
	case status == http.StatusUnauthorized || status == http.StatusPaymentRequired || status == http.StatusForbidden:
		return &ProviderError{Code: CodeLicenseInvalid, Status: status, Message: msg, LicenseRelated: true}
	case status == http.StatusTooManyRequests:
		return &ProviderError{Code: CodeRateLimited, Status: status, Message: msg, Transient: true, RetryAfter: ParseRetryAfter(retryAfter)}
	case status == http.StatusRequestTimeout:
		return &ProviderError{Code: CodeNetworkError, Status: status, Message: msg, Transient: true}
	case status == http.StatusBadGateway || status == http.StatusServiceUnavailable || status == http.StatusGatewayTimeout:
		return &ProviderError{Code: CodeHostUnavailable, Status: status, Message: msg, Transient: true, NonJSON: !isJSON, RetryAfter: ParseRetryAfter(retryAfter)}
	case status >= http.StatusInternalServerError:
		return &ProviderError{Code: CodeHTTPError, Status: status, Message: msg, Transient: true, NonJSON: !isJSON}
	default:
		return &ProviderError{Code: CodeHTTPError, Status: status, Message: msg}
	}
}

// ParseRetryAfter reads a Retry-After header given in seconds or as an HTTP date.
func ParseRetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(value); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func errorMessage(body []byte, isJSON bool) string {
	if isJSON {
		var payload struct {
			Error  json.RawMessage `json:"error"`
			Detail string          `json:"detail"`
		}
		if err := json.Unmarshal(body, &payload); err == nil {
			if payload.Detail != "" {
				return payload.Detail
			}
			var nested struct {
				Message string `json:"message"`
			}
			if json.Unmarshal(payload.Error, &nested) == nil && nested.Message != "" {
				return nested.Message
			}
			var plain string
			if json.Unmarshal(payload.Error, &plain) == nil && plain != "" {
				return plain
			}
		}
	}
	const maxLen = 200
	s := string(body)
	if len(s) > maxLen {
		s = s[:maxLen] + "..."
	}
	return s
}
