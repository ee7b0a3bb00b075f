package crawler

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Sentinel errors for errors.Is checks.
var (
	ErrNormalization      = errors.New("address normalization failed")
	ErrInvalidInput       = errors.New("invalid input")
	ErrOrchestrationFault = errors.New("orchestration fault")
	ErrJobNotFound        = errors.New("job not found")
	ErrReportNotFound     = errors.New("report not found")
	ErrJobExists          = errors.New("job already exists")
	ErrQueueClosed        = errors.New("queue closed")
	ErrJobFinished        = errors.New("job already finished")
)

// NormalizationError reports an address that could not be resolved.
type NormalizationError struct {
	Raw string
	Err error
}

func (e *NormalizationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("resolve %q", e.Raw)
	}
	return fmt.Sprintf("resolve %q: %v", e.Raw, e.Err)
}

// Unwrap exposes the sentinel and the parse error.
func (e *NormalizationError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrNormalization}
	}
	return []error{ErrNormalization, e.Err}
}

// FailureKind classifies a page fetch failure.
type FailureKind string

// Fetch failure kinds.
const (
	FailureDomainUnresolved FailureKind = "domain_unresolved"
	FailureTimeout          FailureKind = "timeout"
	FailureForbidden        FailureKind = "forbidden"
	FailureNotFound         FailureKind = "not_found"
	FailureServerError      FailureKind = "server_error"
	FailureOther            FailureKind = "other"
)

// FetchError is returned by fetchers for rejected statuses and transport
// failures. StatusCode is zero when no response was received.
type FetchError struct {
	Kind       FailureKind
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err == nil:
		return fmt.Sprintf("fetch %s: %s (status %d)", e.URL, e.Kind, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
	default:
		return fmt.Sprintf("fetch %s: %s", e.URL, e.Kind)
	}
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Message is the human-readable text recorded on a failed PageResult.
func (e *FetchError) Message() string {
	switch e.Kind {
	case FailureDomainUnresolved:
		return "could not resolve domain"
	case FailureTimeout:
		return "connection timeout"
	case FailureForbidden:
		return "access denied"
	case FailureNotFound:
		return "page not found"
	case FailureServerError:
		return fmt.Sprintf("server error (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("request failed with status %d", e.StatusCode)
	}
	return "unknown error"
}

// NewStatusError builds a FetchError for a rejected HTTP status.
func NewStatusError(url string, status int) *FetchError {
	return &FetchError{Kind: KindForStatus(status), URL: url, StatusCode: status}
}

// NewTransportError classifies a transport-level failure.
func NewTransportError(url string, err error) *FetchError {
	return &FetchError{Kind: KindForError(err), URL: url, Err: err}
}

// KindForStatus maps a rejected status code to a FailureKind.
func KindForStatus(status int) FailureKind {
	switch {
	case status == http.StatusForbidden:
		return FailureForbidden
	case status == http.StatusNotFound:
		return FailureNotFound
	case status >= 500:
		return FailureServerError
	default:
		return FailureOther
	}
}

// KindForError maps a transport error to a FailureKind.
func KindForError(err error) FailureKind {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return FailureTimeout
		}
		return FailureDomainUnresolved
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return FailureTimeout
	}
	return FailureOther
}

// JobErrorKind separates the two job-level failure categories.
type JobErrorKind string

// Job-level error kinds.
const (
	JobInvalidInput       JobErrorKind = "invalid_input"
	JobOrchestrationFault JobErrorKind = "orchestration_fault"
)

// JobError aborts a whole job. No report accompanies it.
type JobError struct {
	Kind    JobErrorKind
	Message string
	Err     error
}

func (e *JobError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

// Unwrap exposes the category sentinel and the cause.
func (e *JobError) Unwrap() []error {
	sentinel := ErrInvalidInput
	if e.Kind == JobOrchestrationFault {
		sentinel = ErrOrchestrationFault
	}
	if e.Err == nil {
		return []error{sentinel}
	}
	return []error{sentinel, e.Err}
}

// InvalidInput builds a JobError of kind JobInvalidInput.
func InvalidInput(msg string, err error) *JobError {
	return &JobError{Kind: JobInvalidInput, Message: msg, Err: err}
}

// OrchestrationFault builds a JobError of kind JobOrchestrationFault.
func OrchestrationFault(msg string, err error) *JobError {
	return &JobError{Kind: JobOrchestrationFault, Message: msg, Err: err}
}
