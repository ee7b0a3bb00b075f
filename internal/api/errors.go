package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/JakeFAU/sitecrawler/internal/crawler"
)

// statusFor maps an operation error to the HTTP status and message sent to
// the client.
func statusFor(err error) (int, string) {
	var jobErr *crawler.JobError
	if errors.As(err, &jobErr) {
		if jobErr.Kind == crawler.JobInvalidInput {
			return http.StatusBadRequest, jobErr.Message
		}
		return http.StatusInternalServerError, jobErr.Message
	}

	var fetchErr *crawler.FetchError
	if errors.As(err, &fetchErr) {
		return fetchStatus(fetchErr), fetchErr.Message()
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout, "request timed out"
	case errors.Is(err, crawler.ErrJobNotFound):
		return http.StatusNotFound, "job not found"
	case errors.Is(err, crawler.ErrJobFinished):
		return http.StatusConflict, "job already finished"
	case errors.Is(err, crawler.ErrNormalization):
		return http.StatusBadRequest, "invalid url"
	default:
		return http.StatusInternalServerError, err.Error()
	}
}

func fetchStatus(err *crawler.FetchError) int {
	switch err.Kind {
	case crawler.FailureDomainUnresolved:
		return http.StatusBadRequest
	case crawler.FailureTimeout:
		return http.StatusRequestTimeout
	case crawler.FailureForbidden:
		return http.StatusForbidden
	case crawler.FailureNotFound:
		return http.StatusNotFound
	}
	if err.StatusCode == http.StatusTooManyRequests {
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}
