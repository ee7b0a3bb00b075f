package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestSanitizeSite(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"ip address", "192.168.1.1", "192.168.1.1"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.expected, SanitizeSite(tc.input))
		})
	}
}

func TestInitAndObserve(t *testing.T) {
	Init()
	Init()

	ObserveOperation("scrape", nil)
	ObserveOperation("scrape", errors.New("boom"))
	ObserveJob("succeeded")
	ObserveRateLimitDelay("https://Example.org/x", 10*time.Millisecond)
	IncActiveWorkers()
	DecActiveWorkers()

	require.GreaterOrEqual(t, testutil.ToFloat64(operationsTotal.WithLabelValues("scrape", "success")), 1.0)
	require.GreaterOrEqual(t, testutil.ToFloat64(operationsTotal.WithLabelValues("scrape", "error")), 1.0)
	require.GreaterOrEqual(t, testutil.ToFloat64(asyncJobsTotal.WithLabelValues("succeeded")), 1.0)
	require.Equal(t, 1, testutil.CollectAndCount(rateLimitDelaySeconds, "sitecrawler_rate_limit_delay_seconds"))
}

func FuzzSanitizeSite(f *testing.F) {
	for _, seed := range []string{"http://example.com", "https://google.com", "ftp://example.com"} {
		f.Add(seed)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		if SanitizeSite(orig) == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
