package crawler

import "net/http"

// BrowserUserAgent is sent on every outbound request.
const BrowserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

// BrowserHeaders returns the full header profile used for page fetches.
func BrowserHeaders() http.Header {
	h := http.Header{}
	h.Set("User-Agent", BrowserUserAgent)
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	h.Set("Accept-Language", "es-ES,es;q=0.8,en-US;q=0.5,en;q=0.3")
	h.Set("Accept-Encoding", "gzip")
	h.Set("DNT", "1")
	h.Set("Connection", "keep-alive")
	h.Set("Upgrade-Insecure-Requests", "1")
	return h
}

// UserAgentOnly returns a header set carrying just the browser user agent.
func UserAgentOnly() http.Header {
	h := http.Header{}
	h.Set("User-Agent", BrowserUserAgent)
	return h
}
