package core

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/NERVsystems/velomcp/pkg/version"
)

// NewHTTPClient returns a client with pooled connections and the given
// overall timeout
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}
}

// UserAgent identifies velomcp to upstream services
func UserAgent() string {
	return fmt.Sprintf("velomcp/%s (+https://github.com/NERVsystems/velomcp)", version.BuildVersion)
}

// SetDefaultHeaders stamps the user agent and accepted content type
func SetDefaultHeaders(req *http.Request, accept string) {
	req.Header.Set("User-Agent", UserAgent())
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
}

// ReadLimited reads at most limit bytes from r. Bodies exceeding the limit
// are an error rather than silently truncated.
func ReadLimited(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("response body exceeds %d bytes", limit)
	}
	return data, nil
}

// Snippet shortens a body for inclusion in error messages
func Snippet(body []byte, max int) string {
	if len(body) <= max {
		return string(body)
	}
	return string(body[:max]) + "..."
}
