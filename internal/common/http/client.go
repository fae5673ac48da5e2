// internal/common/http/client.go
package http

import (
	"net/http"
	"time"
)

// Client is the shared HTTP client for upstream API calls. The timeout is
// a transport-level ceiling; per-request deadlines come from the request
// context the callers attach.
type Client struct {
	httpClient *http.Client
}

func NewClient(timeout time.Duration) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = 10
	return &Client{
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}
}

func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.httpClient.Do(req)
}
