package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/brettbedarf/slowfs"
	"github.com/brettbedarf/slowfs/internal/util"
)

type HTTPMethod = string

const (
	HTTPMethodGet  HTTPMethod = "GET"
	HTTPMethodPost HTTPMethod = "POST"
)

// HTTPClient is the subset of *http.Client used to fetch content
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPSource fetches the file content from a URL once, at seed time
type HTTPSource struct {
	URL     string            `json:"url"`
	Method  *HTTPMethod       `json:"method,omitempty"` // Default is GET
	Headers map[string]string `json:"headers,omitempty"`

	client HTTPClient
}

// RegisterHTTP registers the http source on r. A nil client uses http.DefaultClient.
func RegisterHTTP(r *Registry, client HTTPClient) {
	if client == nil {
		client = http.DefaultClient
	}
	r.Register(HTTPSourceType, func(raw []byte) (slowfs.ContentSource, error) {
		var src HTTPSource
		if err := json.Unmarshal(raw, &src); err != nil {
			return nil, err
		}
		src.URL = strings.TrimSpace(src.URL)
		if err := validateURL(src.URL); err != nil {
			return nil, err
		}
		src.client = client
		return &src, nil
	})
}

// validateURL accepts absolute http(s) URLs with a host and no user info
func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid source url %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid source url %q: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid source url %q: missing host", raw)
	}
	if u.User != nil {
		return fmt.Errorf("invalid source url %q: user info not allowed", raw)
	}
	return nil
}

func (h *HTTPSource) method() HTTPMethod {
	if h.Method != nil {
		return *h.Method
	}
	return HTTPMethodGet
}

func (h *HTTPSource) Content(ctx context.Context) ([]byte, error) {
	logger := util.GetLogger("Adapters.HTTP")

	req, err := http.NewRequestWithContext(ctx, h.method(), h.URL, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range h.Headers {
		req.Header.Set(k, v)
	}

	client := h.client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s %s: unexpected status %s", h.method(), h.URL, resp.Status)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	logger.Debug().Str("url", h.URL).Int("size", len(data)).Msg("Fetched source content")
	return data, nil
}
