package input

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"
)

// HTTPRequest is a lazy compose over a URL. The body streams through an
// AsyncAdapter, and dropped connections resume with a Range request.
type HTTPRequest struct {
	Client  *http.Client
	URL     string
	Headers http.Header
}

// NewHTTPRequest creates an HTTP compose using the given client, which may
// be nil for the default client.
func NewHTTPRequest(client *http.Client, url string) *HTTPRequest {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPRequest{Client: client, URL: url}
}

func (h *HTTPRequest) Create() (*AudioStream, error) {
	return h.CreateAsync(context.Background())
}

func (h *HTTPRequest) CreateAsync(ctx context.Context) (*AudioStream, error) {
	resp, contentType, err := h.open(ctx, 0)
	if err != nil {
		return nil, err
	}

	adapter := NewAsyncAdapter(resp, &httpResumer{req: h})
	hint := Hint{
		Extension: strings.TrimPrefix(path.Ext(h.URL), "."),
		MimeType:  contentType,
	}
	return &AudioStream{Source: NewReaderSource(adapter), Hint: hint}, nil
}

func (h *HTTPRequest) ShouldCreateAsync() bool { return true }

func (h *HTTPRequest) AuxMetadata() (*Metadata, error) {
	return &Metadata{SourceURL: h.URL}, nil
}

func (h *HTTPRequest) open(ctx context.Context, offset int64) (io.ReadCloser, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.URL, nil)
	if err != nil {
		return nil, "", err
	}
	for k, vs := range h.Headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := h.Client.Do(req)
	if err != nil {
		return nil, "", err
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		resp.Body.Close()
		return nil, "", &RetryIn{After: retryAfter(resp)}
	}
	if resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, "", fmt.Errorf("http source: unexpected status %s", resp.Status)
	}
	return resp.Body, resp.Header.Get("Content-Type"), nil
}

// httpResumer re-opens the request at a byte offset via Range.
type httpResumer struct {
	req *HTTPRequest
}

func (r *httpResumer) TryResume(offset int64) (io.ReadCloser, error) {
	body, _, err := r.req.open(context.Background(), offset)
	return body, err
}

func retryAfter(resp *http.Response) time.Duration {
	if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 5 * time.Second
}
