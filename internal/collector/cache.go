package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
)

// HeaderFromCache marks responses served from the response cache
const HeaderFromCache = "X-From-Cache"

// ResponseCache persists successful API responses between runs
type ResponseCache interface {
	GetCachedResponse(ctx context.Context, key string) ([]byte, bool, error)
	SaveCachedResponse(ctx context.Context, key string, body []byte) error
}

// cachedResponse is the stored form of a response. The Link header is kept
// so that pagination still works on cached pages.
type cachedResponse struct {
	Link string `json:"link,omitempty"`
	Body []byte `json:"body"`
}

// CachingTransport serves repeated GET requests from a ResponseCache
type CachingTransport struct {
	Base   http.RoundTripper
	Cache  ResponseCache
	Logger *slog.Logger
}

// RoundTrip implements http.RoundTripper
func (t *CachingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodGet || t.Cache == nil {
		return t.base().RoundTrip(req)
	}

	key := cacheKey(req)
	if data, ok, err := t.Cache.GetCachedResponse(req.Context(), key); err != nil {
		t.logger().Warn("response cache read failed", "key", key, "error", err)
	} else if ok {
		var cached cachedResponse
		if err := json.Unmarshal(data, &cached); err == nil {
			t.logger().Debug("cache hit", "key", key)
			return cached.toResponse(req), nil
		}
	}

	resp, err := t.base().RoundTrip(req)
	if err != nil || resp.StatusCode != http.StatusOK {
		return resp, err
	}

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, err
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))

	data, err := json.Marshal(cachedResponse{Link: resp.Header.Get("Link"), Body: body})
	if err == nil {
		err = t.Cache.SaveCachedResponse(req.Context(), key, data)
	}
	if err != nil {
		t.logger().Warn("response cache write failed", "key", key, "error", err)
	}

	return resp, nil
}

func (c cachedResponse) toResponse(req *http.Request) *http.Response {
	header := make(http.Header)
	header.Set("Content-Type", "application/json; charset=utf-8")
	header.Set(HeaderFromCache, "1")
	if c.Link != "" {
		header.Set("Link", c.Link)
	}
	header.Set("Content-Length", strconv.Itoa(len(c.Body)))
	return &http.Response{
		Status:        "200 OK",
		StatusCode:    http.StatusOK,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(c.Body)),
		ContentLength: int64(len(c.Body)),
		Request:       req,
	}
}

// cacheKey is the request URL with its query parameters sorted
func cacheKey(req *http.Request) string {
	u := *req.URL
	u.RawQuery = u.Query().Encode()
	return u.String()
}

func (t *CachingTransport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func (t *CachingTransport) logger() *slog.Logger {
	if t.Logger != nil {
		return t.Logger
	}
	return slog.Default()
}
