// Package treestore talks to a hosted JSON document tree over its REST
// interface: every node is addressed as {base}/{path}.json.
package treestore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var (
	ErrNotFound           = errors.New("treestore: no data at path")
	ErrPreconditionFailed = errors.New("treestore: etag mismatch")
)

// StatusError is returned for any non-2xx response not covered by a sentinel.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("treestore: %s %s: status %d: %s", e.Method, e.Path, e.Code, e.Body)
}

const DefaultTimeout = 30 * time.Second

type Client struct {
	baseURL    string
	auth       string
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithAuth appends an auth query parameter to every request.
func WithAuth(token string) Option {
	return func(c *Client) { c.auth = token }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// URL returns the REST address of path.
func (c *Client) URL(path string) string {
	var segments []string
	for _, s := range strings.Split(strings.Trim(path, "/"), "/") {
		if s != "" {
			segments = append(segments, url.PathEscape(s))
		}
	}
	u := c.baseURL + "/" + strings.Join(segments, "/") + ".json"
	if c.auth != "" {
		u += "?auth=" + url.QueryEscape(c.auth)
	}
	return u
}

func (c *Client) do(ctx context.Context, method, path string, body any, header http.Header) (*http.Response, []byte, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, nil, fmt.Errorf("treestore: encode %s: %w", path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.URL(path), reader)
	if err != nil {
		return nil, nil, err
	}
	for k, v := range header {
		req.Header[k] = v
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("treestore: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("treestore: read %s: %w", path, err)
	}

	switch {
	case resp.StatusCode == http.StatusPreconditionFailed:
		return resp, data, ErrPreconditionFailed
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return resp, data, &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	return resp, data, nil
}

func decode(path string, data []byte, v any) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ErrNotFound
	}
	if v == nil {
		return nil
	}
	if err := json.Unmarshal(trimmed, v); err != nil {
		return fmt.Errorf("treestore: decode %s: %w", path, err)
	}
	return nil
}

// Get decodes the node at path into v. A missing node returns ErrNotFound.
func (c *Client) Get(ctx context.Context, path string, v any) error {
	_, data, err := c.do(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return err
	}
	return decode(path, data, v)
}

// Set replaces the node at path with v.
func (c *Client) Set(ctx context.Context, path string, v any) error {
	_, _, err := c.do(ctx, http.MethodPut, path, v, nil)
	return err
}

// Push appends v as a new child of path and returns the generated key.
func (c *Client) Push(ctx context.Context, path string, v any) (string, error) {
	_, data, err := c.do(ctx, http.MethodPost, path, v, nil)
	if err != nil {
		return "", err
	}
	var out struct {
		Name string `json:"name"`
	}
	if err := decode(path, data, &out); err != nil {
		return "", err
	}
	return out.Name, nil
}

func (c *Client) Delete(ctx context.Context, path string) error {
	_, _, err := c.do(ctx, http.MethodDelete, path, nil, nil)
	return err
}

// GetWithETag is Get that also returns the node's ETag for a later SetIfMatch.
// For a missing node the ETag is still returned alongside ErrNotFound so the
// caller can create it conditionally.
func (c *Client) GetWithETag(ctx context.Context, path string, v any) (string, error) {
	resp, data, err := c.do(ctx, http.MethodGet, path, nil, http.Header{"X-Firebase-Etag": {"true"}})
	if err != nil {
		return "", err
	}
	return resp.Header.Get("ETag"), decode(path, data, v)
}

// SetIfMatch writes v only if the node still carries etag, and returns the
// new ETag. A concurrent change yields ErrPreconditionFailed.
func (c *Client) SetIfMatch(ctx context.Context, path, etag string, v any) (string, error) {
	resp, _, err := c.do(ctx, http.MethodPut, path, v, http.Header{
		"If-Match":        {etag},
		"X-Firebase-Etag": {"true"},
	})
	if err != nil {
		return "", err
	}
	return resp.Header.Get("ETag"), nil
}

// Update runs fn against the current value of path and writes the result
// back conditionally, retrying when another writer got there first.
func (c *Client) Update(ctx context.Context, path string, attempts int, fn func(current json.RawMessage) (any, error)) error {
	if attempts <= 0 {
		attempts = 5
	}
	for i := 0; i < attempts; i++ {
		var current json.RawMessage
		etag, err := c.GetWithETag(ctx, path, &current)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		next, err := fn(current)
		if err != nil {
			return err
		}
		_, err = c.SetIfMatch(ctx, path, etag, next)
		if !errors.Is(err, ErrPreconditionFailed) {
			return err
		}
	}
	return ErrPreconditionFailed
}
