package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jpillora/backoff"

	"sigbridge/internal/domain"
	"sigbridge/internal/logging"
)

// errRetry marks a failure worth repeating: transport errors and 5xx.
var errRetry = errors.New("directory: retryable")

// ClientOptions tunes a Client.
type ClientOptions struct {
	HTTP    *http.Client
	Timeout time.Duration
	// Retries is how many extra attempts follow a retryable failure.
	Retries int
	// MinBackoff and MaxBackoff bound the delay between attempts.
	MinBackoff time.Duration
	MaxBackoff time.Duration
	Logger     *slog.Logger
}

// Client talks to a remote directory over HTTP.
type Client struct {
	base string
	http *http.Client
	opts ClientOptions
	log  *slog.Logger
}

// NewClient returns a client for the directory at base, e.g.
// http://127.0.0.1:8080.
func NewClient(base string, opts ClientOptions) (*Client, error) {
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("directory: invalid url %q", base)
	}
	hc := opts.HTTP
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	if opts.MinBackoff <= 0 {
		opts.MinBackoff = 100 * time.Millisecond
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 5 * time.Second
	}
	return &Client{base: strings.TrimRight(base, "/"), http: hc, opts: opts, log: logging.OrDiscard(opts.Logger)}, nil
}

func keysPath(owner domain.Address) string {
	return "/v1/keys/" + url.PathEscape(owner.Name) + "/" + strconv.FormatUint(uint64(owner.DeviceID), 10)
}

// Publish uploads owner's keys, replacing what the directory held apart
// from one-time keys it already handed out.
func (c *Client) Publish(ctx context.Context, owner domain.Address, keys domain.PublishedKeys) error {
	return c.do(ctx, http.MethodPut, keysPath(owner), keys, nil, true)
}

// FetchBundle fetches owner's bundle. The directory hands out each one-time
// key once, so a failed fetch is never retried: the lost response may have
// carried a key.
func (c *Client) FetchBundle(ctx context.Context, owner domain.Address) (domain.PreKeyBundle, error) {
	var out domain.PreKeyBundle
	if err := c.do(ctx, http.MethodGet, keysPath(owner), nil, &out, false); err != nil {
		return domain.PreKeyBundle{}, err
	}
	return out, nil
}

// PreKeyCount reports how many one-time keys owner has left on the directory.
func (c *Client) PreKeyCount(ctx context.Context, owner domain.Address) (int, error) {
	var out countResponse
	if err := c.do(ctx, http.MethodGet, keysPath(owner)+"/count", nil, &out, true); err != nil {
		return 0, err
	}
	return out.Count, nil
}

// Delete removes owner's entry.
func (c *Client) Delete(ctx context.Context, owner domain.Address) error {
	return c.do(ctx, http.MethodDelete, keysPath(owner), nil, nil, true)
}

// do runs one request. Idempotent requests are retried on transport errors
// and 5xx responses with exponential backoff.
func (c *Client) do(ctx context.Context, method, path string, in, out any, idempotent bool) error {
	var body []byte
	if in != nil {
		var err error
		if body, err = json.Marshal(in); err != nil {
			return err
		}
	}

	b := &backoff.Backoff{Min: c.opts.MinBackoff, Max: c.opts.MaxBackoff, Factor: 2, Jitter: true}
	for attempt := 0; ; attempt++ {
		err := c.once(ctx, method, path, body, out)
		if err == nil || !idempotent || !errors.Is(err, errRetry) || attempt >= c.opts.Retries {
			return err
		}
		d := b.Duration()
		c.log.Warn("directory request failed, retrying", "method", method, "path", path, "attempt", attempt+1, "delay", d, "err", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d):
		}
	}
}

func (c *Client) once(ctx context.Context, method, path string, body []byte, out any) error {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: directory %s %s: %w", errRetry, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		var er errorResponse
		_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&er)
		switch {
		case resp.StatusCode == http.StatusNotFound:
			return fmt.Errorf("%w: %s %s", ErrNotFound, method, path)
		case resp.StatusCode == http.StatusBadRequest:
			return fmt.Errorf("%w: %s", ErrInvalidBundle, er.Error)
		case resp.StatusCode >= 500:
			return fmt.Errorf("%w: directory %s %s: %s", errRetry, method, path, resp.Status)
		default:
			return fmt.Errorf("directory %s %s: %s", method, path, resp.Status)
		}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

var _ Backend = (*Client)(nil)
