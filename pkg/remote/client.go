package remote

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const userAgent = "patchup/1"

type Client struct {
	HTTPClient *http.Client
	// Timeout bounds each request, including reading the body. Zero
	// means no timeout.
	Timeout time.Duration
	// Limit caps download throughput in bytes per second. Zero disables
	// throttling.
	Limit  rate.Limit
	Logger *slog.Logger
}

func New(timeout time.Duration, bytesPerSec int64) *Client {
	c := &Client{
		HTTPClient: http.DefaultClient,
		Timeout:    timeout,
		Logger:     slog.Default(),
	}
	if bytesPerSec > 0 {
		c.Limit = rate.Limit(bytesPerSec)
	}
	return c
}

// Resolve joins a patch directory URI and a file name. base is expected
// to end with a slash.
func Resolve(base, name string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base uri: %w", err)
	}
	ref := &url.URL{Path: name}
	return b.ResolveReference(ref).String(), nil
}

type StatusError struct {
	URL        string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf(
		"GET %s: http %d: %s", e.URL, e.StatusCode, e.Message,
	)
}

func (c *Client) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) get(
	ctx context.Context, uri string,
) (*http.Response, context.CancelFunc, error) {
	cancel := context.CancelFunc(func() {})
	if c.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodGet, uri, nil,
	)
	if err != nil {
		cancel()
		return nil, nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient().Do(req)
	if err != nil {
		cancel()
		return nil, nil, err
	}
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		resp.Body.Close()
		cancel()
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, nil, &StatusError{
			URL:        uri,
			StatusCode: resp.StatusCode,
			Message:    msg,
		}
	}
	return resp, cancel, nil
}

func (c *Client) Get(
	ctx context.Context, uri string,
) ([]byte, error) {
	resp, cancel, err := c.get(ctx, uri)
	if err != nil {
		return nil, err
	}
	defer cancel()
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", uri, err)
	}
	return data, nil
}

// Download streams uri into dst. progress, when set, receives the byte
// count so far and the expected total (-1 when the server sent no
// Content-Length).
func (c *Client) Download(
	ctx context.Context,
	uri, dst string,
	progress func(done, total int64),
) (n int64, err error) {
	start := time.Now()
	resp, cancel, err := c.get(ctx, uri)
	if err != nil {
		return 0, err
	}
	defer cancel()
	defer resp.Body.Close()

	f, err := os.Create(dst)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", dst, err)
	}
	defer func() {
		cerr := f.Close()
		if err == nil && cerr != nil {
			err = fmt.Errorf("close %s: %w", dst, cerr)
		}
		if err != nil {
			os.Remove(dst)
		}
	}()

	var r io.Reader = resp.Body
	if c.Limit > 0 {
		r = newThrottledReader(ctx, r, c.Limit)
	}
	pr := &progressReader{
		r:     r,
		total: resp.ContentLength,
		fn:    progress,
	}

	n, err = io.Copy(f, pr)
	if err != nil {
		return n, fmt.Errorf("download %s: %w", uri, err)
	}
	if resp.ContentLength >= 0 && n != resp.ContentLength {
		return n, fmt.Errorf(
			"download %s: short body (%d of %d bytes)",
			uri, n, resp.ContentLength,
		)
	}

	c.logger().Debug("downloaded",
		"uri", uri,
		"bytes", n,
		"elapsed", time.Since(start),
	)
	return n, nil
}

type progressReader struct {
	r     io.Reader
	done  int64
	total int64
	fn    func(done, total int64)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.done += int64(n)
		if p.fn != nil {
			p.fn(p.done, p.total)
		}
	}
	return n, err
}
