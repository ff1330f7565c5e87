// Package httpx holds the fasthttp plumbing shared by the provider clients.
package httpx

import (
	"context"
	"fmt"
	"time"

	"github.com/valyala/fasthttp"
)

// DefaultTimeout bounds a request when ctx carries no earlier deadline.
const DefaultTimeout = 30 * time.Second

// NewClient returns a fasthttp client with conservative defaults.
func NewClient(name string) *fasthttp.Client {
	return &fasthttp.Client{
		Name:                name,
		ReadTimeout:         DefaultTimeout,
		WriteTimeout:        DefaultTimeout,
		MaxIdleConnDuration: time.Minute,
	}
}

// Do performs req, honoring ctx cancellation and the earlier of ctx's
// deadline and timeout. A non-positive timeout uses DefaultTimeout.
func Do(ctx context.Context, c *fasthttp.Client, req *fasthttp.Request, resp *fasthttp.Response, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	done := make(chan error, 1)
	go func() {
		done <- c.DoDeadline(req, resp, deadline)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		// Wait for the in-flight request so req and resp can be released safely.
		<-done
		return ctx.Err()
	}
}

// StatusError reports a non-2xx response. Its text carries the numeric code
// and reason phrase so that failures classify by status.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Detail string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Code, fasthttp.StatusMessage(e.Code))
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// CheckStatus returns a *StatusError unless resp is 2xx.
func CheckStatus(req *fasthttp.Request, resp *fasthttp.Response, detail string) error {
	code := resp.StatusCode()
	if code >= 200 && code < 300 {
		return nil
	}
	return &StatusError{
		Method: string(req.Header.Method()),
		Path:   string(req.URI().Path()),
		Code:   code,
		Detail: detail,
	}
}
