// Package capture extracts a SAML assertion from an interactive identity
// provider login flow.
//
// The capturer drives a LoginSurface through the states
// AwaitingLogin -> {Captured | Redirected | TimedOut | UserCancelled}.
// Two capture paths race: interception of the outgoing federation POST,
// and a hidden-field scan of each loaded document. The first successful
// extraction wins and the surface is torn down; when both could fire on
// the same page load, interception is drained first so the outcome is
// deterministic.
package capture

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	ErrTimedOut   = errors.New("timed out waiting for an assertion")
	ErrCancelled  = errors.New("login surface closed before an assertion was captured")
	ErrRedirected = errors.New("login completed but the assertion could not be captured")
)

const (
	DefaultTimeout     = 5 * time.Minute
	DefaultLandingHost = "console.aws.amazon.com"
)

// Request is an intercepted submission to the federation sign-in
// endpoint. The surface suppresses the actual network send.
type Request struct {
	Method string
	URL    string
	Body   string
}

// PageEvent fires after a document finishes loading in the surface.
type PageEvent struct {
	URL string
}

// LoginSurface is the capability interface over an interactive rendering
// surface. Implementations are single shot: one surface per capture,
// Close must be idempotent.
type LoginSurface interface {
	Navigate(url string) error
	Requests() <-chan Request
	PageLoads() <-chan PageEvent
	Closed() <-chan struct{}
	ExtractAssertionField() (string, bool)
	Close() error
}

type Capturer struct {
	timeout     time.Duration
	landingHost string
	log         *logrus.Entry
}

func New() *Capturer {
	return &Capturer{
		timeout:     DefaultTimeout,
		landingHost: DefaultLandingHost,
		log:         logrus.WithField("component", "capture"),
	}
}

func (c *Capturer) WithTimeout(d time.Duration) *Capturer {
	c.timeout = d
	return c
}

func (c *Capturer) WithLandingHost(host string) *Capturer {
	c.landingHost = host
	return c
}

// Capture navigates the surface to loginURL and waits for the first
// successful assertion extraction. The surface is torn down exactly once
// on every terminal state.
func (c *Capturer) Capture(ctx context.Context, surface LoginSurface, loginURL string) (string, error) {
	defer surface.Close()

	if err := surface.Navigate(loginURL); err != nil {
		return "", err
	}

	timeout := time.NewTimer(c.timeout)
	defer timeout.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())

		case req := <-surface.Requests():
			if assertion, ok := AssertionFromBody(req.Body); ok {
				c.log.WithField("url", req.URL).Debug("assertion intercepted from sign-in submission")
				return assertion, nil
			}

		case ev := <-surface.PageLoads():
			// interception wins when both paths fire on the same load
			select {
			case req := <-surface.Requests():
				if assertion, ok := AssertionFromBody(req.Body); ok {
					c.log.WithField("url", req.URL).Debug("assertion intercepted from sign-in submission")
					return assertion, nil
				}
			default:
			}
			if strings.Contains(ev.URL, c.landingHost) {
				return "", ErrRedirected
			}
			if assertion, ok := surface.ExtractAssertionField(); ok {
				c.log.WithField("url", ev.URL).Debug("assertion extracted from loaded document")
				return assertion, nil
			}

		case <-surface.Closed():
			return "", ErrCancelled

		case <-timeout.C:
			return "", ErrTimedOut
		}
	}
}

// AssertionFromBody parses the assertion field out of a URL-encoded
// submission body.
func AssertionFromBody(body string) (string, bool) {
	parts := strings.Split(body, "SAMLResponse=")
	if len(parts) < 2 {
		return "", false
	}
	raw := strings.Split(parts[1], "&")[0]
	if raw == "" {
		return "", false
	}
	assertion, err := url.QueryUnescape(raw)
	if err != nil {
		return "", false
	}
	return assertion, true
}
