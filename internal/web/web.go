// Package web implements capture.LoginSurface on top of a chromium-like
// browser driven through the devtools protocol.
package web

import (
	"context"
	"os"
	"sync"

	"github.com/DevLabFoundry/aws-session-keeper/internal/capture"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/rod/lib/utils"
	"github.com/sirupsen/logrus"
)

// DefaultAcsURL is the federation sign-in submission endpoint whose
// outgoing requests carry the assertion.
const DefaultAcsURL = "https://signin.aws.amazon.com/saml"

// WebConfig
type WebConfig struct {
	// CustomChromeExecutable can point to a chromium like browser executable
	// e.g. chrome, chromium, brave, edge, (any other chromium based browser)
	CustomChromeExecutable string
	datadir                string
	acsURL                 string
	headless               bool
	leakless               bool
	noSandbox              bool
}

func NewWebConf(datadir string) *WebConfig {
	return &WebConfig{
		datadir:  datadir,
		acsURL:   DefaultAcsURL,
		headless: false,
	}
}

// WithHeadless hides the browser window; used for silent renewals. The
// capture protocol is unchanged.
func (wc *WebConfig) WithHeadless() *WebConfig {
	wc.headless = true
	return wc
}

func (wc *WebConfig) WithNoSandbox() *WebConfig {
	wc.noSandbox = true
	return wc
}

func (wc *WebConfig) WithCustomExecutable(browserPath string) *WebConfig {
	wc.CustomChromeExecutable = browserPath
	return wc
}

func (wc *WebConfig) WithAcsURL(acsURL string) *WebConfig {
	wc.acsURL = acsURL
	return wc
}

func BuildLauncher(conf *WebConfig) *launcher.Launcher {
	l := launcher.New()
	// common set up
	l.Devtools(false).
		UserDataDir(conf.datadir).
		Headless(conf.headless).
		NoSandbox(conf.noSandbox).
		Leakless(conf.leakless)

	if conf.CustomChromeExecutable != "" {
		logrus.WithField("browser", conf.CustomChromeExecutable).Debug("using custom browser executable")
		return l.Bin(conf.CustomChromeExecutable)
	}
	// try default locations if custom location is not specified and default location exists
	if defaultExecPath, found := launcher.LookPath(); conf.CustomChromeExecutable == "" && defaultExecPath != "" && found {
		logrus.WithField("browser", defaultExecPath).Debug("using browser from default location")
		return l.Bin(defaultExecPath)
	}
	return l
}

// Surface is a single-shot login surface; one browser per capture call.
type Surface struct {
	conf     *WebConfig
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
	router   *rod.HijackRouter

	requests chan capture.Request
	loads    chan capture.PageEvent
	closed   chan struct{}

	teardown   sync.Once
	closedOnce sync.Once
}

// NewSurface launches a browser and ties its lifetime to ctx.
func NewSurface(ctx context.Context, conf *WebConfig) (*Surface, error) {
	l := BuildLauncher(conf)

	url, err := l.Launch()
	if err != nil {
		return nil, err
	}
	browser := rod.New().
		ControlURL(url).
		MustConnect().NoDefaultDevice()

	s := &Surface{
		conf:     conf,
		launcher: l,
		browser:  browser,
		requests: make(chan capture.Request, 1),
		loads:    make(chan capture.PageEvent, 4),
		closed:   make(chan struct{}),
	}

	go s.watchDetach()
	go func() {
		<-ctx.Done()
		_ = s.Close()
	}()

	return s, nil
}

func (s *Surface) Requests() <-chan capture.Request    { return s.requests }
func (s *Surface) PageLoads() <-chan capture.PageEvent { return s.loads }
func (s *Surface) Closed() <-chan struct{}             { return s.closed }

// Navigate opens the login URL and starts intercepting submissions to
// the ACS endpoint. Intercepted submissions never reach the network.
func (s *Surface) Navigate(loginURL string) error {
	router := s.browser.HijackRequests()
	router.MustAdd(s.conf.acsURL+"*", func(h *rod.Hijack) {
		method := h.Request.Method()
		if method != "POST" && method != "GET" {
			h.ContinueRequest(&proto.FetchContinueRequest{})
			return
		}
		req := capture.Request{
			Method: method,
			URL:    h.Request.URL().String(),
			Body:   h.Request.Body(),
		}
		select {
		case s.requests <- req:
		default:
		}
		h.Response.Fail(proto.NetworkErrorReasonAborted)
	})
	go router.Run()
	s.router = router

	page, err := s.browser.Page(proto.TargetCreateTarget{URL: loginURL})
	if err != nil {
		return err
	}
	s.page = page

	go page.EachEvent(func(e *proto.PageLoadEventFired) {
		ev := capture.PageEvent{}
		if info, err := page.Info(); err == nil {
			ev.URL = info.URL
		}
		select {
		case s.loads <- ev:
		default:
		}
	})()

	return nil
}

const assertionFieldJS = `() => {
	const el = document.querySelector('input[name="SAMLResponse"]');
	return el ? el.value : "";
}`

// ExtractAssertionField scans the current document for the hidden
// assertion form field.
func (s *Surface) ExtractAssertionField() (string, bool) {
	if s.page == nil {
		return "", false
	}
	obj, err := s.page.Eval(assertionFieldJS)
	if err != nil {
		return "", false
	}
	value := obj.Value.Str()
	return value, value != ""
}

// Close tears the browser down exactly once.
func (s *Surface) Close() error {
	s.teardown.Do(func() {
		if s.router != nil {
			_ = s.router.Stop()
		}
		s.launcher.Kill()
		s.launcher.Cleanup()
		_ = s.browser.Close()
		utils.Sleep(0.5)
		// remove process just in case
		// os.Process is cross platform safe way to remove a process
		if osprocess, err := os.FindProcess(s.launcher.PID()); err == nil && osprocess != nil {
			_ = osprocess.Kill()
		}
		s.signalClosed()
	})
	return nil
}

// watchDetach surfaces a user-initiated browser close.
func (s *Surface) watchDetach() {
	for ev := range s.browser.Event() {
		if ev != nil && ev.Method == "Inspector.detached" {
			s.signalClosed()
			return
		}
	}
	s.signalClosed()
}

func (s *Surface) signalClosed() {
	s.closedOnce.Do(func() { close(s.closed) })
}
