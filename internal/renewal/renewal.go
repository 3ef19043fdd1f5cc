// Package renewal keeps one timer per active profile and re-runs the
// credential cycle shortly before each session expires.
package renewal

import (
	"errors"
	"sync"
	"time"

	"github.com/DevLabFoundry/aws-session-keeper/internal/profile"
	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

// ErrAbandoned marks a renewal that must not be retried or reported as
// a failure, e.g. the profile was removed or the user dismissed the
// login window.
var ErrAbandoned = errors.New("renewal abandoned")

// RetryPolicy bounds the renewal attempts for a single expiry.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Delay: 10 * time.Second}
}

// Runner executes one credential cycle for a profile and returns the
// new expiry.
type Runner interface {
	RunRenewalCycle(alias string, silent bool) (time.Time, error)
}

// Notifier receives the outcome of a renewal round.
type Notifier interface {
	RenewalSucceeded(alias string)
	RenewalFailed(alias string)
}

// Scheduler owns the per-profile timers. All timer map access is
// serialized through mu.
type Scheduler struct {
	store    *profile.Store
	runner   Runner
	notifier Notifier
	retry    RetryPolicy
	now      func() time.Time
	log      *logrus.Entry

	mu     sync.Mutex
	timers map[string]*time.Timer
}

func NewScheduler(store *profile.Store, runner Runner, notifier Notifier) *Scheduler {
	return &Scheduler{
		store:    store,
		runner:   runner,
		notifier: notifier,
		retry:    DefaultRetryPolicy(),
		now:      time.Now,
		log:      logrus.WithField("component", "renewal"),
		timers:   map[string]*time.Timer{},
	}
}

func (s *Scheduler) WithRetryPolicy(retry RetryPolicy) *Scheduler {
	s.retry = retry
	return s
}

// WithClock overrides the time source.
func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.now = now
	return s
}

// Schedule arms (or re-arms) the timer for alias to fire lead-minutes
// before expiresAt. A lead already in the past renews synchronously.
// Disabled settings tear any existing timer down instead.
func (s *Scheduler) Schedule(alias string, expiresAt time.Time) {
	s.mu.Lock()
	s.stopTimer(alias)

	settings := s.store.AutoRenewSettings()
	if !settings.Enabled {
		s.mu.Unlock()
		s.log.WithField("alias", alias).Debug("auto renew disabled, not scheduling")
		return
	}

	fireAt := expiresAt.Add(-time.Duration(settings.LeadMinutes) * time.Minute)
	delay := fireAt.Sub(s.now())
	if delay <= 0 {
		s.mu.Unlock()
		s.log.WithField("alias", alias).Debug("renewal window already open, renewing now")
		s.Renew(alias)
		return
	}

	s.log.WithFields(logrus.Fields{"alias": alias, "fireAt": fireAt}).Debug("renewal scheduled")
	s.timers[alias] = time.AfterFunc(delay, func() {
		s.Cancel(alias)
		s.Renew(alias)
	})
	s.mu.Unlock()
}

// Renew runs the renewal cycle with the configured retry budget and
// re-schedules on success. Abandoned renewals end silently.
func (s *Scheduler) Renew(alias string) {
	attempt := 0
	op := func() error {
		attempt++
		p, found, err := s.store.Get(alias)
		if err != nil {
			return err
		}
		if !found || !p.Active {
			return backoff.Permanent(ErrAbandoned)
		}
		silent := s.store.AutoRenewSettings().Silent

		expiresAt, err := s.runner.RunRenewalCycle(alias, silent)
		if err != nil {
			if errors.Is(err, ErrAbandoned) {
				return backoff.Permanent(err)
			}
			s.log.WithFields(logrus.Fields{"alias": alias, "attempt": attempt}).WithError(err).Warn("renewal attempt failed")
			return err
		}

		s.Schedule(alias, expiresAt)
		s.notifier.RenewalSucceeded(alias)
		return nil
	}

	policy := backoff.WithMaxRetries(backoff.NewConstantBackOff(s.retry.Delay), uint64(s.retry.MaxAttempts-1))
	if err := backoff.Retry(op, policy); err != nil {
		if errors.Is(err, ErrAbandoned) {
			s.log.WithField("alias", alias).Debug("renewal abandoned")
			return
		}
		s.log.WithField("alias", alias).WithError(err).Error("renewal failed after all attempts")
		s.notifier.RenewalFailed(alias)
	}
}

// Cancel disarms the timer for alias, if any.
func (s *Scheduler) Cancel(alias string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopTimer(alias)
}

// ClearAll disarms every timer; used on shutdown.
func (s *Scheduler) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for alias := range s.timers {
		s.stopTimer(alias)
	}
}

// caller holds mu
func (s *Scheduler) stopTimer(alias string) {
	if t, ok := s.timers[alias]; ok {
		t.Stop()
		delete(s.timers, alias)
	}
}

func (s *Scheduler) pending(alias string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[alias]
	return ok
}
