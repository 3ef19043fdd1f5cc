// Package lifecycle orchestrates the full session lifecycle: assertion
// capture, the credential exchange, persistence and renewal scheduling.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/DevLabFoundry/aws-session-keeper/internal/capture"
	"github.com/DevLabFoundry/aws-session-keeper/internal/credstore"
	"github.com/DevLabFoundry/aws-session-keeper/internal/federation"
	"github.com/DevLabFoundry/aws-session-keeper/internal/profile"
	"github.com/DevLabFoundry/aws-session-keeper/internal/renewal"
	"github.com/sirupsen/logrus"
)

var (
	ErrProfileNotFound = errors.New("profile not found")
	// ErrDuplicateActiveProfile guards the credentials file section: two
	// aliases writing the same section would overwrite each other on
	// every renewal.
	ErrDuplicateActiveProfile = errors.New("another active profile already manages this credentials section")
	ErrNoStoredCredentials    = errors.New("no stored credentials for profile")
)

// Result is the user-facing outcome of an activation.
type Result struct {
	Success bool
	Message string
}

// SurfaceFactory builds a fresh login surface per capture; silent
// surfaces stay hidden.
type SurfaceFactory func(ctx context.Context, silent bool) (capture.LoginSurface, error)

// Exchanger trades an assertion for temporary credentials.
type Exchanger interface {
	Exchange(ctx context.Context, roleArn, principalArn, assertion string, durationSeconds int32) (credstore.Credentials, error)
}

// ConsoleURLBuilder turns stored credentials into a console sign-in URL.
type ConsoleURLBuilder interface {
	BuildConsoleURL(ctx context.Context, creds federation.Session) (string, error)
}

// Manager ties the profile registry, the credentials file, the capture
// pipeline and the renewal scheduler together.
type Manager struct {
	ctx       context.Context
	profiles  *profile.Store
	creds     *credstore.Store
	capturer  *capture.Capturer
	surfaces  SurfaceFactory
	exchanger Exchanger
	console   ConsoleURLBuilder
	sched     *renewal.Scheduler
	duration  int32
	log       *logrus.Entry
}

func NewManager(ctx context.Context, profiles *profile.Store, creds *credstore.Store,
	surfaces SurfaceFactory, exchanger Exchanger, console ConsoleURLBuilder, notifier renewal.Notifier) *Manager {
	m := &Manager{
		ctx:       ctx,
		profiles:  profiles,
		creds:     creds,
		capturer:  capture.New(),
		surfaces:  surfaces,
		exchanger: exchanger,
		console:   console,
		duration:  SessionDurationSeconds(),
		log:       logrus.WithField("component", "lifecycle"),
	}
	m.sched = renewal.NewScheduler(profiles, m, notifier)
	return m
}

// WithDuration overrides the requested session duration in seconds.
func (m *Manager) WithDuration(seconds int32) *Manager {
	m.duration = seconds
	return m
}

func (m *Manager) Scheduler() *renewal.Scheduler {
	return m.sched
}

// EnsureBackup snapshots a credentials file this tool has never
// touched before, so the first managed write is reversible.
func (m *Manager) EnsureBackup() error {
	backedUp, backupPath, err := m.creds.BackupIfForeign()
	if err != nil {
		return err
	}
	if backedUp {
		m.log.WithField("backup", backupPath).Info("backed up unmanaged credentials file")
	}
	return nil
}

// runCycle performs one capture-exchange-persist round for a profile.
// Callers are responsible for the profile store bookkeeping.
func (m *Manager) runCycle(prof profile.Profile, silent bool) (credstore.Credentials, error) {
	surface, err := m.surfaces(m.ctx, silent)
	if err != nil {
		return credstore.Credentials{}, fmt.Errorf("failed to open login surface: %w", err)
	}

	assertion, err := m.capturer.Capture(m.ctx, surface, prof.LoginURL)
	if err != nil {
		return credstore.Credentials{}, err
	}

	creds, err := m.exchanger.Exchange(m.ctx, prof.RoleArn, prof.PrincipalArn, assertion, m.duration)
	if err != nil {
		return credstore.Credentials{}, err
	}

	if err := m.creds.Upsert(prof.ProfileName, creds); err != nil {
		return credstore.Credentials{}, err
	}
	return creds, nil
}

// ActivateProfile starts managing a profile's credentials section.
// Still-valid stored credentials are adopted without a fresh login;
// otherwise a full interactive cycle runs.
func (m *Manager) ActivateProfile(alias string) (Result, error) {
	prof, found, err := m.profiles.Get(alias)
	if err != nil {
		return Result{}, err
	}
	if !found {
		return Result{}, fmt.Errorf("%w: %s", ErrProfileNotFound, alias)
	}

	all, err := m.profiles.List()
	if err != nil {
		return Result{}, err
	}
	for _, other := range all {
		if other.Alias != alias && other.Active && other.ProfileName == prof.ProfileName {
			return Result{}, fmt.Errorf("%w: %s is held by %s", ErrDuplicateActiveProfile, prof.ProfileName, other.Alias)
		}
	}

	if !prof.Active {
		if exp, ok := prof.ExpiresAtTime(); ok && exp.After(time.Now()) {
			if m.creds.HasSessionToken(prof.ProfileName) {
				if err := m.profiles.MarkActive(alias); err != nil {
					return Result{}, err
				}
				m.sched.Schedule(alias, exp)
				m.log.WithField("alias", alias).Info("adopted still-valid credentials")
				return Result{Success: true, Message: fmt.Sprintf("profile %s activated with existing credentials, valid until %s", alias, exp.Format(time.RFC3339))}, nil
			}
		}
	}

	creds, err := m.runCycle(prof, false)
	if err != nil {
		return Result{}, err
	}
	if err := m.profiles.SetActive(alias, time.Now(), creds.Expiration); err != nil {
		return Result{}, err
	}
	m.sched.Schedule(alias, creds.Expiration)

	verb := "activated"
	if prof.Active {
		verb = "renewed"
	}
	return Result{Success: true, Message: fmt.Sprintf("profile %s %s, session valid until %s", alias, verb, creds.Expiration.Format(time.RFC3339))}, nil
}

// RunRenewalCycle implements renewal.Runner. A dismissed login window
// or a vanished profile abandons the renewal instead of failing it.
func (m *Manager) RunRenewalCycle(alias string, silent bool) (time.Time, error) {
	prof, found, err := m.profiles.Get(alias)
	if err != nil {
		return time.Time{}, err
	}
	if !found {
		return time.Time{}, renewal.ErrAbandoned
	}

	creds, err := m.runCycle(prof, silent)
	if err != nil {
		if errors.Is(err, capture.ErrCancelled) {
			return time.Time{}, fmt.Errorf("%w: %v", renewal.ErrAbandoned, err)
		}
		return time.Time{}, err
	}

	if err := m.profiles.RecordRenewal(alias, time.Now(), creds.Expiration); err != nil {
		return time.Time{}, err
	}
	return creds.Expiration, nil
}

// DeactivateProfile stops managing the section: the timer is disarmed,
// the credentials are removed and the profile bookkeeping cleared.
func (m *Manager) DeactivateProfile(alias string) error {
	prof, found, err := m.profiles.Get(alias)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrProfileNotFound, alias)
	}

	m.sched.Cancel(alias)
	if err := m.creds.Remove(prof.ProfileName); err != nil {
		return err
	}
	return m.profiles.ClearActive(alias)
}

// ValidateSessions reconciles the profile registry against the
// credentials file, dropping active profiles whose credentials are
// gone or expired. Returns how many were dropped.
func (m *Manager) ValidateSessions() (int, error) {
	all, err := m.profiles.List()
	if err != nil {
		return 0, err
	}

	dropped := 0
	for _, prof := range all {
		if !prof.Active {
			continue
		}
		exp, ok := prof.ExpiresAtTime()
		if m.creds.HasSessionToken(prof.ProfileName) && ok && exp.After(time.Now()) {
			continue
		}

		m.log.WithField("alias", prof.Alias).Info("dropping stale session")
		m.sched.Cancel(prof.Alias)
		if err := m.profiles.ClearActive(prof.Alias); err != nil {
			return dropped, err
		}
		dropped++
	}
	return dropped, nil
}

// RestoreTimers re-arms renewal timers for every active profile; used
// on daemon start.
func (m *Manager) RestoreTimers() error {
	return m.rescheduleActive()
}

func (m *Manager) rescheduleActive() error {
	all, err := m.profiles.List()
	if err != nil {
		return err
	}
	for _, prof := range all {
		if !prof.Active {
			continue
		}
		if exp, ok := prof.ExpiresAtTime(); ok {
			m.sched.Schedule(prof.Alias, exp)
		}
	}
	return nil
}

func (m *Manager) AutoRenewSettings() profile.RenewalSettings {
	return m.profiles.AutoRenewSettings()
}

// SetAutoRenewSettings persists the settings and re-arms the timers so
// lead or enablement changes take effect immediately.
func (m *Manager) SetAutoRenewSettings(settings profile.RenewalSettings) error {
	if err := m.profiles.SetAutoRenewSettings(settings); err != nil {
		return err
	}
	if !settings.Enabled {
		m.sched.ClearAll()
		return nil
	}
	return m.rescheduleActive()
}

// ConsoleURL builds a federated sign-in URL from the stored
// credentials of a profile.
func (m *Manager) ConsoleURL(alias string) (string, error) {
	prof, found, err := m.profiles.Get(alias)
	if err != nil {
		return "", err
	}
	if !found {
		return "", fmt.Errorf("%w: %s", ErrProfileNotFound, alias)
	}

	creds, err := m.creds.Read(prof.ProfileName)
	if err != nil {
		return "", err
	}
	if creds == nil {
		return "", fmt.Errorf("%w: %s", ErrNoStoredCredentials, alias)
	}

	return m.console.BuildConsoleURL(m.ctx, federation.Session{
		AccessKeyID:     creds.AccessKeyID,
		SecretAccessKey: creds.SecretAccessKey,
		SessionToken:    creds.SessionToken,
	})
}
