// Package profile persists the named federation profiles and the
// auto-renew settings in an ini file under the user's home directory.
// Writes are serialized through a file lock so concurrent invocations
// of the CLI do not clobber each other.
package profile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/werf/lockgate"
	"github.com/werf/lockgate/pkg/file_locker"
	"gopkg.in/ini.v1"
)

const (
	profileSectionPrefix = "profile."
	renewSection         = "auto-renew"
	lockName             = "config"
	lockTimeout          = 10 * time.Second
)

var ErrUnknownProfile = errors.New("unknown profile")

// Profile is a single named federation target. Timestamps are stored
// as RFC3339 strings so the file stays hand-editable.
type Profile struct {
	Alias         string `ini:"-"`
	ProfileName   string `ini:"profile-name"`
	RoleArn       string `ini:"role-arn"`
	PrincipalArn  string `ini:"principal-arn"`
	LoginURL      string `ini:"login-url"`
	Active        bool   `ini:"active"`
	LastRenewedAt string `ini:"last-renewed-at"`
	ExpiresAt     string `ini:"expires-at"`
}

// ExpiresAtTime parses the stored expiry. ok is false when the field
// is empty or malformed.
func (p Profile) ExpiresAtTime() (time.Time, bool) {
	if p.ExpiresAt == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, p.ExpiresAt)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// RenewalSettings control the autonomous renewal behaviour.
type RenewalSettings struct {
	Enabled     bool `ini:"enabled"`
	LeadMinutes int  `ini:"lead-minutes"`
	Silent      bool `ini:"silent"`
}

func DefaultRenewalSettings() RenewalSettings {
	return RenewalSettings{Enabled: true, LeadMinutes: 13, Silent: true}
}

// Store reads and writes the profile config file.
type Store struct {
	path   string
	locker lockgate.Locker
	log    *logrus.Entry
}

// NewStore ensures the config directory exists and sets up the file
// locker alongside it.
func NewStore(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create config dir: %w", err)
	}
	locker, err := file_locker.NewFileLocker(filepath.Join(dir, "locks"))
	if err != nil {
		return nil, fmt.Errorf("failed to create file locker: %w", err)
	}
	return &Store{
		path:   path,
		locker: locker,
		log:    logrus.WithField("component", "profile"),
	}, nil
}

func (s *Store) load() (*ini.File, error) {
	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		return ini.Empty(), nil
	}
	return ini.Load(s.path)
}

// update runs fn on the loaded file and writes it back, all under the
// config lock.
func (s *Store) update(fn func(f *ini.File) error) error {
	return lockgate.WithAcquire(s.locker, lockName, lockgate.AcquireOptions{Shared: false, Timeout: lockTimeout}, func(_ bool) error {
		f, err := s.load()
		if err != nil {
			return err
		}
		if err := fn(f); err != nil {
			return err
		}
		return f.SaveTo(s.path)
	})
}

func sectionName(alias string) string {
	return profileSectionPrefix + alias
}

// List returns all stored profiles in file order.
func (s *Store) List() ([]Profile, error) {
	f, err := s.load()
	if err != nil {
		return nil, err
	}
	profiles := []Profile{}
	for _, name := range f.SectionStrings() {
		if len(name) <= len(profileSectionPrefix) || name[:len(profileSectionPrefix)] != profileSectionPrefix {
			continue
		}
		p := Profile{Alias: name[len(profileSectionPrefix):]}
		if err := f.Section(name).MapTo(&p); err != nil {
			return nil, fmt.Errorf("failed to map profile %s: %w", name, err)
		}
		profiles = append(profiles, p)
	}
	return profiles, nil
}

// Get looks a profile up by alias. found is false when the alias is
// unknown.
func (s *Store) Get(alias string) (Profile, bool, error) {
	f, err := s.load()
	if err != nil {
		return Profile{}, false, err
	}
	section, err := f.GetSection(sectionName(alias))
	if err != nil {
		return Profile{}, false, nil
	}
	p := Profile{Alias: alias}
	if err := section.MapTo(&p); err != nil {
		return Profile{}, false, fmt.Errorf("failed to map profile %s: %w", alias, err)
	}
	return p, true, nil
}

// Save writes the profile section, creating or replacing it.
func (s *Store) Save(p Profile) error {
	return s.update(func(f *ini.File) error {
		return f.Section(sectionName(p.Alias)).ReflectFrom(&p)
	})
}

// Delete removes the profile section; removing an unknown alias is a
// no-op.
func (s *Store) Delete(alias string) error {
	return s.update(func(f *ini.File) error {
		f.DeleteSection(sectionName(alias))
		return nil
	})
}

// SetActive marks a profile active and stamps both renewal timestamps.
// Used after a fresh credential cycle.
func (s *Store) SetActive(alias string, renewedAt, expiresAt time.Time) error {
	return s.mutate(alias, func(p *Profile) {
		p.Active = true
		p.LastRenewedAt = renewedAt.UTC().Format(time.RFC3339)
		p.ExpiresAt = expiresAt.UTC().Format(time.RFC3339)
	})
}

// MarkActive flips the active flag without touching the timestamps.
// Used when adopting still-valid credentials.
func (s *Store) MarkActive(alias string) error {
	return s.mutate(alias, func(p *Profile) {
		p.Active = true
	})
}

// RecordRenewal stamps the renewal timestamps without changing the
// active flag, so a renewal finishing after a deactivation does not
// resurrect the profile.
func (s *Store) RecordRenewal(alias string, renewedAt, expiresAt time.Time) error {
	return s.mutate(alias, func(p *Profile) {
		p.LastRenewedAt = renewedAt.UTC().Format(time.RFC3339)
		p.ExpiresAt = expiresAt.UTC().Format(time.RFC3339)
	})
}

// ClearActive deactivates the profile and clears both timestamps.
func (s *Store) ClearActive(alias string) error {
	return s.mutate(alias, func(p *Profile) {
		p.Active = false
		p.LastRenewedAt = ""
		p.ExpiresAt = ""
	})
}

func (s *Store) mutate(alias string, fn func(p *Profile)) error {
	return s.update(func(f *ini.File) error {
		section, err := f.GetSection(sectionName(alias))
		if err != nil {
			return fmt.Errorf("%w: %s", ErrUnknownProfile, alias)
		}
		p := Profile{Alias: alias}
		if err := section.MapTo(&p); err != nil {
			return err
		}
		fn(&p)
		return section.ReflectFrom(&p)
	})
}

// AutoRenewSettings returns the stored renewal settings, falling back
// to the defaults when the section is missing or unreadable.
func (s *Store) AutoRenewSettings() RenewalSettings {
	settings := DefaultRenewalSettings()
	f, err := s.load()
	if err != nil {
		s.log.WithError(err).Warn("failed to read settings, using defaults")
		return settings
	}
	section, err := f.GetSection(renewSection)
	if err != nil {
		return settings
	}
	if err := section.MapTo(&settings); err != nil {
		s.log.WithError(err).Warn("failed to map settings, using defaults")
		return DefaultRenewalSettings()
	}
	return settings
}

func (s *Store) SetAutoRenewSettings(settings RenewalSettings) error {
	return s.update(func(f *ini.File) error {
		return f.Section(renewSection).ReflectFrom(&settings)
	})
}
