// Package credstore reads and writes the shared AWS credentials file.
//
// The file format is an external contract: other tools read it, write it
// and hand-edit it, so sections are manipulated with line-level scanning
// that preserves every byte outside the section being changed. A marker
// comment identifies the file as maintained by this tool; the first time
// an unmanaged, non-empty file is touched it is backed up to a
// timestamped sibling. Concurrent external writes between the read and
// write of a single Upsert are last-writer-wins - a known limitation, the
// file is deliberately not locked.
package credstore

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const expiryCommentPrefix = "# Expires at: "

var (
	accessKeyRe    = regexp.MustCompile(`aws_access_key_id\s*=\s*(.+)`)
	secretKeyRe    = regexp.MustCompile(`aws_secret_access_key\s*=\s*(.+)`)
	sessionTokenRe = regexp.MustCompile(`aws_session_token\s*=\s*(.+)`)
)

// Credentials are the temporary credentials held by one file section.
// They are flattened into the file immediately after an exchange and
// never persisted anywhere else.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Expiration      time.Time
}

// Store is the sole reader/writer of the shared credentials file within
// this process.
type Store struct {
	path   string
	marker string
	log    *logrus.Entry
}

func New(path, marker string) *Store {
	return &Store{
		path:   path,
		marker: marker,
		log:    logrus.WithField("component", "credstore"),
	}
}

func (s *Store) Path() string {
	return s.path
}

// Upsert replaces the named section in place, or appends it with exactly
// one blank line separating it from the previous section. The managed
// file marker is added once and never duplicated.
func (s *Store) Upsert(section string, creds Credentials) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return err
	}

	content := ""
	if b, err := os.ReadFile(s.path); err == nil {
		content = string(b)
	} else if !os.IsNotExist(err) {
		return err
	}

	content = s.ensureMarker(content)
	body := sectionBody(section, creds)

	if start, end, ok := sectionBounds(content, section); ok {
		replacement := body
		if end < len(content) {
			// one blank line before the next section header
			replacement += "\n"
		}
		content = content[:start] + replacement + content[end:]
	} else {
		content = strings.TrimRight(content, "\n") + "\n\n" + body
	}

	return os.WriteFile(s.path, []byte(content), 0600)
}

// Remove deletes the named section. A missing file or section is a
// logged no-op, not an error.
func (s *Store) Remove(section string) error {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.log.Debug("credentials file does not exist, nothing to remove")
			return nil
		}
		return err
	}

	content := string(b)
	start, end, ok := sectionBounds(content, section)
	if !ok {
		s.log.WithField("section", section).Debug("section not found in credentials file")
		return nil
	}

	content = content[:start] + content[end:]
	content = strings.TrimRight(content, " \t\n") + "\n"
	return os.WriteFile(s.path, []byte(content), 0600)
}

// Read parses the three credential fields out of the named section. A
// missing section, or a section missing any of the three fields, yields
// (nil, nil) - hand-edited partial sections are treated as absent.
func (s *Store) Read(section string) (*Credentials, error) {
	body, ok, err := s.sectionContent(section)
	if err != nil || !ok {
		return nil, err
	}

	ak := accessKeyRe.FindStringSubmatch(body)
	sk := secretKeyRe.FindStringSubmatch(body)
	st := sessionTokenRe.FindStringSubmatch(body)
	if ak == nil || sk == nil || st == nil {
		return nil, nil
	}

	return &Credentials{
		AccessKeyID:     strings.TrimSpace(ak[1]),
		SecretAccessKey: strings.TrimSpace(sk[1]),
		SessionToken:    strings.TrimSpace(st[1]),
	}, nil
}

func (s *Store) HasSection(section string) bool {
	_, ok, _ := s.sectionContent(section)
	return ok
}

// HasSessionToken reports whether the section carries a session token,
// distinguishing temporary sessions from long-lived credentials.
func (s *Store) HasSessionToken(section string) bool {
	body, ok, _ := s.sectionContent(section)
	return ok && sessionTokenRe.MatchString(body)
}

// BackupIfForeign copies a non-empty file without the managed marker to
// a timestamped sibling. It must run before the first write of the
// process lifetime and is idempotent: once the marker is present no
// further backups are taken.
func (s *Store) BackupIfForeign() (bool, string, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, "", nil
		}
		return false, "", err
	}

	content := string(b)
	if strings.TrimSpace(content) == "" || strings.Contains(content, s.marker) {
		return false, "", nil
	}

	stamp := time.Now().UTC().Format("2006-01-02T15-04-05")
	backupPath := fmt.Sprintf("%s.backup-%s", s.path, stamp)
	if err := os.WriteFile(backupPath, b, 0600); err != nil {
		return false, "", err
	}

	s.log.WithField("backup", backupPath).Info("backed up unmanaged credentials file")
	return true, backupPath, nil
}

func (s *Store) ensureMarker(content string) string {
	if content == "" {
		return s.marker + "\n"
	}
	if strings.Contains(content, s.marker) {
		return content
	}
	return s.marker + "\n\n" + content
}

func (s *Store) sectionContent(section string) (string, bool, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, err
	}
	content := string(b)
	start, end, ok := sectionBounds(content, section)
	if !ok {
		return "", false, nil
	}
	return content[start:end], true, nil
}

// sectionBounds locates the named section: from its header up to (but
// not including) the next '[' at start of line, or end of file.
func sectionBounds(content, section string) (start, end int, ok bool) {
	header := "[" + section + "]"
	start = -1
	if strings.HasPrefix(content, header) {
		start = 0
	} else if i := strings.Index(content, "\n"+header); i >= 0 {
		start = i + 1
	}
	if start < 0 {
		return 0, 0, false
	}

	rest := content[start+len(header):]
	if i := strings.Index(rest, "\n["); i >= 0 {
		return start, start + len(header) + i + 1, true
	}
	return start, len(content), true
}

func sectionBody(section string, c Credentials) string {
	return fmt.Sprintf(
		"[%s]\naws_access_key_id = %s\naws_secret_access_key = %s\naws_session_token = %s\n%s%s\n",
		section,
		c.AccessKeyID,
		c.SecretAccessKey,
		c.SessionToken,
		expiryCommentPrefix,
		c.Expiration.UTC().Format(time.RFC3339),
	)
}
