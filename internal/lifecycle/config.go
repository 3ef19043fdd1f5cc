package lifecycle

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/sirupsen/logrus"
)

const (
	SELF_NAME   = "aws-session-keeper"
	FILE_MARKER = "# Managed by aws-session-keeper"
	// SESSION_DURATION_VAR overrides the requested session duration in
	// seconds.
	SESSION_DURATION_VAR     = "SESSION_KEEPER_SESSION_DURATION"
	DEFAULT_SESSION_DURATION = int32(43200)
)

func HomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}

// DefaultCredentialsFile is the shared credentials file this tool
// manages sections in.
func DefaultCredentialsFile() string {
	return filepath.Join(HomeDir(), ".aws", "credentials")
}

// DefaultConfigFile holds the profile definitions and renewal settings.
func DefaultConfigFile() string {
	return filepath.Join(HomeDir(), "."+SELF_NAME, "config.ini")
}

// SessionDurationSeconds returns the requested session lifetime,
// honouring the environment override when it parses.
func SessionDurationSeconds() int32 {
	if v, exists := os.LookupEnv(SESSION_DURATION_VAR); exists {
		if parsed, err := strconv.ParseInt(v, 10, 32); err == nil && parsed > 0 {
			return int32(parsed)
		}
		logrus.WithField("value", v).Warn("ignoring unparsable session duration override")
	}
	return DEFAULT_SESSION_DURATION
}
