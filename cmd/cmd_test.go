package cmd_test

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/DevLabFoundry/aws-session-keeper/cmd"
)

func cmdHelperExecutor(t *testing.T, args []string) (stdOut *bytes.Buffer, errOut *bytes.Buffer, err error) {
	t.Helper()
	errOut = new(bytes.Buffer)
	stdOut = new(bytes.Buffer)
	c := cmd.New()
	c.WithSubCommands(cmd.SubCommands()...)
	c.Cmd.SetArgs(args)
	c.Cmd.SetErr(errOut)
	c.Cmd.SetOut(stdOut)
	err = c.Execute(context.Background())
	return stdOut, errOut, err
}

func Test_helpers_for_command(t *testing.T) {

	ttests := map[string]struct{}{
		"profile":    {},
		"activate":   {},
		"deactivate": {},
		"validate":   {},
		"console":    {},
		"settings":   {},
		"daemon":     {},
	}
	for name := range ttests {
		t.Run(name, func(t *testing.T) {
			cmdArgs := []string{name, "--help"}
			stdOut, errOut, err := cmdHelperExecutor(t, cmdArgs)
			if err != nil {
				t.Fatal(err)
			}
			errCheck, _ := io.ReadAll(errOut)
			if len(errCheck) > 0 {
				t.Fatal("got err, wanted nil")
			}
			outCheck, _ := io.ReadAll(stdOut)
			if len(outCheck) <= 0 {
				t.Fatalf("got empty, wanted a help message")
			}
		})
	}
}

func Test_ProfileCommand(t *testing.T) {
	configFlag := func(t *testing.T) string {
		t.Helper()
		return filepath.Join(t.TempDir(), "config.ini")
	}

	t.Run("add then list shows the profile", func(t *testing.T) {
		config := configFlag(t)
		_, _, err := cmdHelperExecutor(t, []string{"profile", "add", "work",
			"--config", config,
			"--profile-name", "work-readonly",
			"--role-arn", "arn:aws:iam::1234111111111:role/Role-ReadOnly",
			"--principal-arn", "arn:aws:iam::1234111111111:saml-provider/provider1",
			"--login-url", "https://idp.example.com/start"})
		if err != nil {
			t.Fatal(err)
		}

		stdOut, _, err := cmdHelperExecutor(t, []string{"profile", "list", "--config", config})
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(stdOut.String(), "work-readonly") {
			t.Errorf("got %q, wanted the added profile listed", stdOut.String())
		}
	})

	t.Run("adding the same alias twice fails", func(t *testing.T) {
		config := configFlag(t)
		addArgs := []string{"profile", "add", "work",
			"--config", config,
			"--profile-name", "work-readonly",
			"--role-arn", "arn:aws:iam::1234111111111:role/Role-ReadOnly",
			"--principal-arn", "arn:aws:iam::1234111111111:saml-provider/provider1",
			"--login-url", "https://idp.example.com/start"}
		if _, _, err := cmdHelperExecutor(t, addArgs); err != nil {
			t.Fatal(err)
		}
		if _, _, err := cmdHelperExecutor(t, addArgs); err == nil {
			t.Error("got nil, wanted an error on the duplicate alias")
		}
	})

	t.Run("add without required flags fails", func(t *testing.T) {
		_, _, err := cmdHelperExecutor(t, []string{"profile", "add", "work", "--config", configFlag(t)})
		if err == nil {
			t.Error("got nil, wanted an error for the missing flags")
		}
	})

	t.Run("update changes only the provided fields", func(t *testing.T) {
		config := configFlag(t)
		_, _, err := cmdHelperExecutor(t, []string{"profile", "add", "work",
			"--config", config,
			"--profile-name", "work-readonly",
			"--role-arn", "arn:aws:iam::1234111111111:role/Role-ReadOnly",
			"--principal-arn", "arn:aws:iam::1234111111111:saml-provider/provider1",
			"--login-url", "https://idp.example.com/start"})
		if err != nil {
			t.Fatal(err)
		}

		_, _, err = cmdHelperExecutor(t, []string{"profile", "update", "work",
			"--config", config,
			"--role-arn", "arn:aws:iam::1234111111111:role/Role-Admin"})
		if err != nil {
			t.Fatal(err)
		}

		stdOut, _, err := cmdHelperExecutor(t, []string{"profile", "list", "--config", config})
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(stdOut.String(), "work-readonly") {
			t.Errorf("got %q, wanted the untouched fields preserved", stdOut.String())
		}
	})

	t.Run("remove unknown alias fails", func(t *testing.T) {
		_, _, err := cmdHelperExecutor(t, []string{"profile", "remove", "missing", "--config", configFlag(t)})
		if err == nil {
			t.Error("got nil, wanted an error")
		}
	})
}

func Test_SettingsCommand(t *testing.T) {
	t.Run("get prints the defaults", func(t *testing.T) {
		config := filepath.Join(t.TempDir(), "config.ini")
		stdOut, _, err := cmdHelperExecutor(t, []string{"settings", "get", "--config", config})
		if err != nil {
			t.Fatal(err)
		}
		for _, want := range []string{"enabled: true", "lead-minutes: 13", "silent: true"} {
			if !strings.Contains(stdOut.String(), want) {
				t.Errorf("got %q, wanted it to contain %q", stdOut.String(), want)
			}
		}
	})
}
