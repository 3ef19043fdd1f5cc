package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"

	"github.com/DevLabFoundry/aws-session-keeper/internal/capture"
	"github.com/DevLabFoundry/aws-session-keeper/internal/credstore"
	"github.com/DevLabFoundry/aws-session-keeper/internal/federation"
	"github.com/DevLabFoundry/aws-session-keeper/internal/lifecycle"
	"github.com/DevLabFoundry/aws-session-keeper/internal/profile"
	"github.com/DevLabFoundry/aws-session-keeper/internal/web"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	Version  string = "0.0.1"
	Revision string = "1111aaaa"
)

var ErrUnableToCreateSession = errors.New("sts - cannot start a new session")

type Root struct {
	Cmd       *cobra.Command
	rootFlags *rootCmdFlags
	Datadir   string
}

type rootCmdFlags struct {
	configFile      string
	credentialsFile string
	verbose         bool
	duration        int
}

func New() *Root {
	rf := &rootCmdFlags{}
	r := &Root{
		rootFlags: rf,
		Cmd: &cobra.Command{
			Use:   "aws-session-keeper",
			Short: "Manages federated AWS sessions in the shared credentials file",
			Long: `Manages federated AWS sessions in the shared credentials file.
Captures a SAML assertion through your IdP login, exchanges it for temporary credentials,
writes them to $HOME/.aws/credentials and keeps them renewed until you deactivate the profile.`,
			Version:       fmt.Sprintf("%s-%s", Version, Revision),
			SilenceUsage:  true,
			SilenceErrors: true,
		},
	}

	r.Cmd.PersistentFlags().StringVarP(&rf.configFile, "config", "c", "", "Override the default profile config file location ($HOME/.aws-session-keeper/config.ini)")
	r.Cmd.PersistentFlags().StringVarP(&rf.credentialsFile, "credentials-file", "", "", "Override the default shared credentials file location ($HOME/.aws/credentials)")
	r.Cmd.PersistentFlags().IntVarP(&rf.duration, "max-duration", "d", 0, `Override the requested session duration, in seconds [900-43200].
Defaults to 43200 or the SESSION_KEEPER_SESSION_DURATION env var`)
	r.Cmd.PersistentFlags().BoolVarP(&rf.verbose, "verbose", "v", false, "Verbose output")
	r.Cmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if rf.verbose {
			logrus.SetLevel(logrus.DebugLevel)
		}
	}
	_ = r.dataDirInit()
	return r
}

// SubCommands is a standalone Builder helper
//
// IF you are making your sub commands public, you can just pass them directly `WithSubCommands`
func SubCommands() []func(*Root) {
	return []func(*Root){
		newProfileCmd,
		newActivateCmd,
		newDeactivateCmd,
		newValidateCmd,
		newConsoleCmd,
		newSettingsCmd,
		newDaemonCmd,
	}
}

func (r *Root) WithSubCommands(iocFuncs ...func(rootCmd *Root)) {
	for _, fn := range iocFuncs {
		fn(r)
	}
}

func (r *Root) Execute(ctx context.Context) error {
	return r.Cmd.ExecuteContext(ctx)
}

func (r *Root) dataDirInit() error {
	datadir := path.Join(lifecycle.HomeDir(), fmt.Sprintf(".%s-data", lifecycle.SELF_NAME))
	if _, err := os.Stat(datadir); err != nil {
		if err := os.MkdirAll(datadir, 0755); err != nil {
			return err
		}
	}
	r.Datadir = datadir
	return nil
}

func (r *Root) configFile() string {
	if r.rootFlags.configFile != "" {
		return r.rootFlags.configFile
	}
	return lifecycle.DefaultConfigFile()
}

func (r *Root) credentialsFile() string {
	if r.rootFlags.credentialsFile != "" {
		return r.rootFlags.credentialsFile
	}
	return lifecycle.DefaultCredentialsFile()
}

// profileStore is enough for the commands that never touch the
// credentials file or the network.
func (r *Root) profileStore() (*profile.Store, error) {
	return profile.NewStore(r.configFile())
}

// buildManager wires the full lifecycle stack: profile registry,
// credentials file, browser surface factory and the STS client. The
// STS calls are unsigned, the assertion is the credential.
func (r *Root) buildManager(ctx context.Context) (*lifecycle.Manager, error) {
	profiles, err := r.profileStore()
	if err != nil {
		return nil, err
	}
	creds := credstore.New(r.credentialsFile(), lifecycle.FILE_MARKER)

	awsConf, err := config.LoadDefaultConfig(ctx, config.WithCredentialsProvider(aws.AnonymousCredentials{}))
	if err != nil {
		return nil, fmt.Errorf("failed to create session %s, %w", err, ErrUnableToCreateSession)
	}
	svc := sts.NewFromConfig(awsConf)

	factory := func(ctx context.Context, silent bool) (capture.LoginSurface, error) {
		conf := web.NewWebConf(r.Datadir)
		if silent {
			conf = conf.WithHeadless()
		}
		return web.NewSurface(ctx, conf)
	}

	m := lifecycle.NewManager(ctx, profiles, creds, factory,
		federation.NewExchanger(svc), federation.NewConsole(lifecycle.SELF_NAME), &logNotifier{})
	if r.rootFlags.duration > 0 {
		m.WithDuration(int32(r.rootFlags.duration))
	}
	if err := m.EnsureBackup(); err != nil {
		logrus.WithError(err).Warn("could not back up the credentials file")
	}
	return m, nil
}

// logNotifier reports renewal outcomes through the structured log.
type logNotifier struct{}

func (n *logNotifier) RenewalSucceeded(alias string) {
	logrus.WithField("alias", alias).Info("session renewed")
}

func (n *logNotifier) RenewalFailed(alias string) {
	logrus.WithField("alias", alias).Error("session renewal failed, credentials will expire")
}
