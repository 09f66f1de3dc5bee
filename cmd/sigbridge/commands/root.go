package commands

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"sigbridge/internal/app"
	"sigbridge/internal/config"
	"sigbridge/internal/logging"
)

var (
	home         string
	configPath   string
	passphrase   string
	directoryURL string
	name         string

	appCtx    *app.App
	logCloser io.Closer
)

// Execute runs the root command. Interrupts cancel in-flight directory calls.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return execute(ctx, newRoot())
}

// execute runs root and then releases whatever PersistentPreRunE opened,
// whether or not the subcommand failed.
func execute(ctx context.Context, root *cobra.Command) error {
	err := root.ExecuteContext(ctx)
	if appCtx != nil {
		err = errors.Join(err, appCtx.Close())
		appCtx = nil
	}
	if logCloser != nil {
		err = errors.Join(err, logCloser.Close())
		logCloser = nil
	}
	return err
}

func newRoot() *cobra.Command {
	root := &cobra.Command{
		Use:          "sigbridge",
		Short:        "Signal-protocol sessions over pluggable stores",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			log, closer, err := logging.New(cfg.LoggingConfig(""))
			if err != nil {
				return err
			}
			logCloser = closer

			if passphrase == "" {
				passphrase = os.Getenv(config.EnvPrefix + "PASSPHRASE")
			}
			appCtx, err = app.Open(app.Options{Config: cfg, Passphrase: passphrase, Logger: log})
			return err
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&home, "home", "", "state directory (default ~/.sigbridge)")
	pf.StringVar(&configPath, "config", "", "config file (default <home>/config.toml)")
	pf.StringVarP(&passphrase, "passphrase", "p", "", "vault passphrase (or SIGBRIDGE_PASSPHRASE)")
	pf.StringVar(&directoryURL, "directory", "", "prekey directory base URL (e.g. http://127.0.0.1:8080)")
	pf.StringVar(&name, "name", "", "local identity name")

	root.AddCommand(
		initCmd(),
		fingerprintCmd(),
		bundleCmd(),
		publishCmd(),
		sessionCmd(),
		encryptCmd(),
		decryptCmd(),
		resetCmd(),
		sessionsCmd(),
	)
	return root
}

// loadConfig resolves the config file and lets flags win over it.
func loadConfig() (*config.Config, error) {
	h := home
	if h == "" {
		h = os.Getenv(config.EnvPrefix + "HOME")
	}
	if h == "" {
		h = config.DefaultHome()
	}
	path := configPath
	if path == "" {
		path = config.Path(h)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if home != "" {
		cfg.Home = home
	}
	if directoryURL != "" {
		cfg.Directory.URL = directoryURL
	}
	if name != "" {
		cfg.Identity.Name = name
	}
	return cfg, cfg.Validate()
}
