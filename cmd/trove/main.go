// Command trove inspects and edits trove stores.
//
//	trove set notes n1 title "Groceries"
//	trove ls notes n1
//	trove --backend sqlite --path notes.db dump notes n1
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/jpl-au/trove"
)

// cli carries flags and the open store through one invocation.
type cli struct {
	configPath string
	backend    string
	path       string
	app        string
	verbose    bool

	cfg    Config
	logger *zap.Logger
	open   *backend
	store  *trove.Store
}

func main() {
	c := &cli{}
	err := newRootCmd(c).Execute()
	// PersistentPostRunE is skipped when a command fails.
	c.teardown()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:   "trove",
		Short: "Inspect and edit application/object/property stores",
		Long: `trove reads and writes structured records kept in a flat key-value store.

Records are addressed as application, object and property. Every command
taking an application name may omit it when one is configured with --app
or the "app" config key.`,
		SilenceUsage:      true,
		PersistentPreRunE: c.setup,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return c.teardown()
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&c.configPath, "config", "", "YAML config file")
	f.StringVar(&c.backend, "backend", "", "substrate: file, sqlite, bolt, mem, dynamo, s3")
	f.StringVar(&c.path, "path", "", "database path for file, sqlite and bolt backends")
	f.StringVar(&c.app, "app", "", "default application name")
	f.BoolVarP(&c.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		c.getCmd(),
		c.setCmd(),
		c.rmCmd(),
		c.lsCmd(),
		c.existsCmd(),
		c.keysCmd(),
		c.dumpCmd(),
		c.compactCmd(),
	)
	return root
}

// setup merges config and flags, builds the logger and opens the store.
func (c *cli) setup(cmd *cobra.Command, args []string) error {
	c.cfg = DefaultConfig()
	if c.configPath != "" {
		cfg, err := LoadConfig(c.configPath)
		if err != nil {
			return err
		}
		c.cfg = cfg
	}

	flags := cmd.Flags()
	if flags.Changed("backend") {
		c.cfg.Backend = c.backend
	}
	if flags.Changed("path") {
		c.cfg.Path = c.path
	}
	if flags.Changed("app") {
		c.cfg.App = c.app
	}
	if flags.Changed("verbose") {
		c.cfg.Verbose = c.verbose
	}
	if err := c.cfg.validate(); err != nil {
		return err
	}

	if c.logger == nil {
		config := zap.NewProductionConfig()
		if c.cfg.Verbose {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		logger, err := config.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		c.logger = logger
	}

	open, err := openBackend(context.Background(), c.cfg, c.logger)
	if err != nil {
		return fmt.Errorf("open %s backend: %w", c.cfg.Backend, err)
	}
	c.open = open

	store, err := trove.New(open.flat, trove.Config{Logger: c.logger})
	if err != nil {
		open.close()
		return err
	}
	c.store = store
	c.logger.Debug("opened store", zap.String("backend", c.cfg.Backend), zap.String("path", c.cfg.Path))
	return nil
}

func (c *cli) teardown() error {
	var err error
	if c.open != nil {
		err = c.open.close()
		c.open = nil
	}
	if c.logger != nil {
		_ = c.logger.Sync()
	}
	return err
}
