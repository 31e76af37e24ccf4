package cli

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"tugwar-quiz-service/internal/config"
	"tugwar-quiz-service/internal/logger"
)

const envPrefix = "TUGWAR"

// Execute runs the CLI.
func Execute() error {
	return newRootCmd().Execute()
}

// globalOptions resolves persistent flags, TUGWAR_* env vars and the YAML file.
type globalOptions struct {
	v *viper.Viper
}

func newRootCmd() *cobra.Command {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	opts := newGlobalOptions()

	cmd := &cobra.Command{
		Use:          "tugwar",
		Short:        "Two-team tug of war quiz service",
		SilenceUsage: true,
	}

	flags := cmd.PersistentFlags()
	flags.String("port", "", "port to listen on (overrides server.port)")
	flags.String("config", "config/config.yaml", "path to YAML config")
	flags.String("log-level", "", "log level (overrides log.level)")
	if err := bindFlags(opts.v, flags); err != nil {
		panic(err)
	}

	cmd.AddCommand(NewStartCmd(opts))
	cmd.AddCommand(NewMigrateCmd(opts))
	cmd.AddCommand(NewQuestionsCmd(opts))
	return cmd
}

func newGlobalOptions() *globalOptions {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return &globalOptions{v: v}
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	if err := v.BindPFlags(flags); err != nil {
		return fmt.Errorf("bind flags: %w", err)
	}
	return nil
}

// load reads the config file and applies flag/env overrides.
func (o *globalOptions) load() (config.Config, *logrus.Logger, error) {
	cfg, err := config.Load(o.v.GetString("config"))
	if err != nil {
		return cfg, nil, err
	}
	if port := o.v.GetString("port"); port != "" {
		cfg.Server.Port = port
	}
	if level := o.v.GetString("log-level"); level != "" {
		cfg.Log.Level = level
	}
	return cfg, logger.New(cfg.Log.Level, cfg.Log.Format), nil
}
