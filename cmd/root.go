// -- cmd/root.go --
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/aegiscore/internal/config"
	"github.com/xkilldash9x/aegiscore/internal/observability"
	"github.com/xkilldash9x/aegiscore/internal/service"
)

type contextKey string

const configKey contextKey = "config"

// componentFactory wires the core for every command that needs it.
var componentFactory service.ComponentFactory = service.NewComponentFactory()

// newRootCmd builds the command tree. A fresh tree per call keeps tests isolated.
func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:           "aegiscore",
		Short:         "AegisCore detects, scores and tracks network threats.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			config.SetDefaults(v)

			if err := initializeConfig(v, cfgFile); err != nil {
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}

			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				return fmt.Errorf("failed to load or validate config: %w", err)
			}
			if err := applyFlagOverrides(cmd, cfg); err != nil {
				return err
			}

			observability.InitializeLogger(cfg.Logger())
			observability.GetLogger().Debug("Starting AegisCore", zap.String("version", Version))

			cmd.SetContext(context.WithValue(cmd.Context(), configKey, cfg))
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	cmd.PersistentFlags().String("database-url", "", "primary store connection string (overrides database.url)")
	cmd.PersistentFlags().String("fallback", "", "fallback snapshot path (overrides storage.fallback_path)")
	cmd.SetVersionTemplate(`{{printf "%s version %s\n" .Name .Version}}`)

	cmd.AddCommand(newDetectCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newAlertsCmd())
	cmd.AddCommand(newTopologyCmd())
	return cmd
}

// Execute runs the root command with a signal-aware context.
func Execute(ctx context.Context) error {
	err := newRootCmd().ExecuteContext(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		observability.GetLogger().Error("Command execution failed", zap.Error(err))
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	observability.Sync()
	return err
}

// initializeConfig reads in config file and ENV variables if set.
func initializeConfig(v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("AEGIS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; proceed with defaults/env vars
	}
	return nil
}

// applyFlagOverrides copies explicitly set flags onto cfg and revalidates it.
func applyFlagOverrides(cmd *cobra.Command, cfg config.Interface) error {
	flags := cmd.Flags()
	if f := flags.Lookup("database-url"); f != nil && f.Changed {
		cfg.SetDatabaseURL(f.Value.String())
	}
	if f := flags.Lookup("fallback"); f != nil && f.Changed {
		cfg.SetStorageFallbackPath(f.Value.String())
	}
	if f := flags.Lookup("batch-size"); f != nil && f.Changed {
		n, err := flags.GetInt("batch-size")
		if err != nil {
			return err
		}
		cfg.SetDetectionBatchSize(n)
	}
	if f := flags.Lookup("addr"); f != nil && f.Changed {
		cfg.SetServerAddr(f.Value.String())
	}
	if c, ok := cfg.(*config.Config); ok {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("invalid flag override: %w", err)
		}
	}
	return nil
}

// getConfigFromContext returns the configuration loaded by PersistentPreRunE.
func getConfigFromContext(ctx context.Context) (config.Interface, error) {
	cfg, ok := ctx.Value(configKey).(config.Interface)
	if !ok || cfg == nil {
		return nil, errors.New("configuration not found in context")
	}
	return cfg, nil
}
