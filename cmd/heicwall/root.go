package main

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/ivlev/heicwall/internal/config"
)

type commandContext struct {
	configFlag *string
	verbose    *bool
	stderr     io.Writer

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		cfg.BuildVersion = version
		c.config = cfg
	})
	return c.config, c.configErr
}

// logger пишет в stderr; без --verbose видны только ошибки,
// предупреждения CLI печатает сам.
func (c *commandContext) logger() *slog.Logger {
	level := slog.LevelError
	if c.verbose != nil && *c.verbose {
		level = slog.LevelDebug
	}
	w := c.stderr
	if w == nil {
		w = os.Stderr
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func newRootCommand() *cobra.Command {
	var configFlag string
	var verbose bool

	ctx := &commandContext{configFlag: &configFlag, verbose: &verbose}

	rootCmd := &cobra.Command{
		Use:           "heicwall",
		Short:         "Сборка динамических обоев macOS (HEIC) из набора кадров",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			ctx.stderr = cmd.ErrOrStderr()
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Путь к файлу конфигурации (по умолчанию $XDG_CONFIG_HOME/heicwall/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Подробный лог в stderr")

	rootCmd.AddCommand(newBuildCommand(ctx))
	rootCmd.AddCommand(newInspectCommand())
	rootCmd.AddCommand(newConfigCommand(ctx))

	return rootCmd
}
