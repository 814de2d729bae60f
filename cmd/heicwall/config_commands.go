package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ivlev/heicwall/internal/config"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Работа с конфигурацией",
	}
	configCmd.AddCommand(newConfigSampleCommand())
	configCmd.AddCommand(newConfigValidateCommand(ctx))
	return configCmd
}

func newConfigSampleCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "sample",
		Short:       "Напечатать пример config.toml",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprint(cmd.OutOrStdout(), config.SampleConfig())
			return err
		},
	}
}

func newConfigValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:         "validate",
		Short:       "Проверить файл конфигурации",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			var path string
			if ctx.configFlag != nil {
				path = *ctx.configFlag
			}
			cfg, resolved, exists, err := config.Load(path)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if exists {
				fmt.Fprintf(out, "[+] Конфигурация корректна: %s\n", resolved)
			} else {
				fmt.Fprintf(out, "[*] Файл %s не найден, используются значения по умолчанию\n", resolved)
			}
			fmt.Fprintf(out, "    quality=%d resize_mode=%s workers=%d encoder=%s dpi=%d\n",
				cfg.Quality, cfg.ResizeMode, cfg.Workers, cfg.VideoEncoder, cfg.DPI)
			return nil
		},
	}
}
