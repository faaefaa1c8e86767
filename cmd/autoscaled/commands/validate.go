package commands

import (
	"errors"
	"fmt"

	"github.com/autoscaled/autoscaled/internal/config"
	"github.com/spf13/cobra"
)

func init() {
	configCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Load and validate the configuration file, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				var cfgErr *config.ConfigError
				if errors.As(err, &cfgErr) {
					return fmt.Errorf("invalid configuration: %w", cfgErr)
				}
				return err
			}
			fmt.Printf("configuration is valid: %d queue(s) configured, tick=%.0fs\n", len(cfg.Queues), cfg.TickSeconds)
			return nil
		},
	})
}
