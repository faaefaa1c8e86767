// Package commands implements the autoscaled CLI's cobra command tree:
// run (the supervisor itself), config validate, and version.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string

	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "autoscaled",
	Short: "Autoscaling supervisor for queue worker processes",
	Long: `autoscaled watches one or more job queues (Redis lists or Kafka
consumer-group lag), decides a target worker count per queue on a fixed
tick, and spawns or terminates worker processes to match — with cooldowns,
hysteresis, and rate limits to keep scaling decisions stable.`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersionInfo wires build-time version info into the version command.
func SetVersionInfo(v, bt, gc string) {
	version, buildTime, gitCommit = v, bt, gc
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config.yaml (default: ./config.yaml or ./configs/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level override (debug, info, warn, error)")
	_ = viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("autoscaled %s (build %s, commit %s)\n", version, buildTime, gitCommit)
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and validate configuration",
}
