// Package cli implements the flowd command-line interface.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "flowd",
	Short: "Workflow automation platform server",
	Long: `flowd runs visual workflow automations built from blocks and edges.

Features:
  • Workflow graphs with loop and parallel containers
  • Versioned deployments with rollback
  • Live execution streaming over SSE and WebSocket
  • Copilot chat assistance
  • Template marketplace and inbound webhooks

Quick start:
  flowd init                  Write a default .flowd/flowd.yaml
  flowd serve                 Start the API server
  flowd workflows list        List workflows in a workspace`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .flowd/flowd.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(newInitCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newWorkflowsCmd())
	rootCmd.AddCommand(newAPIKeyCmd())
	rootCmd.AddCommand(newVersionCmd())
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".flowd")
		viper.AddConfigPath("$HOME/.flowd")
		viper.SetConfigType("yaml")
		viper.SetConfigName("flowd")
	}

	viper.SetEnvPrefix("FLOWD")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		if verbose {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}
}
