package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/statekit/statekit/cmd/kv"
	"github.com/statekit/statekit/cmd/util"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "statekit",
		Short: "validated key-value persistence",
		Long: fmt.Sprintf(`statekit (v%s)

A key-value persistence layer with schema validation, versioned
migration, value expiration and cross-context change notification,
backed by pluggable storage engines.`, Version),
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of statekit",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("statekit v%s\n", Version)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(kv.KeyValueCommands)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "log-level"
	RootCmd.PersistentFlags().String(key, "warn", util.WrapString("log level (debug, info, warn, error)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
