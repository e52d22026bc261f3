// Command msgcore is the single binary housing every message-core service
// (gateway, ingest, dispatcher, front door) as a cobra subcommand, generalising
// the teacher's single cmd/main.go into a multi-service entrypoint sharing
// config loading, logging, and graceful-shutdown wiring.
package main

import (
	"fmt"
	"os"

	_ "go.uber.org/automaxprocs"

	"github.com/spf13/cobra"
)

var (
	globalConfigPath  string
	serviceConfigPath string
)

func main() {
	root := &cobra.Command{
		Use:   "msgcore",
		Short: "Message-core service binaries",
	}
	root.PersistentFlags().StringVar(&globalConfigPath, "config", "", "path to the global config file")
	root.PersistentFlags().StringVar(&serviceConfigPath, "override", "", "path to a per-service config override file")

	root.AddCommand(
		newGatewayCmd(),
		newIngestCmd(),
		newDispatcherCmd(),
		newFrontDoorCmd(),
		newMigrateCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
