// Command osdbctl is the thin operational CLI for an osdbd instance:
// start/stop/status for daemon lifecycle, plus a raw-data-file dump for
// replication bootstrap diagnostics. It is not a SQL client — it only
// talks to the instance for lifecycle and diagnostics, the way cmd/bd's
// daemon subcommands do for its own daemon, never running queries
// itself.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	dbDir      string
	dbName     string
	socketPath string
	pidFile    string
)

var rootCmd = &cobra.Command{
	Use:   "osdbctl",
	Short: "Operational CLI for an osdbd instance",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbDir, "db-dir", ".osdb", "database directory")
	rootCmd.PersistentFlags().StringVar(&dbName, "db-name", "", "database name to negotiate with HELLO")
	rootCmd.PersistentFlags().StringVar(&socketPath, "socket", "", "rendezvous socket path (defaults under db-dir)")
	rootCmd.PersistentFlags().StringVar(&pidFile, "pid-file", "", "pid file path (defaults under db-dir)")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(rawDumpCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
