// Command osdbd is the instance daemon: the dinstance-equivalent
// process that owns one database directory, negotiates HELLO/
// OPEN_INSTANCE over a unix-domain rendezvous socket, and spawns a
// dispatcher goroutine per connected client (internal/dispatch).
// Its command surface mirrors cmd/bd's own daemon subcommand the way
// a long-running sibling process is managed: start (foreground or
// background), stop, status.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is overwritten at build time via -ldflags.
var Version = "dev"

var (
	dbDir      string
	dbName     string
	dbID       int
	socketPath string
	pidFile    string
	logFile    string
	logLevel   string
	foreground bool
)

var rootCmd = &cobra.Command{
	Use:   "osdbd",
	Short: "OSDB instance daemon",
	Long: `osdbd owns one database directory and serves the transactional
client protocol over a unix-domain socket. Run 'osdbd start' to launch
it, 'osdbd stop' to shut it down, and 'osdbd status' to check whether
it is running.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbDir, "db-dir", ".osdb", "database directory")
	rootCmd.PersistentFlags().StringVar(&dbName, "db-name", "", "database name HELLO negotiates against (defaults to db-dir's base name)")
	rootCmd.PersistentFlags().IntVar(&dbID, "db-id", 1, "physical database id stamped into every record")
	rootCmd.PersistentFlags().StringVar(&socketPath, "socket", "", "rendezvous socket path (defaults under db-dir)")
	rootCmd.PersistentFlags().StringVar(&pidFile, "pid-file", "", "pid file path (defaults under db-dir)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log", "", "log file path (default: stderr)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
