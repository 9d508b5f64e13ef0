package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/jonahharris/osdb-backplane-sub001/internal/daemonlock"
)

func resolveSocketPath() string {
	if socketPath != "" {
		return socketPath
	}
	return filepath.Join(dbDir, "osdbd.sock")
}

func resolvePIDFilePath() string {
	if pidFile != "" {
		return pidFile
	}
	return filepath.Join(dbDir, "osdbd.pid")
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the osdbd instance for this database directory",
	Run: func(cmd *cobra.Command, args []string) {
		if running, pid := daemonlock.IsRunning(resolvePIDFilePath()); running {
			fmt.Fprintf(os.Stderr, "Error: daemon already running (PID %d)\n", pid)
			os.Exit(1)
		}

		osdbdPath, err := exec.LookPath("osdbd")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: osdbd not found on PATH: %v\n", err)
			os.Exit(1)
		}

		startArgs := []string{"start", "--db-dir", dbDir}
		if dbName != "" {
			startArgs = append(startArgs, "--db-name", dbName)
		}
		if socketPath != "" {
			startArgs = append(startArgs, "--socket", socketPath)
		}
		if pidFile != "" {
			startArgs = append(startArgs, "--pid-file", pidFile)
		}

		c := exec.Command(osdbdPath, startArgs...) // #nosec G204 - osdbd resolved from PATH, a trusted sibling binary
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running osdbd instance",
	Run: func(cmd *cobra.Command, args []string) {
		pidPath := resolvePIDFilePath()
		running, pid := daemonlock.IsRunning(pidPath)
		if !running {
			fmt.Println("Daemon is not running")
			return
		}

		fmt.Printf("Stopping daemon (PID %d)...\n", pid)
		proc, err := os.FindProcess(pid)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding process: %v\n", err)
			os.Exit(1)
		}
		if err := proc.Signal(syscall.SIGTERM); err != nil {
			fmt.Fprintf(os.Stderr, "Error signaling daemon: %v\n", err)
			os.Exit(1)
		}

		for i := 0; i < 30; i++ {
			time.Sleep(200 * time.Millisecond)
			if running, _ := daemonlock.IsRunning(pidPath); !running {
				fmt.Println("Daemon stopped")
				return
			}
		}

		fmt.Fprintf(os.Stderr, "Warning: daemon did not stop in time, forcing termination\n")
		if err := proc.Kill(); err != nil && !strings.Contains(err.Error(), "process already finished") {
			fmt.Fprintf(os.Stderr, "Error killing process: %v\n", err)
		}
		_ = os.Remove(pidPath)
		_ = os.Remove(resolveSocketPath())
		fmt.Println("Daemon killed")
	},
}

// statusHeading returns a short decorative prefix only when stdout is
// an interactive terminal; scripted callers piping this output get a
// plain, stable line instead.
func statusHeading() string {
	if term.IsTerminal(int(os.Stdout.Fd())) {
		return "* "
	}
	return ""
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show osdbd instance status",
	Run: func(cmd *cobra.Command, args []string) {
		pidPath := resolvePIDFilePath()
		heading := statusHeading()
		if running, pid := daemonlock.IsRunning(pidPath); running {
			fmt.Printf("%sDaemon is running (PID %d)\n", heading, pid)
			if info, err := os.Stat(pidPath); err == nil {
				fmt.Printf("  Started: %s\n", info.ModTime().Format("2006-01-02 15:04:05"))
			}
			fmt.Printf("  Socket: %s\n", resolveSocketPath())
			return
		}
		fmt.Printf("%sDaemon is not running\n", heading)
	},
}
