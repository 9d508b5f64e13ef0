package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonahharris/osdb-backplane-sub001/internal/daemonlock"
)

const (
	daemonShutdownAttempts      = 30
	daemonShutdownPollInterval  = 200 * time.Millisecond
	daemonStartConfirmAttempts  = 30
	daemonStartConfirmPollEvery = 100 * time.Millisecond
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

func resolveDBName() string {
	if dbName != "" {
		return dbName
	}
	abs, err := filepath.Abs(dbDir)
	if err != nil {
		return filepath.Base(dbDir)
	}
	return filepath.Base(abs)
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the instance daemon",
	Run: func(cmd *cobra.Command, args []string) {
		pidPath := resolvePIDFilePath()

		if os.Getenv("OSDBD_FOREGROUND") != "1" {
			if running, pid := daemonlock.IsRunning(pidPath); running {
				fmt.Fprintf(os.Stderr, "Error: daemon already running (PID %d)\n", pid)
				fmt.Fprintf(os.Stderr, "Use 'osdbd stop' to stop it first\n")
				os.Exit(1)
			}
		}

		if foreground || os.Getenv("OSDBD_FOREGROUND") == "1" {
			runDaemonLoop()
			return
		}
		forkBackground(pidPath)
	},
}

func init() {
	startCmd.Flags().BoolVar(&foreground, "foreground", false, "run in the foreground instead of daemonizing")
}

// forkBackground re-execs the current binary with OSDBD_FOREGROUND=1
// so the running daemon is a clean child process detached from this
// CLI invocation, the way cmd/bd's startDaemon forks itself.
func forkBackground(pidPath string) {
	exe, err := os.Executable()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot resolve executable path: %v\n", err)
		os.Exit(1)
	}

	args := []string{"start", "--db-dir", dbDir, "--db-id", strconv.Itoa(dbID)}
	if dbName != "" {
		args = append(args, "--db-name", dbName)
	}
	if socketPath != "" {
		args = append(args, "--socket", socketPath)
	}
	if pidFile != "" {
		args = append(args, "--pid-file", pidFile)
	}
	if logFile != "" {
		args = append(args, "--log", logFile)
	}
	if logLevel != "" && logLevel != "info" {
		args = append(args, "--log-level", logLevel)
	}

	child := exec.Command(exe, args...) // #nosec G204 - re-exec of the daemon's own trusted binary
	child.Env = append(os.Environ(), "OSDBD_FOREGROUND=1")

	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening /dev/null: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = devNull.Close() }()
	child.Stdin = devNull
	child.Stdout = devNull
	child.Stderr = devNull

	if err := child.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Error starting daemon: %v\n", err)
		os.Exit(1)
	}
	expectedPID := child.Process.Pid
	_ = child.Process.Release()

	for i := 0; i < daemonStartConfirmAttempts; i++ {
		time.Sleep(daemonStartConfirmPollEvery)
		if data, err := os.ReadFile(pidPath); err == nil {
			if pid, err := strconv.Atoi(strings.TrimSpace(string(data))); err == nil && pid == expectedPID {
				fmt.Printf("Daemon started (PID %d)\n", expectedPID)
				return
			}
		}
	}
	fmt.Fprintf(os.Stderr, "Warning: daemon may have failed to start (PID file not confirmed)\n")
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the instance daemon",
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

		for i := 0; i < daemonShutdownAttempts; i++ {
			time.Sleep(daemonShutdownPollInterval)
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

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show instance daemon status",
	Run: func(cmd *cobra.Command, args []string) {
		pidPath := resolvePIDFilePath()
		if running, pid := daemonlock.IsRunning(pidPath); running {
			fmt.Printf("Daemon is running (PID %d)\n", pid)
			if info, err := os.Stat(pidPath); err == nil {
				fmt.Printf("  Started: %s\n", info.ModTime().Format("2006-01-02 15:04:05"))
			}
			fmt.Printf("  Socket: %s\n", resolveSocketPath())
			return
		}
		fmt.Println("Daemon is not running")
	},
}
