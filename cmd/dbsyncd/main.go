// Command dbsyncd is the replication daemon's process entrypoint:
// cobra-based CLI wiring, pidfile/signal plumbing, and nothing else — the
// replication engine itself lives in internal/.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Limetric/dbsyncd/internal/config"
	"github.com/Limetric/dbsyncd/internal/daemon"
	"github.com/Limetric/dbsyncd/internal/logging"
)

var configPath string
var pidFilePath string

var rootCmd = &cobra.Command{
	Use:   "dbsyncd",
	Short: "continuous source-to-target database replication daemon",
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "load the configuration and run the daemon until signalled to stop",
	RunE:  runDaemon,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "report whether a dbsyncd daemon appears to be running (via pidfile)",
	RunE:  runStatus,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "dbsyncd.toml", "path to the TOML configuration file")
	rootCmd.PersistentFlags().StringVar(&pidFilePath, "pidfile", "./.db-sync/service.pid", "path to the daemon pidfile")
	rootCmd.AddCommand(runCmd, statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runDaemon(cmd *cobra.Command, args []string) error {
	store, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	settings := store.GetSettings()
	logger, err := logging.New(settings.LogLevel)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync()
	log := logger.GetChildLogger("daemon")

	if err := acquirePIDFile(pidFilePath); err != nil {
		return err
	}
	defer releasePIDFile(pidFilePath)

	sup := daemon.New(store, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	if err := sup.StartAll(ctx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}
	log.Infow("dbsyncd started", "config", configPath)

	sig := <-sigCh
	log.Infow("received signal, shutting down", "signal", sig.String())

	stopCtx, stopCancel := context.WithCancel(context.Background())
	defer stopCancel()
	if err := sup.StopAll(stopCtx); err != nil {
		log.Errorw("error stopping workers", "error", err)
	}
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(pidFilePath)
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Println("not running (no pidfile)")
			return nil
		}
		return fmt.Errorf("read pidfile: %w", err)
	}

	pid, err := strconv.Atoi(string(data))
	if err != nil {
		return fmt.Errorf("pidfile %q has invalid contents", pidFilePath)
	}

	if processAlive(pid) {
		fmt.Printf("running (pid %d)\n", pid)
	} else {
		fmt.Printf("not running (stale pidfile, pid %d)\n", pid)
	}
	return nil
}

// acquirePIDFile refuses to start a second daemon against the same
// pidfile path when an existing one is still alive.
func acquirePIDFile(path string) error {
	if existing, err := os.ReadFile(path); err == nil {
		if pid, convErr := strconv.Atoi(string(existing)); convErr == nil && processAlive(pid) {
			return fmt.Errorf("dbsyncd already running (pid %d, pidfile %s)", pid, path)
		}
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create pidfile directory: %w", err)
		}
	}

	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func releasePIDFile(path string) {
	_ = os.Remove(path)
}

func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
