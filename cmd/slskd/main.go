package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/slskd/slskgo/pkg/config"
	"github.com/slskd/slskgo/pkg/daemon"
	"github.com/slskd/slskgo/pkg/log"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "slskd",
	Short: "slskd - a Soulseek sharing daemon",
	Long: `slskd shares files on the Soulseek network: it indexes local
directories, answers peer searches, schedules uploads fairly across
user groups, and can pool the shares of several machines behind one
login through its relay.

Configuration lives in a YAML file that is reloaded while running; an
HTTP API exposes state, searches, options, and the relay transport.`,
	Version: Version,
}

func init() {
	// Set version template
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"slskd version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the sharing daemon",
	Long: `Run the daemon: index the configured shares, keep the server
connection alive, and serve the HTTP API.

The process exits 0 on a normal shutdown and 3 when a restart was
requested over the API, so a supervisor can relaunch it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dataDir, _ := cmd.Flags().GetString("data-dir")
		configPath, _ := cmd.Flags().GetString("config")
		listenAddr, _ := cmd.Flags().GetString("listen")

		if configPath == "" {
			configPath = filepath.Join(dataDir, "slskd.yml")
		}

		opts, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %v", err)
		}

		level := opts.Logging.Level
		if opts.Debug {
			level = "debug"
		}
		buffer := log.NewBuffer(opts.Logging.BufferSize)
		log.Init(log.Config{
			Level:      log.Level(level),
			JSONOutput: opts.Logging.JSON,
			Buffer:     buffer,
		})

		fmt.Printf("slskd %s\n", Version)
		fmt.Printf("  Config: %s\n", configPath)
		fmt.Printf("  Data Directory: %s\n", dataDir)
		fmt.Println()

		d, err := daemon.New(daemon.Config{
			ConfigPath: configPath,
			DataDir:    dataDir,
			ListenAddr: listenAddr,
			Version:    Version,
			Options:    opts,
			Logs:       buffer,
		})
		if err != nil {
			return fmt.Errorf("failed to create daemon: %v", err)
		}

		d.Start()

		// Wait for interrupt signal or an exit request from the daemon
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case <-sigCh:
			fmt.Println("\nShutting down...")
		case <-d.Done():
		}

		d.Stop()

		code, err := d.ExitState()
		if err != nil {
			return err
		}
		if code != daemon.ExitNormal {
			os.Exit(code)
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().String("config", "", "Path to the YAML config file (default <data-dir>/slskd.yml)")
	serveCmd.Flags().String("data-dir", "./slskd-data", "Directory for persistent state")
	serveCmd.Flags().String("listen", "", "HTTP listen address override (default :<web.port>)")
}
