package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/kubescape/go-logger"
	"github.com/kubescape/go-logger/helpers"
	"github.com/njit/courier/config"
	"github.com/njit/courier/core"
	"github.com/njit/courier/update"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	configDir string
	host      string
	port      int
	transport string

	cfg config.Client
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "courier",
	Short: "Talk to a courier server: chat, send files, upgrade",
	Long: `courier connects to a courier server over TCP (or websocket) and
exchanges base64 line frames with it.

Run "courier chat" for an interactive session. The hide, extract and scan
commands work on local BMP files and do not need a server.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		loaded, err := config.LoadConfig(configDir)
		if err != nil {
			logger.L().Debug("no configuration file, using defaults", helpers.Error(err))
		}
		cfg = loaded.Client
		if cmd.Flags().Changed("host") {
			cfg.Host = host
		}
		if cmd.Flags().Changed("port") {
			cfg.Port = port
		}
		if cmd.Flags().Changed("transport") {
			cfg.Transport = transport
		}
		config.ApplyLogLevel(cfg.LogLevel)
		if err := cfg.ValidateConfig(); err != nil {
			return fmt.Errorf("invalid client configuration: %w", err)
		}
		applyPendingUpdate()
		cfg.Version = update.ResolveVersion(cfg.Version, binaryPath())
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config", ".", "Directory holding config.json")
	rootCmd.PersistentFlags().StringVar(&host, "host", config.DefaultHost, "Server host")
	rootCmd.PersistentFlags().IntVarP(&port, "port", "p", config.DefaultPort, "Server port")
	rootCmd.PersistentFlags().StringVar(&transport, "transport", config.TransportTCP, "tcp or websocket")

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(hideCmd)
	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(scanCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// binaryPath is the file an upgrade replaces.
func binaryPath() string {
	if cfg.BinaryPath != "" {
		return cfg.BinaryPath
	}
	exe, err := os.Executable()
	if err != nil {
		return os.Args[0]
	}
	return exe
}

func markerPath() string {
	return filepath.Join(filepath.Dir(binaryPath()), update.DefaultMarkerPath)
}

func applyPendingUpdate() {
	applied, err := update.ApplyPending(binaryPath(), markerPath())
	if err != nil {
		logger.L().Warning("cannot apply staged update", helpers.Error(err))
		return
	}
	if applied {
		fmt.Println("A staged update was installed, it takes effect on the next start.")
	}
}

// connect dials the server, prints its welcome and, with notify, a notice
// when the server offers a newer client.
func connect(ctx context.Context, notify bool) (*core.Client, error) {
	client, err := core.Dial(ctx, cfg)
	if err != nil {
		return nil, err
	}
	fmt.Printf("Connected to %s: %s\n", cfg.Address(), client.Welcome)
	if notify {
		notifyUpdate(ctx, client, os.Stdout, cfg.Version)
	}
	return client, nil
}

func notifyUpdate(ctx context.Context, client *core.Client, out io.Writer, current string) {
	latest, available, err := client.CheckVersion(ctx)
	if err != nil {
		logger.L().Warning("version check failed", helpers.Error(err))
		return
	}
	if update.NeedsUpdate(current, latest, available) {
		fmt.Fprintf(out, "version %s is available (local %s), run \"courier version --upgrade\" to install it\n", latest, current)
	}
}
