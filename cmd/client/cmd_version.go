package main

import (
	"fmt"
	"path/filepath"

	"github.com/njit/courier/update"
	"github.com/spf13/cobra"
)

var upgrade bool

// versionCmd compares the local version with the one the server announces
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Check the server for a newer client",
	Long: `Prints the local and the server version. With --upgrade, a newer client
is downloaded next to the current binary, verified and installed on the next start.`,
	Args: cobra.NoArgs,
	RunE: runVersion,
}

func init() {
	versionCmd.Flags().BoolVar(&upgrade, "upgrade", false, "Download and stage the new version")
}

func runVersion(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	client, err := connect(ctx, false)
	if err != nil {
		return err
	}
	defer client.Close()

	latest, available, err := client.CheckVersion(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("local version: %s, server version: %s\n", cfg.Version, latest)
	if !update.NeedsUpdate(cfg.Version, latest, available) {
		fmt.Println("up to date")
		return nil
	}
	if !upgrade {
		fmt.Println("a new version is available, run with --upgrade to install it")
		return nil
	}

	binary := binaryPath()
	staged := update.StagedPath(binary)
	if err := client.DownloadUpgrade(ctx, filepath.Base(binary), staged); err != nil {
		return fmt.Errorf("download upgrade: %w", err)
	}
	marker := update.Marker{Version: latest, Source: cfg.Address()}
	if err := marker.WriteMarker(markerPath()); err != nil {
		return fmt.Errorf("write update marker: %w", err)
	}
	fmt.Printf("version %s downloaded to %s, restart to apply it\n", latest, staged)
	return nil
}
