package main

import (
	"fmt"
	"os"

	"github.com/njit/courier/core"
	"github.com/spf13/cobra"
)

// sendCmd uploads files
var sendCmd = &cobra.Command{
	Use:   "send <file> [file...]",
	Short: "Upload files to the server",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := connect(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer client.Close()
		for _, path := range args {
			id, err := client.SendFile(cmd.Context(), path)
			if err != nil {
				return err
			}
			fmt.Printf("%s stored with ID %d\n", path, id)
		}
		return nil
	},
}

// listCmd prints the file records kept by the server
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the files stored on the server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		client, err := connect(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer client.Close()
		records, err := client.ListFiles(cmd.Context())
		if err != nil {
			return err
		}
		return core.PrintFiles(os.Stdout, records)
	},
}
