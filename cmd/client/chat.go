package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/njit/courier/core"
	"github.com/spf13/cobra"
)

// chatCmd runs the interactive session
var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Send messages typed on stdin",
	Long: `Every line typed is sent as a message. Special lines:

  /file <path>   upload a file
  /list          list the files stored on the server
  exit           leave`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func runChat(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := connect(ctx, true)
	if err != nil {
		return err
	}
	defer client.Close()
	client.StartHeartbeat(ctx, cfg.HeartbeatInterval)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	fmt.Println(`Type a message, "/file <path>", "/list" or "exit".`)
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := chatLine(ctx, client, os.Stdout, line)
			if err != nil {
				fmt.Fprintln(os.Stderr, "error:", err)
			}
			if quit {
				return nil
			}
		}
	}
}

// chatLine handles one line of user input and reports whether the user asked to leave.
func chatLine(ctx context.Context, client *core.Client, out io.Writer, line string) (bool, error) {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return false, nil
	case strings.EqualFold(line, "exit"):
		return true, nil
	case line == "/list":
		records, err := client.ListFiles(ctx)
		if err != nil {
			return false, err
		}
		return false, core.PrintFiles(out, records)
	case strings.HasPrefix(line, "/file "):
		path := strings.TrimSpace(strings.TrimPrefix(line, "/file "))
		id, err := client.SendFile(ctx, path)
		if err != nil {
			return false, err
		}
		_, err = fmt.Fprintf(out, "file stored with ID %d\n", id)
		return false, err
	default:
		reply, err := client.SendMessage(ctx, line)
		if err != nil {
			return false, err
		}
		_, err = fmt.Fprintln(out, "server:", reply)
		return false, err
	}
}
