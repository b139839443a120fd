package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/harun/oracle/pkg/client"
)

var chatURL string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with a running oracle server",
	Long: `Open an interactive chat with an oracle server. Answers are rendered as
markdown while they stream in. Type "quit" to leave.`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatURL, "url", client.DefaultURL, "server websocket URL")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	tty := client.IsTTY(os.Stdout)
	renderer, err := client.NewMarkdownRenderer(tty, 100)
	if err != nil {
		return fmt.Errorf("failed to create markdown renderer: %w", err)
	}

	lines, err := client.NewLineReader(historyPath())
	if err != nil {
		return err
	}
	defer lines.Close()

	return chat(cmd.Context(), client.New(chatURL, client.WithRenderer(renderer)), lines, cmd.OutOrStdout())
}

func chat(ctx context.Context, c *client.Client, lines client.LineReader, out io.Writer) error {
	if err := c.Connect(ctx); err != nil {
		var te *client.TransportError
		if errors.As(err, &te) {
			fmt.Fprintf(out, "✗ Could not connect to: %s\n", te.URL)
		}
		return err
	}
	fmt.Fprintln(out, "✓ Connected!")

	return c.Chat(ctx, lines, out)
}

func historyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".oracle", "history")
}
