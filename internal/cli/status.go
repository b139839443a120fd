package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/harun/oracle/pkg/client"
)

var statusURL string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server status",
	Long:  `Query a running oracle server's health endpoint and show its live session count.`,
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusURL, "url", client.DefaultURL, "server websocket URL")
	rootCmd.AddCommand(statusCmd)
}

type healthResponse struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	endpoint, err := healthURL(statusURL)
	if err != nil {
		return err
	}

	httpClient := &http.Client{Timeout: 5 * time.Second}
	start := time.Now()
	resp, err := httpClient.Get(endpoint)
	if err != nil {
		fmt.Fprintln(out, "Status: stopped")
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned %s", resp.Status)
	}

	var health healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return fmt.Errorf("invalid health response: %w", err)
	}

	fmt.Fprintf(out, "Status: %s\n", health.Status)
	fmt.Fprintf(out, "Sessions: %d\n", health.Sessions)
	fmt.Fprintf(out, "Latency: %s\n", formatDuration(time.Since(start)))
	return nil
}

// healthURL maps ws://host/chat to http://host/healthz
func healthURL(wsURL string) (string, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", wsURL, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "ws", "http":
		u.Scheme = "http"
	case "wss", "https":
		u.Scheme = "https"
	default:
		return "", fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
	u.Path = "/healthz"
	u.RawQuery = ""
	return u.String(), nil
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	d = d.Round(time.Second)
	m := d / time.Minute
	s := (d - m*time.Minute) / time.Second
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
