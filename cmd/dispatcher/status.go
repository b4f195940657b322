package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/LeventeLantos/notification-dispatcher/internal/service"
)

func newStatusCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show queue status of a running dispatcher",
		RunE: func(cmd *cobra.Command, args []string) error {
			httpClient := &http.Client{Timeout: 5 * time.Second}
			qs, err := fetchQueueStatus(httpClient, addr)
			if err != nil {
				return err
			}
			printQueueStatus(cmd.OutOrStdout(), addr, qs)
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "http://localhost:8080", "Base URL of the dispatcher API")
	return cmd
}

func fetchQueueStatus(c *http.Client, addr string) (service.QueueStatus, error) {
	var qs service.QueueStatus

	resp, err := c.Get(strings.TrimRight(addr, "/") + "/v1/queue/status")
	if err != nil {
		return qs, fmt.Errorf("could not connect to dispatcher: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return qs, fmt.Errorf("dispatcher returned HTTP %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&qs); err != nil {
		return qs, fmt.Errorf("decode queue status: %w", err)
	}
	return qs, nil
}

func printQueueStatus(w io.Writer, addr string, qs service.QueueStatus) {
	fmt.Fprintf(w, "Dispatcher: %s\n", addr)
	fmt.Fprintf(w, "Queue length: %d\n", qs.QueueLength)
	fmt.Fprintf(w, "Processing: %v\n", qs.IsProcessing)
	fmt.Fprintf(w, "Rate limit counter: %d\n", qs.RateLimitCounter)
	fmt.Fprintf(w, "Rate limit resets: %s\n", qs.RateLimitResetTime.Format(time.RFC3339))
}
