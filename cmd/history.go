package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/hb-chen/skillgate/internal/storage"
)

var (
	historyServer, historyID string
	historyTimeout           time.Duration
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the execution history of a running gateway",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), historyTimeout)
		defer cancel()

		client := newHistoryClient(historyServer, http.DefaultClient)
		out := cmd.OutOrStdout()

		if historyID != "" {
			rec, err := client.Record(ctx, historyID)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, renderRecord(rec))
			return nil
		}

		records, err := client.History(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, renderHistory(records))
		return nil
	},
}

func init() {
	historyCmd.Flags().StringVar(&historyServer, "server", "http://127.0.0.1:8000", "gateway base URL")
	historyCmd.Flags().StringVar(&historyID, "id", "", "show a single execution")
	historyCmd.Flags().DurationVar(&historyTimeout, "timeout", 10*time.Second, "request timeout")

	rootCmd.AddCommand(historyCmd)
}

// historyClient reads the ledger of a remote gateway over its HTTP API.
type historyClient struct {
	base string
	http *http.Client
}

func newHistoryClient(base string, c *http.Client) *historyClient {
	return &historyClient{base: strings.TrimRight(base, "/"), http: c}
}

func (c *historyClient) History(ctx context.Context) ([]storage.Record, error) {
	var records []storage.Record
	if err := c.get(ctx, "/history", &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (c *historyClient) Record(ctx context.Context, id string) (storage.Record, error) {
	var rec storage.Record
	err := c.get(ctx, "/history/"+url.PathEscape(id), &rec)
	return rec, err
}

func (c *historyClient) get(ctx context.Context, path string, v interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach %s: %w", c.base, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var body struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&body) == nil && body.Error != "" {
			return fmt.Errorf("%s: %s", resp.Status, body.Error)
		}
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
