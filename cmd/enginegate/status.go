package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/enginegate/internal/presentation/graph"
	"github.com/aretw0/enginegate/internal/presentation/tui"
	"github.com/aretw0/enginegate/pkg/domain"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the admission queue of a running enginegate",
	Long:  `Queries the status API of a running "enginegate run" and prints the session queue.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		if addr == "" {
			cfg, _, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			addr = cfg.StatusAddr
		}
		if addr == "" {
			return fmt.Errorf("no status address: pass --addr or set status_addr")
		}
		format, _ := cmd.Flags().GetString("format")

		sessions, err := fetchSessions(addr)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		switch format {
		case "json":
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(sessions)
		case "mermaid":
			fmt.Fprint(out, graph.GenerateMermaid(sessions))
			return nil
		case "table":
			tui.NewPresenter(out).PresentMarkdown(sessionTable(sessions))
			return nil
		default:
			return fmt.Errorf("unknown format %q (want table, json or mermaid)", format)
		}
	},
}

func fetchSessions(addr string) ([]domain.SessionInfo, error) {
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(strings.TrimRight(addr, "/") + "/sessions")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status server returned %s", resp.Status)
	}
	var sessions []domain.SessionInfo
	if err := json.NewDecoder(resp.Body).Decode(&sessions); err != nil {
		return nil, fmt.Errorf("invalid status response: %w", err)
	}
	return sessions, nil
}

func sessionTable(sessions []domain.SessionInfo) string {
	var sb strings.Builder
	sb.WriteString("| # | Session | State | Started | Demo | Preemptible |\n")
	sb.WriteString("|---|---|---|---|---|---|\n")
	for _, s := range sessions {
		fmt.Fprintf(&sb, "| %d | %s | %s | %t | %t | %t |\n",
			s.Position, s.ID, s.State, s.HasStarted, s.DemoMode, s.Preemptive)
	}
	if len(sessions) == 0 {
		sb.WriteString("\n_queue empty_\n")
	}
	return sb.String()
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().String("addr", "", "Status server address (defaults to status_addr)")
	statusCmd.Flags().StringP("format", "f", "table", "Output format: table, json or mermaid")
}
