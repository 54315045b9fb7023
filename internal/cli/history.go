package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/scriptward/scriptward/internal/config"
	"github.com/scriptward/scriptward/internal/history"
)

var (
	historyConfig string
	historyDB     string
	historyLimit  int
	historySearch string
	historyClear  bool
	historyExport string
	historyFormat string
)

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().StringVar(&historyConfig, "config", "", "Path to config YAML (default: ~/.scriptward/config.yaml)")
	historyCmd.Flags().StringVar(&historyDB, "db", "", "Path to history database (default: history_db from config)")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Number of recent evaluations to show")
	historyCmd.Flags().StringVar(&historySearch, "search", "", "Filter by source hash, stage, decision, or error kind")
	historyCmd.Flags().BoolVar(&historyClear, "clear", false, "Delete all recorded evaluations")
	historyCmd.Flags().StringVar(&historyExport, "export", "", "Export all evaluations as JSONL to a file")
	historyCmd.Flags().StringVarP(&historyFormat, "format", "f", "text", "Output format (text|json)")
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect the local evaluation history",
	Long: "Lists, searches, exports, or clears the SQLite history of pipeline\n" +
		"evaluations. The database records one row per stage decision.",
	RunE: runHistory,
}

func runHistory(cmd *cobra.Command, args []string) error {
	path := historyDB
	if path == "" {
		cfg, err := config.LoadConfig(historyConfig)
		if err != nil {
			return err
		}
		path = cfg.HistoryDB
	}
	if path == "" {
		return fmt.Errorf("no history database configured: set history_db in config or pass --db")
	}

	store, err := history.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()

	if historyClear {
		if err := store.Clear(); err != nil {
			return err
		}
		fmt.Println("History cleared.")
		return nil
	}

	if historyExport != "" {
		if err := store.ExportJSON(historyExport); err != nil {
			return err
		}
		fmt.Printf("Exported to %s\n", historyExport)
		return nil
	}

	var records []history.Record
	if historySearch != "" {
		records, err = store.Search(historySearch, historyLimit)
	} else {
		records, err = store.Recent(historyLimit)
	}
	if err != nil {
		return err
	}

	switch historyFormat {
	case "json":
		out, err := json.MarshalIndent(records, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
	default:
		fmt.Print(formatHistoryText(records))
	}
	return nil
}

func formatHistoryText(records []history.Record) string {
	if len(records) == 0 {
		return "No evaluations recorded.\n"
	}

	out := fmt.Sprintf("%-6s %-20s %-9s %-7s %-6s %s\n",
		"ID", "TIMESTAMP", "STAGE", "DECISION", "SCORE", "SOURCE")
	for _, rec := range records {
		score := "-"
		if rec.Score > 0 {
			score = fmt.Sprintf("%.2f", rec.Score)
		}
		detail := rec.SourceHash
		if len(detail) > 23 {
			detail = detail[:23]
		}
		if rec.ErrorKind != "" {
			detail += "  [" + rec.ErrorKind + "]"
		}
		out += fmt.Sprintf("%-6d %-20s %-9s %-7s %-6s %s\n",
			rec.ID,
			rec.Timestamp.UTC().Format("2006-01-02 15:04:05"),
			rec.Stage,
			rec.Decision,
			score,
			detail)
	}
	return out
}
