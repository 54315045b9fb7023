package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/scriptward/scriptward/internal/audit"
)

var (
	replayStage    string
	replayDecision string
	replayFrom     string
	replayTo       string
	replayLast     int
	replayFormat   string
)

func init() {
	auditCmd.AddCommand(auditReplayCmd)
	auditReplayCmd.Flags().StringVar(&replayStage, "stage", "", "Filter by stage (pre_scan|validate|score|execute)")
	auditReplayCmd.Flags().StringVar(&replayDecision, "decision", "", "Filter by decision (allow|block|error)")
	auditReplayCmd.Flags().StringVar(&replayFrom, "from", "", "Start time filter (RFC3339)")
	auditReplayCmd.Flags().StringVar(&replayTo, "to", "", "End time filter (RFC3339)")
	auditReplayCmd.Flags().IntVar(&replayLast, "last", 0, "Keep only the last N matching entries")
	auditReplayCmd.Flags().StringVarP(&replayFormat, "format", "f", "text", "Output format (text|json)")
}

var auditReplayCmd = &cobra.Command{
	Use:   "replay <path>",
	Short: "Replay decisions from the audit log",
	Long: "Reads the audit log, filters by stage, decision, and time range,\n" +
		"and renders a decision timeline with a summary.",
	Args: cobra.ExactArgs(1),
	RunE: runAuditReplay,
}

func runAuditReplay(cmd *cobra.Command, args []string) error {
	filter := audit.ReplayFilter{
		Stage:    replayStage,
		Decision: replayDecision,
		Last:     replayLast,
	}

	if replayFrom != "" {
		from, err := time.Parse(time.RFC3339, replayFrom)
		if err != nil {
			return fmt.Errorf("invalid --from time %q: %w", replayFrom, err)
		}
		filter.From = from
	}

	if replayTo != "" {
		to, err := time.Parse(time.RFC3339, replayTo)
		if err != nil {
			return fmt.Errorf("invalid --to time %q: %w", replayTo, err)
		}
		filter.To = to
	}

	result, err := audit.Replay(args[0], filter)
	if err != nil {
		return err
	}

	switch replayFormat {
	case "json":
		out, err := audit.FormatJSON(result)
		if err != nil {
			return err
		}
		fmt.Println(out)
	default:
		fmt.Print(audit.FormatTimeline(result))
	}

	return nil
}
