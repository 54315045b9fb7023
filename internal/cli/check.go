package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/scriptward/scriptward/internal/model"
	"github.com/scriptward/scriptward/internal/warden"
)

var (
	checkConfig string
	checkLevel  string
	checkFormat string
)

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().StringVar(&checkConfig, "config", "", "Path to config YAML (default: ~/.scriptward/config.yaml)")
	checkCmd.Flags().StringVar(&checkLevel, "level", "", "Security level override (standard|strict)")
	checkCmd.Flags().StringVarP(&checkFormat, "format", "f", "text", "Output format (text|json)")
}

var checkCmd = &cobra.Command{
	Use:   "check [file]",
	Short: "Scan and validate a script without executing it",
	Long: "Runs the mandatory pre-scanner and the rule validator over a script\n" +
		"read from a file or stdin, and reports every issue found.\n\n" +
		"Exit code 0 if the script would be accepted, 1 if not.\n" +
		"Use in CI to gate script changes before they reach an agent.",
	Args: cobra.MaximumNArgs(1),
	RunE: runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	source, err := readSource(args)
	if err != nil {
		return err
	}

	w, err := newWarden(checkConfig, checkLevel, false)
	if err != nil {
		return err
	}
	defer w.Close()

	report := w.Check(source)

	switch checkFormat {
	case "json":
		out, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
	default:
		fmt.Print(formatCheckText(report, w.Level()))
	}

	if !report.Valid {
		os.Exit(1)
	}
	return nil
}

func formatCheckText(report *warden.CheckReport, level model.SecurityLevel) string {
	var b strings.Builder

	if report.Valid {
		fmt.Fprintf(&b, "OK: script is valid at %s level (%s)\n", level, report.SourceHash)
		if len(report.Issues) > 0 {
			fmt.Fprintf(&b, "\n%d non-fatal issue(s):\n", len(report.Issues))
		}
	} else {
		fmt.Fprintf(&b, "INVALID: %d issue(s) at %s level\n\n", len(report.Issues), level)
	}

	for _, iss := range report.Issues {
		fmt.Fprintf(&b, "  %d:%d  %-24s %-7s %s\n",
			iss.Pos.Line, iss.Pos.Column, iss.Code, iss.Severity, iss.Message)
	}
	return b.String()
}
