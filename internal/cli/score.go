package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	scoreConfig string
	scoreFormat string
)

func init() {
	rootCmd.AddCommand(scoreCmd)
	scoreCmd.Flags().StringVar(&scoreConfig, "config", "", "Path to config YAML (default: ~/.scriptward/config.yaml)")
	scoreCmd.Flags().StringVarP(&scoreFormat, "format", "f", "text", "Output format (text|json)")
}

var scoreCmd = &cobra.Command{
	Use:   "score [file]",
	Short: "Score a script's semantic risk without executing it",
	Long: "Runs the configured scorer over a script read from a file or stdin\n" +
		"and prints the score, risk level, and contributing signals.\n\n" +
		"Exit code 0 if the gate would admit the script, 1 if not.",
	Args: cobra.MaximumNArgs(1),
	RunE: runScore,
}

func runScore(cmd *cobra.Command, args []string) error {
	source, err := readSource(args)
	if err != nil {
		return err
	}

	w, err := newWarden(scoreConfig, "", false)
	if err != nil {
		return err
	}
	defer w.Close()

	res, err := w.Score(context.Background(), source)
	if err != nil {
		return err
	}

	switch scoreFormat {
	case "json":
		out, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
	default:
		verdict := "blocked"
		if res.Allowed {
			verdict = "allowed"
		}
		fmt.Printf("Score:   %.2f (%s)\n", res.Score, res.RiskLevel)
		fmt.Printf("Verdict: %s\n", verdict)
		if res.Cached {
			fmt.Println("Cached:  yes")
		}
		if len(res.Signals) > 0 {
			fmt.Println("Signals:")
			for _, sig := range res.Signals {
				if sig.Detail != "" {
					fmt.Printf("  %-24s %.2f  %s\n", sig.Name, sig.Weight, sig.Detail)
				} else {
					fmt.Printf("  %-24s %.2f\n", sig.Name, sig.Weight)
				}
			}
		}
	}

	if !res.Allowed {
		os.Exit(1)
	}
	return nil
}
