package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/scriptward/scriptward/internal/config"
	"github.com/scriptward/scriptward/internal/warden"
)

var rootCmd = &cobra.Command{
	Use:   "scriptward",
	Short: "Execution firewall for LLM-generated scripts",
	Long: "Validates, scores, and sandboxes untrusted scripts before anything runs.\n" +
		"Four stages stand between a script and its effects: mandatory pre-scan,\n" +
		"rule validation, risk scoring, and a bounded enclave with reference\n" +
		"passing for large values.",
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// readSource loads script source from a file argument or stdin.
// No argument or "-" reads stdin.
func readSource(args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return "", fmt.Errorf("read script: %w", err)
	}
	return string(data), nil
}

// newWarden builds a warden from a config file with an optional level
// override. Commands that never execute scripts pass withSinks=false
// so a dry run touches neither the audit log nor the history store.
func newWarden(configPath, level string, withSinks bool) (*warden.Warden, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if level != "" {
		cfg.Level = level
	}
	if !withSinks {
		cfg.AuditLog = ""
		cfg.HistoryDB = ""
	}
	return warden.New(cfg)
}
