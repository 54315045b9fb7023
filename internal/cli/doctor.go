package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/scriptward/scriptward/internal/audit"
	"github.com/scriptward/scriptward/internal/config"
	"github.com/scriptward/scriptward/internal/history"
)

var doctorConfig string

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.Flags().StringVar(&doctorConfig, "config", "", "Config file to diagnose (default ~/.scriptward/config.yaml)")
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check setup readiness and diagnose configuration issues",
	RunE:  runDoctor,
}

type checkResult struct {
	label  string
	ok     bool
	detail string
	fix    string
}

func runDoctor(cmd *cobra.Command, args []string) error {
	var checks []checkResult

	// 1. Binary location and version.
	execPath, _ := os.Executable()
	if execPath != "" {
		checks = append(checks, checkResult{
			label:  "scriptward binary",
			ok:     true,
			detail: fmt.Sprintf("%s (v%s)", execPath, version),
		})
	} else {
		checks = append(checks, checkResult{
			label:  "scriptward binary",
			ok:     false,
			detail: "cannot determine executable path",
		})
	}

	// 2. Config directory and file. An explicit --config skips the
	// directory check; the file it names must exist.
	configPath := doctorConfig
	if configPath == "" {
		home, homeErr := os.UserHomeDir()
		configDir := ""
		if homeErr == nil {
			configDir = filepath.Join(home, ".scriptward")
		}

		if configDir != "" {
			if info, err := os.Stat(configDir); err == nil && info.IsDir() {
				checks = append(checks, checkResult{
					label:  "config directory",
					ok:     true,
					detail: configDir,
				})
			} else {
				checks = append(checks, checkResult{
					label:  "config directory",
					ok:     false,
					detail: "missing",
					fix:    "scriptward init",
				})
			}
			configPath = filepath.Join(configDir, "config.yaml")
		} else {
			checks = append(checks, checkResult{
				label:  "config directory",
				ok:     false,
				detail: "cannot determine home directory",
			})
		}
	}

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			checks = append(checks, checkResult{
				label:  "config.yaml",
				ok:     true,
				detail: configPath,
			})
		} else if doctorConfig != "" {
			checks = append(checks, checkResult{
				label:  "config.yaml",
				ok:     false,
				detail: fmt.Sprintf("%s not found", configPath),
			})
		} else {
			checks = append(checks, checkResult{
				label:  "config.yaml",
				ok:     false,
				detail: "missing (built-in defaults apply)",
				fix:    "scriptward init",
			})
		}
	}

	// 3. Config parse and validation.
	cfg, hash, loadErr := config.LoadConfigWithHash(doctorConfig)
	if loadErr != nil {
		checks = append(checks, checkResult{
			label:  "config parse",
			ok:     false,
			detail: loadErr.Error(),
		})
	} else if err := cfg.Validate(); err != nil {
		checks = append(checks, checkResult{
			label:  "config validate",
			ok:     false,
			detail: err.Error(),
			fix:    fmt.Sprintf("edit %s", configPath),
		})
	} else {
		checks = append(checks, checkResult{
			label:  "config",
			ok:     true,
			detail: fmt.Sprintf("level %s, scorer %s, threshold %.2f (%s)", cfg.SecurityLevel(), cfg.Gate.Scorer, cfg.Gate.BlockThreshold, hash[:14]),
		})
	}

	if cfg != nil {
		// 4. Remote scorer credentials.
		if cfg.Gate.Scorer == "remote" && cfg.Gate.APIKeyEnv != "" {
			if os.Getenv(cfg.Gate.APIKeyEnv) != "" {
				checks = append(checks, checkResult{
					label:  "remote scorer key",
					ok:     true,
					detail: fmt.Sprintf("$%s is set", cfg.Gate.APIKeyEnv),
				})
			} else {
				checks = append(checks, checkResult{
					label:  "remote scorer key",
					ok:     false,
					detail: fmt.Sprintf("$%s is empty", cfg.Gate.APIKeyEnv),
					fix:    fmt.Sprintf("export %s=<key>", cfg.Gate.APIKeyEnv),
				})
			}
		}

		// 5. Audit log chain.
		if cfg.AuditLog != "" {
			if _, err := os.Stat(cfg.AuditLog); err != nil {
				checks = append(checks, checkResult{
					label:  "audit log",
					ok:     true,
					detail: fmt.Sprintf("%s (not created yet)", cfg.AuditLog),
				})
			} else if result := audit.Verify(cfg.AuditLog); result.Valid {
				checks = append(checks, checkResult{
					label:  "audit log",
					ok:     true,
					detail: fmt.Sprintf("%d entries, chain intact", result.Lines),
				})
			} else {
				checks = append(checks, checkResult{
					label:  "audit log",
					ok:     false,
					detail: fmt.Sprintf("chain broken at line %d: %s", result.ErrorLine, result.Error),
					fix:    fmt.Sprintf("scriptward audit verify %s", cfg.AuditLog),
				})
			}
		}

		// 6. History database.
		if cfg.HistoryDB != "" {
			if _, err := os.Stat(cfg.HistoryDB); err != nil {
				checks = append(checks, checkResult{
					label:  "history db",
					ok:     true,
					detail: fmt.Sprintf("%s (not created yet)", cfg.HistoryDB),
				})
			} else if store, err := history.Open(cfg.HistoryDB); err != nil {
				checks = append(checks, checkResult{
					label:  "history db",
					ok:     false,
					detail: err.Error(),
				})
			} else {
				recs, _ := store.Recent(1)
				detail := cfg.HistoryDB
				if len(recs) == 0 {
					detail += " (empty)"
				}
				store.Close()
				checks = append(checks, checkResult{
					label:  "history db",
					ok:     true,
					detail: detail,
				})
			}
		}
	}

	// Print results.
	hasFailures := false
	for _, c := range checks {
		mark := "✓" // ✓
		if !c.ok {
			mark = "✗" // ✗
			hasFailures = true
		}
		line := fmt.Sprintf("%s %-20s %s", mark, c.label+":", c.detail)
		if !c.ok && c.fix != "" {
			line += fmt.Sprintf("  ->  %s", c.fix)
		}
		fmt.Println(line)
	}

	if hasFailures {
		fmt.Println()
		fmt.Println("Some checks failed. Run the suggested commands to fix.")
		return fmt.Errorf("doctor found issues")
	}

	fmt.Println()
	fmt.Println("All checks passed.")
	return nil
}
