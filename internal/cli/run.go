package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/scriptward/scriptward/internal/dispatch"
	"github.com/scriptward/scriptward/internal/enclave"
	"github.com/scriptward/scriptward/internal/warden"
)

var (
	runConfig        string
	runLevel         string
	runParams        string
	runToolsEndpoint string
	runToolsKeyEnv   string
)

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&runConfig, "config", "", "Path to config YAML (default: ~/.scriptward/config.yaml)")
	runCmd.Flags().StringVar(&runLevel, "level", "", "Security level override (standard|strict)")
	runCmd.Flags().StringVar(&runParams, "params", "", "JSON object bound to __enclave_args__")
	runCmd.Flags().StringVar(&runToolsEndpoint, "tools-endpoint", "", "HTTP endpoint for callTool dispatch (default: built-in echo)")
	runCmd.Flags().StringVar(&runToolsKeyEnv, "tools-key-env", "", "Environment variable holding the tool endpoint API key")
}

var runCmd = &cobra.Command{
	Use:   "run [file]",
	Short: "Evaluate and execute a script in the sandbox",
	Long: "Runs the full pipeline over a script read from a file or stdin:\n" +
		"pre-scan, rule validation, risk scoring, then bounded execution.\n" +
		"Blocked scripts are never executed. Exit code 77 indicates a block;\n" +
		"exit code 1 indicates the script ran and failed.",
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	source, err := readSource(args)
	if err != nil {
		return err
	}

	var params map[string]any
	if runParams != "" {
		if err := json.Unmarshal([]byte(runParams), &params); err != nil {
			return fmt.Errorf("invalid --params JSON: %w", err)
		}
	}

	tools := dispatch.Echo()
	if runToolsEndpoint != "" {
		apiKey := ""
		if runToolsKeyEnv != "" {
			apiKey = os.Getenv(runToolsKeyEnv)
		}
		tools = dispatch.HTTP(runToolsEndpoint, apiKey, 0)
	}

	w, err := newWarden(runConfig, runLevel, true)
	if err != nil {
		return err
	}
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	res, err := w.RunWithParams(ctx, source, tools, params)
	if err != nil {
		var blocked *warden.BlockedError
		if errors.As(err, &blocked) {
			out, _ := json.MarshalIndent(blocked, "", "  ")
			fmt.Fprintln(os.Stderr, string(out))
			os.Exit(77)
		}
		return err
	}

	if !res.Success {
		printRunFailure(res.Error)
		os.Exit(1)
	}

	out, merr := json.Marshal(res.Value)
	if merr != nil {
		return fmt.Errorf("encode result: %w", merr)
	}
	fmt.Println(string(out))
	return nil
}

func printRunFailure(runErr *enclave.RunError) {
	resp := map[string]any{"success": false}
	if runErr != nil {
		resp["error_kind"] = string(runErr.Kind)
		resp["error_message"] = runErr.Message
	}
	out, _ := json.MarshalIndent(resp, "", "  ")
	fmt.Fprintln(os.Stderr, string(out))
}
