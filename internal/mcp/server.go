package mcp

import (
	"context"
	"fmt"
	"os"
	"sync"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/scriptward/scriptward/internal/config"
	"github.com/scriptward/scriptward/internal/model"
	"github.com/scriptward/scriptward/internal/warden"
)

// Config holds MCP server configuration.
type Config struct {
	// ConfigPath points at a scriptward YAML config. Empty means the
	// default search path, falling back to built-in defaults.
	ConfigPath string

	// Watch enables hot reload of ConfigPath while the server runs.
	Watch bool
}

// Server wraps the MCP SDK server with scriptward evaluation tools.
// The active warden is swapped under mu when the config file changes,
// so in-flight calls finish against the warden they started with.
type Server struct {
	mcpServer  *mcpsdk.Server
	ward       *warden.Warden
	overrides  map[model.SecurityLevel]*warden.Warden
	reloader   *config.Reloader
	configPath string
	mu         sync.Mutex
}

// New creates an MCP server with a warden built from the config file.
func New(cfg Config) (*Server, error) {
	wcfg, _, err := config.LoadConfigWithHash(cfg.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	ward, err := warden.New(wcfg)
	if err != nil {
		return nil, err
	}

	s := &Server{
		ward:       ward,
		overrides:  make(map[model.SecurityLevel]*warden.Warden),
		configPath: cfg.ConfigPath,
	}

	if cfg.Watch && cfg.ConfigPath != "" {
		reloader, err := config.NewReloader(cfg.ConfigPath, s.reload)
		if err != nil {
			ward.Close()
			return nil, err
		}
		s.reloader = reloader
	}

	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    "scriptward",
			Version: "0.1.0",
		},
		nil,
	)

	s.registerTools()
	return s, nil
}

// Run starts the MCP server on stdio transport. Blocks until ctx is
// cancelled.
func (s *Server) Run(ctx context.Context) error {
	if s.reloader != nil {
		go func() {
			if err := s.reloader.Run(ctx); err != nil {
				fmt.Fprintf(os.Stderr, "scriptward: config watcher stopped: %v\n", err)
			}
		}()
	}
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

// Close releases the active warden and any level-override wardens.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	if s.ward != nil {
		firstErr = s.ward.Close()
		s.ward = nil
	}
	for level, w := range s.overrides {
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(s.overrides, level)
	}
	return firstErr
}

// current returns the active warden.
func (s *Server) current() *warden.Warden {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ward
}

// wardenFor returns the warden for a requested security level. An
// empty or matching level uses the active warden; anything else gets a
// sink-free warden at that level, built once and cached. Unknown level
// strings fail closed to strict.
func (s *Server) wardenFor(level string) (*warden.Warden, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if level == "" {
		return s.ward, nil
	}
	parsed := model.ParseSecurityLevel(level)
	if parsed == s.ward.Level() {
		return s.ward, nil
	}
	if w, ok := s.overrides[parsed]; ok {
		return w, nil
	}

	// Copy the active config at the override level. Audit and history
	// stay with the configured warden; a dry-run check records nothing.
	next := *s.ward.Config()
	next.Level = string(parsed)
	next.AuditLog = ""
	next.HistoryDB = ""

	w, err := warden.New(&next)
	if err != nil {
		return nil, fmt.Errorf("build %s warden: %w", parsed, err)
	}
	s.overrides[parsed] = w
	return w, nil
}

// reload rebuilds the warden from the config file. A failed reload
// keeps the previous warden in effect.
func (s *Server) reload() {
	next, _, err := config.LoadConfigWithHash(s.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "scriptward: config reload failed, keeping previous: %v\n", err)
		return
	}
	ward, err := warden.New(next)
	if err != nil {
		fmt.Fprintf(os.Stderr, "scriptward: config reload failed, keeping previous: %v\n", err)
		return
	}

	s.mu.Lock()
	old := s.ward
	overrides := s.overrides
	s.ward = ward
	s.overrides = make(map[model.SecurityLevel]*warden.Warden)
	s.mu.Unlock()

	if old != nil {
		old.Close()
	}
	for _, w := range overrides {
		w.Close()
	}
	fmt.Fprintf(os.Stderr, "scriptward: config reloaded from %s\n", s.configPath)
}

// registerTools adds all scriptward tools to the MCP server.
func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "script_check",
		Description: "Scan and validate a script without executing it. Returns the issue list and whether the script would be accepted.",
	}, s.handleCheck)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "script_score",
		Description: "Score a script's semantic risk without executing it. Returns the score, risk level, and contributing signals.",
	}, s.handleScore)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "script_run",
		Description: "Evaluate and execute a script in the sandbox. Blocked scripts return an error with the stage and reason.",
	}, s.handleRun)
}
