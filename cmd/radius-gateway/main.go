// ABOUTME: Entry point for radius-gateway, the MCP server for Radius CLI tools
// ABOUTME: Serves JSON-RPC over HTTP/SSE or line-delimited stdio

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/2389/radius-gateway/internal/config"
	"github.com/2389/radius-gateway/internal/dispatch"
	"github.com/2389/radius-gateway/internal/registry"
	"github.com/2389/radius-gateway/internal/runner"
	"github.com/2389/radius-gateway/internal/sessions"
	"github.com/2389/radius-gateway/internal/transport"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                 _ _
 _ __ __ _  __ _(_) |_   _ ___       __ _  __ _| |_ _____      ____ _ _   _
| '__/ _' |/ _' | | | | | / __|____ / _' |/ _' | __/ _ \ \ /\ / / _' | | | |
| | | (_| | (_| | | | |_| \__ \____| (_| | (_| | ||  __/\ V  V / (_| | |_| |
|_|  \__,_|\__,_|_|_|\__,_|___/     \__, |\__,_|\__\___| \_/\_/ \__,_|\__, |
                                    |___/                             |___/
`

// getConfigPath returns the path to the gateway config file.
// Priority: RADIUS_GATEWAY_CONFIG env var > XDG_CONFIG_HOME/radius-gateway/gateway.yaml > ~/.config/radius-gateway/gateway.yaml
func getConfigPath() string {
	if envPath := os.Getenv("RADIUS_GATEWAY_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "gateway.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "radius-gateway", "gateway.yaml")
}

// loadConfig loads the config file, falling back to defaults when no file
// exists at the resolved path.
func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return config.Default(), nil
	}
	return config.Load(path)
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: radius-gateway <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve    Start the HTTP/SSE server")
		fmt.Println("  stdio    Serve requests over stdin/stdout")
		fmt.Println("  init     Create a new config file interactively")
		fmt.Println("  health   Check gateway health")
		fmt.Println("  version  Print the version")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "stdio":
		err = runStdio(ctx)
	case "init":
		err = runInit()
	case "health":
		err = runHealth(ctx)
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// buildDispatcher wires the runner, registry, and session hub into a
// dispatcher. Returned alongside the hub so transports can share it.
func buildDispatcher(cfg *config.Config, logger *slog.Logger) (*dispatch.Dispatcher, *sessions.Hub, runner.Capability, error) {
	capability := runner.Detect(cfg.Runner)
	if !capability.Available {
		logger.Warn("'rad' command not found, running in degraded mode", "reason", capability.Reason)
	} else {
		logger.Info("found Radius CLI", "path", capability.Path)
	}

	reg, err := registry.New(registry.Options{Degraded: !capability.Available})
	if err != nil {
		return nil, nil, capability, fmt.Errorf("building tool registry: %w", err)
	}

	hub := sessions.NewHub(cfg.SSE.QueueSize, logger)

	d, err := dispatch.New(dispatch.Config{
		Registry:      reg,
		Runner:        runner.NewCLI(capability, reg, logger),
		Capability:    capability,
		Sessions:      hub,
		Logger:        logger,
		ServerName:    "radius-gateway",
		ServerVersion: version,
	})
	if err != nil {
		return nil, nil, capability, fmt.Errorf("building dispatcher: %w", err)
	}

	return d, hub, capability, nil
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	// Version info
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging, os.Stdout)

	d, hub, capability, err := buildDispatcher(cfg, logger)
	if err != nil {
		return err
	}

	// Startup info
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:  %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:    %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Radius:  ")
	if capability.Available {
		cyan.Println(capability.Path)
	} else {
		yellow.Println("not found (degraded mode)")
	}
	fmt.Println()

	logger.Info("starting radius-gateway",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
	)

	ht := transport.NewHTTP(transport.HTTPConfig{
		Dispatcher:        d,
		Hub:               hub,
		Logger:            logger,
		KeepAliveInterval: cfg.SSE.KeepAliveInterval,
	})
	mux := http.NewServeMux()
	ht.RegisterRoutes(mux)

	srv := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// runStdio serves line-delimited requests on stdin/stdout. stdout carries
// protocol frames only, so all logging goes to stderr.
func runStdio(ctx context.Context) error {
	cfg, err := loadConfig(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging, os.Stderr)

	d, _, capability, err := buildDispatcher(cfg, logger)
	if err != nil {
		return err
	}

	logger.Info("radius-gateway stdio transport ready",
		"version", version,
		"rad_available", capability.Available,
	)

	s := transport.NewStdio(d, os.Stdin, os.Stdout, logger)
	return s.Run(ctx)
}

func setupLogger(cfg config.LoggingConfig, out io.Writer) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = &colorHandler{
			level: level,
			out:   out,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	out    io.Writer
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	// Format timestamp
	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	// Colorize level
	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	// Print message
	buf.WriteString(r.Message)

	// Print handler-level attrs first (from WithAttrs)
	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	// Print record attrs
	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Fprint(h.out, buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
		out:    h.out,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		out:    h.out,
		attrs:  h.attrs,
		groups: newGroups,
	}
}

func runHealth(ctx context.Context) error {
	cfg, err := loadConfig(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s/health", cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("radius-gateway configuration setup")
	fmt.Println("==================================")
	fmt.Println()

	defaultConfigPath := getConfigPath()

	// Output filename
	outputFile := prompt(reader, "Config file path", defaultConfigPath)

	// Check if file exists
	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, "File exists. Overwrite?", "no")
		if strings.ToLower(overwrite) != "yes" && strings.ToLower(overwrite) != "y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	// Server configuration
	fmt.Println("\n--- Server Configuration ---")
	httpAddr := prompt(reader, "HTTP address", config.DefaultHTTPAddr)

	// Streaming
	fmt.Println("\n--- Streaming Configuration ---")
	keepAlive := prompt(reader, "SSE keep-alive interval", config.DefaultKeepAliveInterval.String())
	queueSize := prompt(reader, "SSE queue size", fmt.Sprintf("%d", config.DefaultQueueSize))

	// Runner
	fmt.Println("\n--- Radius CLI Configuration ---")
	command := prompt(reader, "Radius command", config.DefaultRunnerCommand)

	// Logging
	fmt.Println("\n--- Logging Configuration ---")
	logLevel := prompt(reader, "Log level (debug/info/warn/error)", "info")
	logFormat := prompt(reader, "Log format (text/json)", "text")

	// Generate config
	var cfg strings.Builder
	cfg.WriteString("# radius-gateway configuration\n")
	cfg.WriteString("# Generated by radius-gateway init\n\n")

	cfg.WriteString("server:\n")
	cfg.WriteString(fmt.Sprintf("  http_addr: \"%s\"\n", httpAddr))
	cfg.WriteString("\n")

	cfg.WriteString("sse:\n")
	cfg.WriteString(fmt.Sprintf("  keepalive_interval: \"%s\"\n", keepAlive))
	cfg.WriteString(fmt.Sprintf("  queue_size: %s\n", queueSize))
	cfg.WriteString("\n")

	cfg.WriteString("runner:\n")
	cfg.WriteString(fmt.Sprintf("  command: \"%s\"\n", command))
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: \"%s\"\n", logLevel))
	cfg.WriteString(fmt.Sprintf("  format: \"%s\"\n", logFormat))

	// Ensure config directory exists
	configDir := filepath.Dir(outputFile)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(outputFile, []byte(cfg.String()), 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Println("\nTo start the server:")
	fmt.Printf("  radius-gateway serve\n")
	fmt.Printf("  radius-gateway stdio   # for stdio-based MCP clients\n")

	return nil
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
