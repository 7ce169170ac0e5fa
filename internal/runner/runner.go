// ABOUTME: Synchronous Radius CLI runner backing the gateway's tools.
// ABOUTME: Locates the rad executable, builds argv per tool, and shapes results.

package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/2389/radius-gateway/internal/config"
	"github.com/2389/radius-gateway/internal/registry"
)

// Result is the outcome of one tool execution. Execution never fails with a
// Go error; failures are carried in the Error field so every transport can
// serialize the same shape.
type Result struct {
	Output string `json:"output"`
	Data   any    `json:"data,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Runner executes one tool synchronously. Implementations block for the full
// duration of the underlying command; callers own cancellation via ctx.
type Runner interface {
	Execute(ctx context.Context, toolName string, params map[string]string) Result
}

// Capability records whether the Radius CLI was found at startup. It is
// computed once and passed explicitly to the registry and dispatcher.
type Capability struct {
	Available bool
	Path      string
	Reason    string
}

// commonLocations are probed when the command is not on PATH.
var commonLocations = []string{
	"/usr/local/bin",
	"/usr/bin",
	"/opt/homebrew/bin",
}

// Detect probes for the configured rad command. Order: explicit path,
// PATH lookup, configured search paths, common install locations.
func Detect(cfg config.RunnerConfig) Capability {
	command := cfg.Command
	if command == "" {
		command = config.DefaultRunnerCommand
	}

	// An explicit path skips the search entirely
	if strings.ContainsRune(command, os.PathSeparator) {
		if isExecutable(command) {
			return Capability{Available: true, Path: command}
		}
		return Capability{Reason: fmt.Sprintf("%s is not an executable file", command)}
	}

	if path, err := exec.LookPath(command); err == nil {
		return Capability{Available: true, Path: path}
	}

	dirs := append(append([]string{}, cfg.SearchPaths...), commonLocations...)
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, "bin"))
	}
	for _, dir := range dirs {
		candidate := filepath.Join(dir, command)
		if isExecutable(candidate) {
			return Capability{Available: true, Path: candidate}
		}
	}

	return Capability{Reason: fmt.Sprintf("%q not found in PATH or common locations", command)}
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return info.Mode()&0o111 != 0
}

// CLI runs tools by shelling out to the rad executable.
type CLI struct {
	capability Capability
	registry   *registry.Registry
	logger     *slog.Logger
}

// NewCLI creates a runner bound to the detected capability and tool catalog.
func NewCLI(capability Capability, reg *registry.Registry, logger *slog.Logger) *CLI {
	if logger == nil {
		logger = slog.Default()
	}
	return &CLI{
		capability: capability,
		registry:   reg,
		logger:     logger,
	}
}

// Execute runs the named tool and blocks until the command completes. No
// timeout is imposed here; a hung command holds its caller until ctx ends.
func (c *CLI) Execute(ctx context.Context, toolName string, params map[string]string) Result {
	desc, ok := c.registry.Lookup(toolName)
	if !ok {
		return Result{Error: fmt.Sprintf("Unknown tool: %s", toolName)}
	}

	if !c.capability.Available {
		c.logger.Warn("cannot execute tool, rad unavailable",
			"tool", toolName,
			"reason", c.capability.Reason,
		)
		return Result{
			Output: fmt.Sprintf("ERROR: Cannot execute %s because 'rad' command is not available in PATH.\n"+
				"Please make sure the Radius CLI is installed and in your PATH.", toolName),
			Error: "Radius CLI ('rad') not found",
		}
	}

	args, err := buildArgs(desc, params)
	if err != nil {
		return Result{Error: err.Error()}
	}

	execID := uuid.New().String()
	c.logger.Info("executing command",
		"exec_id", execID,
		"command", c.capability.Path,
		"args", strings.Join(args, " "),
	)

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.capability.Path, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := commandFailure(err, stderr.String())
		c.logger.Error("command failed", "exec_id", execID, "error", msg)
		return Result{Output: msg, Error: msg}
	}

	output := strings.TrimSpace(stdout.String())
	result := Result{Output: output}

	if desc.ParseOutput && looksLikeJSON(output) {
		var data any
		if err := json.Unmarshal([]byte(output), &data); err == nil {
			result.Data = data
		}
		// Not valid JSON after all: keep the raw output only
	}

	return result
}

// buildArgs appends per-tool parameter flags to the base argv.
func buildArgs(desc *registry.Descriptor, params map[string]string) ([]string, error) {
	args := append([]string{}, desc.Args...)

	switch desc.Name {
	case "radius_list_applications":
		if ns := params["namespace"]; ns != "" {
			args = append(args, "-n", ns)
		}

	case "radius_show_application":
		name := params["name"]
		if name == "" {
			return nil, errors.New("Application name is required")
		}
		args = append(args, name)
		if ns := params["namespace"]; ns != "" {
			args = append(args, "-n", ns)
		}

	case "radius_deploy_application":
		file := params["file"]
		if file == "" {
			return nil, errors.New("Bicep file path is required")
		}
		args = append(args, file)
		if name := params["name"]; name != "" {
			args = append(args, "-n", name)
		}
		if ns := params["namespace"]; ns != "" {
			args = append(args, "--namespace", ns)
		}
	}

	return args, nil
}

func commandFailure(err error, stderr string) string {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return fmt.Sprintf("Command failed with exit code %d: %s", exitErr.ExitCode(), strings.TrimSpace(stderr))
	}
	return fmt.Sprintf("Error executing command: %v", err)
}

func looksLikeJSON(s string) bool {
	return strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[")
}
