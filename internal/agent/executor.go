package agent

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// denyPatterns block obviously destructive shell commands.
var denyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\brm\s+-[rf]{1,2}\b`),            // rm -r, rm -rf, rm -fr
	regexp.MustCompile(`(?i)\bdel\s+/[fq]\b`),                // del /f, del /q
	regexp.MustCompile(`(?i)\brmdir\s+/s\b`),                 // rmdir /s
	regexp.MustCompile(`(?i)(?:^|[;&|]\s*)format\b`),         // format (standalone)
	regexp.MustCompile(`(?i)\b(mkfs|diskpart)\b`),            // disk ops
	regexp.MustCompile(`(?i)\bdd\s+if=`),                     // dd
	regexp.MustCompile(`(?i)>\s*/dev/sd`),                    // write to disk
	regexp.MustCompile(`(?i)\b(shutdown|reboot|poweroff)\b`), // power control
	regexp.MustCompile(`:\(\)\s*\{.*\};\s*:`),                // fork bomb
}

// maxOutputLen caps the output fed back to the model.
const maxOutputLen = 10000

// Executor runs code the model asked to execute.
type Executor struct {
	timeout             time.Duration
	workingDir          string
	restrictToWorkspace bool
	python              string
}

// NewExecutor creates an Executor.
// workingDir is the default CWD (empty = os.Getwd()).
// restrictToWorkspace rejects commands that reach outside workingDir.
func NewExecutor(workingDir string, timeoutSeconds int, restrictToWorkspace bool) *Executor {
	t := 60
	if timeoutSeconds > 0 {
		t = timeoutSeconds
	}
	return &Executor{
		timeout:             time.Duration(t) * time.Second,
		workingDir:          workingDir,
		restrictToWorkspace: restrictToWorkspace,
		python:              "python3",
	}
}

// Supports reports whether language can be executed.
func (e *Executor) Supports(language string) bool {
	switch strings.ToLower(strings.TrimSpace(language)) {
	case "shell", "sh", "bash", "python", "py":
		return true
	}
	return false
}

// Run executes code and returns its combined output. Guard rejections,
// unsupported languages, non-zero exits and timeouts are reported in the
// output text so the model can react to them; the error is reserved for
// cancellation of ctx.
func (e *Executor) Run(ctx context.Context, language, code string) (string, error) {
	if strings.TrimSpace(code) == "" {
		return "Error: no code to execute", nil
	}

	cwd := e.workingDir
	if cwd == "" {
		cwd, _ = os.Getwd()
	}

	var cmd []string
	switch strings.ToLower(strings.TrimSpace(language)) {
	case "shell", "sh", "bash":
		if guard := e.guardCommand(code, cwd); guard != "" {
			return guard, nil
		}
		cmd = []string{"sh", "-c", code}
	case "python", "py":
		if guard := e.guardPaths(code, cwd); guard != "" {
			return guard, nil
		}
		cmd = []string{e.python, "-c", code}
	default:
		return fmt.Sprintf("Error: unsupported language %q (use shell or python)", language), nil
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}

	cmdCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	c := exec.CommandContext(cmdCtx, cmd[0], cmd[1:]...)
	c.Dir = cwd

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	runErr := c.Run()

	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if cmdCtx.Err() != nil {
		return fmt.Sprintf("Error: Command timed out after %v", e.timeout), nil
	}

	var parts []string
	if out := stdout.String(); out != "" {
		parts = append(parts, out)
	}
	if errOut := stderr.String(); strings.TrimSpace(errOut) != "" {
		parts = append(parts, "STDERR:\n"+errOut)
	}
	if runErr != nil {
		if c.ProcessState != nil && c.ProcessState.ExitCode() != 0 {
			parts = append(parts, fmt.Sprintf("\nExit code: %d", c.ProcessState.ExitCode()))
		} else {
			parts = append(parts, "Error: "+runErr.Error())
		}
	}

	result := strings.Join(parts, "\n")
	if result == "" {
		result = "(no output)"
	}
	if len(result) > maxOutputLen {
		result = result[:maxOutputLen] + fmt.Sprintf("\n... (truncated, %d more chars)", len(result)-maxOutputLen)
	}
	return result, nil
}

// guardCommand applies the deny list and, when enabled, the workspace
// restriction to a shell command. It returns "" when the command may run.
func (e *Executor) guardCommand(command, cwd string) string {
	lower := strings.ToLower(strings.TrimSpace(command))
	for _, p := range denyPatterns {
		if p.MatchString(lower) {
			return "Error: Command blocked by safety guard (dangerous pattern detected)"
		}
	}
	return e.guardPaths(command, cwd)
}

func (e *Executor) guardPaths(code, cwd string) string {
	if !e.restrictToWorkspace {
		return ""
	}
	if strings.Contains(code, `..\`) || strings.Contains(code, "../") {
		return "Error: Command blocked by safety guard (path traversal detected)"
	}

	cwdResolved, err := filepath.EvalSymlinks(cwd)
	if err != nil {
		cwdResolved = cwd
	}
	for _, raw := range extractAbsolutePaths(code) {
		p, err := filepath.EvalSymlinks(raw)
		if err != nil {
			p = filepath.Clean(raw)
		}
		if filepath.IsAbs(p) && p != cwdResolved && !strings.HasPrefix(p, cwdResolved+string(filepath.Separator)) {
			return "Error: Command blocked by safety guard (path outside working dir)"
		}
	}
	return ""
}

var absolutePathRE = regexp.MustCompile(`(?:^|[\s|>"'(])(/[^\s"'>)]+)`)

// extractAbsolutePaths extracts absolute path-like strings from code.
func extractAbsolutePaths(code string) []string {
	matches := absolutePathRE.FindAllStringSubmatch(code, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, strings.TrimSpace(m[1]))
	}
	return out
}
