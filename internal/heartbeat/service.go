// Package heartbeat periodically turns the objectives listed in
// HEARTBEAT.md into background tasks.
package heartbeat

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DefaultInterval is used when the configured interval is not positive.
const DefaultInterval = 30 * time.Minute

// FileName is the heartbeat file inside the workspace.
const FileName = "HEARTBEAT.md"

// OnObjectiveFunc is called once per active objective line.
type OnObjectiveFunc func(ctx context.Context, objective string) error

// Service runs a periodic check of HEARTBEAT.md.
type Service struct {
	workspace   string
	onObjective OnObjectiveFunc
	interval    time.Duration
	logger      *slog.Logger
}

// NewService creates a heartbeat Service.
func NewService(workspace string, onObjective OnObjectiveFunc, interval time.Duration, logger *slog.Logger) *Service {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		workspace:   workspace,
		onObjective: onObjective,
		interval:    interval,
		logger:      logger,
	}
}

// Start runs the heartbeat loop until ctx is cancelled.
func (s *Service) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("heartbeat: started", "interval", s.interval)

	for {
		select {
		case <-ticker.C:
			s.Check(ctx)
		case <-ctx.Done():
			s.logger.Info("heartbeat: stopped")
			return ctx.Err()
		}
	}
}

// Check reads HEARTBEAT.md once and hands every active line to the callback.
// It returns how many objectives were delivered without error.
func (s *Service) Check(ctx context.Context) int {
	data, err := os.ReadFile(filepath.Join(s.workspace, FileName))
	if err != nil {
		// No heartbeat configured.
		return 0
	}

	objectives := ActiveObjectives(string(data))
	if len(objectives) == 0 || s.onObjective == nil {
		return 0
	}

	s.logger.Info("heartbeat: active objectives found", "count", len(objectives))
	delivered := 0
	for _, obj := range objectives {
		if ctx.Err() != nil {
			break
		}
		if err := s.onObjective(ctx, obj); err != nil {
			s.logger.Error("heartbeat: objective rejected", "objective", obj, "err", err)
			continue
		}
		delivered++
	}
	return delivered
}

// ActiveObjectives returns the objective lines of a HEARTBEAT.md document.
//
// Headings, HTML comments (including multi-line ones), blank lines, empty
// checkboxes and checked "- [x]" items are skipped. List markers and
// unchecked "- [ ]" markers are stripped from what remains.
func ActiveObjectives(content string) []string {
	var out []string
	inComment := false
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)

		if inComment {
			if strings.Contains(trimmed, "-->") {
				inComment = false
			}
			continue
		}
		if strings.HasPrefix(trimmed, "<!--") {
			inComment = !strings.Contains(trimmed, "-->")
			continue
		}
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}

		lower := strings.ToLower(trimmed)
		if strings.HasPrefix(lower, "- [x]") || strings.HasPrefix(lower, "* [x]") {
			continue
		}
		for _, prefix := range []string{"- [ ]", "* [ ]", "- ", "* "} {
			if strings.HasPrefix(trimmed, prefix) {
				trimmed = strings.TrimSpace(trimmed[len(prefix):])
				break
			}
		}
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}
