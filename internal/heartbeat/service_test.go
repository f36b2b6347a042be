package heartbeat

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"
)

func TestActiveObjectives(t *testing.T) {
	content := `# HEARTBEAT

<!-- Add one objective per line.
     They are checked every interval. -->
- [ ]
- [x] already done
- [ ] water the plants reminder
* summarise unread mail
plain line objective
## Notes
`
	want := []string{"water the plants reminder", "summarise unread mail", "plain line objective"}
	if diff := cmp.Diff(want, ActiveObjectives(content)); diff != "" {
		t.Fatalf("objectives (-want +got):\n%s", diff)
	}
}

func TestActiveObjectives_TemplateIsEmpty(t *testing.T) {
	content := "# HEARTBEAT\n\n<!-- nothing yet -->\n- [ ]\n"
	if got := ActiveObjectives(content); len(got) != 0 {
		t.Fatalf("expected no objectives, got %v", got)
	}
}

func TestCheck_DeliversEachObjective(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte("- one\n- two\n- three\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	var got []string
	s := NewService(dir, func(_ context.Context, obj string) error {
		got = append(got, obj)
		if obj == "two" {
			return errors.New("duplicate")
		}
		return nil
	}, time.Hour, nil)

	if n := s.Check(context.Background()); n != 2 {
		t.Fatalf("expected 2 delivered, got %d", n)
	}
	if diff := cmp.Diff([]string{"one", "two", "three"}, got); diff != "" {
		t.Fatalf("calls (-want +got):\n%s", diff)
	}
}

func TestCheck_MissingFile(t *testing.T) {
	called := false
	s := NewService(t.TempDir(), func(context.Context, string) error {
		called = true
		return nil
	}, 0, nil)
	if s.Check(context.Background()) != 0 || called {
		t.Fatal("expected no callback without HEARTBEAT.md")
	}
	if s.interval != DefaultInterval {
		t.Errorf("expected default interval, got %v", s.interval)
	}
}

func TestStart_StopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := NewService(t.TempDir(), nil, time.Millisecond, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	time.Sleep(10 * time.Millisecond)
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
