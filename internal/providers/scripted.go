package providers

import (
	"context"
	"io"
	"sync"

	"github.com/crystaldolphin/companion/internal/stream"
)

// ScriptedProvider replays canned fragment sequences, one script per call,
// cycling when it runs out. It backs --dry-run and offline tests.
type ScriptedProvider struct {
	model string

	mu      sync.Mutex
	scripts [][]stream.Delta
	next    int
}

// NewScriptedProvider creates a ScriptedProvider. With no scripts it answers
// every call with a single fixed sentence.
func NewScriptedProvider(model string, scripts ...[]stream.Delta) *ScriptedProvider {
	if len(scripts) == 0 {
		scripts = [][]stream.Delta{{
			{Message: "(dry run) "},
			{Message: "No model is configured."},
		}}
	}
	return &ScriptedProvider{model: model, scripts: scripts}
}

func (p *ScriptedProvider) DefaultModel() string { return p.model }

func (p *ScriptedProvider) Stream(ctx context.Context, _ Request) (DeltaStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	script := p.scripts[p.next%len(p.scripts)]
	p.next++
	p.mu.Unlock()
	return &sliceStream{frags: script}, nil
}

// sliceStream yields a fixed list of fragments. An empty fragment ends the
// stream early, matching the provider contract.
type sliceStream struct {
	frags []stream.Delta
	pos   int
}

func (s *sliceStream) Recv() (stream.Delta, error) {
	if s.pos >= len(s.frags) {
		return stream.Delta{}, io.EOF
	}
	d := s.frags[s.pos]
	s.pos++
	if d.IsEmpty() {
		s.pos = len(s.frags)
		return stream.Delta{}, io.EOF
	}
	return d, nil
}

func (s *sliceStream) Close() error { return nil }
