package providers

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"
	"sync"

	"github.com/crystaldolphin/companion/internal/stream"
)

// chunkBody is the subset of a streamed chat.completion.chunk we read.
type chunkBody struct {
	Choices []struct {
		Delta struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				Index    int    `json:"index"`
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// toolCallBuf accumulates the streamed arguments of one tool call and
// remembers how much of language/code has already been emitted.
type toolCallBuf struct {
	name      string
	arguments strings.Builder
	language  string
	code      string
}

// sseStream turns a text/event-stream body into Delta fragments.
type sseStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	calls   map[int]*toolCallBuf
	done    bool

	closeOnce sync.Once
}

func newSSEStream(body io.ReadCloser) *sseStream {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &sseStream{
		body:    body,
		scanner: scanner,
		calls:   make(map[int]*toolCallBuf),
	}
}

// Recv returns the next non-empty fragment, or io.EOF.
func (s *sseStream) Recv() (stream.Delta, error) {
	for !s.done {
		data, ok := s.nextEvent()
		if !ok {
			s.done = true
			if err := s.scanner.Err(); err != nil {
				return stream.Delta{}, err
			}
			break
		}
		if data == "[DONE]" {
			s.done = true
			break
		}

		d, err := s.decode(data)
		if err != nil {
			return stream.Delta{}, err
		}
		if !d.IsEmpty() {
			return d, nil
		}
	}
	return stream.Delta{}, io.EOF
}

func (s *sseStream) Close() error {
	var err error
	s.closeOnce.Do(func() { err = s.body.Close() })
	return err
}

// nextEvent collects "data:" lines until a blank line ends the event.
func (s *sseStream) nextEvent() (string, bool) {
	var dataParts []string
	for s.scanner.Scan() {
		line := s.scanner.Text()
		if line == "" {
			if len(dataParts) == 0 {
				continue
			}
			return strings.Join(dataParts, "\n"), true
		}
		if strings.HasPrefix(line, "data:") {
			dataParts = append(dataParts, strings.TrimSpace(line[5:]))
		}
	}
	if len(dataParts) > 0 {
		return strings.Join(dataParts, "\n"), true
	}
	return "", false
}

func (s *sseStream) decode(data string) (stream.Delta, error) {
	var chunk chunkBody
	if err := json.Unmarshal([]byte(data), &chunk); err != nil {
		// Keep-alive comments and vendor extensions are skipped.
		return stream.Delta{}, nil
	}
	if chunk.Error != nil {
		return stream.Delta{}, &StreamError{Message: chunk.Error.Message}
	}

	var d stream.Delta
	for _, choice := range chunk.Choices {
		d.Message += choice.Delta.Content
		for _, tc := range choice.Delta.ToolCalls {
			buf, ok := s.calls[tc.Index]
			if !ok {
				buf = &toolCallBuf{}
				s.calls[tc.Index] = buf
			}
			if tc.Function.Name != "" {
				buf.name = tc.Function.Name
			}
			if tc.Function.Arguments == "" {
				continue
			}
			buf.arguments.WriteString(tc.Function.Arguments)
			if buf.name != "" && buf.name != ExecuteToolName {
				continue
			}
			lang, code := buf.advance()
			d.Language += lang
			d.Code += code
		}
	}
	return d, nil
}

// advance re-parses the accumulated arguments and returns the newly visible
// suffix of language and code.
func (b *toolCallBuf) advance() (lang, code string) {
	args, ok := parsePartialJSON(b.arguments.String())
	if !ok {
		return "", ""
	}
	if v, _ := args["language"].(string); strings.HasPrefix(v, b.language) {
		lang = v[len(b.language):]
		b.language = v
	}
	if v, _ := args["code"].(string); strings.HasPrefix(v, b.code) {
		code = v[len(b.code):]
		b.code = v
	}
	return lang, code
}

// StreamError is an error event sent inside an otherwise successful stream.
type StreamError struct {
	Message string
}

func (e *StreamError) Error() string { return "provider stream error: " + e.Message }

// parsePartialJSON parses a JSON object that may be cut off mid-way,
// closing any open string, array or object first.
func parsePartialJSON(raw string) (map[string]any, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, false
	}

	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err == nil {
		return out, true
	}

	var (
		closers  []byte
		inString bool
		escaped  bool
	)
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			closers = append(closers, '}')
		case '[':
			closers = append(closers, ']')
		case '}', ']':
			if len(closers) > 0 {
				closers = closers[:len(closers)-1]
			}
		}
	}

	repaired := raw
	if inString {
		if escaped {
			repaired = repaired[:len(repaired)-1]
		}
		repaired += `"`
	} else {
		repaired = strings.TrimRight(repaired, " \t\n\r,:")
	}
	for i := len(closers) - 1; i >= 0; i-- {
		repaired += string(closers[i])
	}

	if err := json.Unmarshal([]byte(repaired), &out); err != nil {
		return nil, false
	}
	return out, true
}
