package agent

// Default settings.
const (
	DefaultMemoryWindow = 50
	DefaultTaskMaxSteps = 8
)

// Settings are the agent knobs taken from configuration.
type Settings struct {
	// MemoryWindow is how many recent messages a model call sees.
	MemoryWindow int
	// AutoRunCode executes requested code without asking first.
	AutoRunCode bool
	// TaskMaxSteps bounds the code executions of one background task.
	TaskMaxSteps int
	// TaskMaxAttempts is passed to tasks.WithMaxAttempts.
	TaskMaxAttempts int
}

func (s Settings) withDefaults() Settings {
	if s.MemoryWindow <= 0 {
		s.MemoryWindow = DefaultMemoryWindow
	}
	if s.TaskMaxSteps <= 0 {
		s.TaskMaxSteps = DefaultTaskMaxSteps
	}
	if s.TaskMaxAttempts <= 0 {
		s.TaskMaxAttempts = 1
	}
	return s
}
