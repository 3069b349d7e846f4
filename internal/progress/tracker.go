package progress

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// Tracker renders a one-line progress bar for a fixed list of pipeline stages
type Tracker struct {
	out          io.Writer
	phases       []Phase
	currentPhase int
	startTime    time.Time
	mu           sync.Mutex
	enabled      bool
}

// Phase represents a single stage of a scan
type Phase struct {
	Name        string
	Description string
	Status      PhaseStatus
	StartTime   time.Time
	EndTime     time.Time
}

// PhaseStatus represents the status of a phase
type PhaseStatus int

const (
	StatusPending PhaseStatus = iota
	StatusRunning
	StatusCompleted
	StatusSkipped
	StatusFailed
)

func (s PhaseStatus) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusCompleted:
		return "completed"
	case StatusSkipped:
		return "skipped"
	case StatusFailed:
		return "failed"
	default:
		return "pending"
	}
}

// New creates a tracker writing to out. A disabled tracker still records state but prints nothing.
func New(out io.Writer, enabled bool) *Tracker {
	if out == nil {
		out = io.Discard
	}
	return &Tracker{
		out:       out,
		phases:    []Phase{},
		startTime: time.Now(),
		enabled:   enabled,
	}
}

// AddPhase adds a new phase to track
func (t *Tracker) AddPhase(name, description string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.phases = append(t.phases, Phase{
		Name:        name,
		Description: description,
		Status:      StatusPending,
	})
}

// StartPhase marks a phase as started
func (t *Tracker) StartPhase(name string) {
	t.update(name, func(p *Phase) {
		p.Status = StatusRunning
		p.StartTime = time.Now()
	})
}

// CompletePhase marks a phase as completed
func (t *Tracker) CompletePhase(name string) {
	t.update(name, func(p *Phase) {
		p.Status = StatusCompleted
		p.EndTime = time.Now()
	})
}

// SkipPhase marks a phase that the pipeline decided not to run
func (t *Tracker) SkipPhase(name string) {
	t.update(name, func(p *Phase) {
		p.Status = StatusSkipped
		p.EndTime = time.Now()
	})
}

// FailPhase marks a phase as failed
func (t *Tracker) FailPhase(name string, err error) {
	t.update(name, func(p *Phase) {
		p.Status = StatusFailed
		p.EndTime = time.Now()
	})
	if t.enabled {
		fmt.Fprintf(t.out, "\n❌ Stage %s failed: %v\n", name, err)
	}
}

func (t *Tracker) update(name string, fn func(p *Phase)) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range t.phases {
		if t.phases[i].Name == name {
			fn(&t.phases[i])
			t.currentPhase = i
			t.render()
			return
		}
	}
}

// Phases returns a snapshot of all phases
func (t *Tracker) Phases() []Phase {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Phase, len(t.phases))
	copy(out, t.phases)
	return out
}

// render displays the current progress state
func (t *Tracker) render() {
	if !t.enabled {
		return
	}

	fmt.Fprint(t.out, "\r\033[K")

	done := 0
	for _, phase := range t.phases {
		if phase.Status == StatusCompleted || phase.Status == StatusSkipped {
			done++
		}
	}

	overall := 0
	if len(t.phases) > 0 {
		overall = (done * 100) / len(t.phases)
	}

	barWidth := 30
	filled := (overall * barWidth) / 100
	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)

	current := ""
	if t.currentPhase < len(t.phases) {
		current = t.phases[t.currentPhase].Description
	}

	fmt.Fprintf(t.out, "[%s] %d%% | %s | %s", bar, overall, current, formatDuration(time.Since(t.startTime)))
}

// Complete clears the progress line and prints the elapsed time
func (t *Tracker) Complete() {
	if !t.enabled {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	fmt.Fprint(t.out, "\r\033[K")
	fmt.Fprintf(t.out, "✅ Scan completed in %s\n", formatDuration(time.Since(t.startTime)))
}

// formatDuration formats a duration in human-readable form
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "< 1s"
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%dm %ds", minutes, seconds)
}
