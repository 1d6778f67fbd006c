package attempt

import (
	"fmt"
	"time"
)

type SignalKind string

const (
	SignalVisibilityHidden SignalKind = "visibility_hidden"
	SignalBlur             SignalKind = "blur"
	SignalPointerLeave     SignalKind = "pointer_leave"
	SignalKeyCombo         SignalKind = "key_combo"
)

const (
	DefaultViolationLimit = 3
	DefaultMinInterval    = 500 * time.Millisecond

	// BlurGrace is how long the client waits after a blur before reporting
	// whether focus came back.
	BlurGrace = 100 * time.Millisecond
)

// Signal is one focus-loss observation reported by the attempt surface.
type Signal struct {
	Kind SignalKind `json:"kind" validate:"required,oneof=visibility_hidden blur pointer_leave key_combo"`

	// blur: state of the page BlurGrace after the event
	Refocused bool `json:"refocused,omitempty"`
	Hidden    bool `json:"hidden,omitempty"`

	// pointer_leave
	ClientY  int  `json:"client_y,omitempty"`
	HasFocus bool `json:"has_focus,omitempty"`

	// key_combo
	Key  string `json:"key,omitempty"`
	Alt  bool   `json:"alt,omitempty"`
	Meta bool   `json:"meta,omitempty"`

	At time.Time `json:"-"` // stamped on receipt
}

// qualifies filters out events that do not mean the student left the page.
// A blur on a hidden page is left to the visibility signal.
func (s Signal) qualifies() bool {
	switch s.Kind {
	case SignalVisibilityHidden:
		return true
	case SignalBlur:
		return !s.Refocused && !s.Hidden
	case SignalPointerLeave:
		return s.ClientY <= 0 && s.HasFocus
	case SignalKeyCombo:
		return (s.Alt && s.Key == "Tab") || s.Key == "Meta" || (s.Meta && s.Key == "Tab")
	}
	return false
}

func (s Signal) warningTTL() time.Duration {
	switch s.Kind {
	case SignalVisibilityHidden, SignalBlur:
		return 3 * time.Second
	default:
		return 2 * time.Second
	}
}

func (s Signal) describe() string {
	switch s.Kind {
	case SignalVisibilityHidden:
		return "Tab switching detected"
	case SignalBlur:
		return "Window switching detected"
	case SignalPointerLeave:
		return "Leaving the quiz area detected"
	default:
		return "Switching shortcut detected"
	}
}

type MonitorState string

const (
	MonitorIdle       MonitorState = "idle"
	MonitorArmed      MonitorState = "armed"
	MonitorWarning    MonitorState = "warning"
	MonitorTerminated MonitorState = "terminated"
)

// Verdict is what one observed signal did to the monitor.
type Verdict struct {
	Counted    bool          `json:"counted"`
	Count      int           `json:"violations"`
	Warning    string        `json:"warning,omitempty"`
	WarningTTL time.Duration `json:"-"`
	TTLMillis  int64         `json:"warning_ttl_ms,omitempty"`
	Terminate  bool          `json:"terminate"`
}

// Monitor enforces the violation budget for one attempt. It is not safe
// for concurrent use; the owning Session serializes access.
type Monitor struct {
	limit       int
	minInterval time.Duration

	armed       bool
	terminated  bool
	count       int
	lastCounted time.Time
}

func NewMonitor(limit int, minInterval time.Duration) *Monitor {
	if limit <= 0 {
		limit = DefaultViolationLimit
	}
	if minInterval < 0 {
		minInterval = 0
	}
	return &Monitor{limit: limit, minInterval: minInterval}
}

func (m *Monitor) Arm() {
	if !m.terminated {
		m.armed = true
	}
}

// Disarm stops counting. Nothing re-arms a monitor once its session ends.
func (m *Monitor) Disarm() { m.armed = false }

func (m *Monitor) Count() int { return m.count }
func (m *Monitor) Limit() int { return m.limit }

func (m *Monitor) State() MonitorState {
	switch {
	case m.terminated:
		return MonitorTerminated
	case !m.armed:
		return MonitorIdle
	case m.count > 0:
		return MonitorWarning
	default:
		return MonitorArmed
	}
}

// Observe is the single intake for every signal kind.
func (m *Monitor) Observe(sig Signal) Verdict {
	if !m.armed || m.terminated || !sig.qualifies() {
		return Verdict{Count: m.count}
	}
	if !m.lastCounted.IsZero() && sig.At.Sub(m.lastCounted) <= m.minInterval {
		return Verdict{Count: m.count}
	}
	m.count++
	m.lastCounted = sig.At

	v := Verdict{Counted: true, Count: m.count}
	if m.count >= m.limit {
		m.terminated = true
		m.armed = false
		v.Terminate = true
		v.Warning = fmt.Sprintf("%s. Violation limit reached, submitting.", sig.describe())
		return v
	}
	v.Warning = fmt.Sprintf("%s. Warning %d of %d.", sig.describe(), m.count, m.limit-1)
	v.WarningTTL = sig.warningTTL()
	v.TTLMillis = v.WarningTTL.Milliseconds()
	return v
}
