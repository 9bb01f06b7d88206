package visual

// ControlCommandType represents types of control instructions from the UI.
type ControlCommandType string

const (
	CommandNone    ControlCommandType = "none"
	CommandPause   ControlCommandType = "pause"
	CommandResume  ControlCommandType = "resume"
	CommandStop    ControlCommandType = "stop"
	CommandStep    ControlCommandType = "step"
	CommandSetRate ControlCommandType = "set-rate"
)

// ControlCommand captures a control instruction for the engine.
type ControlCommand struct {
	Type       ControlCommandType `json:"type"`
	TickRateHz float64            `json:"tickRateHz,omitempty"`
}

// Publisher receives the settled frame once per tick. Implementations must
// not retain references into engine internals; the engine hands over a
// fresh projection each tick.
type Publisher interface {
	Publish(frame any)
}

// NullPublisher discards frames; used in headless mode.
type NullPublisher struct{}

func (NullPublisher) Publish(frame any) {}
