package workflow

// State represents a state in a billing lifecycle. Each lifecycle (invoice,
// payment, waiver) declares its own state set when it configures a builder;
// the machine treats states as opaque beyond the configured transitions.
type State string

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// Trigger represents an event that can cause a state transition
type Trigger string

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}
