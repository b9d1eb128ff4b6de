package types

import "fmt"

// -----------------------------------------------------------------------------
// ShareMessage

// NewEmpty implements types.Message.
func (m ShareMessage) NewEmpty() Message {
	return &ShareMessage{}
}

// Name implements types.Message.
func (ShareMessage) Name() string {
	return "share"
}

// String implements types.Message.
func (m ShareMessage) String() string {
	return fmt.Sprintf("{share run %s step %d from %d: %d+%d/%d values}", m.RunID, m.Step, m.Sender,
		m.Offset, len(m.Values), m.Total)
}

// HTML implements types.Message.
func (m ShareMessage) HTML() string {
	return m.String()
}

// -----------------------------------------------------------------------------
// OpenMessage

// NewEmpty implements types.Message.
func (m OpenMessage) NewEmpty() Message {
	return &OpenMessage{}
}

// Name implements types.Message.
func (OpenMessage) Name() string {
	return "open"
}

// String implements types.Message.
func (m OpenMessage) String() string {
	return fmt.Sprintf("{open run %s step %d from %d: %d+%d/%d values}", m.RunID, m.Step, m.Sender,
		m.Offset, len(m.Values), m.Total)
}

// HTML implements types.Message.
func (m OpenMessage) HTML() string {
	return m.String()
}

// -----------------------------------------------------------------------------
// ResendMessage

// NewEmpty implements types.Message.
func (m ResendMessage) NewEmpty() Message {
	return &ResendMessage{}
}

// Name implements types.Message.
func (ResendMessage) Name() string {
	return "resend"
}

// String implements types.Message.
func (m ResendMessage) String() string {
	return fmt.Sprintf("{resend run %s step %d to %d}", m.RunID, m.Step, m.Sender)
}

// HTML implements types.Message.
func (m ResendMessage) HTML() string {
	return m.String()
}

// -----------------------------------------------------------------------------
// AbortMessage

// NewEmpty implements types.Message.
func (m AbortMessage) NewEmpty() Message {
	return &AbortMessage{}
}

// Name implements types.Message.
func (AbortMessage) Name() string {
	return "abort"
}

// String implements types.Message.
func (m AbortMessage) String() string {
	return fmt.Sprintf("{abort run %s by %d in %s: %s: %s}", m.RunID, m.Sender, m.Phase, m.Class, m.Reason)
}

// HTML implements types.Message.
func (m AbortMessage) HTML() string {
	return fmt.Sprintf("abort by party %d<br/>%s / %s<br/>%s", m.Sender, m.Phase, m.Class, m.Reason)
}
