package types

// ShareMessage carries the shares a party sends to another party during one
// step of a run: fresh input shares, or sub-shares of a local product during
// resharing. Values are decimal encodings of elements of Z_p. A step with many
// values is split over several messages: Values holds the elements
// [Offset, Offset+len(Values)) out of Total.
type ShareMessage struct {
	RunID  string
	Step   uint64
	Sender int
	Offset int
	Total  int
	Values []string
}

// OpenMessage carries a party's shares of values that are being opened
// towards the receiving party. It is chunked like ShareMessage.
type OpenMessage struct {
	RunID  string
	Step   uint64
	Sender int
	Offset int
	Total  int
	Values []string
}

// ResendMessage asks the receiver to send again everything it sent to Sender
// for Step. Datagrams can be lost, a party that waits too long on a step asks
// for it again.
type ResendMessage struct {
	RunID  string
	Step   uint64
	Sender int
}

// AbortMessage tells every party that the sender aborted the run. It never
// contains a secret-shared value.
type AbortMessage struct {
	RunID  string
	Sender int
	Phase  string
	Class  string
	Reason string
}
