package solver

import (
	"go.dedis.ch/mupol/peer"
	"go.dedis.ch/mupol/peer/impl/engine"
	"go.dedis.ch/mupol/plaintext"
)

// OrderState is the secret-shared state of an order.
type OrderState struct {
	// Freighter is plaintext.DummyFreighter while the order is open.
	Freighter   engine.SecretValue
	Origin      engine.SecretValue
	Destination engine.SecretValue
	Volume      engine.SecretValue
}

// DriveState is an empty drive that may have happened at an iteration. It
// only took place if Valid is 1.
type DriveState struct {
	Iteration int
	Valid     engine.SecretBit
	Freighter engine.SecretValue
	From      engine.SecretValue
	To        engine.SecretValue
}

// AssignmentState is the secret-shared result of the solver, one drive per
// iteration.
type AssignmentState struct {
	RunID  string
	Phase  peer.Phase
	Layout plaintext.Layout
	Orders []OrderState
	Drives []DriveState
}

type truckState struct {
	freighter   int
	position    engine.SecretValue
	destination engine.SecretValue
	capacity    engine.SecretValue
}

type orderState struct {
	origin      engine.SecretValue
	destination engine.SecretValue
	volume      engine.SecretValue
	freighter   engine.SecretValue
	processed   engine.SecretBit
	thisRound   engine.SecretBit
}
