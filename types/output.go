package types

import "fmt"

// RevealedOutput is one party's plaintext view of a finished run. Freighters
// of orders and the list of empty drives are public; route details are only
// present where this party was a designated recipient.
type RevealedOutput struct {
	RunID  string
	Party  int
	Orders []RevealedOrder
	Drives []RevealedDrive
}

// RevealedOrder is the outcome for one order. Freighter is the dummy freighter
// when the order could not be assigned.
type RevealedOrder struct {
	Index     int
	Freighter int
	Details   *OrderDetails `json:",omitempty"`
}

// OrderDetails is the private part of an order.
type OrderDetails struct {
	Origin      int
	Destination int
	Volume      int64
}

// RevealedDrive is an empty drive a freighter must perform to reach an order.
type RevealedDrive struct {
	Iteration int
	Freighter int
	Route     *Route `json:",omitempty"`
}

// Route is a move between two nodes.
type Route struct {
	From int
	To   int
}

// Freighters returns the freighter assigned to every order, in order index.
func (o RevealedOutput) Freighters() []int {
	res := make([]int, len(o.Orders))
	for i, order := range o.Orders {
		res[i] = order.Freighter
	}
	return res
}

// Copy returns a deep copy of the output.
func (o RevealedOutput) Copy() RevealedOutput {
	res := RevealedOutput{
		RunID:  o.RunID,
		Party:  o.Party,
		Orders: make([]RevealedOrder, len(o.Orders)),
		Drives: make([]RevealedDrive, len(o.Drives)),
	}

	for i, order := range o.Orders {
		res.Orders[i] = order
		if order.Details != nil {
			d := *order.Details
			res.Orders[i].Details = &d
		}
	}

	for i, drive := range o.Drives {
		res.Drives[i] = drive
		if drive.Route != nil {
			r := *drive.Route
			res.Drives[i].Route = &r
		}
	}

	return res
}

// String implements fmt.Stringer.
func (o RevealedOutput) String() string {
	return fmt.Sprintf("{run %s party %d: freighters %v, %d empty drives}",
		o.RunID, o.Party, o.Freighters(), len(o.Drives))
}
