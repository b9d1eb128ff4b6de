package plaintext

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/xerrors"
)

// Drive is a truck driving empty to the origin of an order.
type Drive struct {
	Iteration int
	Freighter int
	From      int
	To        int
}

// Assignment is the result of the algorithm.
type Assignment struct {
	// Orders holds the freighter of every order.
	Orders []int
	Drives []Drive
	// Iterations is the number of iterations that did something.
	Iterations int
}

// String implements fmt.Stringer.
func (a Assignment) String() string {
	out := new(strings.Builder)

	for i, f := range a.Orders {
		fmt.Fprintf(out, "order %d -> freighter %d\n", i, f)
	}
	for _, d := range a.Drives {
		fmt.Fprintf(out, "iteration %d: freighter %d drives empty %d -> %d\n", d.Iteration, d.Freighter, d.From, d.To)
	}

	return out.String()
}

type truckState struct {
	freighter   int
	position    int
	destination int
	capacity    int64
}

type orderState struct {
	Order
	processed bool
	freighter int
}

// Solve assigns every order to a truck. Trucks are filled with the orders
// starting at their position and going to the same destination. When no
// order could be assigned, the truck closest to the origin of the first open
// order drives there empty.
func Solve(p Problem) (Assignment, error) {
	err := p.Validate()
	if err != nil {
		return Assignment{}, err
	}

	layout := p.Layout()
	plan := layout.Plan()
	dummy := layout.DummyNode()

	trucks := make([]truckState, len(p.Trucks))
	for i, t := range p.Trucks {
		trucks[i] = truckState{
			freighter:   t.Freighter,
			position:    t.Position,
			destination: dummy,
			capacity:    p.TruckCapacity,
		}
	}

	orders := make([]orderState, len(p.Orders))
	for i, o := range p.Orders {
		orders[i] = orderState{Order: o, freighter: DummyFreighter}
	}

	res := Assignment{
		Orders: make([]int, len(orders)),
		Drives: []Drive{},
	}

	processed := 0
	iteration := 0

	for processed < len(orders) {
		if iteration >= plan.Iterations {
			return res, xerrors.Errorf("%w: %d orders left after %d iterations",
				ErrInvalidProblem, len(orders)-processed, iteration)
		}

		added := fillTrucks(trucks, orders, p.TruckCapacity, dummy)
		log.Debug().Msgf("iteration %d: %d orders assigned", iteration, added)

		if added == 0 {
			res.Drives = append(res.Drives, driveEmpty(trucks, orders, p.Map, iteration))
		}

		processed += added
		iteration++
	}

	for i, o := range orders {
		res.Orders[i] = o.freighter
	}
	res.Iterations = iteration

	return res, nil
}

func fillTrucks(trucks []truckState, orders []orderState, capacity int64, dummy int) int {
	added := 0

	for i := range trucks {
		t := &trucks[i]

		for j := range orders {
			o := &orders[j]

			compatible := t.position == o.Origin &&
				(t.destination == dummy || t.destination == o.Destination) &&
				t.capacity-o.Volume >= 0 &&
				!o.processed

			if !compatible {
				continue
			}

			t.destination = o.Destination
			t.capacity -= o.Volume
			o.processed = true
			o.freighter = t.freighter
			added++
		}

		if t.destination != dummy {
			t.position = t.destination
		}
		t.destination = dummy
		t.capacity = capacity
	}

	return added
}

func driveEmpty(trucks []truckState, orders []orderState, m Map, iteration int) Drive {
	origin := 0
	for _, o := range orders {
		if !o.processed {
			origin = o.Origin
			break
		}
	}

	closest := 0
	for i, t := range trucks {
		if m.Routes[t.position][origin] < m.Routes[trucks[closest].position][origin] {
			closest = i
		}
	}

	t := &trucks[closest]
	drive := Drive{
		Iteration: iteration,
		Freighter: t.freighter,
		From:      t.position,
		To:        origin,
	}
	t.position = origin

	return drive
}
