// Package plaintext describes freighter day-planning problems and solves them
// without any secrecy. The secure solver follows the same algorithm and its
// result must equal the one of Solve.
package plaintext

import (
	"os"

	"golang.org/x/xerrors"
	"gopkg.in/yaml.v3"
)

// DummyFreighter is the freighter of an order that is not assigned yet.
const DummyFreighter = 0

// ErrInvalidProblem is returned when a problem or a layout is malformed.
var ErrInvalidProblem = xerrors.New("invalid problem")

// Map is the road network. Routes[a][b] is the cost of driving from node a to
// node b.
type Map struct {
	Nodes  int       `yaml:"nodes"`
	Routes [][]int64 `yaml:"routes"`
}

// Freighter is a transport company. Every freighter belongs to one party.
type Freighter struct {
	ID    int `yaml:"id"`
	Party int `yaml:"party"`
}

// Truck is a truck of a freighter, starting the day at a node.
type Truck struct {
	Freighter int `yaml:"freighter"`
	Position  int `yaml:"position"`
}

// Order is a load to move from origin to destination. Party is the party
// that inputs the order.
type Order struct {
	Party       int   `yaml:"party"`
	Origin      int   `yaml:"origin"`
	Destination int   `yaml:"destination"`
	Volume      int64 `yaml:"volume"`
}

// Problem is a complete day-planning problem, public and private parts
// together.
type Problem struct {
	Parties       int         `yaml:"parties"`
	TruckCapacity int64       `yaml:"truck_capacity"`
	Map           Map         `yaml:"map"`
	Freighters    []Freighter `yaml:"freighters"`
	Trucks        []Truck     `yaml:"trucks"`
	Orders        []Order     `yaml:"orders"`
}

// Layout is the public part of a problem: everything but the truck positions
// and the order contents.
type Layout struct {
	Parties       int
	TruckCapacity int64
	Map           Map
	Freighters    []Freighter
	// Trucks holds the freighter of every truck.
	Trucks []int
	// Orders holds the party inputting every order.
	Orders []int
}

// TruckInput is the private part of a truck.
type TruckInput struct {
	Position int `yaml:"position"`
}

// OrderInput is the private part of an order.
type OrderInput struct {
	Origin      int   `yaml:"origin"`
	Destination int   `yaml:"destination"`
	Volume      int64 `yaml:"volume"`
}

// PartyInput is the private input of a party: its trucks and its orders, in
// the order of the layout.
type PartyInput struct {
	Trucks []TruckInput `yaml:"trucks"`
	Orders []OrderInput `yaml:"orders"`
}

// Plan is the decision structure of the algorithm for a layout. The number
// of iterations is the same whatever the private inputs.
type Plan struct {
	Iterations int
	Trucks     int
	Orders     int
	Nodes      int
}

// LoadProblem reads a problem from a yaml file.
func LoadProblem(path string) (Problem, error) {
	var p Problem

	data, err := os.ReadFile(path)
	if err != nil {
		return p, xerrors.Errorf("failed to read problem: %v", err)
	}

	err = yaml.Unmarshal(data, &p)
	if err != nil {
		return p, xerrors.Errorf("failed to parse problem: %v", err)
	}

	return p, p.Validate()
}

// Save writes the problem to a yaml file.
func (p Problem) Save(path string) error {
	data, err := yaml.Marshal(p)
	if err != nil {
		return xerrors.Errorf("failed to marshal problem: %v", err)
	}

	return os.WriteFile(path, data, 0644)
}

// Validate checks the public layout and every private value.
func (p Problem) Validate() error {
	layout := p.Layout()

	err := layout.Validate()
	if err != nil {
		return err
	}

	for i, t := range p.Trucks {
		if !layout.IsNode(t.Position) {
			return xerrors.Errorf("%w: truck %d is at unknown node %d", ErrInvalidProblem, i, t.Position)
		}
	}

	for i, o := range p.Orders {
		err := layout.CheckOrder(o.Origin, o.Destination, o.Volume)
		if err != nil {
			return xerrors.Errorf("order %d: %w", i, err)
		}
	}

	return nil
}

// Layout returns the public part of the problem.
func (p Problem) Layout() Layout {
	trucks := make([]int, len(p.Trucks))
	for i, t := range p.Trucks {
		trucks[i] = t.Freighter
	}

	orders := make([]int, len(p.Orders))
	for i, o := range p.Orders {
		orders[i] = o.Party
	}

	return Layout{
		Parties:       p.Parties,
		TruckCapacity: p.TruckCapacity,
		Map:           p.Map,
		Freighters:    append([]Freighter{}, p.Freighters...),
		Trucks:        trucks,
		Orders:        orders,
	}
}

// InputOf returns the private input of a party.
func (p Problem) InputOf(party int) PartyInput {
	layout := p.Layout()
	in := PartyInput{
		Trucks: []TruckInput{},
		Orders: []OrderInput{},
	}

	for i, t := range p.Trucks {
		owner, ok := layout.PartyOf(t.Freighter)
		if ok && owner == party {
			in.Trucks = append(in.Trucks, TruckInput{Position: p.Trucks[i].Position})
		}
	}

	for _, o := range p.Orders {
		if o.Party == party {
			in.Orders = append(in.Orders, OrderInput{
				Origin:      o.Origin,
				Destination: o.Destination,
				Volume:      o.Volume,
			})
		}
	}

	return in
}

// Validate checks the public values of the layout.
func (l Layout) Validate() error {
	switch {
	case l.Parties < 1:
		return xerrors.Errorf("%w: no party", ErrInvalidProblem)
	case l.TruckCapacity < 1:
		return xerrors.Errorf("%w: truck capacity must be positive", ErrInvalidProblem)
	case l.Map.Nodes < 1:
		return xerrors.Errorf("%w: empty map", ErrInvalidProblem)
	case len(l.Map.Routes) != l.Map.Nodes:
		return xerrors.Errorf("%w: %d route rows for %d nodes", ErrInvalidProblem, len(l.Map.Routes), l.Map.Nodes)
	case len(l.Orders) > 0 && len(l.Trucks) == 0:
		return xerrors.Errorf("%w: orders but no truck", ErrInvalidProblem)
	}

	for a, row := range l.Map.Routes {
		if len(row) != l.Map.Nodes {
			return xerrors.Errorf("%w: route row %d has %d entries", ErrInvalidProblem, a, len(row))
		}
		for b, cost := range row {
			if cost < 0 {
				return xerrors.Errorf("%w: negative cost from %d to %d", ErrInvalidProblem, a, b)
			}
		}
	}

	seen := make(map[int]struct{}, len(l.Freighters))
	for _, f := range l.Freighters {
		if f.ID == DummyFreighter || f.ID < 0 {
			return xerrors.Errorf("%w: invalid freighter id %d", ErrInvalidProblem, f.ID)
		}
		if f.Party < 0 || f.Party >= l.Parties {
			return xerrors.Errorf("%w: freighter %d belongs to unknown party %d", ErrInvalidProblem, f.ID, f.Party)
		}
		_, found := seen[f.ID]
		if found {
			return xerrors.Errorf("%w: duplicate freighter %d", ErrInvalidProblem, f.ID)
		}
		seen[f.ID] = struct{}{}
	}

	for i, f := range l.Trucks {
		_, found := seen[f]
		if !found {
			return xerrors.Errorf("%w: truck %d has unknown freighter %d", ErrInvalidProblem, i, f)
		}
	}

	for i, party := range l.Orders {
		if party < 0 || party >= l.Parties {
			return xerrors.Errorf("%w: order %d has unknown party %d", ErrInvalidProblem, i, party)
		}
	}

	return nil
}

// Plan returns the decision structure for the layout. Every iteration of the
// algorithm either assigns an order or drives an empty truck to the origin of
// an unassigned order, which gets assigned at the next iteration, so two
// iterations per order always suffice.
func (l Layout) Plan() Plan {
	return Plan{
		Iterations: 2 * len(l.Orders),
		Trucks:     len(l.Trucks),
		Orders:     len(l.Orders),
		Nodes:      l.Map.Nodes,
	}
}

// DummyNode is the destination of a truck that has none.
func (l Layout) DummyNode() int {
	return l.Map.Nodes
}

// IsNode tells whether node is a node of the map.
func (l Layout) IsNode(node int) bool {
	return node >= 0 && node < l.Map.Nodes
}

// CheckOrder checks the private values of an order against the layout.
func (l Layout) CheckOrder(origin, destination int, volume int64) error {
	switch {
	case !l.IsNode(origin):
		return xerrors.Errorf("%w: unknown origin %d", ErrInvalidProblem, origin)
	case !l.IsNode(destination):
		return xerrors.Errorf("%w: unknown destination %d", ErrInvalidProblem, destination)
	case volume < 1 || volume > l.TruckCapacity:
		return xerrors.Errorf("%w: volume %d outside [1, %d]", ErrInvalidProblem, volume, l.TruckCapacity)
	}
	return nil
}

// PartyOf returns the party owning a freighter.
func (l Layout) PartyOf(freighter int) (int, bool) {
	for _, f := range l.Freighters {
		if f.ID == freighter {
			return f.Party, true
		}
	}
	return 0, false
}

// TrucksOf returns the indices of the trucks of a party.
func (l Layout) TrucksOf(party int) []int {
	res := []int{}
	for i, f := range l.Trucks {
		owner, ok := l.PartyOf(f)
		if ok && owner == party {
			res = append(res, i)
		}
	}
	return res
}

// OrdersOf returns the indices of the orders of a party.
func (l Layout) OrdersOf(party int) []int {
	res := []int{}
	for i, owner := range l.Orders {
		if owner == party {
			res = append(res, i)
		}
	}
	return res
}

// MaxValue returns the largest public value the algorithm computes with.
func (l Layout) MaxValue() int64 {
	max := int64(l.DummyNode())
	if l.TruckCapacity > max {
		max = l.TruckCapacity
	}
	for _, f := range l.Freighters {
		if int64(f.ID) > max {
			max = int64(f.ID)
		}
	}
	for _, row := range l.Map.Routes {
		for _, cost := range row {
			if cost > max {
				max = cost
			}
		}
	}
	return max
}

// Check checks a party's private input against the layout.
func (l Layout) Check(party int, in PartyInput) error {
	trucks := l.TrucksOf(party)
	if len(in.Trucks) != len(trucks) {
		return xerrors.Errorf("%w: party %d has %d trucks instead of %d",
			ErrInvalidProblem, party, len(in.Trucks), len(trucks))
	}

	orders := l.OrdersOf(party)
	if len(in.Orders) != len(orders) {
		return xerrors.Errorf("%w: party %d has %d orders instead of %d",
			ErrInvalidProblem, party, len(in.Orders), len(orders))
	}

	for i, t := range in.Trucks {
		if !l.IsNode(t.Position) {
			return xerrors.Errorf("%w: truck %d is at unknown node %d", ErrInvalidProblem, trucks[i], t.Position)
		}
	}

	for i, o := range in.Orders {
		err := l.CheckOrder(o.Origin, o.Destination, o.Volume)
		if err != nil {
			return xerrors.Errorf("order %d: %w", orders[i], err)
		}
	}

	return nil
}
