package plaintext

import (
	"math/rand"

	"golang.org/x/xerrors"
)

// GeneratorConfig sets the shape of random problems. Nodes form a square
// grid of GridSize x GridSize nodes.
type GeneratorConfig struct {
	Parties       int   `yaml:"parties"`
	Freighters    int   `yaml:"freighters"`
	MinTrucks     int   `yaml:"min_trucks"`
	MaxTrucks     int   `yaml:"max_trucks"`
	TruckCapacity int64 `yaml:"truck_capacity"`
	Orders        int   `yaml:"orders"`
	MinVolume     int64 `yaml:"min_volume"`
	MaxVolume     int64 `yaml:"max_volume"`
	GridSize      int   `yaml:"grid_size"`
	Seed          int64 `yaml:"seed"`
}

// DefaultGeneratorConfig is a small problem for three parties.
var DefaultGeneratorConfig = GeneratorConfig{
	Parties:       3,
	Freighters:    3,
	MinTrucks:     1,
	MaxTrucks:     2,
	TruckCapacity: 10,
	Orders:        4,
	MinVolume:     1,
	MaxVolume:     6,
	GridSize:      3,
	Seed:          42,
}

// Generator produces random problems on a grid where driving between two
// nodes costs their Manhattan distance. The same configuration always gives
// the same problem.
type Generator struct {
	conf GeneratorConfig
	rand *rand.Rand
}

// NewGenerator checks the configuration and returns a generator.
func NewGenerator(conf GeneratorConfig) (*Generator, error) {
	switch {
	case conf.Parties < 1:
		return nil, xerrors.Errorf("%w: need at least one party", ErrInvalidProblem)
	case conf.Freighters < 1:
		return nil, xerrors.Errorf("%w: need at least one freighter", ErrInvalidProblem)
	case conf.MinTrucks < 1 || conf.MaxTrucks < conf.MinTrucks:
		return nil, xerrors.Errorf("%w: invalid truck range [%d, %d]", ErrInvalidProblem, conf.MinTrucks, conf.MaxTrucks)
	case conf.MinVolume < 1 || conf.MaxVolume < conf.MinVolume || conf.MaxVolume > conf.TruckCapacity:
		return nil, xerrors.Errorf("%w: invalid volume range [%d, %d] for capacity %d",
			ErrInvalidProblem, conf.MinVolume, conf.MaxVolume, conf.TruckCapacity)
	case conf.Orders < 0:
		return nil, xerrors.Errorf("%w: negative number of orders", ErrInvalidProblem)
	case conf.GridSize < 1:
		return nil, xerrors.Errorf("%w: empty grid", ErrInvalidProblem)
	}

	return &Generator{
		conf: conf,
		rand: rand.New(rand.NewSource(conf.Seed)),
	}, nil
}

// Problem returns a new random problem. Freighters are dealt to the parties
// in turn, orders belong to random parties and never start where they end
// unless the grid has a single node.
func (g *Generator) Problem() Problem {
	c := g.conf

	p := Problem{
		Parties:       c.Parties,
		TruckCapacity: c.TruckCapacity,
		Map:           gridMap(c.GridSize),
		Freighters:    make([]Freighter, c.Freighters),
		Trucks:        []Truck{},
		Orders:        make([]Order, c.Orders),
	}

	for i := range p.Freighters {
		p.Freighters[i] = Freighter{ID: i + 1, Party: i % c.Parties}
	}

	for _, f := range p.Freighters {
		n := c.MinTrucks + g.rand.Intn(c.MaxTrucks-c.MinTrucks+1)
		for i := 0; i < n; i++ {
			p.Trucks = append(p.Trucks, Truck{
				Freighter: f.ID,
				Position:  g.rand.Intn(p.Map.Nodes),
			})
		}
	}

	for i := range p.Orders {
		origin := g.rand.Intn(p.Map.Nodes)
		destination := origin
		for p.Map.Nodes > 1 && destination == origin {
			destination = g.rand.Intn(p.Map.Nodes)
		}

		p.Orders[i] = Order{
			Party:       g.rand.Intn(c.Parties),
			Origin:      origin,
			Destination: destination,
			Volume:      c.MinVolume + g.rand.Int63n(c.MaxVolume-c.MinVolume+1),
		}
	}

	return p
}

func gridMap(size int) Map {
	nodes := size * size
	routes := make([][]int64, nodes)

	for a := range routes {
		routes[a] = make([]int64, nodes)
		ax, ay := a%size, a/size
		for b := range routes[a] {
			bx, by := b%size, b/size
			routes[a][b] = int64(abs(ax-bx) + abs(ay-by))
		}
	}

	return Map{Nodes: nodes, Routes: routes}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
