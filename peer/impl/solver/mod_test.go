package solver_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	z "go.dedis.ch/mupol/internal/testing"
	"go.dedis.ch/mupol/peer"
	"go.dedis.ch/mupol/peer/impl/engine"
	"go.dedis.ch/mupol/peer/impl/solver"
	"go.dedis.ch/mupol/plaintext"
)

// twoTrucks returns a problem for two parties with one truck each. The only
// order starts at node 0, which is 10 away from node 1 and 7 away from node 2.
func twoTrucks(first, second int) plaintext.Problem {
	return plaintext.Problem{
		Parties:       2,
		TruckCapacity: 5,
		Map: plaintext.Map{
			Nodes: 4,
			Routes: [][]int64{
				{0, 10, 7, 3},
				{10, 0, 4, 9},
				{7, 4, 0, 6},
				{3, 9, 6, 0},
			},
		},
		Freighters: []plaintext.Freighter{{ID: 1, Party: 0}, {ID: 2, Party: 1}},
		Trucks: []plaintext.Truck{
			{Freighter: 1, Position: first},
			{Freighter: 2, Position: second},
		},
		Orders: []plaintext.Order{{Party: 0, Origin: 0, Destination: 3, Volume: 1}},
	}
}

type result struct {
	assignment plaintext.Assignment
	states     []*solver.AssignmentState
	traces     []engine.TraceSummary
}

// solve runs the secure solver on every party and opens the whole state to
// everyone.
func solve(t *testing.T, p plaintext.Problem, opts ...z.Option) result {
	n := p.Parties
	sessions := z.NewSessions(t, n, append([]z.Option{z.WithBitLength(8)}, opts...)...)
	layout := p.Layout()

	states := make([]*solver.AssignmentState, n)
	errs := z.Parallel(n, func(i int) error {
		sv, err := solver.New(sessions[i], layout)
		if err != nil {
			return err
		}
		states[i], err = sv.Solve(context.Background(), p.InputOf(i))
		return err
	})
	z.RequireNoErrors(t, errs)

	res := result{states: states, traces: make([]engine.TraceSummary, n)}
	for i, s := range sessions {
		res.traces[i] = s.Trace().Summary()
		require.Equal(t, peer.PhaseFinalize, states[i].Phase)
		require.Equal(t, peer.PhaseFinalize, s.Phase())
	}

	values := make([][]engine.SecretValue, n)
	for i, state := range states {
		for _, o := range state.Orders {
			values[i] = append(values[i], o.Freighter)
		}
		for _, d := range state.Drives {
			values[i] = append(values[i], d.Valid.SecretValue, d.Freighter, d.From, d.To)
		}
	}
	opened := z.Reveal(t, sessions, values)

	m := len(p.Orders)
	res.assignment.Orders = make([]int, m)
	for j := range p.Orders {
		res.assignment.Orders[j] = int(opened[j])
	}

	res.assignment.Drives = []plaintext.Drive{}
	for it := 0; it < len(states[0].Drives); it++ {
		d := opened[m+4*it : m+4*it+4]
		require.Contains(t, []int64{0, 1}, d[0])
		if d[0] == 1 {
			res.assignment.Drives = append(res.assignment.Drives, plaintext.Drive{
				Iteration: it,
				Freighter: int(d[1]),
				From:      int(d[2]),
				To:        int(d[3]),
			})
		}
	}

	return res
}

func Test_Solver_Lower_Cost_Wins(t *testing.T) {
	res := solve(t, twoTrucks(1, 2))

	require.Equal(t, []int{2}, res.assignment.Orders)
	require.Equal(t, []plaintext.Drive{{Iteration: 0, Freighter: 2, From: 2, To: 0}}, res.assignment.Drives)

	reversed := solve(t, twoTrucks(2, 1))

	require.Equal(t, []int{1}, reversed.assignment.Orders)
	require.Equal(t, []plaintext.Drive{{Iteration: 0, Freighter: 1, From: 2, To: 0}}, reversed.assignment.Drives)

	// the shape of the computation does not depend on who is closer
	require.Equal(t, res.traces, reversed.traces)
	require.Equal(t, res.traces[0], res.traces[1])
}

func Test_Solver_Matches_Plaintext(t *testing.T) {
	for seed := int64(1); seed <= 3; seed++ {
		conf := plaintext.GeneratorConfig{
			Parties:       3,
			Freighters:    3,
			MinTrucks:     1,
			MaxTrucks:     1,
			TruckCapacity: 4,
			Orders:        3,
			MinVolume:     1,
			MaxVolume:     3,
			GridSize:      2,
			Seed:          seed,
		}

		gen, err := plaintext.NewGenerator(conf)
		require.NoError(t, err)
		p := gen.Problem()

		expected, err := plaintext.Solve(p)
		require.NoError(t, err)

		res := solve(t, p)

		diff := cmp.Diff(expected.Orders, res.assignment.Orders)
		require.Empty(t, diff, "seed %d", seed)
		diff = cmp.Diff(expected.Drives, res.assignment.Drives)
		require.Empty(t, diff, "seed %d", seed)

		require.Len(t, res.states[0].Drives, p.Layout().Plan().Iterations)
	}
}

func Test_Solver_Trace_Depends_On_Layout_Only(t *testing.T) {
	p := twoTrucks(0, 3)
	p.Orders = []plaintext.Order{
		{Party: 0, Origin: 0, Destination: 3, Volume: 2},
		{Party: 1, Origin: 1, Destination: 2, Volume: 5},
	}

	q := twoTrucks(2, 2)
	q.Orders = []plaintext.Order{
		{Party: 0, Origin: 3, Destination: 0, Volume: 4},
		{Party: 1, Origin: 3, Destination: 0, Volume: 1},
	}

	first := solve(t, p)
	second := solve(t, q)

	require.Equal(t, first.traces, second.traces)

	for i, run := range []result{first, second} {
		expected, err := plaintext.Solve([]plaintext.Problem{p, q}[i])
		require.NoError(t, err)

		require.Equal(t, expected.Orders, run.assignment.Orders)
		require.Equal(t, expected.Drives, run.assignment.Drives)
	}
}

func Test_Solver_No_Orders(t *testing.T) {
	p := twoTrucks(1, 2)
	p.Orders = []plaintext.Order{}

	res := solve(t, p)

	require.Empty(t, res.assignment.Orders)
	require.Empty(t, res.assignment.Drives)
	require.Len(t, res.states[0].Drives, 0)
}

func Test_Solver_Range_Violation(t *testing.T) {
	p := twoTrucks(1, 2)
	p.Orders = append(p.Orders, plaintext.Order{Party: 1, Origin: 2, Destination: 1, Volume: 300})

	sessions := z.NewSessions(t, 2, z.WithBitLength(8))
	layout := p.Layout()

	errs := z.Parallel(2, func(i int) error {
		sv, err := solver.New(sessions[i], layout)
		if err != nil {
			return err
		}
		_, err = sv.Solve(context.Background(), p.InputOf(i))
		return err
	})

	for i, err := range errs {
		require.True(t, errors.Is(err, peer.ErrRangeViolation), "party %d: %v", i, err)

		var runErr *peer.RunError
		require.True(t, errors.As(err, &runErr))
		require.Equal(t, peer.PhaseInit, runErr.Phase)
		require.Equal(t, peer.RangeViolation, runErr.Class)

		require.Equal(t, uint64(0), sessions[i].Trace().Rounds())
	}
}

func Test_Solver_Invalid_Layout(t *testing.T) {
	sessions := z.NewSessions(t, 2, z.WithBitLength(4))

	tooFar := twoTrucks(1, 2).Layout()
	tooFar.TruckCapacity = 20

	wrongParties := twoTrucks(1, 2).Layout()
	wrongParties.Parties = 3

	broken := twoTrucks(1, 2).Layout()
	broken.Map.Routes = broken.Map.Routes[:2]

	for _, layout := range []plaintext.Layout{tooFar, wrongParties, broken} {
		_, err := solver.New(sessions[0], layout)
		require.True(t, errors.Is(err, peer.ErrInvalidConfiguration), "%v", err)
	}
}

func Test_Solver_Wrong_Input(t *testing.T) {
	p := twoTrucks(1, 2)
	sessions := z.NewSessions(t, 2, z.WithBitLength(8))

	errs := z.Parallel(2, func(i int) error {
		sv, err := solver.New(sessions[i], p.Layout())
		if err != nil {
			return err
		}

		in := p.InputOf(i)
		if i == 1 {
			in.Trucks = append(in.Trucks, plaintext.TruckInput{Position: 0})
		}

		_, err = sv.Solve(context.Background(), in)
		if err != nil {
			return err
		}

		_, err = sv.Solve(context.Background(), in)
		return err
	})

	for i, err := range errs {
		require.True(t, errors.Is(err, peer.ErrInvalidConfiguration), "party %d: %v", i, err)
	}
}

// With two parties there are no redundant shares: a different route matrix
// at one party must still be caught before any input is shared.
func Test_Solver_Layout_Mismatch(t *testing.T) {
	p := twoTrucks(1, 2)
	sessions := z.NewSessions(t, 2, z.WithBitLength(8))

	layouts := []plaintext.Layout{p.Layout(), p.Layout()}
	layouts[1].Map.Routes = [][]int64{
		{0, 3, 7, 3},
		{3, 0, 4, 9},
		{7, 4, 0, 6},
		{3, 9, 6, 0},
	}

	errs := z.Parallel(2, func(i int) error {
		sv, err := solver.New(sessions[i], layouts[i])
		if err != nil {
			return err
		}
		_, err = sv.Solve(context.Background(), p.InputOf(i))
		return err
	})

	for i, err := range errs {
		require.True(t, errors.Is(err, peer.ErrInvalidConfiguration), "party %d: %v", i, err)

		var runErr *peer.RunError
		require.True(t, errors.As(err, &runErr))
		require.Equal(t, peer.PhaseInit, runErr.Phase)
		require.Equal(t, peer.InvalidConfiguration, runErr.Class)

		// only the parameter round ran, no input was shared
		require.Equal(t, uint64(1), sessions[i].Trace().Rounds())
		require.Zero(t, sessions[i].Trace().Summary().Openings)
	}
}
