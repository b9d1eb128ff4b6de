package reveal_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	z "go.dedis.ch/mupol/internal/testing"
	"go.dedis.ch/mupol/peer"
	"go.dedis.ch/mupol/peer/impl/reveal"
	"go.dedis.ch/mupol/peer/impl/solver"
	"go.dedis.ch/mupol/plaintext"
	"go.dedis.ch/mupol/types"
)

var routes = [][]int64{
	{0, 10, 7, 3},
	{10, 0, 4, 9},
	{7, 4, 0, 6},
	{3, 9, 6, 0},
}

// threeParties has one truck per party. The truck of party 0 takes order 0,
// which party 2 placed, and the truck of party 2 takes order 1, which party 0
// placed.
func threeParties() plaintext.Problem {
	return plaintext.Problem{
		Parties:       3,
		TruckCapacity: 5,
		Map:           plaintext.Map{Nodes: 4, Routes: routes},
		Freighters: []plaintext.Freighter{
			{ID: 1, Party: 0},
			{ID: 2, Party: 1},
			{ID: 3, Party: 2},
		},
		Trucks: []plaintext.Truck{
			{Freighter: 1, Position: 0},
			{Freighter: 2, Position: 1},
			{Freighter: 3, Position: 2},
		},
		Orders: []plaintext.Order{
			{Party: 2, Origin: 0, Destination: 3, Volume: 2},
			{Party: 0, Origin: 2, Destination: 1, Volume: 1},
		},
	}
}

// oneDrive needs the truck of party 1 to drive empty from 2 to 0.
func oneDrive() plaintext.Problem {
	return plaintext.Problem{
		Parties:       2,
		TruckCapacity: 5,
		Map:           plaintext.Map{Nodes: 4, Routes: routes},
		Freighters:    []plaintext.Freighter{{ID: 1, Party: 0}, {ID: 2, Party: 1}},
		Trucks:        []plaintext.Truck{{Freighter: 1, Position: 1}, {Freighter: 2, Position: 2}},
		Orders:        []plaintext.Order{{Party: 0, Origin: 0, Destination: 3, Volume: 4}},
	}
}

type run struct {
	outputs      []types.RevealedOutput
	coordinators []*reveal.Coordinator
	states       []*solver.AssignmentState
}

func solveAndReveal(t *testing.T, p plaintext.Problem, policy reveal.Policy) run {
	n := p.Parties
	sessions := z.NewSessions(t, n, z.WithBitLength(8))

	r := run{
		outputs:      make([]types.RevealedOutput, n),
		coordinators: make([]*reveal.Coordinator, n),
		states:       make([]*solver.AssignmentState, n),
	}

	errs := z.Parallel(n, func(i int) error {
		sv, err := solver.New(sessions[i], p.Layout())
		if err != nil {
			return err
		}
		r.states[i], err = sv.Solve(context.Background(), p.InputOf(i))
		if err != nil {
			return err
		}

		r.coordinators[i], err = reveal.New(sessions[i], policy)
		if err != nil {
			return err
		}
		r.outputs[i], err = r.coordinators[i].Reveal(context.Background(), r.states[i])
		return err
	})
	z.RequireNoErrors(t, errs)

	return r
}

func Test_Reveal_Details_To_Freighter(t *testing.T) {
	r := solveAndReveal(t, threeParties(), reveal.Policy{})

	for i, out := range r.outputs {
		require.Equal(t, i, out.Party)
		require.Equal(t, []int{1, 3}, out.Freighters())
		require.Empty(t, out.Drives)
	}

	require.Equal(t, &types.OrderDetails{Origin: 0, Destination: 3, Volume: 2}, r.outputs[0].Orders[0].Details)
	require.Nil(t, r.outputs[0].Orders[1].Details)

	require.Nil(t, r.outputs[1].Orders[0].Details)
	require.Nil(t, r.outputs[1].Orders[1].Details)

	require.Nil(t, r.outputs[2].Orders[0].Details)
	require.Equal(t, &types.OrderDetails{Origin: 2, Destination: 1, Volume: 1}, r.outputs[2].Orders[1].Details)
}

func Test_Reveal_Auditors(t *testing.T) {
	r := solveAndReveal(t, threeParties(), reveal.Policy{Auditors: []int{1}})

	require.Equal(t, &types.OrderDetails{Origin: 0, Destination: 3, Volume: 2}, r.outputs[1].Orders[0].Details)
	require.Equal(t, &types.OrderDetails{Origin: 2, Destination: 1, Volume: 1}, r.outputs[1].Orders[1].Details)

	require.Nil(t, r.outputs[0].Orders[1].Details)
	require.Nil(t, r.outputs[2].Orders[0].Details)
}

func Test_Reveal_Drive(t *testing.T) {
	r := solveAndReveal(t, oneDrive(), reveal.Policy{})

	for _, out := range r.outputs {
		require.Equal(t, []int{2}, out.Freighters())
		require.Len(t, out.Drives, 1)
		require.Equal(t, 0, out.Drives[0].Iteration)
		require.Equal(t, 2, out.Drives[0].Freighter)
	}

	require.Nil(t, r.outputs[0].Drives[0].Route)
	require.Nil(t, r.outputs[0].Orders[0].Details)

	require.Equal(t, &types.Route{From: 2, To: 0}, r.outputs[1].Drives[0].Route)
	require.Equal(t, &types.OrderDetails{Origin: 0, Destination: 3, Volume: 4}, r.outputs[1].Orders[0].Details)
}

func Test_Reveal_Only_Once(t *testing.T) {
	r := solveAndReveal(t, oneDrive(), reveal.Policy{})

	_, err := r.coordinators[0].Reveal(context.Background(), r.states[0])
	require.True(t, errors.Is(err, reveal.ErrAlreadyRevealed))
}

func Test_Reveal_Not_Final(t *testing.T) {
	sessions := z.NewSessions(t, 2)

	c, err := reveal.New(sessions[0], reveal.Policy{})
	require.NoError(t, err)

	_, err = c.Reveal(context.Background(), &solver.AssignmentState{
		RunID: sessions[0].RunID(),
		Phase: peer.PhaseIterate,
	})
	require.True(t, errors.Is(err, reveal.ErrNotFinal))
	require.True(t, errors.Is(err, peer.ErrProtocolAbort))

	_, err = c.Reveal(context.Background(), nil)
	require.True(t, errors.Is(err, reveal.ErrNotFinal))
}

func Test_Reveal_Invalid_Auditor(t *testing.T) {
	sessions := z.NewSessions(t, 2)

	_, err := reveal.New(sessions[0], reveal.Policy{Auditors: []int{2}})
	require.True(t, errors.Is(err, peer.ErrInvalidConfiguration))
}
