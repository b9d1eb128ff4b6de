package impl_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/xid"
	"github.com/stretchr/testify/require"
	z "go.dedis.ch/mupol/internal/testing"
	"go.dedis.ch/mupol/peer"
	"go.dedis.ch/mupol/peer/impl"
	"go.dedis.ch/mupol/plaintext"
	"go.dedis.ch/mupol/storage"
	"go.dedis.ch/mupol/transport"
	"go.dedis.ch/mupol/transport/udp"
	"go.dedis.ch/mupol/types"
)

var routes = [][]int64{
	{0, 10, 7, 3},
	{10, 0, 4, 9},
	{7, 4, 0, 6},
	{3, 9, 6, 0},
}

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
			{Freighter: 1, Position: 1},
			{Freighter: 2, Position: 1},
			{Freighter: 3, Position: 2},
		},
		Orders: []plaintext.Order{
			{Party: 2, Origin: 0, Destination: 3, Volume: 2},
			{Party: 0, Origin: 2, Destination: 1, Volume: 1},
			{Party: 1, Origin: 3, Destination: 0, Volume: 5},
		},
	}
}

func newParties(t *testing.T, confs []peer.Configuration, opts ...impl.Option) []peer.Party {
	parties := make([]peer.Party, len(confs))
	for i, conf := range confs {
		party, err := impl.NewParty(conf, opts...)
		require.NoError(t, err)
		t.Cleanup(func() { party.Stop() })
		parties[i] = party
	}
	return parties
}

func solveAll(ctx context.Context, parties []peer.Party, runID string,
	p plaintext.Problem) ([]types.RevealedOutput, []error) {

	outs := make([]types.RevealedOutput, len(parties))
	errs := z.Parallel(len(parties), func(i int) error {
		var err error
		outs[i], err = parties[i].Solve(ctx, runID, p.Layout(), p.InputOf(i))
		return err
	})
	return outs, errs
}

func Test_Party_Solve(t *testing.T) {
	p := threeParties()
	expected, err := plaintext.Solve(p)
	require.NoError(t, err)

	confs := z.NewConfigurations(t, 3, z.WithBitLength(8))
	parties := newParties(t, confs)

	runID := xid.New().String()
	outs, errs := solveAll(context.Background(), parties, runID, p)
	z.RequireNoErrors(t, errs)

	for i, out := range outs {
		require.Equal(t, runID, out.RunID)
		require.Equal(t, i, out.Party)
		require.Equal(t, expected.Orders, out.Freighters())
		require.Len(t, out.Drives, len(expected.Drives))

		for k, d := range out.Drives {
			require.Equal(t, expected.Drives[k].Iteration, d.Iteration)
			require.Equal(t, expected.Drives[k].Freighter, d.Freighter)

			owner, _ := p.Layout().PartyOf(d.Freighter)
			if owner == i {
				require.Equal(t, &types.Route{From: expected.Drives[k].From, To: expected.Drives[k].To}, d.Route)
			} else {
				require.Nil(t, d.Route)
			}
		}

		stored, ok := parties[i].Outputs().Get(runID)
		require.True(t, ok)
		require.Equal(t, out, stored)

		runs := parties[i].Runs()
		require.Len(t, runs, 1)
		require.Equal(t, runID, runs[0].RunID)
		require.Equal(t, peer.PhaseFinalize, runs[0].Phase)
		require.True(t, runs[0].Done)
		require.Empty(t, runs[0].Error)
		require.Equal(t, parties[0].Runs()[0].Rounds, runs[0].Rounds)
	}

	// all parties hold the same public part of the output
	h0 := storage.Hash(outs[0].Freighters())
	for _, out := range outs[1:] {
		require.Equal(t, h0, storage.Hash(out.Freighters()))
	}
}

func Test_Party_Several_Runs(t *testing.T) {
	p := threeParties()

	confs := z.NewConfigurations(t, 3, z.WithBitLength(8))
	parties := newParties(t, confs)

	first, second := xid.New().String(), xid.New().String()

	_, errs := solveAll(context.Background(), parties, first, p)
	z.RequireNoErrors(t, errs)

	p.Orders = p.Orders[:1]
	outs, errs := solveAll(context.Background(), parties, second, p)
	z.RequireNoErrors(t, errs)
	require.Len(t, outs[0].Orders, 1)

	for _, party := range parties {
		require.Len(t, party.Outputs().Keys(), 2)

		runs := party.Runs()
		require.Len(t, runs, 2)
		require.Equal(t, first, runs[0].RunID)
		require.Equal(t, second, runs[1].RunID)
	}
}

func Test_Party_Reused_Run_ID(t *testing.T) {
	p := threeParties()

	confs := z.NewConfigurations(t, 3, z.WithBitLength(8))
	parties := newParties(t, confs)

	runID := xid.New().String()
	_, errs := solveAll(context.Background(), parties, runID, p)
	z.RequireNoErrors(t, errs)

	_, err := parties[0].Solve(context.Background(), runID, p.Layout(), p.InputOf(0))
	require.True(t, errors.Is(err, peer.ErrInvalidConfiguration))

	var runErr *peer.RunError
	require.True(t, errors.As(err, &runErr))
	require.Equal(t, peer.PhaseInit, runErr.Phase)

	require.Len(t, parties[0].Runs(), 1)
}

func Test_Party_Auditor(t *testing.T) {
	p := threeParties()

	confs := z.NewConfigurations(t, 3, z.WithBitLength(8))
	parties := newParties(t, confs, impl.WithAuditors(0))

	outs, errs := solveAll(context.Background(), parties, xid.New().String(), p)
	z.RequireNoErrors(t, errs)

	for i, order := range outs[0].Orders {
		require.Equal(t, &types.OrderDetails{
			Origin:      p.Orders[i].Origin,
			Destination: p.Orders[i].Destination,
			Volume:      p.Orders[i].Volume,
		}, order.Details)
	}
}

func Test_Party_Invalid(t *testing.T) {
	confs := z.NewConfigurations(t, 3)

	_, err := impl.NewParty(confs[0], impl.WithAuditors(3))
	require.True(t, errors.Is(err, peer.ErrInvalidConfiguration))

	conf := confs[1]
	conf.Index = 0
	_, err = impl.NewParty(conf)
	require.True(t, errors.Is(err, peer.ErrInvalidConfiguration))
}

func Test_Party_Range_Violation(t *testing.T) {
	p := threeParties()
	p.Orders[1].Volume = 6

	confs := z.NewConfigurations(t, 3, z.WithBitLength(8))
	parties := newParties(t, confs)

	outs, errs := solveAll(context.Background(), parties, xid.New().String(), p)

	for i, err := range errs {
		require.True(t, errors.Is(err, peer.ErrRangeViolation), "party %d: %v", i, err)
		require.Empty(t, outs[i].Orders)
		require.Empty(t, parties[i].Outputs().Keys())

		runs := parties[i].Runs()
		require.Len(t, runs, 1)
		require.True(t, runs[0].Done)
		require.Equal(t, peer.RangeViolation, runs[0].Class)
		require.Equal(t, peer.PhaseInit, runs[0].Phase)
	}
}

// A party that disappears while the others iterate makes the run abort at
// every remaining party, and nobody stores an output.
func Test_Party_Disconnect(t *testing.T) {
	p := threeParties()

	confs := z.NewConfigurations(t, 3, z.WithBitLength(8), z.WithRoundTimeout(time.Second))
	parties := newParties(t, confs)

	const victim = 2

	ctxs := make([]context.Context, 3)
	cancels := make([]context.CancelFunc, 3)
	for i := range ctxs {
		ctxs[i], cancels[i] = context.WithCancel(context.Background())
		defer cancels[i]()
	}

	go func() {
		iterating := func() bool {
			runs := parties[victim].Runs()
			return len(runs) == 1 && (runs[0].Phase == peer.PhaseIterate || runs[0].Done)
		}
		for !iterating() {
			time.Sleep(time.Millisecond)
		}

		confs[victim].Socket.(transport.ClosableSocket).Close()
		cancels[victim]()
	}()

	runID := xid.New().String()
	errs := z.Parallel(3, func(i int) error {
		_, err := parties[i].Solve(ctxs[i], runID, p.Layout(), p.InputOf(i))
		return err
	})

	for i, err := range errs {
		require.Error(t, err, "party %d", i)
		require.Empty(t, parties[i].Outputs().Keys())
		if i == victim {
			continue
		}

		require.True(t, errors.Is(err, peer.ErrProtocolAbort), "party %d: %v", i, err)

		runs := parties[i].Runs()
		require.Len(t, runs, 1)
		require.True(t, runs[0].Done)
		require.Equal(t, peer.ProtocolAbort, runs[0].Class)
		require.NotEqual(t, peer.PhaseFinalize, runs[0].Phase)
	}
}

func Test_Party_Layout_Mismatch(t *testing.T) {
	p := threeParties()

	confs := z.NewConfigurations(t, 3, z.WithBitLength(8))
	parties := newParties(t, confs)

	layouts := []plaintext.Layout{p.Layout(), p.Layout(), p.Layout()}
	layouts[1].Map.Routes = [][]int64{
		{0, 1, 7, 3},
		{1, 0, 4, 9},
		{7, 4, 0, 6},
		{3, 9, 6, 0},
	}

	runID := xid.New().String()
	errs := z.Parallel(3, func(i int) error {
		_, err := parties[i].Solve(context.Background(), runID, layouts[i], p.InputOf(i))
		return err
	})

	for i, err := range errs {
		require.True(t, errors.Is(err, peer.ErrInvalidConfiguration), "party %d: %v", i, err)
		require.Empty(t, parties[i].Outputs().Keys())

		runs := parties[i].Runs()
		require.Len(t, runs, 1)
		require.True(t, runs[0].Done)
		require.Equal(t, peer.InvalidConfiguration, runs[0].Class)
		require.Equal(t, peer.PhaseInit, runs[0].Phase)
	}
}

// One socket per party over UDP, on a problem whose rounds do not fit in a
// single datagram.
func Test_Party_UDP_Default_Problem(t *testing.T) {
	if testing.Short() {
		t.Skip("full run over UDP")
	}

	g, err := plaintext.NewGenerator(plaintext.DefaultGeneratorConfig)
	require.NoError(t, err)
	p := g.Problem()

	expected, err := plaintext.Solve(p)
	require.NoError(t, err)

	confs := z.NewConfigurations(t, p.Parties, z.WithTransport(udp.NewUDP()),
		z.WithBitLength(peer.DefaultBitLength), z.WithRoundTimeout(30*time.Second))
	parties := newParties(t, confs)

	outs, errs := solveAll(context.Background(), parties, xid.New().String(), p)
	z.RequireNoErrors(t, errs)

	for _, out := range outs {
		require.Equal(t, expected.Orders, out.Freighters())
		require.Len(t, out.Drives, len(expected.Drives))
	}
}
