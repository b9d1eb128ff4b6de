package cmd

import (
	"context"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/xid"
	"github.com/rs/zerolog/log"
	"go.dedis.ch/mupol/peer"
	"go.dedis.ch/mupol/peer/impl"
	"go.dedis.ch/mupol/plaintext"
	"go.dedis.ch/mupol/transport"
	"go.dedis.ch/mupol/transport/channel"
	"go.dedis.ch/mupol/types"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"
)

// Simulation is the outcome of running every party of a problem in one
// process.
type Simulation struct {
	RunID    string
	Outputs  []types.RevealedOutput
	Runs     []peer.RunStatus
	Duration time.Duration
}

// Simulate runs all parties of the problem over the in-memory transport.
// Addresses in the settings are ignored; the other settings apply to every
// party.
func Simulate(ctx context.Context, problem plaintext.Problem, settings Settings) (Simulation, error) {
	n := problem.Parties
	res := Simulation{
		RunID:   xid.New().String(),
		Outputs: make([]types.RevealedOutput, n),
		Runs:    make([]peer.RunStatus, n),
	}

	tr := channel.NewTransport()

	sockets := make([]transport.ClosableSocket, n)
	settings.Parties = make([]string, n)
	for i := range sockets {
		socket, err := tr.CreateSocket("127.0.0.1:0")
		if err != nil {
			return res, xerrors.Errorf("failed to create socket: %v", err)
		}
		defer socket.Close()

		sockets[i] = socket
		settings.Parties[i] = socket.GetAddress()
	}

	parties := make([]peer.Party, n)
	for i := range parties {
		party, err := impl.NewParty(settings.Configuration(i, sockets[i]), impl.WithAuditors(settings.Auditors...))
		if err != nil {
			return res, xerrors.Errorf("failed to create party %d: %w", i, err)
		}
		defer party.Stop()

		parties[i] = party
	}

	layout := problem.Layout()
	start := time.Now()

	g, ctx := errgroup.WithContext(ctx)
	for i := range parties {
		i := i
		g.Go(func() error {
			out, err := parties[i].Solve(ctx, res.RunID, layout, problem.InputOf(i))
			if err != nil {
				return xerrors.Errorf("party %d: %w", i, err)
			}
			res.Outputs[i] = out
			return nil
		})
	}

	err := g.Wait()
	res.Duration = time.Since(start)

	for i, party := range parties {
		runs := party.Runs()
		if len(runs) > 0 {
			res.Runs[i] = runs[len(runs)-1]
		}
	}

	if err != nil {
		return res, err
	}

	log.Info().Msgf("simulated run %s with %d parties in %s", res.RunID, n, res.Duration)

	return res, nil
}

// Check compares the public part of the simulated outputs with the
// plaintext solution of the problem.
func (s Simulation) Check(problem plaintext.Problem) error {
	expected, err := plaintext.Solve(problem)
	if err != nil {
		return err
	}

	for _, out := range s.Outputs {
		diff := cmp.Diff(expected.Orders, out.Freighters())
		if diff != "" {
			return xerrors.Errorf("party %d: wrong freighters (-want +got):\n%s", out.Party, diff)
		}
		if len(out.Drives) != len(expected.Drives) {
			return xerrors.Errorf("party %d: %d empty drives, expected %d",
				out.Party, len(out.Drives), len(expected.Drives))
		}
		for k, d := range out.Drives {
			want := expected.Drives[k]
			if d.Iteration != want.Iteration || d.Freighter != want.Freighter {
				return xerrors.Errorf("party %d: empty drive %d is freighter %d at iteration %d, expected %d at %d",
					out.Party, k, d.Freighter, d.Iteration, want.Freighter, want.Iteration)
			}
			if d.Route != nil && (d.Route.From != want.From || d.Route.To != want.To) {
				return xerrors.Errorf("party %d: empty drive %d goes from %d to %d, expected %d to %d",
					out.Party, k, d.Route.From, d.Route.To, want.From, want.To)
			}
		}
	}

	return nil
}
