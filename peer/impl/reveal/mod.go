// Package reveal turns the final secret-shared assignment into the plaintext
// output of every party. It is the only place where shared values of a run
// are opened.
package reveal

import (
	"context"
	"math/big"

	"go.dedis.ch/mupol/peer"
	"go.dedis.ch/mupol/peer/impl/engine"
	"go.dedis.ch/mupol/peer/impl/solver"
	"go.dedis.ch/mupol/plaintext"
	"go.dedis.ch/mupol/types"
	"go.uber.org/atomic"
	"golang.org/x/xerrors"
)

var (
	// ErrNotFinal is returned when the state did not reach FINALIZE.
	ErrNotFinal = xerrors.New("state is not final")
	// ErrAlreadyRevealed is returned on a second reveal.
	ErrAlreadyRevealed = xerrors.New("already revealed")
)

// Policy says who learns what beyond the public part of the output.
type Policy struct {
	// Auditors receive the details of every order and drive, in addition to
	// the party of the freighter in charge.
	Auditors []int
}

// Coordinator reveals the assignment of one run, once.
type Coordinator struct {
	session  *engine.Session
	policy   Policy
	revealed atomic.Bool
}

// New returns a coordinator for the run of the session.
func New(s *engine.Session, policy Policy) (*Coordinator, error) {
	for _, a := range policy.Auditors {
		if a < 0 || a >= s.Parties() {
			return nil, xerrors.Errorf("%w: unknown auditor %d", peer.ErrInvalidConfiguration, a)
		}
	}

	return &Coordinator{
		session: s,
		policy:  policy,
	}, nil
}

// Reveal opens the assignment. Every party learns the freighter of every
// order and which freighters drive empty at which iteration. The details of
// an order or a drive are only opened to the party of its freighter and to
// the auditors. All parties take part in every opening, in the same order.
func (c *Coordinator) Reveal(ctx context.Context, state *solver.AssignmentState) (types.RevealedOutput, error) {
	s := c.session

	if state == nil || state.Phase != peer.PhaseFinalize {
		phase := peer.Phase("")
		if state != nil {
			phase = state.Phase
		}
		return types.RevealedOutput{}, s.Fail(xerrors.Errorf("%w in phase %q", ErrNotFinal, phase))
	}
	if state.RunID != s.RunID() {
		return types.RevealedOutput{}, s.Fail(xerrors.Errorf("state of run %s revealed in run %s",
			state.RunID, s.RunID()))
	}
	if !c.revealed.CompareAndSwap(false, true) {
		return types.RevealedOutput{}, xerrors.Errorf("run %s: %w", s.RunID(), ErrAlreadyRevealed)
	}

	out, err := c.reveal(ctx, state)
	if err != nil {
		return types.RevealedOutput{}, s.Fail(err)
	}

	s.Logger().Info().Msgf("revealed %v", out)
	return out, nil
}

func (c *Coordinator) reveal(ctx context.Context, state *solver.AssignmentState) (types.RevealedOutput, error) {
	s := c.session
	layout := state.Layout

	out := types.RevealedOutput{
		RunID:  s.RunID(),
		Party:  s.Index(),
		Orders: make([]types.RevealedOrder, len(state.Orders)),
		Drives: []types.RevealedDrive{},
	}

	// who does what is public
	public := make([]engine.SecretValue, 0, len(state.Orders)+len(state.Drives))
	for _, o := range state.Orders {
		public = append(public, o.Freighter)
	}
	for _, d := range state.Drives {
		public = append(public, d.Valid.SecretValue)
	}

	opened, err := s.OpenAll(ctx, public)
	if err != nil {
		return out, xerrors.Errorf("failed to open the assignment: %w", err)
	}

	values, err := small(opened)
	if err != nil {
		return out, err
	}

	for i := range state.Orders {
		out.Orders[i] = types.RevealedOrder{Index: i, Freighter: int(values[i])}
	}

	valid := []solver.DriveState{}
	for i, d := range state.Drives {
		switch values[len(state.Orders)+i] {
		case 1:
			valid = append(valid, d)
		case 0:
		default:
			return out, xerrors.Errorf("%w: drive %d has a valid flag that is not a bit",
				peer.ErrShareInconsistency, d.Iteration)
		}
	}

	drivers := make([]engine.SecretValue, len(valid))
	for i, d := range valid {
		drivers[i] = d.Freighter
	}

	opened, err = s.OpenAll(ctx, drivers)
	if err != nil {
		return out, xerrors.Errorf("failed to open the drivers: %w", err)
	}

	values, err = small(opened)
	if err != nil {
		return out, err
	}

	for i, d := range valid {
		out.Drives = append(out.Drives, types.RevealedDrive{Iteration: d.Iteration, Freighter: int(values[i])})
	}

	for party := 0; party < s.Parties(); party++ {
		err = c.revealDetails(ctx, state, layout, party, &out, valid)
		if err != nil {
			return out, xerrors.Errorf("failed to reveal the details of party %d: %w", party, err)
		}
	}

	return out, nil
}

// revealDetails opens the details of the orders and drives of a party's
// freighters to that party and the auditors.
func (c *Coordinator) revealDetails(ctx context.Context, state *solver.AssignmentState, layout plaintext.Layout,
	party int, out *types.RevealedOutput, valid []solver.DriveState) error {

	s := c.session

	owns := func(freighter int) bool {
		owner, ok := layout.PartyOf(freighter)
		return ok && owner == party
	}

	orders := []int{}
	details := []engine.SecretValue{}
	for i, o := range state.Orders {
		if owns(out.Orders[i].Freighter) {
			orders = append(orders, i)
			details = append(details, o.Origin, o.Destination, o.Volume)
		}
	}

	drives := []int{}
	for i, d := range valid {
		if owns(out.Drives[i].Freighter) {
			drives = append(drives, i)
			details = append(details, d.From, d.To)
		}
	}

	opened, err := s.Open(ctx, details, c.recipients(party))
	if err != nil {
		return err
	}
	if opened == nil {
		return nil
	}

	values, err := small(opened)
	if err != nil {
		return err
	}

	for k, i := range orders {
		out.Orders[i].Details = &types.OrderDetails{
			Origin:      int(values[3*k]),
			Destination: int(values[3*k+1]),
			Volume:      values[3*k+2],
		}
	}

	offset := 3 * len(orders)
	for k, i := range drives {
		out.Drives[i].Route = &types.Route{
			From: int(values[offset+2*k]),
			To:   int(values[offset+2*k+1]),
		}
	}

	return nil
}

func (c *Coordinator) recipients(party int) []int {
	res := []int{party}
	for _, a := range c.policy.Auditors {
		if a != party {
			res = append(res, a)
		}
	}
	return res
}

// small converts opened values that must be small non-negative integers.
func small(values []*big.Int) ([]int64, error) {
	res := make([]int64, len(values))
	for i, v := range values {
		if v.Sign() < 0 || !v.IsInt64() {
			return nil, xerrors.Errorf("%w: opened value out of range", peer.ErrShareInconsistency)
		}
		res[i] = v.Int64()
	}
	return res, nil
}
