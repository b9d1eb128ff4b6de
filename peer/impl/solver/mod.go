// Package solver computes the day planning of the freighters on
// secret-shared inputs. It runs the algorithm of plaintext.Solve where every
// branch on private data is replaced by oblivious comparisons and selections,
// for a number of iterations fixed by the public layout.
package solver

import (
	"context"
	"encoding/json"
	"math/big"

	"go.dedis.ch/mupol/peer"
	"go.dedis.ch/mupol/peer/impl/engine"
	"go.dedis.ch/mupol/peer/impl/oblivious"
	"go.dedis.ch/mupol/plaintext"
	"go.uber.org/atomic"
	"golang.org/x/xerrors"
)

// Solver runs the secure assignment of one run. It can be used once.
type Solver struct {
	session *engine.Session
	layout  plaintext.Layout
	plan    plaintext.Plan
	used    atomic.Bool

	trucks []truckState
	orders []orderState
	drives []DriveState
}

// New checks the public layout against the session. Errors wrap
// peer.ErrInvalidConfiguration and are reported to the other parties.
func New(s *engine.Session, layout plaintext.Layout) (*Solver, error) {
	err := checkLayout(s, layout)
	if err != nil {
		return nil, s.Fail(err)
	}

	return &Solver{
		session: s,
		layout:  layout,
		plan:    layout.Plan(),
	}, nil
}

func checkLayout(s *engine.Session, layout plaintext.Layout) error {
	err := layout.Validate()
	if err != nil {
		return xerrors.Errorf("%w: %v", peer.ErrInvalidConfiguration, err)
	}

	if layout.Parties != s.Parties() {
		return xerrors.Errorf("%w: layout has %d parties, the run has %d",
			peer.ErrInvalidConfiguration, layout.Parties, s.Parties())
	}

	bound := s.Bound()
	for _, v := range []int64{layout.MaxValue(), int64(len(layout.Orders)), int64(len(layout.Trucks))} {
		if big.NewInt(v).Cmp(bound) >= 0 {
			return xerrors.Errorf("%w: public value %d needs more than %d bits",
				peer.ErrInvalidConfiguration, v, s.BitLength())
		}
	}

	return nil
}

// Plan returns the decision structure the solver follows.
func (sv *Solver) Plan() plaintext.Plan {
	return sv.plan
}

// Phase returns the phase of the run.
func (sv *Solver) Phase() peer.Phase {
	return sv.session.Phase()
}

// Solve shares the party's input, runs every iteration of the plan and
// returns the state at FINALIZE. On error, every party is told to abort and
// the returned error is a *peer.RunError.
func (sv *Solver) Solve(ctx context.Context, input plaintext.PartyInput) (*AssignmentState, error) {
	if !sv.used.CompareAndSwap(false, true) {
		return nil, xerrors.Errorf("%w: solver of run %s already used",
			peer.ErrInvalidConfiguration, sv.session.RunID())
	}

	s := sv.session
	logger := s.Logger()

	s.SetPhase(peer.PhaseInit)

	err := sv.checkInput(input)
	if err != nil {
		return nil, s.Fail(err)
	}

	err = sv.agree(ctx)
	if err != nil {
		return nil, s.Fail(err)
	}

	err = sv.share(ctx, input)
	if err != nil {
		return nil, s.Fail(err)
	}

	s.SetPhase(peer.PhaseIterate)
	logger.Info().Msgf("running %d iterations on %d trucks and %d orders",
		sv.plan.Iterations, sv.plan.Trucks, sv.plan.Orders)

	for it := 0; it < sv.plan.Iterations; it++ {
		err = sv.iterate(ctx, it)
		if err != nil {
			return nil, s.Fail(err)
		}
		logger.Debug().Msgf("iteration %d done after %d rounds", it, s.Trace().Rounds())
	}

	s.SetPhase(peer.PhaseFinalize)

	state := &AssignmentState{
		RunID:  s.RunID(),
		Phase:  peer.PhaseFinalize,
		Layout: sv.layout,
		Orders: make([]OrderState, len(sv.orders)),
		Drives: sv.drives,
	}
	for i, o := range sv.orders {
		state.Orders[i] = OrderState{
			Freighter:   o.freighter,
			Origin:      o.origin,
			Destination: o.destination,
			Volume:      o.volume,
		}
	}

	return state, nil
}

// checkInput checks the party's own input before anything is sent.
func (sv *Solver) checkInput(input plaintext.PartyInput) error {
	idx := sv.session.Index()
	l := sv.layout

	trucks := l.TrucksOf(idx)
	orders := l.OrdersOf(idx)
	if len(input.Trucks) != len(trucks) || len(input.Orders) != len(orders) {
		return xerrors.Errorf("%w: party %d has %d trucks and %d orders, the layout expects %d and %d",
			peer.ErrInvalidConfiguration, idx, len(input.Trucks), len(input.Orders), len(trucks), len(orders))
	}

	for i, t := range input.Trucks {
		if !l.IsNode(t.Position) {
			return xerrors.Errorf("%w: truck %d is at unknown node %d",
				peer.ErrInvalidConfiguration, trucks[i], t.Position)
		}
	}

	for i, o := range input.Orders {
		if !l.IsNode(o.Origin) || !l.IsNode(o.Destination) {
			return xerrors.Errorf("%w: order %d goes from %d to %d, outside the map",
				peer.ErrInvalidConfiguration, orders[i], o.Origin, o.Destination)
		}
		if o.Volume < 1 || o.Volume > l.TruckCapacity {
			return xerrors.Errorf("%w: order %d has volume %d outside [1, %d]",
				peer.ErrRangeViolation, orders[i], o.Volume, l.TruckCapacity)
		}
	}

	return nil
}

// agree makes sure every party runs on the same layout and parameters
// before any input is shared.
func (sv *Solver) agree(ctx context.Context) error {
	buf, err := json.Marshal(sv.layout)
	if err != nil {
		return xerrors.Errorf("%w: failed to encode layout: %v", peer.ErrInvalidConfiguration, err)
	}

	return sv.session.Agree(ctx, buf)
}

// share shares the input of every party in one joint exchange.
func (sv *Solver) share(ctx context.Context, input plaintext.PartyInput) error {
	s := sv.session
	l := sv.layout

	own := make([]int64, 0, len(input.Trucks)+3*len(input.Orders))
	for _, t := range input.Trucks {
		own = append(own, int64(t.Position))
	}
	for _, o := range input.Orders {
		own = append(own, int64(o.Origin), int64(o.Destination), o.Volume)
	}

	counts := make([]int, s.Parties())
	for j := range counts {
		counts[j] = len(l.TrucksOf(j)) + 3*len(l.OrdersOf(j))
	}

	shared, err := s.Share(ctx, own, counts)
	if err != nil {
		return err
	}

	// next unread value of every party
	next := make([]int, s.Parties())
	take := func(party int) engine.SecretValue {
		v := shared[party][next[party]]
		next[party]++
		return v
	}

	dummy := int64(l.DummyNode())

	sv.trucks = make([]truckState, len(l.Trucks))
	for i, f := range l.Trucks {
		party, _ := l.PartyOf(f)
		sv.trucks[i] = truckState{
			freighter:   f,
			position:    take(party),
			destination: s.Constant(dummy),
			capacity:    s.Constant(l.TruckCapacity),
		}
	}

	sv.orders = make([]orderState, len(l.Orders))
	for i, party := range l.Orders {
		sv.orders[i] = orderState{
			origin:      take(party),
			destination: take(party),
			volume:      take(party),
			freighter:   s.Constant(plaintext.DummyFreighter),
			processed:   engine.BitFrom(s.Constant(0)),
			thisRound:   engine.BitFrom(s.Constant(0)),
		}
	}

	sv.drives = make([]DriveState, 0, sv.plan.Iterations)

	return nil
}

func (sv *Solver) iterate(ctx context.Context, iteration int) error {
	err := sv.fillTrucks(ctx)
	if err != nil {
		return xerrors.Errorf("failed to fill trucks: %w", err)
	}

	gate, err := sv.gate(ctx)
	if err != nil {
		return xerrors.Errorf("failed to compute gate: %w", err)
	}

	err = sv.driveEmpty(ctx, iteration, gate)
	if err != nil {
		return xerrors.Errorf("failed to drive empty: %w", err)
	}

	s := sv.session
	for j := range sv.orders {
		sv.orders[j].thisRound = engine.BitFrom(s.Constant(0))
	}

	return nil
}

// fillTrucks gives every truck, in turn, the compatible orders.
func (sv *Solver) fillTrucks(ctx context.Context) error {
	s := sv.session
	m := len(sv.orders)

	for i := range sv.trucks {
		t := &sv.trucks[i]

		// the position of the truck and the open orders do not change while
		// the truck is being filled, except for the orders it takes itself
		origins := make([]engine.SecretValue, m)
		open := make([]engine.SecretBit, m)
		for j, o := range sv.orders {
			origins[j] = o.origin
			open[j] = o.processed.Not()
		}

		here, err := oblivious.Equal(ctx, s, repeat(t.position, m), origins)
		if err != nil {
			return err
		}

		available, err := oblivious.And(ctx, s, here, open)
		if err != nil {
			return err
		}

		for j := range sv.orders {
			err = sv.fill(ctx, t, &sv.orders[j], available[j])
			if err != nil {
				return err
			}
		}
	}

	return sv.park(ctx)
}

// fill assigns the order to the truck if it is available, the truck goes
// nowhere yet or to the same destination, and the order fits.
func (sv *Solver) fill(ctx context.Context, t *truckState, o *orderState, available engine.SecretBit) error {
	s := sv.session

	dummy := s.Constant(int64(sv.layout.DummyNode()))
	left := t.capacity.Sub(o.volume)

	cmp, err := oblivious.Compare(ctx, s,
		[]engine.SecretValue{t.destination, t.destination, left},
		[]engine.SecretValue{dummy, o.destination, s.Constant(0)})
	if err != nil {
		return err
	}

	noDestination := cmp[0].Equal
	sameDestination := cmp[1].Equal
	fits := cmp[2].Less.Not()

	// not(noDestination) not(sameDestination) and available fits share a round
	prods, err := oblivious.And(ctx, s,
		[]engine.SecretBit{noDestination.Not(), available},
		[]engine.SecretBit{sameDestination.Not(), fits})
	if err != nil {
		return err
	}
	destinationOK := prods[0].Not()

	compatible, err := oblivious.And(ctx, s,
		[]engine.SecretBit{destinationOK}, []engine.SecretBit{prods[1]})
	if err != nil {
		return err
	}
	c := compatible[0]

	updated, err := oblivious.Select(ctx, s,
		oblivious.Repeat(c, 3),
		[]engine.SecretValue{o.destination, s.Constant(int64(t.freighter)), left},
		[]engine.SecretValue{t.destination, o.freighter, t.capacity})
	if err != nil {
		return err
	}

	t.destination = updated[0]
	o.freighter = updated[1]
	t.capacity = updated[2]

	// a compatible order was open, so or is a sum
	o.processed = engine.BitFrom(o.processed.Add(c.SecretValue))
	o.thisRound = engine.BitFrom(o.thisRound.Add(c.SecretValue))

	return nil
}

// park moves every truck that got a destination there, then empties it.
func (sv *Solver) park(ctx context.Context) error {
	s := sv.session
	n := len(sv.trucks)
	if n == 0 {
		return nil
	}

	destinations := make([]engine.SecretValue, n)
	positions := make([]engine.SecretValue, n)
	for i, t := range sv.trucks {
		destinations[i] = t.destination
		positions[i] = t.position
	}

	nowhere, err := oblivious.EqualConst(ctx, s, destinations, int64(sv.layout.DummyNode()))
	if err != nil {
		return err
	}

	moved, err := oblivious.Select(ctx, s, oblivious.Not(nowhere), destinations, positions)
	if err != nil {
		return err
	}

	for i := range sv.trucks {
		t := &sv.trucks[i]
		t.position = moved[i]
		t.destination = s.Constant(int64(sv.layout.DummyNode()))
		t.capacity = s.Constant(sv.layout.TruckCapacity)
	}

	return nil
}

// gate is 1 when no order was assigned at this iteration while some orders
// are still open.
func (sv *Solver) gate(ctx context.Context) (engine.SecretBit, error) {
	s := sv.session

	added := make([]engine.SecretValue, len(sv.orders))
	done := make([]engine.SecretValue, len(sv.orders))
	for j, o := range sv.orders {
		added[j] = o.thisRound.SecretValue
		done[j] = o.processed.SecretValue
	}

	cmp, err := oblivious.Equal(ctx, s,
		[]engine.SecretValue{s.Sum(added), s.Sum(done)},
		s.Constants([]int64{0, int64(len(sv.orders))}))
	if err != nil {
		return engine.SecretBit{}, err
	}

	gate, err := oblivious.And(ctx, s, cmp[:1], oblivious.Not(cmp[1:]))
	if err != nil {
		return engine.SecretBit{}, err
	}

	return gate[0], nil
}

// driveEmpty sends the truck closest to the origin of the first open order
// there. It is computed at every iteration and only has an effect when gate
// is 1.
func (sv *Solver) driveEmpty(ctx context.Context, iteration int, gate engine.SecretBit) error {
	s := sv.session
	l := sv.layout

	open := make([]engine.SecretBit, len(sv.orders))
	origins := make([]engine.SecretValue, len(sv.orders))
	for j, o := range sv.orders {
		open[j] = o.processed.Not()
		origins[j] = o.origin
	}

	first, err := oblivious.FirstNonZero(ctx, s, open)
	if err != nil {
		return err
	}

	found, err := oblivious.Dot(ctx, s, [][]engine.SecretBit{first}, [][]engine.SecretValue{origins})
	if err != nil {
		return err
	}
	origin := found[0]

	positions := make([]engine.SecretValue, len(sv.trucks))
	freighters := make([]int64, len(sv.trucks))
	for i, t := range sv.trucks {
		positions[i] = t.position
		freighters[i] = int64(t.freighter)
	}

	nodes := append([]engine.SecretValue{origin}, positions...)
	vectors, err := oblivious.IndicatorVectors(ctx, s, l.Map.Nodes, nodes)
	if err != nil {
		return err
	}
	target := vectors[0]

	// cost of driving from every node to the origin, the routes are public
	toOrigin := make([]engine.SecretValue, l.Map.Nodes)
	for a := range toOrigin {
		cost := s.Constant(0)
		for b, bit := range target {
			cost = cost.Add(bit.MulConst(l.Map.Routes[a][b]))
		}
		toOrigin[a] = cost
	}

	costs, err := oblivious.Dot(ctx, s, vectors[1:], repeatVector(toOrigin, len(sv.trucks)))
	if err != nil {
		return err
	}

	_, closest, err := oblivious.Argmin(ctx, s, costs)
	if err != nil {
		return err
	}

	pick, err := oblivious.IndicatorVector(ctx, s, len(sv.trucks), closest)
	if err != nil {
		return err
	}

	truck, err := oblivious.Dot(ctx, s,
		[][]engine.SecretBit{pick, pick},
		[][]engine.SecretValue{positions, s.Constants(freighters)})
	if err != nil {
		return err
	}

	sv.drives = append(sv.drives, DriveState{
		Iteration: iteration,
		Valid:     gate,
		Freighter: truck[1],
		From:      truck[0],
		To:        origin,
	})

	movers, err := oblivious.And(ctx, s, pick, oblivious.Repeat(gate, len(sv.trucks)))
	if err != nil {
		return err
	}

	moved, err := oblivious.Select(ctx, s, movers, repeat(origin, len(sv.trucks)), positions)
	if err != nil {
		return err
	}

	for i := range sv.trucks {
		sv.trucks[i].position = moved[i]
	}

	return nil
}

func repeat(v engine.SecretValue, n int) []engine.SecretValue {
	res := make([]engine.SecretValue, n)
	for i := range res {
		res[i] = v
	}
	return res
}

func repeatVector(v []engine.SecretValue, n int) [][]engine.SecretValue {
	res := make([][]engine.SecretValue, n)
	for i := range res {
		res[i] = v
	}
	return res
}
