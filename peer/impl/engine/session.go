package engine

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.dedis.ch/mupol/peer"
	"go.dedis.ch/mupol/transport"
	"go.dedis.ch/mupol/types"
	"go.uber.org/atomic"
	"golang.org/x/xerrors"
)

// closedOutboxSteps is the number of steps a closed run can still resend.
const closedOutboxSteps = 4

// Session is the per-run context of a party: its place among the parties,
// the field, the step counter and the received messages. Every interactive
// operation of a run goes through its session. All parties must execute the
// same sequence of operations on their sessions.
type Session struct {
	conf  peer.Configuration
	runID string

	n, t   int
	p      *big.Int
	bound  *big.Int
	xcoord []*big.Int

	dispatcher *Dispatcher
	inbox      *inbox
	outbox     *outbox
	step       atomic.Uint64
	phase      atomic.String
	aborted    atomic.Bool
	trace      *Trace
	logger     zerolog.Logger

	weightsMu      sync.Mutex
	weights        map[int]*openWeights
	reshareWeights []*big.Int
}

// NewSession validates the configuration and registers a new run on the
// dispatcher. Errors wrap peer.ErrInvalidConfiguration.
func NewSession(conf peer.Configuration, runID string, dispatcher *Dispatcher) (*Session, error) {
	conf = conf.WithDefaults()

	err := conf.Validate()
	if err != nil {
		return nil, err
	}
	if runID == "" {
		return nil, xerrors.Errorf("%w: empty run ID", peer.ErrInvalidConfiguration)
	}

	n := len(conf.Parties)
	xcoord := make([]*big.Int, n)
	for i := range xcoord {
		xcoord[i] = big.NewInt(int64(i + 1))
	}

	s := &Session{
		conf:       conf,
		runID:      runID,
		n:          n,
		t:          conf.Threshold,
		p:          new(big.Int).Set(conf.Prime),
		bound:      new(big.Int).Lsh(one, conf.BitLength),
		xcoord:     xcoord,
		dispatcher: dispatcher,
		inbox:      newInbox(),
		outbox:     newOutbox(),
		trace:      NewTrace(),
		weights:    map[int]*openWeights{},
		logger:     log.With().Str("run", runID).Int("party", conf.Index).Logger(),
	}
	s.reshareWeights = lagrangeCoefficientsZp(xcoord, zero, s.p)
	s.phase.Store(string(peer.PhaseInit))

	err = dispatcher.attach(s)
	if err != nil {
		finished := errors.Is(err, errRunFinished)
		err = xerrors.Errorf("%w: %v", peer.ErrInvalidConfiguration, err)

		// the others may be waiting on a fresh run with this ID
		if finished {
			s.broadcastAbort(peer.NewRunError(runID, peer.PhaseInit, err))
		}
		return nil, err
	}

	return s, nil
}

// Close unregisters the run. Messages of the run received afterwards are
// dropped, except requests to resend its last steps.
func (s *Session) Close() {
	s.dispatcher.detach(s.runID)
	s.outbox.trim(closedOutboxSteps)
}

// RunID returns the identifier of the run.
func (s *Session) RunID() string {
	return s.runID
}

// Index returns the party's index.
func (s *Session) Index() int {
	return s.conf.Index
}

// Parties returns the number of parties.
func (s *Session) Parties() int {
	return s.n
}

// Threshold returns the degree of the sharing polynomials.
func (s *Session) Threshold() int {
	return s.t
}

// BitLength returns k such that every shared input lies in [0, 2^k).
func (s *Session) BitLength() uint {
	return s.conf.BitLength
}

// Bound returns 2^k.
func (s *Session) Bound() *big.Int {
	return new(big.Int).Set(s.bound)
}

// StatisticalSecurity returns the number of extra mask bits.
func (s *Session) StatisticalSecurity() uint {
	return s.conf.StatisticalSecurity
}

// Prime returns the field modulus.
func (s *Session) Prime() *big.Int {
	return new(big.Int).Set(s.p)
}

// Inverse returns c^-1 mod p. c must not be a multiple of p.
func (s *Session) Inverse(c *big.Int) *big.Int {
	return invZp(c, s.p)
}

// Trace returns the trace of the run.
func (s *Session) Trace() *Trace {
	return s.trace
}

// Logger returns the run's logger.
func (s *Session) Logger() *zerolog.Logger {
	return &s.logger
}

// Phase returns the current phase of the run.
func (s *Session) Phase() peer.Phase {
	return peer.Phase(s.phase.Load())
}

// SetPhase moves the run to the given phase.
func (s *Session) SetPhase(phase peer.Phase) {
	s.logger.Info().Msgf("entering %s", phase)
	s.phase.Store(string(phase))
}

// Fail aborts the run: it classifies err, tells every other party and returns
// the resulting RunError. Aborts received from other parties are not echoed.
func (s *Session) Fail(err error) *peer.RunError {
	runErr := peer.NewRunError(s.runID, s.Phase(), err)

	if s.aborted.CompareAndSwap(false, true) {
		s.broadcastAbort(runErr)
	}
	s.inbox.fail(runErr)

	s.logger.Error().Msgf("%v", runErr)
	return runErr
}

func (s *Session) broadcastAbort(runErr *peer.RunError) {
	msg := types.AbortMessage{
		RunID:  s.runID,
		Sender: s.conf.Index,
		Phase:  string(runErr.Phase),
		Class:  string(runErr.Class),
		Reason: runErr.Err.Error(),
	}

	for j := 0; j < s.n; j++ {
		if j == s.conf.Index {
			continue
		}
		err := s.send(j, msg)
		if err != nil {
			s.logger.Debug().Msgf("failed to send abort to party %d: %v", j, err)
		}
	}
}

func (s *Session) send(to int, msg types.Message) error {
	transpMsg, err := s.dispatcher.registry.MarshalMessage(msg)
	if err != nil {
		return err
	}

	dest := s.conf.Parties[to]
	header := transport.NewHeader(s.conf.Socket.GetAddress(), dest)
	pkt := transport.Packet{Header: &header, Msg: &transpMsg}

	return s.conf.Socket.Send(dest, pkt, s.conf.RoundTimeout)
}

// deliver handles a message of this run received from source.
func (s *Session) deliver(msg types.Message, source string) error {
	switch m := msg.(type) {
	case *types.ShareMessage:
		return s.deliverValues(m.Step, m.Sender, m.Offset, m.Total, m.Values, source)
	case *types.OpenMessage:
		return s.deliverValues(m.Step, m.Sender, m.Offset, m.Total, m.Values, source)
	case *types.ResendMessage:
		err := s.checkSender(m.Sender, source)
		if err != nil {
			return err
		}
		s.resend(m.Step, m.Sender)
		return nil
	case *types.AbortMessage:
		err := s.checkSender(m.Sender, source)
		if err != nil {
			return err
		}
		s.aborted.Store(true)
		class := peer.FaultClass(m.Class)
		s.inbox.fail(xerrors.Errorf("%w: party %d aborted during %s: %s",
			peer.ClassError(class), m.Sender, m.Phase, m.Reason))
		return nil
	default:
		return xerrors.Errorf("unexpected message %T", msg)
	}
}

func (s *Session) deliverValues(step uint64, sender int, offset, total int, encoded []string,
	source string) error {

	err := s.checkSender(sender, source)
	if err != nil {
		return err
	}

	values, err := decodeValues(encoded, s.p)
	if err != nil {
		s.inbox.fail(xerrors.Errorf("%w: party %d: %v", peer.ErrShareInconsistency, sender, err))
		return err
	}

	s.inbox.put(step, sender, offset, total, values)
	return nil
}

// resend sends again the messages of step to party to.
func (s *Session) resend(step uint64, to int) {
	msgs := s.outbox.get(step, to)
	if len(msgs) == 0 {
		return
	}

	s.logger.Debug().Msgf("resending step %d to party %d", step, to)

	for _, msg := range msgs {
		err := s.send(to, msg)
		if err != nil {
			s.logger.Debug().Msgf("failed to resend step %d to party %d: %v", step, to, err)
			return
		}
	}
}

// requestResend asks the missing parties to send step again.
func (s *Session) requestResend(step uint64, missing []int) {
	msg := types.ResendMessage{RunID: s.runID, Step: step, Sender: s.conf.Index}

	for _, j := range missing {
		err := s.send(j, msg)
		if err != nil {
			s.logger.Debug().Msgf("failed to ask party %d for step %d: %v", j, step, err)
		}
	}
}

// resendInterval is how long a round waits before asking for missing
// messages again.
func (s *Session) resendInterval() time.Duration {
	d := s.conf.RoundTimeout / 8
	switch {
	case d < 20*time.Millisecond:
		return 20 * time.Millisecond
	case d > 500*time.Millisecond:
		return 500 * time.Millisecond
	default:
		return d
	}
}

func (s *Session) checkSender(sender int, source string) error {
	if sender < 0 || sender >= s.n || sender == s.conf.Index {
		return xerrors.Errorf("invalid sender %d", sender)
	}
	if source != s.conf.Parties[sender] {
		return xerrors.Errorf("party %d is %s, got message from %s", sender, s.conf.Parties[sender], source)
	}
	return nil
}

func encodeValues(values []*big.Int) []string {
	res := make([]string, len(values))
	for i, v := range values {
		res[i] = v.Text(10)
	}
	return res
}

func decodeValues(encoded []string, p *big.Int) ([]*big.Int, error) {
	res := make([]*big.Int, len(encoded))
	for i, str := range encoded {
		v, ok := new(big.Int).SetString(str, 10)
		if !ok || v.Sign() < 0 || v.Cmp(p) >= 0 {
			return nil, xerrors.Errorf("invalid field element %q", str)
		}
		res[i] = v
	}
	return res, nil
}

func (s *Session) openWeights(degree int) *openWeights {
	s.weightsMu.Lock()
	defer s.weightsMu.Unlock()

	w, found := s.weights[degree]
	if !found {
		w = newOpenWeights(degree, s.xcoord, s.p)
		s.weights[degree] = w
	}
	return w
}

// exchange runs one round: it sends out[j] to party j (nothing when nil) and
// waits for the values of every party in from.
func (s *Session) exchange(ctx context.Context, out [][]*big.Int, from []int,
	open bool) (map[int][]*big.Int, error) {

	step := s.step.Inc()

	err := s.inbox.failure()
	if err != nil {
		return nil, err
	}

	for j, values := range out {
		if values == nil {
			continue
		}
		if j == s.conf.Index {
			s.inbox.put(step, j, 0, len(values), values)
			continue
		}

		msgs := chunks(s.runID, step, s.conf.Index, encodeValues(values), open)
		s.outbox.keep(step, j, msgs)

		for _, msg := range msgs {
			err := s.send(j, msg)
			if err != nil {
				return nil, xerrors.Errorf("%w: failed to reach party %d: %v", peer.ErrPartyUnavailable, j, err)
			}
		}
	}

	got, err := s.inbox.collect(ctx, step, from, s.conf.RoundTimeout, s.resendInterval(),
		func(missing []int) { s.requestResend(step, missing) })
	if err != nil {
		return nil, err
	}

	s.trace.round()
	s.logger.Trace().Msgf("step %d done", step)

	return got, nil
}

func (s *Session) allParties() []int {
	res := make([]int, s.n)
	for i := range res {
		res[i] = i
	}
	return res
}
