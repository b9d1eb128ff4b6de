package impl

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
	"go.dedis.ch/mupol/peer"
	"go.dedis.ch/mupol/peer/impl/engine"
	"go.dedis.ch/mupol/peer/impl/reveal"
	"go.dedis.ch/mupol/peer/impl/solver"
	"go.dedis.ch/mupol/plaintext"
	"go.dedis.ch/mupol/storage"
	"go.dedis.ch/mupol/types"
	"golang.org/x/xerrors"
)

// Option changes how a party is built.
type Option func(*node)

// WithAuditors names the parties that receive the details of every order
// and drive.
func WithAuditors(auditors ...int) Option {
	return func(n *node) {
		n.policy.Auditors = auditors
	}
}

// WithStorage keeps the outputs in the given store.
func WithStorage(kv storage.KVStore) Option {
	return func(n *node) {
		n.outputs = kv
	}
}

// NewParty creates a party and starts its messaging daemon.
func NewParty(conf peer.Configuration, opts ...Option) (peer.Party, error) {
	conf = conf.WithDefaults()

	err := conf.Validate()
	if err != nil {
		return nil, err
	}

	n := &node{
		conf:    conf,
		outputs: storage.NewBasicKV(),
		runs:    NewSafeRunTable(),
	}
	for _, opt := range opts {
		opt(n)
	}

	for _, a := range n.policy.Auditors {
		if a < 0 || a >= len(conf.Parties) {
			return nil, xerrors.Errorf("%w: unknown auditor %d", peer.ErrInvalidConfiguration, a)
		}
	}

	n.dispatcher = engine.NewDispatcher(conf.Socket)
	n.dispatcher.Start(context.Background())

	log.Info().Msgf("party %d listening on %s", conf.Index, conf.Socket.GetAddress())

	return n, nil
}

// node implements peer.Party
type node struct {
	conf       peer.Configuration
	policy     reveal.Policy
	dispatcher *engine.Dispatcher
	outputs    storage.KVStore
	runs       *SafeRunTable

	// one run at a time
	sync.Mutex
}

// Solve implements peer.Party
func (n *node) Solve(ctx context.Context, runID string, layout plaintext.Layout,
	input plaintext.PartyInput) (types.RevealedOutput, error) {

	n.Lock()
	defer n.Unlock()

	s, err := engine.NewSession(n.conf, runID, n.dispatcher)
	if err != nil {
		return types.RevealedOutput{}, peer.NewRunError(runID, peer.PhaseInit, err)
	}
	defer s.Close()

	n.runs.add(s)

	out, err := n.solve(ctx, s, layout, input)
	n.runs.finish(runID, err)

	if err != nil {
		return types.RevealedOutput{}, err
	}

	summary := s.Trace().Summary()
	log.Info().Msgf("party %d: run %s done in %d rounds (%d comparisons, %d selections)",
		n.conf.Index, runID, summary.Rounds, summary.Comparisons, summary.Selections)

	return out, nil
}

func (n *node) solve(ctx context.Context, s *engine.Session, layout plaintext.Layout,
	input plaintext.PartyInput) (types.RevealedOutput, error) {

	sv, err := solver.New(s, layout)
	if err != nil {
		return types.RevealedOutput{}, err
	}

	state, err := sv.Solve(ctx, input)
	if err != nil {
		return types.RevealedOutput{}, err
	}

	coordinator, err := reveal.New(s, n.policy)
	if err != nil {
		return types.RevealedOutput{}, s.Fail(err)
	}

	out, err := coordinator.Reveal(ctx, state)
	if err != nil {
		return types.RevealedOutput{}, err
	}

	err = n.outputs.Put(s.RunID(), out)
	if err != nil {
		return types.RevealedOutput{}, peer.NewRunError(s.RunID(), peer.PhaseFinalize,
			xerrors.Errorf("%w: %v", peer.ErrProtocolAbort, err))
	}

	return out, nil
}

// Outputs implements peer.Party
func (n *node) Outputs() storage.KVStore {
	return n.outputs
}

// Runs implements peer.Party
func (n *node) Runs() []peer.RunStatus {
	return n.runs.getAll()
}

// Stop implements peer.Party
func (n *node) Stop() error {
	n.dispatcher.Stop()
	return nil
}
