package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.dedis.ch/mupol/registry"
	"go.dedis.ch/mupol/transport"
	"go.dedis.ch/mupol/types"
	"golang.org/x/xerrors"
)

// ReadTimeout is how long the messaging daemon blocks on the socket before
// checking whether it must stop.
const ReadTimeout = time.Millisecond * 100

// maxPending bounds the number of messages kept for runs that have not
// started locally yet.
const maxPending = 1 << 16

var (
	errRunRunning  = xerrors.New("run already running on this socket")
	errRunFinished = xerrors.New("run already finished on this socket")
)

type envelope struct {
	msg    types.Message
	source string
}

// Dispatcher owns the receiving side of a party's socket. It routes protocol
// messages to the session of their run, and keeps messages of runs that did
// not start locally yet.
type Dispatcher struct {
	socket   transport.Socket
	registry *registry.Registry

	sync.Mutex
	sessions map[string]*Session
	pending  map[string][]envelope
	npending int
	finished map[string]*Session

	stopSig context.CancelFunc
	done    chan struct{}
}

// NewDispatcher returns a dispatcher for the socket. Call Start to begin
// receiving.
func NewDispatcher(socket transport.Socket) *Dispatcher {
	d := &Dispatcher{
		socket:   socket,
		registry: registry.NewRegistry(),
		sessions: map[string]*Session{},
		pending:  map[string][]envelope{},
		finished: map[string]*Session{},
	}

	d.registry.RegisterMessageCallback(types.ShareMessage{}, d.ProcessShareMsg)
	d.registry.RegisterMessageCallback(types.OpenMessage{}, d.ProcessOpenMsg)
	d.registry.RegisterMessageCallback(types.ResendMessage{}, d.ProcessResendMsg)
	d.registry.RegisterMessageCallback(types.AbortMessage{}, d.ProcessAbortMsg)

	return d
}

// Start starts the messaging daemon.
func (d *Dispatcher) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)

	d.Lock()
	d.stopSig = cancel
	d.done = make(chan struct{})
	done := d.done
	d.Unlock()

	go func() {
		defer close(done)

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			pkt, err := d.socket.Recv(ReadTimeout)
			if errors.Is(err, transport.TimeoutError(0)) {
				continue
			}
			if err != nil {
				log.Debug().Msgf("%s: failed to receive: %v", d.socket.GetAddress(), err)
				select {
				case <-ctx.Done():
					return
				case <-time.After(ReadTimeout):
				}
				continue
			}

			err = d.registry.ProcessPacket(pkt)
			if err != nil {
				log.Debug().Msgf("%s: dropped packet %s: %v", d.socket.GetAddress(), pkt, err)
			}
		}
	}()
}

// Stop stops the messaging daemon and waits for it to return.
func (d *Dispatcher) Stop() {
	d.Lock()
	stop, done := d.stopSig, d.done
	d.Unlock()

	if stop == nil {
		return
	}
	stop()
	<-done
}

// Registry returns the message registry used to (un)marshal messages.
func (d *Dispatcher) Registry() *registry.Registry {
	return d.registry
}

func (d *Dispatcher) attach(s *Session) error {
	d.Lock()
	_, running := d.sessions[s.runID]
	_, finished := d.finished[s.runID]
	if running {
		d.Unlock()
		return xerrors.Errorf("%w: %s", errRunRunning, s.runID)
	}
	if finished {
		d.Unlock()
		return xerrors.Errorf("%w: %s", errRunFinished, s.runID)
	}

	d.sessions[s.runID] = s
	queued := d.pending[s.runID]
	delete(d.pending, s.runID)
	d.npending -= len(queued)
	d.Unlock()

	for _, env := range queued {
		err := s.deliver(env.msg, env.source)
		if err != nil {
			s.logger.Debug().Msgf("dropped queued message: %v", err)
		}
	}

	return nil
}

func (d *Dispatcher) detach(runID string) {
	d.Lock()
	defer d.Unlock()

	s, found := d.sessions[runID]
	if !found {
		return
	}
	delete(d.sessions, runID)
	d.finished[runID] = s
}

func (d *Dispatcher) route(runID string, msg types.Message, pkt transport.Packet) error {
	source := ""
	if pkt.Header != nil {
		source = pkt.Header.Source
	}

	d.Lock()
	s, found := d.sessions[runID]
	if found {
		d.Unlock()
		return s.deliver(msg, source)
	}

	closed, finished := d.finished[runID]
	if finished {
		d.Unlock()

		// the last messages of a run may still be asked for
		resend, ok := msg.(*types.ResendMessage)
		if ok {
			return closed.deliver(resend, source)
		}
		return xerrors.Errorf("run %s is over", runID)
	}

	defer d.Unlock()

	if d.npending >= maxPending {
		return xerrors.Errorf("too many messages for unknown runs")
	}
	d.pending[runID] = append(d.pending[runID], envelope{msg: msg, source: source})
	d.npending++
	return nil
}
