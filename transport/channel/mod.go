package channel

import (
	"fmt"
	"sync"
	"time"

	"go.dedis.ch/mupol/transport"
	"go.uber.org/atomic"
	"golang.org/x/xerrors"
)

const queueSize = 4096

// NewTransport returns a new in-memory transport. Sockets created from the
// same transport can reach each other.
func NewTransport() transport.Transport {
	return &Transport{
		sockets: map[string]*Socket{},
	}
}

// Transport implements an in-memory transport, used to run several parties
// inside one process.
//
// - implements transport.Transport
type Transport struct {
	sync.RWMutex
	sockets map[string]*Socket
	ports   atomic.Uint32
}

// CreateSocket implements transport.Transport. An address ending with ":0"
// gets a unique port assigned.
func (t *Transport) CreateSocket(address string) (transport.ClosableSocket, error) {
	if len(address) > 2 && address[len(address)-2:] == ":0" {
		address = fmt.Sprintf("%s:%d", address[:len(address)-2], 10000+t.ports.Inc())
	}

	t.Lock()
	defer t.Unlock()

	_, found := t.sockets[address]
	if found {
		return nil, xerrors.Errorf("address %s already in use", address)
	}

	s := &Socket{
		transport: t,
		myAddr:    address,
		queue:     make(chan transport.Packet, queueSize),
		closed:    make(chan struct{}),
	}
	t.sockets[address] = s

	return s, nil
}

func (t *Transport) lookup(address string) (*Socket, bool) {
	t.RLock()
	defer t.RUnlock()

	s, ok := t.sockets[address]
	return s, ok
}

func (t *Transport) remove(address string) {
	t.Lock()
	defer t.Unlock()

	delete(t.sockets, address)
}

// Socket is an in-memory socket.
//
// - implements transport.ClosableSocket
type Socket struct {
	transport *Transport
	myAddr    string
	queue     chan transport.Packet

	closeOnce sync.Once
	closed    chan struct{}

	ins  packets
	outs packets
}

// Close implements transport.ClosableSocket.
func (s *Socket) Close() error {
	err := xerrors.Errorf("socket %s already closed", s.myAddr)
	s.closeOnce.Do(func() {
		s.transport.remove(s.myAddr)
		close(s.closed)
		err = nil
	})
	return err
}

// Send implements transport.Socket.
func (s *Socket) Send(dest string, pkt transport.Packet, timeout time.Duration) error {
	select {
	case <-s.closed:
		return xerrors.Errorf("socket %s is closed", s.myAddr)
	default:
	}

	other, ok := s.transport.lookup(dest)
	if !ok {
		return xerrors.Errorf("no socket listening on %s", dest)
	}

	var expired <-chan time.Time
	if timeout != 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case other.queue <- pkt.Copy():
	case <-other.closed:
		return xerrors.Errorf("socket %s is closed", dest)
	case <-expired:
		return transport.TimeoutError(timeout)
	}

	s.outs.add(pkt)
	return nil
}

// Recv implements transport.Socket.
func (s *Socket) Recv(timeout time.Duration) (transport.Packet, error) {
	var expired <-chan time.Time
	if timeout != 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case pkt := <-s.queue:
		s.ins.add(pkt)
		return pkt, nil
	case <-s.closed:
		return transport.Packet{}, xerrors.Errorf("socket %s is closed", s.myAddr)
	case <-expired:
		return transport.Packet{}, transport.TimeoutError(timeout)
	}
}

// GetAddress implements transport.Socket.
func (s *Socket) GetAddress() string {
	return s.myAddr
}

// GetIns implements transport.Socket.
func (s *Socket) GetIns() []transport.Packet {
	return s.ins.getAll()
}

// GetOuts implements transport.Socket.
func (s *Socket) GetOuts() []transport.Packet {
	return s.outs.getAll()
}

type packets struct {
	sync.Mutex
	data []transport.Packet
}

func (p *packets) add(pkt transport.Packet) {
	p.Lock()
	defer p.Unlock()

	p.data = append(p.data, pkt.Copy())
}

func (p *packets) getAll() []transport.Packet {
	p.Lock()
	defer p.Unlock()

	res := make([]transport.Packet, len(p.data))
	for i, pkt := range p.data {
		res[i] = pkt.Copy()
	}

	return res
}
