package udp

import (
	"errors"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"go.dedis.ch/mupol/transport"
	"golang.org/x/xerrors"
)

// largest packet that fits in one datagram
const bufSize = 65000

// readBuffer is the kernel receive buffer asked for every socket. Rounds send
// bursts of datagrams.
const readBuffer = 4 << 20

// NewUDP returns a new udp transport implementation.
func NewUDP() transport.Transport {
	return &UDP{}
}

// UDP implements a transport layer using UDP. Each party of a run owns one
// socket.
//
// - implements transport.Transport
type UDP struct {
}

func checkValidAddr(address string) bool {
	host, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return false
	}
	if net.ParseIP(host) == nil {
		return false
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return false
	}
	return port >= 0 && port <= 65535
}

// CreateSocket implements transport.Transport
func (n *UDP) CreateSocket(address string) (transport.ClosableSocket, error) {
	if !checkValidAddr(address) {
		return nil, xerrors.Errorf("invalid address %s", address)
	}

	udpAddr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, xerrors.Errorf("failed to resolve %s: %v", address, err)
	}

	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, xerrors.Errorf("failed to listen on %s: %v", address, err)
	}

	// best effort, the kernel may cap it
	_ = conn.SetReadBuffer(readBuffer)

	return &Socket{
		conn:   conn,
		myAddr: conn.LocalAddr().String(),
	}, nil
}

// Socket implements a network socket using UDP.
//
// - implements transport.Socket
// - implements transport.ClosableSocket
type Socket struct {
	sync.RWMutex
	conn   *net.UDPConn
	closed bool
	myAddr string
	ins    packets
	outs   packets
}

// Close implements transport.Socket. It returns an error if already closed.
func (s *Socket) Close() error {
	s.Lock()
	defer s.Unlock()

	if s.closed {
		return xerrors.Errorf("socket already closed")
	}
	s.closed = true
	return s.conn.Close()
}

func (s *Socket) isClosed() bool {
	s.RLock()
	defer s.RUnlock()
	return s.closed
}

// Send implements transport.Socket
func (s *Socket) Send(dest string, pkt transport.Packet, timeout time.Duration) error {
	if s.isClosed() {
		return xerrors.Errorf("socket %s is closed", s.myAddr)
	}
	if !checkValidAddr(dest) {
		return xerrors.Errorf("invalid address %s", dest)
	}
	destAddr, err := net.ResolveUDPAddr("udp", dest)
	if err != nil {
		return err
	}

	deadline := time.Time{}
	if timeout != 0 {
		deadline = time.Now().Add(timeout)
	}
	err = s.conn.SetWriteDeadline(deadline)
	if err != nil {
		return err
	}

	buf, err := pkt.Marshal()
	if err != nil {
		return err
	}
	if len(buf) > bufSize {
		return xerrors.Errorf("packet of %d bytes exceeds datagram size %d", len(buf), bufSize)
	}

	_, err = s.conn.WriteToUDP(buf, destAddr)
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return transport.TimeoutError(timeout)
	}
	if err != nil {
		return err
	}

	s.outs.add(pkt)
	return nil
}

// Recv implements transport.Socket. It blocks until a packet is received, or
// the timeout is reached. In the case the timeout is reached, return a
// TimeoutErr.
func (s *Socket) Recv(timeout time.Duration) (transport.Packet, error) {
	pkt := transport.Packet{}

	if s.isClosed() {
		return pkt, xerrors.Errorf("socket %s is closed", s.myAddr)
	}

	deadline := time.Time{}
	if timeout != 0 {
		deadline = time.Now().Add(timeout)
	}
	err := s.conn.SetReadDeadline(deadline)
	if err != nil {
		return pkt, err
	}

	buffer := make([]byte, bufSize)
	size, _, err := s.conn.ReadFromUDP(buffer)
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return pkt, transport.TimeoutError(timeout)
	}
	if err != nil {
		return pkt, err
	}

	err = pkt.Unmarshal(buffer[:size])
	if err != nil {
		return pkt, err
	}

	s.ins.add(pkt)
	return pkt, nil
}

// GetAddress implements transport.Socket. It returns the address assigned. Can
// be useful in the case one provided a :0 address, which makes the system use a
// random free port.
func (s *Socket) GetAddress() string {
	return s.myAddr
}

// GetIns implements transport.Socket
func (s *Socket) GetIns() []transport.Packet {
	return s.ins.getAll()
}

// GetOuts implements transport.Socket
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
