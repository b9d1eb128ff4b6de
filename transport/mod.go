package transport

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/xid"
)

// Transport creates sockets.
type Transport interface {
	CreateSocket(address string) (ClosableSocket, error)
}

// Socket describes the primitives of a party's network endpoint.
type Socket interface {
	// Send sends a packet to dest. A timeout of 0 means no timeout.
	Send(dest string, pkt Packet, timeout time.Duration) error

	// Recv blocks until a packet is received or the timeout is reached, in
	// which case a TimeoutError is returned.
	Recv(timeout time.Duration) (Packet, error)

	// GetAddress returns the address assigned to the socket.
	GetAddress() string

	// GetIns returns the packets received so far.
	GetIns() []Packet

	// GetOuts returns the packets sent so far.
	GetOuts() []Packet
}

// ClosableSocket is a socket that can be closed.
type ClosableSocket interface {
	Socket
	Close() error
}

// TimeoutError is returned when a socket operation timed out.
type TimeoutError time.Duration

// Error implements error.
func (err TimeoutError) Error() string {
	return fmt.Sprintf("timeout reached after %d", time.Duration(err))
}

// Is implements the errors.Is interface. Any TimeoutError matches.
func (TimeoutError) Is(err error) bool {
	_, ok := err.(TimeoutError)
	return ok
}

// Packet is the unit exchanged between sockets.
type Packet struct {
	Header *Header
	Msg    *Message
}

// Header carries routing information of a packet.
type Header struct {
	PacketID    string
	Timestamp   int64
	Source      string
	Destination string
}

// NewHeader returns a header with a fresh packet ID.
func NewHeader(source, dest string) Header {
	return Header{
		PacketID:    xid.New().String(),
		Timestamp:   time.Now().UnixNano(),
		Source:      source,
		Destination: dest,
	}
}

// Message is a typed payload. Type is the name of the registered message.
type Message struct {
	Type    string
	Payload json.RawMessage
}

// Marshal returns the JSON representation of the packet.
func (p Packet) Marshal() ([]byte, error) {
	return json.Marshal(&p)
}

// Unmarshal fills the packet from its JSON representation.
func (p *Packet) Unmarshal(buf []byte) error {
	return json.Unmarshal(buf, p)
}

// Copy returns a deep copy of the packet.
func (p Packet) Copy() Packet {
	res := Packet{}

	if p.Header != nil {
		h := *p.Header
		res.Header = &h
	}

	if p.Msg != nil {
		m := Message{Type: p.Msg.Type}
		if p.Msg.Payload != nil {
			m.Payload = append(json.RawMessage{}, p.Msg.Payload...)
		}
		res.Msg = &m
	}

	return res
}

// String implements fmt.Stringer.
func (p Packet) String() string {
	if p.Header == nil || p.Msg == nil {
		return "{incomplete packet}"
	}
	return fmt.Sprintf("{%s: %s -> %s (%s)}", p.Header.PacketID, p.Header.Source,
		p.Header.Destination, p.Msg.Type)
}
