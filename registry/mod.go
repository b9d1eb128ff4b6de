package registry

import (
	"encoding/json"
	"sync"

	"go.dedis.ch/mupol/transport"
	"go.dedis.ch/mupol/types"
	"golang.org/x/xerrors"
)

// Exec is the type of function called when a message is received.
type Exec func(types.Message, transport.Packet) error

// Registry stores message callbacks and (un)marshals messages by name.
type Registry struct {
	sync.RWMutex
	handlers map[string]handler
}

type handler struct {
	proto types.Message
	exec  Exec
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: map[string]handler{},
	}
}

// RegisterMessageCallback registers exec for messages of the same type as
// msg. A second registration for the same type replaces the first one.
func (r *Registry) RegisterMessageCallback(msg types.Message, exec Exec) {
	r.Lock()
	defer r.Unlock()

	r.handlers[msg.Name()] = handler{proto: msg, exec: exec}
}

// MarshalMessage wraps msg into a transport message.
func (r *Registry) MarshalMessage(msg types.Message) (transport.Message, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return transport.Message{}, xerrors.Errorf("failed to marshal %s: %v", msg.Name(), err)
	}

	return transport.Message{
		Type:    msg.Name(),
		Payload: payload,
	}, nil
}

// UnmarshalMessage decodes a transport message into its registered type.
func (r *Registry) UnmarshalMessage(msg *transport.Message) (types.Message, error) {
	r.RLock()
	h, ok := r.handlers[msg.Type]
	r.RUnlock()

	if !ok {
		return nil, xerrors.Errorf("unknown message type %q", msg.Type)
	}

	res := h.proto.NewEmpty()
	err := json.Unmarshal(msg.Payload, res)
	if err != nil {
		return nil, xerrors.Errorf("failed to unmarshal %s: %v", msg.Type, err)
	}

	return res, nil
}

// ProcessPacket decodes the packet's message and calls its callback.
func (r *Registry) ProcessPacket(pkt transport.Packet) error {
	if pkt.Msg == nil {
		return xerrors.Errorf("packet without message")
	}

	msg, err := r.UnmarshalMessage(pkt.Msg)
	if err != nil {
		return err
	}

	r.RLock()
	h := r.handlers[pkt.Msg.Type]
	r.RUnlock()

	return h.exec(msg, pkt)
}
