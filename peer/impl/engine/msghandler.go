package engine

import (
	"fmt"

	"go.dedis.ch/mupol/transport"
	"go.dedis.ch/mupol/types"
)

// ProcessShareMsg is a callback function to handle received share messages.
func (d *Dispatcher) ProcessShareMsg(msg types.Message, pkt transport.Packet) error {
	shareMsg, ok := msg.(*types.ShareMessage)
	if !ok {
		return fmt.Errorf("wrong type: %T", msg)
	}

	return d.route(shareMsg.RunID, shareMsg, pkt)
}

// ProcessOpenMsg is a callback function to handle received open messages.
func (d *Dispatcher) ProcessOpenMsg(msg types.Message, pkt transport.Packet) error {
	openMsg, ok := msg.(*types.OpenMessage)
	if !ok {
		return fmt.Errorf("wrong type: %T", msg)
	}

	return d.route(openMsg.RunID, openMsg, pkt)
}

// ProcessResendMsg is a callback function to handle received resend requests.
func (d *Dispatcher) ProcessResendMsg(msg types.Message, pkt transport.Packet) error {
	resendMsg, ok := msg.(*types.ResendMessage)
	if !ok {
		return fmt.Errorf("wrong type: %T", msg)
	}

	return d.route(resendMsg.RunID, resendMsg, pkt)
}

// ProcessAbortMsg is a callback function to handle received abort messages.
func (d *Dispatcher) ProcessAbortMsg(msg types.Message, pkt transport.Packet) error {
	abortMsg, ok := msg.(*types.AbortMessage)
	if !ok {
		return fmt.Errorf("wrong type: %T", msg)
	}

	return d.route(abortMsg.RunID, abortMsg, pkt)
}
