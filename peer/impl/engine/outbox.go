package engine

import (
	"sync"

	"go.dedis.ch/mupol/types"
)

// outboxWindow is the number of recent steps whose messages are kept for
// resending.
const outboxWindow = 32

// maxChunkValues bounds the number of field elements per message so that a
// message fits in one datagram. A decimal element of Z_p takes at most 42
// bytes once JSON encoded.
const maxChunkValues = 1000

// outbox keeps the messages sent during the last steps of a run.
type outbox struct {
	sync.Mutex
	sent  map[uint64]map[int][]types.Message
	steps []uint64
}

func newOutbox() *outbox {
	return &outbox{
		sent: map[uint64]map[int][]types.Message{},
	}
}

func (o *outbox) keep(step uint64, dest int, msgs []types.Message) {
	o.Lock()
	defer o.Unlock()

	perDest, found := o.sent[step]
	if !found {
		perDest = map[int][]types.Message{}
		o.sent[step] = perDest
		o.steps = append(o.steps, step)

		for len(o.steps) > outboxWindow {
			delete(o.sent, o.steps[0])
			o.steps = o.steps[1:]
		}
	}
	perDest[dest] = msgs
}

// trim keeps the messages of the last n steps only.
func (o *outbox) trim(n int) {
	o.Lock()
	defer o.Unlock()

	for len(o.steps) > n {
		delete(o.sent, o.steps[0])
		o.steps = o.steps[1:]
	}
}

func (o *outbox) get(step uint64, dest int) []types.Message {
	o.Lock()
	defer o.Unlock()

	return o.sent[step][dest]
}

// chunks splits the values of one step into messages of at most
// maxChunkValues elements. At least one message is returned.
func chunks(runID string, step uint64, sender int, values []string, open bool) []types.Message {
	total := len(values)
	res := []types.Message{}

	for offset := 0; ; offset += maxChunkValues {
		end := offset + maxChunkValues
		if end > total {
			end = total
		}
		part := values[offset:end]

		if open {
			res = append(res, types.OpenMessage{RunID: runID, Step: step, Sender: sender,
				Offset: offset, Total: total, Values: part})
		} else {
			res = append(res, types.ShareMessage{RunID: runID, Step: step, Sender: sender,
				Offset: offset, Total: total, Values: part})
		}

		if end == total {
			break
		}
	}

	return res
}
