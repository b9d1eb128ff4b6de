package engine

import (
	"context"
	"math/big"
	"sync"
	"time"

	"go.dedis.ch/mupol/peer"
	"golang.org/x/xerrors"
)

// maxStepValues bounds the number of values a party may announce for one
// step.
const maxStepValues = 1 << 24

type slot struct {
	step   uint64
	sender int
}

// partial is a step whose chunks did not all arrive yet.
type partial struct {
	values  []*big.Int
	missing int
}

// inbox buffers the values received for every step until the session
// collects them. It is the round barrier of the protocol.
type inbox struct {
	sync.Mutex
	values   map[slot][]*big.Int
	partials map[slot]*partial
	floor    uint64
	err      error
	changed  chan struct{}
}

func newInbox() *inbox {
	return &inbox{
		values:   map[slot][]*big.Int{},
		partials: map[slot]*partial{},
		changed:  make(chan struct{}),
	}
}

func (b *inbox) notify() {
	close(b.changed)
	b.changed = make(chan struct{})
}

// put stores the chunk [offset, offset+len(values)) out of total values sent
// by sender for step. A chunk that contradicts what was already received
// fails the inbox.
func (b *inbox) put(step uint64, sender int, offset, total int, values []*big.Int) {
	b.Lock()
	defer b.Unlock()

	if step <= b.floor {
		return
	}

	if offset < 0 || total < 0 || total > maxStepValues || offset+len(values) > total {
		b.failLocked(xerrors.Errorf("%w: party %d sent values [%d, %d) out of %d for step %d",
			peer.ErrShareInconsistency, sender, offset, offset+len(values), total, step))
		return
	}

	key := slot{step: step, sender: sender}

	old, found := b.values[key]
	if found {
		if len(old) != total || !equalValues(old[offset:offset+len(values)], values) {
			b.failLocked(xerrors.Errorf("%w: party %d sent two different messages for step %d",
				peer.ErrShareInconsistency, sender, step))
		}
		return
	}

	part, found := b.partials[key]
	if !found {
		part = &partial{values: make([]*big.Int, total), missing: total}
		b.partials[key] = part
	}
	if len(part.values) != total {
		b.failLocked(xerrors.Errorf("%w: party %d announced %d and %d values for step %d",
			peer.ErrShareInconsistency, sender, len(part.values), total, step))
		return
	}

	for i, v := range values {
		cur := part.values[offset+i]
		if cur == nil {
			part.values[offset+i] = v
			part.missing--
			continue
		}
		if cur.Cmp(v) != 0 {
			b.failLocked(xerrors.Errorf("%w: party %d sent two different messages for step %d",
				peer.ErrShareInconsistency, sender, step))
			return
		}
	}

	if part.missing == 0 {
		delete(b.partials, key)
		b.values[key] = part.values
		b.notify()
	}
}

// fail wakes up every waiter with err. Only the first error is kept.
func (b *inbox) fail(err error) {
	b.Lock()
	defer b.Unlock()

	b.failLocked(err)
}

func (b *inbox) failLocked(err error) {
	if b.err != nil {
		return
	}
	b.err = err
	b.notify()
}

func (b *inbox) failure() error {
	b.Lock()
	defer b.Unlock()

	return b.err
}

// collect blocks until every sender delivered its values for step, and
// returns them. Steps must be collected in increasing order. idle is called
// with the missing senders every idleAfter while waiting.
func (b *inbox) collect(ctx context.Context, step uint64, senders []int, timeout time.Duration,
	idleAfter time.Duration, idle func(missing []int)) (map[int][]*big.Int, error) {

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	ticker := time.NewTicker(idleAfter)
	defer ticker.Stop()

	for {
		b.Lock()
		if b.err != nil {
			err := b.err
			b.Unlock()
			return nil, err
		}

		missing := []int{}
		for _, sender := range senders {
			_, found := b.values[slot{step: step, sender: sender}]
			if !found {
				missing = append(missing, sender)
			}
		}

		if len(missing) == 0 {
			res := make(map[int][]*big.Int, len(senders))
			for _, sender := range senders {
				key := slot{step: step, sender: sender}
				res[sender] = b.values[key]
				delete(b.values, key)
			}
			if step > b.floor {
				b.floor = step
			}
			b.dropPartialsLocked()
			b.Unlock()
			return res, nil
		}

		changed := b.changed
		b.Unlock()

		select {
		case <-changed:
		case <-ticker.C:
			if idle != nil {
				idle(missing)
			}
		case <-ctx.Done():
			return nil, xerrors.Errorf("%w: step %d interrupted: %v", peer.ErrProtocolAbort, step, ctx.Err())
		case <-timer.C:
			return nil, xerrors.Errorf("%w: no message from parties %v for step %d after %s",
				peer.ErrPartyUnavailable, missing, step, timeout)
		}
	}
}

// dropPartialsLocked forgets incomplete steps below the floor.
func (b *inbox) dropPartialsLocked() {
	for key := range b.partials {
		if key.step <= b.floor {
			delete(b.partials, key)
		}
	}
}

func equalValues(a, b []*big.Int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Cmp(b[i]) != 0 {
			return false
		}
	}
	return true
}
