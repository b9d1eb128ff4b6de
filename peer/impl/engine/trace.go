package engine

import (
	"encoding/binary"
	"encoding/hex"
	"sync"

	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/atomic"
)

// Op names an operation recorded in the trace.
type Op string

const (
	OpShare   Op = "share"
	OpMul     Op = "mul"
	OpOpen    Op = "open"
	OpRandom  Op = "random"
	OpCompare Op = "compare"
	OpSelect  Op = "select"
)

// Trace records the shape of a run: how many rounds were executed, how many
// values each kind of operation handled, and a digest of the sequence of
// operations with their batch sizes. Two runs on the same public layout have
// the same trace whatever the secret inputs.
type Trace struct {
	rounds          atomic.Uint64
	multiplications atomic.Uint64
	openings        atomic.Uint64
	comparisons     atomic.Uint64
	selections      atomic.Uint64

	sync.Mutex
	digest []byte
}

// TraceSummary is a snapshot of a trace.
type TraceSummary struct {
	Rounds          uint64
	Multiplications uint64
	Openings        uint64
	Comparisons     uint64
	Selections      uint64
	Digest          string
}

// NewTrace returns an empty trace.
func NewTrace() *Trace {
	return &Trace{
		digest: crypto.Keccak256(nil),
	}
}

// Record appends an operation of the given batch size.
func (t *Trace) Record(op Op, size int) {
	switch op {
	case OpMul:
		t.multiplications.Add(uint64(size))
	case OpOpen:
		t.openings.Add(uint64(size))
	case OpCompare:
		t.comparisons.Add(uint64(size))
	case OpSelect:
		t.selections.Add(uint64(size))
	}

	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(size))

	t.Lock()
	t.digest = crypto.Keccak256(t.digest, []byte(op), buf)
	t.Unlock()
}

func (t *Trace) round() {
	t.rounds.Inc()
}

// Rounds returns the number of communication rounds executed so far.
func (t *Trace) Rounds() uint64 {
	return t.rounds.Load()
}

// Summary returns a snapshot of the trace.
func (t *Trace) Summary() TraceSummary {
	t.Lock()
	digest := hex.EncodeToString(t.digest)
	t.Unlock()

	return TraceSummary{
		Rounds:          t.rounds.Load(),
		Multiplications: t.multiplications.Load(),
		Openings:        t.openings.Load(),
		Comparisons:     t.comparisons.Load(),
		Selections:      t.selections.Load(),
		Digest:          digest,
	}
}
