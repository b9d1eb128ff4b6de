package peer

import (
	"context"
	"math/big"
	"math/bits"
	"time"

	"go.dedis.ch/mupol/plaintext"
	"go.dedis.ch/mupol/storage"
	"go.dedis.ch/mupol/transport"
	"go.dedis.ch/mupol/types"
	"golang.org/x/xerrors"
)

const (
	// DefaultBitLength bounds every shared integer to [0, 2^32).
	DefaultBitLength = 32
	// DefaultStatisticalSecurity is the number of extra mask bits used when a
	// masked value is opened.
	DefaultStatisticalSecurity = 40
	// DefaultRoundTimeout is how long a party waits for the messages of a
	// single round.
	DefaultRoundTimeout = 30 * time.Second

	// ZeroThreshold is the Threshold value asking for polynomials of degree
	// 0, since a zero Threshold selects the default.
	ZeroThreshold = -1
)

// DefaultPrime is the Mersenne prime 2^127 - 1.
var DefaultPrime = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 127), big.NewInt(1))

// Party is one participant of the secure assignment. Runs of a party are
// executed one after the other.
type Party interface {
	// Solve runs the secure assignment for the given public layout with this
	// party's private input and returns the outputs revealed to this party.
	// Every party of the run must call Solve with the same runID and layout.
	Solve(ctx context.Context, runID string, layout plaintext.Layout, input plaintext.PartyInput) (types.RevealedOutput, error)

	// Outputs returns the outputs of the runs that completed.
	Outputs() storage.KVStore

	// Runs returns the status of every run the party took part in, ordered
	// by start time.
	Runs() []RunStatus

	// Stop stops the party's messaging daemon.
	Stop() error
}

// RunStatus describes a run of a party.
type RunStatus struct {
	RunID  string
	Phase  Phase
	Done   bool
	Rounds uint64
	Class  FaultClass `json:",omitempty"`
	Error  string     `json:",omitempty"`
}

// Configuration of a party. All parties of a run must use the same values,
// except for Socket and Index.
type Configuration struct {
	Socket transport.Socket

	// Index is the party's public index, starting at 0.
	Index int

	// Parties are the addresses of all parties, ordered by index.
	Parties []string

	// Threshold is the degree of the sharing polynomials. At most Threshold
	// parties can collude without learning anything. 0 selects (n-1)/2,
	// ZeroThreshold selects a threshold of 0.
	Threshold int

	// BitLength bounds every input value to [0, 2^BitLength).
	BitLength uint

	StatisticalSecurity uint

	RoundTimeout time.Duration

	// Prime is the field modulus. It must be congruent to 3 mod 4.
	Prime *big.Int
}

// WithDefaults returns a copy of the configuration where unset fields carry
// their default value.
func (c Configuration) WithDefaults() Configuration {
	switch c.Threshold {
	case 0:
		c.Threshold = (len(c.Parties) - 1) / 2
	case ZeroThreshold:
		c.Threshold = 0
	}
	if c.BitLength == 0 {
		c.BitLength = DefaultBitLength
	}
	if c.StatisticalSecurity == 0 {
		c.StatisticalSecurity = DefaultStatisticalSecurity
	}
	if c.RoundTimeout == 0 {
		c.RoundTimeout = DefaultRoundTimeout
	}
	if c.Prime == nil {
		c.Prime = DefaultPrime
	}
	return c
}

// Validate checks that the configuration can run the protocol. Errors wrap
// ErrInvalidConfiguration.
func (c Configuration) Validate() error {
	n := len(c.Parties)

	switch {
	case c.Socket == nil:
		return xerrors.Errorf("%w: no socket", ErrInvalidConfiguration)
	case n < 2:
		return xerrors.Errorf("%w: need at least 2 parties, got %d", ErrInvalidConfiguration, n)
	case c.Index < 0 || c.Index >= n:
		return xerrors.Errorf("%w: party index %d out of [0, %d)", ErrInvalidConfiguration, c.Index, n)
	case c.Parties[c.Index] != c.Socket.GetAddress():
		return xerrors.Errorf("%w: party %d is %s but the socket listens on %s",
			ErrInvalidConfiguration, c.Index, c.Parties[c.Index], c.Socket.GetAddress())
	case c.Threshold < 0 || 2*c.Threshold >= n:
		return xerrors.Errorf("%w: threshold %d needs 2t < n = %d", ErrInvalidConfiguration, c.Threshold, n)
	case c.BitLength < 2:
		return xerrors.Errorf("%w: bit length %d too small", ErrInvalidConfiguration, c.BitLength)
	case c.RoundTimeout <= 0:
		return xerrors.Errorf("%w: round timeout must be positive", ErrInvalidConfiguration)
	case c.Prime == nil || !c.Prime.ProbablyPrime(20):
		return xerrors.Errorf("%w: modulus is not a prime", ErrInvalidConfiguration)
	case c.Prime.Bit(0) != 1 || c.Prime.Bit(1) != 1:
		return xerrors.Errorf("%w: modulus must be 3 mod 4", ErrInvalidConfiguration)
	}

	seen := make(map[string]struct{}, n)
	for _, addr := range c.Parties {
		_, found := seen[addr]
		if found {
			return xerrors.Errorf("%w: duplicate party address %s", ErrInvalidConfiguration, addr)
		}
		seen[addr] = struct{}{}
	}

	// masked openings must not wrap around the modulus
	need := int(c.BitLength) + int(c.StatisticalSecurity) + bits.Len(uint(n)) + 3
	if need >= c.Prime.BitLen() {
		return xerrors.Errorf("%w: bit length %d and statistical security %d need a modulus of more than %d bits",
			ErrInvalidConfiguration, c.BitLength, c.StatisticalSecurity, need)
	}

	return nil
}
