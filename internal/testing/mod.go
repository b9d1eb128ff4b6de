// Package z provides helpers to run several parties in one test process.
package z

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/rs/xid"
	"github.com/stretchr/testify/require"
	"go.dedis.ch/mupol/peer"
	"go.dedis.ch/mupol/peer/impl/engine"
	"go.dedis.ch/mupol/transport"
	"go.dedis.ch/mupol/transport/channel"
	"golang.org/x/sync/errgroup"
)

type config struct {
	threshold    int
	bitLength    uint
	kappa        uint
	roundTimeout time.Duration
	transport    transport.Transport
}

// Option changes the configuration of the parties of a test.
type Option func(*config)

// WithThreshold sets the threshold of every party.
func WithThreshold(t int) Option {
	return func(c *config) {
		c.threshold = t
	}
}

// WithBitLength sets the bit length of every party.
func WithBitLength(k uint) Option {
	return func(c *config) {
		c.bitLength = k
	}
}

// WithStatisticalSecurity sets the statistical security of every party.
func WithStatisticalSecurity(kappa uint) Option {
	return func(c *config) {
		c.kappa = kappa
	}
}

// WithRoundTimeout sets the round timeout of every party.
func WithRoundTimeout(d time.Duration) Option {
	return func(c *config) {
		c.roundTimeout = d
	}
}

// WithTransport uses the given transport instead of a fresh in-memory one.
func WithTransport(tr transport.Transport) Option {
	return func(c *config) {
		c.transport = tr
	}
}

// NewConfigurations returns the configurations of n parties. Sockets are
// closed when the test ends.
func NewConfigurations(t testing.TB, n int, opts ...Option) []peer.Configuration {
	c := config{
		bitLength:    16,
		kappa:        40,
		roundTimeout: 5 * time.Second,
		transport:    channel.NewTransport(),
	}
	for _, opt := range opts {
		opt(&c)
	}

	sockets := make([]transport.ClosableSocket, n)
	addrs := make([]string, n)
	for i := range sockets {
		socket, err := c.transport.CreateSocket("127.0.0.1:0")
		require.NoError(t, err)
		t.Cleanup(func() { socket.Close() })

		sockets[i] = socket
		addrs[i] = socket.GetAddress()
	}

	confs := make([]peer.Configuration, n)
	for i := range confs {
		confs[i] = peer.Configuration{
			Socket:              sockets[i],
			Index:               i,
			Parties:             addrs,
			Threshold:           c.threshold,
			BitLength:           c.bitLength,
			StatisticalSecurity: c.kappa,
			RoundTimeout:        c.roundTimeout,
		}
	}

	return confs
}

// NewDispatchers starts a dispatcher on every configuration's socket.
func NewDispatchers(t testing.TB, confs []peer.Configuration) []*engine.Dispatcher {
	res := make([]*engine.Dispatcher, len(confs))
	for i, conf := range confs {
		d := engine.NewDispatcher(conf.Socket)
		d.Start(context.Background())
		t.Cleanup(d.Stop)
		res[i] = d
	}
	return res
}

// NewSessions returns the sessions of n parties sharing one run.
func NewSessions(t testing.TB, n int, opts ...Option) []*engine.Session {
	confs := NewConfigurations(t, n, opts...)
	dispatchers := NewDispatchers(t, confs)
	runID := xid.New().String()

	sessions := make([]*engine.Session, n)
	for i, conf := range confs {
		s, err := engine.NewSession(conf, runID, dispatchers[i])
		require.NoError(t, err)
		t.Cleanup(s.Close)
		sessions[i] = s
	}

	return sessions
}

// Parallel runs fn for every party concurrently and returns the error of
// every party.
func Parallel(n int, fn func(i int) error) []error {
	var g errgroup.Group
	errs := make([]error, n)

	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			errs[i] = fn(i)
			return nil
		})
	}
	_ = g.Wait()

	return errs
}

// RequireNoErrors fails the test if any party failed.
func RequireNoErrors(t testing.TB, errs []error) {
	for i, err := range errs {
		require.NoError(t, err, "party %d", i)
	}
}

// Reveal opens the values every party holds to all parties, checks that
// every party sees the same plaintexts and returns them as signed integers.
func Reveal(t testing.TB, sessions []*engine.Session, values [][]engine.SecretValue) []int64 {
	n := len(sessions)
	opened := make([][]*big.Int, n)

	errs := Parallel(n, func(i int) error {
		res, err := sessions[i].OpenAll(context.Background(), values[i])
		opened[i] = res
		return err
	})
	RequireNoErrors(t, errs)

	res := Signed(sessions[0].Prime(), opened[0])
	for i := 1; i < n; i++ {
		require.Equal(t, res, Signed(sessions[i].Prime(), opened[i]), "party %d", i)
	}

	return res
}

// RevealBits opens bits to all parties.
func RevealBits(t testing.TB, sessions []*engine.Session, bits [][]engine.SecretBit) []int64 {
	values := make([][]engine.SecretValue, len(bits))
	for i, b := range bits {
		values[i] = engine.ValuesOf(b)
	}
	return Reveal(t, sessions, values)
}

// Signed maps elements of Zp to integers in (-p/2, p/2].
func Signed(p *big.Int, values []*big.Int) []int64 {
	half := new(big.Int).Rsh(p, 1)

	res := make([]int64, len(values))
	for i, v := range values {
		x := new(big.Int).Set(v)
		if x.Cmp(half) > 0 {
			x.Sub(x, p)
		}
		res[i] = x.Int64()
	}
	return res
}
