package engine

import (
	"context"
	"encoding/binary"
	"math/big"

	"github.com/ethereum/go-ethereum/crypto"
	"go.dedis.ch/mupol/peer"
	"golang.org/x/xerrors"
)

// Agree checks in one round that every party runs with the same public
// parameters: the addresses of the parties, n, t, k, the statistical
// security, p, and the given public data. A mismatch fails with
// peer.ErrInvalidConfiguration at every party.
func (s *Session) Agree(ctx context.Context, public ...[]byte) error {
	digest := s.ParametersDigest(public...)
	values := digestValues(digest)

	out := make([][]*big.Int, s.n)
	for j := range out {
		out[j] = values
	}

	got, err := s.exchange(ctx, out, s.allParties(), true)
	if err != nil {
		return err
	}

	mismatch := []int{}
	for j := 0; j < s.n; j++ {
		if !equalValues(got[j], values) {
			mismatch = append(mismatch, j)
		}
	}
	if len(mismatch) > 0 {
		return xerrors.Errorf("%w: parties %v run with other public parameters",
			peer.ErrInvalidConfiguration, mismatch)
	}

	s.logger.Debug().Msgf("parameters agreed on %x", digest)
	return nil
}

// ParametersDigest returns the Keccak-256 digest of the public parameters
// of the session and the given public data.
func (s *Session) ParametersDigest(public ...[]byte) []byte {
	data := [][]byte{
		uint64Bytes(uint64(s.n)),
		uint64Bytes(uint64(s.t)),
		uint64Bytes(uint64(s.conf.BitLength)),
		uint64Bytes(uint64(s.conf.StatisticalSecurity)),
		lengthPrefixed(s.p.Bytes()),
	}
	for _, addr := range s.conf.Parties {
		data = append(data, lengthPrefixed([]byte(addr)))
	}
	for _, p := range public {
		data = append(data, lengthPrefixed(p))
	}

	return crypto.Keccak256(data...)
}

// digestValues cuts a digest into 8-byte field elements.
func digestValues(digest []byte) []*big.Int {
	res := make([]*big.Int, 0, (len(digest)+7)/8)
	for i := 0; i < len(digest); i += 8 {
		end := i + 8
		if end > len(digest) {
			end = len(digest)
		}
		res = append(res, new(big.Int).SetBytes(digest[i:end]))
	}
	return res
}

func uint64Bytes(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}

func lengthPrefixed(b []byte) []byte {
	return append(uint64Bytes(uint64(len(b))), b...)
}
