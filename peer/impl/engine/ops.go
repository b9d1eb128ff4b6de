package engine

import (
	"context"
	"math/big"

	"go.dedis.ch/mupol/peer"
	"golang.org/x/xerrors"
)

// Constant returns a sharing of the public value c.
func (s *Session) Constant(c int64) SecretValue {
	return s.ConstantBig(big.NewInt(c))
}

// ConstantBig returns a sharing of the public value c.
func (s *Session) ConstantBig(c *big.Int) SecretValue {
	return SecretValue{share: modZp(c, s.p), p: s.p}
}

// Constants returns a sharing of every public value.
func (s *Session) Constants(cs []int64) []SecretValue {
	res := make([]SecretValue, len(cs))
	for i, c := range cs {
		res[i] = s.Constant(c)
	}
	return res
}

// Sum returns a sharing of the sum of values.
func (s *Session) Sum(values []SecretValue) SecretValue {
	sum := s.Constant(0)
	for _, v := range values {
		sum = sum.Add(v)
	}
	return sum
}

// shareOut shares every secret with a random polynomial of the given degree
// and returns the shares of every party.
func (s *Session) shareOut(secrets []*big.Int, degree int) ([][]*big.Int, error) {
	out := make([][]*big.Int, s.n)
	for j := range out {
		out[j] = make([]*big.Int, len(secrets))
	}

	for i, secret := range secrets {
		shares, err := shamirShareZp(secret, degree, s.xcoord, s.p)
		if err != nil {
			return nil, err
		}
		for j, share := range shares {
			out[j][i] = share
		}
	}

	return out, nil
}

// Share secret-shares the party's own values with every party. counts[j] is
// the public number of values party j inputs. The result holds the values of
// every party, indexed by owner. Own values must lie in [0, 2^k), otherwise
// nothing is sent and the error wraps peer.ErrRangeViolation.
func (s *Session) Share(ctx context.Context, own []int64, counts []int) ([][]SecretValue, error) {
	if len(counts) != s.n {
		return nil, xerrors.Errorf("%w: %d input counts for %d parties", peer.ErrInvalidConfiguration, len(counts), s.n)
	}
	if len(own) != counts[s.conf.Index] {
		return nil, xerrors.Errorf("%w: party %d announced %d inputs but has %d",
			peer.ErrInvalidConfiguration, s.conf.Index, counts[s.conf.Index], len(own))
	}

	secrets := make([]*big.Int, len(own))
	for i, v := range own {
		secret := big.NewInt(v)
		if secret.Sign() < 0 || secret.Cmp(s.bound) >= 0 {
			return nil, xerrors.Errorf("%w: input %d of party %d is outside [0, 2^%d)",
				peer.ErrRangeViolation, i, s.conf.Index, s.conf.BitLength)
		}
		secrets[i] = secret
	}

	out := make([][]*big.Int, s.n)
	if len(secrets) > 0 {
		var err error
		out, err = s.shareOut(secrets, s.t)
		if err != nil {
			return nil, err
		}
	}

	from := []int{}
	total := 0
	for j, c := range counts {
		if c > 0 {
			from = append(from, j)
			total += c
		}
	}
	if total == 0 {
		return make([][]SecretValue, s.n), nil
	}

	got, err := s.exchange(ctx, out, from, false)
	if err != nil {
		return nil, err
	}

	res := make([][]SecretValue, s.n)
	for _, j := range from {
		if len(got[j]) != counts[j] {
			return nil, xerrors.Errorf("%w: party %d shared %d values instead of %d",
				peer.ErrShareInconsistency, j, len(got[j]), counts[j])
		}
		res[j] = s.wrap(got[j])
	}

	s.trace.Record(OpShare, total)
	return res, nil
}

// ShareFrom secret-shares count values owned by one party. values is only
// read on the owner.
func (s *Session) ShareFrom(ctx context.Context, owner int, values []int64, count int) ([]SecretValue, error) {
	if owner < 0 || owner >= s.n {
		return nil, xerrors.Errorf("%w: unknown owner %d", peer.ErrInvalidConfiguration, owner)
	}

	counts := make([]int, s.n)
	counts[owner] = count

	own := []int64{}
	if owner == s.conf.Index {
		own = values
	}

	res, err := s.Share(ctx, own, counts)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return []SecretValue{}, nil
	}
	return res[owner], nil
}

func (s *Session) wrap(shares []*big.Int) []SecretValue {
	res := make([]SecretValue, len(shares))
	for i, share := range shares {
		res[i] = SecretValue{share: share, p: s.p}
	}
	return res
}

// reshare turns local shares of a degree-2t sharing into a fresh degree-t
// sharing of the same values.
func (s *Session) reshare(ctx context.Context, local []*big.Int) ([]SecretValue, error) {
	out, err := s.shareOut(local, s.t)
	if err != nil {
		return nil, err
	}

	got, err := s.exchange(ctx, out, s.allParties(), false)
	if err != nil {
		return nil, err
	}

	res := make([]SecretValue, len(local))
	for i := range local {
		sum := new(big.Int)
		for j := 0; j < s.n; j++ {
			if len(got[j]) != len(local) {
				return nil, xerrors.Errorf("%w: party %d reshared %d values instead of %d",
					peer.ErrShareInconsistency, j, len(got[j]), len(local))
			}
			sum.Add(sum, new(big.Int).Mul(s.reshareWeights[j], got[j][i]))
		}
		res[i] = SecretValue{share: sum.Mod(sum, s.p), p: s.p}
	}

	return res, nil
}

// MulBatch returns sharings of a[i] * b[i] in a single round.
func (s *Session) MulBatch(ctx context.Context, a, b []SecretValue) ([]SecretValue, error) {
	if len(a) != len(b) {
		return nil, xerrors.Errorf("%w: multiplying %d by %d values", peer.ErrInvalidConfiguration, len(a), len(b))
	}
	if len(a) == 0 {
		return []SecretValue{}, nil
	}

	local := make([]*big.Int, len(a))
	for i := range a {
		local[i] = multZp(a[i].share, b[i].share, s.p)
	}

	res, err := s.reshare(ctx, local)
	if err != nil {
		return nil, err
	}

	s.trace.Record(OpMul, len(a))
	return res, nil
}

// Mul returns a sharing of a * b.
func (s *Session) Mul(ctx context.Context, a, b SecretValue) (SecretValue, error) {
	res, err := s.MulBatch(ctx, []SecretValue{a}, []SecretValue{b})
	if err != nil {
		return SecretValue{}, err
	}
	return res[0], nil
}

// InnerProductBatch returns sharings of the inner products of a[i] and b[i]
// in a single round, whatever the length of the vectors.
func (s *Session) InnerProductBatch(ctx context.Context, a, b [][]SecretValue) ([]SecretValue, error) {
	if len(a) != len(b) {
		return nil, xerrors.Errorf("%w: %d by %d inner products", peer.ErrInvalidConfiguration, len(a), len(b))
	}
	if len(a) == 0 {
		return []SecretValue{}, nil
	}

	local := make([]*big.Int, len(a))
	products := 0
	for i := range a {
		if len(a[i]) != len(b[i]) {
			return nil, xerrors.Errorf("%w: inner product of vectors of length %d and %d",
				peer.ErrInvalidConfiguration, len(a[i]), len(b[i]))
		}
		sum := new(big.Int)
		for k := range a[i] {
			sum.Add(sum, new(big.Int).Mul(a[i][k].share, b[i][k].share))
		}
		local[i] = sum.Mod(sum, s.p)
		products += len(a[i])
	}

	res, err := s.reshare(ctx, local)
	if err != nil {
		return nil, err
	}

	s.trace.Record(OpMul, products)
	return res, nil
}

// Open reveals values to the recipients. Every party takes part; only
// recipients get the values, others get nil. Redundant shares are checked
// and a mismatch fails with peer.ErrShareInconsistency.
func (s *Session) Open(ctx context.Context, values []SecretValue, recipients []int) ([]*big.Int, error) {
	isRecipient := false
	seen := map[int]struct{}{}
	for _, r := range recipients {
		if r < 0 || r >= s.n {
			return nil, xerrors.Errorf("%w: unknown recipient %d", peer.ErrInvalidConfiguration, r)
		}
		seen[r] = struct{}{}
		if r == s.conf.Index {
			isRecipient = true
		}
	}
	if len(values) == 0 || len(seen) == 0 {
		return nil, nil
	}

	shares := make([]*big.Int, len(values))
	for i, v := range values {
		shares[i] = v.share
	}

	out := make([][]*big.Int, s.n)
	for r := range seen {
		out[r] = shares
	}

	from := []int{}
	if isRecipient {
		from = s.allParties()
	}

	got, err := s.exchange(ctx, out, from, true)
	if err != nil {
		return nil, err
	}

	s.trace.Record(OpOpen, len(values))

	if !isRecipient {
		return nil, nil
	}

	weights := s.openWeights(s.t)
	res := make([]*big.Int, len(values))
	for i := range values {
		ys := make([]*big.Int, s.n)
		for j := 0; j < s.n; j++ {
			if len(got[j]) != len(values) {
				return nil, xerrors.Errorf("%w: party %d opened %d values instead of %d",
					peer.ErrShareInconsistency, j, len(got[j]), len(values))
			}
			ys[j] = got[j][i]
		}

		secret, bad, ok := weights.reconstruct(ys, s.p)
		if !ok {
			return nil, xerrors.Errorf("%w: share of party %d does not match the others", peer.ErrShareInconsistency, bad)
		}
		res[i] = secret
	}

	return res, nil
}

// OpenAll reveals values to every party.
func (s *Session) OpenAll(ctx context.Context, values []SecretValue) ([]*big.Int, error) {
	return s.Open(ctx, values, s.allParties())
}

// RandomBatch returns m jointly random values, unknown to any coalition of
// at most t parties.
func (s *Session) RandomBatch(ctx context.Context, m int) ([]SecretValue, error) {
	return s.random(ctx, m, func() (*big.Int, error) {
		return generateRandomNumber(s.p)
	})
}

// RandomBounded returns m sharings of sums of one random value in
// [0, 2^bits) per party.
func (s *Session) RandomBounded(ctx context.Context, m int, bits uint) ([]SecretValue, error) {
	return s.random(ctx, m, func() (*big.Int, error) {
		return generateRandomBits(bits)
	})
}

func (s *Session) random(ctx context.Context, m int, gen func() (*big.Int, error)) ([]SecretValue, error) {
	if m == 0 {
		return []SecretValue{}, nil
	}

	contribution := make([]*big.Int, m)
	for i := range contribution {
		r, err := gen()
		if err != nil {
			return nil, err
		}
		contribution[i] = r
	}

	out, err := s.shareOut(contribution, s.t)
	if err != nil {
		return nil, err
	}

	got, err := s.exchange(ctx, out, s.allParties(), false)
	if err != nil {
		return nil, err
	}

	res := make([]SecretValue, m)
	for i := range res {
		sum := new(big.Int)
		for j := 0; j < s.n; j++ {
			if len(got[j]) != m {
				return nil, xerrors.Errorf("%w: party %d contributed %d random values instead of %d",
					peer.ErrShareInconsistency, j, len(got[j]), m)
			}
			sum.Add(sum, got[j][i])
		}
		res[i] = SecretValue{share: sum.Mod(sum, s.p), p: s.p}
	}

	s.trace.Record(OpRandom, m)
	return res, nil
}

// RandomBits returns m jointly random bits. A random r is squared and
// opened; r / sqrt(r^2) is then a random sign, mapped to {0, 1}.
func (s *Session) RandomBits(ctx context.Context, m int) ([]SecretBit, error) {
	// (p+1)/4 gives square roots since p = 3 mod 4
	rootExp := new(big.Int).Add(s.p, one)
	rootExp.Rsh(rootExp, 2)
	inv2 := invZp(two, s.p)

	res := make([]SecretBit, 0, m)
	for len(res) < m {
		need := m - len(res)

		r, err := s.RandomBatch(ctx, need)
		if err != nil {
			return nil, err
		}

		squares, err := s.MulBatch(ctx, r, r)
		if err != nil {
			return nil, err
		}

		opened, err := s.OpenAll(ctx, squares)
		if err != nil {
			return nil, err
		}

		for i, sq := range opened {
			// r = 0, happens with probability 1/p
			if sq.Sign() == 0 {
				continue
			}
			root := powZp(sq, rootExp, s.p)
			sign := r[i].MulPublic(invZp(root, s.p))
			res = append(res, SecretBit{sign.AddConst(1).MulPublic(inv2)})
		}
	}

	return res, nil
}
