// Package oblivious implements comparison and selection on secret-shared
// values. Every function runs the same sequence of rounds for any input of
// the same length.
package oblivious

import (
	"context"
	"math/big"

	"go.dedis.ch/mupol/peer"
	"go.dedis.ch/mupol/peer/impl/engine"
	"golang.org/x/xerrors"
)

// Comparison holds the outcome of comparing a with b.
type Comparison struct {
	Less    engine.SecretBit
	Equal   engine.SecretBit
	Greater engine.SecretBit
}

// LessThan returns sharings of [a[i] < b[i]]. Operands must satisfy
// |a[i] - b[i]| < 2^k.
//
// z = a - b + 2^k is masked with random bits r_0..r_{k-1} and a random high
// part, then opened as c. With u = [c mod 2^k < r mod 2^k], z mod 2^k equals
// c mod 2^k - r mod 2^k + 2^k u, and bit k of z is 1 exactly when a >= b.
func LessThan(ctx context.Context, s *engine.Session, a, b []engine.SecretValue) ([]engine.SecretBit, error) {
	if len(a) != len(b) {
		return nil, xerrors.Errorf("%w: comparing %d with %d values", peer.ErrInvalidConfiguration, len(a), len(b))
	}
	m := len(a)
	if m == 0 {
		return []engine.SecretBit{}, nil
	}

	k := int(s.BitLength())
	twoK := s.Bound()

	s.Trace().Record(engine.OpCompare, m)

	bits, err := s.RandomBits(ctx, m*k)
	if err != nil {
		return nil, err
	}
	high, err := s.RandomBounded(ctx, m, s.StatisticalSecurity())
	if err != nil {
		return nil, err
	}

	z := make([]engine.SecretValue, m)
	rLow := make([]engine.SecretValue, m)
	masked := make([]engine.SecretValue, m)
	for i := range a {
		z[i] = a[i].Sub(b[i]).AddPublic(twoK)

		low := s.Constant(0)
		for j := 0; j < k; j++ {
			low = low.Add(bits[i*k+j].MulPublic(new(big.Int).Lsh(big.NewInt(1), uint(j))))
		}
		rLow[i] = low
		masked[i] = z[i].Add(low).Add(high[i].MulPublic(twoK))
	}

	c, err := s.OpenAll(ctx, masked)
	if err != nil {
		return nil, err
	}

	// every in-range operand pair opens below 2^(k+1) + 2^k + n 2^(k+kappa)
	limit := new(big.Int).Lsh(big.NewInt(int64(s.Parties())), s.BitLength()+s.StatisticalSecurity())
	limit.Add(limit, new(big.Int).Lsh(twoK, 1))
	limit.Add(limit, twoK)
	for _, ci := range c {
		if ci.Cmp(limit) >= 0 {
			return nil, xerrors.Errorf("%w: comparison operands differ by 2^%d or more",
				peer.ErrRangeViolation, k)
		}
	}

	// u = [c mod 2^k < r mod 2^k], from the least significant bit up
	u := make([]engine.SecretValue, m)
	for i := range u {
		u[i] = bits[i*k].MulConst(int64(1 - c[i].Bit(0)))
	}

	for j := 1; j < k; j++ {
		same := make([]engine.SecretValue, m)
		for i := range same {
			rj := bits[i*k+j]
			if c[i].Bit(j) == 1 {
				same[i] = rj.SecretValue
			} else {
				same[i] = rj.Not().SecretValue
			}
		}

		carried, err := s.MulBatch(ctx, same, u)
		if err != nil {
			return nil, err
		}

		for i := range u {
			u[i] = bits[i*k+j].MulConst(int64(1 - c[i].Bit(j))).Add(carried[i])
		}
	}

	mask := new(big.Int).Sub(twoK, big.NewInt(1))
	inv := s.Inverse(twoK)

	res := make([]engine.SecretBit, m)
	for i := range res {
		cLow := new(big.Int).And(c[i], mask)
		zLow := rLow[i].Neg().AddPublic(cLow).Add(u[i].MulPublic(twoK))
		zHigh := z[i].Sub(zLow).MulPublic(inv)
		res[i] = engine.BitFrom(zHigh).Not()
	}

	return res, nil
}

// LessThanOne returns a sharing of [a < b].
func LessThanOne(ctx context.Context, s *engine.Session, a, b engine.SecretValue) (engine.SecretBit, error) {
	res, err := LessThan(ctx, s, []engine.SecretValue{a}, []engine.SecretValue{b})
	if err != nil {
		return engine.SecretBit{}, err
	}
	return res[0], nil
}

// GreaterEqual returns sharings of [a[i] >= b[i]].
func GreaterEqual(ctx context.Context, s *engine.Session, a, b []engine.SecretValue) ([]engine.SecretBit, error) {
	lt, err := LessThan(ctx, s, a, b)
	if err != nil {
		return nil, err
	}
	return Not(lt), nil
}

// Compare returns less, equal and greater bits for every pair, from a single
// batch of 2m comparisons.
func Compare(ctx context.Context, s *engine.Session, a, b []engine.SecretValue) ([]Comparison, error) {
	if len(a) != len(b) {
		return nil, xerrors.Errorf("%w: comparing %d with %d values", peer.ErrInvalidConfiguration, len(a), len(b))
	}
	m := len(a)

	left := make([]engine.SecretValue, 0, 2*m)
	left = append(left, a...)
	left = append(left, b...)
	right := make([]engine.SecretValue, 0, 2*m)
	right = append(right, b...)
	right = append(right, a...)

	lt, err := LessThan(ctx, s, left, right)
	if err != nil {
		return nil, err
	}

	res := make([]Comparison, m)
	for i := range res {
		less, greater := lt[i], lt[m+i]
		res[i] = Comparison{
			Less:    less,
			Greater: greater,
			Equal:   engine.BitFrom(less.Not().Sub(greater.SecretValue)),
		}
	}
	return res, nil
}

// Equal returns sharings of [a[i] = b[i]].
func Equal(ctx context.Context, s *engine.Session, a, b []engine.SecretValue) ([]engine.SecretBit, error) {
	cmp, err := Compare(ctx, s, a, b)
	if err != nil {
		return nil, err
	}

	res := make([]engine.SecretBit, len(cmp))
	for i, c := range cmp {
		res[i] = c.Equal
	}
	return res, nil
}

// EqualConst returns sharings of [a[i] = c] for a public c.
func EqualConst(ctx context.Context, s *engine.Session, a []engine.SecretValue, c int64) ([]engine.SecretBit, error) {
	b := make([]engine.SecretValue, len(a))
	for i := range b {
		b[i] = s.Constant(c)
	}
	return Equal(ctx, s, a, b)
}
