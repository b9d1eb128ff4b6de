package oblivious

import (
	"context"

	"go.dedis.ch/mupol/peer"
	"go.dedis.ch/mupol/peer/impl/engine"
	"golang.org/x/xerrors"
)

// Not returns the negation of every bit.
func Not(bits []engine.SecretBit) []engine.SecretBit {
	res := make([]engine.SecretBit, len(bits))
	for i, b := range bits {
		res[i] = b.Not()
	}
	return res
}

// And returns sharings of a[i] AND b[i].
func And(ctx context.Context, s *engine.Session, a, b []engine.SecretBit) ([]engine.SecretBit, error) {
	prods, err := s.MulBatch(ctx, engine.ValuesOf(a), engine.ValuesOf(b))
	if err != nil {
		return nil, err
	}
	return engine.BitsFrom(prods), nil
}

// Or returns sharings of a[i] OR b[i], as 1 - (1 - a)(1 - b).
func Or(ctx context.Context, s *engine.Session, a, b []engine.SecretBit) ([]engine.SecretBit, error) {
	neither, err := And(ctx, s, Not(a), Not(b))
	if err != nil {
		return nil, err
	}
	return Not(neither), nil
}

// Repeat returns a slice holding n times the bit b.
func Repeat(b engine.SecretBit, n int) []engine.SecretBit {
	res := make([]engine.SecretBit, n)
	for i := range res {
		res[i] = b
	}
	return res
}

// IndicatorVectors returns, for every index, the one-hot vector of the given
// length that has a 1 at that index. All vectors are computed in one batch of
// comparisons. An index outside [0, length) gives the zero vector.
func IndicatorVectors(ctx context.Context, s *engine.Session, length int,
	indices []engine.SecretValue) ([][]engine.SecretBit, error) {

	a := make([]engine.SecretValue, 0, length*len(indices))
	b := make([]engine.SecretValue, 0, length*len(indices))
	for _, idx := range indices {
		for pos := 0; pos < length; pos++ {
			a = append(a, idx)
			b = append(b, s.Constant(int64(pos)))
		}
	}

	eq, err := Equal(ctx, s, a, b)
	if err != nil {
		return nil, err
	}

	res := make([][]engine.SecretBit, len(indices))
	for i := range res {
		res[i] = eq[i*length : (i+1)*length]
	}
	return res, nil
}

// IndicatorVector returns the one-hot vector of the given length with a 1 at
// index.
func IndicatorVector(ctx context.Context, s *engine.Session, length int,
	index engine.SecretValue) ([]engine.SecretBit, error) {

	res, err := IndicatorVectors(ctx, s, length, []engine.SecretValue{index})
	if err != nil {
		return nil, err
	}
	return res[0], nil
}

// FirstNonZero returns the one-hot vector of the first set bit, or the zero
// vector when no bit is set. It takes one round per bit.
func FirstNonZero(ctx context.Context, s *engine.Session, bits []engine.SecretBit) ([]engine.SecretBit, error) {
	if len(bits) == 0 {
		return []engine.SecretBit{}, nil
	}

	res := make([]engine.SecretBit, len(bits))
	res[0] = bits[0]
	seen := bits[0]

	for i := 1; i < len(bits); i++ {
		// first = b (1 - seen), seen' = seen + b - seen b
		prods, err := s.MulBatch(ctx,
			[]engine.SecretValue{bits[i].SecretValue},
			[]engine.SecretValue{seen.SecretValue})
		if err != nil {
			return nil, err
		}

		res[i] = engine.BitFrom(bits[i].Sub(prods[0]))
		seen = engine.BitFrom(seen.Add(bits[i].SecretValue).Sub(prods[0]))
	}

	return res, nil
}

// Dot returns sharings of the inner products of bit vectors with value
// vectors, in one round. It is used to look up a value at a secret position
// given by a one-hot vector.
func Dot(ctx context.Context, s *engine.Session, selectors [][]engine.SecretBit,
	values [][]engine.SecretValue) ([]engine.SecretValue, error) {

	if len(selectors) != len(values) {
		return nil, xerrors.Errorf("%w: %d selectors for %d vectors",
			peer.ErrInvalidConfiguration, len(selectors), len(values))
	}

	a := make([][]engine.SecretValue, len(selectors))
	for i, sel := range selectors {
		a[i] = engine.ValuesOf(sel)
	}
	return s.InnerProductBatch(ctx, a, values)
}
