package oblivious

import (
	"context"

	"go.dedis.ch/mupol/peer"
	"go.dedis.ch/mupol/peer/impl/engine"
	"golang.org/x/xerrors"
)

// Select returns sharings of bits[i] ? a[i] : b[i]. Both branches are always
// evaluated, as b + bit (a - b).
func Select(ctx context.Context, s *engine.Session, bits []engine.SecretBit,
	a, b []engine.SecretValue) ([]engine.SecretValue, error) {

	if len(bits) != len(a) || len(a) != len(b) {
		return nil, xerrors.Errorf("%w: selecting with %d bits among %d and %d values",
			peer.ErrInvalidConfiguration, len(bits), len(a), len(b))
	}

	s.Trace().Record(engine.OpSelect, len(bits))

	diffs := make([]engine.SecretValue, len(a))
	for i := range a {
		diffs[i] = a[i].Sub(b[i])
	}

	prods, err := s.MulBatch(ctx, engine.ValuesOf(bits), diffs)
	if err != nil {
		return nil, err
	}

	res := make([]engine.SecretValue, len(a))
	for i := range res {
		res[i] = b[i].Add(prods[i])
	}
	return res, nil
}

// SelectOne returns a sharing of bit ? a : b.
func SelectOne(ctx context.Context, s *engine.Session, bit engine.SecretBit,
	a, b engine.SecretValue) (engine.SecretValue, error) {

	res, err := Select(ctx, s, []engine.SecretBit{bit}, []engine.SecretValue{a}, []engine.SecretValue{b})
	if err != nil {
		return engine.SecretValue{}, err
	}
	return res[0], nil
}

// Argmin returns sharings of the minimum of values and of its index. Among
// equal minima the lowest index wins. Candidates meet in a fixed tournament:
// at every level, pairs are compared in one batch and the right candidate
// replaces the left one only when it is strictly smaller.
func Argmin(ctx context.Context, s *engine.Session, values []engine.SecretValue) (engine.SecretValue, engine.SecretValue, error) {
	if len(values) == 0 {
		return engine.SecretValue{}, engine.SecretValue{}, xerrors.Errorf("%w: minimum of no values",
			peer.ErrInvalidConfiguration)
	}

	vals := append([]engine.SecretValue{}, values...)
	idxs := make([]engine.SecretValue, len(values))
	for i := range idxs {
		idxs[i] = s.Constant(int64(i))
	}

	for len(vals) > 1 {
		half := len(vals) / 2

		left := make([]engine.SecretValue, half)
		right := make([]engine.SecretValue, half)
		leftIdx := make([]engine.SecretValue, half)
		rightIdx := make([]engine.SecretValue, half)
		for i := 0; i < half; i++ {
			left[i], right[i] = vals[2*i], vals[2*i+1]
			leftIdx[i], rightIdx[i] = idxs[2*i], idxs[2*i+1]
		}

		smaller, err := LessThan(ctx, s, right, left)
		if err != nil {
			return engine.SecretValue{}, engine.SecretValue{}, err
		}

		winners, err := Select(ctx, s,
			append(append([]engine.SecretBit{}, smaller...), smaller...),
			append(right, rightIdx...),
			append(left, leftIdx...))
		if err != nil {
			return engine.SecretValue{}, engine.SecretValue{}, err
		}

		nextVals := winners[:half]
		nextIdxs := winners[half:]
		if len(vals)%2 == 1 {
			nextVals = append(nextVals[:half:half], vals[len(vals)-1])
			nextIdxs = append(nextIdxs, idxs[len(idxs)-1])
		}
		vals, idxs = nextVals, nextIdxs
	}

	return vals[0], idxs[0], nil
}

// Min returns a sharing of the minimum of values.
func Min(ctx context.Context, s *engine.Session, values []engine.SecretValue) (engine.SecretValue, error) {
	min, _, err := Argmin(ctx, s, values)
	return min, err
}
