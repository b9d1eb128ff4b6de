package engine

import "math/big"

// SecretValue is this party's share of a value in Zp. Linear operations are
// local; multiplications and openings go through the Session.
type SecretValue struct {
	share *big.Int
	p     *big.Int
}

// SecretBit is a SecretValue that holds 0 or 1.
type SecretBit struct {
	SecretValue
}

// Share returns a copy of the party's local share.
func (v SecretValue) Share() *big.Int {
	if v.share == nil {
		return nil
	}
	return new(big.Int).Set(v.share)
}

// Valid tells whether the value was produced by a session.
func (v SecretValue) Valid() bool {
	return v.share != nil && v.p != nil
}

// Add returns a sharing of v + w.
func (v SecretValue) Add(w SecretValue) SecretValue {
	return SecretValue{share: addZp(v.share, w.share, v.p), p: v.p}
}

// Sub returns a sharing of v - w.
func (v SecretValue) Sub(w SecretValue) SecretValue {
	return SecretValue{share: subZp(v.share, w.share, v.p), p: v.p}
}

// Neg returns a sharing of -v.
func (v SecretValue) Neg() SecretValue {
	return SecretValue{share: subZp(zero, v.share, v.p), p: v.p}
}

// AddConst returns a sharing of v + c.
func (v SecretValue) AddConst(c int64) SecretValue {
	return v.AddPublic(big.NewInt(c))
}

// AddPublic returns a sharing of v + c.
func (v SecretValue) AddPublic(c *big.Int) SecretValue {
	return SecretValue{share: addZp(v.share, c, v.p), p: v.p}
}

// MulConst returns a sharing of c * v.
func (v SecretValue) MulConst(c int64) SecretValue {
	return v.MulPublic(big.NewInt(c))
}

// MulPublic returns a sharing of c * v.
func (v SecretValue) MulPublic(c *big.Int) SecretValue {
	return SecretValue{share: multZp(v.share, c, v.p), p: v.p}
}

// Not returns a sharing of 1 - b.
func (b SecretBit) Not() SecretBit {
	return SecretBit{b.Neg().AddConst(1)}
}

// BitFrom marks v as a bit. The caller guarantees that v holds 0 or 1.
func BitFrom(v SecretValue) SecretBit {
	return SecretBit{v}
}

// BitsFrom marks every value as a bit.
func BitsFrom(values []SecretValue) []SecretBit {
	res := make([]SecretBit, len(values))
	for i, v := range values {
		res[i] = SecretBit{v}
	}
	return res
}

// ValuesOf returns the arithmetic view of bits.
func ValuesOf(bits []SecretBit) []SecretValue {
	res := make([]SecretValue, len(bits))
	for i, b := range bits {
		res[i] = b.SecretValue
	}
	return res
}
