package engine

import (
	"crypto/rand"
	"math/big"

	"github.com/rs/zerolog/log"
)

var (
	zero = big.NewInt(0)
	one  = big.NewInt(1)
	two  = big.NewInt(2)
)

// polynomialZp is a polynomial over Zp, coefficients[0] is the constant term.
type polynomialZp struct {
	coefficients []*big.Int
}

// modZp reduces any integer into [0, p)
func modZp(a, p *big.Int) *big.Int {
	return new(big.Int).Mod(a, p)
}

// addZp returns a + b mod p
func addZp(a, b, p *big.Int) *big.Int {
	sum := new(big.Int).Add(a, b)
	return sum.Mod(sum, p)
}

// subZp returns a - b mod p
func subZp(a, b, p *big.Int) *big.Int {
	dif := new(big.Int).Sub(a, b)
	return dif.Mod(dif, p)
}

// multZp returns a * b mod p
func multZp(a, b, p *big.Int) *big.Int {
	prod := new(big.Int).Mul(a, b)
	return prod.Mod(prod, p)
}

// invZp returns a^-1 mod p. It panics on a = 0.
func invZp(a, p *big.Int) *big.Int {
	if new(big.Int).Mod(a, p).Sign() == 0 {
		// never inverted on a public zero by construction
		panic("inverse of zero")
	}
	return new(big.Int).ModInverse(a, p)
}

// divZp returns a * b^-1 mod p
func divZp(a, b, p *big.Int) *big.Int {
	return multZp(a, invZp(b, p), p)
}

// powZp returns a^e mod p
func powZp(a, e, p *big.Int) *big.Int {
	return new(big.Int).Exp(a, e, p)
}

// generateRandomNumber returns a uniform element of Zp
func generateRandomNumber(p *big.Int) (*big.Int, error) {
	n, err := rand.Int(rand.Reader, p)
	if err != nil {
		log.Err(err).Msg("failed to read randomness")
		return nil, err
	}
	return n, nil
}

// generateRandomBits returns a uniform integer in [0, 2^bits)
func generateRandomBits(bits uint) (*big.Int, error) {
	return generateRandomNumber(new(big.Int).Lsh(one, bits))
}

// newRandomPolynomialZp returns a random polynomial f of the given degree with
// f(0) = secret.
func newRandomPolynomialZp(secret *big.Int, degree int, p *big.Int) (*polynomialZp, error) {
	coefficients := make([]*big.Int, degree+1)
	coefficients[0] = modZp(secret, p)

	for i := 1; i <= degree; i++ {
		n, err := generateRandomNumber(p)
		if err != nil {
			return nil, err
		}
		coefficients[i] = n
	}

	return &polynomialZp{coefficients: coefficients}, nil
}

// evaluate returns f(x) mod p with Horner's rule
func (poly *polynomialZp) evaluate(x, p *big.Int) *big.Int {
	degree := len(poly.coefficients) - 1

	value := new(big.Int).Set(poly.coefficients[degree])
	for i := degree - 1; i >= 0; i-- {
		value.Mul(value, x)
		value.Add(value, poly.coefficients[i])
		value.Mod(value, p)
	}
	return value
}
