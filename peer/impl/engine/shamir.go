package engine

import (
	"math/big"

	"golang.org/x/xerrors"
)

// shamirShareZp splits secret into one share per x coordinate, using a random
// polynomial of the given degree.
func shamirShareZp(secret *big.Int, degree int, xcoord []*big.Int, p *big.Int) ([]*big.Int, error) {
	if degree < 0 || degree >= len(xcoord) {
		return nil, xerrors.Errorf("degree %d invalid for %d shares", degree, len(xcoord))
	}

	poly, err := newRandomPolynomialZp(secret, degree, p)
	if err != nil {
		return nil, err
	}

	shares := make([]*big.Int, len(xcoord))
	for i, x := range xcoord {
		// the share at 0 is the secret itself
		if x.Sign() == 0 {
			return nil, xerrors.Errorf("illegal x coordinate 0")
		}
		shares[i] = poly.evaluate(x, p)
	}

	return shares, nil
}

// lagrangeCoefficientsZp returns weights w such that f(at) = sum w_i f(x_i)
// for every polynomial f of degree < len(xcoord).
func lagrangeCoefficientsZp(xcoord []*big.Int, at, p *big.Int) []*big.Int {
	weights := make([]*big.Int, len(xcoord))

	for i, xi := range xcoord {
		w := big.NewInt(1)
		for j, xj := range xcoord {
			if i == j {
				continue
			}
			num := subZp(at, xj, p)
			den := subZp(xi, xj, p)
			w = multZp(w, divZp(num, den, p), p)
		}
		weights[i] = w
	}

	return weights
}

// interpolateZp returns sum w_i y_i mod p
func interpolateZp(ycoord, weights []*big.Int, p *big.Int) *big.Int {
	result := new(big.Int)
	for i, w := range weights {
		result.Add(result, new(big.Int).Mul(w, ycoord[i]))
	}
	return result.Mod(result, p)
}

// openWeights reconstructs values shared with a polynomial of a given degree
// from the first degree+1 shares, and checks the remaining shares against it.
type openWeights struct {
	degree int
	zero   []*big.Int
	checks [][]*big.Int
}

func newOpenWeights(degree int, xcoord []*big.Int, p *big.Int) *openWeights {
	base := xcoord[:degree+1]

	w := &openWeights{
		degree: degree,
		zero:   lagrangeCoefficientsZp(base, zero, p),
		checks: make([][]*big.Int, len(xcoord)-degree-1),
	}

	for j := degree + 1; j < len(xcoord); j++ {
		w.checks[j-degree-1] = lagrangeCoefficientsZp(base, xcoord[j], p)
	}

	return w
}

// reconstruct returns f(0) for the shares ys ordered by x coordinate. When a
// redundant share does not lie on f, it returns the index of that share and
// false.
func (w *openWeights) reconstruct(ys []*big.Int, p *big.Int) (*big.Int, int, bool) {
	base := ys[:w.degree+1]

	for k, weights := range w.checks {
		j := w.degree + 1 + k
		if interpolateZp(base, weights, p).Cmp(modZp(ys[j], p)) != 0 {
			return nil, j, false
		}
	}

	return interpolateZp(base, w.zero, p), -1, true
}
