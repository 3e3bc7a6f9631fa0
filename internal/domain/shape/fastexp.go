package shape

import "math"

// FastExp approximates math.Exp with a relative error below 1e-6 by splitting
// x·log2(e) into an integer power of two, assembled directly in the IEEE-754
// exponent field, and a polynomial for the remaining fraction.
func FastExp(x float64) float64 {
	if x < -700 || x > 700 || x != x {
		return math.Exp(x)
	}
	t := x * math.Log2E
	n := math.Floor(t + 0.5)
	y := (t - n) * math.Ln2 // |y| <= ln2/2

	p := 1 + y*(1+y*(1.0/2+y*(1.0/6+y*(1.0/24+y*(1.0/120+y*(1.0/720))))))
	return p * math.Float64frombits(uint64(int64(n)+1023)<<52)
}
