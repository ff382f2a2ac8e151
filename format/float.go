// Copyright 2024 CloudWeGo Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package format

import (
	"math"
	"strings"
)

const (
	defaultPrecision = 6

	// maxPrecision is the number of fractional digits computed
	// arithmetically; further requested digits are emitted as zeros.
	maxPrecision = 9

	// MaxFixed is the largest magnitude %f renders in fixed notation.
	// Larger values are rendered as by %e.
	MaxFixed = 1e9

	// %g uses fixed notation for magnitudes in [AdaptiveMin, AdaptiveMax)
	// and for zero, scientific notation otherwise.
	AdaptiveMin = 1e-4
	AdaptiveMax = 1e6
)

var pow10 = [maxPrecision + 1]uint64{1, 10, 100, 1000, 10000, 100000, 1000000, 10000000, 100000000, 1000000000}

// special renders nan and inf. It reports false for finite values.
func (p *printer) special(v float64, sp *spec) bool {
	var tok string
	var sign byte
	switch {
	case math.IsNaN(v):
		tok = "nan"
	case math.IsInf(v, 0):
		tok = "inf"
		sign = signOf(v < 0, sp)
	default:
		return false
	}
	if sp.flags&fUpper != 0 {
		tok = strings.ToUpper(tok)
	}
	sp.flags &^= fZero
	p.emit(sign, "", 0, []byte(tok), 0, nil, sp)
	return true
}

// roundFixed splits a non-negative v into its whole part and prec
// fractional digits, rounding to nearest with ties to even.
func roundFixed(v float64, prec int) (whole, frac uint64) {
	whole = uint64(v)
	tmp := (v - float64(whole)) * float64(pow10[prec])
	frac = uint64(tmp)
	diff := tmp - float64(frac)
	switch {
	case diff > 0.5:
		frac++
	case diff == 0.5:
		if prec == 0 {
			if whole&1 != 0 {
				frac++
			}
		} else if frac&1 != 0 {
			frac++
		}
	}
	if frac >= pow10[prec] {
		frac = 0
		whole++
	}
	return whole, frac
}

// fixedBody appends the digits of a non-negative v with prec fractional
// digits and returns the number of zeros to emit after them.
func fixedBody(dst []byte, v float64, prec int, hash bool) ([]byte, int) {
	trail := 0
	if prec > maxPrecision {
		trail = prec - maxPrecision
		prec = maxPrecision
	}
	whole, frac := roundFixed(v, prec)
	dst = appendDigits(dst, whole, 10, false, 1)
	if prec > 0 || trail > 0 || hash {
		dst = append(dst, '.')
	}
	if prec > 0 {
		dst = appendDigits(dst, frac, 10, false, prec)
	}
	return dst, trail
}

// stripZeros removes trailing fractional zeros and a bare decimal point.
func stripZeros(body []byte) []byte {
	dot := -1
	for i, c := range body {
		if c == '.' {
			dot = i
			break
		}
	}
	if dot < 0 {
		return body
	}
	end := len(body)
	for end > dot+1 && body[end-1] == '0' {
		end--
	}
	if end == dot+1 {
		end = dot
	}
	return body[:end]
}

func (p *printer) fixed(v float64, sp *spec) {
	if p.special(v, sp) {
		return
	}
	abs := math.Abs(v)
	if abs > MaxFixed {
		p.scientific(v, sp, false)
		return
	}
	prec := defaultPrecision
	if sp.flags&fPrecision != 0 {
		prec = sp.prec
	}
	var buf [32]byte
	body, trail := fixedBody(buf[:0], abs, prec, sp.flags&fHash != 0)
	p.emit(signOf(math.Signbit(v), sp), "", 0, body, trail, nil, sp)
}

// pow10Approx returns an approximation of 10^e, computed as 2^k * exp(z)
// with exp evaluated by a continued fraction.
func pow10Approx(e int) float64 {
	k := int(math.Floor(float64(e)*math.Log2E*math.Ln10 + 0.5))
	z := float64(e)*math.Ln10 - float64(k)*math.Ln2
	z2 := z * z
	return math.Ldexp(1+2*z/(2-z+(z2/(6+(z2/(10+z2/14))))), k)
}

// decimalExponent returns e and m such that v = m * 10^e with m close to
// [1, 10). v must be positive and finite.
func decimalExponent(v float64) (int, float64) {
	bias := 0
	if v < 1e-290 {
		// keep 10^e out of the subnormal range
		v *= 1e30
		bias = -30
	}
	frac, e2 := math.Frexp(v)
	m2 := frac * 2
	e := int(math.Floor(0.1760912590558 + float64(e2-1)*0.301029995663981 + (m2-1.5)*0.289529654602168))
	p10 := pow10Approx(e)
	for i := 0; i < 4 && v < p10; i++ {
		e--
		p10 = pow10Approx(e)
	}
	for i := 0; i < 4 && v >= p10*10; i++ {
		e++
		p10 = pow10Approx(e)
	}
	return e + bias, v / p10
}

func appendExponent(dst []byte, e int, upper bool) []byte {
	if upper {
		dst = append(dst, 'E')
	} else {
		dst = append(dst, 'e')
	}
	if e < 0 {
		dst = append(dst, '-')
		e = -e
	} else {
		dst = append(dst, '+')
	}
	return appendDigits(dst, uint64(e), 10, false, 2)
}

// scientific renders %e, or %g when adaptive is set.
func (p *printer) scientific(v float64, sp *spec, adaptive bool) {
	if p.special(v, sp) {
		return
	}
	abs := math.Abs(v)
	prec := defaultPrecision
	if sp.flags&fPrecision != 0 {
		prec = sp.prec
	}
	hash := sp.flags&fHash != 0
	sign := signOf(math.Signbit(v), sp)

	e, m := 0, 0.0
	if abs != 0 {
		e, m = decimalExponent(abs)
	}
	var buf [48]byte

	if adaptive {
		if prec == 0 {
			prec = 1
		}
		prec--
	}
	if whole, _ := roundFixed(m, min(prec, maxPrecision)); whole >= 10 {
		// the mantissa rounds up to 10
		e++
		m /= 10
	}

	if adaptive && (abs == 0 || (abs >= AdaptiveMin && abs < AdaptiveMax)) {
		fp := prec - e
		if fp < 0 {
			fp = 0
		}
		body, trail := fixedBody(buf[:0], abs, fp, hash)
		if !hash {
			body, trail = stripZeros(body), 0
		}
		p.emit(sign, "", 0, body, trail, nil, sp)
		return
	}

	body, trail := fixedBody(buf[:0], m, prec, hash)
	if adaptive && !hash {
		body, trail = stripZeros(body), 0
	}
	var exp [8]byte
	p.emit(sign, "", 0, body, trail, appendExponent(exp[:0], e, sp.flags&fUpper != 0), sp)
}
