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

// Package format renders printf-style templates with typed arguments into
// a Sink. Output is locale independent and follows the C conventions for
// flags, width, precision and length modifiers, with int and long being
// 32 bits wide.
package format

import (
	"unsafe"

	"github.com/bytedance/gopkg/lang/dirtmake"

	"github.com/false-schemers/wcpl-sub001/stdio"
)

const (
	fZero uint16 = 1 << iota
	fLeft
	fPlus
	fSpace
	fHash
	fPrecision
	fUpper
)

// pointerDigits is the width of a %p conversion: 32-bit pointers.
const pointerDigits = 8

type spec struct {
	flags uint16
	width int
	prec  int
	bits  int // integer width selected by the length modifier
}

// parseSpec parses the specifier starting right after a '%' at tpl[i].
// star is called for each '*' and returns the supplied value. It returns
// the conversion character and the index following it; ok is false when
// the template ends inside the specifier.
func parseSpec(tpl string, i int, star func() int) (sp spec, conv byte, next int, ok bool) {
flags:
	for ; i < len(tpl); i++ {
		switch tpl[i] {
		case '0':
			sp.flags |= fZero
		case '-':
			sp.flags |= fLeft
		case '+':
			sp.flags |= fPlus
		case ' ':
			sp.flags |= fSpace
		case '#':
			sp.flags |= fHash
		default:
			break flags
		}
	}

	if i < len(tpl) && tpl[i] == '*' {
		w := star()
		if w < 0 {
			sp.flags |= fLeft
			w = -w
		}
		sp.width = w
		i++
	} else {
		sp.width, i = atoi(tpl, i)
	}

	if i < len(tpl) && tpl[i] == '.' {
		sp.flags |= fPrecision
		i++
		if i < len(tpl) && tpl[i] == '*' {
			if p := star(); p >= 0 {
				sp.prec = p
			} else {
				sp.flags &^= fPrecision
			}
			i++
		} else {
			sp.prec, i = atoi(tpl, i)
		}
	}

	sp.bits = 32
	if i < len(tpl) {
		switch tpl[i] {
		case 'h':
			i++
			sp.bits = 16
			if i < len(tpl) && tpl[i] == 'h' {
				sp.bits = 8
				i++
			}
		case 'l':
			i++
			if i < len(tpl) && tpl[i] == 'l' {
				sp.bits = 64
				i++
			}
		case 'j':
			sp.bits = 64
			i++
		case 'z', 't', 'L':
			i++
		}
	}

	if i >= len(tpl) {
		return sp, 0, i, false
	}
	return sp, tpl[i], i + 1, true
}

func atoi(s string, i int) (int, int) {
	n := 0
	for ; i < len(s) && s[i] >= '0' && s[i] <= '9'; i++ {
		n = n*10 + int(s[i]-'0')
	}
	return n, i
}

type printer struct {
	out  Sink
	idx  int
	args []Arg
	next int
}

func (p *printer) put(c byte) {
	p.out.put(c, p.idx)
	p.idx++
}

func (p *printer) puts(b []byte) {
	for _, c := range b {
		p.put(c)
	}
}

func (p *printer) pad(c byte, n int) {
	for ; n > 0; n-- {
		p.put(c)
	}
}

func (p *printer) arg() Arg {
	var a Arg
	if p.next < len(p.args) {
		a = p.args[p.next]
	}
	p.next++
	return a
}

func (p *printer) star() int {
	return int(int32(p.arg().integer()))
}

// Format renders template into out and returns the number of characters
// the full output has, whether or not the sink kept them all. The sink's
// terminator is not counted.
func Format(out Sink, template string, args ...Arg) int {
	p := printer{out: out, args: args}
	for i := 0; i < len(template); {
		c := template[i]
		if c != '%' {
			p.put(c)
			i++
			continue
		}
		sp, conv, next, ok := parseSpec(template, i+1, p.star)
		i = next
		if !ok {
			break
		}
		p.convert(conv, &sp)
	}
	out.terminate(p.idx)
	return p.idx
}

func (p *printer) convert(conv byte, sp *spec) {
	switch conv {
	case 'd', 'i':
		v := signExtend(p.arg().integer(), sp.bits)
		mag := uint64(v)
		if v < 0 {
			mag = -mag
		}
		p.integer(mag, v < 0, 10, sp)
	case 'u', 'o', 'x', 'X', 'b', 'B':
		v := truncate(uint64(p.arg().integer()), sp.bits)
		sp.flags &^= fPlus | fSpace
		var base uint64
		switch conv {
		case 'u':
			base = 10
		case 'o':
			base = 8
		case 'X':
			sp.flags |= fUpper
			base = 16
		case 'x':
			base = 16
		case 'B':
			sp.flags |= fUpper
			base = 2
		case 'b':
			base = 2
		}
		p.integer(v, false, base, sp)
	case 'p':
		v := truncate(uint64(p.arg().integer()), 32)
		sp.width = pointerDigits
		sp.flags = fZero | fUpper
		p.integer(v, false, 16, sp)
	case 'f', 'F':
		if conv == 'F' {
			sp.flags |= fUpper
		}
		p.fixed(p.arg().float(), sp)
	case 'e', 'E':
		if conv == 'E' {
			sp.flags |= fUpper
		}
		p.scientific(p.arg().float(), sp, false)
	case 'g', 'G':
		if conv == 'G' {
			sp.flags |= fUpper
		}
		p.scientific(p.arg().float(), sp, true)
	case 'c':
		c := byte(p.arg().integer())
		sp.flags &^= fZero
		p.emit(0, "", 0, []byte{c}, 0, nil, sp)
	case 's':
		p.str(p.arg(), sp)
	case '%':
		p.put('%')
	default:
		p.put(conv)
	}
}

func signExtend(v int64, bits int) int64 {
	switch bits {
	case 8:
		return int64(int8(v))
	case 16:
		return int64(int16(v))
	case 32:
		return int64(int32(v))
	}
	return v
}

func truncate(v uint64, bits int) uint64 {
	switch bits {
	case 8:
		return uint64(uint8(v))
	case 16:
		return uint64(uint16(v))
	case 32:
		return uint64(uint32(v))
	}
	return v
}

// appendDigits appends v in base, at least minDigits long. Digits are
// produced least significant first into a scratch buffer.
func appendDigits(dst []byte, v, base uint64, upper bool, minDigits int) []byte {
	digits := "0123456789abcdef"
	if upper {
		digits = "0123456789ABCDEF"
	}
	var scratch [64]byte
	n := 0
	for v != 0 {
		scratch[n] = digits[v%base]
		v /= base
		n++
	}
	for ; n < minDigits && n < len(scratch); n++ {
		scratch[n] = '0'
	}
	for n > 0 {
		n--
		dst = append(dst, scratch[n])
	}
	return dst
}

func (p *printer) integer(mag uint64, neg bool, base uint64, sp *spec) {
	var buf [64]byte
	body := buf[:0]
	if sp.flags&fPrecision != 0 {
		sp.flags &^= fZero
	}
	if mag != 0 || sp.flags&fPrecision == 0 || sp.prec != 0 {
		body = appendDigits(body, mag, base, sp.flags&fUpper != 0, 1)
	}
	zeros := 0
	if sp.flags&fPrecision != 0 && sp.prec > len(body) {
		zeros = sp.prec - len(body)
	}

	prefix := ""
	if sp.flags&fHash != 0 {
		switch base {
		case 16:
			if mag != 0 {
				prefix = "0x"
				if sp.flags&fUpper != 0 {
					prefix = "0X"
				}
			}
		case 2:
			if mag != 0 {
				prefix = "0b"
				if sp.flags&fUpper != 0 {
					prefix = "0B"
				}
			}
		case 8:
			if zeros == 0 && (len(body) == 0 || body[0] != '0') {
				zeros = 1
			}
		}
	}
	p.emit(signOf(neg, sp), prefix, zeros, body, 0, nil, sp)
}

func signOf(neg bool, sp *spec) byte {
	switch {
	case neg:
		return '-'
	case sp.flags&fPlus != 0:
		return '+'
	case sp.flags&fSpace != 0:
		return ' '
	}
	return 0
}

// emit writes one converted field: sign, prefix, leading zeros, body,
// trailing zeros and suffix, padded to the field width.
func (p *printer) emit(sign byte, prefix string, zeros int, body []byte, trail int, suffix []byte, sp *spec) {
	n := len(prefix) + zeros + len(body) + trail + len(suffix)
	if sign != 0 {
		n++
	}
	fill := 0
	if sp.width > n {
		fill = sp.width - n
	}
	if sp.flags&fLeft == 0 {
		if sp.flags&fZero != 0 {
			zeros += fill
		} else {
			p.pad(' ', fill)
		}
		fill = 0
	}
	if sign != 0 {
		p.put(sign)
	}
	for i := 0; i < len(prefix); i++ {
		p.put(prefix[i])
	}
	p.pad('0', zeros)
	p.puts(body)
	p.pad('0', trail)
	p.puts(suffix)
	p.pad(' ', fill)
}

// str emits a string argument, reading at most prec characters of it.
func (p *printer) str(a Arg, sp *spec) {
	limit := -1
	if sp.flags&fPrecision != 0 {
		limit = sp.prec
	}
	n := 0
	for limit < 0 || n < limit {
		if a.at(n) == 0 {
			break
		}
		n++
	}
	fill := 0
	if sp.width > n {
		fill = sp.width - n
	}
	if sp.flags&fLeft == 0 {
		p.pad(' ', fill)
	}
	for i := 0; i < n; i++ {
		p.put(a.at(i))
	}
	if sp.flags&fLeft != 0 {
		p.pad(' ', fill)
	}
}

// Snprintf formats into buf, truncating and NUL-terminating as needed,
// and returns the untruncated length.
func Snprintf(buf []byte, template string, args ...Arg) int {
	return Format(&BufferSink{Buf: buf}, template, args...)
}

// Count returns the length of the formatted output without producing it.
func Count(template string, args ...Arg) int {
	return Format(CountSink{}, template, args...)
}

// Fprintf formats to s through its single-character write primitive.
func Fprintf(s *stdio.Stream, template string, args ...Arg) (int, error) {
	sink := &StreamSink{S: s}
	n := Format(sink, template, args...)
	return n, sink.Err()
}

// Sprintf returns the formatted output as a string.
func Sprintf(template string, args ...Arg) string {
	n := Count(template, args...)
	buf := dirtmake.Bytes(n+1, n+1)
	Snprintf(buf, template, args...)
	return unsafe.String(&buf[0], n)
}

// Verbs returns the kinds of the arguments template consumes, in order,
// counting each '*' as an int.
func Verbs(template string) []Kind {
	var kinds []Kind
	star := func() int {
		kinds = append(kinds, KindInt)
		return 0
	}
	for i := 0; i < len(template); {
		if template[i] != '%' {
			i++
			continue
		}
		_, conv, next, ok := parseSpec(template, i+1, star)
		i = next
		if !ok {
			break
		}
		switch conv {
		case 'd', 'i':
			kinds = append(kinds, KindInt)
		case 'u', 'o', 'x', 'X', 'b', 'B':
			kinds = append(kinds, KindUint)
		case 'f', 'F', 'e', 'E', 'g', 'G':
			kinds = append(kinds, KindFloat)
		case 'c':
			kinds = append(kinds, KindChar)
		case 's':
			kinds = append(kinds, KindString)
		case 'p':
			kinds = append(kinds, KindPointer)
		}
	}
	return kinds
}
