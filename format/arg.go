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

import "fmt"

// Kind is the type tag of an Arg.
type Kind uint8

const (
	KindInt Kind = iota + 1
	KindUint
	KindFloat
	KindChar
	KindString
	KindPointer
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindUint:
		return "uint"
	case KindFloat:
		return "float"
	case KindChar:
		return "char"
	case KindString:
		return "string"
	case KindPointer:
		return "pointer"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Arg is one typed formatting argument. The zero Arg reads as zero of
// every kind, which is also what a conversion sees when the argument
// list runs out.
type Arg struct {
	kind Kind
	i    int64
	f    float64
	s    string
	b    []byte
}

// Int passes a signed integer.
func Int(v int64) Arg {
	return Arg{kind: KindInt, i: v}
}

// Uint passes an unsigned integer.
func Uint(v uint64) Arg {
	return Arg{kind: KindUint, i: int64(v)}
}

// Float passes a floating-point value.
func Float(v float64) Arg {
	return Arg{kind: KindFloat, f: v}
}

// Char passes a single character.
func Char(c byte) Arg {
	return Arg{kind: KindChar, i: int64(c)}
}

// Str passes a string. Conversion stops at the first NUL byte, if any.
func Str(s string) Arg {
	return Arg{kind: KindString, s: s}
}

// Bytes passes a character buffer, which is read up to the first NUL
// byte or its end.
func Bytes(b []byte) Arg {
	return Arg{kind: KindString, b: b}
}

// Pointer passes an address, printed by %p.
func Pointer(p uintptr) Arg {
	return Arg{kind: KindPointer, i: int64(p)}
}

// Kind reports how the argument was constructed.
func (a Arg) Kind() Kind {
	return a.kind
}

// integer returns the argument as a 64-bit pattern; floats are truncated.
func (a Arg) integer() int64 {
	if a.kind == KindFloat {
		return int64(a.f)
	}
	return a.i
}

func (a Arg) float() float64 {
	switch a.kind {
	case KindFloat:
		return a.f
	case KindUint, KindPointer:
		return float64(uint64(a.i))
	}
	return float64(a.i)
}

// at returns the i-th character of a string argument, or 0 past its end.
func (a Arg) at(i int) byte {
	if a.b != nil {
		if i < len(a.b) {
			return a.b[i]
		}
		return 0
	}
	if i < len(a.s) {
		return a.s[i]
	}
	return 0
}
