// Package arith holds the two arithmetic entry points exported by every build
// of mathutils. Both operate on int32 and wrap on overflow.
package arith

import (
	"errors"
	"unicode"
)

// Op selects an arithmetic function.
type Op string

const (
	OpAdd      Op = "add"
	OpMultiply Op = "multiply"
)

// ErrUnknownOp is returned by Apply for any selector other than add or multiply.
var ErrUnknownOp = errors.New("unknown operation")

// Ops lists the supported operations in a stable order.
var Ops = []Op{OpAdd, OpMultiply}

// ParseOp matches s case-insensitively against the supported operations.
func ParseOp(s string) (Op, bool) {
	for _, op := range Ops {
		if equalIgnoreCase(s, string(op)) {
			return op, true
		}
	}
	return "", false
}

// equalIgnoreCase compares rune by rune, treating two runes as equal when
// their upper case forms, or the lower case of those, match. Unlike
// strings.EqualFold this accepts dotted and dotless i for i.
func equalIgnoreCase(s, t string) bool {
	sr, tr := []rune(s), []rune(t)
	if len(sr) != len(tr) {
		return false
	}
	for i, a := range sr {
		b := tr[i]
		if a == b {
			continue
		}
		ua, ub := unicode.ToUpper(a), unicode.ToUpper(b)
		if ua == ub || unicode.ToLower(ua) == unicode.ToLower(ub) {
			continue
		}
		return false
	}
	return true
}

// Add returns a+b.
func Add(a, b int32) int32 {
	return a + b
}

// Multiply returns a*b.
func Multiply(a, b int32) int32 {
	return a * b
}

// Apply invokes the function selected by op.
func Apply(op Op, a, b int32) (int32, error) {
	switch op {
	case OpAdd:
		return Add(a, b), nil
	case OpMultiply:
		return Multiply(a, b), nil
	default:
		return 0, ErrUnknownOp
	}
}
