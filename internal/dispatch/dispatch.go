// Package dispatch turns a process argument list into the output lines of a
// single mathutils invocation.
package dispatch

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"

	"github.com/lacquerai/mathutils/internal/arith"
	"github.com/rs/zerolog/log"
)

// Greeting is printed when the arguments are not exactly [op, a, b].
const Greeting = "Hello from Java WASM! (Run with [op, a, b] to calculate)"

// Mode identifies which branch handled the arguments.
type Mode string

const (
	ModeCalculate Mode = "calculate"
	ModeGreeting  Mode = "greeting"
)

// Outcome describes a completed invocation.
type Outcome struct {
	Mode Mode `json:"mode" yaml:"mode"`

	// Set in calculate mode only.
	Op     string `json:"op,omitempty" yaml:"op,omitempty"`
	Known  bool   `json:"known" yaml:"known"`
	A      int32  `json:"a" yaml:"a"`
	B      int32  `json:"b" yaml:"b"`
	Result int32  `json:"result" yaml:"result"`

	Lines []string `json:"lines" yaml:"lines"`
}

// OperandError reports an operand that is not a base-10 int32 literal.
// Position is 1-based within [op, a, b].
type OperandError struct {
	Position int
	Text     string
	Err      error
}

func (e *OperandError) Error() string {
	return fmt.Sprintf("invalid operand %d %q: %v", e.Position, e.Text, e.Err)
}

func (e *OperandError) Unwrap() error {
	return e.Err
}

// Dispatch evaluates args without writing anything.
func Dispatch(args []string) (*Outcome, error) {
	if len(args) != 3 {
		return startupCheck(), nil
	}

	op := args[0]
	a, err := ParseOperand(2, args[1])
	if err != nil {
		return nil, err
	}
	b, err := ParseOperand(3, args[2])
	if err != nil {
		return nil, err
	}

	out := &Outcome{Mode: ModeCalculate, Op: op, A: a, B: b}

	selected, ok := arith.ParseOp(op)
	if !ok {
		log.Debug().Str("op", op).Msg("Unknown operation")
		out.Lines = []string{"Unknown operation: " + op}
		return out, nil
	}

	// ParseOp only yields supported ops
	res, _ := arith.Apply(selected, a, b)
	out.Known = true
	out.Result = res
	out.Lines = []string{fmt.Sprintf("RESULT: %d", res)}

	log.Debug().
		Str("op", string(selected)).
		Int32("a", a).
		Int32("b", b).
		Int32("result", res).
		Msg("Operation dispatched")

	return out, nil
}

// Run dispatches args and writes the resulting lines to w.
func Run(w io.Writer, args []string) error {
	out, err := Dispatch(args)
	if err != nil {
		return err
	}
	return WriteLines(w, out.Lines)
}

// WriteLines writes each line followed by a newline.
func WriteLines(w io.Writer, lines []string) error {
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

func startupCheck() *Outcome {
	sum := arith.Add(10, 20)
	return &Outcome{
		Mode:   ModeGreeting,
		A:      10,
		B:      20,
		Result: sum,
		Lines: []string{
			Greeting,
			fmt.Sprintf("Startup Check: 10 + 20 = %d", sum),
		},
	}
}

// ParseOperand parses s as a base-10 int32 in argument position pos. Decimal
// digits from any script in the Basic Multilingual Plane are accepted.
func ParseOperand(pos int, s string) (int32, error) {
	n, err := strconv.ParseInt(asciiDigits(s), 10, 32)
	if err != nil {
		return 0, &OperandError{Position: pos, Text: s, Err: err}
	}
	return int32(n), nil
}

// asciiDigits rewrites every non-ASCII decimal digit of s as its ASCII form.
func asciiDigits(s string) string {
	return strings.Map(func(r rune) rune {
		if r <= unicode.MaxASCII || r > 0xFFFF || !unicode.IsDigit(r) {
			return r
		}
		return '0' + digitValue(r)
	}, s)
}

// digitValue returns the value of decimal digit r. Decimal digits are
// encoded in contiguous runs of ten, each starting at zero.
func digitValue(r rune) rune {
	var n rune
	for unicode.IsDigit(r - n - 1) {
		n++
	}
	return n % 10
}
