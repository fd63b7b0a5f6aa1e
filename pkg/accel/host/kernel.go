package host

import (
	"bufio"
	"fmt"
	"math"
	"reflect"
	"strings"
)

// KernelBuilder binds marshalled kernel arguments and returns the per-work-item body.
// Arguments arrive as the operand fields in declared order followed by the source storage,
// if any.
//
// Scalar fields (bools, integers, floats, strings) are passed whatever their visibility,
// as their underlying kind: a field of a named int type arrives as int. Every other field
// (slices, maps, pointers, funcs, structs) must be exported. An operand with an unexported
// non-scalar field cannot be marshalled: its pipeline shape is marked failed for the life
// of the cache and every run of it is evaluated without the kernel.
type KernelBuilder func(args []any) (func(gid int), error)

// Kernel is the handle returned for a registered operand type
type Kernel struct {
	Name        string
	OperandType reflect.Type
	build       KernelBuilder
}

// String returns the kernel name
func (k *Kernel) String() string {
	return k.Name
}

// ReductionKernel is the handle created from reduction kernel source
type ReductionKernel struct {
	Name    string
	Op      string
	combine func(a, b int) int
}

// String returns the kernel name
func (k *ReductionKernel) String() string {
	return k.Name
}

// Built-in reductions understood by CreateKernel
const (
	ReduceSum     = "sum"
	ReduceMin     = "min"
	ReduceMax     = "max"
	ReduceProduct = "product"
)

var reductions = map[string]func(a, b int) int{
	ReduceSum:     func(a, b int) int { return a + b },
	ReduceProduct: func(a, b int) int { return a * b },
	ReduceMin: func(a, b int) int {
		if b < a {
			return b
		}
		return a
	},
	ReduceMax: func(a, b int) int {
		if b > a {
			return b
		}
		return a
	},
}

// Identity returns the identity element of a built-in reduction
func Identity(op string) (int, bool) {
	switch op {
	case ReduceSum:
		return 0, true
	case ReduceProduct:
		return 1, true
	case ReduceMin:
		return math.MaxInt, true
	case ReduceMax:
		return math.MinInt, true
	default:
		return 0, false
	}
}

// Kernel source directives
const (
	directiveKernel = ".kernel"
	directiveOp     = ".op"
	directiveType   = ".type"

	elemTypeInt = "s32"
)

// reductionSource renders the kernel source for a named integer reduction
func reductionSource(op string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s reduce_%s\n", directiveKernel, op)
	fmt.Fprintf(&b, "%s %s\n", directiveOp, op)
	fmt.Fprintf(&b, "%s %s\n", directiveType, elemTypeInt)
	return b.String()
}

// parseReduction reads kernel source produced by reductionSource.
// A well-formed kernel for an unknown op yields nil with no error.
func parseReduction(src string) (*ReductionKernel, error) {
	directives := make(map[string]string, 3)
	sc := bufio.NewScanner(strings.NewReader(src))
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "//") {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) != 2 || !strings.HasPrefix(fields[0], ".") {
			return nil, fmt.Errorf("line %d: malformed directive %q", line, text)
		}
		if _, dup := directives[fields[0]]; dup {
			return nil, fmt.Errorf("line %d: duplicate %s", line, fields[0])
		}
		directives[fields[0]] = fields[1]
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	for _, d := range []string{directiveKernel, directiveOp, directiveType} {
		if directives[d] == "" {
			return nil, fmt.Errorf("missing %s directive", d)
		}
	}
	if t := directives[directiveType]; t != elemTypeInt {
		return nil, fmt.Errorf("unsupported element type %q", t)
	}

	op := directives[directiveOp]
	combine, ok := reductions[op]
	if !ok {
		return nil, nil
	}
	return &ReductionKernel{
		Name:    directives[directiveKernel],
		Op:      op,
		combine: combine,
	}, nil
}
