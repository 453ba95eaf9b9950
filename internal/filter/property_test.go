package filter

import (
	"math/rand"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// randomNode builds a random well-formed AST. Depth is bounded so generated
// trees stay inside the parser limits.
func randomNode(r *rand.Rand, depth int) Node {
	if depth <= 0 {
		return randomLeaf(r)
	}
	switch r.Intn(8) {
	case 0:
		return randomLeaf(r)
	case 1:
		return &Unary{Op: []string{"-", "not"}[r.Intn(2)], X: randomNode(r, depth-1)}
	case 2:
		ops := []string{"or", "and", "+", "-", "*", "/", "%", "^", "==", "!=", "<", "<=", ">", ">=", "in", "not in"}
		return &Binary{Op: ops[r.Intn(len(ops))], L: randomNode(r, depth-1), R: randomNode(r, depth-1)}
	case 3:
		n := 1 + r.Intn(3)
		elems := make([]Node, n)
		for i := range elems {
			elems[i] = randomNode(r, depth-1)
		}
		return &Array{Elems: elems}
	case 4:
		n := 1 + r.Intn(3)
		obj := &Object{}
		for i := 0; i < n; i++ {
			obj.Keys = append(obj.Keys, randomIdent(r))
			obj.Values = append(obj.Values, randomNode(r, depth-1))
		}
		return obj
	case 5:
		names := []string{"filter", "map", "size", "sum", "limit", "sort"}
		n := r.Intn(3)
		args := make([]Node, n)
		for i := range args {
			args[i] = randomNode(r, depth-1)
		}
		return &Call{Name: names[r.Intn(len(names))], Args: args}
	case 6:
		n := 2 + r.Intn(2)
		stages := make([]Node, n)
		for i := range stages {
			stages[i] = randomNode(r, depth-1)
		}
		return &Pipe{Stages: stages}
	default:
		return &Param{Name: randomIdent(r)}
	}
}

func randomLeaf(r *rand.Rand) Node {
	switch r.Intn(4) {
	case 0:
		return randomPath(r)
	case 1:
		return &Literal{Value: float64(r.Intn(2000)) / 4}
	case 2:
		return &Literal{Value: randomIdent(r)}
	default:
		return &Literal{Value: []any{true, false, nil}[r.Intn(3)]}
	}
}

func randomPath(r *rand.Rand) *Path {
	n := r.Intn(4)
	if n == 0 {
		return &Path{} // identity
	}
	segs := make([]PathSeg, 0, n)
	segs = append(segs, PathSeg{Field: randomIdent(r)})
	for i := 1; i < n; i++ {
		if r.Intn(3) == 0 {
			segs = append(segs, PathSeg{Index: r.Intn(10), IsIdx: true})
			continue
		}
		segs = append(segs, PathSeg{Field: randomIdent(r)})
	}
	return &Path{Segs: segs}
}

func randomIdent(r *rand.Rand) string {
	letters := "abcdefgXYZ_"
	n := 1 + r.Intn(6)
	b := make([]byte, n)
	for i := range b {
		b[i] = letters[r.Intn(len(letters))]
	}
	return string(b)
}

// Printing an AST and reparsing the text must reach a fixed point: the
// second print is byte-identical to the first.
func TestPrintParse_FixedPoint(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)
	properties.Property("print/parse round trip is stable", prop.ForAll(
		func(seed int64) bool {
			r := rand.New(rand.NewSource(seed))
			ast := randomNode(r, 4)
			first := Print(ast)
			reparsed, err := Parse(first)
			if err != nil {
				t.Logf("seed %d: %q failed to parse: %v", seed, first, err)
				return false
			}
			second := Print(reparsed)
			if first != second {
				t.Logf("seed %d: %q reprinted as %q", seed, first, second)
				return false
			}
			return true
		},
		gen.Int64(),
	))
	properties.TestingRun(t)
}
