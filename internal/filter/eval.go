package filter

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
)

// Eval evaluates a bound AST against a JSON value (the result of
// encoding/json unmarshalling into any). Parameter nodes must have been
// bound first; hitting one is an error.
func Eval(n Node, data any) (any, error) {
	ev := &evaluator{}
	return ev.eval(n, data)
}

type evaluator struct{}

func (ev *evaluator) eval(n Node, data any) (any, error) {
	switch t := n.(type) {
	case *Pipe:
		cur := data
		for _, stage := range t.Stages {
			v, err := ev.eval(stage, cur)
			if err != nil {
				return nil, err
			}
			cur = v
		}
		return cur, nil
	case *Path:
		return walkPath(t, data), nil
	case *Literal:
		return t.Value, nil
	case *Param:
		return nil, fmt.Errorf("unbound parameter {%s}", t.Name)
	case *Array:
		out := make([]any, len(t.Elems))
		for i, e := range t.Elems {
			v, err := ev.eval(e, data)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case *Object:
		out := make(map[string]any, len(t.Keys))
		for i, k := range t.Keys {
			v, err := ev.eval(t.Values[i], data)
			if err != nil {
				return nil, err
			}
			out[k] = v
		}
		return out, nil
	case *Call:
		fn, ok := functions[t.Name]
		if !ok {
			return nil, fmt.Errorf("unknown function %q", t.Name)
		}
		return fn(ev, t.Args, data)
	case *Unary:
		v, err := ev.eval(t.X, data)
		if err != nil {
			return nil, err
		}
		switch t.Op {
		case "-":
			n, ok := toNumber(v)
			if !ok {
				return nil, fmt.Errorf("cannot negate %s", typeName(v))
			}
			return -n, nil
		case "not":
			return !truthy(v), nil
		}
		return nil, fmt.Errorf("unknown unary operator %q", t.Op)
	case *Binary:
		return ev.evalBinary(t, data)
	}
	return nil, fmt.Errorf("unknown node type %T", n)
}

func (ev *evaluator) evalBinary(b *Binary, data any) (any, error) {
	// short-circuit logical operators
	switch b.Op {
	case "and":
		l, err := ev.eval(b.L, data)
		if err != nil {
			return nil, err
		}
		if !truthy(l) {
			return false, nil
		}
		r, err := ev.eval(b.R, data)
		if err != nil {
			return nil, err
		}
		return truthy(r), nil
	case "or":
		l, err := ev.eval(b.L, data)
		if err != nil {
			return nil, err
		}
		if truthy(l) {
			return true, nil
		}
		r, err := ev.eval(b.R, data)
		if err != nil {
			return nil, err
		}
		return truthy(r), nil
	}

	l, err := ev.eval(b.L, data)
	if err != nil {
		return nil, err
	}
	r, err := ev.eval(b.R, data)
	if err != nil {
		return nil, err
	}

	switch b.Op {
	case "==":
		return equalValues(l, r), nil
	case "!=":
		return !equalValues(l, r), nil
	case ">":
		return orderCompare(l, r, func(c int) bool { return c > 0 }), nil
	case ">=":
		return orderCompare(l, r, func(c int) bool { return c >= 0 }), nil
	case "<":
		return orderCompare(l, r, func(c int) bool { return c < 0 }), nil
	case "<=":
		return orderCompare(l, r, func(c int) bool { return c <= 0 }), nil
	case "in":
		return memberOf(l, r), nil
	case "not in":
		return !memberOf(l, r), nil
	case "+":
		if ls, ok := l.(string); ok {
			if rs, ok := r.(string); ok {
				return ls + rs, nil
			}
		}
		return arith(b.Op, l, r)
	case "-", "*", "/", "%", "^":
		return arith(b.Op, l, r)
	}
	return nil, fmt.Errorf("unknown operator %q", b.Op)
}

func arith(op string, l, r any) (any, error) {
	ln, ok := toNumber(l)
	if !ok {
		return nil, fmt.Errorf("operator %q needs numbers, got %s", op, typeName(l))
	}
	rn, ok := toNumber(r)
	if !ok {
		return nil, fmt.Errorf("operator %q needs numbers, got %s", op, typeName(r))
	}
	switch op {
	case "+":
		return ln + rn, nil
	case "-":
		return ln - rn, nil
	case "*":
		return ln * rn, nil
	case "/":
		if rn == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return ln / rn, nil
	case "%":
		if rn == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return float64(int64(ln) % int64(rn)), nil
	case "^":
		return math.Pow(ln, rn), nil
	}
	return nil, fmt.Errorf("unknown operator %q", op)
}

// walkPath follows path segments, yielding nil for anything missing.
func walkPath(p *Path, data any) any {
	cur := data
	for _, seg := range p.Segs {
		if cur == nil {
			return nil
		}
		if seg.IsIdx {
			arr, ok := cur.([]any)
			if !ok || seg.Index < 0 || seg.Index >= len(arr) {
				return nil
			}
			cur = arr[seg.Index]
			continue
		}
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = obj[seg.Field]
	}
	return cur
}

// truthy follows JSON-ish truthiness: null, false, 0, and "" are false;
// everything else, including empty arrays and objects, is true.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != ""
	case int:
		return t != 0
	}
	return true
}

// orderCompare applies an order operator. Operands of different type
// classes never satisfy an order comparison; sort() keeps the cross-class
// total order.
func orderCompare(l, r any, test func(int) bool) bool {
	if typeClass(l) != typeClass(r) {
		return false
	}
	return test(compareValues(l, r))
}

// typeClass orders values for sorting and comparison: booleans before
// numbers before strings before everything else.
func typeClass(v any) int {
	switch v.(type) {
	case bool:
		return 0
	case float64, int:
		return 1
	case string:
		return 2
	}
	return 3
}

// compareValues is a total order over JSON values. Values of different type
// classes order by class; within a class the natural order applies; values
// in the residual class compare equal.
func compareValues(a, b any) int {
	ca, cb := typeClass(a), typeClass(b)
	if ca != cb {
		if ca < cb {
			return -1
		}
		return 1
	}
	switch ca {
	case 0:
		ab, bb := a.(bool), b.(bool)
		switch {
		case ab == bb:
			return 0
		case !ab:
			return -1
		default:
			return 1
		}
	case 1:
		an, _ := toNumber(a)
		bn, _ := toNumber(b)
		switch {
		case an < bn:
			return -1
		case an > bn:
			return 1
		default:
			return 0
		}
	case 2:
		as, bs := a.(string), b.(string)
		switch {
		case as < bs:
			return -1
		case as > bs:
			return 1
		default:
			return 0
		}
	}
	return 0
}

func equalValues(a, b any) bool {
	if typeClass(a) != typeClass(b) {
		return a == nil && b == nil
	}
	if typeClass(a) < 3 {
		return compareValues(a, b) == 0
	}
	return reflect.DeepEqual(a, b)
}

func memberOf(v, coll any) bool {
	arr, ok := coll.([]any)
	if !ok {
		return false
	}
	for _, e := range arr {
		if equalValues(v, e) {
			return true
		}
	}
	return false
}

// toNumber coerces numbers, numeric strings, and booleans.
func toNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case string:
		n, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case float64, int:
		return "number"
	case string:
		return "string"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	}
	return fmt.Sprintf("%T", v)
}

// stringify renders a value the way string() and join() present it.
func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case int:
		return strconv.Itoa(t)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
