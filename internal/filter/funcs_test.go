package filter

import (
	"reflect"
	"testing"
)

func TestFuncs_FunctionSpellings(t *testing.T) {
	// every infix operator and constructor has a function form with the
	// same semantics
	data := decode(t, `{"a": {"b": 2}, "xs": [1, 2, 3]}`)
	cases := []struct {
		src  string
		want any
	}{
		{`get(.a.b)`, 2.0},
		{`get()`, data},
		{`pipe(.xs, sum())`, 6.0},
		{`object({n: .a.b})`, map[string]any{"n": 2.0}},
		{`array(.a.b, 5)`, []any{2.0, 5.0}},
		{`eq(.a.b, 2)`, true},
		{`ne(.a.b, 2)`, false},
		{`gt(.a.b, 1)`, true},
		{`gte(.a.b, 2)`, true},
		{`lt(.a.b, 1)`, false},
		{`lte(.a.b, 2)`, true},
		{`and(true, .a.b > 1)`, true},
		{`or(false, false)`, false},
		{`in(2, .xs)`, true},
		{`in(9, .xs)`, false},
		{`add(.a.b, 3)`, 5.0},
		{`sub(.a.b, 3)`, -1.0},
		{`mul(.a.b, 3)`, 6.0},
		{`div(.a.b, 2)`, 1.0},
	}
	for _, c := range cases {
		got := mustEval(t, c.src, data)
		if !reflect.DeepEqual(got, c.want) {
			t.Errorf("%s = %v, want %v", c.src, got, c.want)
		}
	}
}

func TestFuncs_OrderFunctionsRejectMixedTypes(t *testing.T) {
	// same rule as the operators: cross-class order comparisons are false
	if got := mustEval(t, `gt(5, "a")`, nil); got != false {
		t.Errorf("gt(5, \"a\") = %v", got)
	}
}

func TestFuncs_SortWithKeyAndDirection(t *testing.T) {
	data := decode(t, `[{"d": "2024-03-01"}, {"d": "2024-01-01"}, {"d": "2024-02-01"}]`)

	got := mustEval(t, `sort(.d)`, data)
	arr := got.([]any)
	if arr[0].(map[string]any)["d"] != "2024-01-01" {
		t.Errorf("ascending sort wrong: %v", arr)
	}

	got = mustEval(t, `sort(.d, "desc")`, data)
	arr = got.([]any)
	if arr[0].(map[string]any)["d"] != "2024-03-01" {
		t.Errorf("descending sort wrong: %v", arr)
	}
}

func TestFuncs_SortMixedTypes(t *testing.T) {
	// type classes order bool < number < string
	got := mustEval(t, `sort()`, []any{"x", 3.0, true, 1.0})
	want := []any{true, 1.0, 3.0, "x"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestFuncs_GroupBy(t *testing.T) {
	data := decode(t, `[{"s": "Shipped"}, {"s": "Pending"}, {"s": "Shipped"}]`)
	got := mustEval(t, `groupBy(.s)`, data).(map[string]any)
	if len(got["Shipped"].([]any)) != 2 || len(got["Pending"].([]any)) != 1 {
		t.Errorf("got %v", got)
	}
}

func TestFuncs_Pick(t *testing.T) {
	data := decode(t, `[{"a": {"b": 1}, "c": 2, "d": 3}]`)
	got := mustEval(t, `pick(.a.b, .c)`, data)
	want := []any{map[string]any{"b": 1.0, "c": 2.0}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestFuncs_Aggregates(t *testing.T) {
	nums := []any{4.0, 1.0, 3.0}
	cases := []struct {
		src  string
		want any
	}{
		{"sum()", 8.0},
		{"min()", 1.0},
		{"max()", 4.0},
		{"prod()", 12.0},
		{"average()", 8.0 / 3.0},
		{"size()", 3.0},
		{"count()", 3.0},
		{"first()", 4.0},
		{"last()", 3.0},
	}
	for _, tc := range cases {
		if got := mustEval(t, tc.src, nums); got != tc.want {
			t.Errorf("%s = %v, want %v", tc.src, got, tc.want)
		}
	}
}

func TestFuncs_EmptyAggregates(t *testing.T) {
	empty := []any{}
	if got := mustEval(t, "sum()", empty); got != 0.0 {
		t.Errorf("sum of empty = %v", got)
	}
	for _, src := range []string{"min()", "max()", "average()", "first()", "last()"} {
		if got := mustEval(t, src, empty); got != nil {
			t.Errorf("%s of empty = %v, want nil", src, got)
		}
	}
}

func TestFuncs_UniqAndUniqBy(t *testing.T) {
	got := mustEval(t, "uniq()", []any{1.0, 2.0, 1.0, 3.0, 2.0})
	if !reflect.DeepEqual(got, []any{1.0, 2.0, 3.0}) {
		t.Errorf("uniq = %v", got)
	}

	data := decode(t, `[{"k": "a", "n": 1}, {"k": "a", "n": 2}, {"k": "b", "n": 3}]`)
	arr := mustEval(t, "uniqBy(.k)", data).([]any)
	if len(arr) != 2 {
		t.Errorf("uniqBy kept %d elements", len(arr))
	}
	// first occurrence wins
	if arr[0].(map[string]any)["n"] != 1.0 {
		t.Errorf("uniqBy dropped the first occurrence: %v", arr)
	}
}

func TestFuncs_LimitAndReverse(t *testing.T) {
	nums := []any{1.0, 2.0, 3.0}
	if got := mustEval(t, "limit(2)", nums); !reflect.DeepEqual(got, []any{1.0, 2.0}) {
		t.Errorf("limit = %v", got)
	}
	if got := mustEval(t, "limit(10)", nums); !reflect.DeepEqual(got, nums) {
		t.Errorf("limit beyond length = %v", got)
	}
	if got := mustEval(t, "reverse()", nums); !reflect.DeepEqual(got, []any{3.0, 2.0, 1.0}) {
		t.Errorf("reverse = %v", got)
	}
}

func TestFuncs_Strings(t *testing.T) {
	cases := []struct {
		src  string
		data any
		want any
	}{
		{`upper()`, "abc", "ABC"},
		{`lower(.x)`, map[string]any{"x": "ABC"}, "abc"},
		{`trim()`, "  a  ", "a"},
		{`startsWith("02")`, "026-111", true},
		{`endsWith("111")`, "026-111", true},
		{`contains("6-1")`, "026-111", true},
		{`contains(2)`, []any{1.0, 2.0}, true},
		{`replace("-", "_")`, "a-b-c", "a_b_c"},
		{`substring(0, 3)`, "026-111", "026"},
		{`join("|")`, []any{"a", "b"}, "a|b"},
	}
	for _, tc := range cases {
		if got := mustEval(t, tc.src, tc.data); got != tc.want {
			t.Errorf("%s = %v, want %v", tc.src, got, tc.want)
		}
	}

	got := mustEval(t, `split("-")`, "a-b")
	if !reflect.DeepEqual(got, []any{"a", "b"}) {
		t.Errorf("split = %v", got)
	}
}

func TestFuncs_FlattenKeysValues(t *testing.T) {
	got := mustEval(t, "flatten()", []any{[]any{1.0, 2.0}, 3.0, []any{4.0}})
	if !reflect.DeepEqual(got, []any{1.0, 2.0, 3.0, 4.0}) {
		t.Errorf("flatten = %v", got)
	}

	obj := map[string]any{"b": 2.0, "a": 1.0}
	if got := mustEval(t, "keys()", obj); !reflect.DeepEqual(got, []any{"a", "b"}) {
		t.Errorf("keys = %v", got)
	}
	if got := mustEval(t, "values()", obj); !reflect.DeepEqual(got, []any{1.0, 2.0}) {
		t.Errorf("values = %v", got)
	}
}

func TestFuncs_MapObjectFamily(t *testing.T) {
	obj := map[string]any{"a": 1.0, "b": 2.0}

	got := mustEval(t, `mapObject({key: upper(.key), value: .value * 10})`, obj)
	want := map[string]any{"A": 10.0, "B": 20.0}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("mapObject = %v, want %v", got, want)
	}

	got = mustEval(t, `mapKeys(upper())`, obj)
	want = map[string]any{"A": 1.0, "B": 2.0}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("mapKeys = %v, want %v", got, want)
	}

	got = mustEval(t, `mapValues(. + 1)`, obj)
	want = map[string]any{"a": 2.0, "b": 3.0}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("mapValues = %v, want %v", got, want)
	}
}

func TestFuncs_MapObjectRejectsBadCallback(t *testing.T) {
	obj := map[string]any{"a": 1.0}
	for _, src := range []string{
		`mapObject(.value)`,                  // not an object
		`mapObject({key: 1, value: .value})`, // non-string key
		`mapKeys(. + 1)`,                     // non-string result
	} {
		ast, err := Parse(src)
		if err != nil {
			t.Fatalf("Parse(%q): %v", src, err)
		}
		if _, err := Eval(ast, obj); err == nil {
			t.Errorf("%s succeeded, want error", src)
		}
	}
}

func TestFuncs_Regex(t *testing.T) {
	cases := []struct {
		src  string
		data any
		want any
	}{
		{`regex("^026-")`, "026-111", true},
		{`regex("^027-")`, "026-111", false},
		{`regex(.id, "^\\d{3}-")`, map[string]any{"id": "026-111"}, true},
		{`regex(.id, "^abc$", "i")`, map[string]any{"id": "ABC"}, true},
		{`regex(.id, "^abc$")`, map[string]any{"id": "ABC"}, false},
		// non-string text never matches
		{`regex(.id, "1")`, map[string]any{"id": 111.0}, false},
		{`regex(.missing, "x")`, map[string]any{}, false},
	}
	for _, tc := range cases {
		if got := mustEval(t, tc.src, tc.data); got != tc.want {
			t.Errorf("%s = %v, want %v", tc.src, got, tc.want)
		}
	}
}

func TestFuncs_RegexRejectsBadPattern(t *testing.T) {
	for _, src := range []string{`regex("[unclosed")`, `regex(.x, "a", "z")`} {
		ast, err := Parse(src)
		if err != nil {
			t.Fatalf("Parse(%q): %v", src, err)
		}
		if _, err := Eval(ast, "text"); err == nil {
			t.Errorf("%s succeeded, want error", src)
		}
	}
}

func TestFuncs_Exists(t *testing.T) {
	data := decode(t, `{"a": null, "b": {"c": 1}}`)
	cases := []struct {
		src  string
		want bool
	}{
		{"exists(.a)", true}, // present null still exists
		{"exists(.b.c)", true},
		{"exists(.b.x)", false},
		{"exists(.missing)", false},
	}
	for _, tc := range cases {
		if got := mustEval(t, tc.src, data); got != tc.want {
			t.Errorf("%s = %v, want %v", tc.src, got, tc.want)
		}
	}
}

func TestFuncs_IfAndNumbers(t *testing.T) {
	cases := []struct {
		src  string
		data any
		want any
	}{
		{`if(.q > 0, "in stock", "out")`, map[string]any{"q": 5.0}, "in stock"},
		{`if(.q > 0, "in stock", "out")`, map[string]any{"q": 0.0}, "out"},
		{`number()`, "12.5", 12.5},
		{`string()`, 12.5, "12.5"},
		{`round(3.456, 2)`, nil, 3.46},
		{`round()`, 3.6, 4.0},
		{`abs()`, -3.0, 3.0},
		{`ceil()`, 1.2, 2.0},
		{`floor()`, 1.8, 1.0},
		{`sqrt()`, 9.0, 3.0},
		{`pow(2, 8)`, nil, 256.0},
		{`mod(7, 3)`, nil, 1.0},
		{`not(.q)`, map[string]any{"q": 0.0}, true},
	}
	for _, tc := range cases {
		if got := mustEval(t, tc.src, tc.data); got != tc.want {
			t.Errorf("%s = %v, want %v", tc.src, got, tc.want)
		}
	}
}

func TestFuncs_TypeErrors(t *testing.T) {
	cases := []struct {
		src  string
		data any
	}{
		{"filter(.x)", "not an array"},
		{"sum()", []any{"abc"}},
		{"keys()", []any{}},
		{"upper()", 5.0},
		{"unknownFn()", nil},
	}
	for _, tc := range cases {
		ast, err := Parse(tc.src)
		if err != nil {
			t.Fatalf("Parse(%q): %v", tc.src, err)
		}
		if _, err := Eval(ast, tc.data); err == nil {
			t.Errorf("%s on %v succeeded, want error", tc.src, tc.data)
		}
	}
}

func TestFunctionNames_Sorted(t *testing.T) {
	names := FunctionNames()
	if len(names) < 40 {
		t.Fatalf("only %d functions registered", len(names))
	}
	for i := 1; i < len(names); i++ {
		if names[i-1] >= names[i] {
			t.Fatalf("names not sorted at %d: %s >= %s", i, names[i-1], names[i])
		}
	}
}
