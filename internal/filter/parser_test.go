package filter

import (
	"strings"
	"testing"
)

// --- Parsing and canonical printing ---

func TestParse_Precedence(t *testing.T) {
	cases := []struct {
		src  string
		want string
	}{
		{".a + .b * .c", ".a + .b * .c"},
		{"(.a + .b) * .c", "(.a + .b) * .c"},
		{".a == .b or .c == .d", ".a == .b or .c == .d"},
		{"not .a and .b", "not .a and .b"},
		{"not (.a and .b)", "not (.a and .b)"},
		{"2 ^ 3 ^ 2", "2 ^ 3 ^ 2"},
		{"(2 ^ 3) ^ 2", "(2 ^ 3) ^ 2"},
		{"-.a + .b", "-.a + .b"},
		{".x | filter(.a > 1) | size()", ".x | filter(.a > 1) | size()"},
	}
	for _, tc := range cases {
		ast, err := Parse(tc.src)
		if err != nil {
			t.Fatalf("Parse(%q): %v", tc.src, err)
		}
		if got := Print(ast); got != tc.want {
			t.Errorf("Print(Parse(%q)) = %q, want %q", tc.src, got, tc.want)
		}
	}
}

func TestParse_PrintRoundTrip(t *testing.T) {
	exprs := []string{
		`map({orderId: .AmazonOrderId, status: .OrderStatus})`,
		`filter(number(.OrderTotal.Amount) >= {threshold})`,
		`.items[0].price`,
		`filter(.status in ["Shipped", "Unshipped"])`,
		`filter(.status not in ["Canceled"])`,
		`sort(.PurchaseDate, "desc") | limit(10)`,
		`groupBy(.OrderStatus)`,
		`."weird key".value`,
	}
	for _, src := range exprs {
		first, err := Parse(src)
		if err != nil {
			t.Fatalf("Parse(%q): %v", src, err)
		}
		printed := Print(first)
		second, err := Parse(printed)
		if err != nil {
			t.Fatalf("reparse of %q: %v", printed, err)
		}
		if again := Print(second); again != printed {
			t.Errorf("print not stable for %q: %q then %q", src, printed, again)
		}
	}
}

func TestParse_Params(t *testing.T) {
	ast, err := Parse("filter(.qty >= {min} and .qty <= {max})")
	if err != nil {
		t.Fatal(err)
	}
	params := Params(ast)
	if len(params) != 2 || params[0] != "min" || params[1] != "max" {
		t.Errorf("Params = %v, want [min max]", params)
	}
}

func TestParse_ObjectLiteralVsParam(t *testing.T) {
	// {name} with no colon is a parameter; {key: value} is an object.
	ast, err := Parse("{threshold}")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := ast.(*Param); !ok {
		t.Fatalf("expected Param node, got %T", ast)
	}

	ast, err = Parse("{a: 1, b: .x}")
	if err != nil {
		t.Fatal(err)
	}
	obj, ok := ast.(*Object)
	if !ok {
		t.Fatalf("expected Object node, got %T", ast)
	}
	if len(obj.Keys) != 2 {
		t.Errorf("object keys = %v", obj.Keys)
	}
}

func TestParse_Errors(t *testing.T) {
	cases := []struct {
		src     string
		wantSub string
	}{
		{"", "unexpected"},
		{".a +", "unexpected"},
		{"foo", "unknown identifier"},
		{"filter(", "unexpected"},
		{".a == .b == .c", "unexpected"},
		{`{a: 1`, "expected"},
	}
	for _, tc := range cases {
		_, err := Parse(tc.src)
		if err == nil {
			t.Errorf("Parse(%q) succeeded, want error", tc.src)
			continue
		}
		if !strings.Contains(strings.ToLower(err.Error()), tc.wantSub) {
			t.Errorf("Parse(%q) error %q, want substring %q", tc.src, err, tc.wantSub)
		}
	}
}

func TestParse_DepthLimit(t *testing.T) {
	src := strings.Repeat("(", MaxDepth+1) + ".a" + strings.Repeat(")", MaxDepth+1)
	if _, err := Parse(src); err == nil {
		t.Error("deeply nested expression parsed, want depth error")
	}
}

func TestParse_NodeBudget(t *testing.T) {
	var b strings.Builder
	b.WriteString("[")
	for i := 0; i < MaxNodes; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("1")
	}
	b.WriteString("]")
	if _, err := Parse(b.String()); err == nil {
		t.Error("oversized expression parsed, want node budget error")
	}
}

func TestBind_MissingParam(t *testing.T) {
	ast, err := Parse("filter(.qty >= {min})")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Bind(ast, nil); err == nil {
		t.Error("Bind with no values succeeded, want unbound error")
	}
	bound, err := Bind(ast, map[string]any{"min": 5.0})
	if err != nil {
		t.Fatal(err)
	}
	if got := len(Params(bound)); got != 0 {
		t.Errorf("bound AST still has %d params", got)
	}
}
