package filter

import (
	"fmt"
)

// parser is a recursive-descent parser over the token stream. Nesting depth
// and node count are bounded; exceeding either rejects the expression.
type parser struct {
	toks  []token
	pos   int
	depth int
	nodes int
}

// Parse parses one expression into its AST.
func Parse(src string) (Node, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	n, err := p.parsePipe()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokEOF {
		return nil, fmt.Errorf("unexpected %q at offset %d", p.peek().text, p.peek().pos)
	}
	return n, nil
}

func (p *parser) peek() token  { return p.toks[p.pos] }
func (p *parser) next() token  { t := p.toks[p.pos]; p.pos++; return t }
func (p *parser) back()        { p.pos-- }

func (p *parser) enter() error {
	p.depth++
	if p.depth > MaxDepth {
		return fmt.Errorf("expression nesting exceeds %d levels", MaxDepth)
	}
	return nil
}

func (p *parser) leave() { p.depth-- }

func (p *parser) count() error {
	p.nodes++
	if p.nodes > MaxNodes {
		return fmt.Errorf("expression exceeds %d nodes", MaxNodes)
	}
	return nil
}

func (p *parser) isKeyword(t token, kw string) bool {
	return t.kind == tokIdent && t.text == kw
}

func (p *parser) parsePipe() (Node, error) {
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()

	first, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	stages := []Node{first}
	for p.peek().kind == tokPipe {
		p.next()
		stage, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		stages = append(stages, stage)
	}
	if len(stages) == 1 {
		return stages[0], nil
	}
	if err := p.count(); err != nil {
		return nil, err
	}
	return &Pipe{Stages: stages}, nil
}

func (p *parser) parseOr() (Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.isKeyword(p.peek(), "or") {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		if err := p.count(); err != nil {
			return nil, err
		}
		left = &Binary{Op: "or", L: left, R: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Node, error) {
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for p.isKeyword(p.peek(), "and") {
		p.next()
		right, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		if err := p.count(); err != nil {
			return nil, err
		}
		left = &Binary{Op: "and", L: left, R: right}
	}
	return left, nil
}

// parseComparison parses at most one comparison or membership test.
func (p *parser) parseComparison() (Node, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}

	t := p.peek()
	op := ""
	switch {
	case t.kind == tokOp && isComparisonOp(t.text):
		op = t.text
		p.next()
	case p.isKeyword(t, "in"):
		op = "in"
		p.next()
	case p.isKeyword(t, "not"):
		p.next()
		if !p.isKeyword(p.peek(), "in") {
			p.back()
			return left, nil
		}
		p.next()
		op = "not in"
	default:
		return left, nil
	}

	right, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	if err := p.count(); err != nil {
		return nil, err
	}
	return &Binary{Op: op, L: left, R: right}, nil
}

func isComparisonOp(op string) bool {
	switch op {
	case "==", "!=", ">", ">=", "<", "<=":
		return true
	}
	return false
}

func (p *parser) parseAdditive() (Node, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		if t.kind != tokOp || (t.text != "+" && t.text != "-") {
			return left, nil
		}
		p.next()
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		if err := p.count(); err != nil {
			return nil, err
		}
		left = &Binary{Op: t.text, L: left, R: right}
	}
}

func (p *parser) parseMultiplicative() (Node, error) {
	left, err := p.parsePow()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		if t.kind != tokOp || (t.text != "*" && t.text != "/" && t.text != "%") {
			return left, nil
		}
		p.next()
		right, err := p.parsePow()
		if err != nil {
			return nil, err
		}
		if err := p.count(); err != nil {
			return nil, err
		}
		left = &Binary{Op: t.text, L: left, R: right}
	}
}

// parsePow parses exponentiation, right associative.
func (p *parser) parsePow() (Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	t := p.peek()
	if t.kind != tokOp || t.text != "^" {
		return left, nil
	}
	p.next()
	right, err := p.parsePow()
	if err != nil {
		return nil, err
	}
	if err := p.count(); err != nil {
		return nil, err
	}
	return &Binary{Op: "^", L: left, R: right}, nil
}

func (p *parser) parseUnary() (Node, error) {
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()

	t := p.peek()
	if t.kind == tokOp && t.text == "-" {
		p.next()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		if err := p.count(); err != nil {
			return nil, err
		}
		return &Unary{Op: "-", X: x}, nil
	}
	if p.isKeyword(t, "not") {
		// "not" here is prefix negation; "not in" is consumed by the
		// comparison level before we get a chance to see it.
		p.next()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		if err := p.count(); err != nil {
			return nil, err
		}
		return &Unary{Op: "not", X: x}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Node, error) {
	if err := p.count(); err != nil {
		return nil, err
	}
	t := p.next()
	switch t.kind {
	case tokDot:
		return p.parsePath()
	case tokNumber:
		return &Literal{Value: t.num}, nil
	case tokString:
		return &Literal{Value: t.text}, nil
	case tokLParen:
		inner, err := p.parsePipe()
		if err != nil {
			return nil, err
		}
		if p.peek().kind != tokRParen {
			return nil, fmt.Errorf("expected ) at offset %d", p.peek().pos)
		}
		p.next()
		return inner, nil
	case tokLBracket:
		return p.parseArray()
	case tokLBrace:
		return p.parseObjectOrParam()
	case tokIdent:
		switch t.text {
		case "true":
			return &Literal{Value: true}, nil
		case "false":
			return &Literal{Value: false}, nil
		case "null":
			return &Literal{Value: nil}, nil
		case "and", "or", "in", "not":
			// the keywords double as functions when called directly
			if p.peek().kind != tokLParen {
				return nil, fmt.Errorf("unexpected keyword %q at offset %d", t.text, t.pos)
			}
		}
		if p.peek().kind == tokLParen {
			p.next()
			return p.parseCall(t.text)
		}
		return nil, fmt.Errorf("unknown identifier %q at offset %d (property access starts with '.')", t.text, t.pos)
	default:
		return nil, fmt.Errorf("unexpected %q at offset %d", t.text, t.pos)
	}
}

// parsePath parses the segments after a leading dot. A lone dot is the
// identity path.
func (p *parser) parsePath() (Node, error) {
	var segs []PathSeg
	// first segment, attached directly to the leading dot
	t := p.peek()
	if t.kind == tokIdent && !isReservedWord(t.text) {
		p.next()
		segs = append(segs, PathSeg{Field: t.text})
	} else if t.kind == tokString {
		p.next()
		segs = append(segs, PathSeg{Field: t.text})
	} else {
		return &Path{}, nil // identity "."
	}

	for {
		t := p.peek()
		switch {
		case t.kind == tokDot:
			p.next()
			nt := p.next()
			if nt.kind != tokIdent && nt.kind != tokString {
				return nil, fmt.Errorf("expected field name at offset %d", nt.pos)
			}
			segs = append(segs, PathSeg{Field: nt.text})
		case t.kind == tokLBracket:
			p.next()
			it := p.next()
			if it.kind != tokNumber || it.num != float64(int(it.num)) {
				return nil, fmt.Errorf("expected integer index at offset %d", it.pos)
			}
			if p.peek().kind != tokRBracket {
				return nil, fmt.Errorf("expected ] at offset %d", p.peek().pos)
			}
			p.next()
			segs = append(segs, PathSeg{Index: int(it.num), IsIdx: true})
		default:
			return &Path{Segs: segs}, nil
		}
	}
}

func isReservedWord(s string) bool {
	switch s {
	case "and", "or", "not", "in":
		return true
	}
	return false
}

func (p *parser) parseCall(name string) (Node, error) {
	var args []Node
	if p.peek().kind != tokRParen {
		for {
			arg, err := p.parsePipe()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
			if p.peek().kind != tokComma {
				break
			}
			p.next()
		}
	}
	if p.peek().kind != tokRParen {
		return nil, fmt.Errorf("expected ) at offset %d", p.peek().pos)
	}
	p.next()
	return &Call{Name: name, Args: args}, nil
}

func (p *parser) parseArray() (Node, error) {
	var elems []Node
	if p.peek().kind != tokRBracket {
		for {
			e, err := p.parsePipe()
			if err != nil {
				return nil, err
			}
			elems = append(elems, e)
			if p.peek().kind != tokComma {
				break
			}
			p.next()
		}
	}
	if p.peek().kind != tokRBracket {
		return nil, fmt.Errorf("expected ] at offset %d", p.peek().pos)
	}
	p.next()
	return &Array{Elems: elems}, nil
}

// parseObjectOrParam disambiguates "{name}" (a parameter placeholder) from
// an object literal, which always carries "key:" pairs.
func (p *parser) parseObjectOrParam() (Node, error) {
	if p.peek().kind == tokRBrace {
		p.next()
		return &Object{}, nil
	}

	// {ident} with no colon is a parameter
	if p.peek().kind == tokIdent && p.toks[p.pos+1].kind == tokRBrace {
		name := p.next().text
		p.next()
		return &Param{Name: name}, nil
	}

	obj := &Object{}
	for {
		kt := p.next()
		if kt.kind != tokIdent && kt.kind != tokString {
			return nil, fmt.Errorf("expected object key at offset %d", kt.pos)
		}
		if p.peek().kind != tokColon {
			return nil, fmt.Errorf("expected : after object key %q at offset %d", kt.text, p.peek().pos)
		}
		p.next()
		v, err := p.parsePipe()
		if err != nil {
			return nil, err
		}
		obj.Keys = append(obj.Keys, kt.text)
		obj.Values = append(obj.Values, v)
		if p.peek().kind != tokComma {
			break
		}
		p.next()
	}
	if p.peek().kind != tokRBrace {
		return nil, fmt.Errorf("expected } at offset %d", p.peek().pos)
	}
	p.next()
	return obj, nil
}
