package filter

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokDot
	tokIdent
	tokString
	tokNumber
	tokLParen
	tokRParen
	tokLBracket
	tokRBracket
	tokLBrace
	tokRBrace
	tokComma
	tokColon
	tokPipe
	tokOp // comparison, arithmetic, logical
)

type token struct {
	kind tokenKind
	text string
	num  float64
	pos  int
}

type lexer struct {
	src  string
	pos  int
	toks []token
}

// lex tokenizes an expression. Returns a position-annotated error on any
// byte it cannot place.
func lex(src string) ([]token, error) {
	l := &lexer{src: src}
	for {
		l.skipSpace()
		if l.pos >= len(l.src) {
			l.emit(token{kind: tokEOF, pos: l.pos})
			return l.toks, nil
		}
		start := l.pos
		c := l.src[l.pos]
		switch {
		case c == '.':
			l.pos++
			l.emit(token{kind: tokDot, text: ".", pos: start})
		case c == '(':
			l.pos++
			l.emit(token{kind: tokLParen, text: "(", pos: start})
		case c == ')':
			l.pos++
			l.emit(token{kind: tokRParen, text: ")", pos: start})
		case c == '[':
			l.pos++
			l.emit(token{kind: tokLBracket, text: "[", pos: start})
		case c == ']':
			l.pos++
			l.emit(token{kind: tokRBracket, text: "]", pos: start})
		case c == '{':
			l.pos++
			l.emit(token{kind: tokLBrace, text: "{", pos: start})
		case c == '}':
			l.pos++
			l.emit(token{kind: tokRBrace, text: "}", pos: start})
		case c == ',':
			l.pos++
			l.emit(token{kind: tokComma, text: ",", pos: start})
		case c == ':':
			l.pos++
			l.emit(token{kind: tokColon, text: ":", pos: start})
		case c == '|':
			l.pos++
			l.emit(token{kind: tokPipe, text: "|", pos: start})
		case c == '"':
			s, err := l.lexString()
			if err != nil {
				return nil, err
			}
			l.emit(token{kind: tokString, text: s, pos: start})
		case c >= '0' && c <= '9':
			n, err := l.lexNumber()
			if err != nil {
				return nil, err
			}
			l.emit(token{kind: tokNumber, text: l.src[start:l.pos], num: n, pos: start})
		case strings.ContainsRune("=!<>+-*/%^", rune(c)):
			op, err := l.lexOperator()
			if err != nil {
				return nil, err
			}
			l.emit(token{kind: tokOp, text: op, pos: start})
		case isIdentStart(rune(c)):
			id := l.lexIdent()
			l.emit(token{kind: tokIdent, text: id, pos: start})
		default:
			return nil, fmt.Errorf("unexpected character %q at offset %d", c, start)
		}
	}
}

func (l *lexer) emit(t token) { l.toks = append(l.toks, t) }

func (l *lexer) skipSpace() {
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		if c == ' ' || c == '\t' || c == '\n' || c == '\r' {
			l.pos++
			continue
		}
		return
	}
}

func (l *lexer) lexString() (string, error) {
	start := l.pos
	l.pos++ // opening quote
	var sb strings.Builder
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch c {
		case '"':
			l.pos++
			return sb.String(), nil
		case '\\':
			l.pos++
			if l.pos >= len(l.src) {
				return "", fmt.Errorf("unterminated string at offset %d", start)
			}
			esc := l.src[l.pos]
			switch esc {
			case '"', '\\', '/':
				sb.WriteByte(esc)
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case 'r':
				sb.WriteByte('\r')
			default:
				return "", fmt.Errorf("bad escape \\%c at offset %d", esc, l.pos)
			}
			l.pos++
		default:
			sb.WriteByte(c)
			l.pos++
		}
	}
	return "", fmt.Errorf("unterminated string at offset %d", start)
}

func (l *lexer) lexNumber() (float64, error) {
	start := l.pos
	for l.pos < len(l.src) && (l.src[l.pos] >= '0' && l.src[l.pos] <= '9') {
		l.pos++
	}
	if l.pos < len(l.src) && l.src[l.pos] == '.' &&
		l.pos+1 < len(l.src) && l.src[l.pos+1] >= '0' && l.src[l.pos+1] <= '9' {
		l.pos++
		for l.pos < len(l.src) && (l.src[l.pos] >= '0' && l.src[l.pos] <= '9') {
			l.pos++
		}
	}
	if l.pos < len(l.src) && (l.src[l.pos] == 'e' || l.src[l.pos] == 'E') {
		save := l.pos
		l.pos++
		if l.pos < len(l.src) && (l.src[l.pos] == '+' || l.src[l.pos] == '-') {
			l.pos++
		}
		if l.pos < len(l.src) && l.src[l.pos] >= '0' && l.src[l.pos] <= '9' {
			for l.pos < len(l.src) && l.src[l.pos] >= '0' && l.src[l.pos] <= '9' {
				l.pos++
			}
		} else {
			l.pos = save
		}
	}
	var n float64
	if _, err := fmt.Sscanf(l.src[start:l.pos], "%g", &n); err != nil {
		return 0, fmt.Errorf("bad number %q at offset %d", l.src[start:l.pos], start)
	}
	return n, nil
}

func (l *lexer) lexOperator() (string, error) {
	two := ""
	if l.pos+1 < len(l.src) {
		two = l.src[l.pos : l.pos+2]
	}
	switch two {
	case "==", "!=", ">=", "<=":
		l.pos += 2
		return two, nil
	}
	one := string(l.src[l.pos])
	switch one {
	case ">", "<", "+", "-", "*", "/", "%", "^":
		l.pos++
		return one, nil
	}
	return "", fmt.Errorf("unexpected operator %q at offset %d", one, l.pos)
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func (l *lexer) lexIdent() string {
	start := l.pos
	for l.pos < len(l.src) {
		r, size := utf8.DecodeRuneInString(l.src[l.pos:])
		if !isIdentPart(r) {
			break
		}
		l.pos += size
	}
	return l.src[start:l.pos]
}
