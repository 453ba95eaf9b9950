package filter

import (
	"strconv"
	"strings"
)

// Operator precedence levels, matching the parser.
const (
	precPipe = iota + 1
	precOr
	precAnd
	precCmp
	precAdd
	precMul
	precPow
	precUnary
	precPrimary
)

func opPrec(op string) int {
	switch op {
	case "or":
		return precOr
	case "and":
		return precAnd
	case "==", "!=", ">", ">=", "<", "<=", "in", "not in":
		return precCmp
	case "+", "-":
		return precAdd
	case "*", "/", "%":
		return precMul
	case "^":
		return precPow
	}
	return precPrimary
}

// Print renders the AST back to canonical expression text. Parse(Print(n))
// yields a structurally identical tree.
func Print(n Node) string {
	var sb strings.Builder
	printNode(&sb, n, precPipe)
	return sb.String()
}

func printNode(sb *strings.Builder, n Node, parent int) {
	switch t := n.(type) {
	case *Pipe:
		wrap := precPipe < parent
		if wrap {
			sb.WriteByte('(')
		}
		for i, s := range t.Stages {
			if i > 0 {
				sb.WriteString(" | ")
			}
			printNode(sb, s, precPipe+1)
		}
		if wrap {
			sb.WriteByte(')')
		}
	case *Binary:
		prec := opPrec(t.Op)
		wrap := prec < parent
		if wrap {
			sb.WriteByte('(')
		}
		lp, rp := prec, prec+1
		if t.Op == "^" {
			// right associative
			lp, rp = prec+1, prec
		}
		if prec == precCmp {
			// comparisons do not chain
			lp, rp = prec+1, prec+1
		}
		printNode(sb, t.L, lp)
		sb.WriteByte(' ')
		sb.WriteString(t.Op)
		sb.WriteByte(' ')
		printNode(sb, t.R, rp)
		if wrap {
			sb.WriteByte(')')
		}
	case *Unary:
		wrap := precUnary < parent
		if wrap {
			sb.WriteByte('(')
		}
		sb.WriteString(t.Op)
		if t.Op == "not" {
			sb.WriteByte(' ')
		}
		printNode(sb, t.X, precUnary)
		if wrap {
			sb.WriteByte(')')
		}
	case *Path:
		if len(t.Segs) == 0 {
			sb.WriteByte('.')
			return
		}
		for _, seg := range t.Segs {
			if seg.IsIdx {
				sb.WriteByte('[')
				sb.WriteString(strconv.Itoa(seg.Index))
				sb.WriteByte(']')
				continue
			}
			sb.WriteByte('.')
			writeKey(sb, seg.Field)
		}
	case *Literal:
		writeLiteral(sb, t.Value)
	case *Array:
		sb.WriteByte('[')
		for i, e := range t.Elems {
			if i > 0 {
				sb.WriteString(", ")
			}
			printNode(sb, e, precPipe)
		}
		sb.WriteByte(']')
	case *Object:
		sb.WriteByte('{')
		for i := range t.Keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			writeKey(sb, t.Keys[i])
			sb.WriteString(": ")
			printNode(sb, t.Values[i], precPipe)
		}
		sb.WriteByte('}')
	case *Param:
		sb.WriteByte('{')
		sb.WriteString(t.Name)
		sb.WriteByte('}')
	case *Call:
		sb.WriteString(t.Name)
		sb.WriteByte('(')
		for i, a := range t.Args {
			if i > 0 {
				sb.WriteString(", ")
			}
			printNode(sb, a, precPipe)
		}
		sb.WriteByte(')')
	}
}

// writeKey writes a field name or object key, quoting when it is not a
// plain identifier.
func writeKey(sb *strings.Builder, key string) {
	if isPlainIdent(key) {
		sb.WriteString(key)
		return
	}
	sb.WriteString(strconv.Quote(key))
}

func isPlainIdent(s string) bool {
	if s == "" || isReservedWord(s) {
		return false
	}
	for i, r := range s {
		if i == 0 && !isIdentStart(r) {
			return false
		}
		if i > 0 && !isIdentPart(r) {
			return false
		}
	}
	return true
}

func writeLiteral(sb *strings.Builder, v any) {
	switch t := v.(type) {
	case nil:
		sb.WriteString("null")
	case bool:
		sb.WriteString(strconv.FormatBool(t))
	case string:
		sb.WriteString(strconv.Quote(t))
	case float64:
		sb.WriteString(strconv.FormatFloat(t, 'g', -1, 64))
	case int:
		sb.WriteString(strconv.Itoa(t))
	default:
		sb.WriteString(strconv.Quote(strings.TrimSpace(stringify(v))))
	}
}
