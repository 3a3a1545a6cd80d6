package typesys

import (
	"fmt"
	"strings"
)

// Expr is a parsed, unresolved type expression as written in source, such
// as "Result<List<Order>>" or "com.acme.Order[]".
type Expr struct {
	Name string // dotted name as written
	Args []Expr
	Dims int // array dimensions
}

// String renders the expression back to source form.
func (e Expr) String() string {
	var b strings.Builder
	b.WriteString(e.Name)
	if len(e.Args) > 0 {
		b.WriteByte('<')
		for i, a := range e.Args {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(a.String())
		}
		b.WriteByte('>')
	}
	for range e.Dims {
		b.WriteString("[]")
	}
	return b.String()
}

// ParseExpr parses a Java type expression. Annotations and wildcard bounds
// are dropped: "? extends Foo" parses as Foo and a bare "?" as Object.
func ParseExpr(src string) (Expr, error) {
	p := &exprParser{src: src}
	e, err := p.parseType()
	if err != nil {
		return Expr{}, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return Expr{}, fmt.Errorf("typesys: trailing input at %d in %q", p.pos, src)
	}
	return e, nil
}

type exprParser struct {
	src string
	pos int
}

func (p *exprParser) skipSpace() {
	for p.pos < len(p.src) {
		switch p.src[p.pos] {
		case ' ', '\t', '\n', '\r':
			p.pos++
		default:
			return
		}
	}
}

func (p *exprParser) peek() byte {
	p.skipSpace()
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func (p *exprParser) parseType() (Expr, error) {
	p.skipAnnotations()
	if p.peek() == '?' {
		p.pos++
		p.skipSpace()
		switch {
		case strings.HasPrefix(p.src[p.pos:], "extends"):
			p.pos += len("extends")
		case strings.HasPrefix(p.src[p.pos:], "super"):
			p.pos += len("super")
			// Lower bounds say nothing about the carried value.
			if _, err := p.parseType(); err != nil {
				return Expr{}, err
			}
			return Expr{Name: "Object"}, nil
		default:
			return Expr{Name: "Object"}, nil
		}
		return p.parseType()
	}

	name := p.ident()
	if name == "" {
		return Expr{}, fmt.Errorf("typesys: expected type name at %d in %q", p.pos, p.src)
	}
	e := Expr{Name: name}
	for {
		switch p.peek() {
		case '<':
			p.pos++
			for {
				arg, err := p.parseType()
				if err != nil {
					return Expr{}, err
				}
				e.Args = append(e.Args, arg)
				c := p.peek()
				if c == ',' {
					p.pos++
					continue
				}
				if c == '>' {
					p.pos++
					break
				}
				return Expr{}, fmt.Errorf("typesys: unterminated type arguments in %q", p.src)
			}
		case '.':
			// Qualified nested type after type arguments: Outer<T>.Inner
			p.pos++
			next := p.ident()
			if next == "" {
				return Expr{}, fmt.Errorf("typesys: expected name after '.' in %q", p.src)
			}
			e.Name += "." + next
			e.Args = nil
		case '[':
			p.pos++
			if p.peek() != ']' {
				return Expr{}, fmt.Errorf("typesys: expected ']' in %q", p.src)
			}
			p.pos++
			e.Dims++
		default:
			if strings.HasPrefix(p.src[p.pos:], "...") {
				p.pos += 3
				e.Dims++
				continue
			}
			return e, nil
		}
	}
}

// ident reads a dotted identifier.
func (p *exprParser) ident() string {
	p.skipSpace()
	start := p.pos
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if c == '_' || c == '$' || c == '.' && p.pos > start && !strings.HasPrefix(p.src[p.pos:], "...") ||
			c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c >= 0x80 {
			p.pos++
			continue
		}
		break
	}
	return strings.TrimSuffix(p.src[start:p.pos], ".")
}

func (p *exprParser) skipAnnotations() {
	for p.peek() == '@' {
		p.pos++
		p.ident()
		if p.peek() == '(' {
			depth := 0
			for p.pos < len(p.src) {
				c := p.src[p.pos]
				p.pos++
				if c == '(' {
					depth++
				} else if c == ')' {
					depth--
					if depth == 0 {
						break
					}
				}
			}
		}
	}
}
