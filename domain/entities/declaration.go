package entities

import (
	"fmt"
	"strings"
	"unicode"
)

// TypeKind classifies a declared type for argument coercion.
type TypeKind int

const (
	KindVoid TypeKind = iota
	KindBool
	KindInt
	KindUint
	KindFloat
	KindString
	KindRef
)

var kindNames = [...]string{"void", "bool", "int", "uint", "float", "string", "ref"}

func (k TypeKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

var primitiveKinds = map[string]TypeKind{
	"void":   KindVoid,
	"bool":   KindBool,
	"int":    KindInt,
	"int8":   KindInt,
	"int16":  KindInt,
	"int32":  KindInt,
	"int64":  KindInt,
	"uint":   KindUint,
	"uint8":  KindUint,
	"uint16": KindUint,
	"uint32": KindUint,
	"uint64": KindUint,
	"float":  KindFloat,
	"double": KindFloat,
	"string": KindString,
}

// TypeRef is a declared type such as "uint", "Critter@" or "array<int>".
type TypeRef struct {
	Name   string
	Args   []TypeRef
	Const  bool
	Handle bool
	Ref    bool
}

// Kind returns the coercion class of the type.
func (t TypeRef) Kind() TypeKind {
	if len(t.Args) == 0 && !t.Handle {
		if k, ok := primitiveKinds[t.Name]; ok {
			return k
		}
	}
	return KindRef
}

// IsTemplate reports whether the type has template arguments.
func (t TypeRef) IsTemplate() bool { return len(t.Args) > 0 }

func (t TypeRef) String() string {
	var b strings.Builder
	if t.Const {
		b.WriteString("const ")
	}
	b.WriteString(t.Name)
	if len(t.Args) > 0 {
		b.WriteByte('<')
		for i, a := range t.Args {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(a.String())
		}
		b.WriteByte('>')
	}
	if t.Handle {
		b.WriteByte('@')
	}
	if t.Ref {
		b.WriteByte('&')
	}
	return b.String()
}

// Declaration is a parsed function signature.
type Declaration struct {
	Return TypeRef
	Name   string
	Params []TypeRef
}

// String returns the normalized form, e.g. "int Attack(uint,uint)".
func (d Declaration) String() string {
	params := make([]string, len(d.Params))
	for i, p := range d.Params {
		params[i] = p.String()
	}
	return fmt.Sprintf("%s %s(%s)", d.Return, d.Name, strings.Join(params, ","))
}

// ParseDeclaration parses a function declaration such as
// "int Attack(uint attacker, uint target)". Parameter names are optional
// and discarded; a lone "void" parameter list means no parameters.
func ParseDeclaration(s string) (Declaration, error) {
	p := &declParser{src: s}
	p.next()

	ret, err := p.parseType()
	if err != nil {
		return Declaration{}, p.errorf("return type: %v", err)
	}
	if p.tok.kind != tokIdent {
		return Declaration{}, p.errorf("expected function name, got %q", p.tok.text)
	}
	decl := Declaration{Return: ret, Name: p.tok.text}
	p.next()

	if !p.accept("(") {
		return Declaration{}, p.errorf("expected '(' after %s", decl.Name)
	}
	for !p.accept(")") {
		if len(decl.Params) > 0 && !p.accept(",") {
			return Declaration{}, p.errorf("expected ',' or ')', got %q", p.tok.text)
		}
		param, err := p.parseType()
		if err != nil {
			return Declaration{}, p.errorf("parameter %d: %v", len(decl.Params)+1, err)
		}
		for _, mod := range []string{"in", "out", "inout"} {
			if p.tok.kind == tokIdent && p.tok.text == mod {
				p.next()
				break
			}
		}
		// Optional parameter name.
		if p.tok.kind == tokIdent {
			p.next()
		}
		decl.Params = append(decl.Params, param)
	}
	p.accept("const")
	if p.tok.kind != tokEOF {
		return Declaration{}, p.errorf("unexpected %q after parameter list", p.tok.text)
	}

	if len(decl.Params) == 1 && decl.Params[0].Name == "void" && decl.Params[0].Kind() == KindVoid {
		decl.Params = nil
	}
	for i, param := range decl.Params {
		if param.Kind() == KindVoid {
			return Declaration{}, fmt.Errorf("declaration %q: parameter %d is void", s, i+1)
		}
	}
	return decl, nil
}

// ParseType parses a standalone type expression.
func ParseType(s string) (TypeRef, error) {
	p := &declParser{src: s}
	p.next()
	t, err := p.parseType()
	if err != nil {
		return TypeRef{}, p.errorf("%v", err)
	}
	if p.tok.kind != tokEOF {
		return TypeRef{}, p.errorf("unexpected %q after type", p.tok.text)
	}
	return t, nil
}

type tokKind int

const (
	tokEOF tokKind = iota
	tokIdent
	tokSym
)

type token struct {
	kind tokKind
	text string
}

type declParser struct {
	src string
	pos int
	tok token
}

func (p *declParser) errorf(format string, args ...any) error {
	return fmt.Errorf("declaration %q: %s", p.src, fmt.Sprintf(format, args...))
}

func (p *declParser) next() {
	for p.pos < len(p.src) && unicode.IsSpace(rune(p.src[p.pos])) {
		p.pos++
	}
	if p.pos >= len(p.src) {
		p.tok = token{kind: tokEOF}
		return
	}
	c := rune(p.src[p.pos])
	if c == '_' || unicode.IsLetter(c) {
		start := p.pos
		for p.pos < len(p.src) {
			c := rune(p.src[p.pos])
			if c == '_' || c == ':' || unicode.IsLetter(c) || unicode.IsDigit(c) {
				p.pos++
				continue
			}
			break
		}
		p.tok = token{kind: tokIdent, text: p.src[start:p.pos]}
		return
	}
	p.pos++
	p.tok = token{kind: tokSym, text: string(c)}
}

func (p *declParser) accept(text string) bool {
	if p.tok.kind != tokEOF && p.tok.text == text {
		p.next()
		return true
	}
	return false
}

func (p *declParser) parseType() (TypeRef, error) {
	var t TypeRef
	if p.tok.kind == tokIdent && p.tok.text == "const" {
		t.Const = true
		p.next()
	}
	if p.tok.kind != tokIdent {
		if p.tok.kind == tokEOF {
			return TypeRef{}, fmt.Errorf("expected type, got end of input")
		}
		return TypeRef{}, fmt.Errorf("expected type, got %q", p.tok.text)
	}
	t.Name = p.tok.text
	p.next()

	if p.accept("<") {
		for {
			arg, err := p.parseType()
			if err != nil {
				return TypeRef{}, err
			}
			t.Args = append(t.Args, arg)
			if p.accept(">") {
				break
			}
			if !p.accept(",") {
				return TypeRef{}, fmt.Errorf("unterminated template arguments of %s", t.Name)
			}
		}
	}
	for {
		switch {
		case p.accept("@"):
			t.Handle = true
		case p.accept("&"):
			t.Ref = true
		default:
			return t, nil
		}
	}
}
