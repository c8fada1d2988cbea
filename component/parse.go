package component

import (
	"fmt"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/wasm-host/component/internal/token"
	"github.com/wippyai/wasm-host/errors"
)

// ParseWorld parses a world from WIT text, as passed to WithWorld.
//
//	world hello-world {
//	  import name: func() -> string;
//	  import wasi:cli/stdout@0.2.0 {
//	    get-stdout: func() -> own<output-stream>;
//	  }
//	  export greet: func();
//	}
//
// Named WASI types such as stream-error, error-code and descriptor-type are
// predeclared and may be used without a declaration.
func ParseWorld(text string) (*World, error) {
	p := newParser(text)
	w, err := p.parseWorld()
	if err != nil {
		return nil, err
	}
	return w, nil
}

// ParseFuncType parses a function type such as
// "func(self: borrow<output-stream>, contents: list<u8>) -> result<_, stream-error>".
func ParseFuncType(text string) (*FuncType, error) {
	p := newParser(text)
	ft, err := p.parseFunc()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t != nil && t.Type == token.Semicolon {
		p.next()
	}
	if t := p.peek(); t != nil {
		return nil, errors.Syntax(t.Line, fmt.Sprintf("unexpected %q after function type", t.Value))
	}
	return ft, nil
}

// MustParseFuncType is ParseFuncType for signatures known at compile time.
func MustParseFuncType(text string) *FuncType {
	ft, err := ParseFuncType(text)
	if err != nil {
		panic(err)
	}
	return ft
}

type parser struct {
	tokens []token.Token
	scopes []map[string]wit.Type
	pos    int
}

func newParser(text string) *parser {
	return &parser{
		tokens: token.Tokenize(text),
		scopes: []map[string]wit.Type{prelude(), {}},
	}
}

func (p *parser) peek() *token.Token {
	if p.pos >= len(p.tokens) {
		return nil
	}
	return &p.tokens[p.pos]
}

func (p *parser) next() *token.Token {
	if p.pos >= len(p.tokens) {
		return nil
	}
	t := &p.tokens[p.pos]
	p.pos++
	return t
}

func (p *parser) line() int {
	if t := p.peek(); t != nil {
		return t.Line
	}
	if len(p.tokens) > 0 {
		return p.tokens[len(p.tokens)-1].Line
	}
	return 1
}

func (p *parser) expect(typ token.Type) (*token.Token, error) {
	t := p.next()
	if t == nil {
		return nil, errors.Syntax(p.line(), fmt.Sprintf("expected %v, got end of input", typ))
	}
	if t.Type != typ {
		return nil, errors.Syntax(t.Line, fmt.Sprintf("expected %v, got %q", typ, t.Value))
	}
	return t, nil
}

func (p *parser) expectKeyword(kw string) error {
	t, err := p.expect(token.Ident)
	if err != nil {
		return err
	}
	if t.Value != kw {
		return errors.Syntax(t.Line, fmt.Sprintf("expected %q, got %q", kw, t.Value))
	}
	return nil
}

// accept consumes the next token if it has type typ.
func (p *parser) accept(typ token.Type) bool {
	if t := p.peek(); t != nil && t.Type == typ {
		p.pos++
		return true
	}
	return false
}

func (p *parser) ident() (string, error) {
	t, err := p.expect(token.Ident)
	if err != nil {
		return "", err
	}
	if t.Value == "" {
		return "", errors.Syntax(t.Line, "empty identifier")
	}
	return t.Value, nil
}

func (p *parser) pushScope() { p.scopes = append(p.scopes, map[string]wit.Type{}) }
func (p *parser) popScope()  { p.scopes = p.scopes[:len(p.scopes)-1] }

func (p *parser) lookup(name string) (wit.Type, bool) {
	for i := len(p.scopes) - 1; i >= 0; i-- {
		if t, ok := p.scopes[i][name]; ok {
			return t, true
		}
	}
	return nil, false
}

func (p *parser) declare(line int, name string, t wit.Type) error {
	scope := p.scopes[len(p.scopes)-1]
	if _, dup := scope[name]; dup {
		return errors.Syntax(line, fmt.Sprintf("type %q declared twice", name))
	}
	scope[name] = t
	return nil
}

func (p *parser) parseWorld() (*World, error) {
	if t := p.peek(); t != nil && t.Type == token.Ident && t.Value == "package" {
		p.next()
		if _, err := p.ident(); err != nil {
			return nil, err
		}
		if p.accept(token.Colon) {
			if _, err := p.ident(); err != nil {
				return nil, err
			}
		}
		if _, err := p.expect(token.Semicolon); err != nil {
			return nil, err
		}
	}

	if err := p.expectKeyword("world"); err != nil {
		return nil, err
	}
	name, err := p.ident()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.LBrace); err != nil {
		return nil, err
	}

	w := &World{Name: name}
	seen := make(map[string]bool)
	for !p.accept(token.RBrace) {
		t := p.peek()
		if t == nil {
			return nil, errors.Syntax(p.line(), "unterminated world")
		}
		if t.Type != token.Ident {
			return nil, errors.Syntax(t.Line, fmt.Sprintf("unexpected %q", t.Value))
		}

		switch t.Value {
		case "import":
			p.next()
			imports, err := p.parseImport()
			if err != nil {
				return nil, err
			}
			for _, imp := range imports {
				key := "import " + imp.QualifiedName()
				if seen[key] {
					return nil, errors.Syntax(t.Line, fmt.Sprintf("import %q declared twice", imp.QualifiedName()))
				}
				seen[key] = true
			}
			w.Imports = append(w.Imports, imports...)
		case "export":
			p.next()
			exp, err := p.parseExport()
			if err != nil {
				return nil, err
			}
			if seen["export "+exp.Name] {
				return nil, errors.Syntax(t.Line, fmt.Sprintf("export %q declared twice", exp.Name))
			}
			seen["export "+exp.Name] = true
			w.Exports = append(w.Exports, exp)
		default:
			if err := p.parseTypeDecl(); err != nil {
				return nil, err
			}
		}
	}

	if t := p.peek(); t != nil {
		return nil, errors.Syntax(t.Line, fmt.Sprintf("unexpected %q after world", t.Value))
	}
	return w, nil
}

// parseImport handles "name: func(...)", "iface { ... }" and
// "name: interface { ... }".
func (p *parser) parseImport() ([]Import, error) {
	name, err := p.ident()
	if err != nil {
		return nil, err
	}

	if p.accept(token.Colon) {
		t := p.peek()
		switch {
		case t != nil && t.Type == token.Ident && t.Value == "interface":
			p.next()
			return p.parseInterface(name)
		case t != nil && t.Type == token.Ident && t.Value == "func":
			ft, err := p.parseFunc()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(token.Semicolon); err != nil {
				return nil, err
			}
			return []Import{{Name: name, Type: ft}}, nil
		}

		// Package-qualified interface: ns:pkg/iface@version.
		rest, err := p.ident()
		if err != nil {
			return nil, err
		}
		name += ":" + rest
	}

	if t := p.peek(); t != nil && t.Type == token.LBrace {
		return p.parseInterface(name)
	}
	return nil, errors.Syntax(p.line(), fmt.Sprintf("import %q needs a function type or interface body", name))
}

func (p *parser) parseInterface(iface string) ([]Import, error) {
	if _, err := p.expect(token.LBrace); err != nil {
		return nil, err
	}
	p.pushScope()
	defer p.popScope()

	var imports []Import
	for !p.accept(token.RBrace) {
		t := p.peek()
		if t == nil {
			return nil, errors.Syntax(p.line(), fmt.Sprintf("unterminated interface %q", iface))
		}
		if t.Type != token.Ident {
			return nil, errors.Syntax(t.Line, fmt.Sprintf("unexpected %q", t.Value))
		}
		if isDeclKeyword(t.Value) && !p.isFuncItem() {
			if err := p.parseTypeDecl(); err != nil {
				return nil, err
			}
			continue
		}

		name, err := p.ident()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.Colon); err != nil {
			return nil, err
		}
		ft, err := p.parseFunc()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.Semicolon); err != nil {
			return nil, err
		}
		imports = append(imports, Import{Interface: iface, Name: name, Type: ft})
	}
	return imports, nil
}

// isFuncItem reports whether the next tokens are "name: ..." rather than a
// type declaration that happens to start with the same word.
func (p *parser) isFuncItem() bool {
	return p.pos+1 < len(p.tokens) && p.tokens[p.pos+1].Type == token.Colon
}

func (p *parser) parseExport() (Export, error) {
	name, err := p.ident()
	if err != nil {
		return Export{}, err
	}
	if _, err := p.expect(token.Colon); err != nil {
		return Export{}, err
	}
	if t := p.peek(); t != nil && t.Type == token.Ident && t.Value == "interface" {
		return Export{}, errors.Syntax(t.Line, "interface exports are not supported")
	}
	ft, err := p.parseFunc()
	if err != nil {
		return Export{}, err
	}
	if _, err := p.expect(token.Semicolon); err != nil {
		return Export{}, err
	}
	return Export{Name: name, Type: ft}, nil
}

func (p *parser) parseFunc() (*FuncType, error) {
	if err := p.expectKeyword("func"); err != nil {
		return nil, err
	}
	if _, err := p.expect(token.LParen); err != nil {
		return nil, err
	}

	ft := &FuncType{}
	names := make(map[string]bool)
	for !p.accept(token.RParen) {
		line := p.line()
		name, err := p.ident()
		if err != nil {
			return nil, err
		}
		if names[name] {
			return nil, errors.Syntax(line, fmt.Sprintf("duplicate parameter %q", name))
		}
		names[name] = true
		if _, err := p.expect(token.Colon); err != nil {
			return nil, err
		}
		typ, err := p.parseType()
		if err != nil {
			return nil, err
		}
		ft.Params = append(ft.Params, Param{Name: name, Type: typ})
		if !p.accept(token.Comma) {
			if _, err := p.expect(token.RParen); err != nil {
				return nil, err
			}
			break
		}
	}

	if p.accept(token.Arrow) {
		if t := p.peek(); t != nil && t.Type == token.LParen {
			return nil, errors.Syntax(t.Line, "named results are not supported")
		}
		typ, err := p.parseType()
		if err != nil {
			return nil, err
		}
		ft.Results = []wit.Type{typ}
	}
	return ft, nil
}

func (p *parser) parseType() (wit.Type, error) {
	t, err := p.expect(token.Ident)
	if err != nil {
		return nil, err
	}

	switch t.Value {
	case "bool":
		return wit.Bool{}, nil
	case "u8":
		return wit.U8{}, nil
	case "u16":
		return wit.U16{}, nil
	case "u32":
		return wit.U32{}, nil
	case "u64":
		return wit.U64{}, nil
	case "s8":
		return wit.S8{}, nil
	case "s16":
		return wit.S16{}, nil
	case "s32":
		return wit.S32{}, nil
	case "s64":
		return wit.S64{}, nil
	case "f32", "float32":
		return wit.F32{}, nil
	case "f64", "float64":
		return wit.F64{}, nil
	case "char":
		return wit.Char{}, nil
	case "string":
		return wit.String{}, nil
	case "list":
		elem, err := p.parseGeneric1()
		if err != nil {
			return nil, err
		}
		return &wit.TypeDef{Kind: &wit.List{Type: elem}}, nil
	case "option":
		elem, err := p.parseGeneric1()
		if err != nil {
			return nil, err
		}
		return &wit.TypeDef{Kind: &wit.Option{Type: elem}}, nil
	case "result":
		return p.parseResult()
	case "tuple":
		return p.parseTuple()
	case "own", "borrow":
		if _, err := p.expect(token.LAngle); err != nil {
			return nil, err
		}
		res, err := p.resource()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.RAngle); err != nil {
			return nil, err
		}
		if t.Value == "own" {
			return &wit.TypeDef{Kind: &wit.Own{Type: res}}, nil
		}
		return &wit.TypeDef{Kind: &wit.Borrow{Type: res}}, nil
	}

	if typ, ok := p.lookup(t.Value); ok {
		return typ, nil
	}
	return nil, errors.Syntax(t.Line, fmt.Sprintf("unknown type %q", t.Value))
}

func (p *parser) parseGeneric1() (wit.Type, error) {
	if _, err := p.expect(token.LAngle); err != nil {
		return nil, err
	}
	typ, err := p.parseType()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.RAngle); err != nil {
		return nil, err
	}
	return typ, nil
}

// parseResult handles result, result<T>, result<_, E> and result<T, E>.
func (p *parser) parseResult() (wit.Type, error) {
	r := &wit.Result{}
	if !p.accept(token.LAngle) {
		return &wit.TypeDef{Kind: r}, nil
	}

	if !p.accept(token.Underscore) {
		ok, err := p.parseType()
		if err != nil {
			return nil, err
		}
		r.OK = ok
	}
	if p.accept(token.Comma) {
		e, err := p.parseType()
		if err != nil {
			return nil, err
		}
		r.Err = e
	} else if r.OK == nil {
		return nil, errors.Syntax(p.line(), "result<_> needs an error type")
	}
	if _, err := p.expect(token.RAngle); err != nil {
		return nil, err
	}
	return &wit.TypeDef{Kind: r}, nil
}

func (p *parser) parseTuple() (wit.Type, error) {
	if _, err := p.expect(token.LAngle); err != nil {
		return nil, err
	}
	tup := &wit.Tuple{}
	for {
		typ, err := p.parseType()
		if err != nil {
			return nil, err
		}
		tup.Types = append(tup.Types, typ)
		if !p.accept(token.Comma) {
			break
		}
	}
	if _, err := p.expect(token.RAngle); err != nil {
		return nil, err
	}
	return &wit.TypeDef{Kind: tup}, nil
}

// resource resolves a resource name, declaring it in the current scope on
// first use.
func (p *parser) resource() (*wit.TypeDef, error) {
	line := p.line()
	name, err := p.ident()
	if err != nil {
		return nil, err
	}
	if isBuiltin(name) {
		return nil, errors.Syntax(line, fmt.Sprintf("%q is not a resource", name))
	}
	if typ, ok := p.lookup(name); ok {
		td, isDef := typ.(*wit.TypeDef)
		if !isDef {
			return nil, errors.Syntax(line, fmt.Sprintf("%q is not a resource", name))
		}
		if _, isRes := td.Kind.(*wit.Resource); !isRes {
			return nil, errors.Syntax(line, fmt.Sprintf("%q is not a resource", name))
		}
		return td, nil
	}
	td := named(name, &wit.Resource{})
	return td, p.declare(line, name, td)
}

func isBuiltin(s string) bool {
	switch s {
	case "bool", "u8", "u16", "u32", "u64", "s8", "s16", "s32", "s64",
		"f32", "f64", "float32", "float64", "char", "string",
		"list", "option", "result", "tuple", "own", "borrow":
		return true
	}
	return false
}

func isDeclKeyword(s string) bool {
	switch s {
	case "type", "enum", "variant", "record", "flags", "resource":
		return true
	}
	return false
}

func (p *parser) parseTypeDecl() error {
	t := p.next()
	line := t.Line
	if !isDeclKeyword(t.Value) {
		return errors.Syntax(line, fmt.Sprintf("unexpected %q", t.Value))
	}
	name, err := p.ident()
	if err != nil {
		return err
	}

	var kind wit.TypeDefKind
	switch t.Value {
	case "type":
		if _, err := p.expect(token.Equals); err != nil {
			return err
		}
		target, err := p.parseType()
		if err != nil {
			return err
		}
		if _, err := p.expect(token.Semicolon); err != nil {
			return err
		}
		kind = target
	case "resource":
		if _, err := p.expect(token.Semicolon); err != nil {
			return err
		}
		kind = &wit.Resource{}
	case "enum":
		cases, err := p.parseNames()
		if err != nil {
			return err
		}
		e := &wit.Enum{}
		for _, c := range cases {
			e.Cases = append(e.Cases, wit.EnumCase{Name: c})
		}
		kind = e
	case "flags":
		names, err := p.parseNames()
		if err != nil {
			return err
		}
		f := &wit.Flags{}
		for _, n := range names {
			f.Flags = append(f.Flags, wit.Flag{Name: n})
		}
		kind = f
	case "variant":
		v, err := p.parseVariantBody()
		if err != nil {
			return err
		}
		kind = v
	case "record":
		r, err := p.parseRecordBody()
		if err != nil {
			return err
		}
		kind = r
	}

	return p.declare(line, name, named(name, kind))
}

// parseNames parses "{ a, b, c }" with an optional trailing comma.
func (p *parser) parseNames() ([]string, error) {
	if _, err := p.expect(token.LBrace); err != nil {
		return nil, err
	}
	var names []string
	for !p.accept(token.RBrace) {
		n, err := p.ident()
		if err != nil {
			return nil, err
		}
		names = append(names, n)
		if !p.accept(token.Comma) {
			if _, err := p.expect(token.RBrace); err != nil {
				return nil, err
			}
			break
		}
	}
	if len(names) == 0 {
		return nil, errors.Syntax(p.line(), "empty case list")
	}
	return names, nil
}

func (p *parser) parseVariantBody() (*wit.Variant, error) {
	if _, err := p.expect(token.LBrace); err != nil {
		return nil, err
	}
	v := &wit.Variant{}
	for !p.accept(token.RBrace) {
		name, err := p.ident()
		if err != nil {
			return nil, err
		}
		c := wit.Case{Name: name}
		if p.accept(token.LParen) {
			typ, err := p.parseType()
			if err != nil {
				return nil, err
			}
			c.Type = typ
			if _, err := p.expect(token.RParen); err != nil {
				return nil, err
			}
		}
		v.Cases = append(v.Cases, c)
		if !p.accept(token.Comma) {
			if _, err := p.expect(token.RBrace); err != nil {
				return nil, err
			}
			break
		}
	}
	if len(v.Cases) == 0 {
		return nil, errors.Syntax(p.line(), "variant has no cases")
	}
	return v, nil
}

func (p *parser) parseRecordBody() (*wit.Record, error) {
	if _, err := p.expect(token.LBrace); err != nil {
		return nil, err
	}
	r := &wit.Record{}
	for !p.accept(token.RBrace) {
		name, err := p.ident()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.Colon); err != nil {
			return nil, err
		}
		typ, err := p.parseType()
		if err != nil {
			return nil, err
		}
		r.Fields = append(r.Fields, wit.Field{Name: name, Type: typ})
		if !p.accept(token.Comma) {
			if _, err := p.expect(token.RBrace); err != nil {
				return nil, err
			}
			break
		}
	}
	return r, nil
}

func named(name string, kind wit.TypeDefKind) *wit.TypeDef {
	return &wit.TypeDef{Name: &name, Kind: kind}
}
