package goja

import (
	"fmt"
	"math"
	"sort"
	"sync/atomic"

	"github.com/dop251/goja"
	"github.com/dop251/goja/ast"

	"github.com/reglet-dev/scripthost/domain/entities"
	"github.com/reglet-dev/scripthost/domain/ports"
)

var _ ports.ScriptModule = (*Module)(nil)

// function is a top-level script function.
type function struct {
	module *Module
	name   string
	id     entities.FuncID
	params int
	rest   bool
}

func (f *function) accepts(n int) bool {
	return n == f.params || f.rest && n >= f.params
}

// Module is a compiled script module.
type Module struct {
	program   *goja.Program
	functions map[string]*function
	name      string
	globals   []entities.GlobalVar
	discarded atomic.Bool
}

func (m *Module) Name() string { return m.name }

// Function resolves a top-level function by name and parameter count.
func (m *Module) Function(decl entities.Declaration) (entities.FuncID, bool) {
	if m.discarded.Load() {
		return 0, false
	}
	fn, ok := m.functions[decl.Name]
	if !ok || !fn.accepts(len(decl.Params)) {
		return 0, false
	}
	return fn.id, true
}

func (m *Module) Functions() []string {
	names := make([]string, 0, len(m.functions))
	for name := range m.functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m *Module) Globals() []entities.GlobalVar {
	return append([]entities.GlobalVar(nil), m.globals...)
}

// discover collects top-level functions, module-scope variables and class
// fields from the parsed program. Variable types are inferred from their
// initializers; a variable without one has type "var".
func discover(m *Module, prg *ast.Program, warn func(string)) {
	addFunc := func(name string, params *ast.ParameterList) {
		if _, dup := m.functions[name]; dup {
			warn(fmt.Sprintf("function %s is declared more than once; the last declaration wins", name))
		}
		fn := &function{module: m, name: name}
		if params != nil {
			fn.params = len(params.List)
			fn.rest = params.Rest != nil
		}
		m.functions[name] = fn
	}

	addBindings := func(list []*ast.Binding) {
		for _, b := range list {
			id, ok := b.Target.(*ast.Identifier)
			if !ok {
				continue
			}
			name := id.Name.String()
			switch init := b.Initializer.(type) {
			case *ast.FunctionLiteral:
				addFunc(name, init.ParameterList)
				continue
			case *ast.ArrowFunctionLiteral:
				addFunc(name, init.ParameterList)
				continue
			}
			m.globals = append(m.globals, entities.GlobalVar{Name: name, Type: inferType(b.Initializer)})
		}
	}

	for _, stmt := range prg.Body {
		switch s := stmt.(type) {
		case *ast.FunctionDeclaration:
			if s.Function.Name != nil {
				addFunc(s.Function.Name.Name.String(), s.Function.ParameterList)
			}
		case *ast.VariableStatement:
			addBindings(s.List)
		case *ast.LexicalDeclaration:
			addBindings(s.List)
		case *ast.ClassDeclaration:
			if s.Class.Name == nil {
				continue
			}
			owner := s.Class.Name.Name.String()
			for _, el := range s.Class.Body {
				field, ok := el.(*ast.FieldDefinition)
				if !ok || field.Computed {
					continue
				}
				m.globals = append(m.globals, entities.GlobalVar{
					Owner: owner,
					Name:  fieldName(field.Key),
					Type:  inferType(field.Initializer),
				})
			}
		}
	}
}

func fieldName(key ast.Expression) string {
	switch k := key.(type) {
	case *ast.StringLiteral:
		return k.Value.String()
	case *ast.PrivateIdentifier:
		return "#" + k.Name.String()
	case *ast.Identifier:
		return k.Name.String()
	case *ast.NumberLiteral:
		return k.Literal
	default:
		return "?"
	}
}

// inferType maps an initializer expression to a declared-type name.
// Constructed objects take their constructor's name, arrays become
// array<T> after their first element.
func inferType(expr ast.Expression) entities.TypeRef {
	switch e := expr.(type) {
	case nil:
		return entities.TypeRef{Name: "var"}
	case *ast.NumberLiteral:
		switch v := e.Value.(type) {
		case int64:
			return entities.TypeRef{Name: "int"}
		case float64:
			if v == math.Trunc(v) && !math.IsInf(v, 0) {
				return entities.TypeRef{Name: "int"}
			}
		}
		return entities.TypeRef{Name: "double"}
	case *ast.UnaryExpression:
		if _, ok := e.Operand.(*ast.NumberLiteral); ok {
			return inferType(e.Operand)
		}
		return entities.TypeRef{Name: "var"}
	case *ast.StringLiteral, *ast.TemplateLiteral:
		return entities.TypeRef{Name: "string"}
	case *ast.BooleanLiteral:
		return entities.TypeRef{Name: "bool"}
	case *ast.NullLiteral:
		return entities.TypeRef{Name: "null"}
	case *ast.ArrayLiteral:
		elem := entities.TypeRef{Name: "var"}
		if len(e.Value) > 0 {
			elem = inferType(e.Value[0])
		}
		return entities.TypeRef{Name: "array", Args: []entities.TypeRef{elem}}
	case *ast.ObjectLiteral:
		return entities.TypeRef{Name: "dictionary"}
	case *ast.NewExpression:
		if id, ok := e.Callee.(*ast.Identifier); ok {
			t := entities.TypeRef{Name: id.Name.String(), Handle: true}
			if t.Name == "Array" && len(e.ArgumentList) > 0 {
				return entities.TypeRef{Name: "array", Args: []entities.TypeRef{{Name: "var"}}}
			}
			return t
		}
		return entities.TypeRef{Name: "object", Handle: true}
	case *ast.FunctionLiteral, *ast.ArrowFunctionLiteral:
		return entities.TypeRef{Name: "function"}
	case *ast.ClassLiteral:
		return entities.TypeRef{Name: "class"}
	default:
		return entities.TypeRef{Name: "var"}
	}
}
