// Package compiler lowers an L 'ast.Module' to VM tokens, one VMToken
// stream per class, following the three compilation passes described by
// the language specification: type registration, field layout, then method
// compilation.
package compiler

import (
	"fmt"

	"github.com/vlctools/vlc/pkg/ast"
	"github.com/vlctools/vlc/pkg/types"
	"github.com/vlctools/vlc/pkg/vmlang"
)

// Compiler holds the whole-module state shared by every method compiled
// from it: the type table and the statics table, plus a name→decl index
// used to tell a class reference apart from a variable reference during
// dot resolution.
type Compiler struct {
	module  *ast.Module
	types   *types.ObjectTypeTable
	statics *types.StaticsTable
	classes map[string]*ast.ClassDecl
}

func NewCompiler(m *ast.Module) *Compiler {
	return &Compiler{
		module:  m,
		types:   types.NewObjectTypeTable(),
		statics: types.NewStaticsTable(),
		classes: map[string]*ast.ClassDecl{},
	}
}

// Compile runs all three passes and returns one VMToken stream per class.
func (c *Compiler) Compile() (map[string][]vmlang.VMToken, error) {
	if err := c.registerTypes(); err != nil {
		return nil, err
	}
	if err := c.layoutFields(); err != nil {
		return nil, err
	}

	out := map[string][]vmlang.VMToken{}
	for _, class := range c.module.Classes {
		tokens, err := c.compileClass(class)
		if err != nil {
			return nil, fmt.Errorf("class %q: %w", class.Name, err)
		}
		out[class.Name] = tokens
	}
	return out, nil
}

// Pass 1 — register every class as an (initially empty) ObjectType so that
// forward references (a field whose type is a class declared later in the
// module) resolve during pass 2.
func (c *Compiler) registerTypes() error {
	for _, class := range c.module.Classes {
		if _, found := c.classes[class.Name]; found {
			return errf(DuplicateName, "class %q declared twice", class.Name)
		}
		c.classes[class.Name] = class
		c.types.Register(class.Name)
	}
	return nil
}

// Pass 2 — lay out each class's fields: static fields get the next global
// static index, instance fields get the next per-class field index. Field
// names are unique across both scopes within one class.
func (c *Compiler) layoutFields() error {
	for _, class := range c.module.Classes {
		classType, _ := c.types.Type(class.Name)
		seen := map[string]bool{}
		constructors := 0

		for _, field := range class.Fields {
			if seen[field.Name] {
				return errf(DuplicateName, "field %q already declared on class %q", field.Name, class.Name)
			}
			seen[field.Name] = true

			typeID, found := c.types.TypeID(field.TypeName)
			if !found {
				return errf(UnknownType, "field %q on class %q has unknown type %q", field.Name, class.Name, field.TypeName)
			}

			switch field.Scope {
			case ast.Static:
				c.statics.Declare(class.Name, field.Name, typeID)
			case ast.Instance:
				if _, err := classType.AddField(field.Name, typeID); err != nil {
					return err
				}
			}
		}

		for _, method := range class.Methods {
			if method.IsConstructor {
				constructors++
			}
		}
		if constructors > 1 {
			return errf(ConstructorDeclaredTwice, "class %q declares more than one constructor", class.Name)
		}
	}
	return nil
}

func (c *Compiler) compileClass(class *ast.ClassDecl) ([]vmlang.VMToken, error) {
	var tokens []vmlang.VMToken
	for i := range class.Methods {
		methodTokens, err := c.compileMethod(class, &class.Methods[i])
		if err != nil {
			return nil, fmt.Errorf("method %q: %w", class.Methods[i].Name, err)
		}
		tokens = append(tokens, methodTokens...)
	}
	return tokens, nil
}

func (c *Compiler) compileMethod(class *ast.ClassDecl, method *ast.MethodDecl) ([]vmlang.VMToken, error) {
	classType, _ := c.types.Type(class.Name)
	ns := NewNamespace(class.Name, classType, c.types, c.statics)
	mc := &methodCompiler{compiler: c, class: class, ns: ns}

	var prologue []vmlang.VMToken
	isInstance := !method.IsConstructor && method.Scope == ast.Instance

	if isInstance {
		if _, err := ns.DeclareParam("this", class.Name, classType.ID); err != nil {
			return nil, err
		}
		prologue = append(prologue,
			vmlang.MemoryOp{Op: vmlang.Push, Segment: vmlang.Argument, Index: 0},
			vmlang.MemoryOp{Op: vmlang.Pop, Segment: vmlang.Pointer, Index: 0},
		)
	}

	if method.IsConstructor {
		prologue = append(prologue,
			vmlang.MemoryOp{Op: vmlang.Push, Segment: vmlang.Constant, Index: uint16(classType.NumFields())},
			vmlang.CallOp{Name: "Memory.alloc", NumArgs: 1},
			vmlang.MemoryOp{Op: vmlang.Pop, Segment: vmlang.Pointer, Index: 0},
		)
	}

	for _, param := range method.Parameters {
		typeID, found := c.types.TypeID(param.TypeName)
		if !found {
			return nil, errf(UnknownType, "parameter %q has unknown type %q", param.Name, param.TypeName)
		}
		if _, err := ns.DeclareParam(param.Name, param.TypeName, typeID); err != nil {
			return nil, err
		}
	}

	bodyTokens, err := mc.compileBlock(method.Body)
	if err != nil {
		return nil, err
	}

	if method.IsConstructor {
		bodyTokens = append(bodyTokens,
			vmlang.MemoryOp{Op: vmlang.Push, Segment: vmlang.Pointer, Index: 0},
			vmlang.ReturnOp{},
		)
	}

	funcName := class.Name + "." + method.Name
	out := make([]vmlang.VMToken, 0, 1+len(prologue)+len(bodyTokens))
	out = append(out, vmlang.FuncDecl{Name: funcName, NumLocals: ns.NumLocals()})
	out = append(out, prologue...)
	out = append(out, bodyTokens...)
	return out, nil
}
