package compiler

import (
	"github.com/vlctools/vlc/pkg/types"
	"github.com/vlctools/vlc/pkg/vmlang"
)

// boundName is what a Namespace remembers about a declared parameter or
// local: where it lives, and the type name it was declared with (needed by
// dot resolution, which looks fields up on the *declared* type).
type boundName struct {
	ref      types.MemRef
	typeName string
}

// Namespace is the per-method scope: locals and parameters, resolved in
// that order, then falling through to the enclosing class's instance
// fields and finally to the module's statics. It is a single
// per-method-compile object rather than a push/pop stack, since this
// repository compiles one method at a time rather than walking a shared
// mutable table.
type Namespace struct {
	class      *types.ObjectType
	classTypes *types.ObjectTypeTable
	statics    *types.StaticsTable
	className  string

	locals map[string]boundName
	params map[string]boundName
	order  []string // insertion order, parameters first then locals
}

func NewNamespace(className string, class *types.ObjectType, classTypes *types.ObjectTypeTable, statics *types.StaticsTable) *Namespace {
	return &Namespace{
		class:      class,
		classTypes: classTypes,
		statics:    statics,
		className:  className,
		locals:     map[string]boundName{},
		params:     map[string]boundName{},
	}
}

// DeclareParam binds 'name' to the next Argument slot. Instance methods
// must call this once for the implicit receiver before binding the
// declared parameter list (see Compiler.compileMethod).
func (ns *Namespace) DeclareParam(name, typeName string, typeID int) (types.MemRef, error) {
	if _, found := ns.params[name]; found {
		return types.MemRef{}, errf(DuplicateName, "parameter %q already declared", name)
	}
	ref := types.MemRef{Segment: vmlang.Argument, Index: uint16(len(ns.params)), TypeID: typeID}
	ns.params[name] = boundName{ref: ref, typeName: typeName}
	ns.order = append(ns.order, name)
	return ref, nil
}

// DeclareLocal binds 'name' to the next Local slot.
func (ns *Namespace) DeclareLocal(name, typeName string, typeID int) (types.MemRef, error) {
	if _, found := ns.locals[name]; found {
		return types.MemRef{}, errf(DuplicateName, "local %q already declared", name)
	}
	ref := types.MemRef{Segment: vmlang.Local, Index: uint16(len(ns.locals)), TypeID: typeID}
	ns.locals[name] = boundName{ref: ref, typeName: typeName}
	ns.order = append(ns.order, name)
	return ref, nil
}

// NumLocals reports how many Local slots have been allocated so far; used
// to size the emitted Function token once the whole body has compiled.
func (ns *Namespace) NumLocals() uint16 { return uint16(len(ns.locals)) }

// Resolve looks a bare identifier up: locals, then parameters, then the
// class's own instance fields (the "this" field is implicit — bare field
// access is legal without writing "this." explicitly), then the module's
// statics for the current class.
func (ns *Namespace) Resolve(name string) (types.MemRef, string, error) {
	if b, found := ns.locals[name]; found {
		return b.ref, b.typeName, nil
	}
	if b, found := ns.params[name]; found {
		return b.ref, b.typeName, nil
	}
	if ns.class != nil {
		if field, found := ns.class.Field(name); found {
			typeName := typeNameOf(ns.classTypes, field.TypeID)
			return types.MemRef{Segment: vmlang.This, Index: field.Index, TypeID: field.TypeID}, typeName, nil
		}
	}
	if ref, found := ns.statics.Lookup(ns.className, name); found {
		return ref, typeNameOf(ns.classTypes, ref.TypeID), nil
	}
	return types.MemRef{}, "", errf(UndeclaredName, "name %q is not declared in the current scope", name)
}

// DeclaredType returns the declared type name of 'name' without resolving
// its storage location; used when 'name' is the left side of a dot and we
// only need to know which class's field table to consult.
func (ns *Namespace) DeclaredType(name string) (string, bool) {
	if b, found := ns.locals[name]; found {
		return b.typeName, true
	}
	if b, found := ns.params[name]; found {
		return b.typeName, true
	}
	if ns.class != nil {
		if field, found := ns.class.Field(name); found {
			return typeNameOf(ns.classTypes, field.TypeID), true
		}
	}
	return "", false
}

func typeNameOf(tt *types.ObjectTypeTable, typeID int) string {
	if ot, found := tt.TypeByID(typeID); found {
		return ot.Name
	}
	return ""
}
