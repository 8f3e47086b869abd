// Package types holds the two global tables built during compilation: the
// ObjectTypeTable (class layouts) and the StaticsTable (global static
// storage), plus the MemRef triple every resolved name reduces to.
package types

import (
	"fmt"

	"github.com/vlctools/vlc/pkg/utils"
	"github.com/vlctools/vlc/pkg/vmlang"
)

// MemRef uniquely identifies a storage location and its declared type: a
// segment, an index within that segment, and the type id of the value
// stored there.
type MemRef struct {
	Segment vmlang.Segment
	Index   uint16
	TypeID  int
}

// FieldSlot is an instance field's position within its ObjectType: the type
// of the field and its index in the This/That segment.
type FieldSlot struct {
	TypeID int
	Index  uint16
}

// ObjectType is one registered class (or built-in) and its instance field
// layout, in declaration order.
type ObjectType struct {
	Name   string
	ID     int
	fields *utils.OrderedMap[string, FieldSlot]
}

// AddField appends 'name' as the next instance field and returns its index.
func (ot *ObjectType) AddField(name string, typeID int) (uint16, error) {
	if ot.fields.Has(name) {
		return 0, fmt.Errorf("field %q already declared on %q", name, ot.Name)
	}
	idx := uint16(ot.fields.Size())
	ot.fields.Set(name, FieldSlot{TypeID: typeID, Index: idx})
	return idx, nil
}

// Field looks up an instance field by name.
func (ot *ObjectType) Field(name string) (FieldSlot, bool) {
	return ot.fields.Get(name)
}

// NumFields returns how many instance fields this type declares.
func (ot *ObjectType) NumFields() int { return ot.fields.Size() }

// Built-in type names, registered first so they reserve ids 0 and 1.
const (
	Number = "number"
	Bool   = "bool"
)

// ObjectTypeTable is the ordered mapping type_name → ObjectType. Type ids
// are assigned sequentially as types are registered and remain stable for
// the table's lifetime.
type ObjectTypeTable struct {
	byName *utils.OrderedMap[string, *ObjectType]
}

// NewObjectTypeTable returns a table with "number" and "bool" already
// registered, reserving ids 0 and 1 as required by spec.
func NewObjectTypeTable() *ObjectTypeTable {
	t := &ObjectTypeTable{byName: utils.NewOrderedMap[string, *ObjectType]()}
	t.Register(Number)
	t.Register(Bool)
	return t
}

// Register adds 'name' as a new type if it isn't already known and returns
// its id either way (registering twice is a no-op, not an error — classes
// are pre-declared in pass 1 before their fields are known).
func (t *ObjectTypeTable) Register(name string) int {
	if idx, found := t.byName.Index(name); found {
		return idx
	}
	idx := t.byName.Size()
	t.byName.Set(name, &ObjectType{Name: name, ID: idx, fields: utils.NewOrderedMap[string, FieldSlot]()})
	return idx
}

// TypeID returns the id assigned to 'name', if registered.
func (t *ObjectTypeTable) TypeID(name string) (int, bool) {
	return t.byName.Index(name)
}

// Type returns the ObjectType registered under 'name'.
func (t *ObjectTypeTable) Type(name string) (*ObjectType, bool) {
	return t.byName.Get(name)
}

// TypeByID returns the ObjectType registered with the given id.
func (t *ObjectTypeTable) TypeByID(id int) (*ObjectType, bool) {
	entries := t.byName.Entries()
	if id < 0 || id >= len(entries) {
		return nil, false
	}
	return entries[id].Value, true
}

// StaticsTable assigns a globally-unique static index to each
// (class, field) pair declared with static scope.
type StaticsTable struct {
	entries *utils.OrderedMap[string, MemRef]
	next    uint16
}

func NewStaticsTable() *StaticsTable {
	return &StaticsTable{entries: utils.NewOrderedMap[string, MemRef]()}
}

func staticsKey(class, field string) string { return class + "." + field }

// Declare allocates the next global static index for (class, field) and
// records its MemRef. Calling Declare twice for the same pair is a caller
// bug (duplicate fields are rejected earlier, in pass 2); it simply
// overwrites in that case.
func (s *StaticsTable) Declare(class, field string, typeID int) MemRef {
	ref := MemRef{Segment: vmlang.Static, Index: s.next, TypeID: typeID}
	s.next++
	s.entries.Set(staticsKey(class, field), ref)
	return ref
}

// Lookup returns the MemRef previously declared for (class, field).
func (s *StaticsTable) Lookup(class, field string) (MemRef, bool) {
	return s.entries.Get(staticsKey(class, field))
}

// Count returns the number of static slots allocated so far.
func (s *StaticsTable) Count() uint16 { return s.next }
