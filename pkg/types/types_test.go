package types_test

import (
	"testing"

	"github.com/vlctools/vlc/pkg/types"
	"github.com/vlctools/vlc/pkg/vmlang"
)

func TestNewObjectTypeTableReservesBuiltinIDs(t *testing.T) {
	table := types.NewObjectTypeTable()

	numberID, ok := table.TypeID(types.Number)
	if !ok || numberID != 0 {
		t.Errorf("TypeID(number) = (%d, %v), want (0, true)", numberID, ok)
	}
	boolID, ok := table.TypeID(types.Bool)
	if !ok || boolID != 1 {
		t.Errorf("TypeID(bool) = (%d, %v), want (1, true)", boolID, ok)
	}
}

func TestObjectTypeTableRegisterIsIdempotent(t *testing.T) {
	table := types.NewObjectTypeTable()

	first := table.Register("Counter")
	second := table.Register("Counter")
	if first != second {
		t.Errorf("Register(\"Counter\") twice returned %d then %d, want equal ids", first, second)
	}
	if first != 2 {
		t.Errorf("Register(\"Counter\") = %d, want 2 (after the two built-ins)", first)
	}
}

func TestObjectTypeTableTypeByID(t *testing.T) {
	table := types.NewObjectTypeTable()
	id := table.Register("Counter")

	ot, ok := table.TypeByID(id)
	if !ok {
		t.Fatal("TypeByID(id) = not found")
	}
	if ot.Name != "Counter" {
		t.Errorf("TypeByID(id).Name = %q, want %q", ot.Name, "Counter")
	}

	if _, ok := table.TypeByID(99); ok {
		t.Error("TypeByID(99) = found, want not found")
	}
}

func TestObjectTypeAddField(t *testing.T) {
	table := types.NewObjectTypeTable()
	id := table.Register("Counter")
	ot, _ := table.TypeByID(id)

	idx, err := ot.AddField("count", 0)
	if err != nil {
		t.Fatalf("AddField(count) error = %v", err)
	}
	if idx != 0 {
		t.Errorf("AddField(count) index = %d, want 0", idx)
	}

	idx, err = ot.AddField("limit", 0)
	if err != nil {
		t.Fatalf("AddField(limit) error = %v", err)
	}
	if idx != 1 {
		t.Errorf("AddField(limit) index = %d, want 1", idx)
	}
	if ot.NumFields() != 2 {
		t.Errorf("NumFields() = %d, want 2", ot.NumFields())
	}

	slot, ok := ot.Field("count")
	if !ok || slot.Index != 0 {
		t.Errorf("Field(count) = (%#v, %v), want index 0", slot, ok)
	}
}

func TestObjectTypeAddFieldRejectsDuplicate(t *testing.T) {
	table := types.NewObjectTypeTable()
	id := table.Register("Counter")
	ot, _ := table.TypeByID(id)

	if _, err := ot.AddField("count", 0); err != nil {
		t.Fatalf("first AddField(count) error = %v", err)
	}
	if _, err := ot.AddField("count", 0); err == nil {
		t.Fatal("second AddField(count) error = nil, want duplicate-field error")
	}
}

func TestStaticsTableDeclareAssignsSequentialIndices(t *testing.T) {
	table := types.NewStaticsTable()

	first := table.Declare("Main", "total", 0)
	second := table.Declare("Main", "count", 0)

	if first.Segment != vmlang.Static || second.Segment != vmlang.Static {
		t.Fatalf("Declare() segments = %v, %v, want both vmlang.Static", first.Segment, second.Segment)
	}
	if first.Index != 0 || second.Index != 1 {
		t.Errorf("Declare() indices = %d, %d, want 0, 1", first.Index, second.Index)
	}
	if table.Count() != 2 {
		t.Errorf("Count() = %d, want 2", table.Count())
	}
}

func TestStaticsTableLookup(t *testing.T) {
	table := types.NewStaticsTable()
	want := table.Declare("Main", "total", 0)

	got, ok := table.Lookup("Main", "total")
	if !ok {
		t.Fatal("Lookup(Main, total) = not found")
	}
	if got != want {
		t.Errorf("Lookup(Main, total) = %#v, want %#v", got, want)
	}

	if _, ok := table.Lookup("Main", "missing"); ok {
		t.Error("Lookup(Main, missing) = found, want not found")
	}
}
