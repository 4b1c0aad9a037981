package model

import "testing"

func TestSpecCloneIsIndependent(t *testing.T) {
	original := Spec{
		"objects": []any{
			map[string]any{"id": "rug_1", "material": "wool"},
		},
		"style": "rustic",
	}

	clone := original.Clone()
	obj, ok := clone.FindObject("rug_1")
	if !ok {
		t.Fatal("clone lost object")
	}
	obj["material"] = "jute"
	clone["style"] = "industrial"

	origObj, _ := original.FindObject("rug_1")
	if origObj["material"] != "wool" {
		t.Fatalf("clone mutation leaked into original object: %v", origObj)
	}
	if original["style"] != "rustic" {
		t.Fatalf("clone mutation leaked into original: %v", original)
	}
}

func TestCloneNilSpec(t *testing.T) {
	var s Spec
	if got := s.Clone(); got != nil {
		t.Fatalf("nil spec must clone to nil, got %v", got)
	}
}

func TestFindObjectMissing(t *testing.T) {
	s := Spec{"objects": []any{map[string]any{"id": "rug_1"}}}
	if _, ok := s.FindObject("rug_2"); ok {
		t.Fatal("found object that does not exist")
	}
}

func TestObjectsWithoutList(t *testing.T) {
	s := Spec{"style": "rustic"}
	if got := s.Objects(); len(got) != 0 {
		t.Fatalf("expected no objects, got %v", got)
	}
}
