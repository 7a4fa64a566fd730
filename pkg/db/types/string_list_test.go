package dbtypes

import "testing"

func TestStringListRoundTrip(t *testing.T) {
	in := StringList{"/uploads/a.png", "/uploads/b.png"}
	v, err := in.Value()
	if err != nil {
		t.Fatalf("Value: %v", err)
	}
	if v != `["/uploads/a.png","/uploads/b.png"]` {
		t.Fatalf("unexpected encoding %v", v)
	}

	var out StringList
	if err := out.Scan([]byte(v.(string))); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(out) != 2 || out[0] != in[0] || out[1] != in[1] {
		t.Fatalf("order not preserved: %v", out)
	}
}

func TestStringListNilAndEmpty(t *testing.T) {
	var nilList StringList
	if v, _ := nilList.Value(); v != "[]" {
		t.Fatalf("nil list should encode as [], got %v", v)
	}

	var out StringList
	if err := out.Scan(nil); err != nil || out == nil || len(out) != 0 {
		t.Fatalf("nil scan should produce empty list, got %v err %v", out, err)
	}
	if err := out.Scan(42); err == nil {
		t.Fatal("expected error for unsupported type")
	}
}
