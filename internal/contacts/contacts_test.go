package contacts

import "testing"

func TestNationalHotline(t *testing.T) {
	n := National()
	if n.Number != "911" {
		t.Errorf("national hotline number = %q, want 911", n.Number)
	}
	if n.Name == "" {
		t.Error("national hotline has no name")
	}
}

func TestRegionalStartsWithNational(t *testing.T) {
	all := Regional()
	if len(all) < 2 {
		t.Fatalf("directory too short: %d entries", len(all))
	}
	if all[0].Number != "911" {
		t.Errorf("first entry = %q, want the national hotline", all[0].Number)
	}
	for i, c := range all {
		if c.Name == "" || c.Number == "" {
			t.Errorf("entry %d incomplete: %+v", i, c)
		}
	}
}

func TestRegionalReturnsCopy(t *testing.T) {
	a := Regional()
	a[1].Name = "mutated"
	b := Regional()
	if b[1].Name == "mutated" {
		t.Error("Regional returned shared backing data")
	}
}
