package registry

import "testing"

func TestAuthRequiredDefaultsTrueWhenUnset(t *testing.T) {
	m := Metadata{}
	if !m.AuthRequired() {
		t.Fatal("expected AuthRequired to default true when RequiresAuth is unset")
	}
}

func TestAuthRequiredHonorsExplicitFalse(t *testing.T) {
	f := false
	m := Metadata{RequiresAuth: &f}
	if m.AuthRequired() {
		t.Fatal("expected AuthRequired false when explicitly disabled")
	}
}

func TestAuthRequiredHonorsExplicitTrue(t *testing.T) {
	tr := true
	m := Metadata{RequiresAuth: &tr}
	if !m.AuthRequired() {
		t.Fatal("expected AuthRequired true when explicitly enabled")
	}
}
