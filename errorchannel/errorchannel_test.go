package errorchannel

import "testing"

func TestErrorFormatsSourceAttribution(t *testing.T) {
	err := New(TypeMismatch, "triangle.shd", 12, "bar = foo + index.x", "foo", "index.x")

	got := err.Error()
	const want = "TypeMismatch at triangle.shd:12: bar = foo + index.x\nvariables: foo, index.x"
	if got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
}

func TestErrorNoVariables(t *testing.T) {
	err := New(Internal, "a.shd", 1, "co_binop add")
	got := err.Error()
	const want = "Internal at a.shd:1: co_binop add\nvariables: "
	if got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
}

func TestKindString(t *testing.T) {
	cases := map[Kind]string{
		UnresolvedName:      "UnresolvedName",
		BadCall:             "BadCall",
		TypeMismatch:        "TypeMismatch",
		UnsupportedTupleUse: "UnsupportedTupleUse",
		BindingConflict:     "BindingConflict",
		UnsupportedFeature:  "UnsupportedFeature",
		Internal:            "Internal",
	}
	for k, want := range cases {
		if got := k.String(); got != want {
			t.Errorf("Kind(%d).String() = %q, want %q", k, got, want)
		}
	}
}
