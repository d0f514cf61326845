package payload

import "testing"

func TestBoundaryWrap(t *testing.T) {
	t.Parallel()
	tests := []struct {
		b    Boundary
		core string
		want string
	}{
		{Boundary{"'", "-- -"}, "and 0 = 0", "' and 0 = 0 -- -"},
		{Boundary{"", ""}, "union select 1", " union select 1"},
		{Boundary{")", "#"}, "", ") #"},
	}
	for _, tt := range tests {
		if got := tt.b.Wrap(tt.core).String(); got != tt.want {
			t.Errorf("Wrap(%q) = %q, want %q", tt.core, got, tt.want)
		}
	}
}
