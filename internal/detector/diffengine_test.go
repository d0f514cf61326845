package detector

import (
	"strings"
	"testing"
)

func TestRatio(t *testing.T) {
	engine := NewDiffEngine()
	page := []byte("<html>\n<body>\n<h1>Results</h1>\n<p>3 items</p>\n</body>\n</html>")

	tests := []struct {
		name   string
		a, b   []byte
		lo, hi float64
	}{
		{"identical", page, page, 1, 1},
		{"both empty", nil, []byte{}, 1, 1},
		{"one empty", page, nil, 0, 0},
		{"completely different", []byte("aaaaaaaaaa"), []byte("bbbbbbbbbb"), 0, 0.2},
		{"one line changed", page, []byte(strings.Replace(string(page), "3 items", "0 items", 1)), 0.8, 0.9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := engine.Ratio(tt.a, tt.b)
			if r < tt.lo || r > tt.hi {
				t.Errorf("Ratio() = %f, want in [%f, %f]", r, tt.lo, tt.hi)
			}
		})
	}
}

func TestRatio_DynamicContentStripping(t *testing.T) {
	engine := NewDiffEngine()
	a := []byte("<p>ok</p>\ncsrf_token=abc123\n<span>1700000000</span>")
	b := []byte("<p>ok</p>\ncsrf_token=zzz999\n<span>1700000099</span>")
	if r := engine.Ratio(a, b); r != 1.0 {
		t.Errorf("Ratio() = %f, want 1.0 once tokens and timestamps are stripped", r)
	}
}

func TestIsDifferent(t *testing.T) {
	engine := NewDiffEngine()
	if engine.IsDifferent([]byte("same"), []byte("same"), 0.95) {
		t.Error("identical bodies reported different")
	}
	if !engine.IsDifferent([]byte("one\ntwo"), []byte("three\nfour"), 0.95) {
		t.Error("distinct bodies reported similar")
	}
}

func TestDistance(t *testing.T) {
	engine := NewDiffEngine()
	if d := engine.Distance([]byte("kitten"), []byte("sitting")); d != 3 {
		t.Errorf("Distance() = %d, want 3", d)
	}
	long := []byte(strings.Repeat("z", 3*maxDistanceBytes))
	if d := engine.Distance(long, long[:maxDistanceBytes]); d != 0 {
		t.Errorf("Distance() = %d, want 0 past the comparison window", d)
	}
}

func TestCloser(t *testing.T) {
	engine := NewDiffEngine()
	truePage := []byte("<h1>Product</h1>\n<p>Widget</p>")
	falsePage := []byte("<h1>Product</h1>\n<p>Absent</p>")

	tests := []struct {
		name string
		page []byte
		want int
	}{
		{"true page", truePage, -1},
		{"false page", falsePage, 1},
		{"single line tie broken by distance", []byte("<h1>Product</h1>\n<p>Widgets</p>"), -1},
		{"equally far", []byte("zzz"), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := engine.Closer(tt.page, truePage, falsePage); got != tt.want {
				t.Errorf("Closer() = %d, want %d", got, tt.want)
			}
		})
	}
}
