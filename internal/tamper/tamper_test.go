package tamper_test

import (
	"context"
	"strings"
	"testing"

	"github.com/0x6d61/sqlsiphon/internal/oracle"
	"github.com/0x6d61/sqlsiphon/internal/tamper"
)

func lookup(t *testing.T, name string) tamper.Tamper {
	t.Helper()
	tp := tamper.Lookup(name)
	if tp == nil {
		t.Fatalf("Lookup(%q) returned nil", name)
	}
	if tp.Name() != name {
		t.Errorf("Name() = %q, want %q", tp.Name(), name)
	}
	return tp
}

// --------------------------------------------------------------------------
// space2comment
// --------------------------------------------------------------------------

func TestSpace2Comment_Apply(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"union select null", "union/**/select/**/null"},
		{"and 1=1", "and/**/1=1"},
		{"select 'a b' from t", "select/**/'a b'/**/from/**/t"},
		{`select "my col" from t`, `select/**/"my col"/**/from/**/t`},
		{"", ""},
		{"nochange", "nochange"},
	}
	tp := lookup(t, "space2comment")
	for _, c := range cases {
		got := tp.Apply(c.in)
		if got != c.want {
			t.Errorf("space2comment.Apply(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

// --------------------------------------------------------------------------
// uppercase / randomcase
// --------------------------------------------------------------------------

func TestUppercase_Apply(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"union select null", "UNION SELECT NULL"},
		{"and 1=1", "AND 1=1"},
		{"UNION SELECT NULL", "UNION SELECT NULL"},
		{"sleep(5)", "SLEEP(5)"},
		{"select group_concat(x) from t", "SELECT GROUP_CONCAT(x) FROM t"},
		{"select 'union select' from `order`", "SELECT 'union select' FROM `order`"},
		{"1=1", "1=1"},
		{"", ""},
	}
	tp := lookup(t, "uppercase")
	for _, c := range cases {
		got := tp.Apply(c.in)
		if got != c.want {
			t.Errorf("uppercase.Apply(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestRandomCase_Apply(t *testing.T) {
	tp := lookup(t, "randomcase")
	in := "select group_concat(name) from users where 'SqLi' = 'SqLi'"
	got := tp.Apply(in)
	if !strings.EqualFold(got, in) {
		t.Errorf("randomcase changed more than case: %q", got)
	}
	if !strings.Contains(got, "'SqLi' = 'SqLi'") {
		t.Errorf("randomcase touched quoted text: %q", got)
	}
	if !strings.Contains(strings.ToLower(got), "group_concat") {
		t.Errorf("underscore lost: %q", got)
	}
}

// --------------------------------------------------------------------------
// charencode
// --------------------------------------------------------------------------

func TestCharencode_Apply(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"'", "%27"},
		{"=", "%3D"},
		{" ", "%20"},
		{"\x04", "%04"},
		{"abc123", "abc123"},
		{"_-.*~", "_-.*~"},
	}
	tp := lookup(t, "charencode")
	for _, c := range cases {
		got := tp.Apply(c.in)
		if got != c.want {
			t.Errorf("charencode.Apply(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

// --------------------------------------------------------------------------
// between
// --------------------------------------------------------------------------

func TestBetween_Apply(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{
			"and length((select user())) > 12",
			"and length((select user())) NOT BETWEEN 0 AND 12",
		},
		{
			"ascii(substring(password,1,1))>64",
			"ascii(substring(password,1,1)) NOT BETWEEN 0 AND 64",
		},
		{"select '>5'", "select '>5'"},
		{"no comparison here", "no comparison here"},
		{"1=1", "1=1"},
	}
	tp := lookup(t, "between")
	for _, c := range cases {
		got := tp.Apply(c.in)
		if got != c.want {
			t.Errorf("between.Apply(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

// --------------------------------------------------------------------------
// Chain
// --------------------------------------------------------------------------

func TestChain_Apply_MultipleOrder(t *testing.T) {
	chain, err := tamper.BuildChain("space2comment", "uppercase")
	if err != nil {
		t.Fatal(err)
	}
	got := chain.Apply(" union select null ")
	want := "/**/UNION/**/SELECT/**/NULL/**/"
	if got != want {
		t.Errorf("chain.Apply = %q, want %q", got, want)
	}
	if names := chain.Names(); len(names) != 2 || names[0] != "space2comment" {
		t.Errorf("Names() = %v", names)
	}
}

func TestChain_Apply_Empty(t *testing.T) {
	var chain tamper.Chain
	got := chain.Apply("unchanged")
	if got != "unchanged" {
		t.Errorf("empty chain should return input unchanged, got %q", got)
	}
}

func TestLookup_CaseInsensitive(t *testing.T) {
	if tamper.Lookup(" SPACE2COMMENT ") == nil {
		t.Error("Lookup('SPACE2COMMENT') returned nil, want case-insensitive match")
	}
	if tamper.Lookup("nonexistent") != nil {
		t.Error("Lookup('nonexistent') should return nil")
	}
}

func TestAvailable_Sorted(t *testing.T) {
	got := strings.Join(tamper.Available(), ",")
	want := "between,charencode,randomcase,space2comment,uppercase"
	if got != want {
		t.Errorf("Available() = %s, want %s", got, want)
	}
}

func TestBuildChain_Unknown(t *testing.T) {
	if _, err := tamper.BuildChain("space2comment", "nonexistent"); err == nil {
		t.Error("BuildChain with an unknown name should fail")
	}
	chain, err := tamper.BuildChain("", " ")
	if err != nil || len(chain) != 0 {
		t.Errorf("BuildChain of blanks = %v, %v", chain, err)
	}
}

// --------------------------------------------------------------------------
// Wrap
// --------------------------------------------------------------------------

func TestWrap_AppliesChain(t *testing.T) {
	var got string
	p := oracle.ProberFunc(func(_ context.Context, q string) (*oracle.Response, error) {
		got = q
		return &oracle.Response{Status: 200}, nil
	})
	chain, _ := tamper.BuildChain("space2comment")

	if _, err := tamper.Wrap(p, chain).Probe(context.Background(), "union select 1"); err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if got != "union/**/select/**/1" {
		t.Errorf("probed %q", got)
	}
}

func TestWrap_EmptyChain(t *testing.T) {
	var got string
	p := oracle.ProberFunc(func(_ context.Context, q string) (*oracle.Response, error) {
		got = q
		return &oracle.Response{}, nil
	})
	if _, err := tamper.Wrap(p, nil).Probe(context.Background(), "a b"); err != nil {
		t.Fatal(err)
	}
	if got != "a b" {
		t.Errorf("probed %q, want unchanged", got)
	}
}
