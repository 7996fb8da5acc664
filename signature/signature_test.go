package signature

import "testing"

func TestParseValid(t *testing.T) {
	cases := []struct {
		text      string
		canonical string
		in, out   int
	}{
		{"RotateImage(in int)", "RotateImage(in int)", 1, 0},
		{"  Echo ( in string , out string )  ", "Echo(in string, out string)", 1, 1},
		{"Rotate(in buffer,in double,out buffer)", "Rotate(in buffer, in double, out buffer)", 2, 1},
		{"Store(in string, in buffer)", "Store(in string, in buffer)", 2, 0},
		{"Mixed(out int, in int, out double)", "Mixed(out int, in int, out double)", 1, 2},
	}
	for _, c := range cases {
		sig := Parse(c.text)
		if !sig.Valid() {
			t.Fatalf("%q: expect valid signature", c.text)
		}
		if sig.String() != c.canonical {
			t.Fatalf("%q: expect canonical %q, got %q", c.text, c.canonical, sig.String())
		}
		if len(sig.Inputs()) != c.in || len(sig.Outputs()) != c.out {
			t.Fatalf("%q: expect %d in / %d out, got %d / %d",
				c.text, c.in, c.out, len(sig.Inputs()), len(sig.Outputs()))
		}
	}
}

func TestParseIdempotent(t *testing.T) {
	texts := []string{
		"RotateImage(in buffer, in double, out buffer)",
		"Echo(in string,out string)",
		"\tAdd (in int, in int, out int)\n",
	}
	for _, text := range texts {
		first := Parse(text)
		second := Parse(first.String())
		if !second.Valid() || !first.Equal(second) {
			t.Fatalf("%q: reparse changed signature: %q vs %q", text, first, second)
		}
	}
}

func TestParseInvalid(t *testing.T) {
	texts := []string{
		"RotateImage()",
		"RotateImage(,)",
		"RotateImage(in float)",
		"RotateImage(in Int)",
		"RotateImage(inout int)",
		"RotateImage(in int out int)",
		"RotateImage(in int",
		"Rotate Image(in int)",
		"(in int)",
		"",
	}
	for _, text := range texts {
		if Parse(text).Valid() {
			t.Fatalf("%q: expect invalid signature", text)
		}
	}
}

func TestParseKeepsBadClauses(t *testing.T) {
	cases := []struct{ bad, good string }{
		{"Foo(in int, in ints)", "Foo(in int)"},
		{"Add(in int, in int, out int, in bogus)", "Add(in int, in int, out int)"},
		{"Foo(in int, inout int)", "Foo(in int)"},
		{"Foo(,in int)", "Foo(in int)"},
	}
	for _, c := range cases {
		bad, good := Parse(c.bad), Parse(c.good)
		if bad.Valid() {
			t.Fatalf("%q: expect invalid signature", c.bad)
		}
		if bad.Equal(good) {
			t.Fatalf("%q: must not equal %q, both canonical %q", c.bad, c.good, bad)
		}
	}
	if got := Parse("Foo( in  int ,in   ints )").String(); got != "Foo(in int, in ints)" {
		t.Fatalf("unexpected canonical %q", got)
	}
}

func TestParseBestEffortName(t *testing.T) {
	if got := Parse("RotateImage()").Name(); got != "RotateImage" {
		t.Fatalf("expect name RotateImage, got %q", got)
	}
	if got := Parse("Echo").Name(); got != "Echo" {
		t.Fatalf("expect bare name Echo, got %q", got)
	}
}

func TestAny(t *testing.T) {
	sig := Parse("*")
	if !sig.IsAny() || sig.Valid() {
		t.Fatalf("expect the invalid wildcard, got %q valid=%v", sig, sig.Valid())
	}
	if Any.Name() != "*" || Any.String() != "*" {
		t.Fatalf("unexpected wildcard %q / %q", Any.Name(), Any.String())
	}
}

func TestNewMatchesParse(t *testing.T) {
	built := New("Rotate", []ParamType{Buffer, Double}, []ParamType{Buffer})
	parsed := Parse("Rotate(in buffer, in double, out buffer)")
	if !built.Valid() || !built.Equal(parsed) {
		t.Fatalf("expect %q, got %q", parsed, built)
	}
	if New("Empty", nil, nil).Valid() {
		t.Fatal("expect signature without parameters to be invalid")
	}
	if New("bad name", []ParamType{Int}, nil).Valid() {
		t.Fatal("expect signature with a non-word name to be invalid")
	}
}

func TestParseType(t *testing.T) {
	for _, pt := range []ParamType{Int, Double, String, Buffer} {
		got, ok := ParseType(pt.String())
		if !ok || got != pt {
			t.Fatalf("tag %q did not map back to %v", pt.String(), pt)
		}
	}
	if _, ok := ParseType("bool"); ok {
		t.Fatal("expect unknown tag to be rejected")
	}
}

func TestCache(t *testing.T) {
	c, err := NewCache(2)
	if err != nil {
		t.Fatal(err)
	}
	a := c.Parse("Echo(in string, out string)")
	b := c.Parse("Echo(in string, out string)")
	if !a.Equal(b) || c.Len() != 1 {
		t.Fatalf("expect one cached entry, got %d", c.Len())
	}
	c.Parse("A(in int)")
	c.Parse("B(in int)")
	if c.Len() != 2 {
		t.Fatalf("expect cache bounded at 2, got %d", c.Len())
	}

	var nilCache *Cache
	if !nilCache.Parse("A(in int)").Valid() {
		t.Fatal("nil cache must still parse")
	}
}
