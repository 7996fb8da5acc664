// Package signature implements the service descriptor language.
//
// A signature names a service and lists its typed parameters, each tagged with a
// direction. Whitespace is insignificant, parameter order is significant:
//
//	RotateImage ( in buffer , in double,out buffer )
//	        │
//	        ▼  Parse
//	RotateImage(in buffer, in double, out buffer)   ← canonical form
//
// Two signatures are equal iff their canonical strings are byte-equal.
package signature

import (
	"regexp"
	"strings"
)

// ParamType is the closed set of argument types a signature can declare.
type ParamType int

const (
	Int ParamType = iota
	Double
	String
	Buffer
)

var typeTags = [...]string{
	Int:    "int",
	Double: "double",
	String: "string",
	Buffer: "buffer",
}

// String returns the type tag used in signatures and frame preparation.
func (t ParamType) String() string {
	if t < Int || t > Buffer {
		return "unknown"
	}
	return typeTags[t]
}

// ParseType maps a type tag to its ParamType. Tags are case-sensitive.
func ParseType(tag string) (ParamType, bool) {
	switch tag {
	case "int":
		return Int, true
	case "double":
		return Double, true
	case "string":
		return String, true
	case "buffer":
		return Buffer, true
	}
	return 0, false
}

// Direction tells whether a parameter is sent by the caller or returned by the service.
type Direction int

const (
	In Direction = iota
	Out
)

func (d Direction) String() string {
	if d == Out {
		return "out"
	}
	return "in"
}

// Param is one parameter clause of a signature.
type Param struct {
	Dir  Direction
	Type ParamType
}

func (p Param) String() string {
	return p.Dir.String() + " " + p.Type.String()
}

// Signature is an immutable, parsed service descriptor.
type Signature struct {
	name      string
	params    []Param
	valid     bool
	canonical string
}

// Any matches every service of a provider. It is only meaningful for deregistration
// and is never valid.
var Any = Signature{name: "*", canonical: "*"}

var (
	sigPattern   = regexp.MustCompile(`^\s*(\w+)\s*\(\s*(.*?)\s*\)\s*$`)
	namePattern  = regexp.MustCompile(`^\s*(\w+)\s*$`)
	identPattern = regexp.MustCompile(`^\w+$`)
	argPattern   = regexp.MustCompile(`^(in|out)\s+(\w+)$`)
)

// Parse turns text into a Signature. It never fails: malformed input yields a
// signature with Valid() == false whose canonical form is computed best-effort.
func Parse(text string) Signature {
	if text == Any.canonical {
		return Any
	}

	m := sigPattern.FindStringSubmatch(text)
	if m == nil {
		// A bare name still identifies the service for name-based lookups.
		if n := namePattern.FindStringSubmatch(text); n != nil {
			return Signature{name: n[1], canonical: n[1] + "()"}
		}
		return Signature{canonical: strings.TrimSpace(text)}
	}

	sig := Signature{name: m[1], valid: true}
	var clauses []string
	if m[2] == "" {
		// At least one parameter is required.
		sig.valid = false
	} else {
		for _, clause := range strings.Split(m[2], ",") {
			clause = strings.Join(strings.Fields(clause), " ")
			// Bad clauses stay in the canonical form so they never compare equal to a
			// signature without them.
			clauses = append(clauses, clause)
			a := argPattern.FindStringSubmatch(clause)
			if a == nil {
				sig.valid = false
				continue
			}
			t, ok := ParseType(a[2])
			if !ok {
				sig.valid = false
				continue
			}
			dir := In
			if a[1] == "out" {
				dir = Out
			}
			p := Param{Dir: dir, Type: t}
			sig.params = append(sig.params, p)
			clauses[len(clauses)-1] = p.String()
		}
	}
	sig.canonical = canonicalize(sig.name, clauses)
	return sig
}

// New builds a signature from its parts. Inputs are listed before outputs.
func New(name string, in, out []ParamType) Signature {
	sig := Signature{name: name, valid: identPattern.MatchString(name) && len(in)+len(out) > 0}
	for _, t := range in {
		sig.params = append(sig.params, Param{Dir: In, Type: t})
	}
	for _, t := range out {
		sig.params = append(sig.params, Param{Dir: Out, Type: t})
	}
	clauses := make([]string, 0, len(sig.params))
	for _, p := range sig.params {
		if p.Type < Int || p.Type > Buffer {
			sig.valid = false
		}
		clauses = append(clauses, p.String())
	}
	sig.canonical = canonicalize(name, clauses)
	return sig
}

func canonicalize(name string, clauses []string) string {
	return name + "(" + strings.Join(clauses, ", ") + ")"
}

func (s Signature) Name() string   { return s.name }
func (s Signature) Valid() bool    { return s.valid }
func (s Signature) String() string { return s.canonical }

// IsAny reports whether s is the wildcard used for bulk deregistration.
func (s Signature) IsAny() bool { return s.canonical == Any.canonical }

// Equal compares canonical forms.
func (s Signature) Equal(o Signature) bool { return s.canonical == o.canonical }

// Params returns a copy of all parameters in declaration order.
func (s Signature) Params() []Param {
	return append([]Param(nil), s.params...)
}

// Inputs returns the types of the in-parameters in order.
func (s Signature) Inputs() []ParamType { return s.filter(In) }

// Outputs returns the types of the out-parameters in order.
func (s Signature) Outputs() []ParamType { return s.filter(Out) }

func (s Signature) filter(d Direction) []ParamType {
	var types []ParamType
	for _, p := range s.params {
		if p.Dir == d {
			types = append(types, p.Type)
		}
	}
	return types
}
