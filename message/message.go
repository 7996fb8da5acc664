// Package message defines the two values exchanged over a call frame.
//
//   - Call:     a signature plus its input arguments, sent by a stub.
//   - Response: a signature, success flag, status and output arguments, sent back by the skeleton.
//
// Both hold an ordered argument list with the same discipline: arguments are pushed strictly
// left to right and type-checked against the signature, and they can only be popped, in the
// same order and at most once, after the full list has been pushed.
package message

import (
	"errors"
	"fmt"

	"mini-soa/argument"
	"mini-soa/signature"
)

// ErrValidation marks misuse of an argument list. Its messages are user facing.
var ErrValidation = errors.New("validation error")

// ValidationError is a local misuse of a Call or Response.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string        { return e.Msg }
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func invalid(format string, a ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, a...)}
}

// argList is an ordered, typed argument list. Its methods are promoted to Call and Response.
type argList struct {
	types  []signature.ParamType
	args   []*argument.Argument
	popped int
}

func newArgList(types []signature.ParamType) argList {
	return argList{types: types, args: make([]*argument.Argument, 0, len(types))}
}

// PushArgument appends the next argument. It must match the declared type at its position.
func (l *argList) PushArgument(a *argument.Argument) error {
	if len(l.args) >= len(l.types) {
		return invalid("All arguments already pushed.")
	}
	want := l.types[len(l.args)]
	if a == nil || a.Type() != want {
		return invalid("Invalid argument (must be '%s').", want)
	}
	l.args = append(l.args, a)
	return nil
}

// PopArgument removes and returns the next argument. Popping starts only once every
// declared argument has been pushed.
func (l *argList) PopArgument() (*argument.Argument, error) {
	if len(l.args) < len(l.types) {
		return nil, invalid("Not all arguments have been pushed.")
	}
	if l.popped >= len(l.args) {
		return nil, invalid("All arguments already popped.")
	}
	a := l.args[l.popped]
	l.args[l.popped] = nil
	l.popped++
	return a, nil
}

// Missing is the number of declared arguments not pushed yet.
func (l *argList) Missing() int { return len(l.types) - len(l.args) }

// Complete reports whether every declared argument has been pushed.
func (l *argList) Complete() bool { return l.Missing() == 0 }

// Validate returns a ValidationError if arguments are still missing.
func (l *argList) Validate() error {
	if n := l.Missing(); n > 0 {
		return invalid("Still missing %d argument(s).", n)
	}
	return nil
}

// Arguments returns the pushed arguments that have not been popped yet, in order.
func (l *argList) Arguments() []*argument.Argument { return l.args[l.popped:] }

func (l *argList) PopInt32() (int32, error) {
	a, err := l.PopArgument()
	if err != nil {
		return 0, err
	}
	return a.AsInt32()
}

func (l *argList) PopDouble() (float64, error) {
	a, err := l.PopArgument()
	if err != nil {
		return 0, err
	}
	return a.AsDouble()
}

func (l *argList) PopString() (string, error) {
	a, err := l.PopArgument()
	if err != nil {
		return "", err
	}
	return a.AsString()
}

func (l *argList) PopBuffer() ([]byte, error) {
	a, err := l.PopArgument()
	if err != nil {
		return nil, err
	}
	return a.AsBuffer()
}

// Call is one invocation of a service: its signature and the input arguments.
type Call struct {
	argList
	sig signature.Signature
}

// NewCall creates an empty call for sig.
func NewCall(sig signature.Signature) *Call {
	return &Call{sig: sig, argList: newArgList(sig.Inputs())}
}

func (c *Call) Signature() signature.Signature { return c.sig }
