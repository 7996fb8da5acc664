// Package argument implements the runtime-typed values carried in call frames.
//
// Every Argument owns one byte region:
//
//	int     4 bytes, big-endian two's complement
//	double  8 bytes, big-endian IEEE-754
//	string  raw bytes, length declared by the frame
//	buffer  raw bytes, length declared by the frame
//
// A receiver prepares an empty Argument with Prepare(tag, size), the transport fills
// Mutable() in place, and the consumer reads the value through one of the As* methods.
package argument

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"mini-soa/signature"
)

var (
	// ErrSize is returned when a fixed-size type is prepared with the wrong byte count.
	ErrSize = errors.New("invalid argument size")
	// ErrType is returned for unknown type tags and mismatched accessors.
	ErrType = errors.New("invalid argument type")
)

const (
	int32Size  = 4
	doubleSize = 8
)

// Argument is one typed value together with its serialized region.
type Argument struct {
	typ  signature.ParamType
	data []byte
}

// Int32 creates an int argument.
func Int32(v int32) *Argument {
	a := &Argument{typ: signature.Int, data: make([]byte, int32Size)}
	binary.BigEndian.PutUint32(a.data, uint32(v))
	return a
}

// Double creates a double argument.
func Double(v float64) *Argument {
	a := &Argument{typ: signature.Double, data: make([]byte, doubleSize)}
	binary.BigEndian.PutUint64(a.data, math.Float64bits(v))
	return a
}

// String creates a string argument. The empty string is a valid zero-length value.
func String(s string) *Argument {
	return &Argument{typ: signature.String, data: []byte(s)}
}

// Buffer creates a buffer argument. b is copied.
func Buffer(b []byte) *Argument {
	return &Argument{typ: signature.Buffer, data: append([]byte{}, b...)}
}

// Prepare creates an empty argument of the tagged type able to hold size bytes.
func Prepare(tag string, size int) (*Argument, error) {
	t, ok := signature.ParseType(tag)
	if !ok {
		return nil, fmt.Errorf("%w: unknown tag %q", ErrType, tag)
	}
	return PrepareType(t, size)
}

// PrepareType is Prepare for an already resolved type.
func PrepareType(t signature.ParamType, size int) (*Argument, error) {
	if err := CheckSize(t, size); err != nil {
		return nil, err
	}
	return &Argument{typ: t, data: make([]byte, size)}, nil
}

// CheckSize validates a declared region size for t without allocating.
func CheckSize(t signature.ParamType, size int) error {
	if size < 0 {
		return fmt.Errorf("%w: negative size %d", ErrSize, size)
	}
	switch t {
	case signature.Int:
		if size != int32Size {
			return sizeError(int32Size, size)
		}
	case signature.Double:
		if size != doubleSize {
			return sizeError(doubleSize, size)
		}
	case signature.String, signature.Buffer:
	default:
		return fmt.Errorf("%w: %v", ErrType, t)
	}
	return nil
}

// Wrap is like PrepareType but adopts region as the argument's storage without
// copying. The caller must not reuse region.
func Wrap(t signature.ParamType, region []byte) (*Argument, error) {
	a, err := PrepareType(t, len(region))
	if err != nil {
		return nil, err
	}
	a.data = region
	return a, nil
}

// SizeError reports a fixed-size type prepared with the wrong byte count.
type SizeError struct {
	Want, Got int
}

func (e *SizeError) Error() string {
	return fmt.Sprintf("Invalid argument size (must be %d instead of %d).", e.Want, e.Got)
}

func (e *SizeError) Is(target error) bool { return target == ErrSize }

func sizeError(want, got int) error {
	return &SizeError{Want: want, Got: got}
}

// Type returns the argument's parameter type.
func (a *Argument) Type() signature.ParamType { return a.typ }

// Size returns the length of the serialized region.
func (a *Argument) Size() int { return len(a.data) }

// Bytes is the serialization view. It must not be modified.
func (a *Argument) Bytes() []byte { return a.data }

// Mutable is the region a reader fills in place.
func (a *Argument) Mutable() []byte { return a.data }

func (a *Argument) AsInt32() (int32, error) {
	if a.typ != signature.Int {
		return 0, a.mismatch(signature.Int)
	}
	return int32(binary.BigEndian.Uint32(a.data)), nil
}

func (a *Argument) AsDouble() (float64, error) {
	if a.typ != signature.Double {
		return 0, a.mismatch(signature.Double)
	}
	return math.Float64frombits(binary.BigEndian.Uint64(a.data)), nil
}

func (a *Argument) AsString() (string, error) {
	if a.typ != signature.String {
		return "", a.mismatch(signature.String)
	}
	return string(a.data), nil
}

// AsBuffer returns the region itself, not a copy.
func (a *Argument) AsBuffer() ([]byte, error) {
	if a.typ != signature.Buffer {
		return nil, a.mismatch(signature.Buffer)
	}
	return a.data, nil
}

func (a *Argument) mismatch(want signature.ParamType) error {
	return fmt.Errorf("%w: is %s, not %s", ErrType, a.typ, want)
}

// String renders the value for logs.
func (a *Argument) String() string {
	switch a.typ {
	case signature.Int:
		v, _ := a.AsInt32()
		return fmt.Sprintf("int(%d)", v)
	case signature.Double:
		v, _ := a.AsDouble()
		return fmt.Sprintf("double(%g)", v)
	case signature.String:
		return fmt.Sprintf("string(%q)", a.data)
	case signature.Buffer:
		return fmt.Sprintf("buffer(%d bytes)", len(a.data))
	}
	return "unknown"
}
