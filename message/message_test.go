package message

import (
	"bufio"
	"bytes"
	"errors"
	"testing"

	"mini-soa/argument"
	"mini-soa/codec"
	"mini-soa/signature"
)

var rotate = signature.Parse("RotateImage(in buffer, in double, in string, in int, out buffer)")

func TestPushOrderAndType(t *testing.T) {
	call := NewCall(rotate)

	// Wrong type at position 0.
	err := call.PushArgument(argument.Double(90))
	if !errors.Is(err, ErrValidation) || err.Error() != "Invalid argument (must be 'buffer')." {
		t.Fatalf("expect type validation error, got %v", err)
	}

	var buf bytes.Buffer
	if err := call.Encode(&buf, codec.Default); err == nil || err.Error() != "Still missing 4 argument(s)." {
		t.Fatalf("expect missing-arguments error, got %v", err)
	}
	if buf.Len() != 0 {
		t.Fatal("no bytes may be written for an incomplete call")
	}

	if _, err := call.PopArgument(); err == nil || err.Error() != "Not all arguments have been pushed." {
		t.Fatalf("expect pop before completion to fail, got %v", err)
	}
}

func TestPushTooMany(t *testing.T) {
	call := NewCall(signature.Parse("Echo(in string, out string)"))
	if err := call.PushArgument(argument.String("a")); err != nil {
		t.Fatal(err)
	}
	if err := call.PushArgument(argument.String("b")); err == nil || err.Error() != "All arguments already pushed." {
		t.Fatalf("expect all-pushed error, got %v", err)
	}
}

func TestCallRoundTrip(t *testing.T) {
	call := NewCall(rotate)
	pushes := []*argument.Argument{
		argument.Buffer([]byte{1, 2, 3}),
		argument.Double(-12.5),
		argument.String(""),
		argument.Int32(-7),
	}
	for _, a := range pushes {
		if err := call.PushArgument(a); err != nil {
			t.Fatalf("push %s: %v", a, err)
		}
	}

	var buf bytes.Buffer
	if err := call.Encode(&buf, codec.Default); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	decoded, err := ReadCall(bufio.NewReader(&buf), 0)
	if err != nil {
		t.Fatalf("ReadCall failed: %v", err)
	}
	if !decoded.Signature().Equal(rotate) {
		t.Fatalf("signature mismatch: %s", decoded.Signature())
	}

	b, err := decoded.PopBuffer()
	if err != nil || !bytes.Equal(b, []byte{1, 2, 3}) {
		t.Fatalf("buffer mismatch: %v (%v)", b, err)
	}
	d, err := decoded.PopDouble()
	if err != nil || d != -12.5 {
		t.Fatalf("double mismatch: %v (%v)", d, err)
	}
	s, err := decoded.PopString()
	if err != nil || s != "" {
		t.Fatalf("string mismatch: %q (%v)", s, err)
	}
	n, err := decoded.PopInt32()
	if err != nil || n != -7 {
		t.Fatalf("int mismatch: %v (%v)", n, err)
	}
	if _, err := decoded.PopArgument(); err == nil || err.Error() != "All arguments already popped." {
		t.Fatalf("expect all-popped error, got %v", err)
	}
}

func TestResponseRoundTrip(t *testing.T) {
	sig := signature.Parse("Echo(in string, out string)")
	resp := NewResponse(sig)

	var buf bytes.Buffer
	if err := resp.Encode(&buf, codec.Default); err == nil {
		t.Fatal("expect error for response with missing outputs")
	}

	if err := resp.PushArgument(argument.String("hello")); err != nil {
		t.Fatal(err)
	}
	buf.Reset()
	if err := resp.Encode(&buf, &codec.JSONCodec{}); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	decoded, err := ReadResponse(bufio.NewReader(&buf), 0)
	if err != nil {
		t.Fatalf("ReadResponse failed: %v", err)
	}
	if !decoded.Successful() || decoded.Status() != StatusOK {
		t.Fatalf("expect successful OK response, got %v %q", decoded.Successful(), decoded.Status())
	}
	s, err := decoded.PopString()
	if err != nil || s != "hello" {
		t.Fatalf("expect hello, got %q (%v)", s, err)
	}
}

func TestFailureResponse(t *testing.T) {
	resp := Failure(signature.Any, "")
	if resp.Status() != StatusUnknown || resp.Successful() {
		t.Fatalf("expect unknown failure, got %q", resp.Status())
	}

	resp = Failure(signature.Parse("Echo(in string, out string)"), "Service not available.")
	var buf bytes.Buffer
	if err := resp.Encode(&buf, codec.Default); err != nil {
		t.Fatal(err)
	}
	decoded, err := ReadResponse(bufio.NewReader(&buf), 0)
	if err != nil {
		t.Fatal(err)
	}
	if decoded.Successful() || decoded.Status() != "Service not available." {
		t.Fatalf("unexpected response %v %q", decoded.Successful(), decoded.Status())
	}
	if len(decoded.Arguments()) != 0 {
		t.Fatal("a failure carries no outputs")
	}
}

func BenchmarkCallEncode(b *testing.B) {
	payload := make([]byte, 1<<16)
	var buf bytes.Buffer
	for i := 0; i < b.N; i++ {
		call := NewCall(rotate)
		call.PushArgument(argument.Buffer(payload))
		call.PushArgument(argument.Double(90))
		call.PushArgument(argument.String("png"))
		call.PushArgument(argument.Int32(1))
		buf.Reset()
		if err := call.Encode(&buf, codec.Default); err != nil {
			b.Fatal(err)
		}
	}
}
