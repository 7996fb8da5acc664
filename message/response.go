package message

import (
	"mini-soa/signature"
)

const (
	// StatusOK is the status of a successful response unless the service sets another.
	StatusOK = "OK"
	// StatusUnknown replaces an empty status on failures.
	StatusUnknown = "Unknown error."
)

// Response is the result of a call. A failed response carries no output arguments and
// always has a non-empty status.
type Response struct {
	argList
	sig        signature.Signature
	successful bool
	status     string
}

// NewResponse creates a successful response that expects the outputs declared by sig.
func NewResponse(sig signature.Signature) *Response {
	return &Response{
		sig:        sig,
		successful: true,
		status:     StatusOK,
		argList:    newArgList(sig.Outputs()),
	}
}

// Failure creates an unsuccessful response.
func Failure(sig signature.Signature, status string) *Response {
	if status == "" {
		status = StatusUnknown
	}
	return &Response{sig: sig, status: status}
}

// FailureFromError is Failure with the error text as status.
func FailureFromError(sig signature.Signature, err error) *Response {
	if err == nil {
		return Failure(sig, "")
	}
	return Failure(sig, err.Error())
}

func (r *Response) Signature() signature.Signature { return r.sig }
func (r *Response) Successful() bool               { return r.successful }
func (r *Response) Status() string                 { return r.status }

// SetStatus replaces the status. Failures keep their status if s is empty.
func (r *Response) SetStatus(s string) {
	if s == "" && !r.successful {
		return
	}
	r.status = s
}
