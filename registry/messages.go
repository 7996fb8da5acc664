package registry

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"mini-soa/codec"
	"mini-soa/protocol"
)

// MessageType is the tag that selects the concrete message on the wire.
type MessageType string

const (
	TypeServiceRequest       MessageType = "service-request"
	TypeServiceResponse      MessageType = "service-response"
	TypeRegistrationRequest  MessageType = "registration-request"
	TypeRegistrationResponse MessageType = "registration-response"
	TypeError                MessageType = "error"
)

// MaxMessageSize bounds a registry message on the wire.
const MaxMessageSize = 16 << 10

// ErrUnknownMessage is returned for a missing or unrecognised type tag.
var ErrUnknownMessage = errors.New("unknown registry message")

// Message is the closed set of registry messages. Only this package implements it.
type Message interface {
	Type() MessageType
	isMessage()
}

// ServiceRequest asks for a provider of Service (a signature, or a bare name).
type ServiceRequest struct {
	Service string `yaml:"service" json:"service"`
}

// ServiceResponse carries the chosen provider, or a status explaining why there is none.
type ServiceResponse struct {
	Successful bool   `yaml:"successful" json:"successful"`
	Host       string `yaml:"host,omitempty" json:"host,omitempty"`
	Port       string `yaml:"port,omitempty" json:"port,omitempty"`
	Status     string `yaml:"status,omitempty" json:"status,omitempty"`
}

// RegistrationRequest adds or, with Deregister set, removes a provider of Service.
type RegistrationRequest struct {
	Service    string `yaml:"service" json:"service"`
	Host       string `yaml:"host" json:"host"`
	Port       string `yaml:"port" json:"port"`
	Deregister bool   `yaml:"unregister,omitempty" json:"unregister,omitempty"`
}

type RegistrationResponse struct {
	Successful bool   `yaml:"successful" json:"successful"`
	Status     string `yaml:"status,omitempty" json:"status,omitempty"`
}

// ErrorMessage answers a request the registry could not understand.
type ErrorMessage struct {
	Status string `yaml:"status" json:"status"`
}

func (*ServiceRequest) Type() MessageType       { return TypeServiceRequest }
func (*ServiceResponse) Type() MessageType      { return TypeServiceResponse }
func (*RegistrationRequest) Type() MessageType  { return TypeRegistrationRequest }
func (*RegistrationResponse) Type() MessageType { return TypeRegistrationResponse }
func (*ErrorMessage) Type() MessageType         { return TypeError }

func (*ServiceRequest) isMessage()       {}
func (*ServiceResponse) isMessage()      {}
func (*RegistrationRequest) isMessage()  {}
func (*RegistrationResponse) isMessage() {}
func (*ErrorMessage) isMessage()         {}

// Endpoint of a successful response.
func (m *ServiceResponse) Endpoint() Endpoint { return Endpoint{Host: m.Host, Port: m.Port} }

// Endpoint of the provider being (de)registered.
func (m *RegistrationRequest) Endpoint() Endpoint { return Endpoint{Host: m.Host, Port: m.Port} }

// Tagged forms: the type tag followed by the message fields at the same level.
type (
	serviceRequestFrame struct {
		Type           MessageType `yaml:"type" json:"type"`
		ServiceRequest `yaml:",inline"`
	}
	serviceResponseFrame struct {
		Type            MessageType `yaml:"type" json:"type"`
		ServiceResponse `yaml:",inline"`
	}
	registrationRequestFrame struct {
		Type                MessageType `yaml:"type" json:"type"`
		RegistrationRequest `yaml:",inline"`
	}
	registrationResponseFrame struct {
		Type                 MessageType `yaml:"type" json:"type"`
		RegistrationResponse `yaml:",inline"`
	}
	errorFrame struct {
		Type         MessageType `yaml:"type" json:"type"`
		ErrorMessage `yaml:",inline"`
	}
)

// EncodeMessage renders m with its type tag.
func EncodeMessage(c codec.Codec, m Message) ([]byte, error) {
	if c == nil {
		c = codec.Default
	}
	var v any
	switch m := m.(type) {
	case *ServiceRequest:
		v = serviceRequestFrame{m.Type(), *m}
	case *ServiceResponse:
		v = serviceResponseFrame{m.Type(), *m}
	case *RegistrationRequest:
		v = registrationRequestFrame{m.Type(), *m}
	case *RegistrationResponse:
		v = registrationResponseFrame{m.Type(), *m}
	case *ErrorMessage:
		v = errorFrame{m.Type(), *m}
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownMessage, m)
	}
	return c.Encode(v)
}

// DecodeMessage parses text produced by EncodeMessage with either codec.
func DecodeMessage(text []byte) (Message, error) {
	var tag struct {
		Type MessageType `yaml:"type"`
	}
	if err := codec.Default.Decode(text, &tag); err != nil {
		return nil, fmt.Errorf("%w: malformed message: %v", protocol.ErrProtocol, err)
	}

	switch tag.Type {
	case TypeServiceRequest:
		var f serviceRequestFrame
		if err := decodeFrame(text, &f); err != nil {
			return nil, err
		}
		return &f.ServiceRequest, nil
	case TypeServiceResponse:
		var f serviceResponseFrame
		if err := decodeFrame(text, &f); err != nil {
			return nil, err
		}
		return &f.ServiceResponse, nil
	case TypeRegistrationRequest:
		var f registrationRequestFrame
		if err := decodeFrame(text, &f); err != nil {
			return nil, err
		}
		return &f.RegistrationRequest, nil
	case TypeRegistrationResponse:
		var f registrationResponseFrame
		if err := decodeFrame(text, &f); err != nil {
			return nil, err
		}
		return &f.RegistrationResponse, nil
	case TypeError:
		var f errorFrame
		if err := decodeFrame(text, &f); err != nil {
			return nil, err
		}
		return &f.ErrorMessage, nil
	}
	return nil, fmt.Errorf("%w: type %q", ErrUnknownMessage, tag.Type)
}

func decodeFrame(text []byte, v any) error {
	if err := codec.Default.Decode(text, v); err != nil {
		return fmt.Errorf("%w: malformed message: %v", protocol.ErrProtocol, err)
	}
	return nil
}

// WriteMessage sends m as one terminated text frame.
func WriteMessage(w io.Writer, c codec.Codec, m Message) error {
	text, err := EncodeMessage(c, m)
	if err != nil {
		return err
	}
	return protocol.WriteText(w, text)
}

// ReadMessage reads one terminated text frame and decodes it.
func ReadMessage(r *bufio.Reader) (Message, error) {
	text, err := protocol.ReadText(r, MaxMessageSize)
	if err != nil {
		return nil, err
	}
	return DecodeMessage(text)
}
