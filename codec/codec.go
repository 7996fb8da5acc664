// Package codec serializes the text parts of the protocol: call frame headers and
// registry messages.
//
// YAML is the wire default. JSON is accepted as an alternative encoding because every
// JSON document is also a YAML document, so receivers always decode with YAML and never
// need to know which codec the peer used.
package codec

import "fmt"

type CodecType byte

const (
	CodecTypeYAML CodecType = 0
	CodecTypeJSON CodecType = 1
)

type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
	Type() CodecType // 0=YAML, 1=JSON
}

func GetCodec(codecType CodecType) Codec {
	if codecType == CodecTypeJSON {
		return &JSONCodec{}
	}

	return &YAMLCodec{}
}

// Default is the codec used when none is configured.
var Default Codec = &YAMLCodec{}

// ParseCodecType maps a codec name ("yaml", "json") to its type.
func ParseCodecType(name string) (CodecType, error) {
	switch name {
	case "", "yaml":
		return CodecTypeYAML, nil
	case "json":
		return CodecTypeJSON, nil
	}
	return 0, fmt.Errorf("unknown codec %q", name)
}

func (t CodecType) String() string {
	if t == CodecTypeJSON {
		return "json"
	}
	return "yaml"
}
