package codec

import (
	"bytes"

	"gopkg.in/yaml.v3"
)

// YAMLCodec is the wire codec for headers and registry messages.
type YAMLCodec struct{}

func (c *YAMLCodec) Encode(v any) ([]byte, error) {
	return yaml.Marshal(v)
}

// Decode fails with io.EOF on empty input, unlike yaml.Unmarshal which leaves v untouched.
func (c *YAMLCodec) Decode(data []byte, v any) error {
	return yaml.NewDecoder(bytes.NewReader(data)).Decode(v)
}

func (c *YAMLCodec) Type() CodecType {
	return CodecTypeYAML
}
