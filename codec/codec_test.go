package codec

import (
	"errors"
	"io"
	"testing"
)

type sample struct {
	Service    string `yaml:"service" json:"service"`
	Successful bool   `yaml:"successful" json:"successful"`
	Blocks     []int  `yaml:"blocks,flow" json:"blocks"`
}

func TestYAMLCodec(t *testing.T) {
	yamlCodec := &YAMLCodec{}

	original := &sample{Service: "Echo(in string, out string)", Successful: true, Blocks: []int{5, 0}}

	data, err := yamlCodec.Encode(original)
	if err != nil {
		t.Fatalf("YAMLCodec Encode failed: %v", err)
	}

	var decoded sample
	if err := yamlCodec.Decode(data, &decoded); err != nil {
		t.Fatalf("YAMLCodec Decode failed: %v", err)
	}
	if decoded.Service != original.Service || !decoded.Successful || len(decoded.Blocks) != 2 {
		t.Fatalf("mismatch: got %+v, want %+v", decoded, *original)
	}
}

func TestJSONReadableAsYAML(t *testing.T) {
	original := &sample{Service: "Add(in int, in int, out int)", Blocks: []int{4, 4}}

	data, err := GetCodec(CodecTypeJSON).Encode(original)
	if err != nil {
		t.Fatalf("JSONCodec Encode failed: %v", err)
	}

	var decoded sample
	if err := GetCodec(CodecTypeYAML).Decode(data, &decoded); err != nil {
		t.Fatalf("YAML decode of JSON failed: %v", err)
	}
	if decoded.Service != original.Service || decoded.Blocks[1] != 4 {
		t.Fatalf("mismatch: got %+v", decoded)
	}
}

func TestYAMLDecodeEmpty(t *testing.T) {
	var decoded sample
	if err := (&YAMLCodec{}).Decode(nil, &decoded); !errors.Is(err, io.EOF) {
		t.Fatalf("expect io.EOF for empty input, got %v", err)
	}
}

func TestParseCodecType(t *testing.T) {
	for name, want := range map[string]CodecType{"": CodecTypeYAML, "yaml": CodecTypeYAML, "json": CodecTypeJSON} {
		got, err := ParseCodecType(name)
		if err != nil || got != want {
			t.Fatalf("%q: expect %v, got %v (%v)", name, want, got, err)
		}
		if GetCodec(got).Type() != want {
			t.Fatalf("%q: GetCodec returned the wrong codec", name)
		}
	}
	if _, err := ParseCodecType("gob"); err == nil {
		t.Fatal("expect error for unknown codec")
	}
}
