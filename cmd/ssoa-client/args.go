package main

import (
	"encoding/hex"
	"fmt"
	"strconv"

	"mini-soa/argument"
	"mini-soa/signature"
)

// parseArguments converts command line words into the inputs of sig, in order.
func parseArguments(sig signature.Signature, words []string) ([]*argument.Argument, error) {
	inputs := sig.Inputs()
	if len(words) != len(inputs) {
		return nil, fmt.Errorf("%s takes %d input(s), got %d", sig.Name(), len(inputs), len(words))
	}
	args := make([]*argument.Argument, len(inputs))
	for i, t := range inputs {
		a, err := parseArgument(t, words[i])
		if err != nil {
			return nil, fmt.Errorf("input %d: %v", i+1, err)
		}
		args[i] = a
	}
	return args, nil
}

func parseArgument(t signature.ParamType, word string) (*argument.Argument, error) {
	switch t {
	case signature.Int:
		n, err := strconv.ParseInt(word, 10, 32)
		if err != nil {
			return nil, err
		}
		return argument.Int32(int32(n)), nil
	case signature.Double:
		f, err := strconv.ParseFloat(word, 64)
		if err != nil {
			return nil, err
		}
		return argument.Double(f), nil
	case signature.String:
		return argument.String(word), nil
	case signature.Buffer:
		b, err := hex.DecodeString(word)
		if err != nil {
			return nil, err
		}
		return argument.Buffer(b), nil
	}
	return nil, fmt.Errorf("unsupported type %s", t)
}

func formatArgument(a *argument.Argument) (string, error) {
	switch a.Type() {
	case signature.Int:
		n, err := a.AsInt32()
		return strconv.FormatInt(int64(n), 10), err
	case signature.Double:
		f, err := a.AsDouble()
		return strconv.FormatFloat(f, 'g', -1, 64), err
	case signature.String:
		s, err := a.AsString()
		return strconv.Quote(s), err
	case signature.Buffer:
		b, err := a.AsBuffer()
		return hex.EncodeToString(b), err
	}
	return "", fmt.Errorf("unsupported type %s", a.Type())
}
