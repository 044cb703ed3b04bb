// Package parser converts accelerometer sample lines to structured types and vice-versa.
//
// CSV sample wire format (IMU -> node), values in hundredths of g:
//
//	X,Y,Z
//
// JSON sample wire format:
//
//	{"x":X,"y":Y,"z":Z}
package parser

import (
	"fmt"

	"LoraFall/internal/model"
)

// Parser encodes and decodes one IMU sample per line.
type Parser interface {
	EncodeSample(s model.AccelSample) (string, error)
	DecodeSample(line string) (model.AccelSample, error)
}

// ForFormat returns the parser registered for a wire format name.
func ForFormat(format string) (Parser, error) {
	switch format {
	case "csv", "":
		return NewCSVParser(), nil
	case "json":
		return NewJSONParser(), nil
	default:
		return nil, fmt.Errorf("unknown wire format %q", format)
	}
}
