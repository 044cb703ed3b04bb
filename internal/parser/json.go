package parser

import (
	"encoding/json"

	"LoraFall/internal/model"
)

// JSONParser implements Parser using JSON objects.
type JSONParser struct{}

// NewJSONParser creates a new JSON parser.
func NewJSONParser() *JSONParser { return &JSONParser{} }

// EncodeSample encodes a sample into a JSON line.
func (p *JSONParser) EncodeSample(s model.AccelSample) (string, error) {
	b, err := json.Marshal(s)
	return string(b), err
}

// DecodeSample decodes a JSON line into a sample.
func (p *JSONParser) DecodeSample(line string) (model.AccelSample, error) {
	var s model.AccelSample
	err := json.Unmarshal([]byte(line), &s)
	return s, err
}
