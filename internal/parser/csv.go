package parser

import (
	"fmt"
	"strconv"
	"strings"

	"LoraFall/internal/model"
)

// CSVParser implements Parser using comma-separated values.
type CSVParser struct{}

// NewCSVParser creates a new CSV parser instance.
func NewCSVParser() *CSVParser { return &CSVParser{} }

// EncodeSample converts a sample into a CSV line.
func (p *CSVParser) EncodeSample(s model.AccelSample) (string, error) {
	return fmt.Sprintf("%d,%d,%d", s.X, s.Y, s.Z), nil
}

// DecodeSample parses a CSV sample line.
func (p *CSVParser) DecodeSample(line string) (model.AccelSample, error) {
	fields := strings.Split(strings.TrimSpace(line), ",")
	if len(fields) != 3 {
		return model.AccelSample{}, fmt.Errorf("expected 3 fields, got %d", len(fields))
	}
	var axes [3]int16
	for i, f := range fields {
		v, err := strconv.ParseInt(strings.TrimSpace(f), 10, 16)
		if err != nil {
			return model.AccelSample{}, fmt.Errorf("invalid axis %d %q: %w", i, f, err)
		}
		axes[i] = int16(v)
	}
	return model.AccelSample{X: axes[0], Y: axes[1], Z: axes[2]}, nil
}
