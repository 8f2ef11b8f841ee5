package repository

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrCorruptWindow marks a stored rate limit row whose values cannot be parsed.
var ErrCorruptWindow = errors.New("corrupt rate limit window")

// EncodeEmbedding joins values as shortest round-trip decimal text.
func EncodeEmbedding(embedding []float64) string {
	var b strings.Builder
	for i, v := range embedding {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	}
	return b.String()
}

// DecodeEmbedding parses text written by EncodeEmbedding.
func DecodeEmbedding(raw string) ([]float64, error) {
	if strings.TrimSpace(raw) == "" {
		return []float64{}, nil
	}
	parts := strings.Split(raw, ",")
	out := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid embedding value at %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}
