// internal/register/decode.go
package register

import (
	"fmt"
	"math"
)

// DecodedValue is one scaled measurement together with the words it came from.
type DecodedValue struct {
	Name  string
	Raw   []uint16
	Value float64
}

// DecodeScalar converts the leading words of a buffer into one scaled value.
// No IO. No side effects.
//
// Sign conversion happens on integers first; the factor is applied last,
// i.e. float64(int16(raw)) * factor, which equals (raw-0x10000)*factor.
func DecodeScalar(words []uint16, d Definition) (float64, error) {
	if d.Block {
		return 0, fmt.Errorf("%w: %q: block passed to scalar decode", ErrInvalidSchema, d.Name)
	}

	switch d.Count {
	case 1:
		if d.Float {
			return 0, fmt.Errorf("%w: %q: float requires count 2", ErrInvalidSchema, d.Name)
		}
		if len(words) < 1 {
			return 0, fmt.Errorf("%w: %q: need 1, got %d", ErrInsufficientWords, d.Name, len(words))
		}
		raw := words[0]
		if d.Signed {
			return float64(int16(raw)) * d.factor(), nil
		}
		return float64(raw) * d.factor(), nil

	case 2:
		if len(words) < 2 {
			return 0, fmt.Errorf("%w: %q: need 2, got %d", ErrInsufficientWords, d.Name, len(words))
		}
		// high word first
		raw := uint32(words[0])<<16 | uint32(words[1])
		if d.Float {
			return float64(math.Float32frombits(raw)) * d.factor(), nil
		}
		if d.Signed {
			return float64(int32(raw)) * d.factor(), nil
		}
		return float64(raw) * d.factor(), nil

	default:
		return 0, fmt.Errorf("%w: %q: count %d not in {1,2}", ErrInvalidSchema, d.Name, d.Count)
	}
}

// DecodeBlock walks the block entries in declaration order, consuming
// 1 or 2 words per entry from the same contiguous buffer.
func DecodeBlock(words []uint16, d Definition) ([]DecodedValue, error) {
	if !d.Block || len(d.Entries) == 0 {
		return nil, fmt.Errorf("%w: %q: not a block", ErrInvalidSchema, d.Name)
	}

	need := d.Words()
	if len(words) < need {
		return nil, fmt.Errorf("%w: block %q: need %d, got %d", ErrInsufficientWords, d.Name, need, len(words))
	}

	out := make([]DecodedValue, 0, len(d.Entries))
	idx := 0
	for _, e := range d.Entries {
		if e.Block {
			return nil, fmt.Errorf("%w: block %q: nested block %q", ErrInvalidSchema, d.Name, e.Name)
		}
		if e.Count != 1 && e.Count != 2 {
			return nil, fmt.Errorf("%w: %q: count %d not in {1,2}", ErrInvalidSchema, e.Name, e.Count)
		}

		raw := words[idx : idx+e.Count]
		v, err := DecodeScalar(raw, e)
		if err != nil {
			return nil, fmt.Errorf("block %q: %w", d.Name, err)
		}
		out = append(out, DecodedValue{
			Name:  e.Name,
			Raw:   append([]uint16(nil), raw...),
			Value: v,
		})
		idx += e.Count
	}
	return out, nil
}

// Decode decodes one top-level definition. Scalars yield exactly one value.
func Decode(words []uint16, d Definition) ([]DecodedValue, error) {
	if d.Block {
		return DecodeBlock(words, d)
	}

	v, err := DecodeScalar(words, d)
	if err != nil {
		return nil, err
	}
	return []DecodedValue{{
		Name:  d.Name,
		Raw:   append([]uint16(nil), words[:d.Count]...),
		Value: v,
	}}, nil
}

// Values maps decoded values by name. Later duplicates win.
func Values(vals []DecodedValue) map[string]float64 {
	m := make(map[string]float64, len(vals))
	for _, v := range vals {
		m[v.Name] = v.Value
	}
	return m
}
