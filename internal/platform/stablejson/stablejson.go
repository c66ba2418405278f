// Package stablejson renders values as JSON with object keys sorted
// recursively, so semantically equal payloads always produce identical
// bytes regardless of map iteration or upstream field order.
package stablejson

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/bytedance/sonic"
)

// Marshal encodes v deterministically. Values that are not maps or
// slices are encoded with the regular JSON rules.
func Marshal(v any) ([]byte, error) {
	normalized, err := normalize(v)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := encode(&buf, normalized); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// normalize round-trips v through JSON so struct values, typed maps and
// typed slices all collapse into the generic map/slice/scalar shape the
// encoder understands. Numbers land as float64 on both sides of any
// comparison, which keeps the output stable across input types.
func normalize(v any) (any, error) {
	if v == nil {
		return nil, nil
	}

	raw, err := sonic.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("normalize value: %w", err)
	}
	var out any
	if err := sonic.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("normalize value: %w", err)
	}
	return out, nil
}

func encode(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			encodedKey, err := sonic.Marshal(k)
			if err != nil {
				return fmt.Errorf("encode key %q: %w", k, err)
			}
			buf.Write(encodedKey)
			buf.WriteByte(':')
			if err := encode(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case []any:
		buf.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encode(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	default:
		raw, err := sonic.Marshal(val)
		if err != nil {
			return fmt.Errorf("encode scalar: %w", err)
		}
		buf.Write(raw)
	}
	return nil
}
