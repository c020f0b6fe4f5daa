package storage

import (
	"fmt"

	"quiz-lab/errors"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// serverTimestamp is the write placeholder swapped for the store clock at commit.
type serverTimestamp struct{}

func encodeDocument(doc map[string]any) ([]byte, error) {
	s, err := structpb.NewStruct(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrUnsupportedValue, err)
	}
	return proto.Marshal(s)
}

func decodeDocument(data []byte) (map[string]any, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal document: %w", err)
	}
	return s.AsMap(), nil
}

// normalize converts a caller value into the subset structpb accepts,
// resolving server timestamps with ts. Empty maps collapse to nil: a node
// without children does not exist.
func normalize(value any, ts int64) (any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case serverTimestamp:
		return float64(ts), nil
	case bool, string, float64:
		return v, nil
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case float32:
		return float64(v), nil
	case []string:
		out := make([]any, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out, nil
	case []any:
		out := make([]any, 0, len(v))
		for _, item := range v {
			n, err := normalize(item, ts)
			if err != nil {
				return nil, err
			}
			out = append(out, n)
		}
		return out, nil
	case map[string]bool:
		if len(v) == 0 {
			return nil, nil
		}
		out := make(map[string]any, len(v))
		for k, b := range v {
			out[k] = b
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			if k == "" {
				return nil, fmt.Errorf("%w: empty key", errors.ErrUnsupportedValue)
			}
			n, err := normalize(item, ts)
			if err != nil {
				return nil, err
			}
			if n != nil {
				out[k] = n
			}
		}
		if len(out) == 0 {
			return nil, nil
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %T", errors.ErrUnsupportedValue, value)
	}
}

func getIn(doc map[string]any, field []string) any {
	var current any = doc
	for _, segment := range field {
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current = m[segment]
	}
	if m, ok := current.(map[string]any); ok && len(m) == 0 {
		return nil
	}
	return current
}

// setIn writes value at field inside doc, creating intermediate maps and
// pruning the ones a deletion leaves empty. It returns the resulting document,
// nil when nothing is left.
func setIn(doc map[string]any, field []string, value any) map[string]any {
	if len(field) == 0 {
		m, _ := value.(map[string]any)
		if len(m) == 0 {
			return nil
		}
		return m
	}
	if doc == nil {
		if value == nil {
			return nil
		}
		doc = make(map[string]any)
	}
	head := field[0]
	if len(field) == 1 {
		if value == nil {
			delete(doc, head)
		} else {
			doc[head] = value
		}
	} else {
		child, _ := doc[head].(map[string]any)
		child = setIn(child, field[1:], value)
		if child == nil {
			delete(doc, head)
		} else {
			doc[head] = child
		}
	}
	if len(doc) == 0 {
		return nil
	}
	return doc
}
