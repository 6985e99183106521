package graph

import (
	"fmt"

	"github.com/dyedgreen/cqlite-sub000/pkg/convert"
	"github.com/dyedgreen/cqlite-sub000/pkg/value"
)

// Params converts a map of native Go values into the value.Property map
// Txn.Run expects, so callers can write Params(map[string]any{"age": 30})
// instead of reaching for value.Integer/value.Text themselves. Go integer
// types bind as Integer (uint64 as Id) and float32/float64 - including a
// float64 from a decoded JSON body - bind as Real; strings always bind as
// Text.
func Params(native map[string]any) (map[string]value.Property, error) {
	out := make(map[string]value.Property, len(native))
	for k, v := range native {
		p, err := toProperty(v)
		if err != nil {
			return nil, fmt.Errorf("graph: param %q: %w", k, err)
		}
		out[k] = p
	}
	return out, nil
}

func toProperty(v any) (value.Property, error) {
	switch val := v.(type) {
	case nil:
		return value.Null, nil
	case value.Property:
		return val, nil
	case bool:
		return value.Boolean(val), nil
	case string:
		return value.Text(val), nil
	case []byte:
		return value.Blob(val), nil
	case uint64:
		return value.Id(val), nil
	case float32, float64:
		f, _ := convert.ToFloat64(val)
		return value.Real(f), nil
	case int8:
		return value.Integer(int64(val)), nil
	case int16:
		return value.Integer(int64(val)), nil
	case uint8:
		return value.Integer(int64(val)), nil
	case uint16:
		return value.Integer(int64(val)), nil
	case int, int32, int64, uint, uint32:
		i, _ := convert.ToInt64(val)
		return value.Integer(i), nil
	default:
		return value.Null, fmt.Errorf("unsupported parameter type %T", v)
	}
}
