package document

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoTimeLayout is the fixed width UTC layout timestamps are stored with in
// DynamoDB, so that string order is chronological order.
const DynamoTimeLayout = "2006-01-02T15:04:05.000000000Z"

func toAttributeValue(v any) (types.AttributeValue, error) {
	switch t := v.(type) {
	case nil:
		return &types.AttributeValueMemberNULL{Value: true}, nil
	case string:
		return &types.AttributeValueMemberS{Value: t}, nil
	case bool:
		return &types.AttributeValueMemberBOOL{Value: t}, nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return &types.AttributeValueMemberN{Value: fmt.Sprint(t)}, nil
	case float32, float64:
		return &types.AttributeValueMemberN{Value: strconv.FormatFloat(toFloat(t), 'f', -1, 64)}, nil
	case time.Time:
		return &types.AttributeValueMemberS{Value: t.UTC().Format(DynamoTimeLayout)}, nil
	case []string:
		list := make([]types.AttributeValue, len(t))
		for i, s := range t {
			list[i] = &types.AttributeValueMemberS{Value: s}
		}
		return &types.AttributeValueMemberL{Value: list}, nil
	case []any:
		list := make([]types.AttributeValue, len(t))
		for i, e := range t {
			av, err := toAttributeValue(e)
			if err != nil {
				return nil, err
			}
			list[i] = av
		}
		return &types.AttributeValueMemberL{Value: list}, nil
	case Fields:
		return toAttributeValue(map[string]any(t))
	case map[string]any:
		m := make(map[string]types.AttributeValue, len(t))
		for k, e := range t {
			av, err := toAttributeValue(e)
			if err != nil {
				return nil, err
			}
			m[k] = av
		}
		return &types.AttributeValueMemberM{Value: m}, nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}

func fromAttributeValue(av types.AttributeValue) any {
	switch t := av.(type) {
	case *types.AttributeValueMemberS:
		return t.Value
	case *types.AttributeValueMemberBOOL:
		return t.Value
	case *types.AttributeValueMemberN:
		if i, err := strconv.ParseInt(t.Value, 10, 64); err == nil {
			return i
		}
		f, _ := strconv.ParseFloat(t.Value, 64)
		return f
	case *types.AttributeValueMemberL:
		out := make([]any, len(t.Value))
		for i, e := range t.Value {
			out[i] = fromAttributeValue(e)
		}
		return out
	case *types.AttributeValueMemberM:
		out := make(map[string]any, len(t.Value))
		for k, e := range t.Value {
			out[k] = fromAttributeValue(e)
		}
		return out
	case *types.AttributeValueMemberSS:
		out := make([]any, len(t.Value))
		for i, s := range t.Value {
			out[i] = s
		}
		return out
	default:
		return nil
	}
}

// ordValue encodes an order field value so that byte order matches the order
// of compareValues for the stored representation. Timestamps are stored as
// strings and order as strings. Values that cannot be ordered report false.
func ordValue(v any) (string, bool) {
	switch t := v.(type) {
	case bool:
		if t {
			return "11", true
		}
		return "10", true
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		bits := math.Float64bits(toFloat(t))
		if bits&(1<<63) == 0 {
			bits ^= 1 << 63
		} else {
			bits = ^bits
		}
		return "2" + fmt.Sprintf("%016x", bits), true
	case time.Time:
		return "4" + t.UTC().Format(DynamoTimeLayout), true
	case string:
		return "4" + t, true
	default:
		return "", false
	}
}

// ordKey is the range key of the ordering index: encoded value, a NUL
// separator, then the record id.
func ordKey(v any, id string) (string, bool) {
	enc, ok := ordValue(v)
	if !ok {
		return "", false
	}
	return enc + "\x00" + id, true
}

func sortedKeys(f Fields) []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
