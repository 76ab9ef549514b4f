package formdata

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Kind identifies the JSON node type of a Value.
type Kind int

const (
	KindNull Kind = iota
	KindObject
	KindArray
	KindString
	KindNumber
	KindBool
)

// Value is one node of a parsed form payload. Object members keep the
// document order of the raw JSON, which plain map decoding would lose;
// attachment discovery depends on that order.
type Value struct {
	Kind    Kind
	Members []Member // object members, in document order
	Items   []Value  // array items
	Str     string   // string value, or raw text for numbers
	Bool    bool
}

// Member is one key/value pair of a JSON object.
type Member struct {
	Key   string
	Value Value
}

// Parse decodes a raw JSON payload into an order-preserving tree.
func Parse(raw []byte) (*Value, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	v, err := parseValue(dec)
	if err != nil {
		return nil, fmt.Errorf("failed to parse form payload: %w", err)
	}
	return &v, nil
}

func parseValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}

	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			return parseObject(dec)
		case '[':
			return parseArray(dec)
		default:
			return Value{}, fmt.Errorf("unexpected delimiter %q", t.String())
		}
	case string:
		return Value{Kind: KindString, Str: t}, nil
	case json.Number:
		return Value{Kind: KindNumber, Str: t.String()}, nil
	case bool:
		return Value{Kind: KindBool, Bool: t}, nil
	case nil:
		return Value{Kind: KindNull}, nil
	default:
		return Value{}, fmt.Errorf("unexpected token %v", tok)
	}
}

func parseObject(dec *json.Decoder) (Value, error) {
	obj := Value{Kind: KindObject}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return Value{}, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return Value{}, fmt.Errorf("object key is not a string: %v", keyTok)
		}
		val, err := parseValue(dec)
		if err != nil {
			return Value{}, err
		}
		obj.Members = append(obj.Members, Member{Key: key, Value: val})
	}
	// Consume the closing brace.
	if _, err := dec.Token(); err != nil {
		return Value{}, err
	}
	return obj, nil
}

func parseArray(dec *json.Decoder) (Value, error) {
	arr := Value{Kind: KindArray}
	for dec.More() {
		item, err := parseValue(dec)
		if err != nil {
			return Value{}, err
		}
		arr.Items = append(arr.Items, item)
	}
	if _, err := dec.Token(); err != nil {
		return Value{}, err
	}
	return arr, nil
}

// Get returns the value of the first object member with the given key,
// or nil when the receiver is not an object or has no such member.
func (v *Value) Get(key string) *Value {
	if v == nil || v.Kind != KindObject {
		return nil
	}
	for i := range v.Members {
		if v.Members[i].Key == key {
			return &v.Members[i].Value
		}
	}
	return nil
}

// StringValue returns the node's string content, or "" for non-strings.
func (v *Value) StringValue() string {
	if v == nil || v.Kind != KindString {
		return ""
	}
	return v.Str
}

// DataField returns payload["data"][key] as a string. OS2Forms payloads keep
// the submitted field values under a top-level "data" object.
func (v *Value) DataField(key string) string {
	return v.Get("data").Get(key).StringValue()
}

// CompletedAt returns the form's completion timestamp from the entity block
// (entity.completed[0].value), or "" when absent.
func (v *Value) CompletedAt() string {
	completed := v.Get("entity").Get("completed")
	if completed == nil || completed.Kind != KindArray || len(completed.Items) == 0 {
		return ""
	}
	return completed.Items[0].Get("value").StringValue()
}
