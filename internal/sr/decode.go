package sr

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	// ErrNotObject is returned by Decode when the document root is not a JSON
	// object.
	ErrNotObject = errors.New("sr: document root is not an object")
	// ErrTrailingData is returned when anything but whitespace follows the
	// closing brace of an object.
	ErrTrailingData = errors.New("sr: trailing data after object")
)

// Attribute types used by the archive's tag dump.
const (
	attrString   = "String"
	attrSequence = "Sequence"
)

// attribute is one entry of the tag dump:
//
//	"0040,a30a": {"Name": "NumericValue", "Type": "String", "Value": "34.5"}
type attribute struct {
	Name  string          `json:"Name"`
	Type  string          `json:"Type"`
	Value json.RawMessage `json:"Value"`
}

// Decode converts an archive tag dump (the JSON served for
// /instances/{id}/tags) into a Document. Field order follows the order of the
// keys in the JSON object. Attributes whose shape is not understood (binary,
// null or truncated values) are dropped.
func Decode(raw []byte) (*Document, error) {
	root, err := decodeNode(raw)
	if err != nil {
		return nil, err
	}
	return &Document{Root: root}, nil
}

func decodeNode(raw []byte) (*Node, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("sr: read document: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, ErrNotObject
	}

	node := &Node{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("sr: read tag: %w", err)
		}
		key, _ := keyTok.(string)

		var attr attribute
		if err := dec.Decode(&attr); err != nil {
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &typeErr) {
				continue
			}
			return nil, fmt.Errorf("sr: read %s: %w", key, err)
		}

		tag := Tag(strings.ToLower(key))
		if v, ok := decodeValue(tag, attr); ok {
			node.Fields = append(node.Fields, Field{Tag: tag, Value: v})
		}
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("sr: read document end: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, ErrTrailingData
	}
	return node, nil
}

func decodeValue(tag Tag, attr attribute) (Value, bool) {
	switch attr.Type {
	case attrSequence:
		var items []json.RawMessage
		if err := json.Unmarshal(attr.Value, &items); err != nil {
			return Value{}, false
		}
		children := make([]*Node, 0, len(items))
		for _, item := range items {
			child, err := decodeNode(item)
			if err != nil {
				continue
			}
			children = append(children, child)
		}
		return Sequence(children...), true
	case attrString:
		var s string
		if err := json.Unmarshal(attr.Value, &s); err != nil {
			return Value{}, false
		}
		return scalarFor(tag, s), true
	default:
		return Value{}, false
	}
}

// scalarFor classifies a string attribute by its tag.
func scalarFor(tag Tag, s string) Value {
	switch tag {
	case TagNumericValue:
		return Numeric(s)
	case TagDate, TagPatientBirthDate:
		return Date(s)
	case TagCodeMeaning, TagCodeValue:
		return Code(s)
	default:
		return Text(s)
	}
}
