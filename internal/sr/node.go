// Package sr extracts clinical measurement values from DICOM structured
// reports. A report is decoded into a tree of Nodes, walked once in pre-order,
// and flattened into a label -> value Result.
package sr

// Tag is a DICOM attribute key in the "gggg,eeee" form used by the archive's
// tag dump (lower-case hex, comma separated).
type Tag string

const (
	TagCodeValue               Tag = "0008,0100"
	TagCodeMeaning             Tag = "0008,0104"
	TagPatientName             Tag = "0010,0010"
	TagPatientID               Tag = "0010,0020"
	TagPatientBirthDate        Tag = "0010,0030"
	TagRelationshipType        Tag = "0040,a010"
	TagValueType               Tag = "0040,a040"
	TagConceptNameCodeSequence Tag = "0040,a043"
	TagDate                    Tag = "0040,a121"
	TagConceptCodeSequence     Tag = "0040,a168"
	TagMeasuredValueSequence   Tag = "0040,a300"
	TagNumericValue            Tag = "0040,a30a"
	TagContentSequence         Tag = "0040,a730"
)

// RelationshipType is the SR relationship between a content item and its
// parent (0040,A010).
type RelationshipType string

const (
	RelContains      RelationshipType = "CONTAINS"
	RelHasObsContext RelationshipType = "HAS OBS CONTEXT"
	RelHasConceptMod RelationshipType = "HAS CONCEPT MOD"
	RelHasProperties RelationshipType = "HAS PROPERTIES"
	RelHasAcqContext RelationshipType = "HAS ACQ CONTEXT"
	RelInferredFrom  RelationshipType = "INFERRED FROM"
	RelSelectedFrom  RelationshipType = "SELECTED FROM"
)

// ValueType is the SR content item value type (0040,A040).
type ValueType string

const (
	ValueNum       ValueType = "NUM"
	ValueText      ValueType = "TEXT"
	ValueDate      ValueType = "DATE"
	ValueCode      ValueType = "CODE"
	ValueContainer ValueType = "CONTAINER"
)

// Kind discriminates the payload carried by a Value.
type Kind int

const (
	KindText Kind = iota + 1
	KindNumeric
	KindDate
	KindCode
	KindSequence
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindNumeric:
		return "numeric"
	case KindDate:
		return "date"
	case KindCode:
		return "code"
	case KindSequence:
		return "sequence"
	default:
		return "unknown"
	}
}

// Value is a node field payload: a scalar string of some Kind, or a sequence
// of child nodes. The zero Value is absent.
type Value struct {
	kind  Kind
	text  string
	items []*Node
}

func Text(s string) Value    { return Value{kind: KindText, text: s} }
func Numeric(s string) Value { return Value{kind: KindNumeric, text: s} }
func Date(s string) Value    { return Value{kind: KindDate, text: s} }
func Code(s string) Value    { return Value{kind: KindCode, text: s} }

// Sequence wraps child nodes as a sequence value.
func Sequence(items ...*Node) Value {
	return Value{kind: KindSequence, items: items}
}

// Kind returns the payload kind, or 0 for an absent value.
func (v Value) Kind() Kind { return v.kind }

// Scalar returns the string payload. It reports false for sequences and
// absent values.
func (v Value) Scalar() (string, bool) {
	if v.kind == 0 || v.kind == KindSequence {
		return "", false
	}
	return v.text, true
}

// Items returns the child nodes of a sequence value, or nil for any other kind.
func (v Value) Items() []*Node {
	if v.kind != KindSequence {
		return nil
	}
	return v.items
}

// Field is one attribute of a Node.
type Field struct {
	Tag   Tag
	Value Value
}

// Node is a content item (or the document root). Fields keep the order in
// which they were decoded, which fixes the traversal order of child
// sequences.
type Node struct {
	Fields []Field
}

// NewNode builds a node from fields in the given order.
func NewNode(fields ...Field) *Node {
	return &Node{Fields: fields}
}

// Get returns the first field with the given tag.
func (n *Node) Get(tag Tag) (Value, bool) {
	if n == nil {
		return Value{}, false
	}
	for _, f := range n.Fields {
		if f.Tag == tag {
			return f.Value, true
		}
	}
	return Value{}, false
}

// Scalar returns the string payload of tag, if present and scalar.
func (n *Node) Scalar(tag Tag) (string, bool) {
	v, ok := n.Get(tag)
	if !ok {
		return "", false
	}
	return v.Scalar()
}

// Items returns the children under a sequence-valued tag.
func (n *Node) Items(tag Tag) []*Node {
	v, _ := n.Get(tag)
	return v.Items()
}

// Sequences returns every sequence-valued field in field order.
func (n *Node) Sequences() [][]*Node {
	if n == nil {
		return nil
	}
	var out [][]*Node
	for _, f := range n.Fields {
		if f.Value.kind == KindSequence {
			out = append(out, f.Value.items)
		}
	}
	return out
}

func (n *Node) RelationshipType() RelationshipType {
	s, _ := n.Scalar(TagRelationshipType)
	return RelationshipType(s)
}

func (n *Node) ValueType() ValueType {
	s, _ := n.Scalar(TagValueType)
	return ValueType(s)
}

// IsMeasurement reports whether the node is a numeric item contained in its
// parent.
func (n *Node) IsMeasurement() bool {
	return n.RelationshipType() == RelContains && n.ValueType() == ValueNum
}

// ConceptMeaning is the code meaning of the node's first concept name entry.
func (n *Node) ConceptMeaning() (string, bool) {
	return firstMeaning(n.Items(TagConceptNameCodeSequence))
}

// CodeMeaning is the code meaning of the node's first concept code entry,
// i.e. the coded value of a CODE item.
func (n *Node) CodeMeaning() (string, bool) {
	return firstMeaning(n.Items(TagConceptCodeSequence))
}

// Content returns the node's nested content items.
func (n *Node) Content() []*Node {
	return n.Items(TagContentSequence)
}

func firstMeaning(entries []*Node) (string, bool) {
	if len(entries) == 0 {
		return "", false
	}
	return entries[0].Scalar(TagCodeMeaning)
}

// Document is a decoded structured report.
type Document struct {
	Root *Node
}

// Demographic reads a top-level attribute, defaulting to "".
func (d *Document) Demographic(tag Tag) string {
	if d == nil {
		return ""
	}
	s, _ := d.Root.Scalar(tag)
	return s
}
