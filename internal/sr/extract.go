package sr

// Extract walks the report content of doc and returns the flattened result,
// including derived values and patient demographics. A nil document yields an
// empty result. Extract holds no state between calls and is safe for
// concurrent use.
func Extract(doc *Document, targets TargetSet) Result {
	out := Result{}
	if doc == nil || doc.Root == nil {
		return out
	}
	for _, item := range doc.Root.Content() {
		walk(item, targets, out)
	}
	aggregate(doc, out)
	return out
}

// ExtractJSON decodes an archive tag dump and extracts it. A document that
// cannot be decoded yields an empty result.
func ExtractJSON(raw []byte, targets TargetSet) Result {
	doc, err := Decode(raw)
	if err != nil {
		return Result{}
	}
	return Extract(doc, targets)
}
