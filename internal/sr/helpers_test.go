package sr

func codeEntry(meaning string) *Node {
	return NewNode(
		Field{Tag: TagCodeValue, Value: Code("X")},
		Field{Tag: TagCodeMeaning, Value: Code(meaning)},
	)
}

func conceptName(meaning string) Field {
	return Field{Tag: TagConceptNameCodeSequence, Value: Sequence(codeEntry(meaning))}
}

func conceptCode(meaning string) Field {
	return Field{Tag: TagConceptCodeSequence, Value: Sequence(codeEntry(meaning))}
}

func content(children ...*Node) Field {
	return Field{Tag: TagContentSequence, Value: Sequence(children...)}
}

func relationship(r RelationshipType) Field {
	return Field{Tag: TagRelationshipType, Value: Text(string(r))}
}

func valueType(v ValueType) Field {
	return Field{Tag: TagValueType, Value: Text(string(v))}
}

func measured(v string) Field {
	return Field{Tag: TagMeasuredValueSequence, Value: Sequence(NewNode(
		Field{Tag: TagNumericValue, Value: Numeric(v)},
	))}
}

// numItem builds a CONTAINS/NUM measurement.
func numItem(meaning, value string, extra ...Field) *Node {
	fields := []Field{relationship(RelContains), valueType(ValueNum), conceptName(meaning), measured(value)}
	return NewNode(append(fields, extra...)...)
}

func codeItem(name, value string, extra ...Field) *Node {
	fields := []Field{relationship(RelHasConceptMod), valueType(ValueCode), conceptName(name), conceptCode(value)}
	return NewNode(append(fields, extra...)...)
}

func containerItem(name string, children ...*Node) *Node {
	return NewNode(relationship(RelContains), valueType(ValueContainer), conceptName(name), content(children...))
}

// lateralPI is a pulsatility index qualified by a finding site that carries
// a laterality modifier.
func lateralPI(side, value string) *Node {
	return numItem(MeaningPulsatilityIndex, value, content(
		codeItem("Finding Site", "Uterine Artery", content(codeItem(MeaningLaterality, side))),
	))
}

func document(demographics []Field, items ...*Node) *Document {
	fields := append([]Field{}, demographics...)
	fields = append(fields, content(items...))
	return &Document{Root: NewNode(fields...)}
}
