package classify

// DefaultSpec is the built-in Russian/English tournament vocabulary.
func DefaultSpec() TableSpec {
	return TableSpec{
		Warmup: []Rule{
			{Name: "warmup_ru", Pattern: `(?i)^\s*(?:разминка|разминочный\s+тур)\s*[.:]?\s*$`},
			{Name: "warmup_en", Pattern: `(?i)^\s*warm[\s-]?up(?:\s+(?:round|tour))?\s*[.:]?\s*$`},
			{Name: "tour_zero", Pattern: `(?i)^\s*(?:тур|tour|round)\s*(?:№\s*)?0\s*[.:]?\s*$`},
		},
		Tour: []Rule{
			{Name: "tour_ru", Pattern: `(?i)^\s*тур\s*(?:№\s*)?(?P<number>\d+)\s*(?:[.:\-–—]\s*(?P<name>.*))?$`},
			{Name: "tour_ru_ordinal", Pattern: `(?i)^\s*(?P<number>\d+)\s*(?:-?[йи]\s*)?тур(?:\s*[.:]\s*|\s+|$)(?P<name>.*)$`},
			{Name: "tour_en", Pattern: `(?i)^\s*(?:tour|round)\s*(?P<number>\d+)\s*(?:[.:\-–—]\s*(?P<name>.*))?$`},
		},
		Block: []Rule{
			{Name: "block_ru", Pattern: `(?i)^\s*блок\s+(?P<name>[^.:]+?)\s*[.:]?\s*$`},
			{Name: "block_en", Pattern: `(?i)^\s*block\s+(?P<name>[^.:]+?)\s*[.:]?\s*$`},
		},
		Question: []Rule{
			{Name: "question_ru_digits", Pattern: `(?i)^\s*вопрос\s*(?P<number>\d+[a-zа-я]?)\s*[.:)]?\s*(?P<value>.*)$`},
			{Name: "question_ru_label", Pattern: `(?i)^\s*вопрос\s+(?P<number>[^\s.:)]+)\s*[.:)]\s*(?P<value>.*)$`},
			{Name: "question_en_digits", Pattern: `(?i)^\s*question\s*(?P<number>\d+[a-z]?)\s*[.:)]?\s*(?P<value>.*)$`},
			{Name: "question_en_label", Pattern: `(?i)^\s*question\s+(?P<number>[^\s.:)]+)\s*[.:)]\s*(?P<value>.*)$`},
		},
		HandoutOpen: []Rule{
			{Name: "handout_ru", Pattern: `(?i)^\s*\[\s*(?:раздаточный\s+материал|раздатка)\s*:?\s*(?P<value>.*)$`},
			{Name: "handout_en", Pattern: `(?i)^\s*\[\s*handout\s*:?\s*(?P<value>.*)$`},
		},
		HandoutClose: []Rule{
			{Name: "bracket", Pattern: `^(?P<value>.*?)\]\s*$`},
		},
		Fields: map[FieldKind][]Rule{
			FieldAnswer: {
				{Name: "answer", Pattern: `(?i)^\s*(?:ответ|answer)\s*:\s*(?P<value>.*)$`},
			},
			FieldAccepted: {
				{Name: "accepted", Pattern: `(?i)^\s*(?:зач[её]т|засчитывать|accepted|accept)\s*:\s*(?P<value>.*)$`},
			},
			FieldRejected: {
				{Name: "rejected", Pattern: `(?i)^\s*(?:незач[её]т|не\s+засчитывать|rejected|do\s+not\s+accept)\s*:\s*(?P<value>.*)$`},
			},
			FieldComment: {
				{Name: "comment", Pattern: `(?i)^\s*(?:комментари[йи]|comments?)\s*:\s*(?P<value>.*)$`},
			},
			FieldSource: {
				{Name: "source", Pattern: `(?i)^\s*(?:источники?|sources?)\s*(?:\(\w+\))?\s*:\s*(?P<value>.*)$`},
			},
			FieldAuthors: {
				{Name: "authors", Pattern: `(?i)^\s*(?:авторы?|authors?)\s*:\s*(?P<value>.*)$`},
			},
			FieldEditors: {
				{Name: "editors", Pattern: `(?i)^\s*(?:редакторы?|редактура|editors?)\s*:\s*(?P<value>.*)$`},
			},
			FieldHostInstructions: {
				{Name: "host_ru", Pattern: `(?i)^\s*\[?\s*(?:ведущему|указание\s+ведущему)\s*:\s*(?P<value>.*?)\]?\s*$`},
				{Name: "host_en", Pattern: `(?i)^\s*\[?\s*(?:note\s+to\s+host|host)\s*:\s*(?P<value>.*?)\]?\s*$`},
			},
			FieldHandout: {
				{Name: "handout_inline", Pattern: `(?i)^\s*(?:раздаточный\s+материал|раздатка|handout)\s*:\s*(?P<value>.*)$`},
			},
		},
	}
}

// DefaultTable compiles DefaultSpec. The built-in patterns are known to compile.
func DefaultTable() *Table {
	t, err := Compile(DefaultSpec())
	if err != nil {
		panic(err)
	}
	return t
}
