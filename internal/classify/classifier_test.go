package classify

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	c := New(nil)
	tests := []struct {
		name   string
		line   string
		kind   Kind
		number string
		field  FieldKind
		value  string
	}{
		{name: "empty", line: "   ", kind: NoMatch},
		{name: "plain text", line: "Этот человек родился в 1812 году.", kind: NoMatch},
		{name: "tour ru", line: "Тур 2", kind: TourStart, number: "2"},
		{name: "tour ru with sign", line: "Тур №3.", kind: TourStart, number: "3"},
		{name: "tour ordinal", line: "1-й тур", kind: TourStart, number: "1"},
		{name: "tour en", line: "Round 4", kind: TourStart, number: "4"},
		{name: "tour word prefix", line: "Туризм в Карелии", kind: NoMatch},
		{name: "warmup ru", line: "Разминка", kind: WarmupStart},
		{name: "warmup en", line: "Warm-up round", kind: WarmupStart},
		{name: "tour zero is warmup", line: "Тур 0", kind: WarmupStart},
		{name: "block", line: "Блок 2", kind: BlockStart},
		{name: "question ru", line: "Вопрос 12. Текст вопроса", kind: QuestionStart, number: "12", value: "Текст вопроса"},
		{name: "question letter", line: "Вопрос Б: текст", kind: QuestionStart, number: "Б", value: "текст"},
		{name: "question en", line: "Question 7: What is it?", kind: QuestionStart, number: "7", value: "What is it?"},
		{name: "questions header", line: "Вопросы к туру", kind: NoMatch},
		{name: "answer", line: "Ответ: Наполеон.", kind: FieldLabel, field: FieldAnswer, value: "Наполеон."},
		{name: "accepted", line: "Зачёт: Бонапарт", kind: FieldLabel, field: FieldAccepted, value: "Бонапарт"},
		{name: "rejected", line: "Незачет: Франция", kind: FieldLabel, field: FieldRejected, value: "Франция"},
		{name: "comment", line: "Комментарий: очевидно.", kind: FieldLabel, field: FieldComment, value: "очевидно."},
		{name: "source", line: "Источники: https://example.org", kind: FieldLabel, field: FieldSource, value: "https://example.org"},
		{name: "authors", line: "Автор: Иван Иванов", kind: FieldLabel, field: FieldAuthors, value: "Иван Иванов"},
		{name: "editors", line: "Редакторы: Пётр, Павел", kind: FieldLabel, field: FieldEditors, value: "Пётр, Павел"},
		{name: "host", line: "[Ведущему: читать медленно]", kind: FieldLabel, field: FieldHostInstructions, value: "читать медленно"},
		{name: "handout inline", line: "Раздатка: картинка", kind: FieldLabel, field: FieldHandout, value: "картинка"},
		{name: "handout open", line: "[Раздаточный материал:", kind: HandoutOpen},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := c.Classify(tt.line)
			require.Equal(t, tt.kind, m.Kind, "rule %s", m.Rule)
			if tt.number != "" {
				require.Equal(t, tt.number, m.Number)
			}
			if tt.field != "" {
				require.Equal(t, tt.field, m.Field)
			}
			if tt.value != "" {
				require.Equal(t, tt.value, m.Value)
			}
		})
	}
}

func TestHandoutEnd(t *testing.T) {
	c := New(nil)
	value, ok := c.HandoutEnd("последняя строка]")
	require.True(t, ok)
	require.Equal(t, "последняя строка", value)

	_, ok = c.HandoutEnd("ещё не конец")
	require.False(t, ok)
}

func TestLoadTableOverridesCategory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "table.yaml")
	content := `
question:
  - name: q_hash
    pattern: '^#(?P<number>\d+)\s*(?P<value>.*)$'
fields:
  answer:
    - name: answer_short
      pattern: '(?i)^отв\.\s*(?P<value>.*)$'
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	table, err := LoadTable(path)
	require.NoError(t, err)
	c := New(table)

	m := c.Classify("#5 Текст")
	require.Equal(t, QuestionStart, m.Kind)
	require.Equal(t, "5", m.Number)

	require.Equal(t, NoMatch, c.Classify("Вопрос 5. Текст").Kind)

	m = c.Classify("Отв. Москва")
	require.Equal(t, FieldLabel, m.Kind)
	require.Equal(t, FieldAnswer, m.Field)

	// untouched categories keep the defaults
	require.Equal(t, TourStart, c.Classify("Тур 1").Kind)
	require.Equal(t, FieldComment, c.Classify("Комментарий: да").Field)
}

func TestCompileRejectsBadPattern(t *testing.T) {
	_, err := Compile(TableSpec{Tour: []Rule{{Name: "bad", Pattern: "("}}})
	require.Error(t, err)
}
