package normalize

import "strings"

const promptTemplate = `You convert a quiz tournament document into JSON.

Return one JSON object and nothing else. It must match this JSON schema:

{{SCHEMA}}

Rules:
- Keep the order of tours, blocks and questions as in the document.
- Mark the warm-up tour with "warmup": true. There is at most one.
- Put questions either in "blocks" or in "questions" of a tour, never both.
- Copy question numbers as written. Use the text as written, do not translate or rephrase.
- Every question needs non-empty "text" and "answer".

Document:

{{DOCUMENT}}
`

func buildPrompt(rawText string) string {
	r := strings.NewReplacer("{{SCHEMA}}", schemaJSON, "{{DOCUMENT}}", rawText)
	return r.Replace(promptTemplate)
}
