package prompt

// Built-in templates used when no override exists in the prompt directory.
var defaults = map[string]string{
	"classify": `You group chat messages into conversation threads about the same topic.

Messages (id | author | text):
{{range .Messages}}{{.ID}} | {{.Author}} | {{.Content}}
{{end}}
Respond with a JSON array. Each element:
{"category": "...", "summary": "...", "message_ids": ["..."], "search_terms": ["..."]}

Categories: question, decision, announcement, troubleshooting, other.
Every message id must appear in at most one thread. Omit small talk.`,

	"generate": `You propose documentation changes based on a conversation thread.

Thread category: {{.Category}}
Thread summary: {{.Summary}}

Messages:
{{range .Messages}}- {{.Author}}: {{.Content}}
{{end}}
Existing documentation excerpts:
{{range .Documents}}[{{.Page}}{{if .Section}} > {{.Section}}{{end}}] {{.Content}}
{{end}}
Respond with a JSON array of proposals. Each element:
{"update_type": "insert|update|delete|none", "page": "...", "section": "...",
 "suggested_text": "...", "reasoning": "..."}

Propose nothing ("update_type": "none") when the docs already cover the thread.`,

	"condense": `Merge these overlapping documentation proposals for the same page into one.

{{range .Proposals}}- ({{.UpdateType}}) {{.Page}}{{if .Section}} > {{.Section}}{{end}}: {{.SuggestedText}}
{{end}}
Respond with JSON: {"suggested_text": "...", "reasoning": "..."}`,
}
