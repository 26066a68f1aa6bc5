package chat

import (
	"path"
	"strings"
)

// Attachment is an uploaded file referenced by a prompt. Data holds a data URL for images.
type Attachment struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Data string `json:"data,omitempty"`
}

// Ext returns the lower-case file type, falling back to the name's extension.
func (a Attachment) Ext() string {
	if a.Type != "" {
		return strings.ToLower(strings.TrimPrefix(a.Type, "."))
	}
	return strings.ToLower(strings.TrimPrefix(path.Ext(a.Name), "."))
}

// PromptTitle renders the transcript title of a submission. Images are embedded as markdown
// above the text; spreadsheets and PDFs are referenced by name below it.
func PromptTitle(text string, att *Attachment) string {
	if att == nil {
		return text
	}

	switch att.Ext() {
	case "jpg", "jpeg", "png":
		if att.Data == "" {
			return text
		}
		return "![image](" + att.Data + ")  \n" + text
	case "xls", "xlsx", "pdf":
		return text + "  \n`" + att.Name + "`"
	default:
		return text
	}
}
