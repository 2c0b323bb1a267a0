package prompt

import "strings"

type ExpertEntry struct {
	Number    int
	ID        string
	Name      string
	Industry  string
	Expertise []string
	Location  string
}

type AttachmentEntry struct {
	Name    string
	Content string
}

type RatingPromptData struct {
	Idea        string
	MaxPersonas int
	Experts     []ExpertEntry
	Attachments []AttachmentEntry
}

var templateFuncs = map[string]any{
	"join": strings.Join,
}
