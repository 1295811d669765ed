package models

// ElementRecord is the decoded summary of one DOM element.
type ElementRecord struct {
	Tag   string `json:"tag"`
	ID    string `json:"id,omitempty"`
	Class string `json:"class,omitempty"`
	Text  string `json:"text,omitempty"`
}
