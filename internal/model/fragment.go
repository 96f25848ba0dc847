package model

type Image struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	ContentType string `json:"content_type"`
}

// Fragment is one block of text from the source document, in document order.
type Fragment struct {
	Position int     `json:"position"`
	Text     string  `json:"text"`
	Images   []Image `json:"images,omitempty"`
}
