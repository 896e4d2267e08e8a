package domain

// MessageRef identifies one message in the mailbox
type MessageRef struct {
	ID string `json:"id"`
}

// Body holds base64url-encoded content of a single MIME part
type Body struct {
	Data string `json:"data,omitempty"`
}

// Payload is a MIME-like message tree. Leaf parts carry Body.Data,
// multipart containers carry Parts.
type Payload struct {
	MimeType string     `json:"mimeType"`
	Body     *Body      `json:"body,omitempty"`
	Parts    []*Payload `json:"parts,omitempty"`
}

// HasData reports whether the part carries encoded content
func (p *Payload) HasData() bool {
	return p != nil && p.Body != nil && p.Body.Data != ""
}
