package usecase

import (
	"encoding/base64"
	"strings"

	"mailcal/internal/mail/domain"

	"golang.org/x/net/html"
)

const (
	mimeTextPlain = "text/plain"
	mimeTextHTML  = "text/html"
)

// ExtractBody returns the trimmed text of a message payload.
//
// Parts are walked depth-first in order; every text/plain or text/html part
// with data overwrites the result, so the last matching part wins. A payload
// without parts uses its own body. HTML is reduced to its text content.
func ExtractBody(payload *domain.Payload) string {
	if payload == nil {
		return ""
	}

	var body string
	if len(payload.Parts) > 0 {
		var walk func(parts []*domain.Payload)
		walk = func(parts []*domain.Payload) {
			for _, part := range parts {
				if part == nil {
					continue
				}
				if text, ok := partText(part); ok {
					body = text
				}
				if len(part.Parts) > 0 {
					walk(part.Parts)
				}
			}
		}
		walk(payload.Parts)
	} else if payload.HasData() {
		if data, err := DecodeBase64URL(payload.Body.Data); err == nil {
			body = string(data)
			if mimeBase(payload.MimeType) == mimeTextHTML {
				body = HTMLToText(body)
			}
		}
	}

	return strings.TrimSpace(body)
}

func partText(part *domain.Payload) (string, bool) {
	mime := mimeBase(part.MimeType)
	if (mime != mimeTextPlain && mime != mimeTextHTML) || !part.HasData() {
		return "", false
	}
	data, err := DecodeBase64URL(part.Body.Data)
	if err != nil {
		return "", false
	}
	if mime == mimeTextHTML {
		return HTMLToText(string(data)), true
	}
	return string(data), true
}

// mimeBase drops parameters such as "; charset=utf-8"
func mimeBase(mimeType string) string {
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = mimeType[:i]
	}
	return strings.ToLower(strings.TrimSpace(mimeType))
}

// DecodeBase64URL accepts base64url data with or without padding
func DecodeBase64URL(data string) ([]byte, error) {
	data = strings.TrimSpace(data)
	if decoded, err := base64.URLEncoding.DecodeString(data); err == nil {
		return decoded, nil
	}
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "="))
}

// HTMLToText returns the visible text of an HTML document, one line per text node
func HTMLToText(doc string) string {
	z := html.NewTokenizer(strings.NewReader(doc))
	var sb strings.Builder
	skip := 0

	for {
		switch z.Next() {
		case html.ErrorToken:
			// io.EOF or a malformed document: keep what was read
			return strings.TrimSpace(sb.String())
		case html.StartTagToken:
			name, _ := z.TagName()
			if isInvisible(string(name)) {
				skip++
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if isInvisible(string(name)) && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip > 0 {
				continue
			}
			text := strings.TrimSpace(string(z.Text()))
			if text == "" {
				continue
			}
			if sb.Len() > 0 {
				sb.WriteString("\n")
			}
			sb.WriteString(text)
		}
	}
}

func isInvisible(tag string) bool {
	return tag == "script" || tag == "style" || tag == "noscript" || tag == "title"
}
