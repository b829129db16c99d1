package model

import (
	"fmt"
	"regexp"
)

type ContentKind string

const (
	ContentText  ContentKind = "text"
	ContentAudio ContentKind = "audio"
	ContentImage ContentKind = "image"
	ContentVideo ContentKind = "video"
	ContentFile  ContentKind = "file"
)

// Content is the canonical form of one inbound message, independent of the
// channel it arrived on. Text is set for ContentText; Data and MIMEType for
// every other kind.
type Content struct {
	Kind     ContentKind
	Text     string
	Data     []byte
	MIMEType string
}

// NewTextContent returns a text content unit
func NewTextContent(text string) Content {
	return Content{Kind: ContentText, Text: text}
}

// NewMediaContent returns a binary content unit of the given kind
func NewMediaContent(kind ContentKind, data []byte, mimeType string) Content {
	return Content{Kind: kind, Data: data, MIMEType: mimeType}
}

// IsMedia reports whether the content carries a binary payload
func (c Content) IsMedia() bool {
	return c.Kind != ContentText
}

// Transcript is what gets written to the conversation log for this content
func (c Content) Transcript() string {
	if c.Kind == ContentText {
		return c.Text
	}
	return fmt.Sprintf("[%s message]", c.Kind)
}

var urlPattern = regexp.MustCompile(`https?://[^\s]+`)

// AnnotateLinks appends a marker naming the first URL found in text so the
// model notices it can read the link. Text without URLs is returned as is.
func AnnotateLinks(text string) string {
	url := urlPattern.FindString(text)
	if url == "" {
		return text
	}
	return text + "\n[This message contains a link: " + url + "]"
}
