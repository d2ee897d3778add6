// Package chat holds the platform-neutral message and reply types passed
// between the Discord adapter, the admission gate and the pipeline.
package chat

import "strings"

// Attachment is a file attached to an inbound message.
type Attachment struct {
	URL         string
	Filename    string
	ContentType string
}

// IsImage reports whether the attachment is an image.
func (a Attachment) IsImage() bool {
	return strings.HasPrefix(strings.ToLower(a.ContentType), "image/")
}

// Message is an inbound chat message.
type Message struct {
	ID          string
	GuildID     string // empty for direct messages
	ChannelID   string
	ChannelName string
	AuthorID    string
	AuthorName  string
	AuthorIcon  string
	AuthorIsBot bool
	FromSelf    bool
	Content     string
	Attachments []Attachment
}

// FirstImage returns the first image attachment.
func (m Message) FirstImage() (Attachment, bool) {
	for _, a := range m.Attachments {
		if a.IsImage() {
			return a, true
		}
	}
	return Attachment{}, false
}

// Field is one name/value pair of a reply.
type Field struct {
	Name  string
	Value string
}

// MaxFieldLength is the longest field value a reply may carry.
const MaxFieldLength = 1024

// Reply is the message sent back in response to a translated message.
type Reply struct {
	AuthorName string
	AuthorIcon string
	Fields     []Field
}

// Truncate shortens s to MaxFieldLength runes, marking the cut with "...".
func Truncate(s string) string {
	r := []rune(s)
	if len(r) <= MaxFieldLength {
		return s
	}
	return string(r[:MaxFieldLength-3]) + "..."
}
