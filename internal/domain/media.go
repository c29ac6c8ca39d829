package domain

import "strings"

// Media is the attachment carried by an inbound message. It is built once
// when an update is normalized and is one of Document, LinkPreview or Unsupported.
// A plain text message carries no Media.
type Media interface {
	mediaKind() string
}

// Document is an uploaded file.
type Document struct {
	FileID   string
	FileName string
	MimeType string
	Size     int64
}

func (Document) mediaKind() string { return "document" }

// IsVideo reports whether the document declares a video MIME type.
func (d Document) IsVideo() bool {
	return strings.HasPrefix(strings.ToLower(d.MimeType), "video/")
}

// LinkPreview is a message whose only attachment is a web page preview.
type LinkPreview struct {
	URL string
}

func (LinkPreview) mediaKind() string { return "link_preview" }

// Unsupported is any other attachment (photo, sticker, voice, ...).
type Unsupported struct {
	Reason string
}

func (Unsupported) mediaKind() string { return "unsupported" }

// MediaKind returns a short label for logging.
func MediaKind(m Media) string {
	if m == nil {
		return "none"
	}
	return m.mediaKind()
}
