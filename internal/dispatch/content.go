package dispatch

import (
	"path/filepath"
	"strings"

	"github.com/HugoP8/whazaaa/internal/whatsapp"
)

// KindForExtension maps a media file extension (with or without the dot,
// any case) onto the message kind used to send it.
func KindForExtension(ext string) whatsapp.ContentKind {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "jpg", "jpeg", "png":
		return whatsapp.KindImage
	case "mp4", "avi":
		return whatsapp.KindVideo
	default:
		return whatsapp.KindDocument
	}
}

// BuildContent renders the message every recipient of a run receives.
// Without media it is plain text; with media the text becomes the caption,
// except for documents which carry their original file name instead.
func BuildContent(message, mediaPath, ext string, data []byte) whatsapp.Content {
	if mediaPath == "" {
		return whatsapp.Content{Kind: whatsapp.KindText, Text: message}
	}

	kind := KindForExtension(ext)
	content := whatsapp.Content{Kind: kind, Data: data}
	if kind == whatsapp.KindDocument {
		content.FileName = filepath.Base(mediaPath)
	} else {
		content.Caption = message
	}
	return content
}
