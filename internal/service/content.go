// internal/service/content.go
package service

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/unclebandit/smsleopard-webhooks/internal/model"
)

// Content is the closed set of inbound message shapes. Every provider type
// decodes to exactly one variant; anything unrecognised becomes UnknownContent.
type Content interface {
	isContent()
}

type TextContent struct{ Body string }

type MediaContent struct {
	Kind  string // image, video, audio, document, sticker
	Media model.MediaContent
}

type LocationContent struct{ Location model.LocationContent }

type ContactsContent struct{ Cards []model.ContactCard }

type InteractiveContent struct {
	Kind   string // button_reply, list_reply, or the raw interactive type
	Option *model.ReplyOption
}

// LegacyButtonContent is the quick-reply shape with text/payload field names.
type LegacyButtonContent struct{ Button model.ButtonContent }

type ReactionContent struct{ Reaction model.ReactionContent }

type UnknownContent struct{ Type string }

func (TextContent) isContent()         {}
func (MediaContent) isContent()        {}
func (LocationContent) isContent()     {}
func (ContactsContent) isContent()     {}
func (InteractiveContent) isContent()  {}
func (LegacyButtonContent) isContent() {}
func (ReactionContent) isContent()     {}
func (UnknownContent) isContent()      {}

// DecodeContent selects the variant named by msg.Type. A declared type whose
// body is missing is treated as unknown rather than an error.
func DecodeContent(msg *model.Message) Content {
	switch msg.Type {
	case "text":
		if msg.Text != nil {
			return TextContent{Body: msg.Text.Body}
		}
	case "image", "video", "audio", "document", "sticker":
		if media := mediaFor(msg); media != nil {
			return MediaContent{Kind: msg.Type, Media: *media}
		}
	case "location":
		if msg.Location != nil {
			return LocationContent{Location: *msg.Location}
		}
	case "contacts":
		if len(msg.Contacts) > 0 {
			return ContactsContent{Cards: msg.Contacts}
		}
	case "interactive":
		if msg.Interactive != nil {
			switch msg.Interactive.Type {
			case "button_reply":
				return InteractiveContent{Kind: "button_reply", Option: msg.Interactive.ButtonReply}
			case "list_reply":
				return InteractiveContent{Kind: "list_reply", Option: msg.Interactive.ListReply}
			default:
				return InteractiveContent{Kind: msg.Interactive.Type}
			}
		}
	case "button":
		if msg.Button != nil {
			return LegacyButtonContent{Button: *msg.Button}
		}
	case "reaction":
		if msg.Reaction != nil {
			return ReactionContent{Reaction: *msg.Reaction}
		}
	}
	return UnknownContent{Type: msg.Type}
}

func mediaFor(msg *model.Message) *model.MediaContent {
	switch msg.Type {
	case "image":
		return msg.Image
	case "video":
		return msg.Video
	case "audio":
		return msg.Audio
	case "document":
		return msg.Document
	case "sticker":
		return msg.Sticker
	}
	return nil
}

// ExtractedContent is what gets persisted for an incoming message.
type ExtractedContent struct {
	Text      string
	Media     *model.MediaDescriptor
	Selection *model.InteractiveSelection
}

// ExtractContent maps a message to its stored text and structured fields.
func ExtractContent(msg *model.Message) ExtractedContent {
	return Describe(DecodeContent(msg))
}

// Describe is the exhaustive mapping over Content variants.
func Describe(c Content) ExtractedContent {
	switch v := c.(type) {
	case TextContent:
		return ExtractedContent{Text: v.Body}

	case MediaContent:
		text := v.Media.Caption
		if text == "" && v.Kind == "document" {
			text = v.Media.Filename
		}
		if text == "" {
			text = "[" + capitalize(v.Kind) + "]"
		}
		return ExtractedContent{
			Text: text,
			Media: &model.MediaDescriptor{
				ID:       v.Media.ID,
				MimeType: v.Media.MimeType,
				Size:     v.Media.FileSize,
				SHA256:   v.Media.SHA256,
				Filename: v.Media.Filename,
			},
		}

	case LocationContent:
		loc := v.Location
		text := fmt.Sprintf("Location: %s, %s", formatCoordinate(loc.Latitude), formatCoordinate(loc.Longitude))
		if loc.Name != "" {
			text += " (" + loc.Name + ")"
		}
		if loc.Address != "" {
			text += " - " + loc.Address
		}
		return ExtractedContent{Text: text}

	case ContactsContent:
		name := strings.TrimSpace(v.Cards[0].Name.FormattedName)
		if name == "" {
			name = strings.TrimSpace(v.Cards[0].Name.FirstName + " " + v.Cards[0].Name.LastName)
		}
		if name == "" {
			return ExtractedContent{Text: "Contact"}
		}
		return ExtractedContent{Text: "Contact: " + name}

	case InteractiveContent:
		if v.Option == nil {
			return ExtractedContent{Text: "interactive message"}
		}
		label := "Button"
		if v.Kind == "list_reply" {
			label = "List"
		}
		return ExtractedContent{
			Text: label + ": " + v.Option.Title,
			Selection: &model.InteractiveSelection{
				Type:        v.Kind,
				ID:          v.Option.ID,
				Title:       v.Option.Title,
				Description: v.Option.Description,
			},
		}

	case LegacyButtonContent:
		return ExtractedContent{
			Text: "Button: " + v.Button.Text,
			Selection: &model.InteractiveSelection{
				Type:  "button",
				ID:    v.Button.Payload,
				Title: v.Button.Text,
			},
		}

	case ReactionContent:
		return ExtractedContent{Text: "Reaction: " + v.Reaction.Emoji}

	case UnknownContent:
		return ExtractedContent{Text: placeholder(v.Type)}

	default:
		return ExtractedContent{Text: "unknown message"}
	}
}

func placeholder(msgType string) string {
	if msgType == "" {
		msgType = "unknown"
	}
	return msgType + " message"
}

func formatCoordinate(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
