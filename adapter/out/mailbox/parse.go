package mailbox

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-message"

	"replyflow_server/core/domain"
)

// parseMessage converts one fetched IMAP message into a RawMessage.
func parseMessage(msg *imap.Message, section *imap.BodySectionName) (*domain.RawMessage, error) {
	if msg.Envelope == nil {
		return nil, fmt.Errorf("message %d has no envelope", msg.Uid)
	}

	raw := &domain.RawMessage{
		UID:        msg.Uid,
		MessageID:  msg.Envelope.MessageId,
		Subject:    msg.Envelope.Subject,
		ReceivedAt: msg.Envelope.Date,
	}
	if raw.ReceivedAt.IsZero() {
		raw.ReceivedAt = time.Now().UTC()
	}
	if len(msg.Envelope.From) > 0 {
		from := msg.Envelope.From[0]
		raw.From = from.Address()
		raw.FromName = from.PersonalName
	}
	if raw.From == "" {
		return nil, fmt.Errorf("message %d has no sender", msg.Uid)
	}

	body := msg.GetBody(section)
	if body == nil {
		return raw, nil
	}

	entity, err := message.Read(body)
	if err != nil {
		// Header parsed, body unreadable: keep the envelope data.
		if !message.IsUnknownCharset(err) {
			return raw, nil
		}
	}
	raw.TextBody, raw.HTMLBody = extractBodies(entity)
	return raw, nil
}

// extractBodies pulls the text/plain and text/html parts out of a MIME tree.
// Attachments are ignored; the pipeline only classifies text.
func extractBodies(entity *message.Entity) (text, html string) {
	mediaType, _, _ := entity.Header.ContentType()

	if !strings.HasPrefix(mediaType, "multipart/") {
		body, _ := io.ReadAll(entity.Body)
		switch mediaType {
		case "text/html":
			return "", string(body)
		default:
			return string(body), ""
		}
	}

	mr := entity.MultipartReader()
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}

		partMediaType, _, _ := part.Header.ContentType()
		disposition, _, _ := part.Header.ContentDisposition()
		if disposition == "attachment" {
			continue
		}

		switch {
		case partMediaType == "text/plain" && text == "":
			body, _ := io.ReadAll(part.Body)
			text = string(body)
		case partMediaType == "text/html" && html == "":
			body, _ := io.ReadAll(part.Body)
			html = string(body)
		case strings.HasPrefix(partMediaType, "multipart/"):
			// Nested alternative inside mixed.
			t, h := extractBodies(part)
			if text == "" {
				text = t
			}
			if html == "" {
				html = h
			}
		}
	}
	return text, html
}
