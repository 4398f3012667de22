package data

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strconv"
	"strings"

	"github.com/trungdev/appchat-data/internal/treestore"
)

// MessagesStore manages per-conversation message logs. The log is the
// single shared copy of a conversation's history; only the summary
// previews are duplicated per participant.
type MessagesStore struct {
	store treestore.Store
}

// NewMessagesStore returns a MessagesStore using the provided tree store.
func NewMessagesStore(store treestore.Store) *MessagesStore {
	return &MessagesStore{store: store}
}

// messagesPath is the ordered message list of one conversation.
func messagesPath(conversationID string) string {
	return conversationID + "/messages"
}

// encodeContent extracts the wire content for a payload: text verbatim,
// photo/video as the asset URL, location as "<longitude>,<latitude>".
// Kinds outside the supported set keep the historical empty content on
// the wire, but the gap is surfaced with a warning instead of silently
// losing the payload.
func encodeContent(c Content) string {
	switch c.Kind {
	case KindText:
		return c.Text
	case KindPhoto, KindVideo:
		return c.URL
	case KindLocation:
		return fmt.Sprintf("%v,%v", c.Longitude, c.Latitude)
	default:
		log.Printf("data: cannot encode message kind %q, storing empty content", c.Kind)
		return ""
	}
}

// encodeMessage builds the wire form of one log entry.
func encodeMessage(m Message) map[string]any {
	return map[string]any{
		"id":           m.ID,
		"type":         string(m.Content.Kind),
		"content":      encodeContent(m.Content),
		"date":         m.Date,
		"time":         m.Time,
		"sender_email": m.SenderEmail,
		"is_read":      m.IsRead,
		"name":         m.SenderName,
	}
}

// decodeContent maps a wire (type, content) pair back onto the payload
// variant. ok=false drops the entry: photo/video need a parseable
// non-empty URL, location needs exactly two comma-separated numerics.
// Unknown tags survive as unsupported payloads with the raw content
// carried through.
func decodeContent(kind, content string) (Content, bool) {
	switch Kind(kind) {
	case KindText:
		return TextContent(content), true
	case KindPhoto:
		if !validURL(content) {
			return Content{}, false
		}
		return PhotoContent(content), true
	case KindVideo:
		if !validURL(content) {
			return Content{}, false
		}
		return VideoContent(content), true
	case KindLocation:
		parts := strings.Split(content, ",")
		if len(parts) != 2 {
			return Content{}, false
		}
		longitude, err1 := strconv.ParseFloat(parts[0], 64)
		latitude, err2 := strconv.ParseFloat(parts[1], 64)
		if err1 != nil || err2 != nil {
			return Content{}, false
		}
		return LocationContent(longitude, latitude), true
	default:
		return UnsupportedContent(kind, content), true
	}
}

func validURL(s string) bool {
	if s == "" {
		return false
	}
	_, err := url.ParseRequestURI(s)
	return err == nil
}

// decodeMessage turns one wire entry back into a Message. ok=false
// means the entry is dropped from the batch: a missing id or type, or
// kind-specific content that does not decode. The rest of the batch is
// unaffected.
func decodeMessage(entry any) (Message, bool) {
	m, ok := entry.(map[string]any)
	if !ok {
		return Message{}, false
	}
	id, ok := m["id"].(string)
	if !ok {
		return Message{}, false
	}
	kind, ok := m["type"].(string)
	if !ok {
		return Message{}, false
	}
	content, _ := m["content"].(string)

	payload, ok := decodeContent(kind, content)
	if !ok {
		return Message{}, false
	}

	name, ok := m["name"].(string)
	if !ok {
		name = "Unknown"
	}
	sender, _ := m["sender_email"].(string)
	date, _ := m["date"].(string)
	tm, _ := m["time"].(string)
	isRead, _ := m["is_read"].(bool)

	return Message{
		ID:          id,
		Content:     payload,
		Date:        date,
		Time:        tm,
		SenderEmail: sender,
		SenderName:  name,
		IsRead:      isRead,
	}, true
}

// MessageSnapshot is one delivery from a continuous message-log
// observation: the decoded log, or the fetch failure for that delivery.
type MessageSnapshot struct {
	Messages []Message
	Err      error
}

// GetMessages continuously observes a conversation's message log.
// Each delivery decodes the whole list best-effort: entries that fail
// to decode are absent from Messages, not reported. The channel closes
// when ctx is done.
func (s *MessagesStore) GetMessages(ctx context.Context, conversationID string) (<-chan MessageSnapshot, error) {
	raw, err := s.store.Observe(ctx, messagesPath(conversationID))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}

	out := make(chan MessageSnapshot)
	go func() {
		defer close(out)
		for snap := range raw {
			var decoded MessageSnapshot
			if snap.Err != nil {
				decoded.Err = fmt.Errorf("%w: %v", ErrFetchFailed, snap.Err)
			} else if list, ok := snap.Value.([]any); ok {
				msgs := make([]Message, 0, len(list))
				for _, e := range list {
					if msg, ok := decodeMessage(e); ok {
						msgs = append(msgs, msg)
					}
				}
				decoded.Messages = msgs
			} else {
				decoded.Err = ErrFetchFailed
			}

			select {
			case out <- decoded:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// AppendMessage adds one entry to the end of an existing conversation
// log. The append is a whole-array rewrite — no atomic append exists —
// so two concurrent senders can race and one message can be lost.
// Sending into a conversation whose log does not exist is a fetch
// failure, not a creation.
func (s *MessagesStore) AppendMessage(ctx context.Context, conversationID string, msg Message) error {
	return rewriteList(ctx, s.store, messagesPath(conversationID), func(entries []any, exists bool) ([]any, error) {
		if !exists {
			return nil, ErrFetchFailed
		}
		return append(entries, encodeMessage(msg)), nil
	})
}

// SeedLog writes a brand-new single-entry log for the conversation,
// unconditionally overwriting whatever sits at the conversation's node.
// Reusing a conversation id therefore destroys its prior history;
// callers own id uniqueness.
func (s *MessagesStore) SeedLog(ctx context.Context, conversationID string, first Message) error {
	value := map[string]any{
		"messages": []any{encodeMessage(first)},
	}
	if err := s.store.SetValue(ctx, conversationID, value); err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	return nil
}
