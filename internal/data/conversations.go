package data

import (
	"context"
	"fmt"

	"github.com/trungdev/appchat-data/internal/normalize"
	"github.com/trungdev/appchat-data/internal/treestore"
)

// ConversationsStore manages the per-user conversation summary indexes
// and the dual-copy fan-out that keeps the two participants' copies of
// each conversation eventually consistent.
type ConversationsStore struct {
	store treestore.Store
	msgs  *MessagesStore
}

// NewConversationsStore returns a ConversationsStore; msgs is used to
// seed and append to the shared message logs.
func NewConversationsStore(store treestore.Store, msgs *MessagesStore) *ConversationsStore {
	return &ConversationsStore{store: store, msgs: msgs}
}

// ConversationID derives the globally unique conversation id from the
// id of the conversation's first message.
func ConversationID(messageID string) string {
	return "conversation_" + messageID
}

// conversationsPath is a user's summary index list.
func conversationsPath(key string) string {
	return key + "/conversations"
}

// encodeLatest builds the wire form of a latest-message preview. A
// fresh map every call: summary entries under different owners must not
// share preview storage.
func encodeLatest(msg Message, senderKey string) map[string]any {
	return map[string]any{
		"date":    msg.Date,
		"time":    msg.Time,
		"sender":  senderKey,
		"message": encodeContent(msg.Content),
		"is_read": false,
		"type":    string(msg.Content.Kind),
	}
}

// encodeSummary builds the wire form of one summary index entry.
func encodeSummary(id, otherKey, name string, latest map[string]any) map[string]any {
	return map[string]any{
		"id":               id,
		"other_user_email": otherKey,
		"name":             name,
		"latest_message":   latest,
	}
}

// decodeSummary turns one wire entry back into a Conversation. Every
// field is required; ok=false drops the entry from the batch.
func decodeSummary(entry any) (Conversation, bool) {
	m, ok := entry.(map[string]any)
	if !ok {
		return Conversation{}, false
	}
	id, idOK := m["id"].(string)
	name, nameOK := m["name"].(string)
	other, otherOK := m["other_user_email"].(string)
	latest, latestOK := m["latest_message"].(map[string]any)
	if !idOK || !nameOK || !otherOK || !latestOK {
		return Conversation{}, false
	}

	date, dateOK := latest["date"].(string)
	tm, timeOK := latest["time"].(string)
	sender, senderOK := latest["sender"].(string)
	text, textOK := latest["message"].(string)
	isRead, readOK := latest["is_read"].(bool)
	kind, kindOK := latest["type"].(string)
	if !dateOK || !timeOK || !senderOK || !textOK || !readOK || !kindOK {
		return Conversation{}, false
	}

	return Conversation{
		ID:             id,
		Name:           name,
		OtherUserEmail: other,
		LatestMessage: LatestMessage{
			Date:   date,
			Time:   tm,
			Sender: sender,
			Text:   text,
			IsRead: isRead,
			Kind:   Kind(kind),
		},
	}, true
}

// CreateConversation starts a conversation between the caller and
// otherEmail (displayed as name), seeded with firstMessage. The id is
// derived from the first message's id and returned.
//
// Three independent round-trip sequences run in order: the peer's
// summary copy, the caller's summary copy (written back through the
// caller's whole user node), then the shared message log. A failure
// after the first write leaves the peer's copy in place with nothing to
// roll it back — the returned PartialWriteError names how far the
// fan-out got.
func (c *ConversationsStore) CreateConversation(ctx context.Context, sess Session, otherEmail, name string, firstMessage Message) (string, error) {
	selfKey := sess.Key()
	otherKey := normalize.Key(otherEmail)

	// The caller must be registered: the own-side summary is written
	// back through the whole user node.
	v, err := c.store.GetOnce(ctx, selfKey)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	userNode, ok := v.(map[string]any)
	if !ok {
		return "", ErrFetchFailed
	}

	id := ConversationID(firstMessage.ID)
	firstMessage.SenderEmail = selfKey
	firstMessage.SenderName = name

	// Peer's copy first. Its entry points back at the caller.
	err = rewriteList(ctx, c.store, conversationsPath(otherKey), func(entries []any, _ bool) ([]any, error) {
		theirs := encodeSummary(id, selfKey, sess.Name, encodeLatest(firstMessage, selfKey))
		return append(entries, theirs), nil
	})
	if err != nil {
		return "", err
	}

	// Caller's copy, appended inside the fetched user node.
	own := encodeSummary(id, otherKey, name, encodeLatest(firstMessage, selfKey))
	convs, _ := userNode["conversations"].([]any)
	userNode["conversations"] = append(convs, own)
	if err := c.store.SetValue(ctx, selfKey, userNode); err != nil {
		return "", &PartialWriteError{
			Op:        "create conversation",
			Completed: []string{"peer summary"},
			Err:       fmt.Errorf("%w: %v", ErrWriteFailed, err),
		}
	}

	// Finally seed the shared log with the first message.
	if err := c.msgs.SeedLog(ctx, id, firstMessage); err != nil {
		return "", &PartialWriteError{
			Op:        "create conversation",
			Completed: []string{"peer summary", "own summary"},
			Err:       err,
		}
	}
	return id, nil
}

// ConversationSnapshot is one delivery from a continuous index
// observation: the decoded summary list, or the fetch failure for that
// delivery.
type ConversationSnapshot struct {
	Conversations []Conversation
	Err           error
}

// ListConversations continuously observes a user's summary index. Each
// delivery decodes the list best-effort — entries missing required
// fields are dropped, not reported. The channel closes when ctx is done.
func (c *ConversationsStore) ListConversations(ctx context.Context, email string) (<-chan ConversationSnapshot, error) {
	raw, err := c.store.Observe(ctx, conversationsPath(normalize.Key(email)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}

	out := make(chan ConversationSnapshot)
	go func() {
		defer close(out)
		for snap := range raw {
			var decoded ConversationSnapshot
			if snap.Err != nil {
				decoded.Err = fmt.Errorf("%w: %v", ErrFetchFailed, snap.Err)
			} else if list, ok := snap.Value.([]any); ok {
				convs := make([]Conversation, 0, len(list))
				for _, e := range list {
					if conv, ok := decodeSummary(e); ok {
						convs = append(convs, conv)
					}
				}
				decoded.Conversations = convs
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

// DeleteConversation removes the caller's copy of the summary with the
// given id. The peer's copy and the shared message log are left alone:
// the conversation stays visible to the other participant, and its log
// may persist orphaned. An id not present in the caller's list returns
// ErrNotFound and leaves the list untouched.
func (c *ConversationsStore) DeleteConversation(ctx context.Context, sess Session, conversationID string) error {
	return rewriteList(ctx, c.store, conversationsPath(sess.Key()), func(entries []any, exists bool) ([]any, error) {
		if !exists {
			return nil, ErrFetchFailed
		}
		for i, e := range entries {
			m, ok := e.(map[string]any)
			if !ok {
				continue
			}
			if id, _ := m["id"].(string); id == conversationID {
				return append(entries[:i], entries[i+1:]...), nil
			}
		}
		return nil, ErrNotFound
	})
}

// ConversationExists looks for an existing conversation between the
// caller and otherEmail, returning its id. It scans the *peer's* copy
// of the index for an entry pointing back at the caller; ErrNotFound
// when no such entry exists.
func (c *ConversationsStore) ConversationExists(ctx context.Context, sess Session, otherEmail string) (string, error) {
	v, err := c.store.GetOnce(ctx, conversationsPath(normalize.Key(otherEmail)))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	entries, ok := v.([]any)
	if !ok {
		return "", ErrFetchFailed
	}

	selfKey := sess.Key()
	for _, e := range entries {
		m, ok := e.(map[string]any)
		if !ok {
			continue
		}
		if other, _ := m["other_user_email"].(string); other != selfKey {
			continue
		}
		id, ok := m["id"].(string)
		if !ok {
			return "", ErrFetchFailed
		}
		return id, nil
	}
	return "", ErrNotFound
}

// MarkAsRead flips the read flag on the caller's own copy of the
// summary. Unlike every other mutator this issues a narrow write at the
// flag's exact path instead of rewriting the list; the peer's copy is
// never touched — the flag is per-owner state.
func (c *ConversationsStore) MarkAsRead(ctx context.Context, sess Session, conversationID string) error {
	path := conversationsPath(sess.Key())

	v, err := c.store.GetOnce(ctx, path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	entries, ok := v.([]any)
	if !ok {
		return ErrFetchFailed
	}

	for i, e := range entries {
		m, ok := e.(map[string]any)
		if !ok {
			continue
		}
		if id, _ := m["id"].(string); id != conversationID {
			continue
		}
		flagPath := fmt.Sprintf("%s/%d/latest_message/is_read", path, i)
		if err := c.store.SetValue(ctx, flagPath, true); err != nil {
			return fmt.Errorf("%w: %v", ErrWriteFailed, err)
		}
		return nil
	}
	return ErrNotFound
}
