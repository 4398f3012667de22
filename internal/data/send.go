package data

import (
	"context"

	"github.com/trungdev/appchat-data/internal/normalize"
)

// SendMessage posts msg into an existing conversation and refreshes the
// latest-message preview on both participants' summary copies.
//
// Three chained round trips, each gated on the previous one's
// acknowledgment:
//
//  1. append to the shared message log,
//  2. rewrite the caller's summary list with the new preview,
//  3. rewrite the peer's summary list the same way.
//
// A failure at any step stops the chain and reports overall failure,
// but earlier writes stay in place — there are no compensating
// transactions. Steps 2 and 3 therefore surface a PartialWriteError so
// callers can tell "nothing happened" from "some copies were updated";
// observers of the summary indexes eventually see a consistent view
// once a later send completes the fan-out.
//
// name is the peer's display name; it is used when a summary copy has
// gone missing (deleted on one side) and must be synthesized afresh.
func (c *ConversationsStore) SendMessage(ctx context.Context, sess Session, conversationID, otherEmail, name string, msg Message) error {
	selfKey := sess.Key()
	otherKey := normalize.Key(otherEmail)
	msg.SenderEmail = selfKey
	msg.SenderName = name

	if err := c.msgs.AppendMessage(ctx, conversationID, msg); err != nil {
		return err
	}

	// Caller's copy: the summary points at the peer.
	if err := c.upsertLatest(ctx, selfKey, conversationID, otherKey, name, msg); err != nil {
		return &PartialWriteError{
			Op:        "send message",
			Completed: []string{"message log"},
			Err:       err,
		}
	}

	// Peer's copy: the summary points back at the caller.
	if err := c.upsertLatest(ctx, otherKey, conversationID, selfKey, sess.Name, msg); err != nil {
		return &PartialWriteError{
			Op:        "send message",
			Completed: []string{"message log", "own summary"},
			Err:       err,
		}
	}
	return nil
}

// upsertLatest rewrites one participant's summary list with msg as the
// new preview: updated in place when the conversation id is found,
// synthesized and appended when that copy is missing (the list may have
// been emptied by a delete, or never created for this participant).
// The preview's read flag always resets to false — a new message is
// unread for both owners until each marks their own copy.
func (c *ConversationsStore) upsertLatest(ctx context.Context, ownerKey, conversationID, otherKey, name string, msg Message) error {
	return rewriteList(ctx, c.store, conversationsPath(ownerKey), func(entries []any, exists bool) ([]any, error) {
		latest := encodeLatest(msg, msg.SenderEmail)
		if exists {
			for i, e := range entries {
				m, ok := e.(map[string]any)
				if !ok {
					continue
				}
				if id, _ := m["id"].(string); id == conversationID {
					m["latest_message"] = latest
					entries[i] = m
					return entries, nil
				}
			}
		}
		return append(entries, encodeSummary(conversationID, otherKey, name, latest)), nil
	})
}
