// Package data is the chat data-access layer: user directory,
// per-user conversation summary indexes and per-conversation message
// logs, all kept in a remote tree store. Conversation summaries are
// denormalized — each conversation is stored once under every
// participant — and every mutation keeps the copies eventually
// consistent through plain read-modify-write sequences, because the
// store exposes no transactions.
package data

import "github.com/trungdev/appchat-data/internal/normalize"

// User is a registered chat user. Email holds the raw address; the
// storage key is always derived from it.
type User struct {
	FirstName string
	LastName  string
	Email     string
}

// SafeEmail returns the user's storage key.
func (u User) SafeEmail() string { return normalize.Key(u.Email) }

// DisplayName is the name shown in the flat user directory.
func (u User) DisplayName() string { return u.FirstName + " " + u.LastName }

// DirectoryEntry is one element of the flat "all users" list. Email is
// the storage-safe key, not the raw address.
type DirectoryEntry struct {
	Name  string
	Email string
}

// Session identifies the caller of an operation. Every operation that
// acts on "the current user" takes it explicitly; the layer keeps no
// ambient identity state.
type Session struct {
	Email string // raw address
	Name  string // display name, stored on the peer's summary copy
}

// Key returns the caller's storage key.
func (s Session) Key() string { return normalize.Key(s.Email) }

// Kind tags a message payload on the wire. Tags outside the supported
// set are carried through untouched.
type Kind string

const (
	KindText     Kind = "text"
	KindPhoto    Kind = "photo"
	KindVideo    Kind = "video"
	KindLocation Kind = "location"
)

// Content is a closed variant over message payload kinds. Exactly the
// fields matching Kind are meaningful:
//
//	KindText      Text
//	KindPhoto     URL
//	KindVideo     URL
//	KindLocation  Longitude, Latitude
//	anything else Text carries the raw wire content
type Content struct {
	Kind      Kind
	Text      string
	URL       string
	Longitude float64
	Latitude  float64
}

// TextContent builds a plain text payload.
func TextContent(text string) Content { return Content{Kind: KindText, Text: text} }

// PhotoContent builds a photo payload pointing at the uploaded asset.
func PhotoContent(url string) Content { return Content{Kind: KindPhoto, URL: url} }

// VideoContent builds a video payload pointing at the uploaded asset.
func VideoContent(url string) Content { return Content{Kind: KindVideo, URL: url} }

// LocationContent builds a location payload.
func LocationContent(longitude, latitude float64) Content {
	return Content{Kind: KindLocation, Longitude: longitude, Latitude: latitude}
}

// UnsupportedContent carries a payload whose kind this layer cannot
// encode; raw holds whatever content came over the wire.
func UnsupportedContent(tag, raw string) Content {
	return Content{Kind: Kind(tag), Text: raw}
}

// Supported reports whether the payload kind has a real encoding.
func (c Content) Supported() bool {
	switch c.Kind {
	case KindText, KindPhoto, KindVideo, KindLocation:
		return true
	}
	return false
}

// Message is one entry of a conversation's message log. ID is
// caller-supplied and must be unique within the conversation; this
// layer does not enforce that. SenderEmail and SenderName are filled in
// by the sending operations from the caller's session.
type Message struct {
	ID          string
	Content     Content
	Date        string
	Time        string
	SenderEmail string // storage key of the sender
	SenderName  string
	IsRead      bool
}

// LatestMessage is the per-owner snapshot of a conversation's newest
// message. IsRead belongs to the owning copy only: marking one
// participant's copy read never touches the other's.
type LatestMessage struct {
	Date   string
	Time   string
	Sender string // storage key of the sender
	Text   string // encoded wire content
	IsRead bool
	Kind   Kind
}

// Conversation is one entry of a user's conversation summary index.
// OtherUserEmail is the peer's storage key; Name is the peer's display
// name. The same conversation id appears in both participants' indexes
// with these two fields pointing at opposite sides.
type Conversation struct {
	ID             string
	Name           string
	OtherUserEmail string
	LatestMessage  LatestMessage
}
