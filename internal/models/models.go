package models

import (
	"time"

	"github.com/google/uuid"
)

// User is a registered account. Email is unique across the system.
//
// PasswordHash never leaves the server: it is tagged json:"-" so handlers
// can return a User directly.
type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	FullName     string    `json:"full_name"`
	Bio          string    `json:"bio"`
	ProfilePic   *string   `json:"profile_pic"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Summary is the slice of a user embedded into message payloads.
func (u User) Summary() UserSummary {
	return UserSummary{ID: u.ID, FullName: u.FullName, ProfilePic: u.ProfilePic}
}

type UserSummary struct {
	ID         uuid.UUID `json:"id"`
	FullName   string    `json:"full_name"`
	ProfilePic *string   `json:"profile_pic"`
}

// Message is one direct message between two users.
//
// At least one of Text / Image is set. Delivered and Seen are only ever
// flipped by the delivery pipeline, never by a client write.
type Message struct {
	ID         uuid.UUID `json:"id"`
	SenderID   uuid.UUID `json:"sender_id"`
	ReceiverID uuid.UUID `json:"receiver_id"`
	Text       string    `json:"text"`
	Image      *string   `json:"image"`
	Delivered  bool      `json:"delivered"`
	Seen       bool      `json:"seen"`
	CreatedAt  time.Time `json:"created_at"`
}

// MessageView is a Message with sender and receiver resolved. This is the
// shape returned by the API and pushed in newMessage events.
type MessageView struct {
	Message
	Sender   UserSummary `json:"sender"`
	Receiver UserSummary `json:"receiver"`
}

// RosterEntry is a user as seen in someone else's sidebar.
type RosterEntry struct {
	User
	Online   bool       `json:"online"`
	LastSeen *time.Time `json:"last_seen,omitempty"`
}

// Roster is the list-users response: everyone but the viewer, plus the
// viewer's unseen counts keyed by sender. Only senders with a non-zero
// count appear in Unseen.
type Roster struct {
	Users  []RosterEntry     `json:"users"`
	Unseen map[uuid.UUID]int `json:"unseen"`
}
