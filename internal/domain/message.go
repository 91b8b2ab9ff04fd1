package domain

import "time"

// Message is one chat entry of the open consultation. Optimistic entries carry
// a client-generated id ("tmp-" prefix) and Pending=true until the server
// confirms them.
type Message struct {
	ID         string      `json:"id"`
	AuthorID   string      `json:"author_id"`
	Content    string      `json:"content"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  *time.Time  `json:"updated_at,omitempty"`
	IsEdited   bool        `json:"is_edited"`
	DeletedAt  *time.Time  `json:"deleted_at,omitempty"`
	Attachment *Attachment `json:"attachment,omitempty"`

	Pending bool `json:"-"`
}

// Deleted reports whether the message is a tombstone. Tombstones stay in the
// sequence because their position anchors pagination.
func (m Message) Deleted() bool {
	return m.DeletedAt != nil
}

type Attachment struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// Upload is an attachment the caller wants to send with a message.
type Upload struct {
	Name        string
	ContentType string
	Data        []byte
}
