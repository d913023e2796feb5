package store

import "time"

type User struct {
	ID           string
	DisplayName  string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Document struct {
	ID                   string
	Title                string
	Content              string
	Visibility           string
	AuthorID             string
	CurrentVersion       int
	LastVersionCreatedAt *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Share is one entry of a document's shared-with list. A user appears at
// most once per document and the author is never listed.
type Share struct {
	DocumentID string
	UserID     string
	Permission string
	CreatedAt  time.Time
	// Joined fields for API responses
	UserName  string
	UserEmail string
}

// Version is an immutable snapshot of a document at one point in its edit
// history. (DocumentID, Version) is unique; numbers are strictly increasing
// from 1 with no gaps under sequential writes.
type Version struct {
	ID             string
	DocumentID     string
	Version        int
	Title          string
	Content        string
	Visibility     string
	ChangedBy      string
	ChangeType     string
	ChangeSummary  string
	WordCount      int
	CharacterCount int
	CreatedAt      time.Time
}

type Notification struct {
	ID          string
	UserID      string
	DocumentID  string
	MentionedBy string
	Read        bool
	CreatedAt   time.Time
	// Joined fields for API responses
	DocumentTitle   string
	MentionedByName string
}
