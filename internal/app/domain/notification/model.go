package notification

import "time"

// CategorySystem marks notifications raised by the platform itself rather
// than by another user.
const CategorySystem = "system"

// Admin is an administrator identity resolved from the user directory.
type Admin struct {
	ID    string
	Name  string
	Email string
}

// Notification is one in-app alert record addressed to a single admin.
type Notification struct {
	ID          string
	RecipientID string
	Category    string
	Title       string
	Body        string
	OrderID     string
	ReadAt      time.Time
	CreatedAt   time.Time
}
