package models

import "time"

// Notification mirrors the judge's notification row addressed to a user.
type Notification struct {
	UserID    int64     `bson:"userId" json:"userId"`
	Title     string    `bson:"title" json:"title"`
	Message   string    `bson:"message" json:"message"`
	IsRead    bool      `bson:"isRead" json:"isRead"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
}
