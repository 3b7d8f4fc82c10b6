package models

import (
	"time"

	"github.com/google/uuid"
)

type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
)

type CommunityPostMedia struct {
	URL  string    `json:"url"`
	Kind MediaKind `json:"kind"`
}

// CommunityPost - публикация в ленте сообщества
type CommunityPost struct {
	ID          uuid.UUID            `json:"id"`
	UserID      string               `json:"userId"`
	Description string               `json:"description"`
	Media       []CommunityPostMedia `json:"media"`
	Upvotes     int                  `json:"upvotes"`
	CreatedAt   time.Time            `json:"createdAt"`
}

// CommunityEvent - мероприятие сообщества (субботник, собрание района)
type CommunityEvent struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	Location  string    `json:"location"`
	StartsAt  time.Time `json:"startsAt"`
	CreatedAt time.Time `json:"createdAt"`
}
