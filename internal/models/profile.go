package models

// UserProfile - публичная часть профиля пользователя
type UserProfile struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
}

// ProfileUpdate - частичное обновление профиля, nil означает "не менять"
type ProfileUpdate struct {
	Username *string
	Email    *string
	Phone    *string
}
