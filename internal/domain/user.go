package domain

import "time"

// User: зарегистрированный покупатель.
type User struct {
	ID           int64
	Name         string
	Email        string
	PasswordHash []byte
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// AccessToken: выданный bearer-токен. Хранится только хэш секрета.
type AccessToken struct {
	Hash      string
	UserID    int64
	CreatedAt time.Time
}
