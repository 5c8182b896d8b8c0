package models

import "time"

// Member is an entry of the user directory.
type Member struct {
	ID        uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	Name      string    `json:"name" gorm:"not null"`
	Email     string    `json:"email" gorm:"not null"`
	Age       *int      `json:"age,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// All lists every persisted model in migration order.
func All() []interface{} {
	return []interface{}{&User{}, &Token{}, &Task{}, &Member{}}
}
