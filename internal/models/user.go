package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is a directory entry: the display attributes other users see for a
// counterpart. Profile editing lives outside this service; here users are
// only read.
type User struct {
	ID           string `gorm:"primaryKey;type:varchar(191)" json:"id"`
	Name         string `gorm:"type:varchar(255);not null" json:"name"`
	Email        string `gorm:"type:varchar(255);uniqueIndex" json:"-"`
	ProfilePhoto string `gorm:"type:varchar(512)" json:"profile_photo"`
}

// BeforeCreate assigns a UUID when the directory row has no id yet.
func (u *User) BeforeCreate(tx *gorm.DB) (err error) {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	return
}
