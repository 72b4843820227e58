package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type StaffUser struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Username  string    `gorm:"unique;not null"`
	Email     string    `gorm:"not null"`
	Password  string    `gorm:"not null"`
	RoleID    uuid.UUID `gorm:"type:uuid"`
	Role      Role
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

func (user *StaffUser) BeforeCreate(tx *gorm.DB) (err error) {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	return
}
