package services

import (
	"context"
	"errors"
	"strings"

	"github.com/farellandr/rifa/internal/models"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

type StaffInput struct {
	Username string `validate:"required,max=150"`
	Email    string `validate:"omitempty,email"`
	Password string `validate:"required,min=8"`
	Role     string `validate:"oneof=staff admin"`
}

// UpsertStaffUser creates the account or resets its password and role.
func (e *Engine) UpsertStaffUser(ctx context.Context, in StaffInput) (*models.StaffUser, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	if in.Role == "" {
		in.Role = models.RoleStaff
	}
	if err := validate.Struct(in); err != nil {
		return nil, invalid("invalid staff user: %v", err)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	var user models.StaffUser
	err = e.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var role models.Role
		if err := tx.Where("name = ?", in.Role).FirstOrCreate(&role, models.Role{Name: in.Role}).Error; err != nil {
			return err
		}
		err := tx.Where("username = ?", in.Username).First(&user).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			user = models.StaffUser{
				Username: in.Username,
				Email:    in.Email,
				Password: string(hashedPassword),
				RoleID:   role.ID,
			}
			return tx.Create(&user).Error
		}
		if err != nil {
			return err
		}
		return tx.Model(&user).Updates(map[string]interface{}{
			"email":    in.Email,
			"password": string(hashedPassword),
			"role_id":  role.ID,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	user.Role = models.Role{Name: in.Role}
	return &user, nil
}

func (e *Engine) Authenticate(ctx context.Context, username, password string) (*models.StaffUser, error) {
	var user models.StaffUser
	err := e.DB.WithContext(ctx).Preload("Role").Where("username = ?", strings.TrimSpace(username)).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return &user, nil
}
