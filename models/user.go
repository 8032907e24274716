package models

import "gorm.io/gorm"

// User es un usuario de la aplicación (login con contraseña).
type User struct {
	gorm.Model
	Login        string `json:"login" gorm:"uniqueIndex;not null"`
	PasswordHash string `json:"-" gorm:"not null"`
}
