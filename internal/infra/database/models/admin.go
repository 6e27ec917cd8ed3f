package models

type Admin struct {
	ID           string `json:"id" gorm:"primaryKey;type:text"`
	Email        string `json:"email" gorm:"type:text;uniqueIndex"`
	Name         string `json:"name" gorm:"type:text"`
	Role         string `json:"role" gorm:"type:text"`
	PasswordHash string `json:"-" gorm:"type:text"`
}
