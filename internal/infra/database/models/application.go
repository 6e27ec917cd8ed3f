package models

import (
	"time"
)

type Application struct {
	ID                 string     `json:"id" gorm:"primaryKey;type:text"`
	UserID             string     `json:"userId" gorm:"type:text;not null;index"`
	Name               string     `json:"name" gorm:"type:text;not null"`
	Email              string     `json:"email" gorm:"type:text;not null"`
	CollegeName        string     `json:"collegeName" gorm:"type:text;not null"`
	Field              string     `json:"field" gorm:"type:text;not null"`
	Duration           string     `json:"duration" gorm:"type:text;not null"`
	StartDate          string     `json:"startDate" gorm:"type:text;not null"`
	EndDate            string     `json:"endDate" gorm:"type:text;not null"`
	ProjectTitle       string     `json:"projectTitle" gorm:"type:text;not null"`
	ProjectDescription string     `json:"projectDescription" gorm:"type:text"`
	ProjectStatus      string     `json:"projectStatus" gorm:"type:text;not null"`
	MentorFeedback     string     `json:"mentorFeedback" gorm:"type:text"`
	AdditionalNotes    string     `json:"additionalNotes" gorm:"type:text"`
	Status             string     `json:"status" gorm:"type:text;not null;index"`
	CertificateID      *string    `json:"certificateId" gorm:"type:text;uniqueIndex"`
	ApprovedAt         *time.Time `json:"approvedAt"`
	ApprovedBy         *string    `json:"approvedBy" gorm:"type:text"`
	CreatedAt          time.Time  `json:"createdAt" gorm:"not null;index"`
	UpdatedAt          time.Time  `json:"updatedAt" gorm:"not null"`
}
