package domain

import "time"

// VerifiedCertificate is the public projection of an approved application.
// It deliberately carries no userId, approver or credential data.
type VerifiedCertificate struct {
	CertificateID string `json:"certificateId"`
	ApplicantFields
	Status     Status    `json:"status"`
	CreatedAt  time.Time `json:"createdAt"`
	ApprovedAt time.Time `json:"approvedAt"`
}

// NewVerifiedCertificate projects an approved application. The caller must
// have checked the status.
func NewVerifiedCertificate(app Application) VerifiedCertificate {
	view := VerifiedCertificate{
		ApplicantFields: app.ApplicantFields,
		Status:          app.Status,
		CreatedAt:       app.CreatedAt,
	}
	if app.CertificateID != nil {
		view.CertificateID = *app.CertificateID
	}
	if app.ApprovedAt != nil {
		view.ApprovedAt = *app.ApprovedAt
	}
	return view
}
