package domain

const (
	AdminSessionCtxKey = "cp-adminSession"
	AdminTokenCtxKey   = "cp-adminToken"
	ApplicantIDCtxKey  = "cp-applicantId"
)

const (
	AuthorizationHeader = "Authorization"
	ApplicantIDHeader   = "X-Applicant-ID"
)

// EventType names a lifecycle event published to the realtime feed.
type EventType string

const (
	EventSubmitted EventType = "application.submitted"
	EventApproved  EventType = "application.approved"
	EventRejected  EventType = "application.rejected"
	EventAmended   EventType = "application.amended"
	EventRemoved   EventType = "application.removed"
)

// Event is what the admin dashboard receives over the realtime feed.
type Event struct {
	Type          EventType `json:"type"`
	ApplicationID string    `json:"applicationId"`
	Status        Status    `json:"status,omitempty"`
	CertificateID string    `json:"certificateId,omitempty"`
	Actor         string    `json:"actor,omitempty"`
	Timestamp     int64     `json:"timestamp"`
}
