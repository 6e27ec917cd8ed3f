package domain

import (
	"strings"
	"time"
)

// Status is the review state of an application.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further status change is allowed.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// ProjectStatus is the applicant-reported state of the internship project.
type ProjectStatus string

const (
	ProjectCompleted  ProjectStatus = "Completed"
	ProjectInProgress ProjectStatus = "In Progress"
	ProjectOnHold     ProjectStatus = "On Hold"
)

func (p ProjectStatus) Valid() bool {
	switch p {
	case ProjectCompleted, ProjectInProgress, ProjectOnHold:
		return true
	default:
		return false
	}
}

// ApplicantFields holds everything the applicant fills in on the form.
type ApplicantFields struct {
	Name               string        `json:"name"`
	Email              string        `json:"email"`
	CollegeName        string        `json:"collegeName"`
	Field              string        `json:"field"`
	Duration           string        `json:"duration"`
	StartDate          string        `json:"startDate"`
	EndDate            string        `json:"endDate"`
	ProjectTitle       string        `json:"projectTitle"`
	ProjectDescription string        `json:"projectDescription"`
	ProjectStatus      ProjectStatus `json:"projectStatus"`
	MentorFeedback     string        `json:"mentorFeedback"`
	AdditionalNotes    string        `json:"additionalNotes"`
}

// Normalize trims surrounding whitespace and fills the project status default.
func (f ApplicantFields) Normalize() ApplicantFields {
	f.Name = strings.TrimSpace(f.Name)
	f.Email = strings.TrimSpace(f.Email)
	f.CollegeName = strings.TrimSpace(f.CollegeName)
	f.Field = strings.TrimSpace(f.Field)
	f.Duration = strings.TrimSpace(f.Duration)
	f.StartDate = strings.TrimSpace(f.StartDate)
	f.EndDate = strings.TrimSpace(f.EndDate)
	f.ProjectTitle = strings.TrimSpace(f.ProjectTitle)
	f.ProjectStatus = ProjectStatus(strings.TrimSpace(string(f.ProjectStatus)))
	if f.ProjectStatus == "" {
		f.ProjectStatus = ProjectCompleted
	}
	return f
}

// Validate returns a ValidationError listing every missing or malformed field.
func (f ApplicantFields) Validate() error {
	fields := map[string]string{}
	required := []struct {
		key   string
		value string
	}{
		{"name", f.Name},
		{"email", f.Email},
		{"collegeName", f.CollegeName},
		{"field", f.Field},
		{"duration", f.Duration},
		{"startDate", f.StartDate},
		{"endDate", f.EndDate},
		{"projectTitle", f.ProjectTitle},
	}
	for _, r := range required {
		if r.value == "" {
			fields[r.key] = "required"
		}
	}
	if f.Email != "" && !strings.Contains(f.Email, "@") {
		fields["email"] = "invalid email"
	}
	if !f.ProjectStatus.Valid() {
		fields["projectStatus"] = "must be Completed, In Progress or On Hold"
	}
	if len(fields) > 0 {
		return ValidationError{Message: "invalid application", Fields: fields}
	}
	return nil
}

// Application is the central record of the certificate workflow.
type Application struct {
	ID     string `json:"id"`
	UserID string `json:"userId"`
	ApplicantFields
	Status        Status     `json:"status"`
	CertificateID *string    `json:"certificateId,omitempty"`
	ApprovedAt    *time.Time `json:"approvedAt,omitempty"`
	ApprovedBy    *string    `json:"approvedBy,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// HasCertificate reports whether a certificate identifier is bound.
func (a Application) HasCertificate() bool {
	return a.CertificateID != nil && *a.CertificateID != ""
}

// FieldPatch is a partial update of applicant fields. It has no way to name
// id, status or certificateId.
type FieldPatch struct {
	Name               *string        `json:"name,omitempty"`
	Email              *string        `json:"email,omitempty"`
	CollegeName        *string        `json:"collegeName,omitempty"`
	Field              *string        `json:"field,omitempty"`
	Duration           *string        `json:"duration,omitempty"`
	StartDate          *string        `json:"startDate,omitempty"`
	EndDate            *string        `json:"endDate,omitempty"`
	ProjectTitle       *string        `json:"projectTitle,omitempty"`
	ProjectDescription *string        `json:"projectDescription,omitempty"`
	ProjectStatus      *ProjectStatus `json:"projectStatus,omitempty"`
	MentorFeedback     *string        `json:"mentorFeedback,omitempty"`
	AdditionalNotes    *string        `json:"additionalNotes,omitempty"`
}

func (p FieldPatch) Empty() bool {
	return len(p.Columns()) == 0
}

func (p FieldPatch) Validate() error {
	if p.Empty() {
		return ValidationError{Message: "patch has no fields"}
	}
	fields := map[string]string{}
	if p.ProjectStatus != nil && !p.ProjectStatus.Valid() {
		fields["projectStatus"] = "must be Completed, In Progress or On Hold"
	}
	required := []struct {
		key   string
		value *string
	}{
		{"name", p.Name},
		{"email", p.Email},
		{"collegeName", p.CollegeName},
		{"field", p.Field},
		{"duration", p.Duration},
		{"startDate", p.StartDate},
		{"endDate", p.EndDate},
		{"projectTitle", p.ProjectTitle},
	}
	for _, r := range required {
		if r.value != nil && strings.TrimSpace(*r.value) == "" {
			fields[r.key] = "must not be empty"
		}
	}
	if p.Email != nil && strings.TrimSpace(*p.Email) != "" && !strings.Contains(*p.Email, "@") {
		fields["email"] = "invalid email"
	}
	if len(fields) > 0 {
		return ValidationError{Message: "invalid patch", Fields: fields}
	}
	return nil
}

// Columns maps the set fields onto storage column names.
func (p FieldPatch) Columns() map[string]any {
	cols := map[string]any{}
	set := func(col string, v *string) {
		if v != nil {
			cols[col] = *v
		}
	}
	set("name", p.Name)
	set("email", p.Email)
	set("college_name", p.CollegeName)
	set("field", p.Field)
	set("duration", p.Duration)
	set("start_date", p.StartDate)
	set("end_date", p.EndDate)
	set("project_title", p.ProjectTitle)
	set("project_description", p.ProjectDescription)
	if p.ProjectStatus != nil {
		cols["project_status"] = string(*p.ProjectStatus)
	}
	set("mentor_feedback", p.MentorFeedback)
	set("additional_notes", p.AdditionalNotes)
	return cols
}

// Apply returns f with the patch applied.
func (p FieldPatch) Apply(f ApplicantFields) ApplicantFields {
	pick := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	pick(&f.Name, p.Name)
	pick(&f.Email, p.Email)
	pick(&f.CollegeName, p.CollegeName)
	pick(&f.Field, p.Field)
	pick(&f.Duration, p.Duration)
	pick(&f.StartDate, p.StartDate)
	pick(&f.EndDate, p.EndDate)
	pick(&f.ProjectTitle, p.ProjectTitle)
	pick(&f.ProjectDescription, p.ProjectDescription)
	if p.ProjectStatus != nil {
		f.ProjectStatus = *p.ProjectStatus
	}
	pick(&f.MentorFeedback, p.MentorFeedback)
	pick(&f.AdditionalNotes, p.AdditionalNotes)
	return f
}

// ApplicationFilter narrows a store listing. Zero values mean no constraint.
type ApplicationFilter struct {
	UserID        string
	CertificateID string
	Status        Status
	Limit         int
}

// Stats are the dashboard counters.
type Stats struct {
	Total    int64 `json:"total"`
	Pending  int64 `json:"pending"`
	Approved int64 `json:"approved"`
	Rejected int64 `json:"rejected"`
}
