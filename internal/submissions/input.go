package submissions

import (
	"time"

	"admissions-forms/internal/models"
)

// SubmitPayload is the decoded body of a public submission.
type SubmitPayload struct {
	StudentInfo       *models.StudentInfo       `json:"studentInfo"`
	AcademicInfo      *models.AcademicInfo      `json:"academicInfo"`
	CoursePreferences *models.CoursePreferences `json:"coursePreferences"`
	Documents         []DocumentInput           `json:"documents"`
	FormData          map[string]interface{}    `json:"formData"`
	Tags              []string                  `json:"tags"`
}

type DocumentInput struct {
	Name       string            `json:"name"`
	Type       string            `json:"type"`
	URL        string            `json:"url"`
	UploadedAt *models.Timestamp `json:"uploadedAt"`
}

// RequestMeta records where a submission came from.
type RequestMeta struct {
	Source    models.Source
	IPAddress string
	UserAgent string
}

// Receipt is returned to the applicant after a successful submission.
type Receipt struct {
	ApplicationID string `json:"applicationId"`
	Message       string `json:"message"`
}

// Actor identifies the staff member performing a lifecycle operation.
type Actor struct {
	ID    string
	Email string
}

type StatusInput struct {
	Status    string `json:"status" validate:"required"`
	Reason    string `json:"reason" validate:"max=1000"`
	Notes     string `json:"notes" validate:"max=2000"`
	SendEmail *bool  `json:"sendEmail"`
}

type AssignInput struct {
	AssignedTo *string `json:"assignedTo"`
	Notes      string  `json:"notes"`
}

type NoteInput struct {
	Note       string `json:"note"`
	IsInternal *bool  `json:"isInternal"`
}

type EmailInput struct {
	Subject     string `json:"subject"`
	Message     string `json:"message"`
	CopyToAdmin bool   `json:"copyToAdmin"`
}

// EmailResult reports a synchronous custom email send.
type EmailResult struct {
	Delivered   bool `json:"delivered"`
	CopiedAdmin bool `json:"copiedAdmin"`
}

type ArchiveInput struct {
	Archive *bool `json:"archive"`
}

type BulkInput struct {
	Action         string   `json:"action"`
	ApplicationIDs []string `json:"applicationIds"`
	Data           BulkData `json:"data"`
}

type BulkData struct {
	Status     string  `json:"status"`
	Reason     string  `json:"reason"`
	AssignedTo *string `json:"assignedTo"`
	Archive    *bool   `json:"archive"`
	Priority   string  `json:"priority"`
}

// BulkResult mirrors the counts of a multi-row update.
type BulkResult struct {
	MatchedCount  int `json:"matchedCount"`
	ModifiedCount int `json:"modifiedCount"`
}

// ListQuery carries the raw query string of the staff listing.
type ListQuery struct {
	Status     string
	Priority   string
	FormID     string
	AssignedTo string
	Search     string
	DateFrom   string
	DateTo     string
	Archived   string
	Page       int
	Limit      int
	SortBy     string
	SortOrder  string
}

type StatsQuery struct {
	FormID   string
	DateFrom string
	DateTo   string
}

// PublicStatus is what an applicant may see about their submission.
type PublicStatus struct {
	Status      models.Status       `json:"status"`
	SubmittedAt time.Time           `json:"submittedAt"`
	FormName    string              `json:"formName"`
	PublicNotes []models.ReviewNote `json:"publicNotes"`
	LastContact *time.Time          `json:"lastContact"`
}

type Bucket struct {
	ID    string `json:"_id"`
	Count int    `json:"count"`
}

type FormBucket struct {
	ID       string `json:"_id"`
	FormName string `json:"formName"`
	Count    int    `json:"count"`
}

type Stats struct {
	TotalApplications int          `json:"totalApplications"`
	StatusBreakdown   []Bucket     `json:"statusBreakdown"`
	PriorityBreakdown []Bucket     `json:"priorityBreakdown"`
	FormBreakdown     []FormBucket `json:"formBreakdown"`
	RecentActivity    []Bucket     `json:"recentActivity"`
}
