package models

import (
	"bytes"
	"encoding/json"
	"reflect"
	"strings"
	"time"
)

// Status is the review stage of a submission. Any status may move to any
// other status.
type Status string

const (
	StatusPending     Status = "pending"
	StatusUnderReview Status = "under-review"
	StatusApproved    Status = "approved"
	StatusRejected    Status = "rejected"
	StatusWaitlisted  Status = "waitlisted"
	StatusCancelled   Status = "cancelled"
)

// Statuses lists every status in display order.
var Statuses = []Status{StatusPending, StatusUnderReview, StatusApproved, StatusRejected, StatusWaitlisted, StatusCancelled}

func (s Status) Valid() bool {
	for _, v := range Statuses {
		if v == s {
			return true
		}
	}
	return false
}

// Title returns the status with its first letter upper-cased.
func (s Status) Title() string {
	if s == "" {
		return ""
	}
	return strings.ToUpper(string(s[:1])) + string(s[1:])
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Source is the channel a submission arrived through.
type Source string

const (
	SourceWebsite    Source = "website"
	SourceAdminPanel Source = "admin-panel"
	SourceMobileApp  Source = "mobile-app"
	SourceAgent      Source = "agent"
)

func (s Source) Valid() bool {
	switch s {
	case SourceWebsite, SourceAdminPanel, SourceMobileApp, SourceAgent:
		return true
	}
	return false
}

// EmailType classifies entries of the communication log.
type EmailType string

const (
	EmailWelcome      EmailType = "welcome"
	EmailStatusUpdate EmailType = "status-update"
	EmailApproval     EmailType = "approval"
	EmailRejection    EmailType = "rejection"
	EmailReminder     EmailType = "reminder"
	EmailCustom       EmailType = "custom"
)

type Address struct {
	Street  string `json:"street,omitempty"`
	City    string `json:"city,omitempty"`
	State   string `json:"state,omitempty"`
	Country string `json:"country,omitempty"`
	ZipCode string `json:"zipCode,omitempty"`
}

type EmergencyContact struct {
	Name         string `json:"name,omitempty"`
	Relationship string `json:"relationship,omitempty"`
	Phone        string `json:"phone,omitempty"`
	Email        string `json:"email,omitempty"`
}

type StudentInfo struct {
	FullName         string            `json:"fullName"`
	Email            string            `json:"email"`
	PhoneNumber      string            `json:"phoneNumber"`
	DateOfBirth      string            `json:"dateOfBirth,omitempty"`
	Address          *Address          `json:"address,omitempty"`
	EmergencyContact *EmergencyContact `json:"emergencyContact,omitempty"`
}

type Education struct {
	Level          string `json:"level,omitempty"`
	Institution    string `json:"institution,omitempty"`
	FieldOfStudy   string `json:"fieldOfStudy,omitempty"`
	GraduationYear int    `json:"graduationYear,omitempty"`
	Grade          string `json:"grade,omitempty"`
}

type TestScore struct {
	TestName string `json:"testName,omitempty"`
	Score    Score  `json:"score,omitempty"`
	TestDate string `json:"testDate,omitempty"`
}

// Score is a test result sent either as a number (7.5) or as text ("B2").
// Numbers keep their literal form.
type Score string

func (s *Score) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*s = ""
		return nil
	case len(data) > 0 && data[0] == '"':
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = Score(strings.TrimSpace(v))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return &json.UnmarshalTypeError{Value: jsonValueKind(data), Type: reflect.TypeOf(Score(""))}
	}
	*s = Score(n.String())
	return nil
}

// Timestamp decodes an RFC 3339 timestamp or a bare YYYY-MM-DD date.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04", "2006-01-02"}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return &json.UnmarshalTypeError{Value: jsonValueKind(data), Type: reflect.TypeOf(Timestamp{})}
	}
	if strings.TrimSpace(v) == "" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, strings.TrimSpace(v)); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return &json.UnmarshalTypeError{Value: "string " + v, Type: reflect.TypeOf(Timestamp{})}
}

func jsonValueKind(data []byte) string {
	if len(data) == 0 {
		return "value"
	}
	switch data[0] {
	case '{':
		return "object"
	case '[':
		return "array"
	case 't', 'f':
		return "bool"
	case 'n':
		return "null"
	case '"':
		return "string"
	}
	return "number"
}

type EnglishProficiency struct {
	Level      string      `json:"level,omitempty"`
	TestScores []TestScore `json:"testScores,omitempty"`
}

type AcademicInfo struct {
	Education          []Education         `json:"education,omitempty"`
	EnglishProficiency *EnglishProficiency `json:"englishProficiency,omitempty"`
}

type CoursePreferences struct {
	InterestedCourses        []string `json:"interestedCourses,omitempty"`
	PreferredSchedule        string   `json:"preferredSchedule,omitempty"`
	LearningGoals            string   `json:"learningGoals,omitempty"`
	PreviousLanguageLearning string   `json:"previousLanguageLearning,omitempty"`
}

// Document is an uploaded file; only its storage URL is kept.
type Document struct {
	Name       string    `json:"name"`
	Type       string    `json:"type"`
	URL        string    `json:"url"`
	UploadedAt time.Time `json:"uploadedAt"`
}

type ReviewNote struct {
	Note       string    `json:"note"`
	AddedBy    string    `json:"addedBy"`
	AddedAt    time.Time `json:"addedAt"`
	IsInternal bool      `json:"isInternal"`
}

type StatusChange struct {
	PreviousStatus Status    `json:"previousStatus"`
	NewStatus      Status    `json:"newStatus"`
	Reason         string    `json:"reason"`
	ChangedBy      string    `json:"changedBy"`
	ChangedAt      time.Time `json:"changedAt"`
}

type EmailLogEntry struct {
	Type    EmailType `json:"type"`
	Subject string    `json:"subject"`
	SentAt  time.Time `json:"sentAt"`
	SentBy  string    `json:"sentBy,omitempty"`
}

type Communication struct {
	EmailsSent      []EmailLogEntry `json:"emailsSent"`
	LastContactDate *time.Time      `json:"lastContactDate"`
}

// LastContact returns the time of the most recent logged email.
func (c Communication) LastContact() *time.Time {
	if n := len(c.EmailsSent); n > 0 {
		t := c.EmailsSent[n-1].SentAt
		return &t
	}
	return nil
}

// FormRef is the display projection of the owning form.
type FormRef struct {
	ID       string       `json:"id"`
	Name     string       `json:"name,omitempty"`
	Category FormCategory `json:"category,omitempty"`
}

// Submission is one applicant's filled-in instance of a form.
type Submission struct {
	ID                string                 `json:"id"`
	ApplicationForm   FormRef                `json:"applicationForm"`
	StudentInfo       StudentInfo            `json:"studentInfo"`
	AcademicInfo      *AcademicInfo          `json:"academicInfo,omitempty"`
	CoursePreferences *CoursePreferences     `json:"coursePreferences,omitempty"`
	Documents         []Document             `json:"documents"`
	FormData          map[string]interface{} `json:"formData"`
	Status            Status                 `json:"status"`
	Priority          Priority               `json:"priority"`
	AssignedTo        *UserRef               `json:"assignedTo"`
	ReviewNotes       []ReviewNote           `json:"reviewNotes"`
	StatusHistory     []StatusChange         `json:"statusHistory"`
	Communication     Communication          `json:"communication"`
	SubmissionSource  Source                 `json:"submissionSource"`
	IPAddress         string                 `json:"ipAddress"`
	UserAgent         string                 `json:"userAgent"`
	Tags              []string               `json:"tags"`
	IsArchived        bool                   `json:"isArchived"`
	CreatedAt         time.Time              `json:"createdAt"`
	UpdatedAt         time.Time              `json:"updatedAt"`
}

// AssignedID returns the assignee id or "".
func (s *Submission) AssignedID() string {
	if s.AssignedTo == nil {
		return ""
	}
	return s.AssignedTo.ID
}

// PublicNotes returns the notes visible to the applicant.
func (s *Submission) PublicNotes() []ReviewNote {
	out := []ReviewNote{}
	for _, n := range s.ReviewNotes {
		if !n.IsInternal {
			out = append(out, n)
		}
	}
	return out
}

// NormalizeEmail trims and lower-cases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
