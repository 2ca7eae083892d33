package events

import (
	"context"
	"fmt"

	"admissions-forms/internal/common/zoho"
	"admissions-forms/internal/models"
)

// ContactUpserter is satisfied by zoho.CRMClient.
type ContactUpserter interface {
	UpsertContact(ctx context.Context, contact *zoho.Contact) (string, error)
}

// CRMSync creates or refreshes a CRM contact when a submission is approved.
type CRMSync struct {
	crm ContactUpserter
}

func NewCRMSync(crm ContactUpserter) *CRMSync {
	return &CRMSync{crm: crm}
}

func (c *CRMSync) Name() string { return "zoho-crm" }

func (c *CRMSync) Handle(ctx context.Context, e Event) error {
	if e.Type != StatusChanged || e.Submission.Status != models.StatusApproved {
		return nil
	}
	s := e.Submission
	first, last := zoho.SplitName(s.StudentInfo.FullName)
	contact := &zoho.Contact{
		Email:       s.StudentInfo.Email,
		FirstName:   first,
		LastName:    last,
		Phone:       s.StudentInfo.PhoneNumber,
		Source:      "Admissions Form",
		Description: fmt.Sprintf("Approved for %s (submission %s)", s.ApplicationForm.Name, s.ID),
	}
	if _, err := c.crm.UpsertContact(ctx, contact); err != nil {
		return fmt.Errorf("crm upsert: %w", err)
	}
	return nil
}
