package submissions

import (
	"fmt"

	"admissions-forms/internal/models"
)

// statusEmail returns the applicant email for a status change. reason
// replaces the default closing line when given.
func statusEmail(status models.Status, fullName, formName, reason, signOff string) (subject, body string) {
	or := func(def string) string {
		if reason != "" {
			return reason
		}
		return def
	}

	var lead string
	switch status {
	case models.StatusApproved:
		subject = "Application Approved - " + formName
		lead = fmt.Sprintf("Congratulations! Your application for %s has been approved.\n\n%s",
			formName, or("We will contact you soon with next steps."))
	case models.StatusRejected:
		subject = "Application Update - " + formName
		lead = fmt.Sprintf("Thank you for your application for %s. After careful review, we regret to inform you that we cannot proceed with your application at this time.\n\n%s",
			formName, or("We encourage you to apply again in the future."))
	case models.StatusWaitlisted:
		subject = "Application Waitlisted - " + formName
		lead = fmt.Sprintf("Your application for %s has been placed on our waitlist.\n\n%s",
			formName, or("We will contact you if a spot becomes available."))
	case models.StatusUnderReview:
		subject = "Application Under Review - " + formName
		lead = fmt.Sprintf("Your application for %s is currently under review.\n\n%s",
			formName, or("We will update you on the status soon."))
	default:
		subject = "Application Status Update - " + formName
		lead = fmt.Sprintf("Your application status has been updated to: %s\n\n%s", status.Title(), reason)
	}

	body = fmt.Sprintf("Dear %s,\n\n%s\n\nBest regards,\n%s", fullName, lead, signOff)
	return subject, body
}

// statusEmailType picks the communication log type for a status email.
func statusEmailType(status models.Status) models.EmailType {
	switch status {
	case models.StatusApproved:
		return models.EmailApproval
	case models.StatusRejected:
		return models.EmailRejection
	default:
		return models.EmailStatusUpdate
	}
}

func adminNotice(formName, fullName, email string) (subject, body string) {
	return "New Application Received: " + formName,
		fmt.Sprintf("A new application has been submitted for %s by %s (%s).", formName, fullName, email)
}

func adminCopy(subject, message, fullName, email string) (string, string) {
	return "Copy: " + subject,
		fmt.Sprintf("This is a copy of the email sent to %s (%s):\n\n%s", fullName, email, message)
}

func statusSMS(status models.Status, formName string) string {
	return fmt.Sprintf("Your application for %s is now: %s", formName, status.Title())
}
