package updatesubmissionstatus

// Input is the job variable set a BPMN review task sends.
type Input struct {
	ApplicationID string `json:"applicationId"`
	Status        string `json:"status"`
	Reason        string `json:"reason"`
	Notes         string `json:"notes"`
	SendEmail     *bool  `json:"sendEmail"`
	ActorID       string `json:"actorId"`
	ActorEmail    string `json:"actorEmail"`
}

type Output struct {
	ApplicationID  string `json:"applicationId"`
	Status         string `json:"applicationStatus"`
	PreviousStatus string `json:"previousStatus"`
	UpdatedAt      string `json:"updatedAt"` // RFC 3339
}
