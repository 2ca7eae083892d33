// Package updatesubmissionstatus lets a BPMN review process move a submission
// through the same status lifecycle staff use over HTTP.
package updatesubmissionstatus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	stderrors "admissions-forms/internal/common/errors"
	"admissions-forms/internal/common/logger"
	"admissions-forms/internal/models"
	"admissions-forms/internal/submissions"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "update-submission-status"

	// systemActor is recorded as the changer when the job names nobody.
	systemActor = "workflow"
)

// StatusUpdater is satisfied by *submissions.Service.
type StatusUpdater interface {
	UpdateStatus(ctx context.Context, id string, actor submissions.Actor, in submissions.StatusInput) (*models.Submission, error)
}

type Handler struct {
	config  *Config
	updater StatusUpdater
	errors  *stderrors.ErrorHandler
	logger  logger.Logger
}

func NewHandler(config *Config, updater StatusUpdater, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:  config,
		updater: updater,
		errors:  stderrors.NewErrorHandler(log),
		logger:  log,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	input, err := parseInput(job.Variables)
	if err != nil {
		h.errors.HandleJobError(ctx, client, job, err)
		return
	}

	output, err := h.execute(ctx, input)
	if err != nil {
		h.errors.HandleJobError(ctx, client, job, err)
		return
	}
	h.completeJob(ctx, client, job, output)
}

func parseInput(variables string) (*Input, error) {
	var input Input
	if err := json.Unmarshal([]byte(variables), &input); err != nil {
		return nil, stderrors.NewValidationError(fmt.Sprintf("parse input: %v", err))
	}
	if strings.TrimSpace(input.ApplicationID) == "" {
		return nil, stderrors.NewValidationError("applicationId is required",
			stderrors.FieldError{Field: "applicationId", Message: "applicationId is a required field"})
	}
	return &input, nil
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	actor := submissions.Actor{ID: input.ActorID, Email: input.ActorEmail}
	if actor.ID == "" {
		actor.ID = systemActor
	}

	sub, err := h.updater.UpdateStatus(ctx, input.ApplicationID, actor, submissions.StatusInput{
		Status:    input.Status,
		Reason:    input.Reason,
		Notes:     input.Notes,
		SendEmail: input.SendEmail,
	})
	if err != nil {
		return nil, err
	}

	output := &Output{
		ApplicationID: sub.ID,
		Status:        string(sub.Status),
		UpdatedAt:     sub.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if n := len(sub.StatusHistory); n > 0 {
		output.PreviousStatus = string(sub.StatusHistory[n-1].PreviousStatus)
	}

	h.logger.Info("submission status updated from workflow", map[string]interface{}{
		"applicationId":  output.ApplicationID,
		"status":         output.Status,
		"previousStatus": output.PreviousStatus,
	})
	return output, nil
}

func (h *Handler) completeJob(ctx context.Context, client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err,
		})
		return
	}
	if _, err := cmd.Send(ctx); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err,
		})
		return
	}
	h.logger.Info("job completed successfully", map[string]interface{}{
		"jobKey": job.Key,
	})
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
