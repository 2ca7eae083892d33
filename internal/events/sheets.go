package events

import (
	"context"
	"fmt"
	"os"
	"time"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// SheetsExporter appends one row per accepted submission to a spreadsheet.
type SheetsExporter struct {
	service     *sheets.Service
	spreadsheet string
	sheetName   string
}

// NewSheetsExporter authenticates with a service-account credentials file.
// endpoint overrides the API base URL when set.
func NewSheetsExporter(ctx context.Context, credentialsPath, spreadsheetID, sheetName, endpoint string) (*SheetsExporter, error) {
	credBytes, err := os.ReadFile(credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}

	cfg, err := google.JWTConfigFromJSON(credBytes, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}

	opts := []option.ClientOption{option.WithHTTPClient(cfg.Client(ctx))}
	if endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}
	service, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create sheets client: %w", err)
	}
	return NewSheetsExporterWithService(service, spreadsheetID, sheetName), nil
}

func NewSheetsExporterWithService(service *sheets.Service, spreadsheetID, sheetName string) *SheetsExporter {
	return &SheetsExporter{service: service, spreadsheet: spreadsheetID, sheetName: sheetName}
}

func (s *SheetsExporter) Name() string { return "google-sheets" }

func (s *SheetsExporter) Handle(ctx context.Context, e Event) error {
	if e.Type != SubmissionReceived {
		return nil
	}
	sub := e.Submission
	row := []interface{}{
		sub.ID,
		sub.CreatedAt.UTC().Format(time.RFC3339),
		sub.ApplicationForm.ID,
		sub.ApplicationForm.Name,
		sub.StudentInfo.FullName,
		sub.StudentInfo.Email,
		sub.StudentInfo.PhoneNumber,
		string(sub.Status),
		string(sub.Priority),
		string(sub.SubmissionSource),
	}

	valueRange := &sheets.ValueRange{Values: [][]interface{}{row}}
	_, err := s.service.Spreadsheets.Values.Append(s.spreadsheet, s.sheetName, valueRange).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("append row: %w", err)
	}
	return nil
}
