package submissions

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"regexp"
	"testing"
	"time"

	"admissions-forms/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var submissionColumnNames = []string{
	"id", "form_id", "name", "category",
	"student_info", "academic_info", "course_preferences", "documents", "form_data",
	"status", "priority", "assigned_to", "u_name", "u_email",
	"review_notes", "status_history", "emails_sent", "last_contact_date",
	"submission_source", "ip_address", "user_agent", "tags", "is_archived",
	"created_at", "updated_at",
}

const (
	subID  = "65f1a2b3c4d5e6f7a8b9c0d1"
	formID = "65f1a2b3c4d5e6f7a8b9c0aa"
	userID = "65f1a2b3c4d5e6f7a8b9c0ff"
)

var fixedAt = time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)

func newMockRepo(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresRepository(db), mock
}

func submissionRow(t *testing.T) []driver.Value {
	student, err := json.Marshal(models.StudentInfo{FullName: "Ana Lopez", Email: "ana@example.com", PhoneNumber: "123"})
	require.NoError(t, err)
	history, err := json.Marshal([]models.StatusChange{{PreviousStatus: models.StatusPending, NewStatus: models.StatusUnderReview, ChangedAt: fixedAt}})
	require.NoError(t, err)
	emails, err := json.Marshal([]models.EmailLogEntry{{Type: models.EmailWelcome, Subject: "Hi", SentAt: fixedAt}})
	require.NoError(t, err)
	return []driver.Value{
		subID, formID, "Spanish A1", "language-course",
		student, nil, nil, []byte(`[]`), []byte(`{"level":"A1"}`),
		"under-review", "high", userID, "Sam Staff", "sam@langzy.test",
		[]byte(`[{"note":"hi","addedBy":"x","addedAt":"2025-01-15T10:00:00Z","isInternal":false}]`), history, emails, fixedAt,
		"website", "10.0.0.1", "curl", []byte(`{vip,evening}`), false,
		fixedAt, fixedAt,
	}
}

// ==========================
// Read Tests
// ==========================

func TestFindByIDScansRow(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery("(?s)" + regexp.QuoteMeta("FROM student_applications a") + ".*" + regexp.QuoteMeta("WHERE a.id = $1")).
		WithArgs(subID).
		WillReturnRows(sqlmock.NewRows(submissionColumnNames).AddRow(submissionRow(t)...))

	s, err := repo.FindByID(context.Background(), subID)
	require.NoError(t, err)
	assert.Equal(t, subID, s.ID)
	assert.Equal(t, models.FormRef{ID: formID, Name: "Spanish A1", Category: models.CategoryLanguageCourse}, s.ApplicationForm)
	assert.Equal(t, "Ana Lopez", s.StudentInfo.FullName)
	assert.Nil(t, s.AcademicInfo)
	assert.Equal(t, "A1", s.FormData["level"])
	assert.Equal(t, models.StatusUnderReview, s.Status)
	assert.Equal(t, models.PriorityHigh, s.Priority)
	require.NotNil(t, s.AssignedTo)
	assert.Equal(t, "Sam Staff", s.AssignedTo.Name)
	assert.Equal(t, []string{"vip", "evening"}, s.Tags)
	assert.Len(t, s.StatusHistory, 1)
	assert.Len(t, s.PublicNotes(), 1)
	require.NotNil(t, s.Communication.LastContactDate)
	assert.Equal(t, models.EmailWelcome, s.Communication.EmailsSent[0].Type)
	assert.Empty(t, s.Documents)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByIDNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery("FROM student_applications a").
		WithArgs(subID).
		WillReturnRows(sqlmock.NewRows(submissionColumnNames))

	_, err := repo.FindByID(context.Background(), subID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListBuildsFilters(t *testing.T) {
	repo, mock := newMockRepo(t)
	from := fixedAt.Add(-24 * time.Hour)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM student_applications a WHERE a.is_archived = $1 AND a.status = $2 AND a.form_id = $3 AND (a.full_name ILIKE $4 OR a.email ILIKE $5 OR a.phone ILIKE $6) AND a.created_at >= $7`)).
		WithArgs(false, "pending", formID, "%ana\\_l%", "%ana\\_l%", "%ana\\_l%", from).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(11))
	mock.ExpectQuery(regexp.QuoteMeta(`ORDER BY a.full_name ASC, a.id ASC LIMIT $8 OFFSET $9`)).
		WithArgs(false, "pending", formID, "%ana\\_l%", "%ana\\_l%", "%ana\\_l%", from, 5, 5).
		WillReturnRows(sqlmock.NewRows(submissionColumnNames).AddRow(submissionRow(t)...))

	items, total, err := repo.List(context.Background(), ListFilter{
		Status: models.StatusPending,
		FormID: formID,
		Search: "ana_l",
		From:   &from,
	}, models.NewPage(2, 5, "fullName", "asc", 10, 100))
	require.NoError(t, err)
	assert.Equal(t, 11, total)
	assert.Len(t, items, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ==========================
// Intake Tests
// ==========================

func TestWithIntakeCommits(t *testing.T) {
	repo, mock := newMockRepo(t)
	settings, _ := json.Marshal(models.FormSettings{MaxCapacity: func() *int { v := 10; return &v }()})
	notifications, _ := json.Marshal(models.DefaultEmailNotifications("Spanish A1"))

	mock.ExpectBegin()
	mock.ExpectQuery("(?s)" + regexp.QuoteMeta("FROM application_forms") + ".*FOR UPDATE").
		WithArgs(formID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "slug", "category", "settings", "email_notifications", "is_active", "submissions"}).
			AddRow(formID, "Spanish A1", "spanish-a1", "language-course", settings, notifications, true, 3))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WithArgs(formID, "ana@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO student_applications")).
		WithArgs(subID, formID, "ana@example.com", "Ana", "",
			sqlmock.AnyArg(), nil, nil, sqlmock.AnyArg(), sqlmock.AnyArg(),
			"pending", "medium", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			"website", "", "", sqlmock.AnyArg(), false,
			fixedAt, fixedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE application_forms SET submissions = submissions + 1")).
		WithArgs(formID, fixedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.WithIntake(context.Background(), func(tx IntakeTx) error {
		f, err := tx.LockForm(context.Background(), formID)
		require.NoError(t, err)
		assert.Equal(t, 3, f.Submissions)
		assert.Equal(t, 10, *f.Settings.MaxCapacity)
		exists, err := tx.EmailExists(context.Background(), formID, "ana@example.com")
		require.NoError(t, err)
		assert.False(t, exists)
		require.NoError(t, tx.Insert(context.Background(), &models.Submission{
			ID:               subID,
			ApplicationForm:  models.FormRef{ID: formID},
			StudentInfo:      models.StudentInfo{FullName: "Ana", Email: "ana@example.com"},
			Status:           models.StatusPending,
			Priority:         models.PriorityMedium,
			SubmissionSource: models.SourceWebsite,
			CreatedAt:        fixedAt,
			UpdatedAt:        fixedAt,
		}))
		return tx.IncrementSubmissions(context.Background(), formID, fixedAt)
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithIntakeRollsBack(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs(formID).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	err := repo.WithIntake(context.Background(), func(tx IntakeTx) error {
		_, err := tx.LockForm(context.Background(), formID)
		return err
	})
	assert.ErrorIs(t, err, ErrFormNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ==========================
// Write Tests
// ==========================

func TestUpdateStatusReturnsPrevious(t *testing.T) {
	repo, mock := newMockRepo(t)
	change := models.StatusChange{NewStatus: models.StatusApproved, ChangedBy: userID, ChangedAt: fixedAt}

	mock.ExpectQuery(regexp.QuoteMeta("RETURNING status_history -> -1 ->> 'previousStatus'")).
		WithArgs(subID, sqlmock.AnyArg(), "approved", []byte("[]"), fixedAt).
		WillReturnRows(sqlmock.NewRows([]string{"previous"}).AddRow("pending"))

	prev, err := repo.UpdateStatus(context.Background(), subID, change, nil)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, prev)

	mock.ExpectQuery("RETURNING").
		WillReturnRows(sqlmock.NewRows([]string{"previous"}))
	_, err = repo.UpdateStatus(context.Background(), subID, change, nil)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignAndArchive(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(regexp.QuoteMeta("assigned_to = $2")).
		WithArgs(subID, nil, []byte("[]"), fixedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Assign(context.Background(), subID, "", nil, fixedAt))

	mock.ExpectExec(regexp.QuoteMeta("SET is_archived = $2")).
		WithArgs(subID, true, fixedAt).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.SetArchived(context.Background(), subID, true, fixedAt)
	assert.ErrorIs(t, err, ErrNotFound)

	entry := models.EmailLogEntry{Type: models.EmailCustom, Subject: "Hi", SentAt: fixedAt}
	mock.ExpectExec(regexp.QuoteMeta("emails_sent = emails_sent || $2::jsonb")).
		WithArgs(subID, sqlmock.AnyArg(), fixedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.LogEmail(context.Background(), subID, entry))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulk(t *testing.T) {
	ids := []string{subID, formID}
	tests := []struct {
		name     string
		update   BulkUpdate
		fragment string
		args     []driver.Value
		affected int64
	}{
		{
			name:     "archive skips already archived",
			update:   BulkUpdate{Action: ActionArchive, Archive: true},
			fragment: "is_archived <> $2",
			args:     []driver.Value{sqlmock.AnyArg(), true, fixedAt},
			affected: 1,
		},
		{
			name:     "priority",
			update:   BulkUpdate{Action: ActionSetPriority, Priority: models.PriorityUrgent},
			fragment: "priority <> $2",
			args:     []driver.Value{sqlmock.AnyArg(), "urgent", fixedAt},
			affected: 2,
		},
		{
			name:     "status appends history",
			update:   BulkUpdate{Action: ActionUpdateStatus, Change: models.StatusChange{NewStatus: models.StatusRejected}},
			fragment: "status_history = status_history || jsonb_build_array",
			args:     []driver.Value{sqlmock.AnyArg(), sqlmock.AnyArg(), "rejected", fixedAt},
			affected: 2,
		},
		{
			name:     "assign",
			update:   BulkUpdate{Action: ActionAssign, AssignedTo: userID},
			fragment: "assigned_to IS DISTINCT FROM $2",
			args:     []driver.Value{sqlmock.AnyArg(), sqlmock.AnyArg(), fixedAt},
			affected: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := newMockRepo(t)
			mock.ExpectBegin()
			mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM student_applications WHERE id = ANY($1)")).
				WithArgs(sqlmock.AnyArg()).
				WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
			mock.ExpectExec(regexp.QuoteMeta(tt.fragment)).
				WithArgs(tt.args...).
				WillReturnResult(sqlmock.NewResult(0, tt.affected))
			mock.ExpectCommit()

			res, err := repo.Bulk(context.Background(), ids, tt.update, fixedAt)
			require.NoError(t, err)
			assert.Equal(t, BulkResult{MatchedCount: 2, ModifiedCount: int(tt.affected)}, res)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestBulkUnknownActionRollsBack(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT COUNT").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectRollback()

	_, err := repo.Bulk(context.Background(), []string{subID}, BulkUpdate{Action: "delete"}, fixedAt)
	assert.True(t, errors.Is(err, ErrUnknownAction))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ==========================
// Stats Tests
// ==========================

func TestStatsQueries(t *testing.T) {
	repo, mock := newMockRepo(t)
	from := fixedAt.Add(-72 * time.Hour)
	since := fixedAt.Add(-30 * 24 * time.Hour)

	ranged := regexp.QuoteMeta("WHERE a.is_archived = false AND a.form_id = $1 AND a.created_at >= $2")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM student_applications a") + " " + ranged).
		WithArgs(formID, from).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))
	mock.ExpectQuery(ranged + regexp.QuoteMeta(" GROUP BY a.status")).
		WithArgs(formID, from).
		WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).AddRow("approved", 2).AddRow("pending", 5))
	mock.ExpectQuery(ranged + regexp.QuoteMeta(" GROUP BY a.priority")).
		WithArgs(formID, from).
		WillReturnRows(sqlmock.NewRows([]string{"priority", "count"}).AddRow("medium", 7))
	mock.ExpectQuery("GROUP BY a.form_id, f.name").
		WithArgs(formID, from).
		WillReturnRows(sqlmock.NewRows([]string{"form_id", "name", "count"}).AddRow(formID, "Spanish A1", 7))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE a.is_archived = false AND a.form_id = $1 AND a.created_at >= $2") + "\\s+GROUP BY day").
		WithArgs(formID, since).
		WillReturnRows(sqlmock.NewRows([]string{"day", "count"}).AddRow("2025-01-14", 3).AddRow("2025-01-15", 4))

	stats, err := repo.Stats(context.Background(), StatsFilter{FormID: formID, From: &from}, since)
	require.NoError(t, err)
	assert.Equal(t, 7, stats.TotalApplications)
	assert.Equal(t, []Bucket{{ID: "approved", Count: 2}, {ID: "pending", Count: 5}}, stats.StatusBreakdown)
	assert.Equal(t, []Bucket{{ID: "medium", Count: 7}}, stats.PriorityBreakdown)
	assert.Equal(t, []FormBucket{{ID: formID, FormName: "Spanish A1", Count: 7}}, stats.FormBreakdown)
	assert.Equal(t, []Bucket{{ID: "2025-01-14", Count: 3}, {ID: "2025-01-15", Count: 4}}, stats.RecentActivity)
	assert.NoError(t, mock.ExpectationsWereMet())
}
