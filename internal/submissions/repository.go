package submissions

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"admissions-forms/internal/common/database"
	"admissions-forms/internal/models"
)

// ListFilter narrows the staff listing. Archived submissions are only
// returned when Archived is set.
type ListFilter struct {
	Status     models.Status
	Priority   models.Priority
	FormID     string
	AssignedTo string
	Search     string
	From       *time.Time
	To         *time.Time
	Archived   bool
}

type StatsFilter struct {
	FormID string
	From   *time.Time
	To     *time.Time
}

// BulkUpdate is one action applied to a set of submissions.
type BulkUpdate struct {
	Action     string
	Change     models.StatusChange
	AssignedTo string
	Archive    bool
	Priority   models.Priority
}

// IntakeTx is the transactional view used while accepting a submission.
// The form row stays locked until the transaction ends.
type IntakeTx interface {
	LockForm(ctx context.Context, formID string) (*models.FormDefinition, error)
	EmailExists(ctx context.Context, formID, email string) (bool, error)
	Insert(ctx context.Context, s *models.Submission) error
	IncrementSubmissions(ctx context.Context, formID string, at time.Time) error
}

// Repository is the persistence port of the submission service.
type Repository interface {
	WithIntake(ctx context.Context, fn func(tx IntakeTx) error) error
	FindByID(ctx context.Context, id string) (*models.Submission, error)
	FindLatest(ctx context.Context, email, formID string) (*models.Submission, error)
	List(ctx context.Context, filter ListFilter, page models.Page) ([]*models.Submission, int, error)
	UpdateStatus(ctx context.Context, id string, change models.StatusChange, note *models.ReviewNote) (models.Status, error)
	AddNote(ctx context.Context, id string, note models.ReviewNote) error
	Assign(ctx context.Context, id, assignee string, note *models.ReviewNote, at time.Time) error
	SetArchived(ctx context.Context, id string, archived bool, at time.Time) error
	LogEmail(ctx context.Context, id string, entry models.EmailLogEntry) error
	Bulk(ctx context.Context, ids []string, update BulkUpdate, at time.Time) (BulkResult, error)
	Stats(ctx context.Context, filter StatsFilter, since time.Time) (*Stats, error)
}

var sortColumns = map[string]string{
	"createdAt": "a.created_at",
	"updatedAt": "a.updated_at",
	"status":    "a.status",
	"priority":  "a.priority",
	"fullName":  "a.full_name",
	"email":     "a.email",
}

const selectSubmission = `
	SELECT a.id, a.form_id, f.name, f.category,
	       a.student_info, a.academic_info, a.course_preferences, a.documents, a.form_data,
	       a.status, a.priority, a.assigned_to, u.name, u.email,
	       a.review_notes, a.status_history, a.emails_sent, a.last_contact_date,
	       a.submission_source, a.ip_address, a.user_agent, a.tags, a.is_archived,
	       a.created_at, a.updated_at
	FROM student_applications a
	LEFT JOIN application_forms f ON f.id = a.form_id
	LEFT JOIN users u ON u.id = a.assigned_to`

// PostgresRepository stores submissions in the student_applications table.
type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// WithIntake runs fn in one transaction so the guards, the insert and the
// counter increment commit together.
func (r *PostgresRepository) WithIntake(ctx context.Context, fn func(tx IntakeTx) error) error {
	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		return fn(&intakeTx{tx: tx})
	})
}

type intakeTx struct {
	tx *sql.Tx
}

func (t *intakeTx) LockForm(ctx context.Context, formID string) (*models.FormDefinition, error) {
	var (
		f                      models.FormDefinition
		settings, notification []byte
	)
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, name, slug, category, settings, email_notifications, is_active, submissions
		FROM application_forms
		WHERE id = $1
		FOR UPDATE`, formID,
	).Scan(&f.ID, &f.Name, &f.Slug, &f.Category, &settings, &notification, &f.IsActive, &f.Submissions)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrFormNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock form: %w", err)
	}
	f.ID = strings.TrimSpace(f.ID)
	if err := json.Unmarshal(settings, &f.Settings); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	if err := json.Unmarshal(notification, &f.EmailNotifications); err != nil {
		return nil, fmt.Errorf("decode email notifications: %w", err)
	}
	return &f, nil
}

func (t *intakeTx) EmailExists(ctx context.Context, formID, email string) (bool, error) {
	var exists bool
	err := t.tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM student_applications WHERE form_id = $1 AND email = $2)`,
		formID, email,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check duplicate email: %w", err)
	}
	return exists, nil
}

func (t *intakeTx) Insert(ctx context.Context, s *models.Submission) error {
	cols, err := marshalSubmission(s)
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO student_applications (
			id, form_id, email, full_name, phone,
			student_info, academic_info, course_preferences, documents, form_data,
			status, priority, review_notes, status_history, emails_sent,
			submission_source, ip_address, user_agent, tags, is_archived,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)`,
		s.ID, s.ApplicationForm.ID, s.StudentInfo.Email, s.StudentInfo.FullName, s.StudentInfo.PhoneNumber,
		cols.studentInfo, nullBytes(cols.academicInfo), nullBytes(cols.coursePreferences), cols.documents, cols.formData,
		string(s.Status), string(s.Priority), cols.reviewNotes, cols.statusHistory, cols.emailsSent,
		string(s.SubmissionSource), s.IPAddress, s.UserAgent, pq.Array(s.Tags), s.IsArchived,
		s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}
	return nil
}

func (t *intakeTx) IncrementSubmissions(ctx context.Context, formID string, at time.Time) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE application_forms SET submissions = submissions + 1, updated_at = $2 WHERE id = $1`,
		formID, at,
	)
	if err != nil {
		return fmt.Errorf("increment submissions: %w", err)
	}
	return nil
}

func (r *PostgresRepository) FindByID(ctx context.Context, id string) (*models.Submission, error) {
	return scanSubmission(r.db.QueryRowContext(ctx, selectSubmission+` WHERE a.id = $1`, id))
}

// FindLatest returns the newest submission by email to formID.
func (r *PostgresRepository) FindLatest(ctx context.Context, email, formID string) (*models.Submission, error) {
	return scanSubmission(r.db.QueryRowContext(ctx,
		selectSubmission+` WHERE a.email = $1 AND a.form_id = $2 ORDER BY a.created_at DESC LIMIT 1`,
		email, formID,
	))
}

func (r *PostgresRepository) List(ctx context.Context, filter ListFilter, page models.Page) ([]*models.Submission, int, error) {
	var where database.Where
	where.Add("a.is_archived = ?", filter.Archived)
	if filter.Status != "" {
		where.Add("a.status = ?", string(filter.Status))
	}
	if filter.Priority != "" {
		where.Add("a.priority = ?", string(filter.Priority))
	}
	if filter.FormID != "" {
		where.Add("a.form_id = ?", filter.FormID)
	}
	if filter.AssignedTo != "" {
		where.Add("a.assigned_to = ?", filter.AssignedTo)
	}
	if filter.Search != "" {
		like := database.Like(filter.Search)
		where.Add("(a.full_name ILIKE ? OR a.email ILIKE ? OR a.phone ILIKE ?)", like, like, like)
	}
	if filter.From != nil {
		where.Add("a.created_at >= ?", *filter.From)
	}
	if filter.To != nil {
		where.Add("a.created_at <= ?", *filter.To)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM student_applications a`+where.SQL(), where.Args()...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count submissions: %w", err)
	}

	column, ok := sortColumns[page.SortBy]
	if !ok {
		column = sortColumns["createdAt"]
	}
	direction := "DESC"
	if !page.Descending() {
		direction = "ASC"
	}
	query := selectSubmission + where.SQL() + fmt.Sprintf(" ORDER BY %s %s, a.id %s", column, direction, direction)
	if page.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %s OFFSET %s", where.Next(page.Limit), where.Next(page.Offset()))
	}

	rows, err := r.db.QueryContext(ctx, query, where.Args()...)
	if err != nil {
		return nil, 0, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()

	items := make([]*models.Submission, 0)
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, s)
	}
	return items, total, rows.Err()
}

// UpdateStatus appends the history entry and sets the new status in one
// statement; previousStatus is taken from the row itself. It returns the
// status the row had before.
func (r *PostgresRepository) UpdateStatus(ctx context.Context, id string, change models.StatusChange, note *models.ReviewNote) (models.Status, error) {
	entry, err := json.Marshal(change)
	if err != nil {
		return "", fmt.Errorf("encode status change: %w", err)
	}
	notes, err := jsonArray(note)
	if err != nil {
		return "", err
	}
	var previous string
	err = r.db.QueryRowContext(ctx, `
		UPDATE student_applications SET
			status_history = status_history || jsonb_build_array($2::jsonb || jsonb_build_object('previousStatus', status)),
			status = $3,
			review_notes = review_notes || $4::jsonb,
			updated_at = $5
		WHERE id = $1
		RETURNING status_history -> -1 ->> 'previousStatus'`,
		id, entry, string(change.NewStatus), notes, change.ChangedAt,
	).Scan(&previous)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("update status: %w", err)
	}
	return models.Status(previous), nil
}

func (r *PostgresRepository) AddNote(ctx context.Context, id string, note models.ReviewNote) error {
	notes, err := jsonArray(&note)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE student_applications SET review_notes = review_notes || $2::jsonb, updated_at = $3 WHERE id = $1`,
		id, notes, note.AddedAt,
	)
	if err != nil {
		return fmt.Errorf("add note: %w", err)
	}
	return requireRow(res)
}

// Assign sets or clears the assignee. note, when set, is appended in the
// same statement.
func (r *PostgresRepository) Assign(ctx context.Context, id, assignee string, note *models.ReviewNote, at time.Time) error {
	notes, err := jsonArray(note)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE student_applications SET
			assigned_to = $2,
			review_notes = review_notes || $3::jsonb,
			updated_at = $4
		WHERE id = $1`,
		id, nullString(assignee), notes, at,
	)
	if err != nil {
		return fmt.Errorf("assign submission: %w", err)
	}
	return requireRow(res)
}

func (r *PostgresRepository) SetArchived(ctx context.Context, id string, archived bool, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE student_applications SET is_archived = $2, updated_at = $3 WHERE id = $1`,
		id, archived, at,
	)
	if err != nil {
		return fmt.Errorf("archive submission: %w", err)
	}
	return requireRow(res)
}

// LogEmail appends a communication entry and moves lastContactDate.
func (r *PostgresRepository) LogEmail(ctx context.Context, id string, entry models.EmailLogEntry) error {
	raw, err := jsonArray(&entry)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE student_applications SET
			emails_sent = emails_sent || $2::jsonb,
			last_contact_date = $3,
			updated_at = $3
		WHERE id = $1`,
		id, raw, entry.SentAt,
	)
	if err != nil {
		return fmt.Errorf("log email: %w", err)
	}
	return requireRow(res)
}

// Bulk applies update to every id with a single UPDATE. Rows already holding
// the target value are matched but not modified; a status update always
// modifies because each row gains a history entry.
func (r *PostgresRepository) Bulk(ctx context.Context, ids []string, update BulkUpdate, at time.Time) (BulkResult, error) {
	var result BulkResult
	err := database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM student_applications WHERE id = ANY($1)`, pq.Array(ids),
		).Scan(&result.MatchedCount); err != nil {
			return fmt.Errorf("count matched: %w", err)
		}

		var (
			res sql.Result
			err error
		)
		switch update.Action {
		case ActionUpdateStatus:
			entry, encErr := json.Marshal(update.Change)
			if encErr != nil {
				return fmt.Errorf("encode status change: %w", encErr)
			}
			res, err = tx.ExecContext(ctx, `
				UPDATE student_applications SET
					status_history = status_history || jsonb_build_array($2::jsonb || jsonb_build_object('previousStatus', status)),
					status = $3,
					updated_at = $4
				WHERE id = ANY($1)`,
				pq.Array(ids), entry, string(update.Change.NewStatus), at,
			)
		case ActionAssign:
			res, err = tx.ExecContext(ctx, `
				UPDATE student_applications SET assigned_to = $2, updated_at = $3
				WHERE id = ANY($1) AND assigned_to IS DISTINCT FROM $2`,
				pq.Array(ids), nullString(update.AssignedTo), at,
			)
		case ActionArchive:
			res, err = tx.ExecContext(ctx, `
				UPDATE student_applications SET is_archived = $2, updated_at = $3
				WHERE id = ANY($1) AND is_archived <> $2`,
				pq.Array(ids), update.Archive, at,
			)
		case ActionSetPriority:
			res, err = tx.ExecContext(ctx, `
				UPDATE student_applications SET priority = $2, updated_at = $3
				WHERE id = ANY($1) AND priority <> $2`,
				pq.Array(ids), string(update.Priority), at,
			)
		default:
			return fmt.Errorf("%w: %s", ErrUnknownAction, update.Action)
		}
		if err != nil {
			return fmt.Errorf("bulk %s: %w", update.Action, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		result.ModifiedCount = int(n)
		return nil
	})
	return result, err
}

// Stats aggregates non-archived submissions. The daily series always covers
// the period since `since`, scoped by form only.
func (r *PostgresRepository) Stats(ctx context.Context, filter StatsFilter, since time.Time) (*Stats, error) {
	var base database.Where
	base.Add("a.is_archived = false")
	if filter.FormID != "" {
		base.Add("a.form_id = ?", filter.FormID)
	}
	ranged := base.Clone()
	if filter.From != nil {
		ranged.Add("a.created_at >= ?", *filter.From)
	}
	if filter.To != nil {
		ranged.Add("a.created_at <= ?", *filter.To)
	}

	stats := &Stats{
		StatusBreakdown:   []Bucket{},
		PriorityBreakdown: []Bucket{},
		FormBreakdown:     []FormBucket{},
		RecentActivity:    []Bucket{},
	}

	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM student_applications a`+ranged.SQL(), ranged.Args()...,
	).Scan(&stats.TotalApplications); err != nil {
		return nil, fmt.Errorf("count submissions: %w", err)
	}

	var err error
	if stats.StatusBreakdown, err = r.buckets(ctx,
		`SELECT a.status, COUNT(*) FROM student_applications a`+ranged.SQL()+` GROUP BY a.status ORDER BY a.status`,
		ranged.Args()); err != nil {
		return nil, fmt.Errorf("status breakdown: %w", err)
	}
	if stats.PriorityBreakdown, err = r.buckets(ctx,
		`SELECT a.priority, COUNT(*) FROM student_applications a`+ranged.SQL()+` GROUP BY a.priority ORDER BY a.priority`,
		ranged.Args()); err != nil {
		return nil, fmt.Errorf("priority breakdown: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT a.form_id, f.name, COUNT(*)
		FROM student_applications a
		JOIN application_forms f ON f.id = a.form_id`+ranged.SQL()+`
		GROUP BY a.form_id, f.name
		ORDER BY COUNT(*) DESC, f.name`, ranged.Args()...)
	if err != nil {
		return nil, fmt.Errorf("form breakdown: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var b FormBucket
		if err := rows.Scan(&b.ID, &b.FormName, &b.Count); err != nil {
			return nil, fmt.Errorf("scan form breakdown: %w", err)
		}
		b.ID = strings.TrimSpace(b.ID)
		stats.FormBreakdown = append(stats.FormBreakdown, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	recent := base.Clone()
	recent.Add("a.created_at >= ?", since)
	if stats.RecentActivity, err = r.buckets(ctx, `
		SELECT to_char(a.created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day, COUNT(*)
		FROM student_applications a`+recent.SQL()+`
		GROUP BY day
		ORDER BY day`, recent.Args()); err != nil {
		return nil, fmt.Errorf("recent activity: %w", err)
	}
	return stats, nil
}

func (r *PostgresRepository) buckets(ctx context.Context, query string, args []interface{}) ([]Bucket, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Bucket{}
	for rows.Next() {
		var b Bucket
		if err := rows.Scan(&b.ID, &b.Count); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSubmission(row rowScanner) (*models.Submission, error) {
	var (
		s                                      models.Submission
		formName, formCategory                 sql.NullString
		studentInfo, academicInfo, courses     []byte
		documents, formData                    []byte
		status, priority, source               string
		assignedTo, assigneeName, assigneeMail sql.NullString
		notes, history, emails                 []byte
		lastContact                            sql.NullTime
		tags                                   []string
	)
	err := row.Scan(
		&s.ID, &s.ApplicationForm.ID, &formName, &formCategory,
		&studentInfo, &academicInfo, &courses, &documents, &formData,
		&status, &priority, &assignedTo, &assigneeName, &assigneeMail,
		&notes, &history, &emails, &lastContact,
		&source, &s.IPAddress, &s.UserAgent, pq.Array(&tags), &s.IsArchived,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan submission: %w", err)
	}

	s.ID = strings.TrimSpace(s.ID)
	s.ApplicationForm.ID = strings.TrimSpace(s.ApplicationForm.ID)
	s.ApplicationForm.Name = formName.String
	s.ApplicationForm.Category = models.FormCategory(formCategory.String)
	s.Status = models.Status(status)
	s.Priority = models.Priority(priority)
	s.SubmissionSource = models.Source(source)
	s.Tags = tags
	if s.Tags == nil {
		s.Tags = []string{}
	}
	if assignedTo.Valid && strings.TrimSpace(assignedTo.String) != "" {
		s.AssignedTo = &models.UserRef{
			ID:    strings.TrimSpace(assignedTo.String),
			Name:  assigneeName.String,
			Email: assigneeMail.String,
		}
	}
	if lastContact.Valid {
		t := lastContact.Time
		s.Communication.LastContactDate = &t
	}

	decode := []struct {
		name string
		raw  []byte
		dst  interface{}
	}{
		{"student info", studentInfo, &s.StudentInfo},
		{"academic info", academicInfo, &s.AcademicInfo},
		{"course preferences", courses, &s.CoursePreferences},
		{"documents", documents, &s.Documents},
		{"form data", formData, &s.FormData},
		{"review notes", notes, &s.ReviewNotes},
		{"status history", history, &s.StatusHistory},
		{"emails sent", emails, &s.Communication.EmailsSent},
	}
	for _, d := range decode {
		if len(d.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(d.raw, d.dst); err != nil {
			return nil, fmt.Errorf("decode %s: %w", d.name, err)
		}
	}
	fillEmpty(&s)
	return &s, nil
}

// fillEmpty replaces nil collections so they encode as [] and {}.
func fillEmpty(s *models.Submission) {
	if s.Documents == nil {
		s.Documents = []models.Document{}
	}
	if s.FormData == nil {
		s.FormData = map[string]interface{}{}
	}
	if s.ReviewNotes == nil {
		s.ReviewNotes = []models.ReviewNote{}
	}
	if s.StatusHistory == nil {
		s.StatusHistory = []models.StatusChange{}
	}
	if s.Communication.EmailsSent == nil {
		s.Communication.EmailsSent = []models.EmailLogEntry{}
	}
	if s.Tags == nil {
		s.Tags = []string{}
	}
}

type submissionColumns struct {
	studentInfo, academicInfo, coursePreferences []byte
	documents, formData                          []byte
	reviewNotes, statusHistory, emailsSent       []byte
}

func marshalSubmission(s *models.Submission) (*submissionColumns, error) {
	fillEmpty(s)
	var (
		c   submissionColumns
		err error
	)
	encode := []struct {
		name string
		src  interface{}
		dst  *[]byte
	}{
		{"student info", s.StudentInfo, &c.studentInfo},
		{"documents", s.Documents, &c.documents},
		{"form data", s.FormData, &c.formData},
		{"review notes", s.ReviewNotes, &c.reviewNotes},
		{"status history", s.StatusHistory, &c.statusHistory},
		{"emails sent", s.Communication.EmailsSent, &c.emailsSent},
	}
	for _, e := range encode {
		if *e.dst, err = json.Marshal(e.src); err != nil {
			return nil, fmt.Errorf("encode %s: %w", e.name, err)
		}
	}
	if s.AcademicInfo != nil {
		if c.academicInfo, err = json.Marshal(s.AcademicInfo); err != nil {
			return nil, fmt.Errorf("encode academic info: %w", err)
		}
	}
	if s.CoursePreferences != nil {
		if c.coursePreferences, err = json.Marshal(s.CoursePreferences); err != nil {
			return nil, fmt.Errorf("encode course preferences: %w", err)
		}
	}
	return &c, nil
}

// jsonArray encodes v as a one-element JSON array, or [] when v is nil.
func jsonArray[T any](v *T) ([]byte, error) {
	if v == nil {
		return []byte("[]"), nil
	}
	raw, err := json.Marshal([]T{*v})
	if err != nil {
		return nil, fmt.Errorf("encode entry: %w", err)
	}
	return raw, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullBytes(b []byte) interface{} {
	if b == nil {
		return nil
	}
	return b
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
