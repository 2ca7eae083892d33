package forms

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"admissions-forms/internal/common/database"
	"admissions-forms/internal/models"
)

// ListFilter narrows a form listing. Zero values mean "no filter".
type ListFilter struct {
	Category    models.FormCategory
	IsActive    *bool
	LanguageID  string
	GeneralOnly bool
	Search      string
}

// Repository is the persistence port of the form service.
type Repository interface {
	Insert(ctx context.Context, f *models.FormDefinition) error
	FindByID(ctx context.Context, id string) (*models.FormDefinition, error)
	FindBySlug(ctx context.Context, slug string) (*models.FormDefinition, error)
	List(ctx context.Context, filter ListFilter, page models.Page) ([]*models.FormDefinition, int, error)
	Update(ctx context.Context, f *models.FormDefinition) error
	SetActive(ctx context.Context, id string, active bool, actorID string, at time.Time) error
	Delete(ctx context.Context, id string) error
	CountSubmissions(ctx context.Context, formID string) (int, error)
	Languages(ctx context.Context) ([]models.Language, error)
}

const (
	slugConstraint = "application_forms_slug_key"
	nameConstraint = "application_forms_lower_name_key"
)

// sortColumns whitelists the sortBy values accepted from clients.
var sortColumns = map[string]string{
	"createdAt":   "f.created_at",
	"updatedAt":   "f.updated_at",
	"name":        "f.name",
	"category":    "f.category",
	"submissions": "f.submissions",
	"isActive":    "f.is_active",
}

const selectForm = `
	SELECT f.id, f.name, f.slug, f.description, f.category,
	       f.fields, f.settings, f.email_notifications,
	       f.is_active, f.submissions, f.created_at, f.updated_at,
	       l.id, l.name, l.code, l.flag,
	       cu.id, cu.name, cu.email, f.created_by,
	       uu.id, uu.name, uu.email, f.updated_by
	FROM application_forms f
	LEFT JOIN languages l ON l.id = f.language_id
	LEFT JOIN users cu ON cu.id = f.created_by
	LEFT JOIN users uu ON uu.id = f.updated_by`

// PostgresRepository stores forms in the application_forms table.
type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Insert(ctx context.Context, f *models.FormDefinition) error {
	fields, settings, notifications, err := marshalForm(f)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO application_forms (
			id, name, slug, description, category, language_id,
			fields, settings, email_notifications,
			is_active, submissions, created_by, updated_by, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		f.ID, f.Name, f.Slug, f.Description, string(f.Category), nullString(f.LanguageID()),
		fields, settings, notifications,
		f.IsActive, f.Submissions, nullString(refID(f.CreatedBy)), nullString(refID(f.UpdatedBy)),
		f.CreatedAt, f.UpdatedAt,
	)
	return mapWriteError(err)
}

func (r *PostgresRepository) FindByID(ctx context.Context, id string) (*models.FormDefinition, error) {
	return scanForm(r.db.QueryRowContext(ctx, selectForm+` WHERE f.id = $1`, id))
}

func (r *PostgresRepository) FindBySlug(ctx context.Context, slug string) (*models.FormDefinition, error) {
	return scanForm(r.db.QueryRowContext(ctx, selectForm+` WHERE f.slug = $1`, slug))
}

// List returns the requested page and the total match count. A zero
// page.Limit returns every match.
func (r *PostgresRepository) List(ctx context.Context, filter ListFilter, page models.Page) ([]*models.FormDefinition, int, error) {
	var where database.Where
	if filter.Category != "" {
		where.Add("f.category = ?", string(filter.Category))
	}
	if filter.IsActive != nil {
		where.Add("f.is_active = ?", *filter.IsActive)
	}
	if filter.GeneralOnly {
		where.Add("f.language_id IS NULL")
	} else if filter.LanguageID != "" {
		where.Add("f.language_id = ?", filter.LanguageID)
	}
	if filter.Search != "" {
		like := database.Like(filter.Search)
		where.Add("(f.name ILIKE ? OR f.description ILIKE ?)", like, like)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM application_forms f`+where.SQL(), where.Args()...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count forms: %w", err)
	}

	column, ok := sortColumns[page.SortBy]
	if !ok {
		column = sortColumns["createdAt"]
	}
	direction := "DESC"
	if !page.Descending() {
		direction = "ASC"
	}

	query := selectForm + where.SQL() + fmt.Sprintf(" ORDER BY %s %s, f.id %s", column, direction, direction)
	if page.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %s OFFSET %s", where.Next(page.Limit), where.Next(page.Offset()))
	}

	rows, err := r.db.QueryContext(ctx, query, where.Args()...)
	if err != nil {
		return nil, 0, fmt.Errorf("list forms: %w", err)
	}
	defer rows.Close()

	items := []*models.FormDefinition{}
	for rows.Next() {
		f, err := scanForm(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, f)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list forms: %w", err)
	}
	return items, total, nil
}

// Update rewrites every mutable column. slug, submissions and the creator
// are left alone.
func (r *PostgresRepository) Update(ctx context.Context, f *models.FormDefinition) error {
	fields, settings, notifications, err := marshalForm(f)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE application_forms
		SET name = $2, description = $3, category = $4, language_id = $5,
		    fields = $6, settings = $7, email_notifications = $8,
		    is_active = $9, updated_by = $10, updated_at = $11
		WHERE id = $1`,
		f.ID, f.Name, f.Description, string(f.Category), nullString(f.LanguageID()),
		fields, settings, notifications,
		f.IsActive, nullString(refID(f.UpdatedBy)), f.UpdatedAt,
	)
	if err != nil {
		return mapWriteError(err)
	}
	return requireRow(res)
}

func (r *PostgresRepository) SetActive(ctx context.Context, id string, active bool, actorID string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE application_forms SET is_active = $2, updated_by = $3, updated_at = $4 WHERE id = $1`,
		id, active, nullString(actorID), at)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM application_forms WHERE id = $1`, id)
	if err != nil {
		if _, ok := database.ForeignKeyViolation(err); ok {
			return ErrHasSubmissions
		}
		return err
	}
	return requireRow(res)
}

func (r *PostgresRepository) CountSubmissions(ctx context.Context, formID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM student_applications WHERE form_id = $1`, formID).Scan(&n)
	return n, err
}

func (r *PostgresRepository) Languages(ctx context.Context) ([]models.Language, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, code, flag FROM languages WHERE is_active = TRUE ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	langs := []models.Language{}
	for rows.Next() {
		l := models.Language{IsActive: true}
		if err := rows.Scan(&l.ID, &l.Name, &l.Code, &l.Flag); err != nil {
			return nil, err
		}
		l.ID = strings.TrimSpace(l.ID)
		langs = append(langs, l)
	}
	return langs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanForm(row rowScanner) (*models.FormDefinition, error) {
	var (
		f                              models.FormDefinition
		category                       string
		fields, settings, notification []byte
		langID, langName               sql.NullString
		langCode, langFlag             sql.NullString
		creatorID, creatorName         sql.NullString
		creatorEmail, createdBy        sql.NullString
		updaterID, updaterName         sql.NullString
		updaterEmail, updatedBy        sql.NullString
	)
	err := row.Scan(
		&f.ID, &f.Name, &f.Slug, &f.Description, &category,
		&fields, &settings, &notification,
		&f.IsActive, &f.Submissions, &f.CreatedAt, &f.UpdatedAt,
		&langID, &langName, &langCode, &langFlag,
		&creatorID, &creatorName, &creatorEmail, &createdBy,
		&updaterID, &updaterName, &updaterEmail, &updatedBy,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan form: %w", err)
	}

	f.ID = strings.TrimSpace(f.ID)
	f.Category = models.FormCategory(category)
	if err := json.Unmarshal(fields, &f.Fields); err != nil {
		return nil, fmt.Errorf("decode fields: %w", err)
	}
	if err := json.Unmarshal(settings, &f.Settings); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	if err := json.Unmarshal(notification, &f.EmailNotifications); err != nil {
		return nil, fmt.Errorf("decode email notifications: %w", err)
	}
	if langID.Valid {
		f.Language = &models.LanguageRef{
			ID:   strings.TrimSpace(langID.String),
			Name: langName.String,
			Code: langCode.String,
			Flag: langFlag.String,
		}
	}
	f.CreatedBy = userFromColumns(createdBy, creatorName, creatorEmail)
	f.UpdatedBy = userFromColumns(updatedBy, updaterName, updaterEmail)
	f.Decorate()
	return &f, nil
}

// userFromColumns keeps the stored id even when the users table has no
// matching row.
func userFromColumns(id, name, email sql.NullString) *models.UserRef {
	if !id.Valid || strings.TrimSpace(id.String) == "" {
		return nil
	}
	return &models.UserRef{ID: strings.TrimSpace(id.String), Name: name.String, Email: email.String}
}

func marshalForm(f *models.FormDefinition) (fields, settings, notifications []byte, err error) {
	if fields, err = json.Marshal(f.Fields); err != nil {
		return nil, nil, nil, fmt.Errorf("encode fields: %w", err)
	}
	if settings, err = json.Marshal(f.Settings); err != nil {
		return nil, nil, nil, fmt.Errorf("encode settings: %w", err)
	}
	if notifications, err = json.Marshal(f.EmailNotifications); err != nil {
		return nil, nil, nil, fmt.Errorf("encode email notifications: %w", err)
	}
	return fields, settings, notifications, nil
}

func mapWriteError(err error) error {
	if err == nil {
		return nil
	}
	if constraint, ok := database.UniqueViolation(err); ok {
		switch constraint {
		case slugConstraint:
			return ErrSlugTaken
		case nameConstraint:
			return ErrNameTaken
		}
	}
	if _, ok := database.ForeignKeyViolation(err); ok {
		return ErrUnknownLanguage
	}
	return err
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

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func refID(u *models.UserRef) string {
	if u == nil {
		return ""
	}
	return u.ID
}
