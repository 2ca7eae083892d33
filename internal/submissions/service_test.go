package submissions

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	stderrors "admissions-forms/internal/common/errors"
	"admissions-forms/internal/common/logger"
	"admissions-forms/internal/events"
	"admissions-forms/internal/models"
	"admissions-forms/internal/notify"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

// memRepo serializes intake behind one mutex, standing in for the form row
// lock.
type memRepo struct {
	mu          sync.Mutex
	intake      sync.Mutex
	forms       map[string]*models.FormDefinition
	submissions map[string]*models.Submission
	emails      []models.EmailLogEntry
	failWrites  error
}

func newMemRepo() *memRepo {
	return &memRepo{forms: map[string]*models.FormDefinition{}, submissions: map[string]*models.Submission{}}
}

func (r *memRepo) addForm(f *models.FormDefinition) *models.FormDefinition {
	if f.ID == "" {
		f.ID = models.NewID()
	}
	if f.Slug == "" {
		f.Slug = strings.ToLower(strings.ReplaceAll(f.Name, " ", "-"))
	}
	r.forms[f.ID] = f
	return f
}

func (r *memRepo) WithIntake(_ context.Context, fn func(tx IntakeTx) error) error {
	r.intake.Lock()
	defer r.intake.Unlock()
	tx := &memTx{repo: r}
	if err := fn(tx); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range tx.inserted {
		r.submissions[s.ID] = s
	}
	for _, id := range tx.incremented {
		r.forms[id].Submissions++
	}
	return nil
}

type memTx struct {
	repo        *memRepo
	inserted    []*models.Submission
	incremented []string
}

func (t *memTx) LockForm(_ context.Context, formID string) (*models.FormDefinition, error) {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	f, ok := t.repo.forms[formID]
	if !ok {
		return nil, ErrFormNotFound
	}
	cp := *f
	return &cp, nil
}

func (t *memTx) EmailExists(_ context.Context, formID, email string) (bool, error) {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	for _, s := range t.repo.submissions {
		if s.ApplicationForm.ID == formID && s.StudentInfo.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) Insert(_ context.Context, s *models.Submission) error {
	if t.repo.failWrites != nil {
		return t.repo.failWrites
	}
	cp := *s
	t.inserted = append(t.inserted, &cp)
	return nil
}

func (t *memTx) IncrementSubmissions(_ context.Context, formID string, _ time.Time) error {
	t.incremented = append(t.incremented, formID)
	return nil
}

func (r *memRepo) get(id string) (*models.Submission, error) {
	s, ok := r.submissions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

func (r *memRepo) FindByID(_ context.Context, id string) (*models.Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, err := r.get(id)
	if err != nil {
		return nil, err
	}
	cp := *s
	if f, ok := r.forms[s.ApplicationForm.ID]; ok {
		cp.ApplicationForm.Name = f.Name
	}
	return &cp, nil
}

func (r *memRepo) FindLatest(_ context.Context, email, formID string) (*models.Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *models.Submission
	for _, s := range r.submissions {
		if s.StudentInfo.Email == email && s.ApplicationForm.ID == formID {
			if latest == nil || s.CreatedAt.After(latest.CreatedAt) {
				latest = s
			}
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	cp := *latest
	cp.ApplicationForm.Name = r.forms[formID].Name
	return &cp, nil
}

func (r *memRepo) List(_ context.Context, filter ListFilter, page models.Page) ([]*models.Submission, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Submission
	for _, s := range r.submissions {
		if s.IsArchived != filter.Archived {
			continue
		}
		if filter.Status != "" && s.Status != filter.Status {
			continue
		}
		if filter.FormID != "" && s.ApplicationForm.ID != filter.FormID {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	total := len(out)
	start := page.Offset()
	if start > total {
		start = total
	}
	end := start + page.Limit
	if end > total {
		end = total
	}
	return out[start:end], total, nil
}

func (r *memRepo) UpdateStatus(_ context.Context, id string, change models.StatusChange, note *models.ReviewNote) (models.Status, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, err := r.get(id)
	if err != nil {
		return "", err
	}
	change.PreviousStatus = s.Status
	s.StatusHistory = append(s.StatusHistory, change)
	s.Status = change.NewStatus
	if note != nil {
		s.ReviewNotes = append(s.ReviewNotes, *note)
	}
	return change.PreviousStatus, nil
}

func (r *memRepo) AddNote(_ context.Context, id string, note models.ReviewNote) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, err := r.get(id)
	if err != nil {
		return err
	}
	s.ReviewNotes = append(s.ReviewNotes, note)
	return nil
}

func (r *memRepo) Assign(_ context.Context, id, assignee string, note *models.ReviewNote, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, err := r.get(id)
	if err != nil {
		return err
	}
	s.AssignedTo = nil
	if assignee != "" {
		s.AssignedTo = &models.UserRef{ID: assignee}
	}
	if note != nil {
		s.ReviewNotes = append(s.ReviewNotes, *note)
	}
	return nil
}

func (r *memRepo) SetArchived(_ context.Context, id string, archived bool, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, err := r.get(id)
	if err != nil {
		return err
	}
	s.IsArchived = archived
	return nil
}

func (r *memRepo) LogEmail(_ context.Context, id string, entry models.EmailLogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, err := r.get(id)
	if err != nil {
		return err
	}
	s.Communication.EmailsSent = append(s.Communication.EmailsSent, entry)
	s.Communication.LastContactDate = &entry.SentAt
	r.emails = append(r.emails, entry)
	return nil
}

func (r *memRepo) Bulk(_ context.Context, ids []string, update BulkUpdate, _ time.Time) (BulkResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var res BulkResult
	for _, id := range ids {
		s, ok := r.submissions[id]
		if !ok {
			continue
		}
		res.MatchedCount++
		switch update.Action {
		case ActionUpdateStatus:
			change := update.Change
			change.PreviousStatus = s.Status
			s.StatusHistory = append(s.StatusHistory, change)
			s.Status = change.NewStatus
			res.ModifiedCount++
		case ActionArchive:
			if s.IsArchived != update.Archive {
				s.IsArchived = update.Archive
				res.ModifiedCount++
			}
		case ActionSetPriority:
			if s.Priority != update.Priority {
				s.Priority = update.Priority
				res.ModifiedCount++
			}
		case ActionAssign:
			if s.AssignedID() != update.AssignedTo {
				s.AssignedTo = &models.UserRef{ID: update.AssignedTo}
				res.ModifiedCount++
			}
		default:
			return BulkResult{}, ErrUnknownAction
		}
	}
	return res, nil
}

func (r *memRepo) Stats(_ context.Context, filter StatsFilter, _ time.Time) (*Stats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := &Stats{}
	for _, s := range r.submissions {
		if !s.IsArchived && (filter.FormID == "" || s.ApplicationForm.ID == filter.FormID) {
			stats.TotalApplications++
		}
	}
	return stats, nil
}

// fakeNotifier runs success callbacks inline so tests observe them.
type fakeNotifier struct {
	mu         sync.Mutex
	dispatched []notify.Message
	sent       []notify.Message
	fail       bool
	sendErr    error
	sms        bool
}

func (n *fakeNotifier) Dispatch(msg notify.Message, onSuccess func(ctx context.Context)) {
	n.mu.Lock()
	n.dispatched = append(n.dispatched, msg)
	fail := n.fail
	n.mu.Unlock()
	if !fail && onSuccess != nil {
		onSuccess(context.Background())
	}
}

func (n *fakeNotifier) Send(_ context.Context, msg notify.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.sendErr != nil {
		return n.sendErr
	}
	n.sent = append(n.sent, msg)
	return nil
}

func (n *fakeNotifier) Enabled(ch notify.Channel) bool {
	return ch == notify.ChannelEmail || n.sms
}

func (n *fakeNotifier) byKind(kind string) []notify.Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []notify.Message
	for _, m := range n.dispatched {
		if m.Kind == kind {
			out = append(out, m)
		}
	}
	return out
}

type fakePublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *fakePublisher) Publish(_ context.Context, e events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *fakePublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, string(e.Type))
	}
	return out
}

// drain returns the recorded events and forgets them.
func (p *fakePublisher) drain() []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.events
	p.events = nil
	return out
}

type fakeCache struct {
	mu    sync.Mutex
	slugs []string
}

func (c *fakeCache) Invalidate(_ context.Context, slug string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slugs = append(c.slugs, slug)
}

type fixture struct {
	repo      *memRepo
	notifier  *fakeNotifier
	publisher *fakePublisher
	cache     *fakeCache
	svc       *Service
	now       time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:      newMemRepo(),
		notifier:  &fakeNotifier{},
		publisher: &fakePublisher{},
		cache:     &fakeCache{},
		now:       time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	f.svc = NewService(f.repo, Deps{Notifier: f.notifier, Publisher: f.publisher, Forms: f.cache},
		Options{SMSPriorities: []models.Priority{models.PriorityHigh, models.PriorityUrgent}}, logger.NewTestLogger(t))
	f.svc.now = func() time.Time { return f.now }
	return f
}

func activeForm(name string) *models.FormDefinition {
	return &models.FormDefinition{
		Name:     name,
		IsActive: true,
		EmailNotifications: models.EmailNotifications{
			Enabled:     true,
			AdminEmails: []string{"admin@langzy.test"},
			AutoReplyTemplate: models.EmailTemplate{
				Subject: "Thanks {{fullName}}",
				Message: "We received your {{formName}} application at {{email}}.",
			},
		},
	}
}

func payloadFor(name, email string) map[string]interface{} {
	return map[string]interface{}{
		"studentInfo": map[string]interface{}{
			"fullName":    name,
			"email":       email,
			"phoneNumber": "+15550001111",
		},
	}
}

func (f *fixture) submit(t *testing.T, formID, name, email string) string {
	t.Helper()
	receipt, err := f.svc.Submit(context.Background(), formID, payloadFor(name, email), RequestMeta{})
	require.NoError(t, err)
	return receipt.ApplicationID
}

func codeOf(t *testing.T, err error) stderrors.ErrorCode {
	t.Helper()
	require.Error(t, err)
	var std *stderrors.StandardError
	require.True(t, errors.As(err, &std), "expected StandardError, got %T", err)
	return std.Code
}

func intPtr(v int) *int       { return &v }
func boolPtr(v bool) *bool    { return &v }
func strPtr(v string) *string { return &v }

// ==========================
// Submit Tests
// ==========================

func TestSubmitAccepts(t *testing.T) {
	f := newFixture(t)
	form := f.repo.addForm(activeForm("Spanish A1"))

	receipt, err := f.svc.Submit(context.Background(), form.ID, payloadFor("Ana Lopez", " Ana@Example.COM "), RequestMeta{IPAddress: "10.0.0.1"})
	require.NoError(t, err)
	assert.Equal(t, receiptMessage, receipt.Message)
	assert.True(t, models.IsID(receipt.ApplicationID))

	stored := f.repo.submissions[receipt.ApplicationID]
	require.NotNil(t, stored)
	assert.Equal(t, "ana@example.com", stored.StudentInfo.Email)
	assert.Equal(t, models.StatusPending, stored.Status)
	assert.Equal(t, models.PriorityMedium, stored.Priority)
	assert.Equal(t, models.SourceWebsite, stored.SubmissionSource)
	assert.Equal(t, "10.0.0.1", stored.IPAddress)
	assert.Equal(t, 1, f.repo.forms[form.ID].Submissions)

	welcome := f.notifier.byKind(string(models.EmailWelcome))
	require.Len(t, welcome, 1)
	assert.Equal(t, "Thanks Ana Lopez", welcome[0].Subject)
	assert.Equal(t, "We received your Spanish A1 application at ana@example.com.", welcome[0].Body)
	require.Len(t, stored.Communication.EmailsSent, 1)
	assert.Equal(t, models.EmailWelcome, stored.Communication.EmailsSent[0].Type)

	admin := f.notifier.byKind("admin-notice")
	require.Len(t, admin, 1)
	assert.Equal(t, "admin@langzy.test", admin[0].To)
	assert.Equal(t, "New Application Received: Spanish A1", admin[0].Subject)

	assert.Equal(t, []string{form.Slug}, f.cache.slugs)
	assert.Equal(t, []string{string(events.SubmissionReceived)}, f.publisher.types())
}

func TestSubmitFallsBackToFormData(t *testing.T) {
	f := newFixture(t)
	form := f.repo.addForm(activeForm("General Inquiry"))

	receipt, err := f.svc.Submit(context.Background(), form.ID, map[string]interface{}{
		"formData": map[string]interface{}{"name": "Lee", "email": "LEE@example.com", "phone": "123"},
	}, RequestMeta{Source: models.SourceMobileApp})
	require.NoError(t, err)

	stored := f.repo.submissions[receipt.ApplicationID]
	assert.Equal(t, "Lee", stored.StudentInfo.FullName)
	assert.Equal(t, "lee@example.com", stored.StudentInfo.Email)
	assert.Equal(t, "123", stored.StudentInfo.PhoneNumber)
	assert.Equal(t, models.SourceMobileApp, stored.SubmissionSource)
}

func TestSubmitGuards(t *testing.T) {
	past := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name  string
		setup func(f *fixture) string
		want  stderrors.ErrorCode
	}{
		{
			name:  "unknown form",
			setup: func(f *fixture) string { return models.NewID() },
			want:  stderrors.ErrCodeFormInactive,
		},
		{
			name:  "malformed form id",
			setup: func(f *fixture) string { return "nope" },
			want:  stderrors.ErrCodeFormInactive,
		},
		{
			name: "inactive form",
			setup: func(f *fixture) string {
				form := activeForm("Closed")
				form.IsActive = false
				return f.repo.addForm(form).ID
			},
			want: stderrors.ErrCodeFormInactive,
		},
		{
			name: "deadline passed",
			setup: func(f *fixture) string {
				form := activeForm("Late")
				form.Settings.SubmissionDeadline = &past
				return f.repo.addForm(form).ID
			},
			want: stderrors.ErrCodeDeadlinePassed,
		},
		{
			name: "capacity reached",
			setup: func(f *fixture) string {
				form := activeForm("Full")
				form.Settings.MaxCapacity = intPtr(2)
				form.Submissions = 2
				return f.repo.addForm(form).ID
			},
			want: stderrors.ErrCodeCapacityReached,
		},
		{
			name: "inactive wins over deadline and capacity",
			setup: func(f *fixture) string {
				form := activeForm("Everything")
				form.IsActive = false
				form.Settings.SubmissionDeadline = &past
				form.Settings.MaxCapacity = intPtr(0)
				return f.repo.addForm(form).ID
			},
			want: stderrors.ErrCodeFormInactive,
		},
		{
			name: "deadline wins over capacity",
			setup: func(f *fixture) string {
				form := activeForm("Both")
				form.Settings.SubmissionDeadline = &past
				form.Settings.MaxCapacity = intPtr(0)
				return f.repo.addForm(form).ID
			},
			want: stderrors.ErrCodeDeadlinePassed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			formID := tt.setup(f)
			_, err := f.svc.Submit(context.Background(), formID, payloadFor("A", "a@example.com"), RequestMeta{})
			assert.Equal(t, tt.want, codeOf(t, err))
			assert.Empty(t, f.repo.submissions)
			assert.Empty(t, f.notifier.dispatched)
			assert.Empty(t, f.publisher.types())
		})
	}
}

func TestSubmitValidation(t *testing.T) {
	f := newFixture(t)
	form := f.repo.addForm(activeForm("Spanish A1"))

	tests := []struct {
		name    string
		payload map[string]interface{}
		message string
	}{
		{"empty payload", map[string]interface{}{}, "Form data is required"},
		{"missing email", map[string]interface{}{"studentInfo": map[string]interface{}{"fullName": "A"}}, "Student email is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Submit(context.Background(), form.ID, tt.payload, RequestMeta{})
			assert.Equal(t, stderrors.ErrCodeValidationFailed, codeOf(t, err))
			assert.Contains(t, err.Error(), tt.message)
		})
	}

	_, err := f.svc.Submit(context.Background(), form.ID, payloadFor("A", "not-an-email"), RequestMeta{})
	assert.Equal(t, stderrors.ErrCodeValidationFailed, codeOf(t, err))
}

func TestSubmitLenientPayload(t *testing.T) {
	f := newFixture(t)
	form := f.repo.addForm(activeForm("IELTS Prep"))

	payload := payloadFor("Ana Lopez", "ana@example.com")
	payload["academicInfo"] = map[string]interface{}{
		"englishProficiency": map[string]interface{}{
			"level": "advanced",
			"testScores": []interface{}{
				map[string]interface{}{"testName": "IELTS", "score": 7.5, "testDate": "2024-11-02"},
				map[string]interface{}{"testName": "OTHER", "score": "B2"},
			},
		},
	}
	payload["documents"] = []interface{}{
		map[string]interface{}{"name": "passport.pdf", "type": "id-document", "url": "https://files.test/p.pdf", "uploadedAt": "2025-01-15"},
		map[string]interface{}{"name": "photo.jpg", "type": "photo", "url": "https://files.test/ph.jpg", "uploadedAt": "2025-01-16T09:30:00Z"},
	}

	receipt, err := f.svc.Submit(context.Background(), form.ID, payload, RequestMeta{})
	require.NoError(t, err)

	stored := f.repo.submissions[receipt.ApplicationID]
	require.NotNil(t, stored.AcademicInfo)
	scores := stored.AcademicInfo.EnglishProficiency.TestScores
	require.Len(t, scores, 2)
	assert.Equal(t, models.Score("7.5"), scores[0].Score)
	assert.Equal(t, models.Score("B2"), scores[1].Score)

	require.Len(t, stored.Documents, 2)
	assert.Equal(t, time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC), stored.Documents[0].UploadedAt)
	assert.Equal(t, time.Date(2025, 1, 16, 9, 30, 0, 0, time.UTC), stored.Documents[1].UploadedAt)
}

func TestSubmitPayloadTypeErrors(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(p map[string]interface{})
		wantField string
		wantMsg   string
	}{
		{
			name: "numeric zip code",
			mutate: func(p map[string]interface{}) {
				p["studentInfo"].(map[string]interface{})["address"] = map[string]interface{}{"zipCode": 12345}
			},
			wantField: "studentInfo.address.zipCode",
			wantMsg:   "studentInfo.address.zipCode must be a string",
		},
		{
			name: "unparseable upload date",
			mutate: func(p map[string]interface{}) {
				p["documents"] = []interface{}{map[string]interface{}{"name": "a", "url": "https://files.test/a", "uploadedAt": "last tuesday"}}
			},
			wantField: "documents.uploadedAt",
			wantMsg:   "documents.uploadedAt must be a date (YYYY-MM-DD or RFC 3339)",
		},
		{
			name: "boolean score",
			mutate: func(p map[string]interface{}) {
				p["academicInfo"] = map[string]interface{}{"englishProficiency": map[string]interface{}{
					"testScores": []interface{}{map[string]interface{}{"testName": "IELTS", "score": true}},
				}}
			},
			wantField: "academicInfo.englishProficiency.testScores.score",
			wantMsg:   "academicInfo.englishProficiency.testScores.score must be a number or a string",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			form := f.repo.addForm(activeForm("Spanish A1"))
			payload := payloadFor("Ana Lopez", "ana@example.com")
			tt.mutate(payload)

			_, err := f.svc.Submit(context.Background(), form.ID, payload, RequestMeta{})
			require.Equal(t, stderrors.ErrCodeValidationFailed, codeOf(t, err))

			var std *stderrors.StandardError
			require.True(t, errors.As(err, &std))
			assert.Equal(t, tt.wantMsg, std.Message)
			require.Len(t, std.Fields, 1)
			assert.Equal(t, tt.wantField, std.Fields[0].Field)
			assert.NotContains(t, err.Error(), "Go struct field")
			assert.Empty(t, f.repo.submissions)
		})
	}
}

func TestSubmitCapacityBoundary(t *testing.T) {
	f := newFixture(t)
	form := activeForm("Small Class")
	form.Settings.MaxCapacity = intPtr(2)
	form.Settings.AllowMultipleSubmissions = true
	form = f.repo.addForm(form)

	f.submit(t, form.ID, "One", "one@example.com")
	f.submit(t, form.ID, "Two", "two@example.com")

	_, err := f.svc.Submit(context.Background(), form.ID, payloadFor("Three", "three@example.com"), RequestMeta{})
	assert.Equal(t, stderrors.ErrCodeCapacityReached, codeOf(t, err))
	assert.Equal(t, 2, f.repo.forms[form.ID].Submissions)
	assert.Len(t, f.repo.submissions, 2)
}

func TestSubmitConcurrentCapacity(t *testing.T) {
	f := newFixture(t)
	form := activeForm("Race")
	form.Settings.MaxCapacity = intPtr(3)
	form = f.repo.addForm(form)

	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			email := string(rune('a'+i)) + "@example.com"
			if _, err := f.svc.Submit(context.Background(), form.ID, payloadFor("X", email), RequestMeta{}); err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 3, accepted)
	assert.Equal(t, 3, f.repo.forms[form.ID].Submissions)
}

func TestSubmitDuplicateEmail(t *testing.T) {
	f := newFixture(t)
	form := f.repo.addForm(activeForm("Spanish A1"))
	f.submit(t, form.ID, "Ana", "ana@example.com")

	_, err := f.svc.Submit(context.Background(), form.ID, payloadFor("Ana", "ANA@example.com"), RequestMeta{})
	assert.Equal(t, stderrors.ErrCodeDuplicateSubmission, codeOf(t, err))

	multi := activeForm("Open Day")
	multi.Settings.AllowMultipleSubmissions = true
	multi = f.repo.addForm(multi)
	f.submit(t, multi.ID, "Ana", "ana@example.com")
	f.submit(t, multi.ID, "Ana", "ana@example.com")
	assert.Equal(t, 2, f.repo.forms[multi.ID].Submissions)
}

func TestSubmitNotificationFailureDoesNotFail(t *testing.T) {
	f := newFixture(t)
	f.notifier.fail = true
	form := f.repo.addForm(activeForm("Spanish A1"))

	id := f.submit(t, form.ID, "Ana", "ana@example.com")
	assert.Empty(t, f.repo.submissions[id].Communication.EmailsSent)
}

func TestSubmitInsertFailure(t *testing.T) {
	f := newFixture(t)
	f.repo.failWrites = errors.New("disk full")
	form := f.repo.addForm(activeForm("Spanish A1"))

	_, err := f.svc.Submit(context.Background(), form.ID, payloadFor("Ana", "ana@example.com"), RequestMeta{})
	assert.Equal(t, stderrors.ErrCodeDatabaseInsertFailed, codeOf(t, err))
	assert.Equal(t, 0, f.repo.forms[form.ID].Submissions)
}

// ==========================
// Lifecycle Tests
// ==========================

func TestUpdateStatus(t *testing.T) {
	f := newFixture(t)
	form := f.repo.addForm(activeForm("Spanish A1"))
	id := f.submit(t, form.ID, "Ana", "ana@example.com")
	actor := Actor{ID: models.NewID(), Email: "staff@langzy.test"}

	sub, err := f.svc.UpdateStatus(context.Background(), id, actor, StatusInput{Status: "approved", Reason: "Strong profile", Notes: "fast track"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, sub.Status)
	require.Len(t, sub.StatusHistory, 1)
	h := sub.StatusHistory[0]
	assert.Equal(t, models.StatusPending, h.PreviousStatus)
	assert.Equal(t, models.StatusApproved, h.NewStatus)
	assert.Equal(t, "Strong profile", h.Reason)
	assert.Equal(t, actor.ID, h.ChangedBy)
	require.Len(t, sub.ReviewNotes, 1)
	assert.True(t, sub.ReviewNotes[0].IsInternal)

	approval := f.notifier.byKind(string(models.EmailApproval))
	require.Len(t, approval, 1)
	assert.Equal(t, "Application Approved - Spanish A1", approval[0].Subject)
	assert.Contains(t, approval[0].Body, "Strong profile")

	stored := f.repo.submissions[id]
	last := stored.Communication.EmailsSent[len(stored.Communication.EmailsSent)-1]
	assert.Equal(t, models.EmailApproval, last.Type)
	assert.Equal(t, actor.ID, last.SentBy)

	types := f.publisher.types()
	assert.Equal(t, string(events.StatusChanged), types[len(types)-1])
	assert.Equal(t, models.StatusPending, f.publisher.events[len(types)-1].PreviousStatus)

	// Same status again still appends history.
	sub, err = f.svc.UpdateStatus(context.Background(), id, actor, StatusInput{Status: "approved", SendEmail: boolPtr(false)})
	require.NoError(t, err)
	require.Len(t, sub.StatusHistory, 2)
	assert.Equal(t, models.StatusApproved, sub.StatusHistory[1].PreviousStatus)
	assert.Len(t, f.notifier.byKind(string(models.EmailApproval)), 1)
}

func TestUpdateStatusErrors(t *testing.T) {
	f := newFixture(t)
	form := f.repo.addForm(activeForm("Spanish A1"))
	id := f.submit(t, form.ID, "Ana", "ana@example.com")

	tests := []struct {
		name string
		id   string
		in   StatusInput
		want stderrors.ErrorCode
	}{
		{"missing status", id, StatusInput{}, stderrors.ErrCodeValidationFailed},
		{"bad status", id, StatusInput{Status: "done"}, stderrors.ErrCodeValidationFailed},
		{"reason too long", id, StatusInput{Status: "approved", Reason: strings.Repeat("x", 1001)}, stderrors.ErrCodeValidationFailed},
		{"bad id", "xyz", StatusInput{Status: "approved"}, stderrors.ErrCodeInvalidID},
		{"unknown id", models.NewID(), StatusInput{Status: "approved"}, stderrors.ErrCodeSubmissionNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.UpdateStatus(context.Background(), tt.id, Actor{}, tt.in)
			assert.Equal(t, tt.want, codeOf(t, err))
		})
	}
}

func TestUpdateStatusSMS(t *testing.T) {
	f := newFixture(t)
	f.notifier.sms = true
	form := f.repo.addForm(activeForm("Spanish A1"))
	low := f.submit(t, form.ID, "Low", "low@example.com")
	high := f.submit(t, form.ID, "High", "high@example.com")
	f.repo.submissions[high].Priority = models.PriorityHigh

	_, err := f.svc.UpdateStatus(context.Background(), low, Actor{}, StatusInput{Status: "rejected"})
	require.NoError(t, err)
	assert.Empty(t, f.notifier.byKind("status-sms"))

	_, err = f.svc.UpdateStatus(context.Background(), high, Actor{}, StatusInput{Status: "waitlisted"})
	require.NoError(t, err)
	sms := f.notifier.byKind("status-sms")
	require.Len(t, sms, 1)
	assert.Equal(t, notify.ChannelSMS, sms[0].Channel)
	assert.Equal(t, "+15550001111", sms[0].To)
}

func TestAddNote(t *testing.T) {
	f := newFixture(t)
	form := f.repo.addForm(activeForm("Spanish A1"))
	id := f.submit(t, form.ID, "Ana", "ana@example.com")
	actor := Actor{ID: models.NewID()}

	notes, err := f.svc.AddNote(context.Background(), id, actor, NoteInput{Note: "called"})
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.True(t, notes[0].IsInternal)
	assert.Equal(t, actor.ID, notes[0].AddedBy)

	notes, err = f.svc.AddNote(context.Background(), id, actor, NoteInput{Note: "visible", IsInternal: boolPtr(false)})
	require.NoError(t, err)
	require.Len(t, notes, 2)
	assert.False(t, notes[1].IsInternal)

	_, err = f.svc.AddNote(context.Background(), id, actor, NoteInput{Note: "  "})
	assert.Equal(t, stderrors.ErrCodeValidationFailed, codeOf(t, err))
	_, err = f.svc.AddNote(context.Background(), models.NewID(), actor, NoteInput{Note: "x"})
	assert.Equal(t, stderrors.ErrCodeSubmissionNotFound, codeOf(t, err))
}

func TestAssign(t *testing.T) {
	f := newFixture(t)
	form := f.repo.addForm(activeForm("Spanish A1"))
	id := f.submit(t, form.ID, "Ana", "ana@example.com")
	staff := models.NewID()

	tests := []struct {
		name      string
		in        AssignInput
		wantID    string
		wantNotes int
	}{
		{"assign without note", AssignInput{AssignedTo: strPtr(staff)}, staff, 0},
		{"assign with note", AssignInput{AssignedTo: strPtr(staff), Notes: "yours"}, staff, 1},
		{"clear ignores note", AssignInput{Notes: "ignored"}, "", 1},
		{"empty string clears", AssignInput{AssignedTo: strPtr("")}, "", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub, err := f.svc.Assign(context.Background(), id, Actor{ID: "a"}, tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, sub.AssignedID())
			assert.Len(t, sub.ReviewNotes, tt.wantNotes)
		})
	}

	_, err := f.svc.Assign(context.Background(), id, Actor{}, AssignInput{AssignedTo: strPtr("bob")})
	assert.Equal(t, stderrors.ErrCodeInvalidID, codeOf(t, err))
}

func TestSendCustomEmail(t *testing.T) {
	f := newFixture(t)
	form := f.repo.addForm(activeForm("Spanish A1"))
	id := f.submit(t, form.ID, "Ana", "ana@example.com")
	actor := Actor{ID: models.NewID(), Email: "staff@langzy.test"}
	before := len(f.repo.submissions[id].Communication.EmailsSent)

	res, err := f.svc.SendCustomEmail(context.Background(), id, actor, EmailInput{Subject: "Hello", Message: "Bring your passport", CopyToAdmin: true})
	require.NoError(t, err)
	assert.True(t, res.Delivered)
	assert.True(t, res.CopiedAdmin)
	require.Len(t, f.notifier.sent, 2)
	assert.Equal(t, "ana@example.com", f.notifier.sent[0].To)
	assert.Equal(t, "staff@langzy.test", f.notifier.sent[1].To)
	assert.Equal(t, "Copy: Hello", f.notifier.sent[1].Subject)

	log := f.repo.submissions[id].Communication.EmailsSent
	require.Len(t, log, before+1)
	assert.Equal(t, models.EmailCustom, log[before].Type)
	assert.Equal(t, actor.ID, log[before].SentBy)

	f.notifier.sendErr = notify.ErrSendFailed
	res, err = f.svc.SendCustomEmail(context.Background(), id, actor, EmailInput{Subject: "Again", Message: "x"})
	require.NoError(t, err)
	assert.False(t, res.Delivered)
	assert.Len(t, f.repo.submissions[id].Communication.EmailsSent, before+1)

	_, err = f.svc.SendCustomEmail(context.Background(), id, actor, EmailInput{Subject: "only subject"})
	assert.Equal(t, stderrors.ErrCodeValidationFailed, codeOf(t, err))
}

func TestSendCustomEmail_AdminCopyDisabled(t *testing.T) {
	f := newFixture(t)
	f.svc.opts.DisableAdminCopy = true
	form := f.repo.addForm(activeForm("Spanish A1"))
	id := f.submit(t, form.ID, "Ana", "ana@example.com")

	res, err := f.svc.SendCustomEmail(context.Background(), id, Actor{ID: models.NewID(), Email: "staff@langzy.test"},
		EmailInput{Subject: "Hello", Message: "Bring your passport", CopyToAdmin: true})
	require.NoError(t, err)
	assert.True(t, res.Delivered)
	assert.False(t, res.CopiedAdmin)
	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, "ana@example.com", f.notifier.sent[0].To)
}

func TestToggleArchive(t *testing.T) {
	f := newFixture(t)
	form := f.repo.addForm(activeForm("Spanish A1"))
	id := f.submit(t, form.ID, "Ana", "ana@example.com")

	for i := 0; i < 2; i++ {
		sub, err := f.svc.ToggleArchive(context.Background(), id, Actor{}, ArchiveInput{})
		require.NoError(t, err)
		assert.True(t, sub.IsArchived)
		assert.Equal(t, models.StatusPending, sub.Status)
	}

	sub, err := f.svc.ToggleArchive(context.Background(), id, Actor{ID: "staff"}, ArchiveInput{Archive: boolPtr(false)})
	require.NoError(t, err)
	assert.False(t, sub.IsArchived)

	published := f.publisher.drain()
	require.Len(t, published, 4)
	assert.Equal(t, events.SubmissionArchived, published[1].Type)
	assert.Equal(t, events.SubmissionArchived, published[2].Type)
	assert.Equal(t, events.SubmissionRestored, published[3].Type)
	assert.False(t, published[3].Submission.IsArchived)
	assert.Equal(t, "staff", published[3].ActorID)

	_, err = f.svc.ToggleArchive(context.Background(), models.NewID(), Actor{}, ArchiveInput{})
	assert.Equal(t, stderrors.ErrCodeSubmissionNotFound, codeOf(t, err))
}

// ==========================
// Bulk Tests
// ==========================

func TestServiceBulk(t *testing.T) {
	f := newFixture(t)
	form := activeForm("Spanish A1")
	form.Settings.AllowMultipleSubmissions = true
	form = f.repo.addForm(form)
	a := f.submit(t, form.ID, "A", "a@example.com")
	b := f.submit(t, form.ID, "B", "b@example.com")
	missing := models.NewID()
	f.publisher.drain()

	res, err := f.svc.Bulk(context.Background(), Actor{ID: "staff"}, BulkInput{
		Action:         ActionUpdateStatus,
		ApplicationIDs: []string{a, b, missing},
		Data:           BulkData{Status: "under-review"},
	})
	require.NoError(t, err)
	assert.Equal(t, BulkResult{MatchedCount: 2, ModifiedCount: 2}, *res)
	for _, id := range []string{a, b} {
		hist := f.repo.submissions[id].StatusHistory
		require.Len(t, hist, 1)
		assert.Equal(t, bulkReason, hist[0].Reason)
		assert.Equal(t, models.StatusPending, hist[0].PreviousStatus)
	}
	published := f.publisher.drain()
	require.Len(t, published, 2)
	for i, id := range []string{a, b} {
		assert.Equal(t, events.StatusChanged, published[i].Type)
		assert.Equal(t, id, published[i].Submission.ID)
		assert.Equal(t, models.StatusPending, published[i].PreviousStatus)
		assert.Equal(t, models.StatusUnderReview, published[i].Submission.Status)
		assert.Equal(t, "staff", published[i].ActorID)
	}

	f.repo.submissions[a].Priority = models.PriorityHigh
	res, err = f.svc.Bulk(context.Background(), Actor{}, BulkInput{
		Action:         ActionSetPriority,
		ApplicationIDs: []string{a, b},
		Data:           BulkData{Priority: "high"},
	})
	require.NoError(t, err)
	assert.Equal(t, BulkResult{MatchedCount: 2, ModifiedCount: 1}, *res)
	published = f.publisher.drain()
	require.Len(t, published, 1)
	assert.Equal(t, events.PriorityChanged, published[0].Type)
	assert.Equal(t, b, published[0].Submission.ID)

	staff := models.NewID()
	res, err = f.svc.Bulk(context.Background(), Actor{}, BulkInput{
		Action:         ActionAssign,
		ApplicationIDs: []string{a, a},
		Data:           BulkData{AssignedTo: &staff},
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.ModifiedCount)
	published = f.publisher.drain()
	require.Len(t, published, 1)
	assert.Equal(t, events.SubmissionAssigned, published[0].Type)
	assert.Equal(t, staff, published[0].Submission.AssignedID())

	res, err = f.svc.Bulk(context.Background(), Actor{}, BulkInput{Action: ActionArchive, ApplicationIDs: []string{a}})
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.ModifiedCount)
	assert.True(t, f.repo.submissions[a].IsArchived)

	res, err = f.svc.Bulk(context.Background(), Actor{}, BulkInput{Action: ActionArchive, ApplicationIDs: []string{a, b}, Data: BulkData{Archive: boolPtr(false)}})
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.ModifiedCount)
	assert.Equal(t, []string{string(events.SubmissionArchived), string(events.SubmissionRestored)}, f.publisher.types())

	res, err = f.svc.Bulk(context.Background(), Actor{}, BulkInput{Action: ActionArchive, ApplicationIDs: []string{}})
	require.NoError(t, err)
	assert.Equal(t, BulkResult{}, *res)
}

func TestBulkValidation(t *testing.T) {
	f := newFixture(t)
	id := models.NewID()
	tests := []struct {
		name    string
		in      BulkInput
		want    stderrors.ErrorCode
		message string
	}{
		{"no action", BulkInput{ApplicationIDs: []string{id}}, stderrors.ErrCodeValidationFailed, "Action and application IDs are required"},
		{"no ids", BulkInput{Action: ActionArchive}, stderrors.ErrCodeValidationFailed, "Action and application IDs are required"},
		{"unknown action", BulkInput{Action: "delete", ApplicationIDs: []string{id}}, stderrors.ErrCodeValidationFailed, "Invalid bulk action"},
		{"status missing", BulkInput{Action: ActionUpdateStatus, ApplicationIDs: []string{id}}, stderrors.ErrCodeValidationFailed, "Status is required for bulk status update"},
		{"priority missing", BulkInput{Action: ActionSetPriority, ApplicationIDs: []string{id}}, stderrors.ErrCodeValidationFailed, "Priority is required for bulk priority update"},
		{"bad id", BulkInput{Action: ActionArchive, ApplicationIDs: []string{"x"}}, stderrors.ErrCodeInvalidID, "Invalid application ID"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Bulk(context.Background(), Actor{}, tt.in)
			assert.Equal(t, tt.want, codeOf(t, err))
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

// ==========================
// Read Tests
// ==========================

func TestListAndPagination(t *testing.T) {
	f := newFixture(t)
	form := activeForm("Spanish A1")
	form.Settings.AllowMultipleSubmissions = true
	form = f.repo.addForm(form)
	for i := 0; i < 5; i++ {
		f.now = f.now.Add(time.Minute)
		f.submit(t, form.ID, "A", "a@example.com")
	}

	items, p, err := f.svc.List(context.Background(), ListQuery{Page: 2, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, items, 2)
	assert.Equal(t, models.Pagination{CurrentPage: 2, TotalPages: 3, TotalItems: 5, HasNext: true, HasPrev: true}, p)

	_, _, err = f.svc.List(context.Background(), ListQuery{Status: "bogus"})
	assert.Equal(t, stderrors.ErrCodeValidationFailed, codeOf(t, err))
	_, _, err = f.svc.List(context.Background(), ListQuery{FormID: "bad"})
	assert.Equal(t, stderrors.ErrCodeInvalidID, codeOf(t, err))
	_, _, err = f.svc.List(context.Background(), ListQuery{DateFrom: "yesterday"})
	assert.Equal(t, stderrors.ErrCodeValidationFailed, codeOf(t, err))

	items, _, err = f.svc.List(context.Background(), ListQuery{Archived: "true"})
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		raw  string
		want time.Time
	}{
		{"2025-01-02", time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)},
		{"2025-01-02T10:30:00+02:00", time.Date(2025, 1, 2, 8, 30, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, err := parseDate("dateFrom", tt.raw)
		require.NoError(t, err)
		assert.True(t, tt.want.Equal(*got), tt.raw)
	}
	got, err := parseDate("dateFrom", "")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestPublicStatus(t *testing.T) {
	f := newFixture(t)
	form := activeForm("Spanish A1")
	form.Settings.AllowMultipleSubmissions = true
	form = f.repo.addForm(form)
	f.submit(t, form.ID, "Ana", "ana@example.com")
	f.now = f.now.Add(time.Hour)
	latest := f.submit(t, form.ID, "Ana", "ana@example.com")

	_, err := f.svc.AddNote(context.Background(), latest, Actor{}, NoteInput{Note: "hidden"})
	require.NoError(t, err)
	_, err = f.svc.AddNote(context.Background(), latest, Actor{}, NoteInput{Note: "bring ID", IsInternal: boolPtr(false)})
	require.NoError(t, err)
	_, err = f.svc.UpdateStatus(context.Background(), latest, Actor{}, StatusInput{Status: "under-review"})
	require.NoError(t, err)

	st, err := f.svc.PublicStatus(context.Background(), "ANA@example.com", form.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusUnderReview, st.Status)
	assert.Equal(t, "Spanish A1", st.FormName)
	assert.True(t, f.now.Equal(st.SubmittedAt))
	require.Len(t, st.PublicNotes, 1)
	assert.Equal(t, "bring ID", st.PublicNotes[0].Note)
	assert.NotNil(t, st.LastContact)

	_, err = f.svc.PublicStatus(context.Background(), "", form.ID)
	assert.Equal(t, stderrors.ErrCodeValidationFailed, codeOf(t, err))
	_, err = f.svc.PublicStatus(context.Background(), "nobody@example.com", form.ID)
	assert.Equal(t, stderrors.ErrCodeSubmissionNotFound, codeOf(t, err))
}

func TestStats(t *testing.T) {
	f := newFixture(t)
	form := f.repo.addForm(activeForm("Spanish A1"))
	f.submit(t, form.ID, "Ana", "ana@example.com")

	stats, err := f.svc.Stats(context.Background(), StatsQuery{FormID: form.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalApplications)

	_, err = f.svc.Stats(context.Background(), StatsQuery{DateTo: "31/12/2025"})
	assert.Equal(t, stderrors.ErrCodeValidationFailed, codeOf(t, err))
}

func TestSearchWithoutIndex(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.svc.Search(context.Background(), "ana", 1, 10)
	assert.Equal(t, stderrors.ErrCodeExternalService, codeOf(t, err))

	_, _, err = f.svc.Search(context.Background(), " ", 1, 10)
	assert.Equal(t, stderrors.ErrCodeValidationFailed, codeOf(t, err))
}
