// Package storetest provides in-memory implementations of the stores the
// attempt lifecycle depends on. They keep the same conditional-transition
// semantics as the Postgres repositories and are meant for tests.
package storetest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/stemsi/cbt-backend/internal/anticheat"
	"github.com/stemsi/cbt-backend/internal/events"
	"github.com/stemsi/cbt-backend/internal/model"
	"github.com/stemsi/cbt-backend/internal/repository"
)

type key struct{ exam, user int64 }

// ─── Catalog ────────────────────────────────────────────────────────────────

// Catalog holds exams and their questions.
type Catalog struct {
	mu        sync.RWMutex
	exams     map[int64]*model.ExamDetail
	questions map[int64][]model.Question
}

func NewCatalog() *Catalog {
	return &Catalog{
		exams:     map[int64]*model.ExamDetail{},
		questions: map[int64][]model.Question{},
	}
}

// Put stores exam with questions, replacing any previous definition.
func (c *Catalog) Put(exam model.Exam, questions ...model.Question) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.exams[exam.ID] = &model.ExamDetail{Exam: exam}
	c.questions[exam.ID] = questions
}

// Update edits a stored exam in place.
func (c *Catalog) Update(examID int64, fn func(*model.Exam)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.exams[examID]; ok {
		fn(&e.Exam)
	}
}

func (c *Catalog) GetDetail(_ context.Context, examID int64) (*model.ExamDetail, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.exams[examID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (c *Catalog) Questions(_ context.Context, examID int64) ([]model.Question, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]model.Question(nil), c.questions[examID]...), nil
}

// Paper renders questions in stored order.
func (c *Catalog) Paper(_ context.Context, exam *model.Exam) (*model.ExamPaper, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return model.NewExamPaper(exam, c.questions[exam.ID]), nil
}

func (c *Catalog) CountQuestions(_ context.Context, examID int64) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.questions[examID]), nil
}

// ─── Attempts ───────────────────────────────────────────────────────────────

// Attempts is an attempt store keyed by (exam, user).
type Attempts struct {
	mu     sync.Mutex
	nextID int64
	rows   map[key]*model.Attempt
	users  map[int64]model.User
}

func NewAttempts() *Attempts {
	return &Attempts{rows: map[key]*model.Attempt{}, users: map[int64]model.User{}}
}

// AddUser registers the user shown on attempt listings.
func (m *Attempts) AddUser(u model.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
}

func clone(a *model.Attempt) *model.Attempt {
	cp := *a
	cp.Choices = make(model.AttemptChoices, len(a.Choices))
	for k, v := range a.Choices {
		cp.Choices[k] = v
	}
	return &cp
}

func (m *Attempts) Upsert(_ context.Context, examID, userID int64) (*model.Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key{examID, userID}
	if a, ok := m.rows[k]; ok {
		return clone(a), nil
	}
	m.nextID++
	a := &model.Attempt{
		ID:          m.nextID,
		ExamID:      examID,
		UserID:      userID,
		Status:      model.AttemptNotStarted,
		TimeCreated: time.Now(),
		Choices:     model.AttemptChoices{},
	}
	m.rows[k] = a
	return clone(a), nil
}

func (m *Attempts) GetByExamAndUser(_ context.Context, examID, userID int64) (*model.Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.rows[key{examID, userID}]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return clone(a), nil
}

func (m *Attempts) transition(examID, userID int64, from []model.AttemptStatus, apply func(*model.Attempt)) (*model.Attempt, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.rows[key{examID, userID}]
	if !ok {
		return nil, false, repository.ErrNotFound
	}
	for _, s := range from {
		if a.Status == s {
			apply(a)
			return clone(a), true, nil
		}
	}
	return clone(a), false, nil
}

func (m *Attempts) Start(_ context.Context, examID, userID int64, now time.Time) (*model.Attempt, bool, error) {
	return m.transition(examID, userID, []model.AttemptStatus{model.AttemptNotStarted}, func(a *model.Attempt) {
		a.Status = model.AttemptInProgress
		a.TimeStarted = &now
	})
}

func (m *Attempts) Complete(_ context.Context, examID, userID int64, choices model.AttemptChoices, now time.Time) (*model.Attempt, bool, error) {
	return m.transition(examID, userID, []model.AttemptStatus{model.AttemptInProgress}, func(a *model.Attempt) {
		a.Status = model.AttemptCompleted
		a.TimeCompleted = &now
		a.Choices = model.AttemptChoices{}
		for k, v := range choices {
			a.Choices[k] = v
		}
	})
}

func (m *Attempts) Terminate(_ context.Context, examID, userID int64, reason string, now time.Time) (*model.Attempt, bool, error) {
	return m.transition(examID, userID, []model.AttemptStatus{model.AttemptNotStarted, model.AttemptInProgress}, func(a *model.Attempt) {
		a.Status = model.AttemptTerminated
		a.TimeCompleted = &now
		a.TerminationReason = &reason
	})
}

func (m *Attempts) Delete(_ context.Context, id int64) (*model.Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, a := range m.rows {
		if a.ID == id {
			delete(m.rows, k)
			return clone(a), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *Attempts) ListByExam(_ context.Context, examID int64) ([]repository.AttemptListing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []repository.AttemptListing
	for k, a := range m.rows {
		if k.exam != examID {
			continue
		}
		u := m.users[a.UserID]
		out = append(out, repository.AttemptListing{
			Attempt:   *clone(a),
			Username:  u.Username,
			FirstName: u.FirstName,
			LastName:  u.LastName,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Attempt.ID < out[j].Attempt.ID })
	return out, nil
}

// ─── Drafts ─────────────────────────────────────────────────────────────────

type Drafts struct {
	mu   sync.Mutex
	rows map[key]map[int64]int64
}

func NewDrafts() *Drafts {
	return &Drafts{rows: map[key]map[int64]int64{}}
}

func (d *Drafts) Save(_ context.Context, draft model.AttemptDraft) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	k := key{draft.ExamID, draft.UserID}
	if d.rows[k] == nil {
		d.rows[k] = map[int64]int64{}
	}
	d.rows[k][draft.QuestionID] = draft.ChoiceID
	return nil
}

func (d *Drafts) Get(_ context.Context, examID, userID int64) (map[int64]int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := map[int64]int64{}
	for q, c := range d.rows[key{examID, userID}] {
		out[q] = c
	}
	return out, nil
}

func (d *Drafts) Clear(_ context.Context, examID, userID int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.rows, key{examID, userID})
	return nil
}

// ─── Violations ─────────────────────────────────────────────────────────────

type Violations struct {
	mu       sync.Mutex
	counters map[key]*anticheat.MemoryCounter
	logged   []model.AttemptViolation
}

func NewViolations() *Violations {
	return &Violations{counters: map[key]*anticheat.MemoryCounter{}}
}

func (v *Violations) Counter(examID, userID int64) anticheat.Counter {
	v.mu.Lock()
	defer v.mu.Unlock()
	k := key{examID, userID}
	if v.counters[k] == nil {
		v.counters[k] = &anticheat.MemoryCounter{}
	}
	return v.counters[k]
}

func (v *Violations) Enqueue(_ context.Context, violation model.AttemptViolation) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.logged = append(v.logged, violation)
	return nil
}

func (v *Violations) Reset(_ context.Context, examID, userID int64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.counters, key{examID, userID})
	return nil
}

// Logged returns every violation enqueued so far.
func (v *Violations) Logged() []model.AttemptViolation {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]model.AttemptViolation(nil), v.logged...)
}

// ─── Events ─────────────────────────────────────────────────────────────────

// Publisher records published events.
type Publisher struct {
	mu     sync.Mutex
	events []*events.AttemptEvent
}

func (p *Publisher) Publish(_ context.Context, e *events.AttemptEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *Publisher) Close() error { return nil }

// Events returns the published events in order.
func (p *Publisher) Events() []*events.AttemptEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*events.AttemptEvent(nil), p.events...)
}

// Types returns the types of the published events in order.
func (p *Publisher) Types() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Type, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}
