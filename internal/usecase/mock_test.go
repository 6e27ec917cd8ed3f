package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tadcs/certportal/internal/domain"
)

// --- mocks ---

type memoryRepo struct {
	mu      sync.Mutex
	apps    map[string]domain.Application
	writes  int
	failAll error

	// beforeDecide runs with the lock released, just before Decide applies.
	beforeDecide func()
	// afterList runs once with the lock released, after List has read its
	// rows and before it returns them.
	afterList func()
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{apps: map[string]domain.Application{}}
}

func (m *memoryRepo) Create(ctx context.Context, app domain.Application) (domain.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll != nil {
		return domain.Application{}, m.failAll
	}
	if _, ok := m.apps[app.ID]; ok {
		return domain.Application{}, domain.StorageError{Op: "create", Err: fmt.Errorf("duplicate id %s", app.ID)}
	}
	m.apps[app.ID] = app
	m.writes++
	return app, nil
}

func (m *memoryRepo) Get(ctx context.Context, id string) (domain.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll != nil {
		return domain.Application{}, m.failAll
	}
	app, ok := m.apps[id]
	if !ok {
		return domain.Application{}, domain.NotFoundError{Resource: "application"}
	}
	return app, nil
}

func (m *memoryRepo) List(ctx context.Context, filter domain.ApplicationFilter) ([]domain.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll != nil {
		return nil, m.failAll
	}
	var out []domain.Application
	for _, app := range m.apps {
		if filter.UserID != "" && app.UserID != filter.UserID {
			continue
		}
		if filter.CertificateID != "" && (app.CertificateID == nil || *app.CertificateID != filter.CertificateID) {
			continue
		}
		if filter.Status != "" && app.Status != filter.Status {
			continue
		}
		out = append(out, app)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	if m.afterList != nil {
		hook := m.afterList
		m.afterList = nil
		m.mu.Unlock()
		hook()
		m.mu.Lock()
	}
	return out, nil
}

func (m *memoryRepo) Decide(ctx context.Context, id string, decision Decision) (bool, error) {
	if m.beforeDecide != nil {
		hook := m.beforeDecide
		m.beforeDecide = nil
		hook()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll != nil {
		return false, m.failAll
	}
	app, ok := m.apps[id]
	if !ok || app.Status != domain.StatusPending {
		return false, nil
	}
	app.Status = decision.Status
	app.CertificateID = decision.CertificateID
	app.ApprovedAt = decision.ApprovedAt
	app.ApprovedBy = decision.ApprovedBy
	app.UpdatedAt = decision.UpdatedAt
	m.apps[id] = app
	m.writes++
	return true, nil
}

func (m *memoryRepo) Amend(ctx context.Context, id string, patch domain.FieldPatch, updatedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll != nil {
		return m.failAll
	}
	app, ok := m.apps[id]
	if !ok {
		return domain.NotFoundError{Resource: "application"}
	}
	app.ApplicantFields = patch.Apply(app.ApplicantFields)
	app.UpdatedAt = updatedAt
	m.apps[id] = app
	m.writes++
	return nil
}

func (m *memoryRepo) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll != nil {
		return m.failAll
	}
	if _, ok := m.apps[id]; !ok {
		return domain.NotFoundError{Resource: "application"}
	}
	delete(m.apps, id)
	m.writes++
	return nil
}

func (m *memoryRepo) CertificateExists(ctx context.Context, certificateID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, app := range m.apps {
		if app.CertificateID != nil && *app.CertificateID == certificateID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryRepo) Count(ctx context.Context) (domain.Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var stats domain.Stats
	for _, app := range m.apps {
		stats.Total++
		switch app.Status {
		case domain.StatusPending:
			stats.Pending++
		case domain.StatusApproved:
			stats.Approved++
		case domain.StatusRejected:
			stats.Rejected++
		}
	}
	return stats, nil
}

func (m *memoryRepo) writeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

const adminToken = "valid-token"

type mockAuth struct{}

func (mockAuth) Authorize(ctx context.Context, token string) (domain.AdminSession, error) {
	if token != adminToken {
		return domain.AdminSession{}, domain.AuthorizationError{Reason: "admin session required"}
	}
	return domain.AdminSession{Token: token, AdminID: "admin_001", Email: "admin@tadcs.in"}, nil
}

// sequenceMinter hands out ids in order and then fails.
type sequenceMinter struct {
	ids []string
	err error
}

func (m *sequenceMinter) Mint() (string, error) {
	if len(m.ids) == 0 {
		if m.err != nil {
			return "", m.err
		}
		return "", fmt.Errorf("minter exhausted")
	}
	id := m.ids[0]
	m.ids = m.ids[1:]
	return id, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, event domain.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) types() []domain.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.EventType, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

// mapCache mirrors the production cache: Set only fills empty keys and an
// invalidated key stays closed.
type mapCache struct {
	mu          sync.Mutex
	views       map[string]domain.VerifiedCertificate
	tombstones  map[string]bool
	invalidated []string
}

func newMapCache() *mapCache {
	return &mapCache{
		views:      map[string]domain.VerifiedCertificate{},
		tombstones: map[string]bool{},
	}
}

func (c *mapCache) Get(ctx context.Context, id string) (domain.VerifiedCertificate, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.views[id]
	return v, ok
}

func (c *mapCache) Set(ctx context.Context, view domain.VerifiedCertificate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.views[view.CertificateID]; ok || c.tombstones[view.CertificateID] {
		return
	}
	c.views[view.CertificateID] = view
}

func (c *mapCache) Invalidate(ctx context.Context, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.views, id)
	c.tombstones[id] = true
	c.invalidated = append(c.invalidated, id)
}

// --- fixtures ---

var fixedNow = time.Date(2024, 4, 2, 10, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

func ashaFields() domain.ApplicantFields {
	return domain.ApplicantFields{
		Name:          "Asha Rao",
		Email:         "asha@example.org",
		CollegeName:   "City College",
		Field:         "Data Science",
		Duration:      "3 months",
		StartDate:     "2024-01-01",
		EndDate:       "2024-03-31",
		ProjectTitle:  "Churn model",
		ProjectStatus: domain.ProjectCompleted,
	}
}

func seedPending(repo *memoryRepo, id string, fields domain.ApplicantFields) domain.Application {
	app := domain.Application{
		ID:              id,
		UserID:          "user_" + id,
		ApplicantFields: fields,
		Status:          domain.StatusPending,
		CreatedAt:       fixedNow.Add(-time.Hour),
		UpdatedAt:       fixedNow.Add(-time.Hour),
	}
	repo.apps[id] = app
	return app
}

type fixture struct {
	repo      *memoryRepo
	cache     *mapCache
	events    *recordingPublisher
	minter    *sequenceMinter
	lifecycle *LifecycleUsecase
	verify    *VerificationUsecase
	apps      *ApplicationUsecase
}

func newFixture(certIDs ...string) *fixture {
	f := &fixture{
		repo:   newMemoryRepo(),
		cache:  newMapCache(),
		events: &recordingPublisher{},
		minter: &sequenceMinter{ids: certIDs},
	}
	logger := zap.NewNop()
	f.lifecycle = NewLifecycleUsecase(f.repo, mockAuth{}, f.minter, f.cache, f.events, logger, WithLifecycleClock(fixedClock))
	f.verify = NewVerificationUsecase(f.repo, f.cache, logger)
	f.apps = NewApplicationUsecase(f.repo, mockAuth{}, &sequenceMinter{ids: []string{"app_1_aaaaaaaaa", "app_2_bbbbbbbbb", "app_3_ccccccccc"}}, f.events, logger)
	f.apps.now = fixedClock
	return f
}
