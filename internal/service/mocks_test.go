package service_test

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/unclebandit/smsleopard-webhooks/internal/errors"
	"github.com/unclebandit/smsleopard-webhooks/internal/model"
)

// --- Tenants ---

type MockTenantRepo struct {
	tenants []*model.Tenant
	err     error
}

func (m *MockTenantRepo) find(match func(*model.Tenant) bool) (*model.Tenant, error) {
	if m.err != nil {
		return nil, m.err
	}
	for _, t := range m.tenants {
		if t.Status == model.TenantActive && match(t) {
			return t, nil
		}
	}
	return nil, nil
}

func (m *MockTenantRepo) GetActiveByVerifyToken(ctx context.Context, token string) (*model.Tenant, error) {
	return m.find(func(t *model.Tenant) bool { return token != "" && t.VerifyToken == token })
}

func (m *MockTenantRepo) GetActiveByAccountID(ctx context.Context, accountID string) (*model.Tenant, error) {
	return m.find(func(t *model.Tenant) bool { return accountID != "" && t.AccountID == accountID })
}

func (m *MockTenantRepo) GetActiveByChannelID(ctx context.Context, channelID string) (*model.Tenant, error) {
	return m.find(func(t *model.Tenant) bool { return channelID != "" && t.ChannelID == channelID })
}

func acmeTenant() *model.Tenant {
	return &model.Tenant{
		ID:          uuid.MustParse("11111111-1111-1111-1111-111111111111"),
		Name:        "Acme",
		Status:      model.TenantActive,
		AccountID:   "waba-acme",
		ChannelID:   "phone-acme",
		VerifyToken: "tok-acme",
		AppSecret:   "acme-secret",
	}
}

// --- Audit ---

type MockAuditRepo struct {
	mu        sync.Mutex
	records   map[uuid.UUID]*model.AuditRecord
	order     []uuid.UUID
	createErr error
}

func NewMockAuditRepo() *MockAuditRepo {
	return &MockAuditRepo{records: map[uuid.UUID]*model.AuditRecord{}}
}

func (m *MockAuditRepo) Create(ctx context.Context, rec *model.AuditRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	rec.ID = uuid.New()
	cp := *rec
	m.records[rec.ID] = &cp
	m.order = append(m.order, rec.ID)
	return nil
}

func (m *MockAuditRepo) MarkProcessed(ctx context.Context, id uuid.UUID, errText *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return nil
	}
	now := time.Now()
	rec.Processed = true
	rec.Error = errText
	rec.ProcessedAt = &now
	return nil
}

func (m *MockAuditRepo) ListFailed(ctx context.Context, limit int) ([]*model.AuditRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 100
	}
	var out []*model.AuditRecord
	for _, id := range m.order {
		if len(out) == limit {
			break
		}
		if rec := m.records[id]; rec.Error != nil && rec.ReplayedAt == nil {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *MockAuditRepo) MarkReplayed(ctx context.Context, id uuid.UUID, replayErr *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.records[id]; ok {
		now := time.Now()
		rec.ReplayedAt = &now
		rec.ReplayError = replayErr
	}
	return nil
}

func (m *MockAuditRepo) All() []*model.AuditRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.AuditRecord, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.records[id])
	}
	return out
}

// --- Ledgers ---

// applyStage mirrors the SQL guard: status only moves forward and the stage
// timestamp keeps its first value.
func applyStage(status *string, stages map[string]**time.Time, reason **string, u model.StatusUpdate) {
	*status = model.AdvanceStatus(*status, u.Status)
	if col, ok := stages[model.StageColumn(u.Status)]; ok && *col == nil {
		ts := u.Timestamp
		*col = &ts
	}
	if u.Status == model.StatusFailed {
		r := u.FailureReason
		*reason = &r
	}
}

type MockMessageRepo struct {
	mu   sync.Mutex
	rows map[string]*model.MessageLedgerEntry
	err  error
}

func NewMockMessageRepo(rows ...*model.MessageLedgerEntry) *MockMessageRepo {
	m := &MockMessageRepo{rows: map[string]*model.MessageLedgerEntry{}}
	for _, r := range rows {
		m.rows[r.ProviderMessageID] = r
	}
	return m
}

func (m *MockMessageRepo) GetByProviderMessageID(ctx context.Context, id string) (*model.MessageLedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.rows[id], nil
}

func (m *MockMessageRepo) ApplyStatus(ctx context.Context, u model.StatusUpdate) (*model.MessageLedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	row, ok := m.rows[u.ProviderMessageID]
	if !ok || row.TenantID != u.TenantID {
		return nil, nil
	}
	applyStage(&row.Status, map[string]**time.Time{
		"sent_at": &row.SentAt, "delivered_at": &row.DeliveredAt, "read_at": &row.ReadAt, "failed_at": &row.FailedAt,
	}, &row.FailureReason, u)
	cp := *row
	return &cp, nil
}

type MockAudienceRepo struct {
	mu   sync.Mutex
	rows map[string]*model.CampaignAudienceEntry
}

func NewMockAudienceRepo(rows ...*model.CampaignAudienceEntry) *MockAudienceRepo {
	m := &MockAudienceRepo{rows: map[string]*model.CampaignAudienceEntry{}}
	for _, r := range rows {
		m.rows[r.ProviderMessageID] = r
	}
	return m
}

func (m *MockAudienceRepo) GetByProviderMessageID(ctx context.Context, id string) (*model.CampaignAudienceEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[id], nil
}

func (m *MockAudienceRepo) ApplyStatus(ctx context.Context, u model.StatusUpdate) (*model.CampaignAudienceEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[u.ProviderMessageID]
	if !ok {
		return nil, nil
	}
	applyStage(&row.Status, map[string]**time.Time{
		"sent_at": &row.SentAt, "delivered_at": &row.DeliveredAt, "read_at": &row.ReadAt, "failed_at": &row.FailedAt,
	}, &row.FailureReason, u)
	cp := *row
	return &cp, nil
}

// MockCampaignRepo recomputes counters from the audience mock, the same way
// the SQL does.
type MockCampaignRepo struct {
	mu         sync.Mutex
	audience   *MockAudienceRepo
	campaigns  map[int]*model.Campaign
	recomputes int
}

func NewMockCampaignRepo(audience *MockAudienceRepo, ids ...int) *MockCampaignRepo {
	m := &MockCampaignRepo{audience: audience, campaigns: map[int]*model.Campaign{}}
	for _, id := range ids {
		m.campaigns[id] = &model.Campaign{ID: id, Name: "campaign", Status: "sending"}
	}
	return m
}

func (m *MockCampaignRepo) GetByID(ctx context.Context, id int) (*model.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	return c, nil
}

func (m *MockCampaignRepo) RecomputeStats(ctx context.Context, campaignID int) (*model.CampaignStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[campaignID]
	if !ok {
		return nil, appErrors.NewCampaignNotFound(campaignID)
	}
	m.recomputes++

	var s model.CampaignStats
	m.audience.mu.Lock()
	for _, row := range m.audience.rows {
		if row.CampaignID != campaignID {
			continue
		}
		s.Targeted++
		switch row.Status {
		case model.StatusSent:
			s.Sent++
		case model.StatusDelivered:
			s.Delivered++
		case model.StatusRead:
			s.Read++
		case model.StatusFailed:
			s.Failed++
		}
	}
	m.audience.mu.Unlock()
	c.Stats = s
	return &s, nil
}

// --- Incoming ---

type MockIncomingRepo struct {
	mu      sync.Mutex
	records map[string]*model.IncomingMessageRecord
	nextID  int64

	// hideExisting makes Exists report false so Create's conflict path runs.
	hideExisting bool
	// markErr fails MarkProcessed by id.
	markErr error
}

func NewMockIncomingRepo() *MockIncomingRepo {
	return &MockIncomingRepo{records: map[string]*model.IncomingMessageRecord{}}
}

func (m *MockIncomingRepo) Exists(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.hideExisting {
		return false, nil
	}
	_, ok := m.records[id]
	return ok, nil
}

func (m *MockIncomingRepo) Create(ctx context.Context, rec *model.IncomingMessageRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[rec.ProviderMessageID]; ok {
		return appErrors.ErrDuplicateEvent
	}
	m.nextID++
	rec.ID = m.nextID
	rec.CreatedAt = time.Now()
	cp := *rec
	m.records[rec.ProviderMessageID] = &cp
	return nil
}

func (m *MockIncomingRepo) MarkProcessed(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.markErr != nil {
		return m.markErr
	}
	for _, rec := range m.records {
		if rec.ID == id {
			rec.Processed = true
		}
	}
	return nil
}

func (m *MockIncomingRepo) MarkProcessedByProviderID(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.records[id]; ok {
		rec.Processed = true
	}
	return nil
}

func (m *MockIncomingRepo) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func (m *MockIncomingRepo) Get(id string) *model.IncomingMessageRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[id]
}

// --- Queue ---

type MockPublisher struct {
	mu        sync.Mutex
	envelopes []*model.WebhookEnvelope
	err       error
}

func (m *MockPublisher) Publish(ctx context.Context, env *model.WebhookEnvelope) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	m.envelopes = append(m.envelopes, env)
	return uuid.NewString(), nil
}

func (m *MockPublisher) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.envelopes)
}
