package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"google.golang.org/api/iterator"
	"gorm.io/datatypes"

	"github.com/terencetsy/maillayer-contactsync/internal/connector"
	"github.com/terencetsy/maillayer-contactsync/internal/models"
	"github.com/terencetsy/maillayer-contactsync/internal/repository"
)

type mockIntegrationStore struct {
	integrations map[string]*models.Integration
	getByIDFunc  func(ctx context.Context, integrationID string) (*models.Integration, error)
}

func (m *mockIntegrationStore) GetByID(ctx context.Context, integrationID string) (*models.Integration, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, integrationID)
	}
	if i, ok := m.integrations[integrationID]; ok {
		return i, nil
	}
	return nil, repository.ErrIntegrationNotFound
}

type mockTableSyncStore struct {
	syncs       map[string]*models.TableSync
	saveCalls   int
	markErrors  []string
	statusTrail []models.TableSyncStatus
}

func (m *mockTableSyncStore) GetByID(ctx context.Context, integrationID, syncID string) (*models.TableSync, error) {
	s, ok := m.syncs[syncID]
	if !ok || s.IntegrationID != integrationID {
		return nil, repository.ErrTableSyncNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *mockTableSyncStore) GetImplicit(ctx context.Context, integrationID string) (*models.TableSync, error) {
	for _, s := range m.syncs {
		if s.IntegrationID == integrationID {
			cp := *s
			return &cp, nil
		}
	}
	return nil, repository.ErrTableSyncNotFound
}

func (m *mockTableSyncStore) MarkSyncing(ctx context.Context, syncID string) error {
	m.syncs[syncID].Status = models.TableSyncSyncing
	m.statusTrail = append(m.statusTrail, models.TableSyncSyncing)
	return nil
}

func (m *mockTableSyncStore) SaveResult(ctx context.Context, syncID string, res models.SyncResult, syncedAt time.Time) error {
	m.saveCalls++
	s := m.syncs[syncID]
	r := datatypes.NewJSONType(res)
	s.LastSyncResult = &r
	s.LastSyncedAt = &syncedAt
	s.Status = models.TableSyncSynced
	s.LastError = nil
	m.statusTrail = append(m.statusTrail, models.TableSyncSynced)
	return nil
}

func (m *mockTableSyncStore) MarkError(ctx context.Context, syncID string, message string) error {
	s := m.syncs[syncID]
	s.Status = models.TableSyncError
	s.LastError = &message
	m.markErrors = append(m.markErrors, message)
	m.statusTrail = append(m.statusTrail, models.TableSyncError)
	return nil
}

type mockContactListStore struct {
	lists map[string]*models.ContactList
}

func (m *mockContactListStore) GetForBrand(ctx context.Context, listID, brandID string) (*models.ContactList, error) {
	l, ok := m.lists[listID]
	if !ok || l.BrandID != brandID {
		return nil, repository.ErrContactListNotFound
	}
	return l, nil
}

func (m *mockContactListStore) UpdateContactCount(ctx context.Context, listID string, count int64) error {
	l, ok := m.lists[listID]
	if !ok {
		return repository.ErrContactListNotFound
	}
	l.ContactCount = count
	return nil
}

// memContactStore mirrors the bulk upsert contract of the Postgres repository.
type memContactStore struct {
	mu          sync.Mutex
	contacts    map[string]*models.Contact
	batchSizes  []int
	failOnBatch int // 1-based; 0 never fails
}

func newMemContactStore() *memContactStore {
	return &memContactStore{contacts: map[string]*models.Contact{}}
}

func contactKey(listID, email string) string { return listID + "|" + email }

func (m *memContactStore) seed(c models.Contact) {
	m.contacts[contactKey(c.ListID, c.Email)] = &c
}

func (m *memContactStore) BulkUpsert(ctx context.Context, ops []models.ContactUpsert) (models.BulkUpsertResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.batchSizes = append(m.batchSizes, len(ops))
	if m.failOnBatch == len(m.batchSizes) {
		return models.BulkUpsertResult{}, errors.New("connection reset by peer")
	}

	last := map[string]int{}
	for i, op := range ops {
		last[contactKey(op.ListID, op.Email)] = i
	}

	var res models.BulkUpsertResult
	for i, op := range ops {
		key := contactKey(op.ListID, op.Email)
		if last[key] != i {
			res.Unchanged++
			continue
		}

		existing, ok := m.contacts[key]
		if !ok {
			m.contacts[key] = &models.Contact{
				ID:        key,
				Email:     op.Email,
				ListID:    op.ListID,
				BrandID:   op.BrandID,
				UserID:    op.UserID,
				FirstName: op.FirstName,
				LastName:  op.LastName,
				Phone:     op.Phone,
				Status:    op.InsertStatus(),
				Source:    op.Source,
			}
			res.Upserted++
			continue
		}

		changed := existing.FirstName != op.FirstName || existing.LastName != op.LastName || existing.Phone != op.Phone
		if op.ForceStatus != nil && existing.Status != *op.ForceStatus {
			changed = true
		}
		if !changed {
			res.Unchanged++
			continue
		}

		existing.FirstName = op.FirstName
		existing.LastName = op.LastName
		existing.Phone = op.Phone
		if op.ForceStatus != nil {
			existing.Status = *op.ForceStatus
		}
		res.Modified++
	}
	return res, nil
}

func (m *memContactStore) CountByList(ctx context.Context, listID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for _, c := range m.contacts {
		if c.ListID == listID {
			n++
		}
	}
	return n, nil
}

func (m *memContactStore) emails(listID string) []string {
	var out []string
	for _, c := range m.contacts {
		if c.ListID == listID {
			out = append(out, c.Email)
		}
	}
	sort.Strings(out)
	return out
}

func (m *memContactStore) get(listID, email string) *models.Contact {
	return m.contacts[contactKey(listID, email)]
}

// sliceRecords is a finite in-memory record stream.
type sliceRecords struct {
	records []connector.Record
	pos     int
	hint    int
}

func (s *sliceRecords) Next(ctx context.Context) (connector.Record, error) {
	if s.pos >= len(s.records) {
		return nil, iterator.Done
	}
	r := s.records[s.pos]
	s.pos++
	return r, nil
}

func (s *sliceRecords) SizeHint() int { return s.hint }

type mockRecordSource struct {
	records   []connector.Record
	sizeKnown bool
	fetchFunc func(ctx context.Context, attempt int) error
	calls     int
}

func (m *mockRecordSource) Fetch(ctx context.Context, cfg models.ProviderConfig, source models.SourceRef) (connector.Records, error) {
	m.calls++
	if m.fetchFunc != nil {
		if err := m.fetchFunc(ctx, m.calls); err != nil {
			return nil, err
		}
	}
	hint := -1
	if m.sizeKnown {
		hint = len(m.records)
	}
	return &sliceRecords{records: m.records, hint: hint}, nil
}

type mockProgressReporter struct {
	values []int
}

func (m *mockProgressReporter) UpdateProgress(ctx context.Context, jobID string, progress int) error {
	m.values = append(m.values, progress)
	return nil
}

type mockJobEnqueuer struct {
	jobs []*models.ContactSyncJob
	err  error
}

func (m *mockJobEnqueuer) Enqueue(ctx context.Context, job *models.ContactSyncJob) error {
	if m.err != nil {
		return m.err
	}
	m.jobs = append(m.jobs, job)
	return nil
}

func emailRecords(emails ...string) []connector.Record {
	out := make([]connector.Record, 0, len(emails))
	for _, e := range emails {
		out = append(out, connector.Record{"email": e})
	}
	return out
}
