package service

import (
	"context"
	"errors"

	"google.golang.org/api/iterator"

	"github.com/terencetsy/maillayer-contactsync/internal/connector"
	"github.com/terencetsy/maillayer-contactsync/internal/mapper"
	"github.com/terencetsy/maillayer-contactsync/internal/metrics"
	"github.com/terencetsy/maillayer-contactsync/internal/models"
	"github.com/terencetsy/maillayer-contactsync/internal/syncerr"
)

const DefaultBatchSize = 100

// ContactWriter is the contact store surface the reconciler writes through
type ContactWriter interface {
	BulkUpsert(ctx context.Context, ops []models.ContactUpsert) (models.BulkUpsertResult, error)
}

// UpsertPolicy holds the provider-specific parts of reconciliation.
type UpsertPolicy interface {
	// ForceStatus returns the status to write on both insert and update, or nil to leave it alone.
	ForceStatus(c mapper.Candidate) *models.ContactStatus
}

type genericPolicy struct{}

func (genericPolicy) ForceStatus(mapper.Candidate) *models.ContactStatus { return nil }

// identityPolicy deactivates contacts whose upstream account is disabled.
type identityPolicy struct{}

func (identityPolicy) ForceStatus(c mapper.Candidate) *models.ContactStatus {
	if disabled, _ := c.Raw[connector.IdentityKeyDisabled].(bool); disabled {
		status := models.ContactInactive
		return &status
	}
	return nil
}

// PolicyFor returns the upsert policy of a provider.
func PolicyFor(provider models.ProviderType) UpsertPolicy {
	if provider == models.ProviderIdentity {
		return identityPolicy{}
	}
	return genericPolicy{}
}

// ReconcileTarget describes where and how candidates are written.
type ReconcileTarget struct {
	ListID  string
	BrandID string
	UserID  string
	Source  models.ProviderType
	Mapping models.FieldMapping
	Policy  UpsertPolicy
}

// ProgressObserver is told when the stream starts yielding and after each committed batch.
type ProgressObserver interface {
	FirstPage(ctx context.Context)
	BatchCommitted(ctx context.Context, processed, sizeHint int)
}

type noopObserver struct{}

func (noopObserver) FirstPage(context.Context) {}

func (noopObserver) BatchCommitted(context.Context, int, int) {}

// Reconciler streams records into the contact store in fixed-size batches.
type Reconciler struct {
	contacts  ContactWriter
	batchSize int
}

func NewReconciler(contacts ContactWriter, batchSize int) *Reconciler {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Reconciler{contacts: contacts, batchSize: batchSize}
}

// Run consumes records to the end. Batches are written one at a time; a failed batch
// aborts the run and earlier batches stay committed.
// On success ImportedCount + UpdatedCount + SkippedCount == TotalCount.
func (r *Reconciler) Run(ctx context.Context, records connector.Records, target ReconcileTarget, observer ProgressObserver) (models.SyncResult, error) {
	if observer == nil {
		observer = noopObserver{}
	}
	policy := target.Policy
	if policy == nil {
		policy = genericPolicy{}
	}

	var (
		result    models.SyncResult
		batch     = make([]models.ContactUpsert, 0, r.batchSize)
		batchNo   int
		firstPage = true
	)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		res, err := r.contacts.BulkUpsert(ctx, batch)
		metrics.RecordBatchWrite(err)
		if err != nil {
			return &syncerr.BatchWriteError{Batch: batchNo, Size: len(batch), Err: err}
		}

		result.ImportedCount += res.Upserted
		result.UpdatedCount += res.Modified
		result.SkippedCount += res.Unchanged
		batchNo++
		batch = batch[:0]

		observer.BatchCommitted(ctx, result.TotalCount, records.SizeHint())
		return nil
	}

	for {
		rec, err := records.Next(ctx)
		if firstPage {
			firstPage = false
			if err == nil || errors.Is(err, iterator.Done) {
				observer.FirstPage(ctx)
			}
		}
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return models.SyncResult{}, classifyFetchError(target.Source, err)
		}

		result.TotalCount++

		candidate, ok := mapper.Project(rec, target.Mapping)
		if !ok {
			result.SkippedCount++
			continue
		}

		batch = append(batch, models.ContactUpsert{
			Email:       candidate.Email,
			ListID:      target.ListID,
			BrandID:     target.BrandID,
			UserID:      target.UserID,
			FirstName:   candidate.FirstName,
			LastName:    candidate.LastName,
			Phone:       candidate.Phone,
			Source:      target.Source,
			ForceStatus: policy.ForceStatus(candidate),
		})

		if len(batch) == r.batchSize {
			if err := flush(); err != nil {
				return models.SyncResult{}, err
			}
		}
	}

	if err := flush(); err != nil {
		return models.SyncResult{}, err
	}
	return result, nil
}

func classifyFetchError(provider models.ProviderType, err error) error {
	if syncerr.IsConfiguration(err) || syncerr.IsTransient(err) {
		return err
	}
	return syncerr.Transient(string(provider), 0, err)
}
