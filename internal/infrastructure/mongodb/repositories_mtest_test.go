package mongodb

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/meal-program/production-service/internal/domain"
)

var mockNow = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

func newMockBatch(t *testing.T) *domain.ProductionBatch {
	t.Helper()
	batch, err := domain.NewProductionBatch(domain.NewBatchParams{
		ProgramID:       "program-1",
		MenuID:          "menu-1",
		ProductionDate:  mockNow,
		PlannedPortions: 100,
		PlannedStart:    mockNow.Add(time.Hour),
		PlannedEnd:      mockNow.Add(3 * time.Hour),
		HeadCook:        "cook-1",
		CostPerServing:  domain.MustMoney(250, "USD"),
		CreatedBy:       "planner-1",
		Now:             mockNow,
	})
	require.NoError(t, err)
	require.NoError(t, batch.AssignBatchNumber("PROD-20250314-001"))
	batch.ClearDomainEvents()
	return batch
}

func toDocument(t *testing.T, v interface{}) bson.D {
	t.Helper()
	raw, err := bson.Marshal(v)
	require.NoError(t, err)
	var doc bson.D
	require.NoError(t, bson.Unmarshal(raw, &doc))
	return doc
}

func namespace(coll *mongo.Collection) string {
	return coll.Database().Name() + "." + coll.Name()
}

func duplicateKeyResponse() bson.D {
	return mtest.CreateWriteErrorsResponse(mtest.WriteError{Index: 0, Code: 11000, Message: "E11000 duplicate key error"})
}

func TestBatchRepository_MockOps(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("create sets version one", func(mt *mtest.T) {
		repo := NewBatchRepository(mt.DB, nil, nil)
		batch := newMockBatch(t)
		batch.Version = 7

		mt.AddMockResponses(mtest.CreateSuccessResponse())
		require.NoError(t, repo.Create(context.Background(), batch))
		assert.Equal(t, int64(1), batch.Version)
	})

	mt.Run("create duplicate number is a conflict", func(mt *mtest.T) {
		repo := NewBatchRepository(mt.DB, nil, nil)

		mt.AddMockResponses(duplicateKeyResponse())
		err := repo.Create(context.Background(), newMockBatch(t))
		assert.True(t, domain.IsConflict(err))
	})

	mt.Run("update bumps version", func(mt *mtest.T) {
		repo := NewBatchRepository(mt.DB, nil, nil)
		batch := newMockBatch(t)
		batch.Version = 3

		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1},
			bson.E{Key: "nModified", Value: 1},
		))
		require.NoError(t, repo.Update(context.Background(), batch))
		assert.Equal(t, int64(4), batch.Version)
	})

	mt.Run("stale update is a conflict", func(mt *mtest.T) {
		coll := mt.DB.Collection(BatchesCollection)
		repo := NewBatchRepository(mt.DB, nil, nil)
		batch := newMockBatch(t)
		batch.Version = 2

		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}),
			mtest.CreateCursorResponse(0, namespace(coll), mtest.FirstBatch, bson.D{{Key: "n", Value: 1}}),
		)
		err := repo.Update(context.Background(), batch)
		assert.True(t, domain.IsConflict(err))
		assert.Equal(t, int64(2), batch.Version)
	})

	mt.Run("update of missing batch is not found", func(mt *mtest.T) {
		coll := mt.DB.Collection(BatchesCollection)
		repo := NewBatchRepository(mt.DB, nil, nil)

		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}),
			mtest.CreateCursorResponse(0, namespace(coll), mtest.FirstBatch),
		)
		err := repo.Update(context.Background(), newMockBatch(t))
		assert.True(t, domain.IsNotFound(err))
	})

	mt.Run("find by id decodes money and status", func(mt *mtest.T) {
		coll := mt.DB.Collection(BatchesCollection)
		repo := NewBatchRepository(mt.DB, nil, nil)
		stored := newMockBatch(t)
		stored.Version = 5

		mt.AddMockResponses(mtest.CreateCursorResponse(0, namespace(coll), mtest.FirstBatch, toDocument(t, stored)))
		found, err := repo.FindByID(context.Background(), stored.ID)
		require.NoError(t, err)
		assert.Equal(t, stored.BatchNumber, found.BatchNumber)
		assert.Equal(t, domain.StatusPlanned, found.Status)
		assert.True(t, found.EstimatedCost.Equals(domain.MustMoney(25000, "USD")))
		assert.Equal(t, int64(5), found.Version)
	})

	mt.Run("find by id missing", func(mt *mtest.T) {
		coll := mt.DB.Collection(BatchesCollection)
		repo := NewBatchRepository(mt.DB, nil, nil)

		mt.AddMockResponses(mtest.CreateCursorResponse(0, namespace(coll), mtest.FirstBatch))
		_, err := repo.FindByID(context.Background(), "missing")
		assert.True(t, domain.IsNotFound(err))
	})

	mt.Run("find all returns page and total", func(mt *mtest.T) {
		coll := mt.DB.Collection(BatchesCollection)
		repo := NewBatchRepository(mt.DB, nil, nil)
		stored := newMockBatch(t)

		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, namespace(coll), mtest.FirstBatch, bson.D{{Key: "n", Value: 12}}),
			mtest.CreateCursorResponse(0, namespace(coll), mtest.FirstBatch, toDocument(t, stored)),
		)
		status := domain.StatusPlanned
		batches, total, err := repo.FindAll(context.Background(), domain.BatchFilter{Status: &status}, 1, 0)
		require.NoError(t, err)
		assert.Equal(t, int64(12), total)
		require.Len(t, batches, 1)
		assert.Equal(t, stored.ID, batches[0].ID)
	})
}

func TestBatchFilterDocument(t *testing.T) {
	status := domain.StatusCooking
	pending := true
	from := mockNow.AddDate(0, 0, -7)
	to := mockNow

	query := batchFilterDocument(domain.BatchFilter{
		Status:                &status,
		ProgramID:             "program-1",
		MenuID:                "menu-1",
		ProductionDateFrom:    &from,
		ProductionDateTo:      &to,
		ReconciliationPending: &pending,
	})

	assert.Equal(t, status, query["status"])
	assert.Equal(t, "program-1", query["programId"])
	assert.Equal(t, "menu-1", query["menuId"])
	assert.Equal(t, true, query["reconciliationPending"])
	assert.Equal(t, bson.M{"$gte": from, "$lte": to}, query["productionDate"])

	assert.Empty(t, batchFilterDocument(domain.BatchFilter{}))
}

func TestQualityCheckRepository_MockOps(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("append and list", func(mt *mtest.T) {
		coll := mt.DB.Collection(QualityChecksCollection)
		repo := NewQualityCheckRepository(mt.DB, nil, nil)
		score := 85
		check := &domain.QualityCheck{
			ID:          "check-1",
			BatchID:     "batch-1",
			CheckType:   domain.CheckTypeTaste,
			Parameter:   "seasoning",
			ActualValue: "balanced",
			Passed:      true,
			Score:       &score,
			CheckedBy:   "inspector-1",
			CheckTime:   mockNow,
		}

		mt.AddMockResponses(mtest.CreateSuccessResponse())
		require.NoError(t, repo.Append(context.Background(), check))

		mt.AddMockResponses(mtest.CreateCursorResponse(0, namespace(coll), mtest.FirstBatch, toDocument(t, check)))
		checks, err := repo.FindByBatchID(context.Background(), "batch-1")
		require.NoError(t, err)
		require.Len(t, checks, 1)
		assert.Equal(t, 85, checks[0].EffectiveScore())
	})

	mt.Run("empty batch yields empty slice", func(mt *mtest.T) {
		coll := mt.DB.Collection(QualityChecksCollection)
		repo := NewQualityCheckRepository(mt.DB, nil, nil)

		mt.AddMockResponses(mtest.CreateCursorResponse(0, namespace(coll), mtest.FirstBatch))
		checks, err := repo.FindByBatchID(context.Background(), "batch-1")
		require.NoError(t, err)
		assert.NotNil(t, checks)
		assert.Empty(t, checks)
	})
}

func TestReconciliationRepository_MockOps(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("absent summary is nil", func(mt *mtest.T) {
		coll := mt.DB.Collection(ReconciliationsCollection)
		repo := NewReconciliationRepository(mt.DB, nil, nil)

		mt.AddMockResponses(mtest.CreateCursorResponse(0, namespace(coll), mtest.FirstBatch))
		summary, err := repo.FindByBatchID(context.Background(), "batch-1")
		require.NoError(t, err)
		assert.Nil(t, summary)
	})

	mt.Run("second save is a conflict", func(mt *mtest.T) {
		repo := NewReconciliationRepository(mt.DB, nil, nil)
		summary := &domain.ReconciliationSummary{
			BatchID:        "batch-1",
			BatchNumber:    "PROD-20250314-001",
			ActualPortions: 95,
			TotalCost:      domain.MustMoney(11401, "USD"),
			CostPerPortion: domain.MustMoney(120, "USD"),
			EstimatedCost:  domain.MustMoney(25000, "USD"),
			ReconciledAt:   mockNow,
			ReconciledBy:   "cook-1",
		}

		mt.AddMockResponses(mtest.CreateSuccessResponse(), duplicateKeyResponse())
		require.NoError(t, repo.Save(context.Background(), summary))
		err := repo.Save(context.Background(), summary)
		assert.True(t, domain.IsConflict(err))
	})

	mt.Run("stored summary round trips", func(mt *mtest.T) {
		coll := mt.DB.Collection(ReconciliationsCollection)
		repo := NewReconciliationRepository(mt.DB, nil, nil)
		variance := -54.4
		stored := &domain.ReconciliationSummary{
			BatchID:         "batch-1",
			BatchNumber:     "PROD-20250314-001",
			ActualPortions:  95,
			TotalCost:       domain.MustMoney(11401, "USD"),
			CostPerPortion:  domain.MustMoney(120, "USD"),
			EstimatedCost:   domain.MustMoney(25000, "USD"),
			CostVariancePct: &variance,
			ReconciledAt:    mockNow,
			ReconciledBy:    "cook-1",
		}

		mt.AddMockResponses(mtest.CreateCursorResponse(0, namespace(coll), mtest.FirstBatch, toDocument(t, stored)))
		found, err := repo.FindByBatchID(context.Background(), "batch-1")
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.True(t, found.TotalCost.Equals(stored.TotalCost))
		require.NotNil(t, found.CostVariancePct)
		assert.InDelta(t, -54.4, *found.CostVariancePct, 0.0001)
	})
}

func TestBatchSequence_MockOps(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("returns incremented counter", func(mt *mtest.T) {
		seq := NewBatchSequence(mt.DB, nil, nil)

		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{
			Key:   "value",
			Value: bson.D{{Key: "_id", Value: "20250314"}, {Key: "seq", Value: 3}},
		}))
		n, err := seq.Next(context.Background(), mockNow)
		require.NoError(t, err)
		assert.Equal(t, 3, n)
	})

	mt.Run("racing first upsert is a conflict", func(mt *mtest.T) {
		seq := NewBatchSequence(mt.DB, nil, nil)

		mt.AddMockResponses(
			duplicateKeyResponse(),
			mtest.CreateSuccessResponse(bson.E{
				Key:   "value",
				Value: bson.D{{Key: "_id", Value: "20250314"}, {Key: "seq", Value: 2}},
			}),
		)
		n, err := seq.Next(context.Background(), mockNow)
		require.Error(t, err)
		assert.True(t, domain.IsConflict(err))
		assert.Zero(t, n)
		assert.Len(t, mt.GetAllStartedEvents(), 1, "the aborted upsert is not re-issued")
	})
}

type stubSessionRunner struct {
	calls int
}

func (s *stubSessionRunner) WithTransaction(ctx context.Context, fn func(sessCtx mongo.SessionContext) error) error {
	s.calls++
	return fn(mongo.NewSessionContext(ctx, nil))
}

func TestTransactionManager_WithinTransaction(t *testing.T) {
	runner := &stubSessionRunner{}
	tx := NewTransactionManager(runner)

	ran := false
	require.NoError(t, tx.WithinTransaction(context.Background(), func(ctx context.Context) error {
		ran = true
		return nil
	}))
	assert.True(t, ran)
	assert.Equal(t, 1, runner.calls)

	boom := errors.New("boom")
	err := tx.WithinTransaction(context.Background(), func(ctx context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, runner.calls)
}
