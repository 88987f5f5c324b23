package allocator

import (
	"context"
	"sync"
	"testing"

	"github.com/anjiri1684/studio_booking/apperr"
	"github.com/anjiri1684/studio_booking/database/dbtest"
	"github.com/anjiri1684/studio_booking/logger"
	"github.com/anjiri1684/studio_booking/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type recordingEscalator struct {
	messages []string
}

func (r *recordingEscalator) Fatal(_ context.Context, msg string, err error, _ logrus.Fields) error {
	r.messages = append(r.messages, msg)
	return apperr.Wrap(apperr.FatalInconsistency, msg, err)
}

func newTestService(t *testing.T) (*Service, *gorm.DB, *recordingEscalator) {
	t.Helper()
	db := dbtest.Open(t)
	esc := &recordingEscalator{}
	return NewService(db, logger.Discard(), esc), db, esc
}

func seedBucket(t *testing.T, db *gorm.DB, inv models.Inventory) models.Slot {
	t.Helper()
	slot := models.Slot{
		StudioID:    uuid.New(),
		Date:        "2030-06-03",
		StartTime:   "09:00",
		EndTime:     "10:00",
		Equipment:   datatypes.NewJSONType(inv),
		Quantity:    inv.Total(),
		IsAvailable: true,
	}
	require.NoError(t, db.Create(&slot).Error)
	return slot
}

func reload(t *testing.T, db *gorm.DB, id uuid.UUID) models.Slot {
	t.Helper()
	var slot models.Slot
	require.NoError(t, db.First(&slot, "id = ?", id).Error)
	return slot
}

func TestExtractLeavesRemainderInBucket(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()
	bucket := seedBucket(t, db, models.Inventory{{Name: "Reformer", Count: 5}, {Name: "Chair", Count: 2}})

	ext, err := svc.Extract(ctx, bucket.ID, "reformer", 3)
	require.NoError(t, err)

	b := reload(t, db, bucket.ID)
	assert.Equal(t, 2, b.Inventory().Count("Reformer"))
	assert.Equal(t, 4, b.Quantity)
	assert.True(t, b.IsAvailable)
	assert.Equal(t, bucket.Version+1, b.Version)

	got := reload(t, db, ext.Slot.ID)
	assert.False(t, got.IsAvailable)
	assert.Equal(t, 3, got.Quantity)
	assert.Equal(t, models.Inventory{{Name: "Reformer", Count: 3}}, got.Inventory())
	require.NotNil(t, got.SourceSlotID)
	assert.Equal(t, bucket.ID, *got.SourceSlotID)
	assert.Equal(t, "Reformer", ext.Equipment)

	var extracted int64
	require.NoError(t, db.Model(&models.Slot{}).Where("source_slot_id = ?", bucket.ID).Count(&extracted).Error)
	assert.EqualValues(t, 1, extracted)
}

func TestExtractEmptiesBucket(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()
	bucket := seedBucket(t, db, models.Inventory{{Name: "Reformer", Count: 2}, {Name: "Chair", Count: 1}})

	_, err := svc.Extract(ctx, bucket.ID, "Reformer", 2)
	require.NoError(t, err)
	b := reload(t, db, bucket.ID)
	assert.Equal(t, models.Inventory{{Name: "Chair", Count: 1}}, b.Inventory())

	_, err = svc.Extract(ctx, bucket.ID, "Chair", 1)
	require.NoError(t, err)
	b = reload(t, db, bucket.ID)
	assert.Equal(t, 0, b.Quantity)
	assert.False(t, b.IsAvailable)

	_, err = svc.Extract(ctx, bucket.ID, "Chair", 1)
	assert.Equal(t, apperr.InsufficientInventory, apperr.CodeOf(err))
}

func TestExtractShortInventory(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()
	bucket := seedBucket(t, db, models.Inventory{{Name: "Reformer", Count: 2}})

	_, err := svc.Extract(ctx, bucket.ID, "Reformer", 3)
	assert.Equal(t, apperr.InsufficientInventory, apperr.CodeOf(err))
	_, err = svc.Extract(ctx, bucket.ID, "Cadillac", 1)
	assert.Equal(t, apperr.InsufficientInventory, apperr.CodeOf(err))
	_, err = svc.Extract(ctx, uuid.New(), "Reformer", 1)
	assert.Equal(t, apperr.NotFound, apperr.CodeOf(err))
	_, err = svc.Extract(ctx, bucket.ID, "Reformer", 0)
	assert.Equal(t, apperr.ValidationError, apperr.CodeOf(err))

	assert.Equal(t, 2, reload(t, db, bucket.ID).Quantity)
}

func TestExtractRetriesWhenVersionMoves(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()
	bucket := seedBucket(t, db, models.Inventory{{Name: "Reformer", Count: 5}})

	// A competing booking takes one unit between our read and our write.
	raced := false
	name := "test:race_" + uuid.NewString()
	require.NoError(t, db.Callback().Update().Before("gorm:update").Register(name, func(tx *gorm.DB) {
		if raced || tx.Statement.Table != "slots" {
			return
		}
		raced = true
		rival := models.Inventory{{Name: "Reformer", Count: 4}}
		db.Exec("UPDATE slots SET equipment = ?, quantity = 4, version = version + 1 WHERE id = ?",
			datatypes.NewJSONType(rival), bucket.ID)
	}))
	t.Cleanup(func() { _ = db.Callback().Update().Remove(name) })

	_, err := svc.Extract(ctx, bucket.ID, "Reformer", 3)
	require.NoError(t, err)

	b := reload(t, db, bucket.ID)
	assert.Equal(t, 1, b.Inventory().Count("Reformer"))
	assert.Equal(t, 2, b.Version)
}

func TestConcurrentExtractsNeverOversell(t *testing.T) {
	db := dbtest.OpenFile(t)
	svc := NewService(db, logger.Discard(), &recordingEscalator{})
	ctx := context.Background()

	for round := 0; round < 10; round++ {
		bucket := seedBucket(t, db, models.Inventory{{Name: "Reformer", Count: 5}})

		start := make(chan struct{})
		errs := make([]error, 2)
		var wg sync.WaitGroup
		for i := range errs {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				<-start
				_, errs[i] = svc.Extract(ctx, bucket.ID, "Reformer", 3)
			}(i)
		}
		close(start)
		wg.Wait()

		won := 0
		for _, err := range errs {
			if err == nil {
				won++
				continue
			}
			code := apperr.CodeOf(err)
			assert.Contains(t, []apperr.Code{apperr.InsufficientInventory, apperr.SlotConflict}, code, err.Error())
		}
		require.Equal(t, 1, won, "round %d", round)

		b := reload(t, db, bucket.ID)
		assert.Equal(t, 2, b.Inventory().Count("Reformer"))
		assert.Equal(t, 2, b.Quantity)

		var extracted int64
		require.NoError(t, db.Model(&models.Slot{}).Where("source_slot_id = ?", bucket.ID).Count(&extracted).Error)
		assert.Equal(t, int64(1), extracted)
	}
}

func TestExtractRestoresBucketWhenInsertFails(t *testing.T) {
	svc, db, esc := newTestService(t)
	ctx := context.Background()
	bucket := seedBucket(t, db, models.Inventory{{Name: "Reformer", Count: 5}})

	stop := dbtest.FailCreates(t, db, "slots")
	_, err := svc.Extract(ctx, bucket.ID, "Reformer", 3)
	stop()

	require.Error(t, err)
	assert.ErrorIs(t, err, dbtest.ErrInjected)
	assert.Empty(t, esc.messages)
	assert.Equal(t, 5, reload(t, db, bucket.ID).Inventory().Count("Reformer"))
}

func TestExtractEscalatesWhenRestoreFails(t *testing.T) {
	svc, db, esc := newTestService(t)
	ctx := context.Background()
	bucket := seedBucket(t, db, models.Inventory{{Name: "Reformer", Count: 5}})

	stopCreates := dbtest.FailCreates(t, db, "slots")
	stopUpdates := dbtest.FailUpdatesAfter(t, db, "slots", 1)
	_, err := svc.Extract(ctx, bucket.ID, "Reformer", 3)
	stopCreates()
	stopUpdates()

	assert.Equal(t, apperr.FatalInconsistency, apperr.CodeOf(err))
	assert.Len(t, esc.messages, 1)
}

func TestSplitCarvesFragments(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()
	bucket := seedBucket(t, db, models.Inventory{{Name: "Reformer", Count: 5}})
	ext, err := svc.Extract(ctx, bucket.ID, "Reformer", 2)
	require.NoError(t, err)

	fragments, err := svc.Split(ctx, ext.Slot.ID, "09:15", "09:45")
	require.NoError(t, err)
	require.Len(t, fragments, 2)

	assert.Equal(t, "09:00", fragments[0].StartTime)
	assert.Equal(t, "09:15", fragments[0].EndTime)
	assert.Equal(t, "09:45", fragments[1].StartTime)
	assert.Equal(t, "10:00", fragments[1].EndTime)
	for _, f := range fragments {
		got := reload(t, db, f.ID)
		assert.True(t, got.IsAvailable)
		assert.Equal(t, 2, got.Quantity)
	}

	booked := reload(t, db, ext.Slot.ID)
	assert.Equal(t, "09:15", booked.StartTime)
	assert.Equal(t, "09:45", booked.EndTime)
	assert.False(t, booked.IsAvailable)
}

func TestSplitEdges(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()
	bucket := seedBucket(t, db, models.Inventory{{Name: "Reformer", Count: 5}})
	ext, err := svc.Extract(ctx, bucket.ID, "Reformer", 1)
	require.NoError(t, err)

	fragments, err := svc.Split(ctx, ext.Slot.ID, "09:00", "10:00")
	require.NoError(t, err)
	assert.Empty(t, fragments)

	_, err = svc.Split(ctx, ext.Slot.ID, "08:30", "09:30")
	assert.Equal(t, apperr.ValidationError, apperr.CodeOf(err))

	fragments, err = svc.Split(ctx, ext.Slot.ID, "09:00", "09:30")
	require.NoError(t, err)
	require.Len(t, fragments, 1)
	assert.Equal(t, "09:30", fragments[0].StartTime)
}

func TestSplitDropsFragmentsWhenNarrowingFails(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()
	bucket := seedBucket(t, db, models.Inventory{{Name: "Reformer", Count: 5}})
	ext, err := svc.Extract(ctx, bucket.ID, "Reformer", 1)
	require.NoError(t, err)

	stop := dbtest.FailUpdates(t, db, "slots")
	_, err = svc.Split(ctx, ext.Slot.ID, "09:15", "09:45")
	stop()
	require.Error(t, err)

	var n int64
	require.NoError(t, db.Model(&models.Slot{}).Count(&n).Error)
	assert.EqualValues(t, 2, n)
	assert.Equal(t, "09:00", reload(t, db, ext.Slot.ID).StartTime)
}

func TestReleaseIsIdempotentAndConservesUnits(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()
	bucket := seedBucket(t, db, models.Inventory{{Name: "Reformer", Count: 5}})
	ext, err := svc.Extract(ctx, bucket.ID, "Reformer", 3)
	require.NoError(t, err)

	n, err := svc.Release(ctx, []uuid.UUID{ext.Slot.ID})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = svc.Release(ctx, []uuid.UUID{ext.Slot.ID})
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)

	var slots []models.Slot
	require.NoError(t, db.Where("is_available = ?", true).Find(&slots).Error)
	total := 0
	for _, s := range slots {
		total += s.Inventory().Count("Reformer")
	}
	assert.Equal(t, 5, total)
}

func TestRestoreUndoesExtraction(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()
	bucket := seedBucket(t, db, models.Inventory{{Name: "Reformer", Count: 5}})
	ext, err := svc.Extract(ctx, bucket.ID, "Reformer", 3)
	require.NoError(t, err)
	fragments, err := svc.Split(ctx, ext.Slot.ID, "09:30", "10:00")
	require.NoError(t, err)
	for _, f := range fragments {
		ext.Fragments = append(ext.Fragments, f.ID)
	}

	require.NoError(t, svc.Restore(ctx, ext))

	var n int64
	require.NoError(t, db.Model(&models.Slot{}).Count(&n).Error)
	assert.EqualValues(t, 1, n)
	assert.Equal(t, 5, reload(t, db, bucket.ID).Inventory().Count("Reformer"))
}
