package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinSignal/internal/domain/models"
	domrepo "FinSignal/internal/domain/repository"
	"FinSignal/internal/repository"
)

func eqJob() Job {
	return Job{ID: "j1", ProfileID: "eq", Entities: []string{"MSFT", "AAPL", "AAPL"}, From: day(4), To: day(6)}
}

func TestJobItems(t *testing.T) {
	items, err := eqJob().Items()
	require.NoError(t, err)
	require.Len(t, items, 6)
	assert.Equal(t, models.ScoreKey{EntityID: "AAPL", Timestamp: day(4)}, items[0])
	assert.Equal(t, models.ScoreKey{EntityID: "AAPL", Timestamp: day(6)}, items[2])
	assert.Equal(t, models.ScoreKey{EntityID: "MSFT", Timestamp: day(4)}, items[3])
	for i := 1; i < len(items); i++ {
		assert.True(t, items[i-1].Less(items[i]))
	}

	single, err := Job{Entities: []string{"AAPL"}, From: day(3)}.Items()
	require.NoError(t, err)
	assert.Equal(t, []models.ScoreKey{{EntityID: "AAPL", Timestamp: day(3)}}, single)

	weekly, err := Job{Entities: []string{"AAPL"}, From: day(0), To: day(20), Step: domrepo.StepWeekly}.Items()
	require.NoError(t, err)
	assert.Len(t, weekly, 3)

	_, err = Job{Entities: []string{"AAPL"}, From: day(5), To: day(1)}.Items()
	assert.Error(t, err)
	_, err = Job{Entities: []string{"AAPL"}, From: day(1), Step: "1h"}.Items()
	assert.Error(t, err)
}

func TestBatchRunScoresEveryItem(t *testing.T) {
	f := newFixture(t, fixtureOptions{workers: 3})
	ctx := context.Background()

	report, err := f.batch.Run(ctx, eqJob())
	require.NoError(t, err)
	assert.Equal(t, 6, report.Total)
	assert.Equal(t, 6, report.Completed)
	assert.Equal(t, 0, report.Failed)
	assert.Equal(t, 3, report.Insufficient)
	assert.Equal(t, 3, report.Classes[models.Buy])
	assert.Equal(t, 3, report.Classes[models.Hold])
	assert.Equal(t, models.ScoreKey{EntityID: "MSFT", Timestamp: day(6)}, report.Watermark)
	assert.False(t, report.Resumed)

	scores := f.store.Scores()
	require.Len(t, scores, 6)
	assert.Equal(t, "AAPL", scores[0].EntityID)
	assert.InDelta(t, 0.5, scores[0].AdjustedScore, 1e-9)
	assert.Equal(t, models.RegimeNormal, scores[0].RegimeLevel)
	assert.True(t, scores[5].InsufficientData)

	_, ok, err := f.checkpoints.Load(ctx, "j1")
	require.NoError(t, err)
	assert.False(t, ok, "checkpoint cleared after a finished job")

	again, err := f.batch.Run(ctx, eqJob())
	require.NoError(t, err)
	assert.Equal(t, 6, again.Completed)
	assert.Len(t, f.store.Scores(), 6, "rerun overwrites rows")
}

func TestBatchRunHealthProfile(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	report, err := f.batch.Run(context.Background(), Job{ID: "h1", ProfileID: "macro", Entities: []string{"US"}, From: day(4)})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Completed)
	assert.Equal(t, 1, report.Grades[models.GradeModerate])

	hs := f.store.HealthScores()
	require.Len(t, hs, 1)
	require.NotNil(t, hs[0].Overall)
	assert.InDelta(t, 55.37, *hs[0].Overall, 0.05)
}

func TestBatchRunRecordsFailures(t *testing.T) {
	f := newFixture(t, fixtureOptions{provider: failingSeries("MSFT:macd")})

	report, err := f.batch.Run(context.Background(), eqJob())
	require.NoError(t, err)
	assert.Equal(t, 3, report.Completed)
	assert.Equal(t, 3, report.Failed)
	require.Len(t, report.Failures, 3)
	for i, fl := range report.Failures {
		assert.Equal(t, "MSFT", fl.Key.EntityID)
		assert.Equal(t, day(4+i), fl.Key.Timestamp)
		assert.Equal(t, StageFetch, fl.Stage)
		assert.ErrorIs(t, fl.Err, models.ErrProviderUnavailable)
	}
	assert.Equal(t, models.ScoreKey{EntityID: "MSFT", Timestamp: day(6)}, report.Watermark)
}

func TestBatchRunResumesAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := newFixture(t, fixtureOptions{
		workers: 1,
		sink: func(store *repository.MemoryStore) domrepo.CompositeScoreSink {
			return &hookSink{MemoryStore: store, onUpsert: func(n int32) {
				if n == 2 {
					cancel()
				}
			}}
		},
	})

	report, err := f.batch.Run(ctx, eqJob())
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)
	done := report.Completed
	assert.GreaterOrEqual(t, done, 2)
	assert.Less(t, done, 6)

	items, _ := eqJob().Items()
	cp, ok, err := f.checkpoints.Load(context.Background(), "j1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, items[done-1], cp.Watermark)
	assert.Equal(t, done, cp.Completed)

	resumed, err := f.batch.Run(context.Background(), eqJob())
	require.NoError(t, err)
	assert.True(t, resumed.Resumed)
	assert.Equal(t, done, resumed.Skipped)
	assert.Equal(t, 6-done, resumed.Completed)
	assert.Len(t, f.store.Scores(), 6)
}

func TestBatchRunFromStoredWatermark(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	ctx := context.Background()
	require.NoError(t, f.checkpoints.Save(ctx, models.Checkpoint{
		JobID:     "j1",
		Watermark: models.ScoreKey{EntityID: "AAPL", Timestamp: day(5)},
		Completed: 2,
	}))

	report, err := f.batch.Run(ctx, eqJob())
	require.NoError(t, err)
	assert.True(t, report.Resumed)
	assert.Equal(t, 2, report.Skipped)
	assert.Equal(t, 4, report.Completed)
	assert.Len(t, f.store.Scores(), 4)
}

func TestBatchRunRestartIgnoresCheckpoint(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	ctx := context.Background()
	require.NoError(t, f.checkpoints.Save(ctx, models.Checkpoint{
		JobID:     "j1",
		Watermark: models.ScoreKey{EntityID: "MSFT", Timestamp: day(6)},
	}))

	job := eqJob()
	job.Restart = true
	report, err := f.batch.Run(ctx, job)
	require.NoError(t, err)
	assert.False(t, report.Resumed)
	assert.Equal(t, 0, report.Skipped)
	assert.Equal(t, 6, report.Completed)
}

func TestBatchRunLocked(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	ctx := context.Background()
	ok, err := f.checkpoints.TryLock(ctx, "j1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	report, err := f.batch.Run(ctx, eqJob())
	assert.ErrorIs(t, err, models.ErrJobLocked)
	assert.Nil(t, report)
	assert.Empty(t, f.store.Scores())

	require.NoError(t, f.checkpoints.Unlock(ctx, "j1"))
	_, err = f.batch.Run(ctx, eqJob())
	assert.NoError(t, err)
}

func TestBatchRunRejectsBadJobs(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	ctx := context.Background()

	_, err := f.batch.Run(ctx, Job{ProfileID: "eq", Entities: []string{"AAPL"}, From: day(1)})
	assert.Error(t, err)

	_, err = f.batch.Run(ctx, Job{ID: "x", ProfileID: "nope", Entities: []string{"AAPL"}, From: day(1)})
	assert.ErrorIs(t, err, models.ErrProfileNotFound)

	_, err = f.batch.Run(ctx, Job{ID: "x", ProfileID: "eq", From: day(1)})
	assert.Error(t, err)
}

func TestTrackerWatermarkIsContiguous(t *testing.T) {
	items := []models.ScoreKey{
		{EntityID: "A", Timestamp: day(0)},
		{EntityID: "A", Timestamp: day(1)},
		{EntityID: "B", Timestamp: day(0)},
	}
	start := models.ScoreKey{EntityID: "0"}
	tr := newTracker(items, start)

	assert.False(t, tr.done(1))
	assert.Equal(t, start, tr.watermark)
	assert.True(t, tr.done(0))
	assert.Equal(t, items[1], tr.watermark)
	assert.Equal(t, 2, tr.completed)
	assert.True(t, tr.done(2))
	assert.Equal(t, items[2], tr.watermark)
}
