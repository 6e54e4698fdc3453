package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mail-dispatch/internal/logger"
)

func TestMilestones(t *testing.T) {
	tests := []struct {
		prev, curr int
		want       []int
	}{
		{0, 499, nil},
		{0, 500, []int{500}},
		{499, 501, []int{500}},
		{500, 999, nil},
		{500, 1000, []int{1000}},
		{0, 1500, []int{500, 1000, 1500}},
		{10, 10, nil},
		{0, 0, nil},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, Milestones(tc.prev, tc.curr, 500), "prev=%d curr=%d", tc.prev, tc.curr)
	}
	assert.Nil(t, Milestones(0, 10, 0))
}

func TestReporter_SummaryLifecycle(t *testing.T) {
	store := &fakeStore{}
	r := NewReporter(ReporterOptions{Store: store, Log: logger.Nop()})
	ctx := context.Background()

	r.Begin(ctx, "run-1", 10)
	s := r.Summary()
	assert.Equal(t, "run-1", s.RunID)
	assert.Equal(t, 10, s.Remaining)
	assert.False(t, s.Done)

	r.OnWindow(ctx, RunState{Sent: 3, Failed: 1, Processed: 4, Windows: 1})
	s = r.Summary()
	assert.Equal(t, "Sent: 3 | Remaining: 6 | Failed: 1", s.Title())
	assert.Equal(t, 1, s.Windows)

	final := r.Finish(ctx, Totals{Sent: 8, Failed: 2, Processed: 10})
	assert.True(t, final.Done)
	assert.Equal(t, 0, final.Remaining)

	require.Len(t, store.history, 3)
	got, err := store.GetStatus(ctx, "run-1")
	require.NoError(t, err)
	assert.True(t, got.Done)
}

func TestReporter_StoreErrorIgnored(t *testing.T) {
	r := NewReporter(ReporterOptions{Store: &fakeStore{err: errors.New("down")}, Log: logger.Nop()})
	r.Begin(context.Background(), "run-1", 1)
	r.OnWindow(context.Background(), RunState{Sent: 1, Processed: 1})
	assert.Equal(t, 1, r.Summary().Sent)
}

func TestReporter_OnMilestone(t *testing.T) {
	n := &fakeNotifier{}
	r := NewReporter(ReporterOptions{Every: 500, Notifier: n, Log: logger.Nop()})

	r.OnMilestone(context.Background(), 0, 499)
	r.OnMilestone(context.Background(), 499, 500)
	r.OnMilestone(context.Background(), 500, 998)
	r.OnMilestone(context.Background(), 998, 1003)

	assert.Equal(t, []string{"📧 500 emails sent", "📧 1000 emails sent"}, n.calls())
}

func TestReporter_NotifierErrorSuppressed(t *testing.T) {
	n := &fakeNotifier{err: errors.New("telegram down")}
	r := NewReporter(ReporterOptions{Every: 2, Notifier: n, Log: logger.Nop()})

	assert.NotPanics(t, func() { r.OnMilestone(context.Background(), 0, 4) })
	assert.Len(t, n.calls(), 2)
}

func TestReporter_ConcurrentSummary(t *testing.T) {
	r := NewReporter(ReporterOptions{Log: logger.Nop()})
	r.Begin(context.Background(), "run-1", 100)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 1; i <= 100; i++ {
			r.OnWindow(context.Background(), RunState{Sent: i, Processed: i, Windows: i})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			s := r.Summary()
			assert.Equal(t, s.Total, s.Sent+s.Remaining)
		}
	}()
	wg.Wait()
}

func TestDispatcher_MilestoneFailureKeepsCounts(t *testing.T) {
	n := &fakeNotifier{err: errors.New("telegram down")}
	f := newFixture(t, 7, []string{"S"})
	f.opts.Progress = NewReporter(ReporterOptions{Every: 500, Notifier: n, Log: logger.Nop()})

	totals, err := f.run(t, context.Background(), makeRecipients(1001))
	require.NoError(t, err)

	assert.Equal(t, Totals{Sent: 1001, Processed: 1001}, totals)
	assert.Equal(t, []string{"📧 500 emails sent", "📧 1000 emails sent"}, n.calls())
}
