package dispatch

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mail-dispatch/internal/logger"
	"mail-dispatch/internal/models"
	"mail-dispatch/internal/render"
)

type dispatchFixture struct {
	sender    *fakeSender
	progress  *recordingProgress
	publisher *fakePublisher
	opts      Options
}

func newFixture(t *testing.T, concurrency int, subjects []string) *dispatchFixture {
	t.Helper()
	identities, err := NewIdentityPolicy(IdentityConfig{Names: []string{"Billing"}, Email: "noreply@example.com"}, false)
	require.NoError(t, err)

	f := &dispatchFixture{
		sender:    &fakeSender{name: "fake"},
		progress:  &recordingProgress{},
		publisher: &fakePublisher{},
	}
	f.opts = Options{
		RunID:       "run-test",
		Subjects:    subjects,
		Identities:  identities,
		Transports:  &fakeTransports{hosts: []string{"relay-a"}, sender: f.sender},
		Renderer:    render.NewPlaceholder("<p>Hello %name%</p>"),
		Concurrency: concurrency,
		Progress:    f.progress,
		Outcomes:    f.publisher,
		Log:         logger.Nop(),
	}
	return f
}

func (f *dispatchFixture) run(t *testing.T, ctx context.Context, recipients []models.Recipient) (Totals, error) {
	t.Helper()
	d, err := NewDispatcher(f.opts)
	require.NoError(t, err)
	return d.Run(ctx, recipients)
}

func TestDispatcher_WindowsAndSubjectRotation(t *testing.T) {
	f := newFixture(t, 3, []string{"S0", "S1"})

	totals, err := f.run(t, context.Background(), makeRecipients(7))
	require.NoError(t, err)
	assert.Equal(t, Totals{Sent: 7, Failed: 0, Processed: 7}, totals)

	// 批次大小 [3, 3, 1]
	require.Len(t, f.progress.states, 3)
	assert.Equal(t, []int{3, 6, 7}, []int{
		f.progress.states[0].Processed,
		f.progress.states[1].Processed,
		f.progress.states[2].Processed,
	})

	require.Len(t, f.publisher.outcomes, 7)
	var windows []int
	var subjects []string
	for i, o := range f.publisher.outcomes {
		assert.Equal(t, i, o.Index)
		assert.Equal(t, "user"+string(rune('0'+i))+"@example.org", o.Email)
		windows = append(windows, o.Window)
		subjects = append(subjects, o.Subject)
	}
	assert.Equal(t, []int{1, 1, 1, 2, 2, 2, 3}, windows)
	// 每個批次開始時主旨游標為 (3*k) mod 2
	assert.Equal(t, []string{"S0", "S1", "S0", "S1", "S0", "S1", "S0"}, subjects)
}

func TestDispatcher_FailureIsolation(t *testing.T) {
	f := newFixture(t, 3, []string{"S"})
	f.sender.fail = func(msg *models.OutgoingMessage) error {
		if msg.To == "user1@example.org" {
			return errors.New("550 mailbox unavailable")
		}
		return nil
	}

	totals, err := f.run(t, context.Background(), makeRecipients(3))
	require.NoError(t, err)
	assert.Equal(t, Totals{Sent: 2, Failed: 1, Processed: 3}, totals)

	out := f.publisher.outcomes
	require.Len(t, out, 3)
	assert.Equal(t, models.OutcomeDelivered, out[0].Status)
	assert.Equal(t, models.OutcomeFailed, out[1].Status)
	assert.Equal(t, "550 mailbox unavailable", out[1].Reason)
	assert.Equal(t, models.OutcomeDelivered, out[2].Status)
}

func TestDispatcher_CountersInvariant(t *testing.T) {
	f := newFixture(t, 4, []string{"S"})
	f.sender.fail = func(msg *models.OutgoingMessage) error {
		if strings.HasPrefix(msg.To, "user1") {
			return errors.New("rejected")
		}
		return nil
	}

	totals, err := f.run(t, context.Background(), makeRecipients(25))
	require.NoError(t, err)
	assert.Equal(t, 25, totals.Processed)
	assert.Equal(t, totals.Processed, totals.Sent+totals.Failed)

	prevSent, prevFailed := 0, 0
	for _, s := range f.progress.states {
		assert.Equal(t, s.Processed, s.Sent+s.Failed)
		assert.GreaterOrEqual(t, s.Sent, prevSent)
		assert.GreaterOrEqual(t, s.Failed, prevFailed)
		prevSent, prevFailed = s.Sent, s.Failed
	}
}

func TestDispatcher_BoundedConcurrency(t *testing.T) {
	f := newFixture(t, 3, []string{"S"})
	f.sender.delay = 15 * time.Millisecond

	_, err := f.run(t, context.Background(), makeRecipients(10))
	require.NoError(t, err)

	assert.LessOrEqual(t, int(f.sender.maxInFlight.Load()), 3)
	assert.Len(t, f.sender.messages(), 10)
}

func TestDispatcher_RotationDisabledUsesSameValues(t *testing.T) {
	f := newFixture(t, 2, []string{"Only subject"})

	_, err := f.run(t, context.Background(), makeRecipients(5))
	require.NoError(t, err)

	for _, msg := range f.sender.messages() {
		assert.Equal(t, "Only subject", msg.Subject)
		assert.Equal(t, "Billing", msg.FromName)
		assert.Equal(t, "noreply@example.com", msg.FromAddress)
	}
	for _, o := range f.publisher.outcomes {
		assert.Equal(t, "relay-a", o.Host)
	}
}

func TestDispatcher_RotatesIdentityAndHost(t *testing.T) {
	f := newFixture(t, 2, []string{"S"})
	identities, err := NewIdentityPolicy(IdentityConfig{Names: []string{"A", "B", "C"}, Email: "noreply@example.com"}, true)
	require.NoError(t, err)
	f.opts.Identities = identities
	f.opts.Transports = &fakeTransports{hosts: []string{"relay-a", "relay-b"}, sender: f.sender}
	f.opts.RotationEnabled = true

	_, err = f.run(t, context.Background(), makeRecipients(5))
	require.NoError(t, err)

	var names, hosts []string
	for _, o := range f.publisher.outcomes {
		names = append(names, o.FromName)
		hosts = append(hosts, o.Host)
	}
	assert.Equal(t, []string{"A", "B", "C", "A", "B"}, names)
	assert.Equal(t, []string{"relay-a", "relay-b", "relay-a", "relay-b", "relay-a"}, hosts)
}

func TestDispatcher_RendersPerRecipient(t *testing.T) {
	f := newFixture(t, 2, []string{"S"})

	_, err := f.run(t, context.Background(), []models.Recipient{{Email: "anon@example.org"}})
	require.NoError(t, err)

	msgs := f.sender.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "<p>Hello anon@example.org</p>", msgs[0].HTML)
}

func TestDispatcher_CancelBetweenWindows(t *testing.T) {
	f := newFixture(t, 2, []string{"S"})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.progress.onWindow = func(RunState) { cancel() }

	totals, err := f.run(t, ctx, makeRecipients(6))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, Totals{Sent: 2, Processed: 2}, totals)
	assert.Len(t, f.sender.messages(), 2)
}

func TestDispatcher_Delay(t *testing.T) {
	f := newFixture(t, 2, []string{"S"})
	f.opts.Delay = 20 * time.Millisecond

	began := time.Now()
	_, err := f.run(t, context.Background(), makeRecipients(5))
	require.NoError(t, err)

	// 三個批次之間有兩次延遲
	assert.GreaterOrEqual(t, time.Since(began), 40*time.Millisecond)
}

func TestDispatcher_PublishErrorDoesNotAffectCounts(t *testing.T) {
	f := newFixture(t, 2, []string{"S"})
	f.publisher.err = errors.New("channel closed")

	totals, err := f.run(t, context.Background(), makeRecipients(3))
	require.NoError(t, err)
	assert.Equal(t, Totals{Sent: 3, Processed: 3}, totals)
}

func TestDispatcher_EmptyRecipients(t *testing.T) {
	f := newFixture(t, 2, []string{"S"})

	totals, err := f.run(t, context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, Totals{}, totals)
	assert.Empty(t, f.progress.states)
}

func TestNewDispatcher_Invalid(t *testing.T) {
	_, err := NewDispatcher(Options{Log: logger.Nop()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "subject pool is empty")
	assert.Contains(t, err.Error(), "concurrency must be > 0")
}
