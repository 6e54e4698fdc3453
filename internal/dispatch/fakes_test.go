package dispatch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"mail-dispatch/internal/models"
	"mail-dispatch/internal/services"
)

// fakeSender 記錄收到的郵件，fail 回傳錯誤時視為發送失敗
type fakeSender struct {
	name  string
	fail  func(msg *models.OutgoingMessage) error
	delay time.Duration

	mu   sync.Mutex
	sent []*models.OutgoingMessage

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func (f *fakeSender) SendMail(_ context.Context, msg *models.OutgoingMessage) error {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		m := f.maxInFlight.Load()
		if n <= m || f.maxInFlight.CompareAndSwap(m, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	f.sent = append(f.sent, msg)
	f.mu.Unlock()

	if f.fail != nil {
		return f.fail(msg)
	}
	return nil
}

func (f *fakeSender) Name() string { return f.name }

func (f *fakeSender) messages() []*models.OutgoingMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*models.OutgoingMessage(nil), f.sent...)
}

// fakeTransports 以相同 sender 服務所有主機
type fakeTransports struct {
	hosts  []string
	sender services.MailSender
}

func (f *fakeTransports) Len() int                        { return len(f.hosts) }
func (f *fakeTransports) Host(slot int) string            { return f.hosts[slot] }
func (f *fakeTransports) ForSlot(int) services.MailSender { return f.sender }

type fakeNotifier struct {
	err error

	mu    sync.Mutex
	texts []string
}

func (f *fakeNotifier) Notify(_ context.Context, text string) error {
	f.mu.Lock()
	f.texts = append(f.texts, text)
	f.mu.Unlock()
	return f.err
}

func (f *fakeNotifier) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

type fakeStore struct {
	mu      sync.Mutex
	history []models.StatusSummary
	err     error
}

func (f *fakeStore) SetStatus(_ context.Context, s models.StatusSummary) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.history = append(f.history, s)
	return f.err
}

func (f *fakeStore) GetStatus(_ context.Context, runID string) (*models.StatusSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.history) - 1; i >= 0; i-- {
		if f.history[i].RunID == runID {
			s := f.history[i]
			return &s, nil
		}
	}
	return nil, services.ErrStatusNotFound
}

type fakePublisher struct {
	mu       sync.Mutex
	outcomes []models.Outcome
	err      error
}

func (f *fakePublisher) PublishOutcome(_ context.Context, o models.Outcome) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes = append(f.outcomes, o)
	return f.err
}

// recordingProgress 記錄每個批次結算後的狀態
type recordingProgress struct {
	states     []RunState
	milestones [][2]int
	onWindow   func(RunState)
}

func (p *recordingProgress) OnWindow(_ context.Context, s RunState) {
	p.states = append(p.states, s)
	if p.onWindow != nil {
		p.onWindow(s)
	}
}

func (p *recordingProgress) OnMilestone(_ context.Context, prev, curr int) {
	p.milestones = append(p.milestones, [2]int{prev, curr})
}

func makeRecipients(n int) []models.Recipient {
	out := make([]models.Recipient, n)
	for i := range out {
		out[i] = models.Recipient{Name: fmt.Sprintf("User %d", i), Email: fmt.Sprintf("user%d@example.org", i)}
	}
	return out
}
