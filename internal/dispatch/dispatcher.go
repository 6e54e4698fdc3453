// internal/dispatch/dispatcher.go
// 批次發送 - 以固定大小的批次並行發送，批次之間依序執行

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"mail-dispatch/internal/metrics"
	"mail-dispatch/internal/models"
	"mail-dispatch/internal/render"
	"mail-dispatch/internal/services"
)

// Transports 依輪替位置取得傳輸
type Transports interface {
	Len() int
	Host(slot int) string
	ForSlot(slot int) services.MailSender
}

// Progress 接收每個批次結算後的狀態
type Progress interface {
	OnWindow(ctx context.Context, state RunState)
	OnMilestone(ctx context.Context, prev, curr int)
}

// Options Dispatcher 設定
type Options struct {
	RunID           string
	Subjects        []string
	Identities      IdentityPolicy
	Transports      Transports
	Renderer        render.Renderer
	Concurrency     int
	Delay           time.Duration
	RotationEnabled bool
	Headers         map[string]string

	Progress Progress                  // 可選
	Outcomes services.OutcomePublisher // 可選
	Log      zerolog.Logger
}

// Dispatcher 批次發送狀態機
// Windowing -> Settling -> Accounting -> Delaying -> Windowing ... -> Done
type Dispatcher struct {
	opts Options
	log  zerolog.Logger
}

// NewDispatcher 建立 Dispatcher
func NewDispatcher(opts Options) (*Dispatcher, error) {
	var errs []error
	if len(opts.Subjects) == 0 {
		errs = append(errs, errors.New("subject pool is empty"))
	}
	if opts.Identities == nil || opts.Identities.Len() < 1 {
		errs = append(errs, errors.New("identity policy is not configured"))
	}
	if opts.Transports == nil || opts.Transports.Len() < 1 {
		errs = append(errs, errors.New("transport pool is empty"))
	}
	if opts.Renderer == nil {
		errs = append(errs, errors.New("renderer is not configured"))
	}
	if opts.Concurrency <= 0 {
		errs = append(errs, fmt.Errorf("concurrency must be > 0, got %d", opts.Concurrency))
	}
	if opts.Delay < 0 {
		errs = append(errs, fmt.Errorf("delay must be >= 0, got %s", opts.Delay))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	return &Dispatcher{
		opts: opts,
		log:  opts.Log.With().Str("component", "dispatcher").Str("run_id", opts.RunID).Logger(),
	}, nil
}

// Run 依序處理所有收件人
// ctx 只在批次之間檢查，已開始的批次一定會完整結算
func (d *Dispatcher) Run(ctx context.Context, recipients []models.Recipient) (Totals, error) {
	state := NewRunState(len(d.opts.Subjects), d.opts.Identities.Len(), d.opts.Transports.Len())
	size := d.opts.Concurrency

	for start := 0; start < len(recipients); start += size {
		if err := ctx.Err(); err != nil {
			d.log.Warn().Int("processed", state.Processed).Msg("dispatch canceled")
			return state.Totals(), err
		}

		end := min(start+size, len(recipients))
		began := time.Now()

		// 批次開始後不再受取消影響，直到結算完成
		windowCtx := context.WithoutCancel(ctx)
		outcomes := d.settle(windowCtx, state, start, recipients[start:end])

		prev := state.Sent
		delivered, failed := 0, 0
		for _, o := range outcomes {
			state.Record(o)
			if o.Delivered() {
				delivered++
			} else {
				failed++
			}
			d.logOutcome(o)
			d.publish(windowCtx, o)
		}
		state.Windows++
		state.Rotation.Advance(size)

		metrics.AddMessages(delivered, failed)
		metrics.ObserveWindow(time.Since(began))

		d.log.Info().
			Int("window", state.Windows).
			Int("size", len(outcomes)).
			Int("delivered", delivered).
			Int("failed", failed).
			Int("sent_total", state.Sent).
			Int("failed_total", state.Failed).
			Int("remaining", len(recipients)-state.Processed).
			Dur("took", time.Since(began)).
			Msg("window settled")

		if d.opts.Progress != nil {
			d.opts.Progress.OnWindow(windowCtx, *state)
			d.opts.Progress.OnMilestone(windowCtx, prev, state.Sent)
		}

		if end < len(recipients) && d.opts.Delay > 0 {
			if err := sleep(ctx, d.opts.Delay); err != nil {
				d.log.Warn().Int("processed", state.Processed).Msg("dispatch canceled during delay")
				return state.Totals(), err
			}
		}
	}

	return state.Totals(), nil
}

// settle 並行發送一個批次，等待全部完成
// 結果依收件人在批次中的位置存放，與完成順序無關
func (d *Dispatcher) settle(ctx context.Context, state *RunState, start int, window []models.Recipient) []models.Outcome {
	outcomes := make([]models.Outcome, len(window))
	rot := state.Rotation
	windowNo := state.Windows + 1

	var wg sync.WaitGroup
	for i, r := range window {
		wg.Add(1)
		go func(i int, r models.Recipient) {
			defer wg.Done()
			outcomes[i] = d.sendOne(ctx, rot, i, r)
			outcomes[i].Index = start + i
			outcomes[i].Window = windowNo
		}(i, r)
	}
	wg.Wait()

	return outcomes
}

// sendOne 為單一收件人產生郵件並送出
func (d *Dispatcher) sendOne(ctx context.Context, rot Rotation, offset int, r models.Recipient) models.Outcome {
	subjectSlot := rot.Subject.Slot(offset)
	identitySlot := rot.Identity.Slot(offset)
	hostSlot := rot.Host.Slot(offset)

	id := d.opts.Identities.Identity(identitySlot, r)
	o := models.Outcome{
		RunID:        d.opts.RunID,
		Email:        r.Email,
		Subject:      d.opts.Subjects[subjectSlot],
		FromName:     id.Name,
		FromAddress:  id.Address,
		SubjectSlot:  subjectSlot,
		IdentitySlot: identitySlot,
		HostSlot:     hostSlot,
		Host:         d.opts.Transports.Host(hostSlot),
	}

	html, err := d.opts.Renderer.Render(r)
	if err != nil {
		return failedOutcome(o, fmt.Errorf("failed to render template: %w", err))
	}

	msg := &models.OutgoingMessage{
		FromName:    id.Name,
		FromAddress: id.Address,
		To:          r.Email,
		Subject:     o.Subject,
		HTML:        html,
		Headers:     d.opts.Headers,
	}

	if err := d.opts.Transports.ForSlot(hostSlot).SendMail(ctx, msg); err != nil {
		return failedOutcome(o, err)
	}

	o.Status = models.OutcomeDelivered
	o.At = time.Now().UTC()
	return o
}

func failedOutcome(o models.Outcome, err error) models.Outcome {
	o.Status = models.OutcomeFailed
	o.Reason = err.Error()
	o.At = time.Now().UTC()
	return o
}

func (d *Dispatcher) logOutcome(o models.Outcome) {
	var ev *zerolog.Event
	if o.Delivered() {
		ev = d.log.Info()
	} else {
		ev = d.log.Error().Str("err", o.Reason)
	}

	ev = ev.
		Int("index", o.Index).
		Str("email", o.Email).
		Str("status", string(o.Status)).
		Str("subject", o.Subject).
		Str("from", o.FromAddress)

	if d.opts.RotationEnabled {
		ev = ev.
			Int("subject_slot", o.SubjectSlot).
			Int("identity_slot", o.IdentitySlot).
			Int("host_slot", o.HostSlot).
			Str("host", o.Host)
	}

	ev.Msg("recipient processed")
}

func (d *Dispatcher) publish(ctx context.Context, o models.Outcome) {
	if d.opts.Outcomes == nil {
		return
	}
	if err := d.opts.Outcomes.PublishOutcome(ctx, o); err != nil {
		d.log.Warn().Err(err).Int("index", o.Index).Msg("failed to publish outcome")
	}
}

// sleep 等待 d 或 ctx 結束
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
