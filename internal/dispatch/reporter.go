// internal/dispatch/reporter.go
// 進度回報 - 即時狀態摘要與里程碑通知

package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"mail-dispatch/internal/metrics"
	"mail-dispatch/internal/models"
	"mail-dispatch/internal/services"
)

// DefaultMilestoneEvery 預設每 500 封成功發送通知一次
const DefaultMilestoneEvery = 500

// ReporterOptions Reporter 設定
type ReporterOptions struct {
	Every    int
	Notifier services.Notifier    // 可選
	Store    services.StatusStore // 可選
	Log      zerolog.Logger
}

// Reporter 實作 Progress
// Summary 可被其他 goroutine (例如狀態 API) 同時讀取
type Reporter struct {
	every    int
	notifier services.Notifier
	store    services.StatusStore
	log      zerolog.Logger

	mu      sync.RWMutex
	summary models.StatusSummary
}

// NewReporter 建立 Reporter
func NewReporter(opts ReporterOptions) *Reporter {
	if opts.Every <= 0 {
		opts.Every = DefaultMilestoneEvery
	}
	return &Reporter{
		every:    opts.Every,
		notifier: opts.Notifier,
		store:    opts.Store,
		log:      opts.Log.With().Str("component", "reporter").Logger(),
	}
}

// Begin 開始新的發送作業
func (r *Reporter) Begin(ctx context.Context, runID string, total int) {
	now := time.Now().UTC()
	r.mu.Lock()
	r.summary = models.StatusSummary{
		RunID:     runID,
		Total:     total,
		Remaining: total,
		StartedAt: now,
		UpdatedAt: now,
	}
	s := r.summary
	r.mu.Unlock()

	r.save(ctx, s)
}

// OnWindow 批次結算後更新狀態摘要
func (r *Reporter) OnWindow(ctx context.Context, state RunState) {
	r.mu.Lock()
	r.summary.Sent = state.Sent
	r.summary.Failed = state.Failed
	r.summary.Windows = state.Windows
	r.summary.Remaining = max(r.summary.Total-state.Processed, 0)
	r.summary.UpdatedAt = time.Now().UTC()
	s := r.summary
	r.mu.Unlock()

	r.log.Debug().Str("status", s.Title()).Msg("status updated")
	r.save(ctx, s)
}

// OnMilestone 成功數從 prev 增加到 curr 時，每跨過一個門檻發送一則通知
// 通知失敗只記錄 log，不影響發送
func (r *Reporter) OnMilestone(ctx context.Context, prev, curr int) {
	for _, m := range Milestones(prev, curr, r.every) {
		text := fmt.Sprintf("📧 %d emails sent", m)
		if r.notifier == nil {
			r.log.Info().Int("sent", m).Msg("milestone reached")
			continue
		}
		if err := r.notifier.Notify(ctx, text); err != nil {
			metrics.IncNotification("failure")
			r.log.Warn().Err(err).Int("sent", m).Msg("failed to send milestone notification")
			continue
		}
		metrics.IncNotification("success")
		r.log.Info().Int("sent", m).Msg("milestone notification sent")
	}
}

// Milestones 回傳 (prev, curr] 區間內 every 的正整數倍
func Milestones(prev, curr, every int) []int {
	if every <= 0 || curr <= prev {
		return nil
	}
	var out []int
	for m := (prev/every + 1) * every; m <= curr; m += every {
		if m > 0 {
			out = append(out, m)
		}
	}
	return out
}

// Summary 回傳目前狀態摘要
func (r *Reporter) Summary() models.StatusSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.summary
}

// Finish 標記作業完成
func (r *Reporter) Finish(ctx context.Context, totals Totals) models.StatusSummary {
	r.mu.Lock()
	r.summary.Sent = totals.Sent
	r.summary.Failed = totals.Failed
	r.summary.Remaining = max(r.summary.Total-totals.Processed, 0)
	r.summary.Done = true
	r.summary.UpdatedAt = time.Now().UTC()
	s := r.summary
	r.mu.Unlock()

	r.save(ctx, s)
	return s
}

func (r *Reporter) save(ctx context.Context, s models.StatusSummary) {
	if r.store == nil {
		return
	}
	if err := r.store.SetStatus(ctx, s); err != nil {
		r.log.Warn().Err(err).Msg("failed to save status")
	}
}
