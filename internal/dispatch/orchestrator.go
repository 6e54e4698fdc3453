// internal/dispatch/orchestrator.go
// 發送作業流程 - 載入輸入、建立傳輸池、執行批次發送並回傳結果

package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"mail-dispatch/internal/loader"
	"mail-dispatch/internal/models"
	"mail-dispatch/internal/render"
	"mail-dispatch/internal/services"
)

// 中止發送的階段
const (
	StageConfig     = "config"
	StageSubjects   = "subjects"
	StageTemplate   = "template"
	StageRecipients = "recipients"
	StageTransport  = "transport"
)

// FatalError 發送開始前的錯誤，發生時不會送出任何郵件
type FatalError struct {
	Stage string
	Err   error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

func fatal(stage string, err error) error {
	return &FatalError{Stage: stage, Err: err}
}

// Sources 發送作業的輸入來源
type Sources interface {
	Subjects() ([]string, error)
	Template() (string, error)
	Recipients() ([]models.Recipient, error)
}

// FileSources 從本機檔案載入輸入
type FileSources struct {
	SubjectsPath   string
	TemplatesDir   string
	TemplateName   string
	RecipientsPath string
	Log            zerolog.Logger
}

func (s *FileSources) Subjects() ([]string, error) {
	return loader.LoadSubjects(s.SubjectsPath)
}

func (s *FileSources) Template() (string, error) {
	return loader.LoadTemplate(s.TemplatesDir, s.TemplateName)
}

// Recipients 載入收件人，格式錯誤的列只記錄 log
func (s *FileSources) Recipients() ([]models.Recipient, error) {
	recipients, rejected, err := loader.LoadRecipients(s.RecipientsPath)
	for _, re := range rejected {
		s.Log.Warn().Int("line", re.Line).Str("reason", re.Reason).Msg("recipient row rejected")
	}
	if err != nil {
		return nil, err
	}
	if len(rejected) > 0 {
		s.Log.Warn().Int("rejected", len(rejected)).Int("accepted", len(recipients)).Msg("recipient file has invalid rows")
	}
	return recipients, nil
}

// OrchestratorOptions Orchestrator 設定
type OrchestratorOptions struct {
	Job      models.DispatchJob
	Identity IdentityConfig
	Hosts    []string
	Factory  services.TransportFactory
	Headers  map[string]string

	RunID    string                    // 空字串時自動產生
	Reporter *Reporter                 // 可選
	Outcomes services.OutcomePublisher // 可選
	Log      zerolog.Logger
}

// Orchestrator 組合載入、傳輸池、Dispatcher 與 Reporter
type Orchestrator struct {
	opts     OrchestratorOptions
	reporter *Reporter
	log      zerolog.Logger
}

// NewOrchestrator 建立 Orchestrator
func NewOrchestrator(opts OrchestratorOptions) *Orchestrator {
	reporter := opts.Reporter
	if reporter == nil {
		reporter = NewReporter(ReporterOptions{Every: opts.Job.MilestoneEvery, Log: opts.Log})
	}
	return &Orchestrator{
		opts:     opts,
		reporter: reporter,
		log:      opts.Log.With().Str("component", "orchestrator").Logger(),
	}
}

// Reporter 回傳使用中的 Reporter
func (o *Orchestrator) Reporter() *Reporter { return o.reporter }

// Run 執行一次完整的發送作業
// 載入或建立傳輸失敗時回傳 *FatalError；ctx 取消時回傳已完成的統計與 ctx.Err()
func (o *Orchestrator) Run(ctx context.Context, src Sources) (Totals, error) {
	job := o.opts.Job

	if job.Concurrency <= 0 {
		return Totals{}, fatal(StageConfig, fmt.Errorf("concurrency must be > 0, got %d", job.Concurrency))
	}
	if job.Delay < 0 {
		return Totals{}, fatal(StageConfig, fmt.Errorf("delay must be >= 0, got %s", job.Delay))
	}
	identities, err := NewIdentityPolicy(o.opts.Identity, job.RotationEnabled)
	if err != nil {
		return Totals{}, fatal(StageConfig, err)
	}

	subjects, err := src.Subjects()
	if err != nil {
		return Totals{}, fatal(StageSubjects, err)
	}
	if len(subjects) == 0 {
		return Totals{}, fatal(StageSubjects, loader.ErrNoSubjects)
	}

	tpl, err := src.Template()
	if err != nil {
		return Totals{}, fatal(StageTemplate, err)
	}
	renderer, err := render.New(job.TemplateEngine, tpl)
	if err != nil {
		return Totals{}, fatal(StageTemplate, err)
	}

	recipients, err := src.Recipients()
	if err != nil {
		return Totals{}, fatal(StageRecipients, err)
	}
	if len(recipients) == 0 {
		return Totals{}, fatal(StageRecipients, loader.ErrNoRecipients)
	}

	hosts := o.opts.Hosts
	if !job.RotationEnabled && len(hosts) > 1 {
		hosts = hosts[:1]
	}
	pool, err := services.NewTransportPool(hosts, o.opts.Factory)
	if err != nil {
		return Totals{}, fatal(StageTransport, err)
	}
	defer func() {
		if err := pool.Close(); err != nil {
			o.log.Warn().Err(err).Msg("failed to close transports")
		}
	}()

	runID := o.opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	d, err := NewDispatcher(Options{
		RunID:           runID,
		Subjects:        subjects,
		Identities:      identities,
		Transports:      pool,
		Renderer:        renderer,
		Concurrency:     job.Concurrency,
		Delay:           job.Delay,
		RotationEnabled: job.RotationEnabled,
		Headers:         o.opts.Headers,
		Progress:        o.reporter,
		Outcomes:        o.opts.Outcomes,
		Log:             o.opts.Log,
	})
	if err != nil {
		return Totals{}, fatal(StageConfig, err)
	}

	o.log.Info().
		Str("run_id", runID).
		Int("recipients", len(recipients)).
		Int("subjects", len(subjects)).
		Int("identities", identities.Len()).
		Str("identity_policy", identities.Kind()).
		Int("hosts", pool.Len()).
		Int("concurrency", job.Concurrency).
		Dur("delay", job.Delay).
		Bool("rotation", job.RotationEnabled).
		Msg("dispatch started")

	o.reporter.Begin(ctx, runID, len(recipients))
	totals, runErr := d.Run(ctx, recipients)
	summary := o.reporter.Finish(context.WithoutCancel(ctx), totals)

	o.log.Info().
		Str("run_id", runID).
		Int("sent", totals.Sent).
		Int("failed", totals.Failed).
		Int("remaining", summary.Remaining).
		Msg("dispatch finished")

	if runErr != nil && !errors.Is(runErr, context.Canceled) && !errors.Is(runErr, context.DeadlineExceeded) {
		return totals, fmt.Errorf("dispatch failed: %w", runErr)
	}
	return totals, runErr
}
