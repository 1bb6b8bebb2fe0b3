// Package poster は識字ポスター生成の HTTP API とその業務ロジックを提供します。
package poster

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/yourusername/literacy-poster/internal/jobs"
	"github.com/yourusername/literacy-poster/internal/kie"
	"github.com/yourusername/literacy-poster/internal/prompt"
)

const (
	DefaultAspectRatio  = "3:4"
	DefaultResolution   = "4K"
	DefaultOutputFormat = "png"

	defaultMaxBatchItems = 20
)

// WatchScheduler はバックグラウンド監視の投入先です。jobs.Manager が実装します。
type WatchScheduler interface {
	Enqueue(ctx context.Context, payload *jobs.WatchPayload) (string, error)
}

// Settings は Service の動作設定です。
type Settings struct {
	// APIKeyConfigured が false の場合、リモートを呼ぶ操作はすべて設定エラーになります。
	APIKeyConfigured bool
	Wait             jobs.WaitOptions
	MaxBatchItems    int
	CallbackURL      string
}

// Service はプロンプト生成・ジョブ作成・完了待ちを組み合わせます。
type Service struct {
	orch      *jobs.Orchestrator
	reader    jobs.StatusReader
	scheduler WatchScheduler
	settings  Settings
	logger    *zerolog.Logger
}

// ServiceOption は Service の任意設定です。
type ServiceOption func(*Service)

// WithScheduler は非同期生成時にバックグラウンド監視を投入するようにします。
func WithScheduler(s WatchScheduler) ServiceOption {
	return func(svc *Service) {
		svc.scheduler = s
	}
}

// WithServiceLogger はログ出力先を設定します。
func WithServiceLogger(logger *zerolog.Logger) ServiceOption {
	return func(svc *Service) {
		if logger != nil {
			svc.logger = logger
		}
	}
}

// NewService は Service を生成します。reader は単発の状態取得に使います。
func NewService(orch *jobs.Orchestrator, reader jobs.StatusReader, settings Settings, opts ...ServiceOption) *Service {
	if settings.MaxBatchItems <= 0 {
		settings.MaxBatchItems = defaultMaxBatchItems
	}
	nop := zerolog.Nop()
	svc := &Service{orch: orch, reader: reader, settings: settings, logger: &nop}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// GenerateRequest は1枚分の生成リクエストです。
type GenerateRequest struct {
	Theme        string `json:"theme"`
	Title        string `json:"title"`
	AspectRatio  string `json:"aspectRatio"`
	Resolution   string `json:"resolution"`
	OutputFormat string `json:"outputFormat"`
}

func (r GenerateRequest) normalize() (GenerateRequest, error) {
	r.Theme = strings.TrimSpace(r.Theme)
	r.Title = strings.TrimSpace(r.Title)
	if r.Theme == "" || r.Title == "" {
		return r, invalidInput(msgThemeTitleRequired)
	}
	return r, nil
}

func (s *Service) jobOptions(r GenerateRequest) kie.JobOptions {
	return kie.JobOptions{
		AspectRatio:  firstNonEmpty(r.AspectRatio, DefaultAspectRatio),
		Resolution:   firstNonEmpty(r.Resolution, DefaultResolution),
		OutputFormat: firstNonEmpty(r.OutputFormat, DefaultOutputFormat),
		CallbackURL:  s.settings.CallbackURL,
	}
}

func (s *Service) ensureConfigured() error {
	if !s.settings.APIKeyConfigured {
		return kie.ErrMissingAPIKey
	}
	return nil
}

// Themes は組み込みテーマ一覧を返します。
func (s *Service) Themes() []string {
	return prompt.Themes()
}

// GenerateResult は同期生成の結果です。
type GenerateResult struct {
	TaskID   string  `json:"taskId"`
	ImageURL *string `json:"imageUrl"`
	CostTime int64   `json:"costTime"`
}

// Generate はジョブを作成し、完了まで待ちます。
// リモート失敗とタイムアウトは *Error として返します。
func (s *Service) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	req, err := req.normalize()
	if err != nil {
		return nil, err
	}
	if err := s.ensureConfigured(); err != nil {
		return nil, err
	}

	jobID, err := s.orch.Create(ctx, prompt.Build(req.Theme, req.Title), s.jobOptions(req))
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("task_id", jobID).Str("theme", req.Theme).Msg("poster task created, waiting")

	outcome, err := s.orch.Wait(ctx, jobID, s.settings.Wait)
	if err != nil {
		return nil, err
	}
	if err := outcomeError(outcome); err != nil {
		return nil, err
	}
	return &GenerateResult{TaskID: jobID, ImageURL: nullable(outcome.ImageURL), CostTime: outcome.CostTime}, nil
}

// AsyncResult は非同期生成の受付結果です。
type AsyncResult struct {
	TaskID string `json:"taskId"`
	Theme  string `json:"theme"`
	Title  string `json:"title"`
}

// GenerateAsync はジョブを作成した時点で戻ります。
// sessionID が空でなくスケジューラが設定されていれば、完了後に履歴へ記録する監視を投入します。
func (s *Service) GenerateAsync(ctx context.Context, req GenerateRequest, sessionID string) (*AsyncResult, error) {
	req, err := req.normalize()
	if err != nil {
		return nil, err
	}
	if err := s.ensureConfigured(); err != nil {
		return nil, err
	}

	jobID, err := s.orch.Create(ctx, prompt.Build(req.Theme, req.Title), s.jobOptions(req))
	if err != nil {
		return nil, err
	}
	s.scheduleWatch(ctx, jobID, req.Theme, req.Title, sessionID)
	return &AsyncResult{TaskID: jobID, Theme: req.Theme, Title: req.Title}, nil
}

// BatchItemResult は同期バッチの1項目分の結果です。
type BatchItemResult struct {
	TaskID   string    `json:"taskId,omitempty"`
	Theme    string    `json:"theme"`
	Title    string    `json:"title"`
	Success  bool      `json:"success"`
	State    kie.State `json:"state,omitempty"`
	ImageURL string    `json:"imageUrl,omitempty"`
	CostTime int64     `json:"costTime,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// Succeeded は項目が成功したかを返します。
func (r BatchItemResult) Succeeded() bool {
	return r.Success
}

// BatchReport は同期バッチの結果です。集計は Results から導出します。
type BatchReport struct {
	jobs.Summary
	Results []BatchItemResult `json:"results"`
}

func (s *Service) validateItems(items []prompt.Item) ([]prompt.Item, error) {
	if len(items) == 0 {
		return nil, invalidInput(msgItemsRequired)
	}
	if len(items) > s.settings.MaxBatchItems {
		return nil, invalidInput(fmt.Sprintf("批量生成最多支持 %d 个项目", s.settings.MaxBatchItems))
	}
	out := make([]prompt.Item, len(items))
	for i, item := range items {
		item.Theme = strings.TrimSpace(item.Theme)
		item.Title = strings.TrimSpace(item.Title)
		if item.Theme == "" || item.Title == "" {
			return nil, invalidInput(msgItemFieldsRequired)
		}
		out[i] = item
	}
	return out, nil
}

// Batch は全項目のジョブを作成し、作成できたものをすべて待ってから結果を返します。
// 作成に失敗した項目も Results に含めます。
func (s *Service) Batch(ctx context.Context, items []prompt.Item) (*BatchReport, error) {
	items, err := s.validateItems(items)
	if err != nil {
		return nil, err
	}
	if err := s.ensureConfigured(); err != nil {
		return nil, err
	}

	opts := s.jobOptions(GenerateRequest{})
	created := s.orch.CreateBatch(ctx, prompt.BuildBatch(items), opts)

	jobIDs := make([]string, 0, len(created))
	for _, cr := range created {
		if cr.Succeeded() {
			jobIDs = append(jobIDs, cr.JobID)
		}
	}
	waited := s.orch.WaitBatch(ctx, jobIDs, s.settings.Wait)

	results := make([]BatchItemResult, len(items))
	next := 0
	for i, cr := range created {
		item := BatchItemResult{Theme: items[i].Theme, Title: items[i].Title}
		if !cr.Succeeded() {
			item.Error = errorMessage(cr.Err)
			results[i] = item
			continue
		}
		wr := waited[next]
		next++
		item.TaskID = wr.JobID
		switch {
		case wr.Err != nil:
			item.Error = errorMessage(wr.Err)
		default:
			item.State = wr.Outcome.State
			item.CostTime = wr.Outcome.CostTime
			if wr.Outcome.Succeeded() {
				item.Success = true
				item.ImageURL = wr.Outcome.ImageURL
			} else {
				item.Error = wr.Outcome.Message()
			}
		}
		results[i] = item
	}

	report := &BatchReport{Summary: jobs.Summarize(results), Results: results}
	s.logger.Info().
		Int("total", report.Total).
		Int("success", report.Succeeded).
		Int("failed", report.Failed).
		Msg("batch finished")
	return report, nil
}

// BatchTask は非同期バッチの1項目分の受付結果です。TaskID と Error はどちらか一方だけが入ります。
type BatchTask struct {
	Theme  string  `json:"theme"`
	Title  string  `json:"title"`
	TaskID *string `json:"taskId"`
	Error  *string `json:"error"`
}

// BatchTasks は非同期バッチの受付結果です。
type BatchTasks struct {
	Total int         `json:"total"`
	Tasks []BatchTask `json:"tasks"`
}

// BatchAsync は全項目のジョブを作成した時点で戻ります。
func (s *Service) BatchAsync(ctx context.Context, items []prompt.Item, sessionID string) (*BatchTasks, error) {
	items, err := s.validateItems(items)
	if err != nil {
		return nil, err
	}
	if err := s.ensureConfigured(); err != nil {
		return nil, err
	}

	created := s.orch.CreateBatch(ctx, prompt.BuildBatch(items), s.jobOptions(GenerateRequest{}))
	tasks := make([]BatchTask, len(items))
	for i, cr := range created {
		task := BatchTask{Theme: items[i].Theme, Title: items[i].Title}
		if cr.Succeeded() {
			id := cr.JobID
			task.TaskID = &id
			s.scheduleWatch(ctx, id, items[i].Theme, items[i].Title, sessionID)
		} else {
			msg := errorMessage(cr.Err)
			task.Error = &msg
		}
		tasks[i] = task
	}
	return &BatchTasks{Total: len(items), Tasks: tasks}, nil
}

// Status はジョブの現在状態を1回だけ取得します。
func (s *Service) Status(ctx context.Context, jobID string) (*kie.Snapshot, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return nil, invalidInput(msgTaskIDRequired)
	}
	if err := s.ensureConfigured(); err != nil {
		return nil, err
	}
	snap, err := s.reader.GetStatus(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// Wait は既存ジョブの完了を待ちます。成功以外は *Error として返します。
func (s *Service) Wait(ctx context.Context, jobID string, opts jobs.WaitOptions) (*jobs.Outcome, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return nil, invalidInput(msgTaskIDRequired)
	}
	if err := s.ensureConfigured(); err != nil {
		return nil, err
	}
	outcome, err := s.orch.Wait(ctx, jobID, opts)
	if err != nil {
		return nil, err
	}
	if err := outcomeError(outcome); err != nil {
		return nil, err
	}
	return outcome, nil
}

// DefaultWait は待機パラメータの既定値を返します。
func (s *Service) DefaultWait() jobs.WaitOptions {
	return s.settings.Wait
}

func (s *Service) scheduleWatch(ctx context.Context, jobID, theme, title, sessionID string) {
	if s.scheduler == nil || sessionID == "" {
		return
	}
	if _, err := s.scheduler.Enqueue(ctx, &jobs.WatchPayload{
		JobID:     jobID,
		Theme:     theme,
		Title:     title,
		SessionID: sessionID,
	}); err != nil {
		// ジョブ自体は作成済みなので応答は成功のまま返す
		s.logger.Warn().Err(err).Str("task_id", jobID).Msg("failed to enqueue watcher")
	}
}

func firstNonEmpty(v, fallback string) string {
	if s := strings.TrimSpace(v); s != "" {
		return s
	}
	return fallback
}
