package poster

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/literacy-poster/internal/history"
	"github.com/yourusername/literacy-poster/internal/jobs"
	"github.com/yourusername/literacy-poster/internal/prompt"
	"github.com/yourusername/literacy-poster/internal/session"
)

// RegisterRoutes は /api 配下にポスター・タスク・履歴のルートを登録します。
// limit は生成系ルートと待機ルートに適用します。
func RegisterRoutes(api *gin.RouterGroup, svc *Service, hist *history.Service, limit ...gin.HandlerFunc) {
	posterRoutes := api.Group("/poster")
	{
		posterRoutes.GET("/themes", ThemesHandler(svc))

		generate := posterRoutes.Group("", limit...)
		generate.POST("/generate", GenerateHandler(svc))
		generate.POST("/generate-async", GenerateAsyncHandler(svc))
		generate.POST("/batch", BatchHandler(svc))
		generate.POST("/batch-async", BatchAsyncHandler(svc))
	}

	taskRoutes := api.Group("/task")
	{
		taskRoutes.GET("/:taskId", TaskStatusHandler(svc))

		wait := taskRoutes.Group("", limit...)
		wait.GET("/:taskId/wait", TaskWaitHandler(svc))
	}

	historyRoutes := api.Group("/history")
	{
		historyRoutes.GET("", HistoryListHandler(hist))
		historyRoutes.POST("", HistoryRecordHandler(hist))
		historyRoutes.DELETE("", HistoryClearHandler(hist))
	}
}

// ThemesHandler は GET /api/poster/themes のハンドラーを返します。
func ThemesHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		respondOK(c, gin.H{"themes": svc.Themes()})
	}
}

// GenerateHandler は POST /api/poster/generate のハンドラーを返します。完了までブロックします。
func GenerateHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req GenerateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondWithError(c, invalidInput(msgThemeTitleRequired))
			return
		}
		result, err := svc.Generate(c.Request.Context(), req)
		if err != nil {
			respondWithError(c, err)
			return
		}
		respondOK(c, result)
	}
}

// GenerateAsyncHandler は POST /api/poster/generate-async のハンドラーを返します。
func GenerateAsyncHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req GenerateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondWithError(c, invalidInput(msgThemeTitleRequired))
			return
		}
		result, err := svc.GenerateAsync(c.Request.Context(), req, session.ID(c))
		if err != nil {
			respondWithError(c, err)
			return
		}
		respondOK(c, result)
	}
}

type batchRequest struct {
	Items []prompt.Item `json:"items"`
}

// BatchHandler は POST /api/poster/batch のハンドラーを返します。
func BatchHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req batchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondWithError(c, invalidInput(msgItemsRequired))
			return
		}
		report, err := svc.Batch(c.Request.Context(), req.Items)
		if err != nil {
			respondWithError(c, err)
			return
		}
		respondOK(c, report)
	}
}

// BatchAsyncHandler は POST /api/poster/batch-async のハンドラーを返します。
func BatchAsyncHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req batchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondWithError(c, invalidInput(msgItemsRequired))
			return
		}
		tasks, err := svc.BatchAsync(c.Request.Context(), req.Items, session.ID(c))
		if err != nil {
			respondWithError(c, err)
			return
		}
		respondOK(c, tasks)
	}
}

// TaskStatusHandler は GET /api/task/:taskId のハンドラーを返します。
func TaskStatusHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		snap, err := svc.Status(c.Request.Context(), c.Param("taskId"))
		if err != nil {
			respondWithError(c, err)
			return
		}
		respondOK(c, gin.H{
			"taskId":     snap.JobID,
			"state":      snap.State,
			"imageUrl":   nullable(snap.ImageURL),
			"failCode":   nullable(snap.FailCode),
			"failMsg":    nullable(snap.FailMsg),
			"costTime":   snap.CostTime,
			"createTime": snap.CreateTime,
		})
	}
}

// TaskWaitHandler は GET /api/task/:taskId/wait のハンドラーを返します。
// maxRetries と interval（ミリ秒）はクエリで上書きできます。
func TaskWaitHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		opts, err := parseWaitOptions(c, svc.DefaultWait())
		if err != nil {
			respondWithError(c, err)
			return
		}
		outcome, err := svc.Wait(c.Request.Context(), c.Param("taskId"), opts)
		if err != nil {
			respondWithError(c, err)
			return
		}
		respondOK(c, gin.H{
			"taskId":   outcome.JobID,
			"state":    outcome.State,
			"imageUrl": nullable(outcome.ImageURL),
			"costTime": outcome.CostTime,
		})
	}
}

// parseWaitOptions はクエリの maxRetries と interval（ミリ秒）を defaults に上書きします。
// maxRetries は maxWaitRetries(defaults) を超えられず、interval は minWaitInterval 未満なら切り上げます。
func parseWaitOptions(c *gin.Context, defaults jobs.WaitOptions) (jobs.WaitOptions, error) {
	opts := defaults
	if raw := strings.TrimSpace(c.Query("maxRetries")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return opts, invalidInput(msgInvalidWaitParams)
		}
		if limit := maxWaitRetries(defaults); n > limit {
			return opts, invalidInput(fmt.Sprintf(msgWaitRetriesTooLarge, limit))
		}
		opts.MaxRetries = n
	}
	if raw := strings.TrimSpace(c.Query("interval")); raw != "" {
		ms, err := strconv.Atoi(raw)
		if err != nil || ms < 0 {
			return opts, invalidInput(msgInvalidWaitParams)
		}
		opts.Interval = max(time.Duration(ms)*time.Millisecond, minWaitInterval)
	}
	return opts, nil
}

const (
	waitRetriesFactor = 5
	minWaitInterval   = 500 * time.Millisecond
)

func maxWaitRetries(defaults jobs.WaitOptions) int {
	return max(defaults.MaxRetries, jobs.DefaultMaxRetries) * waitRetriesFactor
}

// HistoryListHandler は GET /api/history のハンドラーを返します。
func HistoryListHandler(hist *history.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		entries, err := hist.List(c.Request.Context(), session.ID(c))
		if err != nil {
			respondWithError(c, err)
			return
		}
		respondOK(c, gin.H{"history": entries})
	}
}

type historyRecordRequest struct {
	TaskID   string `json:"taskId"`
	Theme    string `json:"theme"`
	Title    string `json:"title"`
	ImageURL string `json:"imageUrl"`
}

// HistoryRecordHandler は POST /api/history のハンドラーを返します。
func HistoryRecordHandler(hist *history.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req historyRecordRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondWithError(c, history.ErrInvalidEntry)
			return
		}
		// 時刻はサーバー側で付与する
		entries, err := hist.Record(c.Request.Context(), session.ID(c), history.Entry{
			JobID:    req.TaskID,
			Theme:    req.Theme,
			Title:    req.Title,
			ImageURL: req.ImageURL,
		})
		if err != nil {
			respondWithError(c, err)
			return
		}
		respondOK(c, gin.H{"history": entries})
	}
}

// HistoryClearHandler は DELETE /api/history のハンドラーを返します。confirm=true が必要です。
func HistoryClearHandler(hist *history.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		confirmed, _ := strconv.ParseBool(c.Query("confirm"))
		if err := hist.Clear(c.Request.Context(), session.ID(c), confirmed); err != nil {
			respondWithError(c, err)
			return
		}
		respondOK(c, gin.H{"history": []history.Entry{}})
	}
}

// NotFoundHandler は未定義の /api ルートに 404 を返します。
// それ以外のパスは fallback に委ねます。fallback が nil なら同じく 404 です。
func NotFoundHandler(fallback gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if fallback != nil && !strings.HasPrefix(c.Request.URL.Path, "/api") {
			fallback(c)
			return
		}
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error":   msgAPINotFound,
			"code":    CodeNotFound,
		})
	}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
