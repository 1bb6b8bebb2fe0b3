package poster

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/literacy-poster/internal/history"
	"github.com/yourusername/literacy-poster/internal/jobs"
	"github.com/yourusername/literacy-poster/internal/kie"
	"github.com/yourusername/literacy-poster/internal/session"
)

const zooResult = `{"resultUrls":["https://x/y.png"]}`

// noSleep は待機せずに即座に戻る Clock です。
type noSleep struct{}

func (noSleep) Sleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

// fakeKie は kie.ai の createTask / recordInfo を模擬します。
// タイトルに "坏" を含むプロンプトは作成を拒否します。
type fakeKie struct {
	mu      sync.Mutex
	prompts []string
	reads   map[string]int
	created int
	// status はジョブIDと何回目の取得かから recordInfo の data を返します。
	status func(taskID string, read int) string
}

func newFakeKie() *fakeKie {
	return &fakeKie{
		reads: map[string]int{},
		status: func(taskID string, read int) string {
			if read < 2 {
				return fmt.Sprintf(`{"taskId":%q,"state":"processing"}`, taskID)
			}
			return fmt.Sprintf(`{"taskId":%q,"state":"success","resultJson":%q,"costTime":15342,"createTime":1700000000000}`, taskID, zooResult)
		},
	}
}

func (f *fakeKie) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.URL.Path {
	case "/createTask":
		var body struct {
			Input struct {
				Prompt string `json:"prompt"`
			} `json:"input"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.prompts = append(f.prompts, body.Input.Prompt)
		if strings.Contains(body.Input.Prompt, "坏") {
			_, _ = w.Write([]byte(`{"code":422,"msg":"prompt rejected","data":null}`))
			return
		}
		f.created++
		fmt.Fprintf(w, `{"code":200,"msg":"success","data":{"taskId":"task-%d"}}`, f.created)
	case "/recordInfo":
		id := r.URL.Query().Get("taskId")
		f.reads[id]++
		fmt.Fprintf(w, `{"code":200,"msg":"success","data":%s}`, f.status(id, f.reads[id]))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeKie) setStatus(fn func(taskID string, read int) string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = fn
}

func (f *fakeKie) sentPrompts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts...)
}

func (f *fakeKie) readCount(taskID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads[taskID]
}

func (f *fakeKie) totalReads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.reads {
		n += c
	}
	return n
}

type recordingScheduler struct {
	mu       sync.Mutex
	payloads []jobs.WatchPayload
}

func (s *recordingScheduler) Enqueue(_ context.Context, p *jobs.WatchPayload) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payloads = append(s.payloads, *p)
	return "q-" + p.JobID, nil
}

func (s *recordingScheduler) sent() []jobs.WatchPayload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]jobs.WatchPayload(nil), s.payloads...)
}

type testEnv struct {
	router    *gin.Engine
	kie       *fakeKie
	scheduler *recordingScheduler
}

func newTestEnv(t *testing.T, configured bool, limit ...gin.HandlerFunc) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	fk := newFakeKie()
	server := httptest.NewServer(fk)
	t.Cleanup(server.Close)

	client := kie.NewClient(kie.Options{APIKey: "test-key", BaseURL: server.URL, Timeout: 2 * time.Second})
	poller := jobs.NewPoller(client, jobs.WithClock(noSleep{}))
	orch := jobs.NewOrchestrator(client, poller, 4, nil)
	scheduler := &recordingScheduler{}
	svc := NewService(orch, jobs.NewCachedReader(client, time.Minute), Settings{
		APIKeyConfigured: configured,
		Wait:             jobs.WaitOptions{MaxRetries: 5, Interval: 2 * time.Second},
		MaxBatchItems:    5,
	}, WithScheduler(scheduler))
	hist := history.NewService(history.NewMemoryStore(), history.DefaultCapacity)

	router := gin.New()
	router.Use(session.Middleware("test-secret", false)...)
	RegisterRoutes(router.Group("/api"), svc, hist, limit...)
	router.NoRoute(NotFoundHandler(nil))

	return &testEnv{router: router, kie: fk, scheduler: scheduler}
}

type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Code    string          `json:"code"`
}

func (e *testEnv) do(t *testing.T, method, path string, body any, cookies ...*http.Cookie) (*httptest.ResponseRecorder, apiResponse) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	var resp apiResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return rec, resp
}

func TestThemesHandler(t *testing.T) {
	env := newTestEnv(t, true)
	rec, resp := env.do(t, http.MethodGet, "/api/poster/themes", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var data struct {
		Themes []string `json:"themes"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	assert.Len(t, data.Themes, 10)
	assert.Equal(t, "supermarket", data.Themes[0])
}

func TestGenerateZooEndToEnd(t *testing.T) {
	env := newTestEnv(t, true)
	rec, resp := env.do(t, http.MethodPost, "/api/poster/generate", gin.H{"theme": "zoo", "title": "动物世界"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, resp.Success)

	var data GenerateResult
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	assert.Equal(t, "task-1", data.TaskID)
	require.NotNil(t, data.ImageURL)
	assert.Equal(t, "https://x/y.png", *data.ImageURL)
	assert.Equal(t, int64(15342), data.CostTime)

	require.Len(t, env.kie.sentPrompts(), 1)
	assert.Contains(t, env.kie.sentPrompts()[0], "动物世界")
	assert.Contains(t, env.kie.sentPrompts()[0], "shī zi 狮子")
	assert.Equal(t, 2, env.kie.readCount("task-1"))
}

func TestGenerateSucceedsWhenResultJSONIsNotAString(t *testing.T) {
	env := newTestEnv(t, true)
	env.kie.setStatus(func(taskID string, _ int) string {
		return fmt.Sprintf(`{"taskId":%q,"state":"success","resultJson":{"resultUrls":["https://x/y.png"]},"costTime":42}`, taskID)
	})
	rec, resp := env.do(t, http.MethodPost, "/api/poster/generate", gin.H{"theme": "zoo", "title": "动物世界"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var data map[string]any
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	assert.Equal(t, "task-1", data["taskId"])
	assert.Nil(t, data["imageUrl"])
	assert.Equal(t, float64(42), data["costTime"])
	assert.Equal(t, 1, env.kie.readCount("task-1"))
}

func TestGenerateValidation(t *testing.T) {
	env := newTestEnv(t, true)
	rec, resp := env.do(t, http.MethodPost, "/api/poster/generate", gin.H{"theme": "zoo", "title": "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, resp.Success)
	assert.Equal(t, CodeInvalidInput, resp.Code)
	assert.Equal(t, "主题和标题不能为空", resp.Error)
	assert.Empty(t, env.kie.sentPrompts())
}

func TestGenerateWithoutAPIKey(t *testing.T) {
	env := newTestEnv(t, false)
	rec, resp := env.do(t, http.MethodPost, "/api/poster/generate", gin.H{"theme": "zoo", "title": "动物世界"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, CodeConfigError, resp.Code)
	assert.Equal(t, "未配置 API Key", resp.Error)
	assert.Empty(t, env.kie.sentPrompts())
}

func TestGenerateRemoteFailure(t *testing.T) {
	env := newTestEnv(t, true)
	env.kie.setStatus(func(taskID string, _ int) string {
		return fmt.Sprintf(`{"taskId":%q,"state":"fail","failCode":"501","failMsg":"内容违规"}`, taskID)
	})
	rec, resp := env.do(t, http.MethodPost, "/api/poster/generate", gin.H{"theme": "park", "title": "公园"})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, CodeJobFailed, resp.Code)
	assert.Equal(t, "内容违规", resp.Error)
}

func TestGenerateTimeout(t *testing.T) {
	env := newTestEnv(t, true)
	env.kie.setStatus(func(taskID string, _ int) string {
		return fmt.Sprintf(`{"taskId":%q,"state":"processing"}`, taskID)
	})
	rec, resp := env.do(t, http.MethodPost, "/api/poster/generate", gin.H{"theme": "park", "title": "公园"})
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	assert.Equal(t, CodeJobTimeout, resp.Code)
	assert.Equal(t, "任务超时，请稍后重试", resp.Error)
	assert.Equal(t, 5, env.kie.readCount("task-1"))
}

func TestGenerateCreateRejected(t *testing.T) {
	env := newTestEnv(t, true)
	rec, resp := env.do(t, http.MethodPost, "/api/poster/generate", gin.H{"theme": "park", "title": "坏"})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, CodeRemoteError, resp.Code)
	assert.Equal(t, "prompt rejected", resp.Error)
}

func TestGenerateAsyncSchedulesWatcher(t *testing.T) {
	env := newTestEnv(t, true)
	rec, resp := env.do(t, http.MethodPost, "/api/poster/generate-async", gin.H{"theme": "zoo", "title": "动物世界"})
	require.Equal(t, http.StatusOK, rec.Code)

	var data AsyncResult
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	assert.Equal(t, AsyncResult{TaskID: "task-1", Theme: "zoo", Title: "动物世界"}, data)
	assert.Zero(t, env.kie.readCount("task-1"))

	require.Len(t, env.scheduler.sent(), 1)
	p := env.scheduler.sent()[0]
	assert.Equal(t, "task-1", p.JobID)
	assert.NotEmpty(t, p.SessionID)
}

func TestBatchIncludesFailedCreations(t *testing.T) {
	env := newTestEnv(t, true)
	rec, resp := env.do(t, http.MethodPost, "/api/poster/batch", gin.H{"items": []gin.H{
		{"theme": "zoo", "title": "动物"},
		{"theme": "park", "title": "坏"},
		{"theme": "school", "title": "学校"},
	}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var report BatchReport
	require.NoError(t, json.Unmarshal(resp.Data, &report))
	assert.Equal(t, jobs.Summary{Total: 3, Succeeded: 2, Failed: 1}, report.Summary)
	require.Len(t, report.Results, 3)

	assert.Equal(t, "动物", report.Results[0].Title)
	assert.True(t, report.Results[0].Success)
	assert.Equal(t, "https://x/y.png", report.Results[0].ImageURL)

	assert.Equal(t, "坏", report.Results[1].Title)
	assert.False(t, report.Results[1].Success)
	assert.Empty(t, report.Results[1].TaskID)
	assert.Equal(t, "prompt rejected", report.Results[1].Error)

	assert.Equal(t, "学校", report.Results[2].Title)
	assert.True(t, report.Results[2].Success)
}

func TestBatchAsyncWithOneFailure(t *testing.T) {
	env := newTestEnv(t, true)
	rec, resp := env.do(t, http.MethodPost, "/api/poster/batch-async", gin.H{"items": []gin.H{
		{"theme": "zoo", "title": "动物"},
		{"theme": "park", "title": "坏"},
	}})
	require.Equal(t, http.StatusOK, rec.Code)

	var raw struct {
		Total int `json:"total"`
		Tasks []struct {
			Theme  string  `json:"theme"`
			Title  string  `json:"title"`
			TaskID *string `json:"taskId"`
			Error  *string `json:"error"`
		} `json:"tasks"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &raw))
	assert.Equal(t, 2, raw.Total)
	require.Len(t, raw.Tasks, 2)

	require.NotNil(t, raw.Tasks[0].TaskID)
	assert.Equal(t, "task-1", *raw.Tasks[0].TaskID)
	assert.Nil(t, raw.Tasks[0].Error)

	assert.Nil(t, raw.Tasks[1].TaskID)
	require.NotNil(t, raw.Tasks[1].Error)
	assert.Equal(t, "prompt rejected", *raw.Tasks[1].Error)

	assert.Len(t, env.scheduler.sent(), 1)
}

func TestBatchValidation(t *testing.T) {
	env := newTestEnv(t, true)

	rec, resp := env.do(t, http.MethodPost, "/api/poster/batch", gin.H{"items": []gin.H{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "请提供有效的生成项目列表", resp.Error)

	rec, resp = env.do(t, http.MethodPost, "/api/poster/batch-async", gin.H{"items": []gin.H{{"theme": "zoo"}}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "每个项目必须包含 theme 和 title", resp.Error)

	items := make([]gin.H, 6)
	for i := range items {
		items[i] = gin.H{"theme": "zoo", "title": fmt.Sprint(i)}
	}
	rec, resp = env.do(t, http.MethodPost, "/api/poster/batch", gin.H{"items": items})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, CodeInvalidInput, resp.Code)
	assert.Empty(t, env.kie.sentPrompts())
}

func TestTaskStatusAndWait(t *testing.T) {
	env := newTestEnv(t, true)

	rec, resp := env.do(t, http.MethodGet, "/api/task/task-9", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var status map[string]any
	require.NoError(t, json.Unmarshal(resp.Data, &status))
	assert.Equal(t, "task-9", status["taskId"])
	assert.Equal(t, "processing", status["state"])
	assert.Nil(t, status["imageUrl"])

	rec, resp = env.do(t, http.MethodGet, "/api/task/task-9/wait?maxRetries=3&interval=10", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var waited map[string]any
	require.NoError(t, json.Unmarshal(resp.Data, &waited))
	assert.Equal(t, "success", waited["state"])
	assert.Equal(t, "https://x/y.png", waited["imageUrl"])
}

func TestTaskWaitRejectsBadParams(t *testing.T) {
	env := newTestEnv(t, true)
	for _, q := range []string{"maxRetries=-1", "maxRetries=abc", "interval=-5"} {
		rec, resp := env.do(t, http.MethodGet, "/api/task/task-1/wait?"+q, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
		assert.Equal(t, CodeInvalidInput, resp.Code, q)
	}
	assert.Zero(t, env.kie.totalReads())
}

func TestTaskWaitZeroRetriesTimesOut(t *testing.T) {
	env := newTestEnv(t, true)
	rec, resp := env.do(t, http.MethodGet, "/api/task/task-1/wait?maxRetries=0", nil)
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	assert.Equal(t, CodeJobTimeout, resp.Code)
	assert.Zero(t, env.kie.readCount("task-1"))
}

func TestTaskWaitBoundsRetriesAndInterval(t *testing.T) {
	env := newTestEnv(t, true)
	rec, resp := env.do(t, http.MethodGet, "/api/task/task-1/wait?maxRetries=1000000&interval=0", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, CodeInvalidInput, resp.Code)
	assert.Equal(t, "maxRetries 不能超过 300", resp.Error)
	assert.Zero(t, env.kie.totalReads())

	defaults := jobs.WaitOptions{MaxRetries: 5, Interval: 2 * time.Second}
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/api/task/task-1/wait?maxRetries=300&interval=0", nil)
	opts, err := parseWaitOptions(c, defaults)
	require.NoError(t, err)
	assert.Equal(t, 300, opts.MaxRetries)
	assert.Equal(t, minWaitInterval, opts.Interval)

	c.Request = httptest.NewRequest(http.MethodGet, "/api/task/task-1/wait?interval=1500", nil)
	opts, err = parseWaitOptions(c, defaults)
	require.NoError(t, err)
	assert.Equal(t, 5, opts.MaxRetries)
	assert.Equal(t, 1500*time.Millisecond, opts.Interval)
}

func TestTaskWaitIsRateLimited(t *testing.T) {
	deny := func(c *gin.Context) {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"success": false, "error": "limited", "code": "RATE_LIMITED"})
	}
	env := newTestEnv(t, true, deny)

	rec, resp := env.do(t, http.MethodGet, "/api/task/task-1/wait", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "RATE_LIMITED", resp.Code)

	rec, _ = env.do(t, http.MethodGet, "/api/task/task-1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, env.kie.totalReads())
}

func TestHistoryLifecycle(t *testing.T) {
	env := newTestEnv(t, true)

	rec, _ := env.do(t, http.MethodGet, "/api/history", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)

	rec, resp := env.do(t, http.MethodPost, "/api/history", gin.H{
		"taskId": "task-1", "theme": "zoo", "title": "动物世界", "imageUrl": "https://x/y.png",
	}, cookies...)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec, resp = env.do(t, http.MethodGet, "/api/history", nil, cookies...)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed struct {
		History []history.Entry `json:"history"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &listed))
	require.Len(t, listed.History, 1)
	assert.Equal(t, "task-1", listed.History[0].JobID)

	rec, resp = env.do(t, http.MethodDelete, "/api/history", nil, cookies...)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, CodeConfirmationRequired, resp.Code)

	rec, _ = env.do(t, http.MethodDelete, "/api/history?confirm=true", nil, cookies...)
	assert.Equal(t, http.StatusOK, rec.Code)

	_, resp = env.do(t, http.MethodGet, "/api/history", nil, cookies...)
	require.NoError(t, json.Unmarshal(resp.Data, &listed))
	assert.Empty(t, listed.History)
}

func TestHistoryRejectsIncompleteEntry(t *testing.T) {
	env := newTestEnv(t, true)
	rec, resp := env.do(t, http.MethodPost, "/api/history", gin.H{"taskId": "task-1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, CodeInvalidInput, resp.Code)
}

func TestUnknownAPIRoute(t *testing.T) {
	env := newTestEnv(t, true)
	rec, resp := env.do(t, http.MethodGet, "/api/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.False(t, resp.Success)
	assert.Equal(t, "API 路由不存在", resp.Error)
}

func TestClassifyCanceled(t *testing.T) {
	status, code, _ := classify(fmt.Errorf("wait: %w", context.Canceled))
	assert.Equal(t, http.StatusRequestTimeout, status)
	assert.Equal(t, CodeRequestCanceled, code)

	status, code, msg := classify(fmt.Errorf("wait: %w", &kie.TransportError{Op: "recordInfo", Err: context.DeadlineExceeded}))
	assert.Equal(t, http.StatusBadGateway, status)
	assert.Equal(t, CodeRemoteError, code)
	assert.Equal(t, "图片生成服务请求失败: context deadline exceeded", msg)

	_, _, msg = classify(fmt.Errorf("kie recordInfo: %w", kie.ErrTransport))
	assert.Equal(t, "图片生成服务请求失败", msg)
}

func TestTransportFailureShowsCause(t *testing.T) {
	gin.SetMode(gin.TestMode)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html>bad gateway</html>`))
	}))
	t.Cleanup(server.Close)

	client := kie.NewClient(kie.Options{APIKey: "test-key", BaseURL: server.URL, Timeout: 2 * time.Second})
	poller := jobs.NewPoller(client, jobs.WithClock(noSleep{}))
	svc := NewService(jobs.NewOrchestrator(client, poller, 1, nil), client, Settings{
		APIKeyConfigured: true,
		Wait:             jobs.WaitOptions{MaxRetries: 1},
		MaxBatchItems:    5,
	})
	router := gin.New()
	RegisterRoutes(router.Group("/api"), svc, history.NewService(history.NewMemoryStore(), history.DefaultCapacity))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/task/task-1", nil))
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	var resp apiResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, CodeRemoteError, resp.Code)
	assert.True(t, strings.HasPrefix(resp.Error, "图片生成服务请求失败: "), resp.Error)
	assert.Contains(t, resp.Error, "invalid character")
}
