// Package kie は kie.ai の非同期ジョブAPI（Nano Banana Pro）のクライアントです。
package kie

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultBaseURL = "https://api.kie.ai/api/v1/jobs"
	defaultModel   = "nano-banana-pro"

	codeOK = 200

	// レスポンス本文の読み込み上限
	maxResponseBytes = 1 << 20
)

// Options は Client の構成です。
type Options struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
	Timeout    time.Duration
	Logger     *zerolog.Logger
}

// Client はジョブの作成と状態取得を行います。リトライは行いません。
type Client struct {
	httpClient *http.Client
	baseURL    string
	model      string
	apiKey     string
	logger     *zerolog.Logger
}

// NewClient は既定値を補って Client を生成します。
func NewClient(opts Options) *Client {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		base = defaultBaseURL
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = defaultModel
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := opts.Logger
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    base,
		model:      model,
		apiKey:     strings.TrimSpace(opts.APIKey),
		logger:     logger,
	}
}

// CreateJob はジョブを1回だけ作成し、リモートが採番したジョブIDを返します。
func (c *Client) CreateJob(ctx context.Context, prompt string, opts JobOptions) (string, error) {
	if c.apiKey == "" {
		return "", ErrMissingAPIKey
	}
	if strings.TrimSpace(prompt) == "" {
		return "", ErrEmptyPrompt
	}

	imageInput := opts.ImageInput
	if imageInput == nil {
		imageInput = []string{}
	}
	payload := createTaskRequest{
		Model: c.model,
		Input: createTaskInput{
			Prompt:       prompt,
			ImageInput:   imageInput,
			AspectRatio:  opts.AspectRatio,
			Resolution:   opts.Resolution,
			OutputFormat: opts.OutputFormat,
		},
		CallBackURL: strings.TrimSpace(opts.CallbackURL),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/createTask", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	var data createTaskData
	if err := c.do(req, "createTask", "创建任务失败", &data); err != nil {
		c.logger.Error().Err(err).Msg("kie: create task failed")
		return "", err
	}
	if data.TaskID == "" {
		return "", &APIError{Op: "createTask", HTTPStatus: http.StatusOK, Code: codeOK, Message: "响应中缺少 taskId"}
	}
	c.logger.Debug().Str("task_id", data.TaskID).Msg("kie: task created")
	return data.TaskID, nil
}

// GetStatus はジョブの現在状態を1往復で取得します。
// resultJson が壊れている場合はエラーにせず ImageURL を空にします。
func (c *Client) GetStatus(ctx context.Context, jobID string) (*Snapshot, error) {
	if c.apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return nil, ErrEmptyJobID
	}

	endpoint := c.baseURL + "/recordInfo?" + url.Values{"taskId": {jobID}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	var data recordInfoData
	if err := c.do(req, "recordInfo", "查询任务状态失败", &data); err != nil {
		c.logger.Error().Err(err).Str("task_id", jobID).Msg("kie: query task status failed")
		return nil, err
	}

	snap := &Snapshot{
		JobID:      jobID,
		State:      State(data.State),
		ResultJSON: data.ResultJSON.Text,
		FailCode:   string(data.FailCode),
		FailMsg:    string(data.FailMsg),
		CostTime:   int64(data.CostTime),
		CreateTime: int64(data.CreateTime),
	}
	if snap.State == StateSuccess && data.ResultJSON.Text != "" {
		if !data.ResultJSON.Quoted {
			c.logger.Warn().Str("task_id", jobID).Str("result_json", data.ResultJSON.Text).Msg("kie: resultJson is not a string")
			return snap, nil
		}
		imageURL, err := DecodeImageURL(data.ResultJSON.Text)
		if err != nil {
			c.logger.Warn().Err(err).Str("task_id", jobID).Msg("kie: failed to parse resultJson")
		}
		snap.ImageURL = imageURL
	}
	return snap, nil
}

// DecodeImageURL は resultJson から最初の画像URLを取り出します。
func DecodeImageURL(resultJSON string) (string, error) {
	var payload resultPayload
	if err := json.Unmarshal([]byte(resultJSON), &payload); err != nil {
		return "", err
	}
	if len(payload.ResultURLs) == 0 {
		return "", nil
	}
	return payload.ResultURLs[0], nil
}

func (c *Client) do(req *http.Request, op, fallbackMsg string, out any) error {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &TransportError{Op: op, Stage: "read body", Err: err}
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(env.Msg)
		if decodeErr != nil || msg == "" {
			msg = fmt.Sprintf("%s: http %d", fallbackMsg, resp.StatusCode)
		}
		return &APIError{Op: op, HTTPStatus: resp.StatusCode, Code: env.Code, Message: msg}
	}
	if decodeErr != nil {
		return &TransportError{Op: op, Stage: "decode response", Err: decodeErr}
	}
	if env.Code != codeOK {
		msg := strings.TrimSpace(env.Msg)
		if msg == "" {
			msg = fallbackMsg
		}
		return &APIError{Op: op, HTTPStatus: resp.StatusCode, Code: env.Code, Message: msg}
	}
	if len(env.Data) == 0 || bytes.Equal(env.Data, []byte("null")) {
		return &APIError{Op: op, HTTPStatus: resp.StatusCode, Code: env.Code, Message: fallbackMsg}
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return &TransportError{Op: op, Stage: "decode data", Err: err}
	}
	return nil
}

// IsAPIError は err が APIError かを判定し、該当すれば返します。
func IsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
