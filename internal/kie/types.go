package kie

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// State はジョブの状態です。
type State string

const (
	StatePending    State = "pending"
	StateProcessing State = "processing"
	StateSuccess    State = "success"
	StateFail       State = "fail"
	// StateTimeout はローカルで監視を打ち切ったことを表し、リモートからは返されません。
	StateTimeout State = "timeout"
)

// Terminal はリモートでそれ以上遷移しない状態かを返します。
func (s State) Terminal() bool {
	return s == StateSuccess || s == StateFail
}

// JobOptions は生成時に固定されるパラメータです。既定値の適用は呼び出し側の責務です。
type JobOptions struct {
	AspectRatio  string
	Resolution   string
	OutputFormat string
	CallbackURL  string
	ImageInput   []string
}

// Snapshot は1回の状態取得結果を正規化したものです。
type Snapshot struct {
	JobID      string `json:"taskId"`
	State      State  `json:"state"`
	ImageURL   string `json:"imageUrl,omitempty"`
	ResultJSON string `json:"-"`
	FailCode   string `json:"failCode,omitempty"`
	FailMsg    string `json:"failMsg,omitempty"`
	CostTime   int64  `json:"costTime,omitempty"`
	CreateTime int64  `json:"createTime,omitempty"`
}

type createTaskRequest struct {
	Model       string          `json:"model"`
	Input       createTaskInput `json:"input"`
	CallBackURL string          `json:"callBackUrl,omitempty"`
}

type createTaskInput struct {
	Prompt       string   `json:"prompt"`
	ImageInput   []string `json:"image_input"`
	AspectRatio  string   `json:"aspect_ratio"`
	Resolution   string   `json:"resolution"`
	OutputFormat string   `json:"output_format"`
}

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type createTaskData struct {
	TaskID string `json:"taskId"`
}

type recordInfoData struct {
	TaskID     string      `json:"taskId"`
	State      string      `json:"state"`
	ResultJSON rawResult   `json:"resultJson"`
	FailCode   looseString `json:"failCode"`
	FailMsg    looseString `json:"failMsg"`
	CostTime   looseInt    `json:"costTime"`
	CreateTime looseInt    `json:"createTime"`
}

type resultPayload struct {
	ResultURLs []string `json:"resultUrls"`
}

// rawResult は resultJson をどの JSON 型でも受け付けます。
// 文字列ならその中身を、それ以外はそのままの JSON を保持し、Quoted で区別します。
type rawResult struct {
	Text   string
	Quoted bool
}

func (r *rawResult) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*r = rawResult{}
		return nil
	}
	if data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*r = rawResult{Text: v, Quoted: true}
		return nil
	}
	*r = rawResult{Text: string(data)}
	return nil
}

// looseString は文字列・数値・null のいずれでも受け付けます。
type looseString string

func (s *looseString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = looseString(v)
		return nil
	}
	*s = looseString(data)
	return nil
}

// looseInt は数値・数値文字列・null のいずれでも受け付けます。解釈できない値は0になります。
type looseInt int64

func (n *looseInt) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(bytes.TrimSpace(data), `"`)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*n = 0
		return nil
	}
	if v, err := strconv.ParseInt(string(data), 10, 64); err == nil {
		*n = looseInt(v)
		return nil
	}
	if f, err := strconv.ParseFloat(string(data), 64); err == nil {
		*n = looseInt(int64(f))
		return nil
	}
	*n = 0
	return nil
}
