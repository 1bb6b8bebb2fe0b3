package kie

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingAPIKey はクライアントが認証情報なしで構成されたことを表します。
	ErrMissingAPIKey = errors.New("kie: api key is required")
	// ErrEmptyPrompt はプロンプトが空のままジョブ作成が要求されたことを表します。
	ErrEmptyPrompt = errors.New("kie: prompt is required")
	// ErrEmptyJobID はジョブIDなしで状態取得が要求されたことを表します。
	ErrEmptyJobID = errors.New("kie: task id is required")
	// ErrTransport は通信・応答の読み取りに失敗したことを表します。*TransportError がこれに一致します。
	ErrTransport = errors.New("kie: transport failure")
)

// TransportError は通信・本文の読み取り・応答のデコードのいずれかで失敗したことを表します。
type TransportError struct {
	Op    string
	Stage string
	Err   error
}

func (e *TransportError) Error() string {
	if e.Stage == "" {
		return fmt.Sprintf("kie %s: transport failure: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("kie %s: %s: %v", e.Op, e.Stage, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// Cause は利用者に表示できる元のエラーメッセージを返します。
func (e *TransportError) Cause() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

// IsTransportError は err が TransportError かを判定し、該当すれば返します。
func IsTransportError(err error) (*TransportError, bool) {
	var tErr *TransportError
	if errors.As(err, &tErr) {
		return tErr, true
	}
	return nil, false
}

// APIError はリモートが HTTP エラーまたはアプリケーションエラーコードを返したことを表します。
// Message にはリモートのメッセージをそのまま保持します。
type APIError struct {
	Op         string
	HTTPStatus int
	Code       int
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("kie %s: %s (code %d)", e.Op, e.Message, e.Code)
	}
	return fmt.Sprintf("kie %s: %s (http %d)", e.Op, e.Message, e.HTTPStatus)
}
