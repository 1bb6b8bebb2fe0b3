// Package logging はサービス共通の構造化ロガーを提供します。
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New は実行環境に応じた zerolog.Logger を生成します。
// development では人間向けのコンソール出力、それ以外は JSON を出力します。
func New(appEnv string) zerolog.Logger {
	level := zerolog.InfoLevel
	if appEnv == "development" {
		level = zerolog.DebugLevel
	}

	logger := zerolog.New(os.Stdout).
		Level(level).
		With().
		Timestamp().
		Logger()

	if appEnv == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}

	return logger
}

// Discard は出力を捨てるロガーを返します。テストや任意依存のデフォルトに使います。
func Discard() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}
