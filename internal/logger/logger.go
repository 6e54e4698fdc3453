// internal/logger/logger.go
// 日誌模組 - 建立 zerolog Logger

package logger

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// New 建立 zerolog.Logger
// 開發環境使用易讀的 console 輸出，其他環境輸出 JSON
func New(appEnv, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	env := strings.ToLower(strings.TrimSpace(appEnv))
	if env == "development" || env == "dev" {
		cw := zerolog.NewConsoleWriter(func(w *zerolog.ConsoleWriter) {
			w.Out = os.Stdout
			w.TimeFormat = "2006-01-02 15:04:05"
		})
		return zerolog.New(cw).Level(lvl).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).Level(lvl).With().Timestamp().Logger()
}

// Nop 回傳停用的 Logger，供測試使用
func Nop() zerolog.Logger {
	return zerolog.New(io.Discard)
}
