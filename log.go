package bldtrack

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"
)

// NewLogger builds the logger described by cfg, writing to w.
// A nil w means os.Stderr.
func NewLogger(cfg Config, w io.Writer) (*zap.Logger, error) {
	if w == nil {
		w = os.Stderr
	}

	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	switch resolveLogFormat(cfg.LogFormat, w) {
	case LogFormatConsole:
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		if _, noColor := os.LookupEnv("NO_COLOR"); noColor || !isTerminal(w) {
			encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		}
		enc = zapcore.NewConsoleEncoder(encCfg)
	default:
		enc = zapcore.NewJSONEncoder(encCfg)
	}

	core := zapcore.NewCore(enc, zapcore.Lock(zapcore.AddSync(w)), level)
	return zap.New(core), nil
}

// resolveLogFormat turns LogFormatAuto into a concrete format for w.
func resolveLogFormat(format string, w io.Writer) string {
	if format != LogFormatAuto && format != "" {
		return format
	}
	if isTerminal(w) {
		return LogFormatConsole
	}
	return LogFormatJSON
}

// isTerminal returns true if w is a terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
