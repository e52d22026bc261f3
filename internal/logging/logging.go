// Package logging builds the process-wide zap logger. Every constructor in
// this repo takes a *zap.Logger parameter (Design Note "ambient global
// config", spec §9) rather than reaching for a package-level global; the
// fallback logger below exists only for code that runs before main() wires
// the real one, mirroring the teacher's single shared log.Logger instance.
package logging

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	fallbackOnce sync.Once
	fallback     *zap.Logger
)

// Options configures the logger built by New.
type Options struct {
	// Level is one of "debug", "info", "warn", "error".
	Level string
	// Pretty selects a human-readable console encoder instead of JSON;
	// use it for local development, leave it false in deployed services.
	Pretty bool
	// Service is attached to every log line as the "service" field.
	Service string
}

// New builds a *zap.Logger from Options. It never returns an error: an
// invalid Level falls back to info, matching the permissive defaulting the
// teacher's config loader applies elsewhere.
func New(opts Options) *zap.Logger {
	level := zapcore.InfoLevel
	_ = level.UnmarshalText([]byte(opts.Level))

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if opts.Pretty {
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encCfg)
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), level)
	logger := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	if opts.Service != "" {
		logger = logger.With(zap.String("service", opts.Service))
	}
	return logger
}

// Fallback returns a lazily-initialised, plain-JSON logger for code paths
// reached before a real logger has been constructed (e.g. flag-parsing
// failures in cmd/*). Prefer an injected logger everywhere else.
func Fallback() *zap.Logger {
	fallbackOnce.Do(func() {
		fallback = New(Options{Level: "info"})
	})
	return fallback
}
