// Package logger owns the process-wide zap logger.
package logger

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Config describes the logger built by Init.
type Config struct {
	Level      string
	FilePath   string
	Format     string
	Version    string
	Component  string
	MaxSize    int
	MaxBackups int
	MaxAge     int
}

type Option func(*Config)

func WithLevel(lvl string) Option      { return func(c *Config) { c.Level = lvl } }
func WithFormat(fmt string) Option     { return func(c *Config) { c.Format = fmt } }
func WithFile(path string) Option      { return func(c *Config) { c.FilePath = path } }
func WithVersion(v string) Option      { return func(c *Config) { c.Version = v } }
func WithComponent(comp string) Option { return func(c *Config) { c.Component = comp } }
func WithRotation(size, backups, age int) Option {
	return func(c *Config) {
		c.MaxSize, c.MaxBackups, c.MaxAge = size, backups, age
	}
}

// sink is the installed logger together with its adjustable level.
type sink struct {
	root  *zap.Logger
	level zap.AtomicLevel
}

// installed is nil until Init and again after Shutdown. Logging through an
// uninstalled sink is a no-op.
var installed atomic.Pointer[sink]

var errInactive = stderrors.New("logger not initialized")

// Init builds the global zap core. Calling Init twice replaces the old core.
func Init(opts ...Option) error {
	cfg := &Config{
		Level:      "info",
		Format:     "console",
		Component:  "dmsync",
		MaxSize:    100,
		MaxBackups: 5,
		MaxAge:     30,
	}
	for _, apply := range opts {
		apply(cfg)
	}

	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	enc, err := encoderFor(cfg.Format)
	if err != nil {
		return err
	}
	out, err := writerFor(cfg)
	if err != nil {
		return err
	}

	next := &sink{
		level: level,
		root: zap.New(zapcore.NewCore(enc, out, level),
			zap.AddStacktrace(zapcore.ErrorLevel),
			zap.Fields(zap.String("service", cfg.Component), zap.String("version", cfg.Version)),
		),
	}
	if prev := installed.Swap(next); prev != nil {
		_ = prev.root.Sync()
	}
	return nil
}

// Shutdown flushes buffered entries and deactivates the logger.
func Shutdown() error {
	prev := installed.Swap(nil)
	if prev == nil {
		return errInactive
	}
	if err := prev.root.Sync(); err != nil {
		// stderr cannot be synced on most terminals.
		var pathErr *os.PathError
		if !stderrors.As(err, &pathErr) {
			return err
		}
	}
	return nil
}

// UpdateLevel changes the minimum level of the installed logger.
func UpdateLevel(lvl string) error {
	s := installed.Load()
	if s == nil {
		return errInactive
	}
	level, err := zapcore.ParseLevel(lvl)
	if err != nil {
		return err
	}
	s.level.SetLevel(level)
	return nil
}

func encoderFor(format string) (zapcore.Encoder, error) {
	switch format {
	case "json":
		return zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), nil
	case "console":
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		return zapcore.NewConsoleEncoder(cfg), nil
	}
	return nil, fmt.Errorf("unknown log format %q", format)
}

// writerFor logs to stderr so that command output on stdout stays clean.
func writerFor(cfg *Config) (zapcore.WriteSyncer, error) {
	if cfg.FilePath == "" {
		return zapcore.Lock(zapcore.AddSync(os.Stderr)), nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o750); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   true,
	}), nil
}

func root() *zap.Logger {
	if s := installed.Load(); s != nil {
		return s.root
	}
	return zap.NewNop()
}

// New returns a component-scoped child logger.
func New(component string) *zap.Logger {
	return root().With(zap.String("component", component))
}

type ctxKey int

const (
	loggerKey ctxKey = iota
	runKey
)

type run struct{ id, pubkey string }

// WithLogger attaches a *zap.Logger to a context.
func WithLogger(ctx context.Context, l *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// WithRun tags a context with the id of a bootstrap run and the identity it syncs.
func WithRun(ctx context.Context, runID, pubkey string) context.Context {
	return context.WithValue(ctx, runKey, run{id: runID, pubkey: pubkey})
}

// RunID returns the bootstrap run id stored in ctx, if any.
func RunID(ctx context.Context) string {
	r, _ := ctx.Value(runKey).(run)
	return r.id
}

// FromContext returns the logger attached to ctx, or the global logger
// tagged with the run found in ctx.
func FromContext(ctx context.Context) *zap.Logger {
	if installed.Load() == nil {
		return zap.NewNop()
	}
	if l, ok := ctx.Value(loggerKey).(*zap.Logger); ok {
		return l
	}
	if r, ok := ctx.Value(runKey).(run); ok {
		return root().With(zap.String("run_id", r.id), zap.String("pubkey", r.pubkey))
	}
	return root()
}

func Debug(msg string, fields ...zap.Field) { root().Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field)  { root().Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { root().Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { root().Error(msg, fields...) }
