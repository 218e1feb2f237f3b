package utils

// logger.go - structured logging setup built on zap.
//
// InitLogger builds a standalone *Logger from a LogConfig. InitGlobalLogger
// additionally installs it as the package-level logger used by the
// Debug/Info/Warn/Error helpers below.

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogConfig controls logger construction.
type LogConfig struct {
	Level       string // debug, info, warn, error, fatal
	Format      string // json, text
	Development bool
	Output      string // file path; empty means stderr
}

// Logger wraps a *zap.Logger with a cached sugared logger and domain helpers.
type Logger struct {
	*zap.Logger
	sugar *zap.SugaredLogger
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug", "DEBUG":
		return zapcore.DebugLevel
	case "info", "INFO":
		return zapcore.InfoLevel
	case "warn", "WARN", "warning", "WARNING":
		return zapcore.WarnLevel
	case "error", "ERROR":
		return zapcore.ErrorLevel
	case "fatal", "FATAL":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

func buildEncoder(cfg LogConfig) zapcore.Encoder {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "timestamp"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	if cfg.Development {
		encCfg = zap.NewDevelopmentEncoderConfig()
	}
	if cfg.Format == "text" {
		return zapcore.NewConsoleEncoder(encCfg)
	}
	return zapcore.NewJSONEncoder(encCfg)
}

func buildSink(cfg LogConfig) zapcore.WriteSyncer {
	if cfg.Output == "" {
		return zapcore.AddSync(os.Stderr)
	}
	f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return zapcore.AddSync(os.Stderr)
	}
	return zapcore.AddSync(f)
}

// InitLogger constructs a new Logger from cfg, never returning nil.
func InitLogger(cfg LogConfig) *Logger {
	core := zapcore.NewCore(buildEncoder(cfg), buildSink(cfg), parseLevel(cfg.Level))

	opts := []zap.Option{zap.AddCallerSkip(1)}
	if cfg.Development {
		opts = append(opts, zap.Development(), zap.AddCaller())
	}

	zl := zap.New(core, opts...)
	return &Logger{Logger: zl, sugar: zl.Sugar()}
}

// Sugar returns the cached sugared logger.
func (l *Logger) Sugar() *zap.SugaredLogger {
	return l.sugar
}

// With returns a new Logger carrying the given fields in addition to l's.
func (l *Logger) With(fields ...zap.Field) *Logger {
	zl := l.Logger.With(fields...)
	return &Logger{Logger: zl, sugar: zl.Sugar()}
}

func (l *Logger) WithComponent(name string) *Logger { return l.With(Component(name)) }
func (l *Logger) WithExchange(name string) *Logger   { return l.With(Exchange(name)) }
func (l *Logger) WithSymbol(symbol string) *Logger   { return l.With(Symbol(symbol)) }
func (l *Logger) WithPairID(id int) *Logger          { return l.With(PairID(id)) }

// ============================================================
// Global logger
// ============================================================

var (
	globalMu     sync.Mutex
	globalLogger *Logger
)

// GetGlobalLogger returns the process-wide logger, initializing it with
// defaults on first use.
func GetGlobalLogger() *Logger {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil {
		zl := InitLogger(LogConfig{})
		globalLogger = zl
	}
	return globalLogger
}

// InitGlobalLogger builds a logger from cfg and installs it globally.
func InitGlobalLogger(cfg LogConfig) *Logger {
	l := InitLogger(cfg)
	SetGlobalLogger(l)
	return l
}

// SetGlobalLogger installs l as the process-wide logger.
func SetGlobalLogger(l *Logger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = l
}

// L is shorthand for GetGlobalLogger.
func L() *Logger {
	return GetGlobalLogger()
}

func Debug(msg string, fields ...zap.Field) { L().Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field)  { L().Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { L().Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { L().Error(msg, fields...) }

func Debugf(format string, args ...interface{}) { L().sugar.Debugf(format, args...) }
func Infof(format string, args ...interface{})  { L().sugar.Infof(format, args...) }
func Warnf(format string, args ...interface{})  { L().sugar.Warnf(format, args...) }
func Errorf(format string, args ...interface{}) { L().sugar.Errorf(format, args...) }

// ============================================================
// Field constructors
// ============================================================

func Exchange(name string) zap.Field   { return zap.String("exchange", name) }
func Symbol(symbol string) zap.Field   { return zap.String("symbol", symbol) }
func PairID(id int) zap.Field          { return zap.Int("pair_id", id) }
func OrderID(id string) zap.Field      { return zap.String("order_id", id) }
func Price(price float64) zap.Field    { return zap.Float64("price", price) }
func Volume(volume float64) zap.Field  { return zap.Float64("volume", volume) }
func Spread(spread float64) zap.Field  { return zap.Float64("spread", spread) }
func PNL(pnl float64) zap.Field        { return zap.Float64("pnl", pnl) }
func Side(side string) zap.Field       { return zap.String("side", side) }
func State(state string) zap.Field     { return zap.String("state", state) }
func Latency(ms float64) zap.Field     { return zap.Float64("latency_ms", ms) }
func RequestID(id string) zap.Field    { return zap.String("request_id", id) }
func UserID(id int) zap.Field          { return zap.Int("user_id", id) }
func Component(name string) zap.Field  { return zap.String("component", name) }

// Re-exported zap constructors so callers only need to import pkg/utils.
func String(key, value string) zap.Field       { return zap.String(key, value) }
func Int(key string, value int) zap.Field       { return zap.Int(key, value) }
func Int64(key string, value int64) zap.Field   { return zap.Int64(key, value) }
func Float64(key string, value float64) zap.Field { return zap.Float64(key, value) }
func Bool(key string, value bool) zap.Field     { return zap.Bool(key, value) }
func Err(err error) zap.Field                   { return zap.Error(err) }
func Any(key string, value interface{}) zap.Field { return zap.Any(key, value) }

// fieldsToInterface flattens zap.Field values into alternating key/value
// pairs for interop with the sugared logger's variadic APIs.
func fieldsToInterface(fields []zap.Field) []interface{} {
	out := make([]interface{}, 0, len(fields)*2)
	for _, f := range fields {
		enc := zapcore.NewMapObjectEncoder()
		f.AddTo(enc)
		out = append(out, f.Key, enc.Fields[f.Key])
	}
	return out
}
