// Package logging provides config-driven categorized logging for codeprompt.
// Every category shares one zap core; the category is attached as a field so
// output can be filtered per subsystem. Logging is a no-op until Initialize
// is called, which keeps library use and tests silent.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot     Category = "boot"     // Startup, config loading
	CategoryTemplate Category = "template" // Template load, render, watch
	CategoryWorld    Category = "world"    // Directory traversal
	CategoryFragment Category = "fragment" // Fragment extraction
	CategoryPhase    Category = "phase"    // Phase dispatch
	CategoryTactile  Category = "tactile"  // Shell command execution
	CategoryScript   Category = "script"   // Yaegi script execution
	CategoryLLM      Category = "llm"      // LLM queries
	CategoryStore    Category = "store"    // QA recording persistence
)

// Options configures the shared logger.
type Options struct {
	Level      string          // debug, info, warn, error
	Format     string          // json, console
	File       string          // optional output file, stderr when empty
	Categories map[string]bool // nil enables every category
}

// Logger is a category-scoped printf-style logger.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
}

var (
	mu         sync.RWMutex
	base       = zap.NewNop()
	categories map[string]bool
	loggers    = make(map[Category]*Logger)
)

// Initialize builds the shared zap logger. Calling it again replaces the
// previous logger.
func Initialize(opts Options) error {
	level, err := parseLevel(opts.Level)
	if err != nil {
		return err
	}

	cfg := zap.NewProductionConfig()
	if strings.EqualFold(opts.Format, "console") || opts.Format == "" {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		cfg.OutputPaths = []string{opts.File}
	}

	l, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	setBase(l, opts.Categories)
	Boot("Logging initialized: level=%s format=%s file=%q", level, cfg.Encoding, opts.File)
	return nil
}

// UseLogger installs an existing zap logger, e.g. zaptest or zap.NewNop.
func UseLogger(l *zap.Logger) {
	setBase(l, nil)
}

func setBase(l *zap.Logger, cats map[string]bool) {
	mu.Lock()
	defer mu.Unlock()
	base = l
	categories = cats
	loggers = make(map[Category]*Logger)
}

func parseLevel(s string) (zapcore.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return zapcore.InfoLevel, nil
	case "debug":
		return zapcore.DebugLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", s)
	}
}

// IsCategoryEnabled reports whether a category writes anything.
func IsCategoryEnabled(category Category) bool {
	mu.RLock()
	defer mu.RUnlock()
	if categories == nil {
		return true
	}
	enabled, ok := categories[string(category)]
	return !ok || enabled
}

// Get returns (or creates) a logger for the given category.
// Disabled categories get a no-op logger.
func Get(category Category) *Logger {
	if !IsCategoryEnabled(category) {
		return &Logger{category: category, sugar: zap.NewNop().Sugar()}
	}

	mu.RLock()
	if l, ok := loggers[category]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}
	l := &Logger{
		category: category,
		sugar:    base.With(zap.String("category", string(category))).Sugar(),
	}
	loggers[category] = l
	return l
}

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...interface{}) {
	l.sugar.Debugf(format, args...)
}

// Info logs an info message
func (l *Logger) Info(format string, args ...interface{}) {
	l.sugar.Infof(format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) {
	l.sugar.Warnf(format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.sugar.Errorf(format, args...)
}

// With returns a logger carrying extra structured key-value pairs.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{category: l.category, sugar: l.sugar.With(keysAndValues...)}
}

// Sync flushes buffered entries. Call at shutdown.
func Sync() {
	mu.RLock()
	l := base
	mu.RUnlock()
	_ = l.Sync()
}

// =============================================================================
// CONVENIENCE FUNCTIONS - Quick logging without getting a logger first
// =============================================================================

// Boot logs to the boot category
func Boot(format string, args ...interface{}) {
	Get(CategoryBoot).Info(format, args...)
}

// BootDebug logs debug to the boot category
func BootDebug(format string, args ...interface{}) {
	Get(CategoryBoot).Debug(format, args...)
}

// Template logs to the template category
func Template(format string, args ...interface{}) {
	Get(CategoryTemplate).Info(format, args...)
}

// TemplateDebug logs debug to the template category
func TemplateDebug(format string, args ...interface{}) {
	Get(CategoryTemplate).Debug(format, args...)
}

// TemplateWarn logs warning to the template category
func TemplateWarn(format string, args ...interface{}) {
	Get(CategoryTemplate).Warn(format, args...)
}

// World logs to the world category
func World(format string, args ...interface{}) {
	Get(CategoryWorld).Info(format, args...)
}

// WorldDebug logs debug to the world category
func WorldDebug(format string, args ...interface{}) {
	Get(CategoryWorld).Debug(format, args...)
}

// Phase logs to the phase category
func Phase(format string, args ...interface{}) {
	Get(CategoryPhase).Info(format, args...)
}

// PhaseDebug logs debug to the phase category
func PhaseDebug(format string, args ...interface{}) {
	Get(CategoryPhase).Debug(format, args...)
}

// PhaseError logs error to the phase category
func PhaseError(format string, args ...interface{}) {
	Get(CategoryPhase).Error(format, args...)
}

// Tactile logs to the tactile category
func Tactile(format string, args ...interface{}) {
	Get(CategoryTactile).Info(format, args...)
}

// TactileDebug logs debug to the tactile category
func TactileDebug(format string, args ...interface{}) {
	Get(CategoryTactile).Debug(format, args...)
}

// TactileWarn logs warning to the tactile category
func TactileWarn(format string, args ...interface{}) {
	Get(CategoryTactile).Warn(format, args...)
}

// Script logs to the script category
func Script(format string, args ...interface{}) {
	Get(CategoryScript).Info(format, args...)
}

// ScriptDebug logs debug to the script category
func ScriptDebug(format string, args ...interface{}) {
	Get(CategoryScript).Debug(format, args...)
}

// LLM logs to the llm category
func LLM(format string, args ...interface{}) {
	Get(CategoryLLM).Info(format, args...)
}

// LLMDebug logs debug to the llm category
func LLMDebug(format string, args ...interface{}) {
	Get(CategoryLLM).Debug(format, args...)
}

// Store logs to the store category
func Store(format string, args ...interface{}) {
	Get(CategoryStore).Info(format, args...)
}

// StoreDebug logs debug to the store category
func StoreDebug(format string, args ...interface{}) {
	Get(CategoryStore).Debug(format, args...)
}

// Timer helps measure operation duration
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation
func StartTimer(category Category, operation string) *Timer {
	return &Timer{
		category: category,
		op:       operation,
		start:    time.Now(),
	}
}

// Stop ends the timer and logs the duration
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithThreshold logs warning if duration exceeds threshold
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warn("%s took %v (threshold: %v)", t.op, elapsed, threshold)
	} else {
		Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}
