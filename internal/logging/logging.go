// Copyright 2019 Andy Pan. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package logging wraps zap behind the small call-site surface the rest of
// corewp uses: Errorf/Fatalf/Debugf plus a raw *zap.Logger for call sites
// that want structured fields.
package logging

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

var (
	mu      sync.RWMutex
	logger  *zap.Logger
	sLogger *zap.SugaredLogger
)

func init() {
	setDefault()
}

func setDefault() {
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(zap.NewProductionEncoderConfig()),
		zapcore.AddSync(os.Stderr),
		zap.InfoLevel,
	)
	set(zap.New(core, zap.AddCaller()))
}

func set(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	logger = l
	sLogger = l.Sugar()
}

// UseRotatingFile redirects logging to a size/age-rotated file, the way an
// nginx-style worker process logs to a rotated file rather than stderr.
func UseRotatingFile(path string, maxSizeMB, maxBackups, maxAgeDays int) {
	w := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		MaxAge:     maxAgeDays,
		Compress:   true,
	}
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
		zapcore.AddSync(w),
		zap.InfoLevel,
	)
	set(zap.New(core, zap.AddCaller()))
}

func current() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return sLogger
}

// Debugf logs at debug level.
func Debugf(format string, args ...interface{}) {
	current().Debugf(format, args...)
}

// Infof logs at info level.
func Infof(format string, args ...interface{}) {
	current().Infof(format, args...)
}

// Errorf logs at error level.
func Errorf(format string, args ...interface{}) {
	current().Errorf(format, args...)
}

// Fatalf logs at fatal level and terminates the process, used for the
// unrecoverable pollset error classes (EBADF, EINVAL, ENOMEM, EPERM, or any
// undocumented errno on add/remove).
func Fatalf(format string, args ...interface{}) {
	current().Fatalf(format, args...)
}

// LogErr logs a non-nil error and swallows it; callers use it to guard
// best-effort cleanup paths where the error isn't worth propagating.
func LogErr(err error) {
	if err != nil {
		current().Error(err)
	}
}

// Sync flushes any buffered log entries; call during Finish().
func Sync() error {
	mu.RLock()
	defer mu.RUnlock()
	return logger.Sync()
}
