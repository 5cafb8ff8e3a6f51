/*
 * Copyright 2018 The CovenantSQL Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package log wraps logrus with the caller-awareness this project wants on
// error/fatal entries, without pulling every package into a single giant
// global logger configuration.
package log

import (
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// Fields is an alias for logrus.Fields, kept so call sites don't import
// logrus directly.
type Fields = logrus.Fields

var base = logrus.New()

func init() {
	base.AddHook(&callerHook{})
}

type callerHook struct{}

func (h *callerHook) Levels() []logrus.Level {
	return []logrus.Level{logrus.ErrorLevel, logrus.FatalLevel, logrus.PanicLevel}
}

func (h *callerHook) Fire(entry *logrus.Entry) error {
	if _, file, line, ok := runtime.Caller(6); ok {
		entry.Data["caller"] = filepath.Base(file) + ":" + strconv.Itoa(line)
	}
	return nil
}

// SetLevel adjusts the base logger's verbosity. level is one of the
// logrus level names ("debug", "info", "warn", "error", "fatal").
func SetLevel(level string) {
	lvl, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	base.SetLevel(lvl)
}

// WithField returns an entry scoped to a single key/value pair.
func WithField(key string, value interface{}) *logrus.Entry {
	return base.WithField(key, value)
}

// WithFields returns an entry scoped to the given fields.
func WithFields(f Fields) *logrus.Entry {
	return base.WithFields(f)
}

// WithError returns an entry carrying err under the standard "error" field.
func WithError(err error) *logrus.Entry {
	return base.WithError(err)
}

// Debugf logs at debug level.
func Debugf(format string, args ...interface{}) { base.Debugf(format, args...) }

// Infof logs at info level.
func Infof(format string, args ...interface{}) { base.Infof(format, args...) }

// Warnf logs at warn level.
func Warnf(format string, args ...interface{}) { base.Warnf(format, args...) }

// Errorf logs at error level.
func Errorf(format string, args ...interface{}) { base.Errorf(format, args...) }

// Fatalf logs at fatal level and exits the process.
func Fatalf(format string, args ...interface{}) { base.Fatalf(format, args...) }
