// Copyright 2020 thinkgos (thinkgo@aliyun.com).  All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

// Package wlog is the controller's internal logging facade. It keeps the
// teacher's clog shape (a small interface plus an enable switch) but backs
// it with logrus so every component gets structured fields instead of
// formatted strings.
package wlog

import (
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Provider is the logging surface every component depends on. The default
// implementation wraps a *logrus.Entry; tests can substitute a recording
// Provider without pulling in logrus.
type Provider interface {
	Debug(format string, v ...interface{})
	Warn(format string, v ...interface{})
	Error(format string, v ...interface{})
	Critical(format string, v ...interface{})
	WithField(key string, value interface{}) Provider
}

// Log is the facade components hold: an on/off switch around a Provider,
// mirroring clog.Clog's LogMode gate.
type Log struct {
	provider Provider
	has      uint32
}

// New wraps a logrus logger with the given static fields (e.g. "component":"registry").
func New(logger *logrus.Logger, fields logrus.Fields) Log {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return Log{provider: entryProvider{logger.WithFields(fields)}, has: 1}
}

// NewDisabled returns a Log with output suppressed; components that embed Log
// default to this until LogMode(true) is called, matching clog's behavior.
func NewDisabled() Log {
	return Log{provider: entryProvider{logrus.NewEntry(logrus.New())}, has: 0}
}

func (l *Log) LogMode(enable bool) {
	if enable {
		atomic.StoreUint32(&l.has, 1)
	} else {
		atomic.StoreUint32(&l.has, 0)
	}
}

func (l *Log) SetProvider(p Provider) {
	if p != nil {
		l.provider = p
	}
}

// With returns a derived Log with an additional structured field.
func (l Log) With(key string, value interface{}) Log {
	if l.provider == nil {
		return l
	}
	return Log{provider: l.provider.WithField(key, value), has: l.has}
}

func (l Log) Debug(format string, v ...interface{}) {
	if atomic.LoadUint32(&l.has) == 1 && l.provider != nil {
		l.provider.Debug(format, v...)
	}
}

func (l Log) Warn(format string, v ...interface{}) {
	if atomic.LoadUint32(&l.has) == 1 && l.provider != nil {
		l.provider.Warn(format, v...)
	}
}

func (l Log) Error(format string, v ...interface{}) {
	if atomic.LoadUint32(&l.has) == 1 && l.provider != nil {
		l.provider.Error(format, v...)
	}
}

func (l Log) Critical(format string, v ...interface{}) {
	if atomic.LoadUint32(&l.has) == 1 && l.provider != nil {
		l.provider.Critical(format, v...)
	}
}

type entryProvider struct {
	entry *logrus.Entry
}

func (p entryProvider) Debug(format string, v ...interface{})    { p.entry.Debugf(format, v...) }
func (p entryProvider) Warn(format string, v ...interface{})     { p.entry.Warnf(format, v...) }
func (p entryProvider) Error(format string, v ...interface{})    { p.entry.Errorf(format, v...) }
func (p entryProvider) Critical(format string, v ...interface{}) { p.entry.Errorf("[CRITICAL] "+format, v...) }
func (p entryProvider) WithField(key string, value interface{}) Provider {
	return entryProvider{p.entry.WithField(key, value)}
}
