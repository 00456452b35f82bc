// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package logging adapts go.uber.org/zap to the types.Logger port so
// every engine component logs through the same structured logger the
// host configures once at startup.
package logging

import (
	"go.uber.org/zap"

	"github.com/teradata-labs/llmbatch/pkg/types"
)

// ZapLogger implements types.Logger over a *zap.Logger.
type ZapLogger struct {
	base *zap.Logger
}

// New wraps an existing zap logger. Pass zap.NewNop() for silent
// operation (e.g. in tests).
func New(base *zap.Logger) *ZapLogger {
	if base == nil {
		base = zap.NewNop()
	}
	return &ZapLogger{base: base}
}

// NewDevelopment builds a human-readable logger suitable for CLI use.
func NewDevelopment() (*ZapLogger, error) {
	l, err := zap.NewDevelopment()
	if err != nil {
		return nil, err
	}
	return New(l), nil
}

func fields(kv []any) []zap.Field {
	fs := make([]zap.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, _ := kv[i].(string)
		fs = append(fs, zap.Any(key, kv[i+1]))
	}
	return fs
}

func (l *ZapLogger) Debug(msg string, kv ...any) { l.base.Debug(msg, fields(kv)...) }
func (l *ZapLogger) Info(msg string, kv ...any)  { l.base.Info(msg, fields(kv)...) }
func (l *ZapLogger) Warn(msg string, kv ...any)  { l.base.Warn(msg, fields(kv)...) }
func (l *ZapLogger) Error(msg string, kv ...any) { l.base.Error(msg, fields(kv)...) }

var _ types.Logger = (*ZapLogger)(nil)
