package database

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestQueryLogger(level gormlogger.LogLevel) (*queryLogger, *bytes.Buffer) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return newQueryLogger(log, level, 100*time.Millisecond), &buf
}

func TestQueryLogger_Trace(t *testing.T) {
	stmt := func() (string, int64) { return "SELECT * FROM deals", 3 }

	tests := []struct {
		name    string
		level   gormlogger.LogLevel
		elapsed time.Duration
		err     error
		want    string
	}{
		{"failed query", gormlogger.Warn, time.Millisecond, errors.New("boom"), `"msg":"query failed"`},
		{"not found is quiet", gormlogger.Warn, time.Millisecond, gorm.ErrRecordNotFound, ""},
		{"slow query", gormlogger.Warn, time.Second, nil, `"msg":"slow query"`},
		{"fast query below info", gormlogger.Warn, time.Millisecond, nil, ""},
		{"fast query at info", gormlogger.Info, time.Millisecond, nil, `"msg":"query"`},
		{"silent", gormlogger.Silent, time.Second, errors.New("boom"), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, buf := newTestQueryLogger(tt.level)
			l.Trace(context.Background(), time.Now().Add(-tt.elapsed), stmt, tt.err)

			if tt.want == "" {
				assert.Empty(t, buf.String())
				return
			}
			assert.Contains(t, buf.String(), tt.want)
			assert.Contains(t, buf.String(), `"component":"gorm"`)
			assert.Contains(t, buf.String(), "SELECT * FROM deals")
		})
	}
}

func TestQueryLogger_LogMode(t *testing.T) {
	l, buf := newTestQueryLogger(gormlogger.Info)

	quiet := l.LogMode(gormlogger.Silent)
	quiet.Info(context.Background(), "hidden %d", 1)
	assert.Empty(t, buf.String())

	l.Info(context.Background(), "shown %d", 2)
	assert.Equal(t, 1, strings.Count(buf.String(), "shown 2"))
}
