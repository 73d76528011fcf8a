package logpipeline

import (
	"testing"
	"time"

	"github.com/flutter-demon/fdemon/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func feedAndFlush(p *Pipeline, source types.LogSource, lines ...string) FlushResult {
	for _, l := range lines {
		p.FeedRaw(source, l)
	}
	return p.Flush()
}

func TestDetectRawLineLevel(t *testing.T) {
	tests := []struct {
		line string
		want types.LogLevel
	}{
		{"E/flutter: fatal", types.LevelError},
		{"W/System: deprecated", types.LevelWarning},
		{"FAILURE: build failed", types.LevelError},
		{"BUILD FAILED in 3s", types.LevelError},
		{"some error: detail", types.LevelError},
		{"❌ something broke", types.LevelError},
		{"a warning: heads up", types.LevelWarning},
		{"⚠ careful", types.LevelWarning},
		{"Running \"flutter pub get\"...", types.LevelDebug},
		{"Building flutter tool...", types.LevelDebug},
		{"Compiling dart...", types.LevelDebug},
		{"still working...", types.LevelDebug},
		{"plain informational line", types.LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DetectRawLineLevel(tt.line), tt.line)
	}
}

func TestLoggerBlockPromotion(t *testing.T) {
	entries := []types.LogEntry{
		types.NewLogEntry(1, types.LevelInfo, types.SourceFlutter, "┌─"),
		types.NewLogEntry(2, types.LevelError, types.SourceFlutter, "│ ⛔ Error: x"),
		types.NewLogEntry(3, types.LevelInfo, types.SourceFlutter, "│ stack frame 1"),
		types.NewLogEntry(4, types.LevelInfo, types.SourceFlutter, "│ stack frame 2"),
		types.NewLogEntry(5, types.LevelInfo, types.SourceFlutter, "└─"),
	}
	p3 := New(1000)
	before := p3.ErrorCount()
	for _, e := range entries {
		p3.insert(e)
	}
	require.Equal(t, 5, p3.Len())
	for _, e := range p3.Entries() {
		assert.Equal(t, types.LevelError, e.Level)
	}
	assert.Equal(t, before+5, p3.ErrorCount())
}

func TestAllInfoBlockLeftUntouched(t *testing.T) {
	p := New(1000)
	entries := []types.LogEntry{
		types.NewLogEntry(1, types.LevelInfo, types.SourceFlutter, "┌─"),
		types.NewLogEntry(2, types.LevelInfo, types.SourceFlutter, "│ line"),
		types.NewLogEntry(3, types.LevelInfo, types.SourceFlutter, "└─"),
	}
	for _, e := range entries {
		p.insert(e)
	}
	for _, e := range p.Entries() {
		assert.Equal(t, types.LevelInfo, e.Level)
	}
	assert.Equal(t, 0, p.ErrorCount())
}

func TestOrphanBlockEndIsNoOp(t *testing.T) {
	p := New(1000)
	p.insert(types.NewLogEntry(1, types.LevelInfo, types.SourceFlutter, "└─"))
	assert.Equal(t, types.LevelInfo, p.Entries()[0].Level)
}

func TestRingBufferEvictionAdjustsErrorCountAndBlockTracking(t *testing.T) {
	p := New(3)
	p.insert(types.NewLogEntry(1, types.LevelInfo, types.SourceFlutter, "┌─"))
	p.insert(types.NewLogEntry(2, types.LevelInfo, types.SourceFlutter, "│ a"))
	p.insert(types.NewLogEntry(3, types.LevelInfo, types.SourceFlutter, "│ b"))
	p.insert(types.NewLogEntry(4, types.LevelError, types.SourceFlutter, "│ ⛔ err"))

	require.Equal(t, 3, p.Len())
	assert.Nil(t, p.blockStart, "block tracking should be canceled once start index goes negative")

	p.insert(types.NewLogEntry(5, types.LevelInfo, types.SourceFlutter, "└─"))
	for _, e := range p.Entries() {
		if e.Message == "│ ⛔ err" {
			assert.Equal(t, types.LevelError, e.Level)
		} else if e.Message != "└─" {
			assert.Equal(t, types.LevelInfo, e.Level, "no propagation should have happened: %s", e.Message)
		}
	}
}

func TestRingBufferEvictionBounds(t *testing.T) {
	p := New(3)
	for i := 0; i < 5; i++ {
		p.insert(types.NewLogEntry(uint64(i), types.LevelInfo, types.SourceFlutter, "line"))
	}
	assert.Equal(t, 3, p.Len())
}

func TestErrorCountSaturatesAtZero(t *testing.T) {
	p := New(1)
	p.insert(types.NewLogEntry(1, types.LevelError, types.SourceFlutter, "err1"))
	p.insert(types.NewLogEntry(2, types.LevelInfo, types.SourceFlutter, "evicts err1"))
	assert.Equal(t, 0, p.ErrorCount())
}

func TestBatcherFlushesOnSize(t *testing.T) {
	b := NewBatcher()
	for i := 0; i < batchMaxSize; i++ {
		b.Add(types.NewLogEntry(uint64(i), types.LevelInfo, types.SourceFlutter, "x"))
	}
	assert.True(t, b.ShouldFlush())
	flushed := b.Flush()
	assert.Len(t, flushed, batchMaxSize)
	assert.False(t, b.HasPending())
}

func TestBatcherFlushesOnAge(t *testing.T) {
	b := NewBatcher()
	b.Add(types.NewLogEntry(1, types.LevelInfo, types.SourceFlutter, "x"))
	assert.False(t, b.ShouldFlush())
	time.Sleep(20 * time.Millisecond)
	assert.True(t, b.ShouldFlush())
}

func TestClearResetsState(t *testing.T) {
	p := New(100)
	p.insert(types.NewLogEntry(1, types.LevelError, types.SourceFlutter, "err"))
	p.Clear()
	assert.Equal(t, 0, p.Len())
	assert.Equal(t, 0, p.ErrorCount())
}

func TestRecalculateErrorCount(t *testing.T) {
	p := New(100)
	p.insert(types.NewLogEntry(1, types.LevelError, types.SourceFlutter, "err"))
	p.errorCount = 999 // simulate drift
	assert.Equal(t, 1, p.RecalculateErrorCount())
}

func TestFeedAppLogUsesExplicitErrorFlag(t *testing.T) {
	p := New(100)
	p.FeedAppLog("a plain log line", false, "")
	result := p.Flush()
	require.Len(t, result.Inserted, 1)
	assert.Equal(t, types.LevelInfo, result.Inserted[0].Level)

	p.FeedAppLog("boom", true, "")
	result = p.Flush()
	require.Len(t, result.Inserted, 1)
	assert.Equal(t, types.LevelError, result.Inserted[0].Level)
}

func TestFeedAppLogWithStackTraceBypassesHeaderMatching(t *testing.T) {
	p := New(100)
	p.FeedAppLog("a crash happened", true, "#0 main (file.dart:1:1)")
	result := p.Flush()
	require.Len(t, result.Inserted, 1)
	assert.Equal(t, types.LevelError, result.Inserted[0].Level)
	assert.Contains(t, result.Inserted[0].StackTrace, "#0")
}

func TestExceptionBlockThroughFullPipeline(t *testing.T) {
	p := New(100)
	p.FeedRaw(types.SourceFlutter, "══╡ EXCEPTION CAUGHT BY WIDGETS LIBRARY ╞═══")
	p.FeedRaw(types.SourceFlutter, "Error description")
	p.FeedRaw(types.SourceFlutter, "#0      main (package:app/main.dart:15:3)")
	p.FeedRaw(types.SourceFlutter, "════════════════════════════════════════════")

	result := p.Flush()
	require.Len(t, result.Inserted, 1)
	assert.Contains(t, result.Inserted[0].Message, "Error description")
	assert.Contains(t, result.Inserted[0].StackTrace, "#0")
	assert.Equal(t, types.LevelError, result.Inserted[0].Level)
}

func TestFlushParserDrainsPartialBlockOnTeardown(t *testing.T) {
	p := New(100)
	p.FeedRaw(types.SourceFlutter, "══╡ EXCEPTION CAUGHT BY WIDGETS LIBRARY ╞═══")
	p.FeedRaw(types.SourceFlutter, "partial body")
	p.Flush() // drains batcher but the parser's block is still open

	entry, ok := p.FlushParser()
	require.True(t, ok)
	assert.Equal(t, types.LevelError, entry.Level)
	assert.Equal(t, 1, p.Len())
}
