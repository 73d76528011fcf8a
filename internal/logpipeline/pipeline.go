// Package logpipeline implements the per-session log pipeline: parse
// raw lines through the exception-block parser, batch the resulting
// entries, insert them into a fixed-capacity ring buffer, and
// propagate Logger-block severity in O(1) per line.
package logpipeline

import (
	"regexp"
	"sync/atomic"
	"time"

	"github.com/flutter-demon/fdemon/internal/excparser"
	"github.com/flutter-demon/fdemon/internal/types"
)

// globalEntryID is the process-wide monotonic counter backing
// LogEntry.ID, mirroring the single session-id-style atomic singleton
// called out as the only acceptable global mutable state.
var globalEntryID atomic.Uint64

func nextEntryID() uint64 {
	return globalEntryID.Add(1)
}

// NextEntryID allocates a fresh globally-unique LogEntry id for
// callers that construct entries outside the pipeline itself (e.g.
// Session's log_info/log_error convenience wrappers).
func NextEntryID() uint64 {
	return nextEntryID()
}

var (
	blockStartRe = regexp.MustCompile(`^\s*┌`)
	blockEndRe   = regexp.MustCompile(`^\s*└`)
)

// Pipeline owns one session's log buffer: the exception parser, the
// batcher, and the ring buffer with Logger-block propagation and
// incremental error counting. Not safe for concurrent use; owned by
// exactly one session's processing goroutine.
type Pipeline struct {
	maxLogs int
	entries []types.LogEntry

	errorCount int

	blockStart    *int
	blockMaxLevel types.LogLevel

	parser  *excparser.Parser
	batcher *Batcher
}

func New(maxLogs int) *Pipeline {
	return &Pipeline{
		maxLogs: maxLogs,
		parser:  excparser.New(),
		batcher: NewBatcher(),
	}
}

// FeedRaw processes one raw stdout/stderr line (Flutter's own output,
// not a structured daemon frame) through the exception parser and raw
// -line severity heuristic, queuing any resulting entry into the batch.
func (p *Pipeline) FeedRaw(source types.LogSource, line string) {
	clean := StripANSI(line)
	result := p.parser.Feed(clean)
	p.queueFromParserResult(source, result, func() types.LogEntry {
		return types.NewLogEntry(nextEntryID(), DetectRawLineLevel(clean), source, clean)
	})
}

// FeedAppLog processes one structured `app.log` daemon event. The
// daemon already tells us whether the line is an error, so severity
// comes from that flag rather than the raw-line heuristic — but the
// message still flows through the exception parser, since a single
// app.log line can itself open or continue an exception block.
func (p *Pipeline) FeedAppLog(message string, isError bool, stackTrace string) {
	if stackTrace != "" {
		entry := types.NewLogEntry(nextEntryID(), types.LevelError, types.SourceFlutterError, message)
		entry.StackTrace = stackTrace
		p.batcher.Add(entry)
		return
	}

	result := p.parser.Feed(message)
	level := types.LevelInfo
	if isError {
		level = types.LevelError
	}
	p.queueFromParserResult(types.SourceFlutter, result, func() types.LogEntry {
		return types.NewLogEntry(nextEntryID(), level, types.SourceFlutter, message)
	})
}

func (p *Pipeline) queueFromParserResult(source types.LogSource, result excparser.Result, rawEntry func() types.LogEntry) {
	switch result.Outcome {
	case excparser.Buffered:
		// absorbed into an in-progress block; nothing to emit yet
	case excparser.Complete:
		entry := types.NewLogEntry(nextEntryID(), types.LevelError, types.SourceFlutterError, result.Message)
		entry.StackTrace = result.StackTrace
		p.batcher.Add(entry)
	case excparser.OneLineException:
		entry := types.NewLogEntry(nextEntryID(), types.LevelError, source, result.Message)
		p.batcher.Add(entry)
	case excparser.NotConsumed:
		p.batcher.Add(rawEntry())
	}
}

// QueueEntry enqueues an already-constructed LogEntry directly into
// the batch, bypassing the exception parser and raw-line heuristic.
// This is the pipeline entry point a Session uses for its own
// synthesized log lines (lifecycle messages, reload results).
func (p *Pipeline) QueueEntry(entry types.LogEntry) {
	p.batcher.Add(entry)
}

// ShouldFlush reports whether the pending batch is ready to drain.
func (p *Pipeline) ShouldFlush() bool {
	return p.batcher.ShouldFlush()
}

// TimeUntilFlush reports how long until the batch becomes eligible on
// age alone, letting the engine's main loop schedule its next wake-up.
func (p *Pipeline) TimeUntilFlush() time.Duration {
	return p.batcher.TimeUntilFlush()
}

// FlushResult is what draining the batch into the ring buffer produced.
type FlushResult struct {
	Inserted []types.LogEntry
	Evicted  int
}

// Flush drains the pending batch and inserts each entry into the ring
// buffer in arrival order, applying eviction and Logger-block
// propagation as it goes.
func (p *Pipeline) Flush() FlushResult {
	pending := p.batcher.Flush()
	result := FlushResult{Inserted: pending}
	for _, entry := range pending {
		result.Evicted += p.insert(entry)
	}
	return result
}

func (p *Pipeline) insert(entry types.LogEntry) (evicted int) {
	idx := len(p.entries)
	p.entries = append(p.entries, entry)

	if entry.IsError() {
		p.errorCount++
	}

	switch {
	case blockStartRe.MatchString(entry.Message):
		start := idx
		p.blockStart = &start
		p.blockMaxLevel = types.LevelInfo
		p.blockMaxLevel = p.blockMaxLevel.MaxSeverity(entry.Level)
	case p.blockStart != nil:
		p.blockMaxLevel = p.blockMaxLevel.MaxSeverity(entry.Level)
	}

	if blockEndRe.MatchString(entry.Message) && p.blockStart != nil {
		p.propagateBlock(*p.blockStart, idx)
		p.blockStart = nil
	}

	for len(p.entries) > p.maxLogs {
		p.evictFront()
		evicted++
	}
	return evicted
}

// propagateBlock rewrites every entry in [start, end] whose level is
// less severe than the block's observed max, in a single linear pass
// bounded by the block's own size — never a full-buffer scan.
func (p *Pipeline) propagateBlock(start, end int) {
	if !p.blockMaxLevel.MoreSevereThan(types.LevelInfo) {
		return // an all-Info block is left untouched
	}
	for i := start; i <= end && i < len(p.entries); i++ {
		if p.entries[i].Level.MoreSevereThan(p.blockMaxLevel) || p.entries[i].Level == p.blockMaxLevel {
			continue
		}
		wasError := p.entries[i].IsError()
		p.entries[i].Level = p.blockMaxLevel
		if !wasError && p.entries[i].IsError() {
			p.errorCount++
		}
	}
}

func (p *Pipeline) evictFront() {
	evicted := p.entries[0]
	p.entries = p.entries[1:]

	if evicted.IsError() && p.errorCount > 0 {
		p.errorCount--
	}

	if p.blockStart != nil {
		*p.blockStart--
		if *p.blockStart < 0 {
			p.blockStart = nil
		}
	}
}

// FlushParser drains any partially-accumulated exception block in the
// parser itself, used on session teardown so no exception data is
// lost. The resulting entry (if any) is inserted directly, bypassing
// the batcher so it is visible immediately.
func (p *Pipeline) FlushParser() (types.LogEntry, bool) {
	result, ok := p.parser.Flush()
	if !ok {
		return types.LogEntry{}, false
	}
	entry := types.NewLogEntry(nextEntryID(), types.LevelError, types.SourceFlutterError, result.Message)
	entry.StackTrace = result.StackTrace
	p.insert(entry)
	return entry, true
}

// Entries returns the current ring-buffer contents in arrival order.
func (p *Pipeline) Entries() []types.LogEntry {
	return p.entries
}

// Len returns the current number of buffered entries.
func (p *Pipeline) Len() int {
	return len(p.entries)
}

// ErrorCount returns the cached count of Error-severity entries.
func (p *Pipeline) ErrorCount() int {
	return p.errorCount
}

// RecalculateErrorCount performs a full scan to recompute the cached
// error count from scratch. Offered for self-test only; the hot path
// never calls this.
func (p *Pipeline) RecalculateErrorCount() int {
	count := 0
	for _, e := range p.entries {
		if e.IsError() {
			count++
		}
	}
	p.errorCount = count
	return count
}

// Clear resets the buffer, error count, and block tracker. Scroll
// offset and search state live on the owning Session, not here.
func (p *Pipeline) Clear() {
	p.entries = nil
	p.errorCount = 0
	p.blockStart = nil
	p.blockMaxLevel = types.LevelDebug
}
