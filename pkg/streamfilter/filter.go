package streamfilter

import (
	"errors"
	"sort"
	"sync"

	"github.com/mercator-hq/warden/pkg/iobuf"
)

// Direction identifies which half of the exchange a filter instance
// belongs to. Kept as an enum with a two-armed switch rather than an
// interface with two implementations: request and response filters share
// every field and differ only in which proxy VIO they bind to.
type Direction int

const (
	Request Direction = iota
	Response
)

func (d Direction) String() string {
	if d == Response {
		return "response"
	}
	return "request"
}

// BufferingMode selects how a filter handles bytes between arrival and
// forwarding.
type BufferingMode int

const (
	// NoBuf forwards every chunk immediately; nothing is held back.
	NoBuf BufferingMode = iota
	// Discard stops forwarding entirely once a synthetic error status has
	// been set; the engine is diverting to an error response.
	Discard
	// BufferAll holds every byte until told to release (engine inspection
	// finished) or until the terminal flush.
	BufferAll
	// BufferFlushAll flushes everything staged, then stages the new chunk,
	// whenever staging the new chunk would exceed the configured limit.
	BufferFlushAll
	// BufferFlushPart flushes only enough of what is staged to make room
	// for the new chunk under the configured limit.
	BufferFlushPart
)

// Edit is a single pending byte-range replacement, expressed in pre-edit
// coordinates. Start and Bytes describe the original range to remove;
// Repl is the bytes to insert in its place.
type Edit struct {
	Start int64
	Bytes int64
	Repl  []byte
}

var (
	// ErrEditTooLate is returned when an edit targets bytes already
	// forwarded downstream.
	ErrEditTooLate = errors.New("streamfilter: edit targets bytes already forwarded")
	// ErrEditOverlap is returned when an edit overlaps one already queued.
	ErrEditOverlap = errors.New("streamfilter: edit overlaps a previously queued edit")
)

// Notifier delivers body-data and body-finished notifications to the
// rules engine. Implemented by pkg/dispatch on behalf of the mediator so
// that notification never runs synchronously on the caller's goroutine.
type Notifier interface {
	NotifyBodyData(dir Direction, data []byte) error
	NotifyBodyFinished(dir Direction) error
}

// Logger is the minimal logging capability the filter needs; satisfied by
// pkg/telemetry/logging.Logger.
type Logger interface {
	Debugf(format string, args ...any)
	Errorf(format string, args ...any)
}

// Output is the downstream sink a filter forwards bytes to: the proxy's
// output VIO.
type Output interface {
	Write(p []byte) (int, error)
	// SetNBytes tells the downstream VIO how many bytes to expect in
	// total, mirroring TSVIONBytesSet — called once, at the terminal
	// flush, with bytes_done + offs.
	SetNBytes(n int64)
}

// Config configures a new Filter.
type Config struct {
	Mode     BufferingMode
	BufLimit int64
	Notifier Notifier
	Logger   Logger
	Out      Output
}

// Filter is a per-direction body filter.
type Filter struct {
	mu sync.Mutex

	dir      Direction
	mode     BufferingMode
	bufLimit int64

	staging     *iobuf.Buffer
	stageReader *iobuf.Reader

	bytesDone     int64
	bytesNotified int64
	offs          int64
	haveEdits     bool
	finished      bool

	edits []Edit // kept sorted ascending by Start

	out      Output
	notifier Notifier
	logger   Logger

	// statusFn reports the transaction's current synthetic error status
	// (0 if none); once non-zero the filter switches to Discard.
	statusFn func() int
}

// New creates a filter for the given direction.
func New(dir Direction, cfg Config, statusFn func() int) *Filter {
	staging := iobuf.NewBuffer()
	return &Filter{
		dir:         dir,
		mode:        cfg.Mode,
		bufLimit:    cfg.BufLimit,
		staging:     staging,
		stageReader: staging.NewReader(),
		out:         cfg.Out,
		notifier:    cfg.Notifier,
		logger:      cfg.Logger,
		statusFn:    statusFn,
	}
}

// Direction reports which half of the exchange this filter serves.
func (f *Filter) Direction() Direction { return f.dir }

// SetPolicy replaces the buffering policy. Only meaningful before the
// first chunk arrives; once bytes have been notified the selection is
// fixed, matching the read-once contract of the engine's context
// configuration.
func (f *Filter) SetPolicy(mode BufferingMode, limit int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.bytesNotified > 0 || f.bytesDone > 0 {
		return
	}
	f.mode = mode
	f.bufLimit = limit
}

// MarkEditsDeclared records that the engine has declared intent to edit
// this direction (the edit_init callback).
func (f *Filter) MarkEditsDeclared() {
	f.mu.Lock()
	f.haveEdits = true
	f.mu.Unlock()
}

// HasEdits reports whether edit_init has been called for this direction.
func (f *Filter) HasEdits() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.haveEdits
}

// Stats is a snapshot of accounting counters, used by telemetry and tests.
type Stats struct {
	BytesDone     int64
	BytesNotified int64
	Offset        int64
	Buffered      int64
}

// Stats returns a snapshot of the filter's accounting state.
func (f *Filter) Stats() Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return Stats{
		BytesDone:     f.bytesDone,
		BytesNotified: f.bytesNotified,
		Offset:        f.offs,
		Buffered:      int64(f.stageReader.Avail()),
	}
}

// AddEdit queues an edit from the engine's stream_edit callback. Edits
// must be non-overlapping and must not target bytes already forwarded;
// violations are rejected (and logged by the caller) rather than panicking.
func (f *Filter) AddEdit(e Edit) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if e.Start < f.bytesDone {
		return ErrEditTooLate
	}

	idx := sort.Search(len(f.edits), func(i int) bool { return f.edits[i].Start >= e.Start })
	if idx > 0 {
		prev := f.edits[idx-1]
		if prev.Start+prev.Bytes > e.Start {
			return ErrEditOverlap
		}
	}
	if idx < len(f.edits) {
		next := f.edits[idx]
		if e.Start+e.Bytes > next.Start {
			return ErrEditOverlap
		}
	}

	f.edits = append(f.edits, Edit{})
	copy(f.edits[idx+1:], f.edits[idx:])
	f.edits[idx] = e
	return nil
}

// ApplyChunk runs the per-chunk procedure: it notifies
// the engine of the chunk, applies the buffering policy, and — if end is
// true — performs the terminal flush.
func (f *Filter) ApplyChunk(data []byte, end bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.mode != Discard && f.statusFn() != 0 {
		f.mode = Discard
	}

	if f.mode != Discard && len(data) > 0 {
		if err := f.notifier.NotifyBodyData(f.dir, data); err != nil {
			f.logger.Errorf("%s body notify failed: %v", f.dir, err)
		}
		f.bytesNotified += int64(len(data))
	}

	switch f.mode {
	case Discard:
		// Neither staged nor forwarded.
	case NoBuf:
		f.staging.Write(data)
		f.flushN(int64(len(data)), false)
	case BufferAll:
		f.staging.Write(data)
	case BufferFlushAll:
		if int64(f.stageReader.Avail())+int64(len(data)) > f.bufLimit {
			f.flushN(int64(f.stageReader.Avail()), false)
		}
		f.staging.Write(data)
	case BufferFlushPart:
		projected := int64(f.stageReader.Avail()) + int64(len(data))
		if projected > f.bufLimit {
			f.flushN(projected-f.bufLimit, false)
		}
		f.staging.Write(data)
	}

	if end {
		f.terminalFlush()
	}
}

// Release forces a non-terminal flush of everything currently staged. The
// mediator calls this when the rules engine signals that its inspection
// of the buffered data has finished (BufferAll's release point).
func (f *Filter) Release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushN(int64(f.stageReader.Avail()), false)
}

// Finished reports whether the terminal flush has already run.
func (f *Filter) Finished() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.finished
}

func (f *Filter) terminalFlush() {
	if f.finished {
		return
	}
	f.flushN(int64(f.stageReader.Avail()), true)
	f.out.SetNBytes(f.bytesDone + f.offs)
	f.finished = true
	if f.mode != Discard {
		if err := f.notifier.NotifyBodyFinished(f.dir); err != nil {
			f.logger.Errorf("%s body finished notify failed: %v", f.dir, err)
		}
	}
}

// flushN forwards n pre-edit bytes from the staging buffer to the output,
// applying any edits whose full range is available. terminal indicates
// whether this is the end-of-stream flush: edits that cannot be fully
// satisfied are deferred on a normal flush but dropped (logged) on a
// terminal one, since no more data will ever arrive to satisfy them.
func (f *Filter) flushN(n int64, terminal bool) {
	pos := f.bytesDone
	remaining := n

	for remaining > 0 {
		if len(f.edits) == 0 {
			f.forwardVerbatim(remaining)
			pos += remaining
			remaining = 0
			break
		}

		e := f.edits[0]
		if e.Start < pos {
			f.logger.Errorf("dropping edit start=%d before bytes_done=%d", e.Start, pos)
			f.edits = f.edits[1:]
			continue
		}
		if e.Start >= pos+remaining {
			// Edit starts beyond this flush window; nothing more to do now.
			f.forwardVerbatim(remaining)
			pos += remaining
			remaining = 0
			break
		}
		if e.Start+e.Bytes > pos+remaining {
			// Edit's replaced range isn't fully available yet.
			if terminal {
				f.logger.Errorf("dropping out-of-range edit start=%d bytes=%d at terminal flush", e.Start, e.Bytes)
				f.edits = f.edits[1:]
				continue
			}
			verbatim := e.Start - pos
			f.forwardVerbatim(verbatim)
			pos += verbatim
			remaining -= verbatim
			break
		}

		verbatim := e.Start - pos
		f.forwardVerbatim(verbatim)
		f.skip(e.Bytes)
		f.writeReplacement(e.Repl)
		f.offs += int64(len(e.Repl)) - e.Bytes
		pos += verbatim + e.Bytes
		remaining -= verbatim + e.Bytes
		f.edits = f.edits[1:]
	}

	f.bytesDone = pos

	if terminal && len(f.edits) > 0 {
		for _, e := range f.edits {
			f.logger.Errorf("dropping unreachable edit start=%d bytes=%d at terminal flush", e.Start, e.Bytes)
		}
		f.edits = nil
	}
}

func (f *Filter) forwardVerbatim(n int64) {
	if n <= 0 {
		return
	}
	if _, err := f.stageReader.WriteTo(f.out, int(n)); err != nil {
		f.logger.Errorf("%s forward failed: %v", f.dir, err)
	}
}

func (f *Filter) skip(n int64) {
	if n <= 0 {
		return
	}
	f.stageReader.Consume(int(n))
}

func (f *Filter) writeReplacement(repl []byte) {
	if len(repl) == 0 {
		return
	}
	if _, err := f.out.Write(repl); err != nil {
		f.logger.Errorf("%s write replacement failed: %v", f.dir, err)
	}
}
