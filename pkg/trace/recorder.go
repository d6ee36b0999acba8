// pkg/trace/recorder.go
// Package trace records resolved page faults into a SQLite database so
// that paging behaviour can be inspected after a run.
package trace

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"vmkern/pkg/pager"
	"vmkern/pkg/vm"
)

// DefaultBatchSize is the number of buffered events that triggers a
// background flush
const DefaultBatchSize = 256

var ErrClosed = errors.New("trace: recorder is closed")

const schema = `
CREATE TABLE IF NOT EXISTS faults (
	seq          INTEGER PRIMARY KEY AUTOINCREMENT,
	space        INTEGER NOT NULL,
	vpn          INTEGER NOT NULL,
	pfn          INTEGER NOT NULL,
	source       TEXT    NOT NULL,
	evicted      INTEGER NOT NULL,
	victim_space INTEGER,
	victim_vpn   INTEGER,
	swapped_out  INTEGER NOT NULL,
	victim_slot  INTEGER
);
CREATE INDEX IF NOT EXISTS faults_page ON faults (space, vpn);
`

const insertFault = `INSERT INTO faults
	(space, vpn, pfn, source, evicted, victim_space, victim_vpn, swapped_out, victim_slot)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

// Options configures a Recorder
type Options struct {
	BatchSize int          // Events buffered before a background flush (default 256)
	Logger    *slog.Logger // Flush failures are logged here
}

// Recorder is a vm.Observer that persists fault events. ObserveFault
// only appends to a buffer; a background goroutine writes batches in
// one transaction each.
type Recorder struct {
	db    *sql.DB
	log   *slog.Logger
	batch int

	mu      sync.Mutex
	pending []vm.FaultEvent
	closed  bool

	// Serialises flushes so batches land in order.
	flushMu sync.Mutex

	kick chan struct{}
	done chan struct{}
	wg   sync.WaitGroup
}

var _ vm.Observer = (*Recorder)(nil)

// Open creates or appends to the trace database at path. ":memory:"
// keeps the trace in memory.
func Open(path string, opts Options) (*Recorder, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("trace: open %s: %w", path, err)
	}
	// One connection: an in-memory database exists per connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("trace: create schema: %w", err)
	}

	r := &Recorder{
		db:    db,
		log:   opts.Logger,
		batch: opts.BatchSize,
		kick:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
	r.wg.Add(1)
	go r.flusher()
	return r, nil
}

// ObserveFault buffers ev. It never blocks on the database.
func (r *Recorder) ObserveFault(ev vm.FaultEvent) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.pending = append(r.pending, ev)
	full := len(r.pending) >= r.batch
	r.mu.Unlock()

	if full {
		select {
		case r.kick <- struct{}{}:
		default:
		}
	}
}

func (r *Recorder) flusher() {
	defer r.wg.Done()
	for {
		select {
		case <-r.kick:
			if err := r.Flush(); err != nil {
				r.log.Error("trace flush failed", "error", err)
			}
		case <-r.done:
			return
		}
	}
}

// Flush writes every buffered event. A batch that fails to write is put
// back ahead of newer events and retried by the next Flush.
func (r *Recorder) Flush() error {
	r.flushMu.Lock()
	defer r.flushMu.Unlock()

	r.mu.Lock()
	events := r.pending
	r.pending = nil
	r.mu.Unlock()

	if len(events) == 0 {
		return nil
	}

	if err := r.write(events); err != nil {
		r.mu.Lock()
		r.pending = append(events, r.pending...)
		r.mu.Unlock()
		return err
	}
	r.log.Debug("trace flushed", "events", len(events))
	return nil
}

func (r *Recorder) write(events []vm.FaultEvent) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("trace: begin: %w", err)
	}
	stmt, err := tx.Prepare(insertFault)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("trace: prepare: %w", err)
	}
	defer stmt.Close()

	for _, ev := range events {
		var victimSpace, victimVPN, victimSlot sql.NullInt64
		if ev.Evicted {
			victimSpace = sql.NullInt64{Int64: int64(ev.VictimSpace), Valid: true}
			victimVPN = sql.NullInt64{Int64: int64(ev.VictimVPN), Valid: true}
		}
		if ev.SwappedOut {
			victimSlot = sql.NullInt64{Int64: int64(ev.VictimSlot), Valid: true}
		}
		if _, err := stmt.Exec(int64(ev.Space), ev.VPN, ev.PFN, ev.Source.String(),
			ev.Evicted, victimSpace, victimVPN, ev.SwappedOut, victimSlot); err != nil {
			tx.Rollback()
			return fmt.Errorf("trace: insert: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("trace: commit: %w", err)
	}
	return nil
}

// Events returns the recorded faults of space in order, flushing first
func (r *Recorder) Events(space vm.ID) ([]vm.FaultEvent, error) {
	if err := r.Flush(); err != nil {
		return nil, err
	}

	rows, err := r.db.Query(`SELECT space, vpn, pfn, source, evicted, victim_space, victim_vpn, swapped_out, victim_slot
		FROM faults WHERE space = ? ORDER BY seq`, int64(space))
	if err != nil {
		return nil, fmt.Errorf("trace: query: %w", err)
	}
	defer rows.Close()

	var out []vm.FaultEvent
	for rows.Next() {
		var ev vm.FaultEvent
		var sp int64
		var source string
		var victimSpace, victimVPN, victimSlot sql.NullInt64
		if err := rows.Scan(&sp, &ev.VPN, &ev.PFN, &source, &ev.Evicted,
			&victimSpace, &victimVPN, &ev.SwappedOut, &victimSlot); err != nil {
			return nil, fmt.Errorf("trace: scan: %w", err)
		}
		ev.Space = vm.ID(sp)
		ev.Source = parseSource(source)
		ev.VictimSpace = vm.ID(victimSpace.Int64)
		ev.VictimVPN = int(victimVPN.Int64)
		ev.VictimSlot = pager.NoSlot
		if victimSlot.Valid {
			ev.VictimSlot = pager.SlotID(victimSlot.Int64)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func parseSource(s string) vm.FaultSource {
	switch s {
	case "image":
		return vm.SourceImage
	case "swap":
		return vm.SourceSwap
	default:
		return vm.SourceZero
	}
}

// Close flushes remaining events and closes the database. Events
// observed after Close are dropped.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	close(r.done)
	r.wg.Wait()

	err := r.Flush()
	if cerr := r.db.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
