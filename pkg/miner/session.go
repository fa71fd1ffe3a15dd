package miner

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/bft-labs/walminer/pkg/catalog"
	"github.com/bft-labs/walminer/pkg/heap"
	"github.com/bft-labs/walminer/pkg/log"
	"github.com/bft-labs/walminer/pkg/lsn"
	"github.com/bft-labs/walminer/pkg/pagecache"
	"github.com/bft-labs/walminer/pkg/wal"
)

// Skip reasons, as logged.
const (
	skipUnsupported = "unsupported resource manager"
	skipNoPage      = "page not cached"
	skipBadRecord   = "malformed heap record"
	skipNoRelation  = "relation not mapped"
)

// Stats counts what a session has read so far.
type Stats struct {
	Records uint64
	Changes uint64
	Skipped uint64
	Cache   pagecache.Stats
}

// Session decodes one range of WAL. It owns its segment file and page
// cache and is not safe for concurrent use; independent sessions share
// nothing.
type Session struct {
	cfg      Config
	loc      wal.Location
	reader   *wal.Reader
	cache    *pagecache.Cache
	decoder  *heap.Decoder
	resolver catalog.Resolver
	logger   log.Logger

	first  lsn.LSN
	last   lsn.LSN
	done   bool
	closed bool
	stats  Stats
}

// Open locates the WAL, positions on the first record at or after
// cfg.Start and returns a session ready for Next. Errors from Open are
// fatal: no segment found, no record after the start pointer or an
// invalid config.
func Open(ctx context.Context, cfg Config, opts ...Option) (*Session, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger

	loc, err := wal.Locate(wal.CandidateDirs(cfg.WALDir, cfg.PGData), logger)
	if err != nil {
		return nil, err
	}

	seg := wal.NewSegmentReader(loc.Dir, loc.SegSize, cfg.Timeline, cfg.End, logger)
	reader := wal.NewReader(seg, logger)
	first, err := reader.Seek(cfg.Start)
	if err != nil {
		reader.Close()
		return nil, err
	}

	cacheOpts := cfg.Cache
	cacheOpts.Logger = logger
	cache, err := pagecache.Open(cacheOpts)
	if err != nil {
		reader.Close()
		return nil, fmt.Errorf("open page cache: %w", err)
	}

	logger.Info("decoding session opened",
		log.String("dir", loc.Dir),
		log.Uint32("timeline", cfg.Timeline),
		log.Stringer("start", cfg.Start),
		log.Stringer("first_record", first),
		log.Stringer("end", cfg.End),
		log.String("cache", string(cacheOpts.Backend)),
	)

	return &Session{
		cfg:      cfg,
		loc:      loc,
		reader:   reader,
		cache:    cache,
		decoder:  heap.NewDecoder(cache, logger),
		resolver: o.resolver,
		logger:   logger,
		first:    first,
	}, nil
}

// Location reports where the WAL was found.
func (s *Session) Location() wal.Location { return s.loc }

// First is the start of the first record of the session.
func (s *Session) First() lsn.LSN { return s.first }

// LastLSN is the start of the last record read, Invalid before the first.
func (s *Session) LastLSN() lsn.LSN { return s.last }

// NextLSN is where the next record is expected to start. Opening a new
// session there continues where this one stopped.
func (s *Session) NextLSN() lsn.LSN { return s.reader.NextLSN() }

// Timeline is the timeline being read.
func (s *Session) Timeline() uint32 { return s.cfg.Timeline }

// Done reports whether Next will only return io.EOF from now on.
func (s *Session) Done() bool { return s.done }

// Stats returns the session counters.
func (s *Session) Stats() Stats {
	st := s.stats
	st.Cache = s.cache.Stats()
	return st
}

// Next returns the next change. It returns io.EOF once the log or the
// end pointer is reached, and on every call after that. A corrupt record
// is returned once as an error; the session then reports io.EOF.
//
// ctx is checked before every record, so a long run of skipped records
// stays interruptible.
func (s *Session) Next(ctx context.Context) (Change, error) {
	for {
		if s.done {
			return Change{}, io.EOF
		}
		if err := ctx.Err(); err != nil {
			return Change{}, err
		}

		rec, err := s.reader.ReadRecord()
		if err != nil {
			s.done = true
			if errors.Is(err, wal.ErrEndOfLog) {
				s.logger.Info("end of log",
					log.Stringer("at", s.reader.NextLSN()),
					log.Uint64("records", s.stats.Records),
					log.Uint64("changes", s.stats.Changes),
				)
				return Change{}, io.EOF
			}
			return Change{}, err
		}
		s.stats.Records++
		s.last = rec.LSN

		ch, ok, err := s.decode(ctx, rec)
		if err != nil {
			s.done = true
			return Change{}, err
		}
		if ok {
			s.stats.Changes++
			return ch, nil
		}
	}
}

// decode handles one record. ok is false for skipped records; err is
// only set for failures that end the session.
func (s *Session) decode(ctx context.Context, rec *wal.Record) (Change, bool, error) {
	if _, err := s.cache.RestoreIfPresent(rec); err != nil {
		if errors.Is(err, pagecache.ErrBadImage) {
			s.skip(rec, skipBadRecord, err)
			return Change{}, false, nil
		}
		return Change{}, false, fmt.Errorf("restore pages of %s: %w", rec.LSN, err)
	}

	if createsRelationFile(rec) {
		if inv, ok := s.resolver.(catalog.Invalidator); ok {
			inv.Invalidate()
		}
	}

	if f := familyOf(rec.RmID); f != familyHeap {
		s.stats.Skipped++
		s.logger.Debug("skipping record",
			log.Stringer("lsn", rec.LSN),
			log.String("reason", skipUnsupported),
			log.String("family", f.String()),
			log.Uint8("rmid", rec.RmID),
			log.Hex("info", uint64(rec.Info)),
		)
		return Change{}, false, nil
	}

	row, ok, err := s.decoder.Decode(rec)
	switch {
	case errors.Is(err, pagecache.ErrPageNotCached):
		s.skip(rec, skipNoPage, err)
		return Change{}, false, nil
	case errors.Is(err, heap.ErrDecode):
		s.skip(rec, skipBadRecord, err)
		return Change{}, false, nil
	case err != nil:
		return Change{}, false, fmt.Errorf("decode %s: %w", rec.LSN, err)
	case !ok:
		return Change{}, false, nil
	}

	relid, found, err := s.resolver.Resolve(ctx, row.Locator)
	if err != nil {
		return Change{}, false, fmt.Errorf("resolve relation %s: %w", row.Locator, err)
	}
	if !found {
		s.skip(rec, skipNoRelation, nil)
		return Change{}, false, nil
	}

	return Change{
		LSN:         rec.LSN,
		Database:    row.Locator.Database,
		RelID:       relid,
		RelFileNode: row.Locator.RelNumber,
		XID:         rec.XID,
		Kind:        row.Kind,
		Before:      row.Before,
		After:       row.After,
		Next:        rec.Next,
	}, true, nil
}

func (s *Session) skip(rec *wal.Record, reason string, err error) {
	s.stats.Skipped++
	fields := []log.Field{
		log.Stringer("lsn", rec.LSN),
		log.String("reason", reason),
		log.Uint32("xid", rec.XID),
	}
	if err != nil {
		fields = append(fields, log.Err(err))
	}
	if reason == skipBadRecord {
		s.logger.Warn("skipping record", fields...)
		return
	}
	s.logger.Debug("skipping record", fields...)
}

// Resume lets a session that reached the end of the log read again from
// NextLSN once more WAL has been written. The page cache is kept. It
// reports false when the session cannot continue: it was closed, failed
// or reached its end pointer.
func (s *Session) Resume() bool {
	if s.closed || !s.done || !s.reader.Resume() {
		return false
	}
	s.done = false
	return true
}

// Close releases the segment file and the page cache. It is safe to call
// more than once.
func (s *Session) Close() error {
	s.done = true
	if s.closed {
		return nil
	}
	s.closed = true
	return errors.Join(s.reader.Close(), s.cache.Close())
}
