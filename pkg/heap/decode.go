package heap

import (
	"errors"
	"fmt"

	"github.com/bft-labs/walminer/pkg/log"
	"github.com/bft-labs/walminer/pkg/pagecache"
	"github.com/bft-labs/walminer/pkg/wal"
)

// Kind is the kind of row change.
type Kind uint8

const (
	Insert Kind = iota + 1
	Update
	Delete
)

func (k Kind) String() string {
	switch k {
	case Insert:
		return "insert"
	case Update:
		return "update"
	case Delete:
		return "delete"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// MarshalText renders the kind in change events.
func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Row is the row-level content of one heap record. Before and After are
// complete tuples copied out of the page, header included.
type Row struct {
	Kind    Kind
	Op      Op
	Locator wal.RelFileLocator
	Block   uint32
	Before  Tuple
	After   Tuple
}

// PageStore is where the decoder reads and writes relation pages.
type PageStore interface {
	Get(id pagecache.PageID, dst []byte) error
	Put(id pagecache.PageID, page []byte) error
}

// Decoder turns heap records into rows and keeps the cached pages in step
// with the log.
type Decoder struct {
	pages  PageStore
	logger log.Logger

	newBuf Page
	oldBuf Page
}

// NewDecoder returns a decoder over pages.
func NewDecoder(pages PageStore, logger log.Logger) *Decoder {
	if logger == nil {
		logger = log.Nop
	}
	return &Decoder{
		pages:  pages,
		logger: logger,
		newBuf: make(Page, wal.BlockSize),
		oldBuf: make(Page, wal.BlockSize),
	}
}

// Decode applies rec to the cached pages and returns the row it changed.
// ok is false for operations without row content. The record's full-page
// images must already be in the store.
//
// Block 0 is the page the operation targets; an update whose old row
// lives elsewhere names that page as block 1. Other blocks are ignored.
func (d *Decoder) Decode(rec *wal.Record) (row Row, ok bool, err error) {
	if rec.RmID != wal.RmHeap {
		return Row{}, false, decodeErrorf("record of rmgr %d is not a heap record", rec.RmID)
	}
	op := OpOf(rec.Info)
	switch op {
	case OpInsert:
		return d.insert(rec)
	case OpDelete:
		return d.delete(rec)
	case OpUpdate, OpHotUpdate:
		return d.update(rec, op == OpHotUpdate)
	case OpLock:
		return Row{}, false, d.lock(rec)
	case OpConfirm:
		return Row{}, false, d.confirm(rec)
	case OpInplace:
		return Row{}, false, d.inplace(rec)
	}
	// TRUNCATE names relations, not pages.
	return Row{}, false, nil
}

type blockAction int

const (
	blockNeedsRedo blockAction = iota
	blockRestored
	blockInitialized
	blockDone
)

// readBlock loads the page blk refers to into buf and reports what has to
// happen to it.
func (d *Decoder) readBlock(rec *wal.Record, blk *wal.BlockRef, init bool, buf Page) (blockAction, error) {
	if blk.Fork != wal.MainFork {
		return 0, decodeErrorf("blk %d is in fork %d", blk.ID, blk.Fork)
	}
	id := pagecache.IDOf(blk)
	if blk.HasImage && blk.ApplyImage {
		if err := d.pages.Get(id, buf); err != nil {
			return 0, err
		}
		return blockRestored, nil
	}
	if init {
		InitPage(buf)
		return blockInitialized, nil
	}
	if err := d.pages.Get(id, buf); err != nil {
		return 0, err
	}
	if rec.Next <= buf.LSN() {
		return blockDone, nil
	}
	return blockNeedsRedo, nil
}

func (d *Decoder) writeBlock(rec *wal.Record, blk *wal.BlockRef, page Page) error {
	page.setLSN(rec.Next)
	return d.pages.Put(pagecache.IDOf(blk), page)
}

func modified(a blockAction) bool {
	return a == blockNeedsRedo || a == blockInitialized
}

func block0(rec *wal.Record) (*wal.BlockRef, error) {
	blk, ok := rec.Block(0)
	if !ok {
		return nil, decodeErrorf("record has no block 0")
	}
	return blk, nil
}

func (d *Decoder) insert(rec *wal.Record) (Row, bool, error) {
	xl, err := parseInsert(rec.MainData)
	if err != nil {
		return Row{}, false, err
	}
	blk, err := block0(rec)
	if err != nil {
		return Row{}, false, err
	}
	page := d.newBuf
	action, err := d.readBlock(rec, blk, rec.Info&InfoInitPage != 0, page)
	if err != nil {
		return Row{}, false, err
	}
	if modified(action) {
		if err := redoInsert(page, rec, blk, xl); err != nil {
			return Row{}, false, err
		}
		if err := d.writeBlock(rec, blk, page); err != nil {
			return Row{}, false, err
		}
	}
	tup, err := page.Tuple(xl.offnum)
	if err != nil {
		return Row{}, false, err
	}
	return Row{Kind: Insert, Op: OpInsert, Locator: blk.Locator, Block: blk.Block, After: tup.clone()}, true, nil
}

func (d *Decoder) delete(rec *wal.Record) (Row, bool, error) {
	xl, err := parseDelete(rec.MainData)
	if err != nil {
		return Row{}, false, err
	}
	blk, err := block0(rec)
	if err != nil {
		return Row{}, false, err
	}
	page := d.newBuf
	action, err := d.readBlock(rec, blk, false, page)
	if err != nil {
		return Row{}, false, err
	}
	tup, err := page.Tuple(xl.offnum)
	if err != nil {
		return Row{}, false, err
	}
	before := tup.clone()
	if modified(action) {
		redoDelete(page, tup, rec, blk, xl)
		if err := d.writeBlock(rec, blk, page); err != nil {
			return Row{}, false, err
		}
	}
	if xl.flags&deleteIsSuper != 0 {
		// Aborted speculative insertion; the row never became visible.
		return Row{}, false, nil
	}
	return Row{Kind: Delete, Op: OpDelete, Locator: blk.Locator, Block: blk.Block, Before: before}, true, nil
}

func (d *Decoder) update(rec *wal.Record, hot bool) (Row, bool, error) {
	xl, err := parseUpdate(rec.MainData)
	if err != nil {
		return Row{}, false, err
	}
	newBlk, err := block0(rec)
	if err != nil {
		return Row{}, false, err
	}
	oldBlk, ok := rec.Block(1)
	samePage := !ok
	if !ok {
		oldBlk = newBlk
	}
	op := OpUpdate
	if hot {
		op = OpHotUpdate
	}

	oldPage := d.oldBuf
	oldAction, err := d.readBlock(rec, oldBlk, false, oldPage)
	var before Tuple
	switch {
	case err == nil:
		tup, err := oldPage.Tuple(xl.oldOffnum)
		if err != nil {
			return Row{}, false, err
		}
		before = tup.clone()
		if modified(oldAction) {
			redoUpdateOld(oldPage, tup, rec, xl, newBlk.Block, hot)
			if !samePage {
				if err := d.writeBlock(rec, oldBlk, oldPage); err != nil {
					return Row{}, false, err
				}
			}
		}
	case samePage || !errors.Is(err, pagecache.ErrPageNotCached):
		return Row{}, false, err
	default:
		d.logger.Debug("old row page not cached, update has no before image",
			log.Stringer("lsn", rec.LSN),
			log.Stringer("page", pagecache.IDOf(oldBlk)),
		)
	}

	newPage, newAction := oldPage, oldAction
	if !samePage {
		newPage = d.newBuf
		newAction, err = d.readBlock(rec, newBlk, rec.Info&InfoInitPage != 0, newPage)
		if err != nil {
			return Row{}, false, err
		}
	}
	if modified(newAction) {
		if err := redoUpdateNew(newPage, before, rec, newBlk, xl); err != nil {
			return Row{}, false, err
		}
		if err := d.writeBlock(rec, newBlk, newPage); err != nil {
			return Row{}, false, err
		}
	}
	tup, err := newPage.Tuple(xl.newOffnum)
	if err != nil {
		return Row{}, false, err
	}
	return Row{Kind: Update, Op: op, Locator: newBlk.Locator, Block: newBlk.Block, Before: before, After: tup.clone()}, true, nil
}

func (d *Decoder) lock(rec *wal.Record) error {
	xl, err := parseLock(rec.MainData)
	if err != nil {
		return err
	}
	return d.mutateTuple(rec, xl.offnum, func(tup Tuple, blk *wal.BlockRef) error {
		redoLock(tup, blk, xl)
		return nil
	})
}

func (d *Decoder) confirm(rec *wal.Record) error {
	off, err := parseOffnum(rec.MainData, "confirm")
	if err != nil {
		return err
	}
	return d.mutateTuple(rec, off, func(tup Tuple, blk *wal.BlockRef) error {
		tup.setCtid(blk.Block, off)
		return nil
	})
}

func (d *Decoder) inplace(rec *wal.Record) error {
	off, err := parseOffnum(rec.MainData, "inplace")
	if err != nil {
		return err
	}
	return d.mutateTuple(rec, off, func(tup Tuple, blk *wal.BlockRef) error {
		return redoInplace(tup, blk.Data)
	})
}

// mutateTuple replays a change to a single tuple of block 0.
func (d *Decoder) mutateTuple(rec *wal.Record, off uint16, fn func(Tuple, *wal.BlockRef) error) error {
	blk, err := block0(rec)
	if err != nil {
		return err
	}
	page := d.newBuf
	action, err := d.readBlock(rec, blk, false, page)
	if err != nil || !modified(action) {
		return err
	}
	tup, err := page.Tuple(off)
	if err != nil {
		return err
	}
	if err := fn(tup, blk); err != nil {
		return err
	}
	return d.writeBlock(rec, blk, page)
}
