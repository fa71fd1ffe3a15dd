package heap

import (
	"github.com/bft-labs/walminer/pkg/wal"
)

// newTuple builds the tuple an insert or update puts on the page: a zeroed
// header stamped from xl_heap_header followed by the logged data.
func newTuple(hdr xlHeader, data []byte, xid uint32, blk uint32, off uint16) Tuple {
	tup := make(Tuple, TupleHeaderSize+len(data))
	copy(tup[TupleHeaderSize:], data)
	tup.setInfomask2(hdr.infomask2)
	tup.setInfomask(hdr.infomask)
	tup[22] = hdr.hoff
	tup.setXmin(xid)
	tup.setCid(0)
	tup.setCtid(blk, off)
	return tup
}

func redoInsert(page Page, rec *wal.Record, blk *wal.BlockRef, xl xlInsert) error {
	if int(xl.offnum) > page.MaxOffset()+1 {
		return decodeErrorf("insert at slot %d past max offset %d", xl.offnum, page.MaxOffset())
	}
	hdr, err := parseHeader(blk.Data)
	if err != nil {
		return err
	}
	tup := newTuple(hdr, blk.Data[sizeOfHeader:], rec.XID, blk.Block, xl.offnum)
	if err := page.AddItem(tup, xl.offnum); err != nil {
		return err
	}
	if xl.flags&insertAllVisibleCleared != 0 {
		page.clearAllVisible()
	}
	return nil
}

func redoDelete(page Page, tup Tuple, rec *wal.Record, blk *wal.BlockRef, xl xlDelete) {
	tup.clearXmax()
	tup.setInfomask2(tup.Infomask2() &^ (keysUpdated | hotUpdated))
	tup.fixInfomask(xl.infobits)
	if xl.flags&deleteIsSuper == 0 {
		tup.setXmax(xl.xmax)
	} else {
		tup.setXmin(0)
	}
	tup.setCid(0)
	page.setPrunable(rec.XID)
	if xl.flags&deleteAllVisibleCleared != 0 {
		page.clearAllVisible()
	}
	tup.setCtid(blk.Block, xl.offnum)
}

// redoUpdateOld stamps the old version of an updated row.
func redoUpdateOld(page Page, tup Tuple, rec *wal.Record, xl xlUpdate, newBlock uint32, hot bool) {
	tup.clearXmax()
	mask2 := tup.Infomask2() &^ keysUpdated
	if hot {
		mask2 |= hotUpdated
	} else {
		mask2 &^= hotUpdated
	}
	tup.setInfomask2(mask2)
	tup.fixInfomask(xl.oldInfobits)
	tup.setXmax(xl.oldXmax)
	tup.setCid(0)
	tup.setCtid(newBlock, xl.newOffnum)
	page.setPrunable(rec.XID)
	if xl.flags&updateOldAllVisibleCleared != 0 {
		page.clearAllVisible()
	}
}

// redoUpdateNew places the new version of an updated row. old is the old
// version, needed when the record only logged the changed middle part.
func redoUpdateNew(page Page, old Tuple, rec *wal.Record, blk *wal.BlockRef, xl xlUpdate) error {
	data := blk.Data
	var prefixLen, suffixLen int
	if xl.flags&updatePrefixFromOld != 0 {
		if len(data) < 2 {
			return decodeErrorf("update prefix length truncated")
		}
		prefixLen = int(data[0]) | int(data[1])<<8
		data = data[2:]
	}
	if xl.flags&updateSuffixFromOld != 0 {
		if len(data) < 2 {
			return decodeErrorf("update suffix length truncated")
		}
		suffixLen = int(data[0]) | int(data[1])<<8
		data = data[2:]
	}
	hdr, err := parseHeader(data)
	if err != nil {
		return err
	}
	data = data[sizeOfHeader:]

	if prefixLen+suffixLen > 0 {
		if old == nil {
			return decodeErrorf("update needs the old row to rebuild %d prefix and %d suffix bytes", prefixLen, suffixLen)
		}
		if oldData := old.Data(); prefixLen+suffixLen > len(oldData) {
			return decodeErrorf("update prefix %d and suffix %d exceed old row data of %d bytes", prefixLen, suffixLen, len(oldData))
		}
	}

	body := make([]byte, 0, len(data)+prefixLen+suffixLen)
	if prefixLen > 0 {
		// The null bitmap and padding up to t_hoff come from the record,
		// then the unchanged prefix of the old row.
		bitmap := int(hdr.hoff) - TupleHeaderSize
		if bitmap < 0 || bitmap > len(data) {
			return decodeErrorf("update t_hoff %d does not fit logged data of %d bytes", hdr.hoff, len(data))
		}
		body = append(body, data[:bitmap]...)
		body = append(body, old.Data()[:prefixLen]...)
		body = append(body, data[bitmap:]...)
	} else {
		body = append(body, data...)
	}
	if suffixLen > 0 {
		body = append(body, old[len(old)-suffixLen:]...)
	}

	tup := newTuple(hdr, body, rec.XID, blk.Block, xl.newOffnum)
	tup.setXmax(xl.newXmax)
	if err := page.AddItem(tup, xl.newOffnum); err != nil {
		return err
	}
	if xl.flags&updateNewAllVisibleCleared != 0 {
		page.clearAllVisible()
	}
	return nil
}

func redoLock(tup Tuple, blk *wal.BlockRef, xl xlLock) {
	tup.clearXmax()
	tup.setInfomask2(tup.Infomask2() &^ keysUpdated)
	tup.fixInfomask(xl.infobits)
	if tup.xmaxLockedOnly() {
		tup.setInfomask2(tup.Infomask2() &^ hotUpdated)
		tup.setCtid(blk.Block, xl.offnum)
	}
	tup.setXmax(xl.xmax)
	tup.setCid(0)
}

func redoInplace(tup Tuple, data []byte) error {
	if int(tup.Hoff()) > len(tup) {
		return decodeErrorf("tuple t_hoff %d beyond tuple of %d bytes", tup.Hoff(), len(tup))
	}
	if old := len(tup) - int(tup.Hoff()); old != len(data) {
		return decodeErrorf("inplace update changes row size from %d to %d", old, len(data))
	}
	copy(tup[tup.Hoff():], data)
	return nil
}
