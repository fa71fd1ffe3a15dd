// Package miner turns a range of WAL into row-level change events.
//
// A Session ties the pieces of the engine together: it locates the WAL
// directory, assembles records from the segments, keeps a page
// reconstruction cache in step with the log and decodes heap records
// into Changes. It is a pull-based iterator:
//
//	s, err := miner.Open(ctx, miner.Config{Start: start})
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//	for {
//	    ch, err := s.Next(ctx)
//	    if errors.Is(err, io.EOF) {
//	        break
//	    }
//	    if err != nil {
//	        return err
//	    }
//	    handle(ch)
//	}
//
// Records that cannot be turned into a change (other resource managers,
// pages never seen in a full-page image, unmapped relations, malformed
// slots) are logged and skipped. Only errors that stop the whole session
// are returned from Next.
package miner
