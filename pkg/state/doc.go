// Package state persists the position of a mining run so that it can be
// resumed after a restart.
//
// # Usage
//
//	repo := state.NewFileRepository("/var/lib/walminer")
//
//	s, err := repo.Load(ctx)
//	if err != nil {
//	    return err
//	}
//	if !s.IsEmpty() {
//	    start = s.NextLSN
//	}
//
//	// ... emit changes, then record how far the run got ...
//	s.Advance(tli, last, next, delivered)
//	if err := repo.Save(ctx, s); err != nil {
//	    return err
//	}
//
// Positions are written as "X/XXXXXXXX" strings, the same form the server
// and the command line use.
package state
