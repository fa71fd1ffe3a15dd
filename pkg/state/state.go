package state

import (
	"time"

	"github.com/bft-labs/walminer/pkg/lsn"
)

// State is the checkpoint of a mining run.
type State struct {
	// Timeline is the timeline the positions belong to.
	Timeline uint32 `json:"timeline"`

	// LastLSN is the record of the last change handed to the sink.
	LastLSN lsn.LSN `json:"last_lsn"`

	// NextLSN is where reading resumes: the end of the last record
	// processed, whether or not it produced a change.
	NextLSN lsn.LSN `json:"next_lsn"`

	// Changes counts the changes emitted over the life of the state file.
	Changes uint64 `json:"changes"`

	// UpdatedAt is when the checkpoint was taken.
	UpdatedAt time.Time `json:"updated_at"`
}

// IsEmpty returns true if no checkpoint has been taken.
func (s State) IsEmpty() bool {
	return s.NextLSN == lsn.Invalid
}

// Advance moves the checkpoint after changes were delivered.
func (s *State) Advance(timeline uint32, last, next lsn.LSN, changes int) {
	s.Timeline = timeline
	if last > s.LastLSN {
		s.LastLSN = last
	}
	if next > s.NextLSN {
		s.NextLSN = next
	}
	s.Changes += uint64(changes)
	s.UpdatedAt = time.Now()
}
