package walminer_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/bft-labs/walminer"
	"github.com/bft-labs/walminer/pkg/log"
	"github.com/bft-labs/walminer/pkg/lsn"
)

// ExampleOpen reads the changes of a range of WAL one at a time.
func ExampleOpen() {
	ctx := context.Background()
	s, err := walminer.Open(ctx, walminer.SessionConfig{
		Start:  lsn.MustParse("0/1800028"),
		WALDir: "/var/lib/postgresql/16/main/pg_wal",
	})
	if err != nil {
		fmt.Printf("open: %v\n", err)
		return
	}
	defer s.Close()

	for {
		ch, err := s.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			fmt.Printf("next: %v\n", err)
			return
		}
		fmt.Printf("%s %s relid=%d xid=%d\n", ch.LSN, ch.Kind, ch.RelID, ch.XID)
	}
}

// ExampleNew follows the WAL and posts changes to an ingest service,
// resuming from the last checkpoint.
func ExampleNew() {
	cfg := walminer.DefaultConfig()
	cfg.Session.WALDir = "/var/lib/postgresql/16/main/pg_wal"
	cfg.Session.Start = lsn.MustParse("0/1800028")
	cfg.StateDir = "/var/lib/walminer"
	cfg.Resume = true
	cfg.Follow = true
	cfg.ServiceURL = "https://ingest.example.com"
	cfg.AuthKey = "api-key"

	logger := log.New(log.Options{Out: os.Stderr, Level: "info", Format: "json"})
	m, err := walminer.New(cfg, walminer.WithLogger(logger))
	if err != nil {
		fmt.Printf("failed to create miner: %v\n", err)
		return
	}
	_ = m // m.Run(ctx) blocks until the context is cancelled.
}
