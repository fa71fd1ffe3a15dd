// Package ports defines the interfaces that connect the streaming loop in
// internal/app to the decoding engine and to the outside world.
//
// # Port Interfaces
//
//   - [ChangeSource]: yields row changes from the WAL (a miner session)
//   - [ChangeSink]: delivers batches of changes (stdout, HTTP)
//   - [StateRepository]: persists and loads the resume checkpoint
//   - [Waiter]: blocks until the WAL directory may have grown
//
// The application layer depends only on these interfaces, so the loop can
// be tested with in-memory fakes.
package ports
