// Package follow waits for a WAL directory to grow.
//
// A Watcher wakes up when a segment file in the directory is created or
// written, and after every poll interval in any case, so that a session
// that reached the end of the log knows when to try again. Change
// notifications come from fsnotify; when the directory cannot be watched
// the Watcher only polls.
package follow
