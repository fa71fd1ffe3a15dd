// Package heap decodes heap resource manager records into row changes.
//
// Rows are read from slotted pages kept in the page cache. Records that do
// not carry a full-page image are replayed onto the cached page so that
// later records see the page as the server left it.
package heap
