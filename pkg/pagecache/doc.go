// Package pagecache keeps the reconstructed relation pages of one decoding
// session, keyed by their physical address.
//
// Pages enter the cache only through full-page images carried by WAL
// records. Later records either replace a page with a newer image or
// mutate the cached copy in place; a page that never appeared in an image
// is unknown and records touching it cannot be replayed.
package pagecache
