// Package domain holds the errors shared by the streaming layers.
//
// They are returned by the public API and can be checked with errors.Is.
package domain
