// Package log is the logging seam used by every walminer component.
//
// Components accept a Logger and never reach for a global. The zerolog
// adapter is what the CLI wires in; library callers that do not care about
// output get Nop.
//
//	logger := log.New(log.Options{Level: "debug", Format: "console"})
//	logger.Info("opened segment", log.String("path", p))
//
// Record-level skips are reported through the logger rather than as errors,
// so the level decides how chatty a long scan is.
package log
