// Package sink delivers batches of change events.
//
// Two sinks are provided: JSONLines writes one JSON object per change to
// any io.Writer, HTTPSink posts each batch as a JSON array to an ingestion
// service.
//
// # Usage
//
//	s := sink.NewHTTPSink(httpClient, logger)
//
//	metadata := sink.Metadata{
//	    AuthKey:    "api-key",
//	    ServiceURL: "https://cdc.example.com",
//	}
//
//	b := sink.NewBatch()
//	payload, err := sink.Encode(change)
//	if err != nil {
//	    return err
//	}
//	b.Add(change, payload)
//	if err := s.Send(ctx, b, metadata); err != nil {
//	    return err
//	}
//
// # Custom Sinks
//
// Implement the Sink interface to deliver changes elsewhere (a message
// broker, object storage, a local file).
package sink
