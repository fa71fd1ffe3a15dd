package sink

// Metadata describes the sender of a batch. HTTPSink sends it as request
// headers.
type Metadata struct {
	// Hostname is the host running the miner.
	Hostname string

	// OSArch is the operating system and architecture (e.g., "linux/amd64")
	OSArch string

	// Timeline is the timeline being read.
	Timeline uint32

	// AuthKey is the API authentication key
	AuthKey string

	// ServiceURL is the base URL of the ingestion service
	ServiceURL string
}
