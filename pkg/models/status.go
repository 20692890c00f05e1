package models

// FetchStatus is the typed outcome of a single fetch-and-parse attempt
type FetchStatus string

const (
	FetchStatusUnset   FetchStatus = ""        // Zero value = not attempted
	FetchStatusSuccess FetchStatus = "success" // Fetched and produced data
	FetchStatusEmpty   FetchStatus = "empty"   // Fetched fine but nothing usable was found
	FetchStatusFailed  FetchStatus = "failed"  // Transport failure (non-2xx, timeout, connection error)
)

// String implements fmt.Stringer for logging
func (s FetchStatus) String() string {
	if s == "" {
		return "unset"
	}
	return string(s)
}

// IsValid returns true if the status is a known operational value
func (s FetchStatus) IsValid() bool {
	switch s {
	case FetchStatusSuccess, FetchStatusEmpty, FetchStatusFailed:
		return true
	}
	return false
}

// LifecycleState is the position of a CrawlResult in the collect/depth-crawl/store flow
type LifecycleState string

const (
	StateCollected    LifecycleState = "collected"
	StateDepthCrawled LifecycleState = "depth_crawled"
	StateStored       LifecycleState = "stored"
)

// String implements fmt.Stringer for logging
func (s LifecycleState) String() string {
	return string(s)
}
