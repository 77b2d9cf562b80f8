// Package classifier defines the taxonomic prediction types shared by the
// pipeline and an HTTP client for the classification service.
//
// Every backend returns the same Prediction shape regardless of rank, and Best
// applies the single tie-break rule used everywhere: highest score wins, the
// first of equal scores wins. The HTTP client bounds every request with a
// timeout and retries transient failures (timeouts, 408, 429, 5xx, refused
// connections) with exponential backoff that honours Retry-After.
package classifier
