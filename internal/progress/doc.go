// Package progress carries the lifecycle events each lead job emits as it moves
// through rendering, contact discovery, and extraction. A non-blocking Hub
// batches events on a background goroutine and fans them out to sinks such as
// structured logs or Prometheus collectors. Under backpressure the Hub sheds
// intermediate stages, never job or batch boundaries, and reports the shed
// count on the batch's BATCH_DONE event.
package progress
