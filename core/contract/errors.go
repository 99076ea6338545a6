package contract

import "errors"

var (
	// ErrNotFound is returned by Recall and adapter Fetch when no value
	// exists for the key in any tier.
	ErrNotFound = errors.New("not found")

	// ErrTierUnavailable marks a transient tier-level outage. The caller
	// decides whether to retry with backoff or fail the request.
	ErrTierUnavailable = errors.New("tier unavailable")

	// ErrPayloadTooLarge rejects hot-tier writes above the configured
	// threshold. Use durable or archival intent for big objects.
	ErrPayloadTooLarge = errors.New("payload too large for hot tier")

	// ErrMissingPartitionKey fails fast on durable reads/writes that omit
	// the partition hint. The manager never guesses a partition.
	ErrMissingPartitionKey = errors.New("missing partition key")

	ErrModelTimeout     = errors.New("model invocation timed out")
	ErrModelUnavailable = errors.New("model target unavailable")

	ErrSagaNotFound       = errors.New("saga instance not found")
	ErrSagaStepTimeout    = errors.New("saga step deadline exceeded")
	ErrSagaStepFailed     = errors.New("saga step failed")
	ErrEventDeliveryFailed = errors.New("event delivery failed")

	// ErrVersionConflict signals a lost optimistic-concurrency race on a
	// persisted saga instance; the coordinator reloads and retries.
	ErrVersionConflict = errors.New("saga version conflict")

	ErrValidation = errors.New("validation failed")
)
