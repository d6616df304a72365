package pipeline

import (
	"context"
	"errors"

	"health-assistant/internal/domain/entity"
	"health-assistant/internal/resilience/retry"
)

// ClassifyFetchError retries only transient fetch failures.
// Auth and rate limited responses are fatal for this cycle.
func ClassifyFetchError(err error) retry.Classification {
	var fetchErr *entity.FetchError
	if errors.As(err, &fetchErr) {
		return classification(fetchErr.Retryable())
	}
	return unclassified(err)
}

// ClassifyDeliveryError retries only transient delivery failures.
func ClassifyDeliveryError(err error) retry.Classification {
	var deliveryErr *entity.DeliveryError
	if errors.As(err, &deliveryErr) {
		return classification(deliveryErr.Retryable())
	}
	return unclassified(err)
}

// unclassified treats an unknown adapter failure as transient. Cancellation
// and a bare expired deadline are fatal; a wrapped client timeout is not.
func unclassified(err error) retry.Classification {
	if errors.Is(err, context.Canceled) || err == context.DeadlineExceeded {
		return retry.Fatal
	}
	return retry.Retryable
}

func classification(retryable bool) retry.Classification {
	if retryable {
		return retry.Retryable
	}
	return retry.Fatal
}
