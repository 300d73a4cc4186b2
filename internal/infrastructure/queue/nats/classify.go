package nats

import (
	"context"
	"errors"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/hdimage/internal/core/domain"
	"github.com/kirillkom/hdimage/internal/infrastructure/resilience"
)

// classifyPublishError retries connection-level failures only. A rejected
// payload or subject will not succeed on a second try.
func classifyPublishError(err error) resilience.Outcome {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return resilience.Ignored
	case errors.Is(err, nats.ErrNoServers),
		errors.Is(err, nats.ErrTimeout),
		errors.Is(err, nats.ErrConnectionClosed),
		errors.Is(err, nats.ErrConnectionReconnecting),
		errors.Is(err, nats.ErrDisconnected):
		return resilience.Transient
	default:
		return resilience.Permanent
	}
}

// asTemporary marks failures a client may retry later, including a publish
// rejected by an open breaker, as domain.ErrTemporary.
func asTemporary(err error) error {
	if err == nil || domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	if resilience.IsCircuitOpen(err) || classifyPublishError(err) == resilience.Transient {
		return domain.WrapError(domain.ErrTemporary, "publish analysis event", err)
	}
	return err
}
