package audit

import "context"

// Sink is the durable append-only audit log. Append is fire-and-forget
// from the decision path's point of view: implementations must absorb
// failures (buffer, retry, alert) rather than surface them to the caller,
// because an audit outage must never change an access decision.
type Sink interface {
	Append(ctx context.Context, event *Event) error
}
