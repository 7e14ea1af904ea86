package adapter

import "context"

// AlertNotifier posts short human-readable messages to an operator channel.
// Calls are best-effort; failures must never abort the primary transition.
type AlertNotifier interface {
	Notify(ctx context.Context, text string) error
}
