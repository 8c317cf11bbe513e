// Package channels defines the outbound message transport abstraction.
package channels

import "context"

// Transport delivers reply units to the customer-facing messaging platform.
// Send returns one provider message id per delivered unit; partial delivery
// returns the ids sent so far alongside the error.
type Transport interface {
	Send(ctx context.Context, recipientRef, text string, imageURLs []string) ([]string, error)
}
