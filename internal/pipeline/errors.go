package pipeline

import "errors"

// Error taxonomy for one processing cycle. The worker maps each of these to
// a terminal-for-the-cycle conversation status.
var (
	// ErrMissingContext means no catalog anchor could be resolved; automation
	// halts until an operator links the conversation to a product.
	ErrMissingContext = errors.New("no product context linked to conversation")

	// ErrGeneration wraps backend failures in either stage.
	ErrGeneration = errors.New("generation backend call failed")
)
