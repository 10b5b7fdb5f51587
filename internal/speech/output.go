// Package speech provides spoken announcement output and scheduling
package speech

import "context"

// Output is the speech synthesis collaborator. Speak blocks until the
// utterance completes or fails; the asynchronous completion signal of the
// underlying engine is surfaced as the method return.
type Output interface {
	Speak(ctx context.Context, text string) error

	// Speaking reports whether an utterance is currently playing
	Speaking() bool

	// Stop cancels any in-flight utterance
	Stop()
}
