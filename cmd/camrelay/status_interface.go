package main

import "camrelay/internal/proto"

// statusStore tracks per-source status for the dashboard and state API and
// doubles as the relay's Reporter. Implementations must be safe for concurrent
// use; the relay calls the reporting methods from its session goroutines.
type statusStore interface {
	SessionState(source, state string)
	Viewers(source string, n int)
	Bytes(source string, n int)

	snapshot() []proto.SourceStatus
	setReady(ready bool)
	setClosing(closing bool)
	isReady() bool
	isClosing() bool
}
