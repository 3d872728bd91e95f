package events

import "time"

// SQLQueryStart is emitted before a statement is sent to the store.
type SQLQueryStart struct {
	Driver string
	Query  string
}

// SQLQueryFinish is emitted after a statement returns. Err is already mapped
// to the store error taxonomy.
type SQLQueryFinish struct {
	Driver   string
	Query    string
	Err      error
	Duration time.Duration
}

// ConnAcquire is emitted when a pool checkout completes or gives up.
type ConnAcquire struct {
	Driver string
	Wait   time.Duration
	Err    error
}
