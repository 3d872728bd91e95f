package events

import (
	"net/http"
	"time"
)

// HTTPStart is published once the request id is attached to the context.
type HTTPStart struct {
	Request *http.Request
}

// HTTPFinish is published after the response is written. Operations is the
// number of GraphQL operations executed, zero when the request was rejected
// before reaching the executor.
type HTTPFinish struct {
	Request    *http.Request
	Status     int
	Operations int
	Duration   time.Duration
}
