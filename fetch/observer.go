package fetch

import "time"

// Event describes one request at one point of its life. Attempt starts at 1.
type Event struct {
	ID         uint64
	Method     string
	URL        string
	Key        string
	Attempt    int
	Delay      time.Duration
	StatusCode int
	Elapsed    time.Duration
	Err        error
}

// Observer receives request lifecycle callbacks. Callbacks run on the
// requesting goroutine and must not block; the engine never looks at what an
// observer does.
type Observer interface {
	Enqueued(Event)
	Started(Event)
	Retrying(Event)
	Succeeded(Event)
	Failed(Event)
}

// Hooks adapts plain functions to Observer. Nil fields are skipped.
type Hooks struct {
	OnEnqueued  func(Event)
	OnStarted   func(Event)
	OnRetrying  func(Event)
	OnSucceeded func(Event)
	OnFailed    func(Event)
}

func (h Hooks) Enqueued(e Event) {
	if h.OnEnqueued != nil {
		h.OnEnqueued(e)
	}
}

func (h Hooks) Started(e Event) {
	if h.OnStarted != nil {
		h.OnStarted(e)
	}
}

func (h Hooks) Retrying(e Event) {
	if h.OnRetrying != nil {
		h.OnRetrying(e)
	}
}

func (h Hooks) Succeeded(e Event) {
	if h.OnSucceeded != nil {
		h.OnSucceeded(e)
	}
}

func (h Hooks) Failed(e Event) {
	if h.OnFailed != nil {
		h.OnFailed(e)
	}
}

type observers []Observer

func (o observers) enqueued(e Event) {
	for _, obs := range o {
		obs.Enqueued(e)
	}
}

func (o observers) started(e Event) {
	for _, obs := range o {
		obs.Started(e)
	}
}

func (o observers) retrying(e Event) {
	for _, obs := range o {
		obs.Retrying(e)
	}
}

func (o observers) succeeded(e Event) {
	for _, obs := range o {
		obs.Succeeded(e)
	}
}

func (o observers) failed(e Event) {
	for _, obs := range o {
		obs.Failed(e)
	}
}
