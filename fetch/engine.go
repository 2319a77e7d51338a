// Package fetch is a bounded-concurrency HTTP engine with retry, exponential
// backoff and an optional circuit breaker. Every upstream request made during
// a scrape goes through one Engine.
//
// Requests wait in a FIFO queue for one of MaxConcurrent slots. A request
// that fails with a retryable error gives its slot back, sleeps for a
// jittered backoff and joins the back of the queue again, so retries keep
// their own order but not their place relative to other requests.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
)

const userAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"

// jitterFraction is the largest extra share of a backoff delay added at random.
const jitterFraction = 0.25

// Config controls an Engine. Zero durations, and counts that cannot be zero,
// take the DefaultConfig value; MaxRetries, ThrottleDelay and BreakerFailures
// keep zero as meaningful.
type Config struct {
	MaxConcurrent     int
	MaxRetries        int
	InitialRetryDelay time.Duration
	MaxRetryDelay     time.Duration
	BackoffMultiplier float64
	// ThrottleDelay spaces consecutive dequeues even when slots are free.
	ThrottleDelay time.Duration
	// Timeout bounds a single attempt.
	Timeout time.Duration
	// BreakerFailures opens the circuit breaker after this many consecutive
	// failed attempts. Zero disables the breaker.
	BreakerFailures uint32
	BreakerCooldown time.Duration
	// RetryOn decides whether an attempt is retried. Exactly one of res and
	// err is non-nil.
	RetryOn   func(res *Response, err error) bool
	Observers []Observer
	Logger    zerolog.Logger
}

func DefaultConfig() Config {
	return Config{
		MaxConcurrent:     50,
		MaxRetries:        5,
		InitialRetryDelay: 500 * time.Millisecond,
		MaxRetryDelay:     30 * time.Second,
		BackoffMultiplier: 2,
		Timeout:           30 * time.Second,
		BreakerCooldown:   30 * time.Second,
		RetryOn:           DefaultRetryOn,
	}
}

// DefaultRetryOn retries network errors, HTTP 429 and HTTP 5xx.
func DefaultRetryOn(res *Response, err error) bool {
	if err != nil {
		return true
	}
	return res.StatusCode == http.StatusTooManyRequests || res.StatusCode >= 500
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = d.MaxConcurrent
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.InitialRetryDelay <= 0 {
		c.InitialRetryDelay = d.InitialRetryDelay
	}
	if c.MaxRetryDelay <= 0 {
		c.MaxRetryDelay = d.MaxRetryDelay
	}
	if c.MaxRetryDelay < c.InitialRetryDelay {
		c.MaxRetryDelay = c.InitialRetryDelay
	}
	if c.BackoffMultiplier < 1 {
		c.BackoffMultiplier = d.BackoffMultiplier
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.BreakerCooldown <= 0 {
		c.BreakerCooldown = d.BreakerCooldown
	}
	if c.RetryOn == nil {
		c.RetryOn = d.RetryOn
	}
	return c
}

type Request struct {
	// Method defaults to GET.
	Method  string
	URL     string
	Query   url.Values
	Form    url.Values
	Header  http.Header
	Cookies []*http.Cookie
	// Key labels the request in events, e.g. a CRN. Defaults to URL.
	Key string
}

type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Cookies    []*http.Cookie
}

func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// HTTPError is returned when a request ends with a non-2xx response.
type HTTPError struct {
	Method     string
	URL        string
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("fetch: %s %s: status %d %s", e.Method, e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// Status is a point-in-time view of the engine, for progress reporting.
type Status struct {
	Queued    int
	Active    int
	Backoff   int
	Submitted int64
	Succeeded int64
	Failed    int64
}

// Remaining counts requests that have not finished yet.
func (s Status) Remaining() int64 {
	return s.Submitted - s.Succeeded - s.Failed
}

// Percent is the share of submitted requests that finished, in [0, 100].
func (s Status) Percent() float64 {
	if s.Submitted == 0 {
		return 100
	}
	return float64(s.Succeeded+s.Failed) / float64(s.Submitted) * 100
}

type Engine struct {
	cfg       Config
	http      *resty.Client
	queue     *queue
	breaker   *gobreaker.CircuitBreaker[*Response]
	observers observers
	log       zerolog.Logger

	nextID    atomic.Uint64
	backoff   atomic.Int64
	submitted atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
}

// New builds an engine. Engines are independent; give each scrape run its own.
func New(cfg Config) *Engine {
	cfg = cfg.withDefaults()

	client := resty.New()
	// Session cookies are attached per request so that several sessions can
	// share one engine.
	client.SetCookieJar(nil)
	client.SetRetryCount(0)
	client.SetHeader("User-Agent", userAgent)

	e := &Engine{
		cfg:       cfg,
		http:      client,
		queue:     newQueue(cfg.MaxConcurrent, cfg.ThrottleDelay),
		observers: observers(cfg.Observers),
		log:       cfg.Logger.With().Str("component", "fetch").Logger(),
	}

	if cfg.BreakerFailures > 0 {
		e.breaker = gobreaker.NewCircuitBreaker[*Response](gobreaker.Settings{
			Name:        "banner",
			MaxRequests: uint32(cfg.MaxConcurrent),
			Timeout:     cfg.BreakerCooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= cfg.BreakerFailures
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				e.log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
			},
		})
	}

	return e
}

func (e *Engine) Config() Config {
	return e.cfg
}

func (e *Engine) Status() Status {
	queued, active := e.queue.lengths()
	return Status{
		Queued:    queued,
		Active:    active,
		Backoff:   int(e.backoff.Load()),
		Submitted: e.submitted.Load(),
		Succeeded: e.succeeded.Load(),
		Failed:    e.failed.Load(),
	}
}

// Do runs req to completion: it returns the first 2xx response, or the last
// error once the request is not retryable or MaxRetries is exhausted.
func (e *Engine) Do(ctx context.Context, req Request) (*Response, error) {
	return e.run(ctx, req, e.enqueue(req))
}

// Pending is the eventual result of a submitted request.
type Pending struct {
	done chan struct{}
	res  *Response
	err  error
}

// Submit queues req immediately and returns without waiting for it.
func (e *Engine) Submit(ctx context.Context, req Request) *Pending {
	p := &Pending{done: make(chan struct{})}
	t := e.enqueue(req)
	go func() {
		defer close(p.done)
		p.res, p.err = e.run(ctx, req, t)
	}()
	return p
}

func (p *Pending) Done() <-chan struct{} {
	return p.done
}

func (p *Pending) Wait() (*Response, error) {
	<-p.done
	return p.res, p.err
}

type enqueued struct {
	ticket *ticket
	event  Event
}

func (e *Engine) enqueue(req Request) enqueued {
	if req.Method == "" {
		req.Method = http.MethodGet
	}
	if req.Key == "" {
		req.Key = req.URL
	}
	ev := Event{ID: e.nextID.Add(1), Method: req.Method, URL: req.URL, Key: req.Key}

	e.submitted.Add(1)
	t := e.queue.enqueue()
	e.observers.enqueued(ev)
	return enqueued{ticket: t, event: ev}
}

func (e *Engine) run(ctx context.Context, req Request, q enqueued) (*Response, error) {
	if req.Method == "" {
		req.Method = http.MethodGet
	}
	ev := q.event
	t := q.ticket
	start := time.Now()

	for attempt := 1; ; attempt++ {
		ev.Attempt = attempt
		ev.Delay = 0
		ev.Err = nil

		if err := e.queue.wait(ctx, t); err != nil {
			return nil, e.fail(ev, start, err)
		}

		e.observers.started(ev)
		res, err := e.try(ctx, req)
		e.queue.release()

		if err == nil && res.OK() {
			ev.StatusCode = res.StatusCode
			ev.Elapsed = time.Since(start)
			e.succeeded.Add(1)
			e.observers.succeeded(ev)
			return res, nil
		}

		ev.StatusCode = 0
		if res != nil {
			ev.StatusCode = res.StatusCode
			err = &HTTPError{Method: req.Method, URL: req.URL, StatusCode: res.StatusCode}
		}
		ev.Err = err

		if ctx.Err() != nil {
			return nil, e.fail(ev, start, ctx.Err())
		}
		if attempt > e.cfg.MaxRetries || !e.cfg.RetryOn(res, errOrNil(res, err)) {
			return nil, e.fail(ev, start, err)
		}

		ev.Delay = e.delay(attempt)
		e.observers.retrying(ev)
		if err := e.sleep(ctx, ev.Delay); err != nil {
			return nil, e.fail(ev, start, err)
		}
		t = e.queue.enqueue()
	}
}

// errOrNil hides the synthesized HTTPError from RetryOn, which sees either a
// response or a transport error.
func errOrNil(res *Response, err error) error {
	if res != nil {
		return nil
	}
	return err
}

func (e *Engine) fail(ev Event, start time.Time, err error) error {
	ev.Err = err
	ev.Elapsed = time.Since(start)
	e.failed.Add(1)
	e.observers.failed(ev)
	return err
}

func (e *Engine) sleep(ctx context.Context, d time.Duration) error {
	e.backoff.Add(1)
	defer e.backoff.Add(-1)

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// delay is the backoff after the given failed attempt: InitialRetryDelay
// grown by BackoffMultiplier per attempt, capped at MaxRetryDelay, plus up to
// 25% jitter.
func (e *Engine) delay(attempt int) time.Duration {
	base := float64(e.cfg.InitialRetryDelay) * math.Pow(e.cfg.BackoffMultiplier, float64(attempt-1))
	if base > float64(e.cfg.MaxRetryDelay) {
		base = float64(e.cfg.MaxRetryDelay)
	}
	return time.Duration(base + base*jitterFraction*rand.Float64())
}

var errRetryableStatus = errors.New("retryable status")

func (e *Engine) try(ctx context.Context, req Request) (*Response, error) {
	if e.breaker == nil {
		return e.send(ctx, req)
	}

	var out *Response
	_, err := e.breaker.Execute(func() (*Response, error) {
		res, err := e.send(ctx, req)
		if err != nil {
			return nil, err
		}
		out = res
		if !res.OK() && e.cfg.RetryOn(res, nil) {
			return res, errRetryableStatus
		}
		return res, nil
	})
	if errors.Is(err, errRetryableStatus) {
		return out, nil
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Engine) send(ctx context.Context, req Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	r := e.http.R().SetContext(ctx)
	if len(req.Query) > 0 {
		r.SetQueryParamsFromValues(req.Query)
	}
	if len(req.Form) > 0 {
		r.SetFormDataFromValues(req.Form)
	}
	if len(req.Header) > 0 {
		r.SetHeaderMultiValues(req.Header)
	}
	if len(req.Cookies) > 0 {
		r.SetCookies(req.Cookies)
	}

	res, err := r.Execute(req.Method, req.URL)
	if err != nil {
		return nil, err
	}
	return &Response{
		StatusCode: res.StatusCode(),
		Header:     res.Header(),
		Body:       res.Body(),
		Cookies:    res.Cookies(),
	}, nil
}
