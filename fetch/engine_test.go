package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig() Config {
	return Config{
		MaxConcurrent:     4,
		MaxRetries:        3,
		InitialRetryDelay: time.Millisecond,
		MaxRetryDelay:     5 * time.Millisecond,
		BackoffMultiplier: 2,
		Timeout:           time.Second,
	}
}

func TestEngineNeverExceedsMaxConcurrent(t *testing.T) {
	var inFlight, peak atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := fastConfig()
	cfg.MaxConcurrent = 3
	e := New(cfg)

	var pending []*Pending
	for i := 0; i < 20; i++ {
		pending = append(pending, e.Submit(context.Background(), Request{URL: srv.URL}))
	}
	for _, p := range pending {
		_, err := p.Wait()
		require.NoError(t, err)
	}

	assert.LessOrEqual(t, peak.Load(), int32(3))
	assert.Equal(t, int32(3), peak.Load())

	st := e.Status()
	assert.Equal(t, int64(20), st.Submitted)
	assert.Equal(t, int64(20), st.Succeeded)
	assert.Zero(t, st.Remaining())
	assert.Equal(t, 100.0, st.Percent())
}

func TestEngineRetriesServerErrors(t *testing.T) {
	for _, status := range []int{http.StatusInternalServerError, http.StatusTooManyRequests} {
		t.Run(strconv.Itoa(status), func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if calls.Add(1) <= 2 {
					w.WriteHeader(status)
					return
				}
				_, _ = w.Write([]byte("ok"))
			}))
			defer srv.Close()

			var retries atomic.Int32
			cfg := fastConfig()
			cfg.Observers = []Observer{Hooks{OnRetrying: func(Event) { retries.Add(1) }}}

			res, err := New(cfg).Do(context.Background(), Request{URL: srv.URL})
			require.NoError(t, err)
			assert.Equal(t, "ok", string(res.Body))
			assert.Equal(t, int32(3), calls.Load())
			assert.Equal(t, int32(2), retries.Load())
		})
	}
}

func TestEngineExhaustedRetriesReturnHTTPError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	cfg := fastConfig()
	cfg.MaxRetries = 2
	e := New(cfg)

	_, err := e.Do(context.Background(), Request{URL: srv.URL})
	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusBadGateway, httpErr.StatusCode)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, int64(1), e.Status().Failed)
}

func TestEngineDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := New(fastConfig()).Do(context.Background(), Request{URL: srv.URL})
	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusNotFound, httpErr.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestEngineRetriesTimeouts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			select {
			case <-time.After(time.Second):
			case <-r.Context().Done():
			}
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := fastConfig()
	cfg.Timeout = 50 * time.Millisecond

	_, err := New(cfg).Do(context.Background(), Request{URL: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestEngineSendsRequestParts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "202510", r.URL.Query().Get("term"))
		assert.Equal(t, "search", r.PostForm.Get("mode"))
		assert.Equal(t, "yes", r.Header.Get("X-Test"))
		c, err := r.Cookie("JSESSIONID")
		require.NoError(t, err)
		assert.Equal(t, "abc", c.Value)
		http.SetCookie(w, &http.Cookie{Name: "JSESSIONID", Value: "def"})
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	res, err := New(fastConfig()).Do(context.Background(), Request{
		Method:  http.MethodPost,
		URL:     srv.URL,
		Query:   map[string][]string{"term": {"202510"}},
		Form:    map[string][]string{"mode": {"search"}},
		Header:  http.Header{"X-Test": {"yes"}},
		Cookies: []*http.Cookie{{Name: "JSESSIONID", Value: "abc"}},
	})
	require.NoError(t, err)
	require.Len(t, res.Cookies, 1)
	assert.Equal(t, "def", res.Cookies[0].Value)
}

func TestEngineHooksFireInOrder(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	var mu sync.Mutex
	var seen []string
	record := func(name string) func(Event) {
		return func(e Event) {
			mu.Lock()
			seen = append(seen, name+":"+strconv.Itoa(e.Attempt))
			mu.Unlock()
		}
	}
	cfg := fastConfig()
	cfg.Observers = []Observer{Hooks{
		OnEnqueued:  record("enqueued"),
		OnStarted:   record("started"),
		OnRetrying:  record("retrying"),
		OnSucceeded: record("succeeded"),
		OnFailed:    record("failed"),
	}}

	_, err := New(cfg).Do(context.Background(), Request{URL: srv.URL, Key: "30001"})
	require.NoError(t, err)
	assert.Equal(t, []string{"enqueued:0", "started:1", "retrying:1", "started:2", "succeeded:2"}, seen)
}

func TestEngineServesInSubmitOrder(t *testing.T) {
	var mu sync.Mutex
	var order []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		order = append(order, r.URL.Query().Get("n"))
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := fastConfig()
	cfg.MaxConcurrent = 1
	e := New(cfg)

	var pending []*Pending
	var want []string
	for i := 0; i < 10; i++ {
		n := strconv.Itoa(i)
		want = append(want, n)
		pending = append(pending, e.Submit(context.Background(), Request{
			URL:   srv.URL,
			Query: map[string][]string{"n": {n}},
		}))
	}
	for _, p := range pending {
		_, err := p.Wait()
		require.NoError(t, err)
	}
	assert.Equal(t, want, order)
}

func TestEngineThrottlesDequeues(t *testing.T) {
	var mu sync.Mutex
	var arrivals []time.Time
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		arrivals = append(arrivals, time.Now())
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := fastConfig()
	cfg.MaxConcurrent = 10
	cfg.ThrottleDelay = 50 * time.Millisecond
	e := New(cfg)

	var pending []*Pending
	for i := 0; i < 5; i++ {
		pending = append(pending, e.Submit(context.Background(), Request{URL: srv.URL}))
	}
	for _, p := range pending {
		_, err := p.Wait()
		require.NoError(t, err)
	}

	require.Len(t, arrivals, 5)
	sort.Slice(arrivals, func(i, j int) bool { return arrivals[i].Before(arrivals[j]) })
	for i := 1; i < len(arrivals); i++ {
		assert.GreaterOrEqual(t, arrivals[i].Sub(arrivals[i-1]), 40*time.Millisecond, "gap %d", i)
	}
}

func TestEngineConfigAppliesDefaults(t *testing.T) {
	cfg := New(Config{}).Config()
	def := DefaultConfig()

	assert.Equal(t, def.MaxConcurrent, cfg.MaxConcurrent)
	assert.Equal(t, def.InitialRetryDelay, cfg.InitialRetryDelay)
	assert.Equal(t, def.MaxRetryDelay, cfg.MaxRetryDelay)
	assert.Equal(t, def.Timeout, cfg.Timeout)
	assert.NotNil(t, cfg.RetryOn)

	// Zero keeps its meaning for these.
	assert.Zero(t, cfg.MaxRetries)
	assert.Zero(t, cfg.ThrottleDelay)
	assert.Zero(t, cfg.BreakerFailures)

	cfg = New(Config{MaxRetries: -1, BackoffMultiplier: 0.5}).Config()
	assert.Zero(t, cfg.MaxRetries)
	assert.Equal(t, float64(2), cfg.BackoffMultiplier)
}

func TestEngineStopsOnCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := fastConfig()
	cfg.MaxRetries = 100
	cfg.InitialRetryDelay = 50 * time.Millisecond
	cfg.MaxRetryDelay = 50 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := New(cfg).Do(ctx, Request{URL: srv.URL})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestEngineBreakerOpens(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := fastConfig()
	cfg.MaxRetries = 5
	cfg.BreakerFailures = 2
	cfg.BreakerCooldown = time.Hour

	_, err := New(cfg).Do(context.Background(), Request{URL: srv.URL})
	require.Error(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestDelayIsCappedWithJitter(t *testing.T) {
	e := New(Config{
		InitialRetryDelay: 100 * time.Millisecond,
		MaxRetryDelay:     time.Second,
		BackoffMultiplier: 2,
	})

	for i := 0; i < 50; i++ {
		d := e.delay(1)
		assert.GreaterOrEqual(t, d, 100*time.Millisecond)
		assert.LessOrEqual(t, d, 125*time.Millisecond)

		d = e.delay(3)
		assert.GreaterOrEqual(t, d, 400*time.Millisecond)
		assert.LessOrEqual(t, d, 500*time.Millisecond)

		d = e.delay(10)
		assert.GreaterOrEqual(t, d, time.Second)
		assert.LessOrEqual(t, d, 1250*time.Millisecond)
	}
}
