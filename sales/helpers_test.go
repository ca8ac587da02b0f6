package sales_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/anyx/sales-engine/sales"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var errStoreDown = errors.New("connection refused")

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func at(year int, month time.Month, day, hour, minute, sec int) time.Time {
	return time.Date(year, month, day, hour, minute, sec, 0, time.UTC)
}

// testRates configures MASTERCARD with [0.90, 0.99] and 0.10 points, and
// CASH with [0.9, 1.0] and 0.05 points. VISA is deliberately unconfigured.
func testRates(t *testing.T) *sales.RateTable {
	t.Helper()
	rates, err := sales.NewRateTable(map[sales.PaymentMethod]sales.RateEntry{
		sales.MethodMastercard: {PointRate: dec("0.10"), ModifierMin: dec("0.90"), ModifierMax: dec("0.99")},
		sales.MethodCash:       {PointRate: dec("0.05"), ModifierMin: dec("0.9"), ModifierMax: dec("1.0")},
	})
	require.NoError(t, err)
	return rates
}

func noBackoff(attempts int) sales.Option {
	return sales.WithRetryPolicy(sales.RetryPolicy{Attempts: attempts})
}

// fakeClock is a settable clock shared by the cache and the engine.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// flakyStore wraps a Store, failing the first N calls of each kind.
// A negative N fails every call.
type flakyStore struct {
	sales.Store

	mu            sync.Mutex
	saveFailures  int
	queryFailures int
	saveCalls     int
	queryCalls    int
	onSave        func()
}

func (f *flakyStore) SavePayment(ctx context.Context, p sales.Payment) (sales.Payment, error) {
	f.mu.Lock()
	f.saveCalls++
	fail := f.saveFailures != 0
	if f.saveFailures > 0 {
		f.saveFailures--
	}
	hook := f.onSave
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	if fail {
		return sales.Payment{}, errStoreDown
	}
	return f.Store.SavePayment(ctx, p)
}

func (f *flakyStore) QueryGroupedSums(ctx context.Context, start, end time.Time, unit sales.Granularity) ([]sales.SalesStatement, error) {
	f.mu.Lock()
	f.queryCalls++
	fail := f.queryFailures != 0
	if f.queryFailures > 0 {
		f.queryFailures--
	}
	f.mu.Unlock()

	if fail {
		return nil, errStoreDown
	}
	return f.Store.QueryGroupedSums(ctx, start, end, unit)
}

func (f *flakyStore) SaveCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saveCalls
}

func (f *flakyStore) QueryCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queryCalls
}

// recordingObserver counts engine events.
type recordingObserver struct {
	mu       sync.Mutex
	attempts map[string]int
	hits     int
	misses   int
	created  int
	rejected map[sales.Kind]int
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{attempts: map[string]int{}, rejected: map[sales.Kind]int{}}
}

func (o *recordingObserver) StorageAttempt(op string, _ error) {
	o.mu.Lock()
	o.attempts[op]++
	o.mu.Unlock()
}

func (o *recordingObserver) CacheLookup(hit bool) {
	o.mu.Lock()
	if hit {
		o.hits++
	} else {
		o.misses++
	}
	o.mu.Unlock()
}

func (o *recordingObserver) PaymentCreated(sales.PaymentMethod) {
	o.mu.Lock()
	o.created++
	o.mu.Unlock()
}

func (o *recordingObserver) Rejected(_ string, kind sales.Kind) {
	o.mu.Lock()
	o.rejected[kind]++
	o.mu.Unlock()
}
