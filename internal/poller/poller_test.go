package poller

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pfrederiksen/wca-events/internal/config"
	"github.com/pfrederiksen/wca-events/internal/event"
	"github.com/pfrederiksen/wca-events/internal/logger"
	"github.com/pfrederiksen/wca-events/internal/storage"
)

func TestMain(m *testing.M) {
	logger.SetDefault(logger.New(logger.LevelError, io.Discard))
	os.Exit(m.Run())
}

var listing = []event.Record{
	{Location: "Warsaw, Poland", Name: "Spring Open"},
	{Location: "Berlin, Germany", Name: "Autumn Open"},
}

type fakeFetcher struct {
	records []event.Record
	err     error
	calls   atomic.Int32

	// onFetch runs before the listing is returned.
	onFetch func()
}

func (f *fakeFetcher) FetchListing(ctx context.Context) ([]event.Record, error) {
	f.calls.Add(1)
	if f.onFetch != nil {
		f.onFetch()
	}
	return f.records, f.err
}

// memStore is a storage.Store that can be told to fail persistence.
type memStore struct {
	mu      sync.Mutex
	keys    map[string]bool
	failAdd bool
}

func newMemStore(keys ...string) *memStore {
	s := &memStore{keys: map[string]bool{}}
	for _, k := range keys {
		s.keys[k] = true
	}
	return s
}

func (s *memStore) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keys[key]
}

func (s *memStore) Add(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[key] = true
	if s.failAdd {
		return errors.New("disk full")
	}
	return nil
}

func (s *memStore) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.keys))
	for k := range s.keys {
		keys = append(keys, k)
	}
	return keys
}

func (s *memStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.keys)
}

func (s *memStore) Close() error { return nil }

type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
	channels int
	err      error

	// onNotify runs before the notification is recorded.
	onNotify func(message string)
}

func (n *fakeNotifier) Notify(ctx context.Context, message string) (int, error) {
	if n.onNotify != nil {
		n.onNotify(message)
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
	return n.channels, n.err
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.PollInterval = time.Hour
	return cfg
}

func TestCycle_EmptyStoreAnnouncesMatchingCountry(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.json")
	if _, err := storage.CreateJSON(path); err != nil {
		t.Fatal(err)
	}
	store, err := storage.OpenJSON(path)
	if err != nil {
		t.Fatal(err)
	}

	n := &fakeNotifier{channels: 2}
	p := New(testConfig(), &fakeFetcher{records: listing}, store, n).WithMetrics(logger.NewMetrics())

	result, err := p.Cycle(context.Background())
	if err != nil {
		t.Fatalf("Cycle() unexpected error: %v", err)
	}

	if len(n.messages) != 1 || n.messages[0] != "Poland: Spring Open" {
		t.Errorf("notifications = %q, want one for Poland: Spring Open", n.messages)
	}
	if result.Channels != 2 {
		t.Errorf("Channels = %d, want 2", result.Channels)
	}
	if result.Scraped != 2 || result.Matched != 1 {
		t.Errorf("Scraped/Matched = %d/%d, want 2/1", result.Scraped, result.Matched)
	}

	reloaded, err := storage.OpenJSON(path)
	if err != nil {
		t.Fatal(err)
	}
	if keys := reloaded.Keys(); len(keys) != 1 || keys[0] != "Poland: Spring Open" {
		t.Errorf("cache keys = %v, want only the Polish competition", keys)
	}
}

func TestCycle_PreSeededStoreIsSilent(t *testing.T) {
	store := newMemStore("Poland: Spring Open")
	n := &fakeNotifier{}
	p := New(testConfig(), &fakeFetcher{records: listing}, store, n).WithMetrics(logger.NewMetrics())

	result, err := p.Cycle(context.Background())
	if err != nil {
		t.Fatalf("Cycle() unexpected error: %v", err)
	}
	if len(n.messages) != 0 {
		t.Errorf("notifications = %q, want none", n.messages)
	}
	if len(result.NewKeys) != 0 || store.Len() != 1 {
		t.Errorf("NewKeys = %v, store size %d; want no change", result.NewKeys, store.Len())
	}
}

func TestCycle_SecondPassIsIdempotent(t *testing.T) {
	store := newMemStore()
	n := &fakeNotifier{channels: 1}
	p := New(testConfig(), &fakeFetcher{records: listing}, store, n).WithMetrics(logger.NewMetrics())

	if _, err := p.Cycle(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Cycle(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(n.messages) != 1 {
		t.Errorf("got %d notifications over two identical cycles, want 1", len(n.messages))
	}
}

func TestCycle_StorePersistedBeforeNotify(t *testing.T) {
	store := newMemStore()
	var seenAtNotify bool
	n := &fakeNotifier{onNotify: func(string) {
		seenAtNotify = store.Has("Poland: Spring Open")
	}}
	p := New(testConfig(), &fakeFetcher{records: listing}, store, n).WithMetrics(logger.NewMetrics())

	if _, err := p.Cycle(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !seenAtNotify {
		t.Error("key should be recorded before the notification is sent")
	}
}

func TestCycle_NotifyFailureKeepsKeySeen(t *testing.T) {
	store := newMemStore()
	sendErr := errors.New("sending messages: 403")
	n := &fakeNotifier{err: sendErr}
	metrics := logger.NewMetrics()
	p := New(testConfig(), &fakeFetcher{records: listing}, store, n).WithMetrics(metrics)

	result, err := p.Cycle(context.Background())
	if !errors.Is(err, sendErr) {
		t.Fatalf("Cycle() error = %v, want %v", err, sendErr)
	}
	if result.Error == "" {
		t.Error("Result.Error should describe the failure")
	}
	if !store.Has("Poland: Spring Open") {
		t.Error("key must stay seen after a failed notification")
	}

	// The next cycle does not retry the lost announcement.
	n.err = nil
	if _, err := p.Cycle(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(n.messages) != 1 {
		t.Errorf("got %d notification attempts, want 1", len(n.messages))
	}
	if metrics.Counter(MetricNotificationsFailed) != 1 || metrics.Counter(MetricCyclesFailed) != 1 {
		t.Errorf("failed counters = %d/%d, want 1/1",
			metrics.Counter(MetricNotificationsFailed), metrics.Counter(MetricCyclesFailed))
	}
}

func TestCycle_NotifyFailureReportsNoChannels(t *testing.T) {
	n := &fakeNotifier{channels: 2, err: errors.New("sending messages: 403")}
	p := New(testConfig(), &fakeFetcher{records: listing}, newMemStore(), n).WithMetrics(logger.NewMetrics())

	result, err := p.Cycle(context.Background())
	if err == nil {
		t.Fatal("Cycle() should fail when the notification fails")
	}
	if result.Channels != 0 {
		t.Errorf("Result.Channels = %d, want 0 after a failed dispatch", result.Channels)
	}
}

func TestCycle_NotifyFailureLoggedAsSummary(t *testing.T) {
	var buf bytes.Buffer
	logger.SetDefault(logger.New(logger.LevelDebug, &buf))
	defer logger.SetDefault(logger.New(logger.LevelError, io.Discard))

	n := &fakeNotifier{err: errors.New("sending messages: 403")}
	p := New(testConfig(), &fakeFetcher{records: listing}, newMemStore(), n).WithMetrics(logger.NewMetrics())

	if _, err := p.Cycle(context.Background()); err == nil {
		t.Fatal("Cycle() should fail when the notification fails")
	}

	out := buf.String()
	if strings.Contains(out, `"level":"ERROR"`) {
		t.Errorf("notification failure should not be logged as an error again:\n%s", out)
	}
	if !strings.Contains(out, `"level":"WARN"`) || !strings.Contains(out, "Announcement not sent") {
		t.Errorf("missing warning summary:\n%s", out)
	}
	if strings.Contains(out, "403") {
		t.Errorf("summary should not repeat the dispatch error:\n%s", out)
	}
}

func TestCycle_FetchFailureSendsNothing(t *testing.T) {
	fetchErr := errors.New("getting WCA listing: 503")
	n := &fakeNotifier{}
	p := New(testConfig(), &fakeFetcher{err: fetchErr}, newMemStore(), n).WithMetrics(logger.NewMetrics())

	result, err := p.Cycle(context.Background())
	if !errors.Is(err, fetchErr) {
		t.Errorf("Cycle() error = %v, want %v", err, fetchErr)
	}
	if result == nil || result.Scraped != 0 {
		t.Errorf("Result = %+v, want zero records", result)
	}
	if len(n.messages) != 0 {
		t.Error("fetch failure must not notify")
	}
}

func TestCycle_PersistenceFailureStillNotifies(t *testing.T) {
	store := newMemStore()
	store.failAdd = true
	n := &fakeNotifier{channels: 1}
	p := New(testConfig(), &fakeFetcher{records: listing}, store, n).WithMetrics(logger.NewMetrics())

	_, err := p.Cycle(context.Background())
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Errorf("Cycle() error = %v, want persistence error", err)
	}
	if len(n.messages) != 1 {
		t.Errorf("got %d notifications, want 1", len(n.messages))
	}
}

func TestCycle_Metrics(t *testing.T) {
	metrics := logger.NewMetrics()
	p := New(testConfig(), &fakeFetcher{records: listing}, newMemStore(), &fakeNotifier{channels: 3}).WithMetrics(metrics)

	if _, err := p.Cycle(context.Background()); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		want int64
	}{
		{MetricCycles, 1},
		{MetricCyclesFailed, 0},
		{MetricEventsNew, 1},
		{MetricNotificationsSent, 3},
	}
	for _, tt := range tests {
		if got := metrics.Counter(tt.name); got != tt.want {
			t.Errorf("%s = %d, want %d", tt.name, got, tt.want)
		}
	}

	snapshot := metrics.GetSnapshot()
	gauges, _ := snapshot["gauges"].(map[string]float64)
	if gauges[MetricStoreSize] != 1 {
		t.Errorf("store.size gauge = %v, want 1", gauges[MetricStoreSize])
	}
}

// blockingFetcher records how many fetches run at once.
type blockingFetcher struct {
	release chan struct{}
	active  atomic.Int32
	peak    atomic.Int32
}

func (f *blockingFetcher) FetchListing(ctx context.Context) ([]event.Record, error) {
	n := f.active.Add(1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	<-f.release
	f.active.Add(-1)
	return nil, nil
}

func TestCycle_NeverOverlaps(t *testing.T) {
	fetcher := &blockingFetcher{release: make(chan struct{})}
	p := New(testConfig(), fetcher, newMemStore(), &fakeNotifier{}).WithMetrics(logger.NewMetrics())

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Cycle(context.Background())
		}()
	}

	for i := 0; i < 3; i++ {
		fetcher.release <- struct{}{}
	}
	wg.Wait()

	if peak := fetcher.peak.Load(); peak != 1 {
		t.Errorf("peak concurrent cycles = %d, want 1", peak)
	}
}

func TestStartStop_RunsFirstCycleImmediately(t *testing.T) {
	fetcher := &fakeFetcher{records: listing}
	n := &fakeNotifier{channels: 1}
	p := New(testConfig(), fetcher, newMemStore(), n).WithMetrics(logger.NewMetrics())

	if p.Last() != nil {
		t.Fatal("Last() should be nil before the first cycle")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p.Start(ctx)
	defer p.Stop()

	if fetcher.calls.Load() != 1 {
		t.Errorf("fetches after Start = %d, want 1", fetcher.calls.Load())
	}
	last := p.Last()
	if last == nil || len(last.NewKeys) != 1 {
		t.Errorf("Last() = %+v, want the first cycle", last)
	}
}

func TestStart_ScheduleCountsFromStart(t *testing.T) {
	cfg := testConfig()
	fetcher := &fakeFetcher{records: listing}
	p := New(cfg, fetcher, newMemStore(), &fakeNotifier{}).WithMetrics(logger.NewMetrics())

	started := time.Now()
	var next time.Time
	var entries int
	fetcher.onFetch = func() {
		if fetcher.calls.Load() != 1 {
			return
		}
		// The schedule is already running while the first cycle fetches.
		e := p.cron.Entries()
		entries = len(e)
		if entries == 1 {
			next = e[0].Next
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	defer p.Stop()

	if entries != 1 {
		t.Fatalf("scheduled entries during first cycle = %d, want 1", entries)
	}
	if next.IsZero() {
		t.Fatal("next run was not scheduled before the first cycle")
	}
	// cron.Every rounds to whole seconds.
	if next.After(started.Add(cfg.PollInterval + time.Second)) {
		t.Errorf("next run %v is later than one interval after start %v", next, started)
	}
}

func TestRun_StopsWithContext(t *testing.T) {
	p := New(testConfig(), &fakeFetcher{}, newMemStore(), &fakeNotifier{}).WithMetrics(logger.NewMetrics())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancellation")
	}
}

func TestCronLogger_Fields(t *testing.T) {
	fields := toFields([]interface{}{"now", "t", "entry", 1, "dangling"})
	if fields["now"] != "t" || fields["entry"] != 1 {
		t.Errorf("toFields() = %v", fields)
	}
	if _, ok := fields["dangling"]; !ok {
		t.Error("odd trailing key should be kept")
	}
	if toFields(nil) != nil {
		t.Error("no key/values should yield nil fields")
	}
}
