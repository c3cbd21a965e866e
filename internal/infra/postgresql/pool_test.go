package postgresql

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"
)

type fakeConns struct {
	mu      sync.Mutex
	opened  map[string]int
	healthy map[*gorm.DB]bool
	pings   int
	closed  int
	openErr error

	// gates holds an open for the named database until the channel closes.
	gates map[string]chan struct{}
}

func newFakeConns() *fakeConns {
	return &fakeConns{
		opened:  map[string]int{},
		healthy: map[*gorm.DB]bool{},
		gates:   map[string]chan struct{}{},
	}
}

func (f *fakeConns) open(_ context.Context, database string) (*gorm.DB, error) {
	f.mu.Lock()
	gate := f.gates[database]
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.openErr != nil {
		return nil, f.openErr
	}
	f.opened[database]++
	db := &gorm.DB{}
	f.healthy[db] = true
	return db, nil
}

func (f *fakeConns) ping(_ context.Context, db *gorm.DB) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.pings++
	if !f.healthy[db] {
		return errors.New("connection reset")
	}
	return nil
}

func (f *fakeConns) close(*gorm.DB) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.closed++
	return nil
}

func newTestPool(t *testing.T, conns *fakeConns) *Pool {
	t.Helper()

	pool, err := NewPool(conns.open, nil)
	if err != nil {
		t.Fatalf("NewPool() error = %v", err)
	}
	pool.ping = conns.ping
	pool.close = conns.close
	return pool
}

func TestNewPool_RequiresOpen(t *testing.T) {
	t.Parallel()

	if _, err := NewPool(nil, nil); err == nil {
		t.Fatal("expected error for nil open func")
	}
}

func TestPool_GetReusesHealthyConnection(t *testing.T) {
	t.Parallel()

	conns := newFakeConns()
	pool := newTestPool(t, conns)

	first, err := pool.Get(context.Background(), "easy8")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	second, err := pool.Get(context.Background(), "easy8")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	if first != second {
		t.Fatal("expected the cached connection to be reused")
	}
	if conns.opened["easy8"] != 1 {
		t.Fatalf("opened = %d, want 1", conns.opened["easy8"])
	}
}

func TestPool_GetDoesNotPingCachedConnection(t *testing.T) {
	t.Parallel()

	conns := newFakeConns()
	pool := newTestPool(t, conns)

	for i := 0; i < 3; i++ {
		if _, err := pool.Get(context.Background(), "easy8"); err != nil {
			t.Fatalf("Get() error = %v", err)
		}
	}

	if conns.pings != 0 {
		t.Fatalf("pings = %d, want 0", conns.pings)
	}
}

func TestPool_InvalidateReplacesStaleConnection(t *testing.T) {
	t.Parallel()

	conns := newFakeConns()
	pool := newTestPool(t, conns)

	first, err := pool.Get(context.Background(), "easy8")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	pool.Invalidate(context.Background(), "easy8", first)
	if again, _ := pool.Get(context.Background(), "easy8"); again != first {
		t.Fatal("a healthy connection must survive Invalidate")
	}

	conns.mu.Lock()
	conns.healthy[first] = false
	conns.mu.Unlock()

	pool.Invalidate(context.Background(), "easy8", first)

	second, err := pool.Get(context.Background(), "easy8")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if first == second {
		t.Fatal("expected the stale connection to be replaced")
	}
	if conns.opened["easy8"] != 2 {
		t.Fatalf("opened = %d, want 2", conns.opened["easy8"])
	}
	if conns.closed != 1 {
		t.Fatalf("closed = %d, want 1", conns.closed)
	}
}

func TestPool_SlowOpenDoesNotBlockOtherDatabases(t *testing.T) {
	t.Parallel()

	conns := newFakeConns()
	gate := make(chan struct{})
	conns.gates["slow"] = gate
	defer close(gate)
	pool := newTestPool(t, conns)

	go pool.Get(context.Background(), "slow") //nolint:errcheck

	done := make(chan error, 1)
	go func() {
		_, err := pool.Get(context.Background(), "other")
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Get(other) error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Get(other) blocked behind the open of another database")
	}
}

func TestPool_GetSharesConcurrentOpen(t *testing.T) {
	t.Parallel()

	conns := newFakeConns()
	gate := make(chan struct{})
	conns.gates["easy8"] = gate
	pool := newTestPool(t, conns)

	const callers = 5
	results := make(chan *gorm.DB, callers)
	for i := 0; i < callers; i++ {
		go func() {
			db, _ := pool.Get(context.Background(), "easy8")
			results <- db
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(gate)

	var first *gorm.DB
	for i := 0; i < callers; i++ {
		db := <-results
		if db == nil {
			t.Fatal("Get() returned nil connection")
		}
		if first == nil {
			first = db
		}
		if db != first {
			t.Fatal("expected every caller to share one connection")
		}
	}
	if conns.opened["easy8"] != 1 {
		t.Fatalf("opened = %d, want 1", conns.opened["easy8"])
	}
}

func TestPool_GetHonoursContextDuringOpen(t *testing.T) {
	t.Parallel()

	conns := newFakeConns()
	gate := make(chan struct{})
	conns.gates["easy8"] = gate
	defer close(gate)
	pool := newTestPool(t, conns)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := pool.Get(ctx, "easy8")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Get() error = %v, want deadline exceeded", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("Get() returned after %s", elapsed)
	}
}

func TestPool_GetKeepsDatabasesSeparate(t *testing.T) {
	t.Parallel()

	conns := newFakeConns()
	pool := newTestPool(t, conns)

	a, _ := pool.Get(context.Background(), "easy8")
	b, _ := pool.Get(context.Background(), "reports")
	if a == b {
		t.Fatal("expected distinct connections per database")
	}
}

func TestPool_GetErrors(t *testing.T) {
	t.Parallel()

	conns := newFakeConns()
	conns.openErr = errors.New("connection refused")
	pool := newTestPool(t, conns)

	if _, err := pool.Get(context.Background(), " "); err == nil {
		t.Fatal("expected error for empty database name")
	}
	if _, err := pool.Get(context.Background(), "easy8"); !errors.Is(err, conns.openErr) {
		t.Fatalf("Get() error = %v, want wrapped open error", err)
	}
}

func TestPool_PingAndClose(t *testing.T) {
	t.Parallel()

	conns := newFakeConns()
	pool := newTestPool(t, conns)

	if err := pool.Ping(context.Background(), "easy8"); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
	if _, err := pool.Get(context.Background(), "reports"); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if err := pool.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if conns.closed != 2 {
		t.Fatalf("closed = %d, want 2", conns.closed)
	}
}
