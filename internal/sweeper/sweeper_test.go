package sweeper_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evertix/ticket-inventory/internal/domain"
	"github.com/evertix/ticket-inventory/internal/observability"
	"github.com/evertix/ticket-inventory/internal/sweeper"
)

// fakeStore backs both the inventory and ledger ports with one mutex so the
// concurrent-sweep tests exercise real interleaving.
type fakeStore struct {
	mu            sync.Mutex
	quantities    map[uuid.UUID]int64
	rows          map[string]domain.Reservation
	failIncrement int
	failClaim     bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		quantities: make(map[uuid.UUID]int64),
		rows:       make(map[string]domain.Reservation),
	}
}

func (f *fakeStore) addHold(orderID string, typeID uuid.UUID, qty int64, expiresAt time.Time) domain.Reservation {
	f.mu.Lock()
	defer f.mu.Unlock()
	res := domain.Reservation{
		ID:           domain.NewReservationID(time.Now().UTC()),
		UserID:       uuid.New(),
		OrderID:      orderID,
		VenueID:      uuid.New(),
		TicketTypeID: typeID,
		Quantity:     qty,
		ReservedAt:   expiresAt.Add(-5 * time.Minute),
		ExpiresAt:    expiresAt,
		Status:       domain.StatusReserved,
	}
	f.rows[res.ID] = res
	return res
}

func (f *fakeStore) quantity(typeID uuid.UUID) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.quantities[typeID]
}

func (f *fakeStore) rowCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

func (f *fakeStore) Decrement(ctx context.Context, venueID, ticketTypeID uuid.UUID, quantity int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.quantities[ticketTypeID] < quantity {
		return domain.ErrInsufficientStock
	}
	f.quantities[ticketTypeID] -= quantity
	return nil
}

func (f *fakeStore) Increment(ctx context.Context, venueID, ticketTypeID uuid.UUID, quantity int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failIncrement > 0 {
		f.failIncrement--
		return domain.ErrTransientStore
	}
	f.quantities[ticketTypeID] += quantity
	return nil
}

func (f *fakeStore) Snapshot(ctx context.Context, venueID uuid.UUID) ([]domain.TicketType, error) {
	return nil, domain.ErrNotFound
}

func (f *fakeStore) CreateReservation(ctx context.Context, res domain.Reservation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[res.ID] = res
	return nil
}

func (f *fakeStore) SumReserved(ctx context.Context, venueID, ticketTypeID uuid.UUID, asOf time.Time) (int64, error) {
	return 0, nil
}

func (f *fakeStore) FindByOrderID(ctx context.Context, orderID string) ([]domain.Reservation, error) {
	return nil, nil
}

func (f *fakeStore) DeleteByOrderID(ctx context.Context, orderID string) ([]domain.Reservation, error) {
	return nil, nil
}

func (f *fakeStore) ConfirmByOrderID(ctx context.Context, orderID string) ([]domain.Reservation, error) {
	return nil, nil
}

func (f *fakeStore) DeleteByUser(ctx context.Context, userID uuid.UUID, orderID string) ([]domain.Reservation, error) {
	return nil, nil
}

func (f *fakeStore) FindExpired(ctx context.Context, asOf time.Time) ([]domain.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Reservation
	for _, res := range f.rows {
		if !res.ExpiresAt.After(asOf) {
			out = append(out, res)
		}
	}
	return out, nil
}

func (f *fakeStore) DeleteByID(ctx context.Context, id string) (domain.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failClaim {
		return domain.Reservation{}, domain.ErrTransientStore
	}
	res, ok := f.rows[id]
	if !ok {
		return domain.Reservation{}, domain.ErrNotFound
	}
	delete(f.rows, id)
	return res, nil
}

func (f *fakeStore) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var purged int64
	for id, res := range f.rows {
		if res.ExpiresAt.Before(cutoff) {
			delete(f.rows, id)
			purged++
		}
	}
	return purged, nil
}

type fakeLocker struct {
	mu     sync.Mutex
	holder string
}

func (l *fakeLocker) AcquireSweepLock(ctx context.Context, instanceID string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.holder != "" && l.holder != instanceID {
		return false, nil
	}
	l.holder = instanceID
	return true, nil
}

func (l *fakeLocker) ReleaseSweepLock(ctx context.Context, instanceID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.holder == instanceID {
		l.holder = ""
	}
	return nil
}

func newTestSweeper(store *fakeStore, locker sweeper.Locker, grace time.Duration, instanceID string) *sweeper.Sweeper {
	return sweeper.New(store, store, nil, nil, locker, observability.NewLogger(), grace, instanceID)
}

func TestSweepRestoresExpiredHolds(t *testing.T) {
	store := newFakeStore()
	typeID := uuid.New()
	now := time.Now().UTC()

	store.addHold("order-1", typeID, 2, now.Add(-time.Minute))
	store.addHold("order-1", typeID, 1, now.Add(-time.Second))

	sw := newTestSweeper(store, nil, 10*time.Minute, "test")
	restored, err := sw.SweepOnce(context.Background(), now)
	require.NoError(t, err)

	assert.Equal(t, 2, restored)
	assert.Equal(t, int64(3), store.quantity(typeID))
	assert.Equal(t, 0, store.rowCount())
}

func TestSweepSkipsLiveHolds(t *testing.T) {
	store := newFakeStore()
	typeID := uuid.New()
	now := time.Now().UTC()

	live := store.addHold("order-1", typeID, 4, now.Add(2*time.Minute))

	sw := newTestSweeper(store, nil, 10*time.Minute, "test")
	restored, err := sw.SweepOnce(context.Background(), now)
	require.NoError(t, err)

	assert.Equal(t, 0, restored)
	assert.Equal(t, int64(0), store.quantity(typeID))
	assert.Equal(t, 1, store.rowCount())

	// A later sweep past the expiry picks it up.
	restored, err = sw.SweepOnce(context.Background(), live.ExpiresAt.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, 1, restored)
	assert.Equal(t, int64(4), store.quantity(typeID))
}

// Several sweeper instances racing over the same expired rows must restore
// each hold exactly once. The single-row delete is the claim.
func TestConcurrentSweepsRestoreExactlyOnce(t *testing.T) {
	store := newFakeStore()
	typeID := uuid.New()
	now := time.Now().UTC()

	const holds = 20
	for i := 0; i < holds; i++ {
		store.addHold("order-1", typeID, 1, now.Add(-time.Minute))
	}

	const instances = 4
	restored := make([]int, instances)
	var wg sync.WaitGroup
	for i := 0; i < instances; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sw := newTestSweeper(store, nil, 10*time.Minute, "test")
			n, err := sw.SweepOnce(context.Background(), now)
			assert.NoError(t, err)
			restored[i] = n
		}(i)
	}
	wg.Wait()

	total := 0
	for _, n := range restored {
		total += n
	}
	assert.Equal(t, holds, total)
	assert.Equal(t, int64(holds), store.quantity(typeID))
	assert.Equal(t, 0, store.rowCount())
}

func TestSweepLeaderLockSkipsNonLeaders(t *testing.T) {
	store := newFakeStore()
	typeID := uuid.New()
	now := time.Now().UTC()
	store.addHold("order-1", typeID, 1, now.Add(-time.Minute))

	locker := &fakeLocker{holder: "other-instance"}
	sw := newTestSweeper(store, locker, 10*time.Minute, "this-instance")

	restored, err := sw.SweepOnce(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 0, restored)
	assert.Equal(t, 1, store.rowCount())
}

func TestSweepRetriesTransientRestoreFailure(t *testing.T) {
	store := newFakeStore()
	typeID := uuid.New()
	now := time.Now().UTC()
	store.addHold("order-1", typeID, 2, now.Add(-time.Minute))
	store.failIncrement = 1

	sw := newTestSweeper(store, nil, 10*time.Minute, "test")
	restored, err := sw.SweepOnce(context.Background(), now)
	require.NoError(t, err)

	assert.Equal(t, 1, restored)
	assert.Equal(t, int64(2), store.quantity(typeID))
}

// The row is claimed by delete before its inventory comes back. When every
// restore attempt fails after the claim, the quantity stays lost for the
// grace window, and no later sweep can restore it twice: the safe failure
// direction, under-restore, never oversell.
func TestClaimedRowNeverRestoresTwice(t *testing.T) {
	store := newFakeStore()
	typeID := uuid.New()
	now := time.Now().UTC()
	store.addHold("order-1", typeID, 2, now.Add(-time.Minute))
	store.failIncrement = 100

	sw := newTestSweeper(store, nil, 10*time.Minute, "test")
	restored, err := sw.SweepOnce(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 0, restored)

	// Row is gone and the quantity was not restored.
	assert.Equal(t, 0, store.rowCount())
	assert.Equal(t, int64(0), store.quantity(typeID))

	// Increments work again, but there is no row left to claim.
	store.mu.Lock()
	store.failIncrement = 0
	store.mu.Unlock()
	restored, err = sw.SweepOnce(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 0, restored)
	assert.Equal(t, int64(0), store.quantity(typeID))
}

// A row the sweeper cannot claim stays put until it ages past the grace
// window, then the purge drops it without restoring inventory.
func TestSweepPurgesUnclaimableRowsPastGracePeriod(t *testing.T) {
	store := newFakeStore()
	typeID := uuid.New()
	now := time.Now().UTC()
	grace := 10 * time.Minute

	store.addHold("order-1", typeID, 3, now.Add(-time.Minute))
	store.failClaim = true

	sw := newTestSweeper(store, nil, grace, "test")

	restored, err := sw.SweepOnce(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 0, restored)
	assert.Equal(t, 1, store.rowCount())
	assert.Equal(t, int64(0), store.quantity(typeID))

	restored, err = sw.SweepOnce(context.Background(), now.Add(grace).Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, restored)
	assert.Equal(t, 0, store.rowCount())
	assert.Equal(t, int64(0), store.quantity(typeID))
}
