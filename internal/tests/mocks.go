package tests

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"travel/internal/domain"
	"travel/internal/gateway"
	"travel/internal/notification"
	"travel/internal/redis"
	"travel/internal/repository"
)

// ──────────────────────────────────────────────
// MOCK STORE
// ──────────────────────────────────────────────

// MockStore is an in-memory database shared by the mock repositories.
// WithinTx serializes transactions and restores a snapshot on error,
// which stands in for row locks and rollback.
type MockStore struct {
	txMu sync.Mutex

	mu       sync.RWMutex
	bookings map[string]*domain.Booking
	payments map[string]*domain.Payment
	listings map[string]*domain.Listing
	users    map[string]*domain.User

	// Counters for verification
	CreatePaymentCallCount int32
	MarkCompletedCallCount int32
	TxCount                int32

	// Error injection
	CreateBookingError error
	CreatePaymentError error
	BookingStatusError error
	UpsertUserError    error

	// OnGetPayment runs after a non-locking payment read, before it returns.
	OnGetPayment func(p *domain.Payment)
}

// NewMockStore creates a new empty store.
func NewMockStore() *MockStore {
	return &MockStore{
		bookings: make(map[string]*domain.Booking),
		payments: make(map[string]*domain.Payment),
		listings: make(map[string]*domain.Listing),
		users:    make(map[string]*domain.User),
	}
}

// Bookings returns the booking repository view.
func (m *MockStore) Bookings() repository.BookingRepository { return &MockBookingRepository{s: m} }

// Payments returns the payment repository view.
func (m *MockStore) Payments() repository.PaymentRepository { return &MockPaymentRepository{s: m} }

// Listings returns the listing repository view.
func (m *MockStore) Listings() repository.ListingRepository { return &MockListingRepository{s: m} }

// Users returns the user repository view.
func (m *MockStore) Users() repository.UserRepository { return &MockUserRepository{s: m} }

// WithinTx runs fn as one serialized, all-or-nothing unit.
func (m *MockStore) WithinTx(ctx context.Context, fn func(store repository.Store) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	atomic.AddInt32(&m.TxCount, 1)

	snapshot := m.snapshot()
	if err := fn(m); err != nil {
		m.restore(snapshot)
		return err
	}
	return nil
}

type storeSnapshot struct {
	bookings map[string]domain.Booking
	payments map[string]domain.Payment
}

func (m *MockStore) snapshot() storeSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := storeSnapshot{
		bookings: make(map[string]domain.Booking, len(m.bookings)),
		payments: make(map[string]domain.Payment, len(m.payments)),
	}
	for id, b := range m.bookings {
		s.bookings[id] = *b
	}
	for id, p := range m.payments {
		s.payments[id] = *p
	}
	return s
}

func (m *MockStore) restore(s storeSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bookings = make(map[string]*domain.Booking, len(s.bookings))
	for id, b := range s.bookings {
		b := b
		m.bookings[id] = &b
	}
	m.payments = make(map[string]*domain.Payment, len(s.payments))
	for id, p := range s.payments {
		p := p
		m.payments[id] = &p
	}
}

// AddListing adds a listing to the store.
func (m *MockStore) AddListing(listing *domain.Listing) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listings[listing.ID] = listing
}

// AddUser adds a user to the store.
func (m *MockStore) AddUser(user *domain.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.ID] = user
}

// AddBooking adds a booking to the store.
func (m *MockStore) AddBooking(booking *domain.Booking) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bookings[booking.ID] = booking
}

// AddPayment adds a payment to the store.
func (m *MockStore) AddPayment(payment *domain.Payment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payments[payment.ID] = payment
}

// GetBooking returns a copy of a booking for test assertions.
func (m *MockStore) GetBooking(id string) *domain.Booking {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bookings[id]
	if !ok {
		return nil
	}
	copy := *b
	return &copy
}

// GetPayment returns a copy of a payment for test assertions.
func (m *MockStore) GetPayment(id string) *domain.Payment {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.payments[id]
	if !ok {
		return nil
	}
	copy := *p
	return &copy
}

// PaymentsForBooking returns copies of all payments of a booking.
func (m *MockStore) PaymentsForBooking(bookingID string) []*domain.Payment {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.Payment
	for _, p := range m.payments {
		if p.BookingID == bookingID {
			copy := *p
			result = append(result, &copy)
		}
	}
	return result
}

// CountCompleted counts completed payments of a booking.
func (m *MockStore) CountCompleted(bookingID string) int {
	count := 0
	for _, p := range m.PaymentsForBooking(bookingID) {
		if p.Status == domain.PaymentStatusCompleted {
			count++
		}
	}
	return count
}

// ──────────────────────────────────────────────
// MOCK BOOKING REPOSITORY
// ──────────────────────────────────────────────

// MockBookingRepository is a mock implementation of BookingRepository.
type MockBookingRepository struct {
	s *MockStore
}

func (r *MockBookingRepository) Create(ctx context.Context, booking *domain.Booking) error {
	if r.s.CreateBookingError != nil {
		return r.s.CreateBookingError
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	copy := *booking
	r.s.bookings[booking.ID] = &copy
	return nil
}

func (r *MockBookingRepository) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	if b := r.s.GetBooking(id); b != nil {
		return b, nil
	}
	return nil, repository.ErrNotFound
}

func (r *MockBookingRepository) GetByIDForUpdate(ctx context.Context, id string) (*domain.Booking, error) {
	return r.GetByID(ctx, id)
}

func (r *MockBookingRepository) ListByUser(ctx context.Context, userID string) ([]*domain.Booking, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	result := make([]*domain.Booking, 0)
	for _, b := range r.s.bookings {
		if b.UserID == userID {
			copy := *b
			result = append(result, &copy)
		}
	}
	// Newest first.
	for i := 1; i < len(result); i++ {
		for j := i; j > 0 && result[j].CreatedAt.After(result[j-1].CreatedAt); j-- {
			result[j], result[j-1] = result[j-1], result[j]
		}
	}
	return result, nil
}

func (r *MockBookingRepository) CompareAndSetStatus(ctx context.Context, id string, from, to domain.BookingStatus) (bool, error) {
	if r.s.BookingStatusError != nil {
		return false, r.s.BookingStatusError
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.bookings[id]
	if !ok || b.Status != from {
		return false, nil
	}
	b.Status = to
	return true, nil
}

// ──────────────────────────────────────────────
// MOCK PAYMENT REPOSITORY
// ──────────────────────────────────────────────

// MockPaymentRepository is a mock implementation of PaymentRepository.
// It enforces unique tx_ref and at most one completed payment per booking.
type MockPaymentRepository struct {
	s *MockStore
}

func (r *MockPaymentRepository) Create(ctx context.Context, payment *domain.Payment) error {
	atomic.AddInt32(&r.s.CreatePaymentCallCount, 1)
	if r.s.CreatePaymentError != nil {
		return r.s.CreatePaymentError
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.payments {
		if p.TxRef == payment.TxRef {
			return repository.ErrDuplicate
		}
	}
	copy := *payment
	r.s.payments[payment.ID] = &copy
	return nil
}

func (r *MockPaymentRepository) GetByID(ctx context.Context, id string) (*domain.Payment, error) {
	if p := r.s.GetPayment(id); p != nil {
		if r.s.OnGetPayment != nil {
			r.s.OnGetPayment(p)
		}
		return p, nil
	}
	return nil, repository.ErrNotFound
}

func (r *MockPaymentRepository) GetByTxRef(ctx context.Context, txRef string) (*domain.Payment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, p := range r.s.payments {
		if p.TxRef == txRef {
			copy := *p
			return &copy, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *MockPaymentRepository) GetByTxRefForUpdate(ctx context.Context, txRef string) (*domain.Payment, error) {
	return r.GetByTxRef(ctx, txRef)
}

func (r *MockPaymentRepository) HasCompleted(ctx context.Context, bookingID string) (bool, error) {
	return r.s.CountCompleted(bookingID) > 0, nil
}

func (r *MockPaymentRepository) MarkCompleted(ctx context.Context, id, method string, verifiedAt time.Time) error {
	atomic.AddInt32(&r.s.MarkCompletedCallCount, 1)
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.payments[id]
	if !ok || p.Status != domain.PaymentStatusPending {
		return repository.ErrConflict
	}
	for _, other := range r.s.payments {
		if other.BookingID == p.BookingID && other.Status == domain.PaymentStatusCompleted {
			return repository.ErrDuplicate
		}
	}
	p.MarkCompleted(method, verifiedAt)
	return nil
}

func (r *MockPaymentRepository) MarkFailed(ctx context.Context, id string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.payments[id]
	if !ok || p.Status != domain.PaymentStatusPending {
		return repository.ErrConflict
	}
	p.MarkFailed(at)
	return nil
}

// ──────────────────────────────────────────────
// MOCK LISTING / USER REPOSITORIES
// ──────────────────────────────────────────────

// MockListingRepository is a mock implementation of ListingRepository.
type MockListingRepository struct {
	s *MockStore
}

func (r *MockListingRepository) GetByID(ctx context.Context, id string) (*domain.Listing, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	l, ok := r.s.listings[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copy := *l
	return &copy, nil
}

// MockUserRepository is a mock implementation of UserRepository.
type MockUserRepository struct {
	s *MockStore
}

func (r *MockUserRepository) Upsert(ctx context.Context, user *domain.User) error {
	if r.s.UpsertUserError != nil {
		return r.s.UpsertUserError
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	copy := *user
	r.s.users[user.ID] = &copy
	return nil
}

func (r *MockUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copy := *u
	return &copy, nil
}

// ──────────────────────────────────────────────
// MOCK GATEWAY
// ──────────────────────────────────────────────

// MockGateway is a mock payment gateway.
type MockGateway struct {
	mu       sync.Mutex
	verdicts map[string]gateway.ExternalStatus
	amounts  []decimal.Decimal

	// Counters for verification
	InitializeCallCount int32
	VerifyCallCount     int32

	// Error injection
	InitializeError error
	VerifyError     error

	// DefaultVerdict is returned for references without an explicit verdict.
	DefaultVerdict gateway.ExternalStatus
	PaymentMethod  string

	// OnInitialize runs inside Initialize, before it returns.
	OnInitialize func(req gateway.InitializeRequest)
}

// NewMockGateway creates a gateway that confirms every payment.
func NewMockGateway() *MockGateway {
	return &MockGateway{
		verdicts:       make(map[string]gateway.ExternalStatus),
		DefaultVerdict: gateway.ExternalStatusSuccess,
		PaymentMethod:  "telebirr",
	}
}

// SetVerdict fixes the verify result for a reference.
func (g *MockGateway) SetVerdict(txRef string, status gateway.ExternalStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.verdicts[txRef] = status
}

// InitializedAmounts returns the amounts sent to Initialize.
func (g *MockGateway) InitializedAmounts() []decimal.Decimal {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]decimal.Decimal(nil), g.amounts...)
}

func (g *MockGateway) Initialize(ctx context.Context, req gateway.InitializeRequest) (*gateway.InitializeResult, error) {
	atomic.AddInt32(&g.InitializeCallCount, 1)
	if g.InitializeError != nil {
		return nil, g.InitializeError
	}
	g.mu.Lock()
	g.amounts = append(g.amounts, req.Amount)
	g.mu.Unlock()
	if g.OnInitialize != nil {
		g.OnInitialize(req)
	}
	return &gateway.InitializeResult{CheckoutURL: "https://checkout.test/" + req.TxRef}, nil
}

func (g *MockGateway) Verify(ctx context.Context, txRef string) (*gateway.VerifyResult, error) {
	atomic.AddInt32(&g.VerifyCallCount, 1)
	if g.VerifyError != nil {
		return nil, g.VerifyError
	}
	g.mu.Lock()
	status, ok := g.verdicts[txRef]
	g.mu.Unlock()
	if !ok {
		status = g.DefaultVerdict
	}
	return &gateway.VerifyResult{Status: status, PaymentMethod: g.PaymentMethod}, nil
}

// ──────────────────────────────────────────────
// MOCK DISPATCHER
// ──────────────────────────────────────────────

// MockDispatcher records enqueued notification jobs.
type MockDispatcher struct {
	mu   sync.Mutex
	jobs []notification.Job

	// Error injection
	EnqueueError error

	// OnEnqueue runs at the start of Enqueue.
	OnEnqueue func(job notification.Job)
}

// NewMockDispatcher creates a new MockDispatcher.
func NewMockDispatcher() *MockDispatcher {
	return &MockDispatcher{}
}

func (d *MockDispatcher) Enqueue(ctx context.Context, job notification.Job) (notification.JobHandle, error) {
	if d.OnEnqueue != nil {
		d.OnEnqueue(job)
	}
	if d.EnqueueError != nil {
		return notification.JobHandle{}, d.EnqueueError
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.jobs = append(d.jobs, job)
	return notification.JobHandle{ID: job.ID}, nil
}

// Jobs returns the enqueued jobs of a kind.
func (d *MockDispatcher) Jobs(kind notification.Kind) []notification.Job {
	d.mu.Lock()
	defer d.mu.Unlock()
	var result []notification.Job
	for _, j := range d.jobs {
		if j.Kind == kind {
			result = append(result, j)
		}
	}
	return result
}

// ──────────────────────────────────────────────
// MOCK LOCK STORE / CACHE
// ──────────────────────────────────────────────

// MockLockStore is an in-memory LockStoreInterface.
type MockLockStore struct {
	mu    sync.Mutex
	locks map[string]string
	seq   int

	// Error injection
	AcquireError error
}

// NewMockLockStore creates a new MockLockStore.
func NewMockLockStore() *MockLockStore {
	return &MockLockStore{locks: make(map[string]string)}
}

// Hold marks a reference as locked by someone else.
func (l *MockLockStore) Hold(txRef string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.locks[txRef] = "held-elsewhere"
}

// Held reports whether a reference is locked.
func (l *MockLockStore) Held(txRef string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.locks[txRef]
	return ok
}

func (l *MockLockStore) AcquireVerifyLock(ctx context.Context, txRef string, ttl time.Duration) (string, bool, error) {
	if l.AcquireError != nil {
		return "", false, l.AcquireError
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, held := l.locks[txRef]; held {
		return "", false, nil
	}
	l.seq++
	token := fmt.Sprintf("token-%d", l.seq)
	l.locks[txRef] = token
	return token, true, nil
}

func (l *MockLockStore) ReleaseVerifyLock(ctx context.Context, txRef, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.locks[txRef] == token {
		delete(l.locks, txRef)
	}
	return nil
}

// MockCache is an in-memory PaymentCacheInterface.
type MockCache struct {
	mu       sync.Mutex
	payments map[string]redis.CachedPayment

	// Counters for verification
	HitCount        int32
	InvalidateCount int32
}

// NewMockCache creates a new MockCache.
func NewMockCache() *MockCache {
	return &MockCache{payments: make(map[string]redis.CachedPayment)}
}

func (c *MockCache) GetPayment(ctx context.Context, paymentID string) (*redis.CachedPayment, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.payments[paymentID]
	if !ok {
		return nil, nil
	}
	atomic.AddInt32(&c.HitCount, 1)
	return &p, nil
}

func (c *MockCache) SetPayment(ctx context.Context, payment *redis.CachedPayment) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.payments[payment.ID] = *payment
	return nil
}

func (c *MockCache) InvalidatePayment(ctx context.Context, paymentID string) error {
	atomic.AddInt32(&c.InvalidateCount, 1)
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.payments, paymentID)
	return nil
}

// Ensure mocks implement interfaces.
var (
	_ repository.TxManager          = (*MockStore)(nil)
	_ repository.Store              = (*MockStore)(nil)
	_ repository.BookingRepository  = (*MockBookingRepository)(nil)
	_ repository.PaymentRepository  = (*MockPaymentRepository)(nil)
	_ repository.ListingRepository  = (*MockListingRepository)(nil)
	_ repository.UserRepository     = (*MockUserRepository)(nil)
	_ notification.Dispatcher       = (*MockDispatcher)(nil)
	_ redis.LockStoreInterface      = (*MockLockStore)(nil)
	_ redis.PaymentCacheInterface   = (*MockCache)(nil)
)
