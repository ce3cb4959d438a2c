//go:build !integration

package usecase_test

import (
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"billing-sync/internal/domain"
	"billing-sync/internal/domain/model"
	"billing-sync/internal/domain/ports/adapter"
	"billing-sync/internal/domain/ports/repository"
)

// The in-memory repositories below follow the SQL semantics of the Postgres
// implementations: unique keys, sticky revoked status and first-wins completed_at.

// ---- Users ----

type MockUserRepo struct {
	mu    sync.Mutex
	users map[string]*model.User

	SetSubscriptionStateFunc func(ctx context.Context, userID string, status model.UserSubscriptionStatus, endsAt *time.Time) error
}

var _ repository.UserRepository = (*MockUserRepo)(nil)

func NewMockUserRepo(users ...*model.User) *MockUserRepo {
	m := &MockUserRepo{users: make(map[string]*model.User)}
	for _, u := range users {
		m.users[u.ID] = u
	}
	return m
}

func (m *MockUserRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (m *MockUserRepo) FindByEmail(ctx context.Context, tx repository.Tx, email string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	email = model.NormalizeEmail(email)
	for _, u := range m.users {
		if model.NormalizeEmail(u.Email) == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockUserRepo) FindByProviderCustomerID(ctx context.Context, tx repository.Tx, customerID string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.ProviderCustomerID != nil && *u.ProviderCustomerID == customerID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockUserRepo) LinkCustomer(ctx context.Context, tx repository.Tx, userID, customerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return domain.ErrNotFound
	}
	for id, other := range m.users {
		if id != userID && other.ProviderCustomerID != nil && *other.ProviderCustomerID == customerID {
			return domain.ErrAlreadyExists
		}
	}
	u.ProviderCustomerID = &customerID
	return nil
}

func (m *MockUserRepo) SetSubscriptionState(ctx context.Context, tx repository.Tx, userID string, status model.UserSubscriptionStatus, endsAt *time.Time) error {
	if m.SetSubscriptionStateFunc != nil {
		return m.SetSubscriptionStateFunc(ctx, userID, status, endsAt)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return domain.ErrNotFound
	}
	u.SubscriptionStatus = status
	u.SubscriptionEndsAt = endsAt
	return nil
}

func (m *MockUserRepo) UpdateContact(ctx context.Context, tx repository.Tx, userID, email, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return domain.ErrNotFound
	}
	for id, other := range m.users {
		if id != userID && model.NormalizeEmail(other.Email) == model.NormalizeEmail(email) {
			return domain.ErrNotFound
		}
	}
	u.Email = model.NormalizeEmail(email)
	if name != "" {
		u.Name = name
	}
	return nil
}

func (m *MockUserRepo) Get(id string) *model.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.users[id]
}

// ---- Profiles ----

type MockProfileRepo struct {
	mu       sync.Mutex
	profiles map[string]*model.Profile

	UpsertFunc func(ctx context.Context, tx repository.Tx, p *model.Profile) error
}

var _ repository.ProfileRepository = (*MockProfileRepo)(nil)

func NewMockProfileRepo(profiles ...*model.Profile) *MockProfileRepo {
	m := &MockProfileRepo{profiles: make(map[string]*model.Profile)}
	for _, p := range profiles {
		m.profiles[p.ClerkID] = p
	}
	return m
}

func (m *MockProfileRepo) Upsert(ctx context.Context, tx repository.Tx, p *model.Profile) error {
	if m.UpsertFunc != nil {
		return m.UpsertFunc(ctx, tx, p)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.profiles[p.ClerkID] = &cp
	return nil
}

func (m *MockProfileRepo) FindByClerkID(ctx context.Context, tx repository.Tx, clerkID string) (*model.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.profiles[clerkID]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (m *MockProfileRepo) FindByEmail(ctx context.Context, tx repository.Tx, email string) (*model.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.profiles {
		if model.NormalizeEmail(p.Email) == model.NormalizeEmail(email) {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

// ---- Orders ----

type MockOrderRepo struct {
	mu     sync.Mutex
	orders map[string]*model.Order

	UpsertFunc func(ctx context.Context, tx repository.Tx, o *model.Order) (*model.Order, error)
}

var _ repository.OrderRepository = (*MockOrderRepo)(nil)

func NewMockOrderRepo() *MockOrderRepo {
	return &MockOrderRepo{orders: make(map[string]*model.Order)}
}

func (m *MockOrderRepo) Upsert(ctx context.Context, tx repository.Tx, o *model.Order) (*model.Order, error) {
	if m.UpsertFunc != nil {
		return m.UpsertFunc(ctx, tx, o)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *o
	if prev, ok := m.orders[o.PolarOrderID]; ok {
		if prev.Status == model.OrderStatusCompleted {
			cp.Status = model.OrderStatusCompleted
		}
		if prev.CompletedAt != nil {
			cp.CompletedAt = prev.CompletedAt
		}
		cp.CreatedAt = prev.CreatedAt
	}
	m.orders[o.PolarOrderID] = &cp
	out := cp
	return &out, nil
}

func (m *MockOrderRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.orders[id]; ok {
		cp := *o
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (m *MockOrderRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string, limit int) ([]*model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Order
	for _, o := range m.orders {
		if o.UserID == userID {
			cp := *o
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockOrderRepo) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}

// ---- Subscriptions ----

type MockSubscriptionRepo struct {
	mu   sync.Mutex
	subs map[string]*model.Subscription
}

var _ repository.SubscriptionRepository = (*MockSubscriptionRepo)(nil)

func NewMockSubscriptionRepo() *MockSubscriptionRepo {
	return &MockSubscriptionRepo{subs: make(map[string]*model.Subscription)}
}

func (m *MockSubscriptionRepo) Upsert(ctx context.Context, tx repository.Tx, s *model.Subscription) (*model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	if prev, ok := m.subs[s.PolarSubscriptionID]; ok {
		cp.Status = model.MergeSubscriptionStatus(prev.Status, s.Status)
		cp.CreatedAt = prev.CreatedAt
	}
	m.subs[s.PolarSubscriptionID] = &cp
	out := cp
	return &out, nil
}

func (m *MockSubscriptionRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.subs[id]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (m *MockSubscriptionRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string, statuses ...model.SubscriptionStatus) ([]*model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Subscription
	for _, s := range m.subs {
		if s.UserID != userID {
			continue
		}
		if len(statuses) > 0 && !containsStatus(statuses, s.Status) {
			continue
		}
		cp := *s
		out = append(out, &cp)
	}
	return out, nil
}

func (m *MockSubscriptionRepo) ListLapsed(ctx context.Context, tx repository.Tx, now time.Time, limit int) ([]*model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Subscription
	for _, s := range m.subs {
		if s.Status == model.SubscriptionStatusCanceled && s.CurrentPeriodEnd != nil && !s.CurrentPeriodEnd.After(now) {
			cp := *s
			out = append(out, &cp)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Get returns the stored row itself so tests can age it.
func (m *MockSubscriptionRepo) Get(id string) *model.Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.subs[id]
}

func containsStatus(list []model.SubscriptionStatus, s model.SubscriptionStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// ---- Access ----

type MockAccessRepo struct {
	mu     sync.Mutex
	grants map[string]*model.AccessGrant

	// InsertFunc runs before the default insert; a non-nil error is returned as is.
	InsertFunc func(ctx context.Context, tx repository.Tx, g *model.AccessGrant) error
	Writes     int
}

var _ repository.AccessRepository = (*MockAccessRepo)(nil)

func NewMockAccessRepo() *MockAccessRepo {
	return &MockAccessRepo{grants: make(map[string]*model.AccessGrant)}
}

func accessKey(userID, productID string) string { return userID + "|" + productID }

func (m *MockAccessRepo) Find(ctx context.Context, tx repository.Tx, userID, productID string) (*model.AccessGrant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g, ok := m.grants[accessKey(userID, productID)]; ok {
		cp := *g
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (m *MockAccessRepo) Insert(ctx context.Context, tx repository.Tx, g *model.AccessGrant) error {
	if m.InsertFunc != nil {
		if err := m.InsertFunc(ctx, tx, g); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	k := accessKey(g.UserID, g.ProductID)
	if _, ok := m.grants[k]; ok {
		return domain.ErrAlreadyExists
	}
	cp := *g
	m.grants[k] = &cp
	m.Writes++
	return nil
}

func (m *MockAccessRepo) Update(ctx context.Context, tx repository.Tx, g *model.AccessGrant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.grants[accessKey(g.UserID, g.ProductID)]
	if !ok {
		return domain.ErrNotFound
	}
	// column rules of the UPDATE: customer and benefit/order ids coalesce,
	// has_access and subscription_id are written as given
	if g.ProviderCustomerID != "" {
		cur.ProviderCustomerID = g.ProviderCustomerID
	}
	if g.BenefitID != nil {
		v := *g.BenefitID
		cur.BenefitID = &v
	}
	if g.OrderID != nil {
		v := *g.OrderID
		cur.OrderID = &v
	}
	cur.HasAccess = g.HasAccess
	cur.SubscriptionID = nil
	if g.SubscriptionID != nil {
		v := *g.SubscriptionID
		cur.SubscriptionID = &v
	}
	cur.UpdatedAt = time.Now().UTC()
	m.Writes++
	return nil
}

func (m *MockAccessRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string) ([]*model.AccessGrant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.AccessGrant
	for _, g := range m.grants {
		if g.UserID == userID {
			cp := *g
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}

func (m *MockAccessRepo) RevokeBySubscription(ctx context.Context, tx repository.Tx, subscriptionID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var users []string
	for _, g := range m.grants {
		if g.SubscriptionID != nil && *g.SubscriptionID == subscriptionID && g.HasAccess {
			g.HasAccess = false
			users = append(users, g.UserID)
		}
	}
	return users, nil
}

func (m *MockAccessRepo) Get(userID, productID string) *model.AccessGrant {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.grants[accessKey(userID, productID)]
}

func (m *MockAccessRepo) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.grants)
}

// ---- Transactions ----

type MockTxManager struct {
	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error
	Calls      int
}

func NewMockTxManager() *MockTxManager {
	return &MockTxManager{}
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

// WithTx runs fn immediately with NoTX unless WithTxFunc is set.
func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	m.Calls++
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	return fn(ctx, repository.NoTX)
}

// ---- Notifier ----

type MockNotifier struct {
	mu   sync.Mutex
	Sent []string
}

var _ adapter.Notifier = (*MockNotifier)(nil)

func (m *MockNotifier) Notify(ctx context.Context, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, text)
	return nil
}

// ---- Fixture ----

type fixture struct {
	users    *MockUserRepo
	profiles *MockProfileRepo
	orders   *MockOrderRepo
	subs     *MockSubscriptionRepo
	access   *MockAccessRepo
	tm       *MockTxManager
	notifier *MockNotifier
}

func newFixture(users ...*model.User) *fixture {
	return &fixture{
		users:    NewMockUserRepo(users...),
		profiles: NewMockProfileRepo(),
		orders:   NewMockOrderRepo(),
		subs:     NewMockSubscriptionRepo(),
		access:   NewMockAccessRepo(),
		tm:       NewMockTxManager(),
		notifier: &MockNotifier{},
	}
}

func mustUser(id, email string) *model.User {
	now := time.Now().UTC()
	return &model.User{
		ID:                 id,
		Email:              model.NormalizeEmail(email),
		SubscriptionStatus: model.UserStatusFree,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}
