// Package testutil provides an in-memory repositories.Store for service
// tests. Atomic holds a store-wide lock for the whole callback and restores
// a snapshot when the callback fails, so concurrent callers observe the same
// serialization a row lock would give them.
package testutil

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"airswitch/internal/models"
	"airswitch/internal/repositories"

	"github.com/shopspring/decimal"
)

type memState struct {
	nextID     uint
	users      map[uint]models.User
	wallets    map[uint]models.Wallet
	txns       []models.Transaction
	points     map[uint]models.UserPoints
	pointsTxns []models.PointsTransaction
	referrals  []models.Referral
	esims      map[uint]models.ESim
	orders     []models.EsimOrder
	comps      []models.Compensation
	messages   []models.Message
	calls      []models.Call
	numbers    []models.PhoneNumber
}

func newMemState() *memState {
	return &memState{
		users:   map[uint]models.User{},
		wallets: map[uint]models.Wallet{},
		points:  map[uint]models.UserPoints{},
		esims:   map[uint]models.ESim{},
	}
}

func (s *memState) clone() *memState {
	cp := &memState{
		nextID:     s.nextID,
		users:      make(map[uint]models.User, len(s.users)),
		wallets:    make(map[uint]models.Wallet, len(s.wallets)),
		points:     make(map[uint]models.UserPoints, len(s.points)),
		esims:      make(map[uint]models.ESim, len(s.esims)),
		txns:       append([]models.Transaction(nil), s.txns...),
		pointsTxns: append([]models.PointsTransaction(nil), s.pointsTxns...),
		referrals:  append([]models.Referral(nil), s.referrals...),
		orders:     append([]models.EsimOrder(nil), s.orders...),
		comps:      append([]models.Compensation(nil), s.comps...),
		messages:   append([]models.Message(nil), s.messages...),
		calls:      append([]models.Call(nil), s.calls...),
		numbers:    append([]models.PhoneNumber(nil), s.numbers...),
	}
	for k, v := range s.users {
		cp.users[k] = v
	}
	for k, v := range s.wallets {
		cp.wallets[k] = v
	}
	for k, v := range s.points {
		cp.points[k] = v
	}
	for k, v := range s.esims {
		cp.esims[k] = v
	}
	return cp
}

func (s *memState) id() uint {
	s.nextID++
	return s.nextID
}

type hooks struct {
	mu       sync.Mutex
	failures map[string]error
	calls    map[string]int
}

// MemStore implements repositories.Store in memory.
type MemStore struct {
	mu    *sync.Mutex
	st    *memState
	inTx  bool
	hooks *hooks
	now   func() time.Time
}

var _ repositories.Store = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{
		mu: &sync.Mutex{},
		st: newMemState(),
		hooks: &hooks{
			failures: map[string]error{},
			calls:    map[string]int{},
		},
		now: time.Now,
	}
}

// FailOn makes every later call of op (e.g. "orders.MarkRecorded") return err.
// A nil err clears the failure.
func (s *MemStore) FailOn(op string, err error) {
	s.hooks.mu.Lock()
	defer s.hooks.mu.Unlock()
	if err == nil {
		delete(s.hooks.failures, op)
		return
	}
	s.hooks.failures[op] = err
}

// Calls returns how many times op was invoked.
func (s *MemStore) Calls(op string) int {
	s.hooks.mu.Lock()
	defer s.hooks.mu.Unlock()
	return s.hooks.calls[op]
}

func (s *MemStore) check(op string) error {
	s.hooks.mu.Lock()
	defer s.hooks.mu.Unlock()
	s.hooks.calls[op]++
	return s.hooks.failures[op]
}

func (s *MemStore) lock() func() {
	if s.inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *MemStore) Atomic(ctx context.Context, fn func(tx repositories.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("store.Atomic"); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	snapshot := s.st.clone()
	tx := &MemStore{mu: s.mu, st: s.st, inTx: true, hooks: s.hooks, now: s.now}
	if err := fn(tx); err != nil {
		*s.st = *snapshot
		return err
	}
	return nil
}

func (s *MemStore) Users() repositories.UserRepository                 { return memUsers{s} }
func (s *MemStore) Wallets() repositories.WalletRepository             { return memWallets{s} }
func (s *MemStore) Transactions() repositories.TransactionRepository   { return memTxns{s} }
func (s *MemStore) Points() repositories.PointsRepository              { return memPoints{s} }
func (s *MemStore) Referrals() repositories.ReferralRepository         { return memReferrals{s} }
func (s *MemStore) ESims() repositories.ESimRepository                 { return memESims{s} }
func (s *MemStore) Orders() repositories.OrderRepository               { return memOrders{s} }
func (s *MemStore) Compensations() repositories.CompensationRepository { return memComps{s} }
func (s *MemStore) Telecom() repositories.TelecomRepository            { return memTelecom{s} }

// Seeding and inspection helpers.

// SeedUser creates a user with a wallet holding the given balances.
func (s *MemStore) SeedUser(email string, usd, ngn string) uint {
	defer s.lock()()
	id := s.st.id()
	s.st.users[id] = models.User{Email: email, Name: email, Role: models.RoleUser, TokenVersion: 1}
	u := s.st.users[id]
	u.ID = id
	s.st.users[id] = u
	s.st.wallets[id] = models.Wallet{
		ID:         s.st.id(),
		UserID:     id,
		BalanceUSD: decimal.RequireFromString(usd),
		BalanceNGN: decimal.RequireFromString(ngn),
	}
	return id
}

// SeedPoints sets a user's points row directly.
func (s *MemStore) SeedPoints(userID uint, available, redeemed int64) {
	defer s.lock()()
	s.st.points[userID] = models.UserPoints{
		ID:              s.st.id(),
		UserID:          userID,
		TotalPoints:     available + redeemed,
		AvailablePoints: available,
		RedeemedPoints:  redeemed,
	}
}

// SeedReferral inserts a referral row as-is.
func (s *MemStore) SeedReferral(r models.Referral) models.Referral {
	defer s.lock()()
	r.ID = s.st.id()
	if r.Status == "" {
		r.Status = models.ReferralStatusPending
	}
	s.st.referrals = append(s.st.referrals, r)
	return r
}

func (s *MemStore) Wallet(userID uint) models.Wallet {
	defer s.lock()()
	return s.st.wallets[userID]
}

func (s *MemStore) UserPoints(userID uint) (models.UserPoints, bool) {
	defer s.lock()()
	p, ok := s.st.points[userID]
	return p, ok
}

func (s *MemStore) AllTransactions() []models.Transaction {
	defer s.lock()()
	return append([]models.Transaction(nil), s.st.txns...)
}

func (s *MemStore) AllPointsTransactions() []models.PointsTransaction {
	defer s.lock()()
	return append([]models.PointsTransaction(nil), s.st.pointsTxns...)
}

func (s *MemStore) AllPoints() []models.UserPoints {
	defer s.lock()()
	out := make([]models.UserPoints, 0, len(s.st.points))
	for _, p := range s.st.points {
		out = append(out, p)
	}
	return out
}

func (s *MemStore) AllOrders() []models.EsimOrder {
	defer s.lock()()
	return append([]models.EsimOrder(nil), s.st.orders...)
}

func (s *MemStore) AllESims() []models.ESim {
	defer s.lock()()
	out := make([]models.ESim, 0, len(s.st.esims))
	for _, e := range s.st.esims {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *MemStore) AllCompensations() []models.Compensation {
	defer s.lock()()
	return append([]models.Compensation(nil), s.st.comps...)
}

func (s *MemStore) AllMessages() []models.Message {
	defer s.lock()()
	return append([]models.Message(nil), s.st.messages...)
}

func (s *MemStore) AllNumbers() []models.PhoneNumber {
	defer s.lock()()
	return append([]models.PhoneNumber(nil), s.st.numbers...)
}

func (s *MemStore) AllCalls() []models.Call {
	defer s.lock()()
	return append([]models.Call(nil), s.st.calls...)
}

func (s *MemStore) Referral(code string) (models.Referral, bool) {
	defer s.lock()()
	for _, r := range s.st.referrals {
		if r.ReferralCode == code {
			return r, true
		}
	}
	return models.Referral{}, false
}

// AgeOrder moves an order's UpdatedAt back by d.
func (s *MemStore) AgeOrder(reference string, d time.Duration) {
	defer s.lock()()
	for i := range s.st.orders {
		if s.st.orders[i].Reference == reference {
			s.st.orders[i].UpdatedAt = s.st.orders[i].UpdatedAt.Add(-d)
		}
	}
}

// users

type memUsers struct{ s *MemStore }

func (r memUsers) Create(ctx context.Context, user *models.User) error {
	if err := r.s.check("users.Create"); err != nil {
		return err
	}
	defer r.s.lock()()
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	for _, u := range r.s.st.users {
		if u.Email == user.Email {
			return repositories.ErrEmailTaken
		}
	}
	user.ID = r.s.st.id()
	user.CreatedAt = r.s.now()
	if user.TokenVersion == 0 {
		user.TokenVersion = 1
	}
	if user.Role == "" {
		user.Role = models.RoleUser
	}
	r.s.st.users[user.ID] = *user
	return nil
}

func (r memUsers) GetByID(ctx context.Context, id uint) (*models.User, error) {
	defer r.s.lock()()
	u, ok := r.s.st.users[id]
	if !ok {
		return nil, repositories.ErrUserNotFound
	}
	return &u, nil
}

func (r memUsers) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	defer r.s.lock()()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range r.s.st.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, repositories.ErrUserNotFound
}

func (r memUsers) IncrementTokenVersion(ctx context.Context, userID uint) error {
	defer r.s.lock()()
	u, ok := r.s.st.users[userID]
	if !ok {
		return repositories.ErrUserNotFound
	}
	u.TokenVersion++
	r.s.st.users[userID] = u
	return nil
}

func (r memUsers) TouchLogin(ctx context.Context, userID uint, at time.Time) error {
	defer r.s.lock()()
	u, ok := r.s.st.users[userID]
	if ok {
		u.LastLoginAt = &at
		r.s.st.users[userID] = u
	}
	return nil
}

func (r memUsers) UpdateProfile(ctx context.Context, userID uint, name, photoURL *string) (*models.User, error) {
	if err := r.s.check("users.UpdateProfile"); err != nil {
		return nil, err
	}
	defer r.s.lock()()
	u, ok := r.s.st.users[userID]
	if !ok {
		return nil, repositories.ErrUserNotFound
	}
	if name != nil {
		u.Name = *name
	}
	if photoURL != nil {
		u.PhotoURL = nil
		if *photoURL != "" {
			u.PhotoURL = models.StringPtr(*photoURL)
		}
	}
	r.s.st.users[userID] = u
	return &u, nil
}

// wallets

type memWallets struct{ s *MemStore }

func (r memWallets) Create(ctx context.Context, wallet *models.Wallet) error {
	if err := r.s.check("wallets.Create"); err != nil {
		return err
	}
	defer r.s.lock()()
	if _, ok := r.s.st.wallets[wallet.UserID]; ok {
		return repositories.ErrDuplicateWallet
	}
	wallet.ID = r.s.st.id()
	r.s.st.wallets[wallet.UserID] = *wallet
	return nil
}

func (r memWallets) GetByUserID(ctx context.Context, userID uint) (*models.Wallet, error) {
	if err := r.s.check("wallets.GetByUserID"); err != nil {
		return nil, err
	}
	defer r.s.lock()()
	w, ok := r.s.st.wallets[userID]
	if !ok {
		return nil, repositories.ErrWalletNotFound
	}
	return &w, nil
}

func (r memWallets) Credit(ctx context.Context, userID uint, currency string, amount decimal.Decimal) error {
	if err := r.s.check("wallets.Credit"); err != nil {
		return err
	}
	defer r.s.lock()()
	w, ok := r.s.st.wallets[userID]
	if !ok {
		return repositories.ErrWalletNotFound
	}
	switch currency {
	case models.CurrencyUSD:
		w.BalanceUSD = w.BalanceUSD.Add(amount)
	case models.CurrencyNGN:
		w.BalanceNGN = w.BalanceNGN.Add(amount)
	default:
		return repositories.ErrUnsupportedCurrency
	}
	r.s.st.wallets[userID] = w
	return nil
}

func (r memWallets) Debit(ctx context.Context, userID uint, currency string, amount decimal.Decimal) error {
	if err := r.s.check("wallets.Debit"); err != nil {
		return err
	}
	defer r.s.lock()()
	w, ok := r.s.st.wallets[userID]
	if !ok {
		return repositories.ErrInsufficientFunds
	}
	switch currency {
	case models.CurrencyUSD:
		if w.BalanceUSD.LessThan(amount) {
			return repositories.ErrInsufficientFunds
		}
		w.BalanceUSD = w.BalanceUSD.Sub(amount)
	case models.CurrencyNGN:
		if w.BalanceNGN.LessThan(amount) {
			return repositories.ErrInsufficientFunds
		}
		w.BalanceNGN = w.BalanceNGN.Sub(amount)
	default:
		return repositories.ErrUnsupportedCurrency
	}
	r.s.st.wallets[userID] = w
	return nil
}

// transactions

type memTxns struct{ s *MemStore }

func (r memTxns) Create(ctx context.Context, txn *models.Transaction) error {
	if err := r.s.check("transactions.Create"); err != nil {
		return err
	}
	defer r.s.lock()()
	return r.insert(txn)
}

func (r memTxns) insert(txn *models.Transaction) error {
	if ref := txn.Ref(); ref != "" {
		for _, t := range r.s.st.txns {
			if t.Ref() == ref {
				return repositories.ErrDuplicateReference
			}
		}
	}
	txn.ID = r.s.st.id()
	txn.CreatedAt = r.s.now()
	txn.UpdatedAt = txn.CreatedAt
	if txn.Status == "" {
		txn.Status = models.TransactionStatusPending
	}
	r.s.st.txns = append(r.s.st.txns, *txn)
	return nil
}

func (r memTxns) GetByReference(ctx context.Context, reference string) (*models.Transaction, error) {
	defer r.s.lock()()
	for _, t := range r.s.st.txns {
		if t.Ref() == reference {
			return &t, nil
		}
	}
	return nil, repositories.ErrTransactionNotFound
}

func (r memTxns) Settle(ctx context.Context, txn *models.Transaction) error {
	if err := r.s.check("transactions.Settle"); err != nil {
		return err
	}
	defer r.s.lock()()
	if ref := txn.Ref(); ref != "" {
		for i, t := range r.s.st.txns {
			if t.Ref() == ref && t.Status != models.TransactionStatusSuccess &&
				t.Type == txn.Type && t.UserID == txn.UserID {
				t.Status = models.TransactionStatusSuccess
				t.Amount = txn.Amount
				t.Currency = txn.Currency
				t.Description = txn.Description
				t.UpdatedAt = r.s.now()
				r.s.st.txns[i] = t
				*txn = t
				return nil
			}
		}
	}
	txn.Status = models.TransactionStatusSuccess
	return r.insert(txn)
}

func (r memTxns) MarkFailed(ctx context.Context, reference string) (bool, error) {
	defer r.s.lock()()
	for i, t := range r.s.st.txns {
		if t.Ref() == reference && t.Status == models.TransactionStatusPending {
			r.s.st.txns[i].Status = models.TransactionStatusFailed
			return true, nil
		}
	}
	return false, nil
}

func (r memTxns) ListByUser(ctx context.Context, userID uint, limit, offset int) ([]models.Transaction, int64, error) {
	defer r.s.lock()()
	var out []models.Transaction
	for i := len(r.s.st.txns) - 1; i >= 0; i-- {
		if r.s.st.txns[i].UserID == userID {
			out = append(out, r.s.st.txns[i])
		}
	}
	return page(out, limit, offset), int64(len(out)), nil
}

// points

type memPoints struct{ s *MemStore }

func (r memPoints) GetOrCreate(ctx context.Context, userID uint) (*models.UserPoints, error) {
	defer r.s.lock()()
	p, ok := r.s.st.points[userID]
	if !ok {
		p = models.UserPoints{ID: r.s.st.id(), UserID: userID, CreatedAt: r.s.now()}
		r.s.st.points[userID] = p
	}
	return &p, nil
}

func (r memPoints) Spend(ctx context.Context, userID uint, points int64) error {
	if err := r.s.check("points.Spend"); err != nil {
		return err
	}
	defer r.s.lock()()
	p, ok := r.s.st.points[userID]
	if !ok || p.AvailablePoints < points {
		return repositories.ErrInsufficientPoints
	}
	p.AvailablePoints -= points
	p.RedeemedPoints += points
	r.s.st.points[userID] = p
	return nil
}

func (r memPoints) Award(ctx context.Context, userID uint, points int64) error {
	if err := r.s.check("points.Award"); err != nil {
		return err
	}
	defer r.s.lock()()
	p, ok := r.s.st.points[userID]
	if !ok {
		p = models.UserPoints{ID: r.s.st.id(), UserID: userID, CreatedAt: r.s.now()}
	}
	p.TotalPoints += points
	p.AvailablePoints += points
	r.s.st.points[userID] = p
	return nil
}

func (r memPoints) AddTransaction(ctx context.Context, txn *models.PointsTransaction) error {
	if err := r.s.check("points.AddTransaction"); err != nil {
		return err
	}
	defer r.s.lock()()
	txn.ID = r.s.st.id()
	txn.CreatedAt = r.s.now()
	r.s.st.pointsTxns = append(r.s.st.pointsTxns, *txn)
	return nil
}

func (r memPoints) History(ctx context.Context, userID uint, limit, offset int) ([]models.PointsTransaction, int64, error) {
	defer r.s.lock()()
	var out []models.PointsTransaction
	for i := len(r.s.st.pointsTxns) - 1; i >= 0; i-- {
		if r.s.st.pointsTxns[i].UserID == userID {
			out = append(out, r.s.st.pointsTxns[i])
		}
	}
	return page(out, limit, offset), int64(len(out)), nil
}

func (r memPoints) Breakdown(ctx context.Context, userID uint) (map[string]int64, error) {
	defer r.s.lock()()
	out := map[string]int64{}
	for _, t := range r.s.st.pointsTxns {
		if t.UserID == userID {
			out[t.Type] += t.Amount
		}
	}
	return out, nil
}

// referrals

type memReferrals struct{ s *MemStore }

func (r memReferrals) Create(ctx context.Context, referral *models.Referral) error {
	defer r.s.lock()()
	for _, ref := range r.s.st.referrals {
		if ref.ReferralCode == referral.ReferralCode {
			return repositories.ErrDuplicateCode
		}
	}
	referral.ID = r.s.st.id()
	referral.RefereeEmail = strings.ToLower(strings.TrimSpace(referral.RefereeEmail))
	referral.CreatedAt = r.s.now()
	if referral.Status == "" {
		referral.Status = models.ReferralStatusPending
	}
	r.s.st.referrals = append(r.s.st.referrals, *referral)
	return nil
}

func (r memReferrals) find(match func(models.Referral) bool) (*models.Referral, error) {
	defer r.s.lock()()
	for i := len(r.s.st.referrals) - 1; i >= 0; i-- {
		if ref := r.s.st.referrals[i]; match(ref) {
			return &ref, nil
		}
	}
	return nil, repositories.ErrReferralNotFound
}

func (r memReferrals) GetByCode(ctx context.Context, code string) (*models.Referral, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	return r.find(func(ref models.Referral) bool { return ref.ReferralCode == code })
}

func (r memReferrals) FindOpenCode(ctx context.Context, referrerID uint) (*models.Referral, error) {
	return r.find(func(ref models.Referral) bool {
		return ref.ReferrerID == referrerID && ref.Status == models.ReferralStatusPending && ref.RefereeEmail == ""
	})
}

func (r memReferrals) FindInvite(ctx context.Context, referrerID uint, email string) (*models.Referral, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return r.find(func(ref models.Referral) bool {
		return ref.ReferrerID == referrerID && ref.RefereeEmail == email
	})
}

func (r memReferrals) Complete(ctx context.Context, code string, refereeID uint, points int64, at time.Time) (bool, error) {
	if err := r.s.check("referrals.Complete"); err != nil {
		return false, err
	}
	defer r.s.lock()()
	for i, ref := range r.s.st.referrals {
		if ref.ReferralCode == code && ref.Status == models.ReferralStatusPending {
			ref.Status = models.ReferralStatusCompleted
			ref.RefereeID = &refereeID
			ref.PointsAwarded = points
			ref.CompletedAt = &at
			r.s.st.referrals[i] = ref
			return true, nil
		}
	}
	return false, nil
}

func (r memReferrals) Expire(ctx context.Context, code string) (bool, error) {
	defer r.s.lock()()
	for i, ref := range r.s.st.referrals {
		if ref.ReferralCode == code && ref.Status == models.ReferralStatusPending {
			r.s.st.referrals[i].Status = models.ReferralStatusExpired
			return true, nil
		}
	}
	return false, nil
}

func (r memReferrals) ListByReferrer(ctx context.Context, referrerID uint, limit int) ([]models.Referral, error) {
	defer r.s.lock()()
	var out []models.Referral
	for i := len(r.s.st.referrals) - 1; i >= 0; i-- {
		if r.s.st.referrals[i].ReferrerID == referrerID {
			out = append(out, r.s.st.referrals[i])
		}
	}
	return page(out, limit, 0), nil
}

// esims

type memESims struct{ s *MemStore }

func (r memESims) Create(ctx context.Context, esim *models.ESim) error {
	if err := r.s.check("esims.Create"); err != nil {
		return err
	}
	defer r.s.lock()()
	esim.ID = r.s.st.id()
	esim.CreatedAt = r.s.now()
	r.s.st.esims[esim.ID] = *esim
	return nil
}

func (r memESims) GetByID(ctx context.Context, id uint) (*models.ESim, error) {
	defer r.s.lock()()
	e, ok := r.s.st.esims[id]
	if !ok {
		return nil, repositories.ErrESimNotFound
	}
	return &e, nil
}

func (r memESims) GetByExternalID(ctx context.Context, externalID string) (*models.ESim, error) {
	defer r.s.lock()()
	for _, e := range r.s.st.esims {
		if e.ExternalID == externalID {
			return &e, nil
		}
	}
	return nil, repositories.ErrESimNotFound
}

func (r memESims) ListByUser(ctx context.Context, userID uint) ([]models.ESim, error) {
	defer r.s.lock()()
	var out []models.ESim
	for _, e := range r.s.st.esims {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r memESims) UpdateStatus(ctx context.Context, id uint, status string) error {
	if err := r.s.check("esims.UpdateStatus"); err != nil {
		return err
	}
	defer r.s.lock()()
	e, ok := r.s.st.esims[id]
	if !ok {
		return repositories.ErrESimNotFound
	}
	e.Status = status
	r.s.st.esims[id] = e
	return nil
}

// orders

type memOrders struct{ s *MemStore }

func (r memOrders) Claim(ctx context.Context, order *models.EsimOrder) error {
	if err := r.s.check("orders.Claim"); err != nil {
		return err
	}
	defer r.s.lock()()
	for _, o := range r.s.st.orders {
		if o.Reference == order.Reference {
			return repositories.ErrDuplicateReference
		}
	}
	order.ID = r.s.st.id()
	order.Status = models.OrderStatusPending
	order.Stage = models.StageInitiated
	order.CreatedAt = r.s.now()
	order.UpdatedAt = order.CreatedAt
	r.s.st.orders = append(r.s.st.orders, *order)
	return nil
}

func (r memOrders) GetByReference(ctx context.Context, reference string) (*models.EsimOrder, error) {
	defer r.s.lock()()
	for _, o := range r.s.st.orders {
		if o.Reference == reference {
			return &o, nil
		}
	}
	return nil, repositories.ErrOrderNotFound
}

func (r memOrders) Reclaim(ctx context.Context, order *models.EsimOrder) (bool, error) {
	defer r.s.lock()()
	for i, o := range r.s.st.orders {
		if o.Reference == order.Reference && o.Status == models.OrderStatusFailed && o.UserID == order.UserID {
			o.Status = models.OrderStatusPending
			o.Stage = models.StageInitiated
			o.PlanID = order.PlanID
			o.PaymentMethod = order.PaymentMethod
			o.Amount = order.Amount
			o.Currency = order.Currency
			o.PointsUsed = order.PointsUsed
			o.ExternalID = ""
			o.FailureReason = ""
			o.UpdatedAt = r.s.now()
			r.s.st.orders[i] = o
			*order = o
			return true, nil
		}
	}
	return false, nil
}

func (r memOrders) updatePending(op, reference string, fn func(*models.EsimOrder)) (bool, error) {
	if err := r.s.check(op); err != nil {
		return false, err
	}
	defer r.s.lock()()
	for i, o := range r.s.st.orders {
		if o.Reference == reference && o.Status == models.OrderStatusPending {
			fn(&o)
			o.UpdatedAt = r.s.now()
			r.s.st.orders[i] = o
			return true, nil
		}
	}
	return false, nil
}

func (r memOrders) SetStage(ctx context.Context, reference, stage, externalID string) (bool, error) {
	return r.updatePending("orders.SetStage", reference, func(o *models.EsimOrder) {
		o.Stage = stage
		if externalID != "" {
			o.ExternalID = externalID
		}
	})
}

func (r memOrders) MarkRecorded(ctx context.Context, reference string, esimID uint, externalID string) (bool, error) {
	return r.updatePending("orders.MarkRecorded", reference, func(o *models.EsimOrder) {
		o.Status = models.OrderStatusActivated
		o.Stage = models.StageRecorded
		o.ESimID = &esimID
		o.ExternalID = externalID
	})
}

func (r memOrders) MarkActivated(ctx context.Context, reference string) error {
	defer r.s.lock()()
	for i, o := range r.s.st.orders {
		if o.Reference == reference && o.Status == models.OrderStatusActivated {
			r.s.st.orders[i].Stage = models.StageActivated
		}
	}
	return nil
}

func (r memOrders) MarkFailed(ctx context.Context, reference, stage, reason string) (bool, error) {
	return r.updatePending("orders.MarkFailed", reference, func(o *models.EsimOrder) {
		o.Status = models.OrderStatusFailed
		o.Stage = stage
		o.FailureReason = reason
	})
}

func (r memOrders) ListByUser(ctx context.Context, userID uint) ([]models.EsimOrder, error) {
	defer r.s.lock()()
	var out []models.EsimOrder
	for i := len(r.s.st.orders) - 1; i >= 0; i-- {
		if r.s.st.orders[i].UserID == userID {
			out = append(out, r.s.st.orders[i])
		}
	}
	return out, nil
}

func (r memOrders) ListStale(ctx context.Context, before time.Time, limit int) ([]models.EsimOrder, error) {
	defer r.s.lock()()
	var out []models.EsimOrder
	for _, o := range r.s.st.orders {
		if o.Status == models.OrderStatusPending && o.UpdatedAt.Before(before) {
			out = append(out, o)
		}
	}
	return page(out, limit, 0), nil
}

// compensations

type memComps struct{ s *MemStore }

func (r memComps) Create(ctx context.Context, c *models.Compensation) error {
	if err := r.s.check("compensations.Create"); err != nil {
		return err
	}
	defer r.s.lock()()
	c.ID = r.s.st.id()
	c.CreatedAt = r.s.now()
	r.s.st.comps = append(r.s.st.comps, *c)
	return nil
}

func (r memComps) ListDue(ctx context.Context, now time.Time, limit int) ([]models.Compensation, error) {
	defer r.s.lock()()
	var out []models.Compensation
	for _, c := range r.s.st.comps {
		if c.Status == models.CompensationStatusPending && !c.NextAttemptAt.After(now) {
			out = append(out, c)
		}
	}
	return page(out, limit, 0), nil
}

func (r memComps) Update(ctx context.Context, c *models.Compensation) error {
	defer r.s.lock()()
	for i := range r.s.st.comps {
		if r.s.st.comps[i].ID == c.ID {
			r.s.st.comps[i].Status = c.Status
			r.s.st.comps[i].Attempts = c.Attempts
			r.s.st.comps[i].LastError = c.LastError
			r.s.st.comps[i].NextAttemptAt = c.NextAttemptAt
		}
	}
	return nil
}

// telecom

type memTelecom struct{ s *MemStore }

func (r memTelecom) SaveMessage(ctx context.Context, msg *models.Message) (bool, error) {
	if err := r.s.check("telecom.SaveMessage"); err != nil {
		return false, err
	}
	defer r.s.lock()()
	for _, m := range r.s.st.messages {
		if m.ExternalID == msg.ExternalID {
			return false, nil
		}
	}
	msg.ID = r.s.st.id()
	msg.CreatedAt = r.s.now()
	msg.UpdatedAt = msg.CreatedAt
	r.s.st.messages = append(r.s.st.messages, *msg)
	return true, nil
}

func (r memTelecom) UpdateMessageStatus(ctx context.Context, externalID, status string) (bool, error) {
	defer r.s.lock()()
	for i, m := range r.s.st.messages {
		if m.ExternalID == externalID {
			r.s.st.messages[i].Status = status
			r.s.st.messages[i].UpdatedAt = r.s.now()
			return true, nil
		}
	}
	return false, nil
}

func (r memTelecom) ListMessages(ctx context.Context, userID uint, limit, offset int) ([]models.Message, int64, error) {
	defer r.s.lock()()
	var out []models.Message
	for i := len(r.s.st.messages) - 1; i >= 0; i-- {
		if m := r.s.st.messages[i]; m.UserID != nil && *m.UserID == userID {
			out = append(out, m)
		}
	}
	return page(out, limit, offset), int64(len(out)), nil
}

func (r memTelecom) ClaimNumber(ctx context.Context, n *models.PhoneNumber) error {
	if err := r.s.check("telecom.ClaimNumber"); err != nil {
		return err
	}
	defer r.s.lock()()
	now := r.s.now()
	for i, existing := range r.s.st.numbers {
		if existing.PhoneNumber != n.PhoneNumber {
			continue
		}
		if existing.Status != models.NumberStatusFailed {
			return repositories.ErrNumberTaken
		}
		existing.UserID = n.UserID
		existing.OrderID = ""
		existing.Status = n.Status
		existing.UpdatedAt = now
		r.s.st.numbers[i] = existing
		*n = existing
		return nil
	}
	n.ID = r.s.st.id()
	n.CreatedAt = now
	n.UpdatedAt = now
	r.s.st.numbers = append(r.s.st.numbers, *n)
	return nil
}

func (r memTelecom) GetNumber(ctx context.Context, phoneNumber string) (*models.PhoneNumber, error) {
	defer r.s.lock()()
	for _, n := range r.s.st.numbers {
		if n.PhoneNumber == phoneNumber {
			return &n, nil
		}
	}
	return nil, repositories.ErrNumberNotFound
}

func (r memTelecom) UpdateNumber(ctx context.Context, phoneNumber, orderID, status string) (bool, error) {
	if err := r.s.check("telecom.UpdateNumber"); err != nil {
		return false, err
	}
	defer r.s.lock()()
	for i, n := range r.s.st.numbers {
		if n.PhoneNumber != phoneNumber {
			continue
		}
		n.Status = status
		if orderID != "" {
			n.OrderID = orderID
		}
		n.UpdatedAt = r.s.now()
		r.s.st.numbers[i] = n
		return true, nil
	}
	return false, nil
}

func (r memTelecom) ListNumbers(ctx context.Context, userID uint) ([]models.PhoneNumber, error) {
	defer r.s.lock()()
	var out []models.PhoneNumber
	for i := len(r.s.st.numbers) - 1; i >= 0; i-- {
		if r.s.st.numbers[i].UserID == userID {
			out = append(out, r.s.st.numbers[i])
		}
	}
	return out, nil
}

func (r memTelecom) UpsertCall(ctx context.Context, call *models.Call) error {
	defer r.s.lock()()
	for i, c := range r.s.st.calls {
		if c.CallControlID != call.CallControlID {
			continue
		}
		c.Status = call.Status
		if c.StartedAt == nil {
			c.StartedAt = call.StartedAt
		}
		if c.AnsweredAt == nil {
			c.AnsweredAt = call.AnsweredAt
		}
		if call.EndedAt != nil {
			c.EndedAt = call.EndedAt
		}
		if call.HangupCause != "" {
			c.HangupCause = call.HangupCause
		}
		r.s.st.calls[i] = c
		return nil
	}
	call.ID = r.s.st.id()
	r.s.st.calls = append(r.s.st.calls, *call)
	return nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
