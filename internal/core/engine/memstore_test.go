package engine

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/relaymint/tokend/internal/storage/ledgerdb"
)

// memStore is an in-memory ledgerdb.RepositoryManager for engine tests. It
// applies mutations under a lock and restores a snapshot of its state when
// the transaction function fails, mirroring a rollback.
type memStore struct {
	mu sync.Mutex

	events       map[string]*ledgerdb.Event
	tokens       map[string]ledgerdb.Token
	types        map[string]ledgerdb.TransactionType
	transactions map[uuid.UUID]*ledgerdb.Transaction
	balances     map[string]map[uuid.UUID]*ledgerdb.Balance
	snapshots    map[uuid.UUID]*ledgerdb.BalanceSnapshot

	// failures are consumed one per WithTransaction call before fn runs.
	failures []error
}

func newMemStore() *memStore {
	return &memStore{
		events:       make(map[string]*ledgerdb.Event),
		tokens:       make(map[string]ledgerdb.Token),
		types:        make(map[string]ledgerdb.TransactionType),
		transactions: make(map[uuid.UUID]*ledgerdb.Transaction),
		balances:     make(map[string]map[uuid.UUID]*ledgerdb.Balance),
		snapshots:    make(map[uuid.UUID]*ledgerdb.BalanceSnapshot),
	}
}

func (s *memStore) addToken(name string) ledgerdb.Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	token := ledgerdb.Token{ID: uuid.New(), Name: name}
	s.tokens[name] = token
	return token
}

func (s *memStore) addType(description string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.types[description] = ledgerdb.TransactionType{ID: uuid.New(), Description: description}
}

func (s *memStore) addBalance(account string, tokenID uuid.UUID, amount int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := &ledgerdb.BalanceSnapshot{
		ID:        uuid.New(),
		Amount:    decimal.NewFromInt(amount),
		Delta:     decimal.NewFromInt(amount),
		TokenID:   tokenID,
		AccountID: account,
	}
	s.snapshots[snap.ID] = snap
	if s.balances[account] == nil {
		s.balances[account] = make(map[uuid.UUID]*ledgerdb.Balance)
	}
	s.balances[account][tokenID] = &ledgerdb.Balance{
		ID:         uuid.New(),
		AccountID:  account,
		TokenID:    tokenID,
		SnapshotID: snap.ID,
		Amount:     snap.Amount,
	}
}

func (s *memStore) amount(account string, tokenID uuid.UUID) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.balances[account][tokenID]; ok {
		return b.Amount
	}
	return decimal.Zero
}

func (s *memStore) failNext(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, errs...)
}

func (s *memStore) Events() ledgerdb.EventRepository                     { return memEvents{s} }
func (s *memStore) Tokens() ledgerdb.TokenRepository                     { return memTokens{s} }
func (s *memStore) TransactionTypes() ledgerdb.TransactionTypeRepository { return memTypes{s} }
func (s *memStore) Transactions() ledgerdb.TransactionRepository         { return memTransactions{s} }
func (s *memStore) Balances() ledgerdb.BalanceRepository                 { return memBalances{s} }

func (s *memStore) Open(ctx context.Context) error  { return nil }
func (s *memStore) Close(ctx context.Context) error { return nil }
func (s *memStore) Ping(ctx context.Context) error  { return nil }

func (s *memStore) WithTransaction(ctx context.Context, fn func(ledgerdb.TransactionContext) error) error {
	s.mu.Lock()
	if len(s.failures) > 0 {
		err := s.failures[0]
		s.failures = s.failures[1:]
		s.mu.Unlock()
		return err
	}
	saved := s.snapshot()
	s.mu.Unlock()

	if err := fn(memTx{s}); err != nil {
		s.mu.Lock()
		s.restore(saved)
		s.mu.Unlock()
		return err
	}
	return nil
}

type memState struct {
	events       map[string]*ledgerdb.Event
	transactions map[uuid.UUID]*ledgerdb.Transaction
	balances     map[string]map[uuid.UUID]*ledgerdb.Balance
	snapshots    map[uuid.UUID]*ledgerdb.BalanceSnapshot
}

func (s *memStore) snapshot() memState {
	st := memState{
		events:       make(map[string]*ledgerdb.Event, len(s.events)),
		transactions: make(map[uuid.UUID]*ledgerdb.Transaction, len(s.transactions)),
		balances:     make(map[string]map[uuid.UUID]*ledgerdb.Balance, len(s.balances)),
		snapshots:    make(map[uuid.UUID]*ledgerdb.BalanceSnapshot, len(s.snapshots)),
	}
	for k, v := range s.events {
		cp := *v
		st.events[k] = &cp
	}
	for k, v := range s.transactions {
		cp := *v
		st.transactions[k] = &cp
	}
	for account, byToken := range s.balances {
		st.balances[account] = make(map[uuid.UUID]*ledgerdb.Balance, len(byToken))
		for tokenID, b := range byToken {
			cp := *b
			st.balances[account][tokenID] = &cp
		}
	}
	for k, v := range s.snapshots {
		cp := *v
		st.snapshots[k] = &cp
	}
	return st
}

func (s *memStore) restore(st memState) {
	s.events = st.events
	s.transactions = st.transactions
	s.balances = st.balances
	s.snapshots = st.snapshots
}

type memTx struct{ s *memStore }

func (t memTx) Commit(ctx context.Context) error   { return nil }
func (t memTx) Rollback(ctx context.Context) error { return nil }

func (t memTx) Events() ledgerdb.EventRepository                     { return memEvents{t.s} }
func (t memTx) Tokens() ledgerdb.TokenRepository                     { return memTokens{t.s} }
func (t memTx) TransactionTypes() ledgerdb.TransactionTypeRepository { return memTypes{t.s} }
func (t memTx) Transactions() ledgerdb.TransactionRepository         { return memTransactions{t.s} }
func (t memTx) Balances() ledgerdb.BalanceRepository                 { return memBalances{t.s} }

type memEvents struct{ s *memStore }

func (r memEvents) Exists(ctx context.Context, nostrID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	_, ok := r.s.events[nostrID]
	return ok, nil
}

func (r memEvents) Insert(ctx context.Context, event *ledgerdb.Event) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.events[event.NostrID]; ok {
		return ledgerdb.NewConstraintError("insert_event", "duplicate nostr id", nil).WithCode("UNIQUE_VIOLATION")
	}
	cp := *event
	r.s.events[event.NostrID] = &cp
	return nil
}

func (r memEvents) GetByNostrID(ctx context.Context, nostrID string) (*ledgerdb.Event, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if e, ok := r.s.events[nostrID]; ok {
		cp := *e
		return &cp, nil
	}
	return nil, ledgerdb.NewDataError("get_event", "not found", nil).WithCode("NOT_FOUND")
}

type memTokens struct{ s *memStore }

func (r memTokens) GetByNames(ctx context.Context, names []string) (map[string]ledgerdb.Token, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make(map[string]ledgerdb.Token)
	for _, name := range names {
		if token, ok := r.s.tokens[name]; ok {
			out[name] = token
		}
	}
	return out, nil
}

func (r memTokens) Insert(ctx context.Context, token *ledgerdb.Token) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.tokens[token.Name] = *token
	return nil
}

func (r memTokens) List(ctx context.Context) ([]ledgerdb.Token, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]ledgerdb.Token, 0, len(r.s.tokens))
	for _, token := range r.s.tokens {
		out = append(out, token)
	}
	return out, nil
}

type memTypes struct{ s *memStore }

func (r memTypes) GetByDescription(ctx context.Context, description string) (*ledgerdb.TransactionType, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if tt, ok := r.s.types[description]; ok {
		cp := tt
		return &cp, nil
	}
	return nil, ledgerdb.NewDataError("get_transaction_type", "not found", nil).WithCode("NOT_FOUND")
}

func (r memTypes) Seed(ctx context.Context, descriptions []string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, d := range descriptions {
		if _, ok := r.s.types[d]; !ok {
			r.s.types[d] = ledgerdb.TransactionType{ID: uuid.New(), Description: d}
		}
	}
	return nil
}

type memTransactions struct{ s *memStore }

func (r memTransactions) Insert(ctx context.Context, tx *ledgerdb.Transaction) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.transactions[tx.EventID]; ok {
		return ledgerdb.NewConstraintError("insert_transaction", "duplicate event id", nil).WithCode("UNIQUE_VIOLATION")
	}
	cp := *tx
	r.s.transactions[tx.EventID] = &cp
	return nil
}

func (r memTransactions) GetByEventID(ctx context.Context, eventID uuid.UUID) (*ledgerdb.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if tx, ok := r.s.transactions[eventID]; ok {
		cp := *tx
		return &cp, nil
	}
	return nil, ledgerdb.NewDataError("get_transaction", "not found", nil).WithCode("NOT_FOUND")
}

type memBalances struct{ s *memStore }

func (r memBalances) List(ctx context.Context, account string, tokenIDs []uuid.UUID) ([]ledgerdb.Balance, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []ledgerdb.Balance
	for tokenID, b := range r.s.balances[account] {
		if len(tokenIDs) == 0 || containsUUID(tokenIDs, tokenID) {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (r memBalances) ListSufficient(ctx context.Context, account string, required map[uuid.UUID]decimal.Decimal) ([]ledgerdb.Balance, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []ledgerdb.Balance
	for tokenID, amount := range required {
		if b, ok := r.s.balances[account][tokenID]; ok && b.Amount.GreaterThanOrEqual(amount) {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (r memBalances) ApplyDelta(ctx context.Context, balance *ledgerdb.Balance, delta decimal.Decimal, txID, eventID uuid.UUID) (*ledgerdb.BalanceSnapshot, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.balances[balance.AccountID][balance.TokenID]
	if !ok {
		return nil, ledgerdb.NewDataError("apply_delta", "not found", nil).WithCode("NOT_FOUND")
	}

	prev := stored.SnapshotID
	snap := &ledgerdb.BalanceSnapshot{
		ID:             uuid.New(),
		PrevSnapshotID: &prev,
		Amount:         stored.Amount.Add(delta),
		Delta:          delta,
		TransactionID:  txID,
		EventID:        eventID,
		TokenID:        stored.TokenID,
		AccountID:      stored.AccountID,
	}
	r.s.snapshots[snap.ID] = snap

	stored.SnapshotID = snap.ID
	stored.EventID = eventID
	stored.Amount = snap.Amount

	balance.SnapshotID = snap.ID
	balance.EventID = eventID
	balance.Amount = snap.Amount

	return snap, nil
}

func (r memBalances) CreateWithSnapshot(ctx context.Context, account string, tokenID uuid.UUID, amount decimal.Decimal, txID, eventID uuid.UUID) (*ledgerdb.Balance, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.balances[account][tokenID]; ok {
		return nil, ledgerdb.NewConstraintError("create_balance", "balance exists", nil).WithCode("UNIQUE_VIOLATION")
	}

	snap := &ledgerdb.BalanceSnapshot{
		ID:            uuid.New(),
		Amount:        amount,
		Delta:         amount,
		TransactionID: txID,
		EventID:       eventID,
		TokenID:       tokenID,
		AccountID:     account,
	}
	r.s.snapshots[snap.ID] = snap

	if r.s.balances[account] == nil {
		r.s.balances[account] = make(map[uuid.UUID]*ledgerdb.Balance)
	}
	b := &ledgerdb.Balance{
		ID:         uuid.New(),
		AccountID:  account,
		TokenID:    tokenID,
		SnapshotID: snap.ID,
		EventID:    eventID,
		Amount:     amount,
	}
	r.s.balances[account][tokenID] = b

	cp := *b
	return &cp, nil
}

func containsUUID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
