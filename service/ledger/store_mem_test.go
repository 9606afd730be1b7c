package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// memStore is an in-memory Store for pipeline tests. failApplies makes the
// next N ApplyTransaction calls fail so commit retry behavior can be
// exercised.
type memStore struct {
	mu          sync.Mutex
	accounts    map[string]*Account
	records     map[string]*TransactionRecord
	failApplies int
	applyCalls  int
}

func newMemStore() *memStore {
	return &memStore{
		accounts: make(map[string]*Account),
		records:  make(map[string]*TransactionRecord),
	}
}

func (m *memStore) setAccount(address string, balance, nonce uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[address] = &Account{Address: address, Balance: balance, Nonce: nonce}
}

func (m *memStore) failNextApplies(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failApplies = n
}

func (m *memStore) GetAccount(ctx context.Context, address string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	acct, ok := m.accounts[address]
	if !ok {
		return nil, fmt.Errorf("account %s: %w", address, ErrNotFound)
	}
	cp := *acct
	return &cp, nil
}

func (m *memStore) ApplyTransaction(ctx context.Context, rec *TransactionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.applyCalls++
	if m.failApplies > 0 {
		m.failApplies--
		return errors.New("simulated storage outage")
	}
	if _, ok := m.records[rec.ID]; ok {
		return nil
	}
	cp := *rec
	m.records[rec.ID] = &cp

	sender, ok := m.accounts[rec.SenderAddress]
	if !ok {
		sender = &Account{Address: rec.SenderAddress}
		m.accounts[rec.SenderAddress] = sender
	}
	sender.Nonce = rec.Nonce
	if sender.Balance >= rec.Amount {
		sender.Balance -= rec.Amount
	} else {
		sender.Balance = 0
	}

	receiver, ok := m.accounts[rec.ReceiverAddress]
	if !ok {
		receiver = &Account{Address: rec.ReceiverAddress}
		m.accounts[rec.ReceiverAddress] = receiver
	}
	receiver.Balance += rec.Amount
	return nil
}

func (m *memStore) GetTransaction(ctx context.Context, id string) (*TransactionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, fmt.Errorf("transaction %s: %w", id, ErrNotFound)
	}
	cp := *rec
	return &cp, nil
}

func (m *memStore) TransactionExists(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.records[id]
	return ok, nil
}

// capturePublisher records commit events for assertions.
type capturePublisher struct {
	mu     sync.Mutex
	events []*TransactionRecord
	err    error
}

func (p *capturePublisher) PublishCommit(ctx context.Context, rec *TransactionRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, rec)
	return nil
}

func (p *capturePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}
