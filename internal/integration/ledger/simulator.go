package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Simulator is an in-process core-banking system for local runs and tests.
// Failures can be injected per operation.
type Simulator struct {
	mu       sync.Mutex
	failures map[string]error
	calls    map[string]int
	booked   map[string]Request
	frozen   map[string]Request
	undone   map[string]bool
}

// Operation names used by Fail and Calls.
const (
	OpAccounting = "accounting"
	OpFreeze     = "freeze"
	OpUnfreeze   = "unfreeze"
	OpExchange   = "exchange"
	OpReversal   = "reversal"
)

// NewSimulator creates an empty simulator.
func NewSimulator() *Simulator {
	return &Simulator{
		failures: make(map[string]error),
		calls:    make(map[string]int),
		booked:   make(map[string]Request),
		frozen:   make(map[string]Request),
		undone:   make(map[string]bool),
	}
}

// Fail makes every later call to op return err. A nil err clears it.
func (s *Simulator) Fail(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

// Calls returns how often op was invoked, failed calls included.
func (s *Simulator) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// Booked reports whether a debit with the given id is outstanding.
func (s *Simulator) Booked(txnID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.booked[txnID]
	return ok
}

// Frozen reports whether a freeze with the given id is outstanding.
func (s *Simulator) Frozen(freezeID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.frozen[freezeID]
	return ok
}

func (s *Simulator) enter(op string) error {
	s.calls[op]++
	return s.failures[op]
}

func (s *Simulator) Accounting(ctx context.Context, req Request) (Result, error) {
	return s.book(OpAccounting, "CB", req, s.booked)
}

func (s *Simulator) ExchangeAndAccount(ctx context.Context, req Request) (Result, error) {
	return s.book(OpExchange, "FX", req, s.booked)
}

func (s *Simulator) Freeze(ctx context.Context, req Request) (Result, error) {
	return s.book(OpFreeze, "FZ", req, s.frozen)
}

func (s *Simulator) book(op, prefix string, req Request, into map[string]Request) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(op); err != nil {
		return Result{}, err
	}
	id := prefix + uuid.NewString()
	into[id] = req
	return Result{TransactionID: id}, nil
}

func (s *Simulator) Unfreeze(ctx context.Context, req UnfreezeRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpUnfreeze); err != nil {
		return err
	}
	return s.release(s.frozen, req.FreezeID)
}

func (s *Simulator) Reversal(ctx context.Context, req ReversalRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpReversal); err != nil {
		return err
	}
	return s.release(s.booked, req.TransactionID)
}

// release undoes a booking or freeze. Undoing the same id twice succeeds so
// a compensation retried after a crash converges.
func (s *Simulator) release(from map[string]Request, id string) error {
	if s.undone[id] {
		return nil
	}
	if _, ok := from[id]; !ok {
		return fmt.Errorf("%w: unknown reference %s", ErrRejected, id)
	}
	delete(from, id)
	s.undone[id] = true
	return nil
}
