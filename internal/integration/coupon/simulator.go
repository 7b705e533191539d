package coupon

import (
	"context"
	"fmt"
	"sync"

	marketingDomain "github.com/felixgeelhaar/fundsaga/internal/marketing/domain"
	"github.com/google/uuid"
)

// Operation names used by Fail and Calls.
const (
	OpTrial  = "trial"
	OpUse    = "use"
	OpReturn = "return"
)

// Simulator is an in-process marketing system. Coupons are registered with
// AddCoupon; each can be consumed once until it is returned.
type Simulator struct {
	mu       sync.Mutex
	coupons  map[string]marketingDomain.CouponInfo
	used     map[string]string // coupon id -> usage id
	returned map[string]bool   // usage id
	failures map[string]error
	calls    map[string]int
}

// NewSimulator creates a simulator with no coupons.
func NewSimulator() *Simulator {
	return &Simulator{
		coupons:  make(map[string]marketingDomain.CouponInfo),
		used:     make(map[string]string),
		returned: make(map[string]bool),
		failures: make(map[string]error),
		calls:    make(map[string]int),
	}
}

// AddCoupon registers a coupon.
func (s *Simulator) AddCoupon(info marketingDomain.CouponInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.coupons[info.CouponID] = info
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

// InUse reports whether the coupon is currently consumed.
func (s *Simulator) InUse(couponID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.used[couponID]
	return ok
}

func (s *Simulator) enter(op string) error {
	s.calls[op]++
	return s.failures[op]
}

func (s *Simulator) TrialCalculate(ctx context.Context, req TrialRequest) (marketingDomain.CouponInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpTrial); err != nil {
		return marketingDomain.CouponInfo{}, err
	}
	info, ok := s.coupons[req.CouponID]
	if !ok {
		return marketingDomain.CouponInfo{}, fmt.Errorf("%w: coupon %s not found", ErrRejected, req.CouponID)
	}
	if _, inUse := s.used[req.CouponID]; inUse {
		return marketingDomain.CouponInfo{}, fmt.Errorf("%w: coupon %s already used", ErrRejected, req.CouponID)
	}
	return info, nil
}

func (s *Simulator) UseCoupon(ctx context.Context, req UseRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpUse); err != nil {
		return "", err
	}
	if _, ok := s.coupons[req.CouponID]; !ok {
		return "", fmt.Errorf("%w: coupon %s not found", ErrRejected, req.CouponID)
	}
	if _, inUse := s.used[req.CouponID]; inUse {
		return "", fmt.Errorf("%w: coupon %s already used", ErrRejected, req.CouponID)
	}
	usageID := "U" + uuid.NewString()
	s.used[req.CouponID] = usageID
	return usageID, nil
}

// ReturnCoupon releases the coupon. Returning an already returned usage succeeds.
func (s *Simulator) ReturnCoupon(ctx context.Context, req ReturnRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpReturn); err != nil {
		return err
	}
	if s.returned[req.UsageID] {
		return nil
	}
	if current, ok := s.used[req.CouponID]; !ok || current != req.UsageID {
		return fmt.Errorf("%w: usage %s not found for coupon %s", ErrRejected, req.UsageID, req.CouponID)
	}
	delete(s.used, req.CouponID)
	s.returned[req.UsageID] = true
	return nil
}
