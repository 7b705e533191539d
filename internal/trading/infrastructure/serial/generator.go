// Package serial generates cluster-unique subscription serial numbers.
//
// A serial is "SUB" followed by the UTC time to the millisecond
// (yyyyMMddHHmmssSSS), a three digit node id and a six digit sequence that is
// monotonic per node within one millisecond.
package serial

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// Prefix marks subscription serial numbers.
	Prefix = "SUB"

	// MaxNodeID is the largest node id that fits the three digit field.
	MaxNodeID = 999

	maxSequence = 999999
	timeLayout  = "20060102150405.000"

	// DefaultNodeKey is the Redis counter used to lease node ids.
	DefaultNodeKey = "fundsaga:serial:node"
)

// ErrInvalidNodeID is returned for node ids outside 0..MaxNodeID.
var ErrInvalidNodeID = errors.New("serial node id out of range")

// Generator hands out serial numbers for one node.
type Generator struct {
	mu     sync.Mutex
	nodeID int
	lastMS int64
	seq    int
	now    func() time.Time
}

// NewGenerator creates a generator for nodeID.
func NewGenerator(nodeID int) (*Generator, error) {
	if nodeID < 0 || nodeID > MaxNodeID {
		return nil, fmt.Errorf("%w: %d", ErrInvalidNodeID, nodeID)
	}
	return &Generator{nodeID: nodeID, now: time.Now}, nil
}

// NodeID returns the node id embedded in every serial.
func (g *Generator) NodeID() int { return g.nodeID }

// Next returns the next serial number. When a millisecond's sequence space is
// used up it waits for the clock to move on. A clock that steps backwards
// keeps the last seen millisecond so serials never repeat.
func (g *Generator) Next(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for {
		ms := g.now().UnixMilli()
		if ms < g.lastMS {
			ms = g.lastMS
		}
		if ms != g.lastMS {
			g.lastMS = ms
			g.seq = 0
		}
		if g.seq < maxSequence {
			g.seq++
			stamp := time.UnixMilli(ms).UTC().Format(timeLayout)
			return fmt.Sprintf("%s%s%s%03d%06d", Prefix, stamp[:14], stamp[15:], g.nodeID, g.seq), nil
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
}

// LeaseNodeID takes the next node id from a shared Redis counter so that
// concurrently started instances embed distinct ids.
func LeaseNodeID(ctx context.Context, client *redis.Client, key string) (int, error) {
	if key == "" {
		key = DefaultNodeKey
	}
	n, err := client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("lease serial node id: %w", err)
	}
	return int((n - 1) % (MaxNodeID + 1)), nil
}
