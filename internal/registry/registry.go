// Package registry tracks worker availability for challenge assignment.
//
// The registry is a liveness cache, not a source of truth: all data is
// in-memory only and resets on restart.
package registry

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/attestnet/attestnet/pkg/crypto"
)

// Registry errors.
var (
	ErrUnknownWorker = errors.New("unknown worker")
	ErrBadSignature  = errors.New("invalid heartbeat signature")
	ErrStaleProof    = errors.New("heartbeat timestamp out of window")
)

// maxHeartbeatSkew bounds how far a signed heartbeat timestamp may drift
// from local time before it is rejected as a replay.
const maxHeartbeatSkew = 2 * time.Minute

// WorkerStatus is the caller-facing view of one worker's liveness.
type WorkerStatus struct {
	WorkerID string    `json:"worker_id"`
	LastSeen time.Time `json:"last_seen"`
	Load     int       `json:"load"`
	HasKey   bool      `json:"has_key"`
}

// workerState holds liveness data for a single worker.
type workerState struct {
	workerID string
	lastSeen time.Time
	load     int
	pubKey   []byte // 33-byte compressed key; nil for unauthenticated workers
}

// Registry tracks {lastSeen, load} per worker. A worker is eligible for new
// assignment while its heartbeat is fresh and its load is under the cap.
type Registry struct {
	mu             sync.RWMutex
	workers        map[string]*workerState
	staleThreshold time.Duration
	maxConcurrent  int
}

// New creates a registry. Workers whose last heartbeat is older than
// staleThreshold, or whose load has reached maxConcurrent, are ineligible.
func New(staleThreshold time.Duration, maxConcurrent int) *Registry {
	return &Registry{
		workers:        make(map[string]*workerState),
		staleThreshold: staleThreshold,
		maxConcurrent:  maxConcurrent,
	}
}

// Register announces a worker's availability and refreshes its liveness.
func (r *Registry) Register(workerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.getOrCreate(workerID)
	s.lastSeen = time.Now()
}

// RegisterWithKey registers a worker bound to a secp256k1 public key.
// Subsequent heartbeats for this worker must be Schnorr-signed.
func (r *Registry) RegisterWithKey(workerID string, pubKey []byte) error {
	if len(pubKey) != 33 {
		return fmt.Errorf("public key must be 33 bytes, got %d", len(pubKey))
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.getOrCreate(workerID)
	s.pubKey = append([]byte(nil), pubKey...)
	s.lastSeen = time.Now()
	return nil
}

// Heartbeat refreshes a worker's liveness. Unknown workers are created,
// matching Register. Workers registered with a key must use
// SignedHeartbeat instead.
func (r *Registry) Heartbeat(workerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.getOrCreate(workerID)
	if s.pubKey != nil {
		return fmt.Errorf("worker %s requires a signed heartbeat", workerID)
	}
	s.lastSeen = time.Now()
	return nil
}

// HeartbeatSigningBytes returns the bytes signed for a heartbeat:
// workerID || timestamp_le8 (unix ms). The signature covers the BLAKE3
// hash of these bytes.
func HeartbeatSigningBytes(workerID string, timestamp int64) []byte {
	buf := make([]byte, len(workerID)+8)
	copy(buf, workerID)
	binary.LittleEndian.PutUint64(buf[len(workerID):], uint64(timestamp))
	return buf
}

// SignedHeartbeat refreshes liveness for a key-bearing worker after
// verifying the Schnorr signature over its heartbeat digest. The timestamp
// must be within the replay window of local time.
func (r *Registry) SignedHeartbeat(workerID string, timestamp int64, signature []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.workers[workerID]
	if !ok || s.pubKey == nil {
		return fmt.Errorf("%w: %s has no registered key", ErrUnknownWorker, workerID)
	}

	skew := time.Since(time.UnixMilli(timestamp))
	if skew < -maxHeartbeatSkew || skew > maxHeartbeatSkew {
		return ErrStaleProof
	}

	hash := crypto.Hash(HeartbeatSigningBytes(workerID, timestamp))
	if !crypto.VerifySignature(hash[:], signature, s.pubKey) {
		return ErrBadSignature
	}

	s.lastSeen = time.Now()
	return nil
}

// IsEligible reports whether the worker can take a new assignment.
func (r *Registry) IsEligible(workerID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.workers[workerID]
	return ok && r.eligibleLocked(s)
}

// EligibleWorkers returns the IDs of all workers currently eligible for
// assignment.
func (r *Registry) EligibleWorkers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.workers))
	for id, s := range r.workers {
		if r.eligibleLocked(s) {
			out = append(out, id)
		}
	}
	return out
}

// IncrementLoad bumps a worker's in-flight assignment count.
func (r *Registry) IncrementLoad(workerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.workers[workerID]; ok {
		s.load++
	}
}

// DecrementLoad releases one in-flight assignment.
func (r *Registry) DecrementLoad(workerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.workers[workerID]; ok && s.load > 0 {
		s.load--
	}
}

// GetStatus returns a copy of the worker's liveness state, or nil if the
// worker has never registered.
func (r *Registry) GetStatus(workerID string) *WorkerStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.workers[workerID]
	if !ok {
		return nil
	}
	return &WorkerStatus{
		WorkerID: s.workerID,
		LastSeen: s.lastSeen,
		Load:     s.load,
		HasKey:   s.pubKey != nil,
	}
}

// Count returns the number of registered workers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.workers)
}

// eligibleLocked applies the freshness and load rules. Caller holds a lock.
func (r *Registry) eligibleLocked(s *workerState) bool {
	if s.lastSeen.IsZero() || time.Since(s.lastSeen) >= r.staleThreshold {
		return false
	}
	return s.load < r.maxConcurrent
}

func (r *Registry) getOrCreate(workerID string) *workerState {
	s, ok := r.workers[workerID]
	if !ok {
		s = &workerState{workerID: workerID}
		r.workers[workerID] = s
	}
	return s
}
