package rosca

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"

	"golang.org/x/crypto/blake2b"
)

// RandomnessSource supplies fresh entropy for each shuffle.
type RandomnessSource interface {
	Entropy() ([]byte, error)
}

// CryptoRandom draws entropy from the operating system.
type CryptoRandom struct{}

func (CryptoRandom) Entropy() ([]byte, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("read entropy: %w", err)
	}
	return b, nil
}

// SeededRandom is a deterministic source for tests and replays. Each call
// returns the next link of a blake2b hash chain rooted at the seed.
type SeededRandom struct {
	mu    sync.Mutex
	state [32]byte
}

// NewSeededRandom returns a source rooted at seed.
func NewSeededRandom(seed []byte) *SeededRandom {
	return &SeededRandom{state: blake2b.Sum256(seed)}
}

func (s *SeededRandom) Entropy() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = blake2b.Sum256(s.state[:])
	out := s.state
	return out[:], nil
}

// Shuffle permutes members in place with a Fisher–Yates shuffle. One entropy
// draw seeds the call; every swap derives its own index from
// blake2b(seed || step || attempt), rejecting draws that would bias the modulo.
func Shuffle(members []AccountID, src RandomnessSource) error {
	if len(members) < 2 {
		return nil
	}
	seed, err := src.Entropy()
	if err != nil {
		return err
	}
	if len(seed) == 0 {
		return fmt.Errorf("shuffle: empty entropy")
	}
	for i := len(members) - 1; i > 0; i-- {
		j := uniform(seed, uint64(i), uint64(i)+1)
		members[i], members[j] = members[j], members[i]
	}
	return nil
}

// uniform returns an unbiased value in [0, n) derived from seed and step.
func uniform(seed []byte, step, n uint64) uint64 {
	limit := math.MaxUint64 - math.MaxUint64%n
	buf := make([]byte, len(seed)+16)
	copy(buf, seed)
	for attempt := uint64(0); ; attempt++ {
		binary.BigEndian.PutUint64(buf[len(seed):], step)
		binary.BigEndian.PutUint64(buf[len(seed)+8:], attempt)
		sum := blake2b.Sum256(buf)
		v := binary.BigEndian.Uint64(sum[:8])
		if v < limit {
			return v % n
		}
	}
}

// Clock supplies the current time for a call.
type Clock interface {
	Now() Moment
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() Moment

func (f ClockFunc) Now() Moment { return f() }

// SystemClock reads the wall clock.
var SystemClock Clock = ClockFunc(func() Moment { return MomentOf(time.Now()) })

// FixedClock always reports the same moment.
func FixedClock(m Moment) Clock {
	return ClockFunc(func() Moment { return m })
}
