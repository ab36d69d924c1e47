package rounds

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"github.com/R3E-Network/raffle_engine/internal/app/domain/round"
)

// EntropySource resolves the opaque unpredictable value consumed by a draw.
// The contract: the value for a height must not be determinable before the
// clock reaches that height, and must be fixed once it is.
type EntropySource interface {
	EntropyAt(ctx context.Context, height uint64) ([]byte, error)
}

// HashChainSource derives entropy as H(seed || height). Its unpredictability
// is only as strong as the secrecy of the seed; it exists for development and
// deterministic tests, not production draws.
type HashChainSource struct {
	seed  []byte
	clock BlockClock
}

// NewHashChainSource constructs a seed-keyed source gated by the clock.
func NewHashChainSource(seed string, clock BlockClock) *HashChainSource {
	return &HashChainSource{seed: []byte(seed), clock: clock}
}

// EntropyAt returns the chained hash for the height once the clock reaches it.
func (s *HashChainSource) EntropyAt(_ context.Context, height uint64) ([]byte, error) {
	if s.clock != nil && s.clock.Height() < height {
		return nil, round.ErrRandomnessUnavailable
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], height)
	sum := sha256.Sum256(append(append([]byte{}, s.seed...), buf[:]...))
	return sum[:], nil
}

// BeaconSource fetches entropy from an external randomness beacon that
// publishes one value per height. A value for a future height does not exist
// yet, which gives the commit/reveal timing property the draw depends on.
type BeaconSource struct {
	baseURL string
	client  *http.Client
}

// NewBeaconSource constructs a beacon client.
func NewBeaconSource(baseURL string, timeout time.Duration) *BeaconSource {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &BeaconSource{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// EntropyAt fetches the beacon value published for the height.
func (s *BeaconSource) EntropyAt(ctx context.Context, height uint64) ([]byte, error) {
	url := fmt.Sprintf("%s/public/%d", s.baseURL, height)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build beacon request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", round.ErrRandomnessUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		// Beacon has not produced this height yet.
		return nil, round.ErrRandomnessUnavailable
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("beacon returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return nil, fmt.Errorf("read beacon response: %w", err)
	}

	randomness := gjson.GetBytes(body, "randomness")
	if !randomness.Exists() {
		return nil, fmt.Errorf("beacon response missing randomness field")
	}
	value, err := hex.DecodeString(randomness.String())
	if err != nil {
		return nil, fmt.Errorf("decode beacon randomness: %w", err)
	}
	if len(value) == 0 {
		return nil, fmt.Errorf("beacon returned empty randomness")
	}
	return value, nil
}
