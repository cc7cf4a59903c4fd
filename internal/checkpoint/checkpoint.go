// Package checkpoint persists and restores each instrument's HMM state
// across restarts (spec.md §6 "Persisted state", §8 scenario S6). Store is
// backed by either a local YAML file per instrument or a shared Redis
// instance, mirroring the teacher's env/flag-gated cache adapter selection
// (data/cache/cache.go's memory-vs-Redis Cache).
package checkpoint

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/quantregime/qrse/internal/hmm"
)

// Store persists and restores one instrument's HMM parameters.
type Store interface {
	Save(ctx context.Context, instrument string, p *hmm.Params) error
	// Load returns an error (wrapping os.ErrNotExist or a Redis nil reply,
	// depending on the backend) when no checkpoint exists yet for
	// instrument; callers fall back to a weakly informative prior.
	Load(ctx context.Context, instrument string) (*hmm.Params, error)
}

func sanitize(instrument string) string {
	out := make([]rune, 0, len(instrument))
	for _, r := range instrument {
		if r == '/' || r == ' ' {
			out = append(out, '_')
			continue
		}
		out = append(out, r)
	}
	return string(out)
}

// FileStore persists each instrument's checkpoint as its own YAML file
// under Dir. This is the default backend for a single-process deployment.
type FileStore struct{ Dir string }

// NewFileStore creates a FileStore rooted at dir.
func NewFileStore(dir string) *FileStore { return &FileStore{Dir: dir} }

func (f *FileStore) path(instrument string) string {
	return fmt.Sprintf("%s/%s.yaml", f.Dir, sanitize(instrument))
}

// Save writes instrument's checkpoint to its YAML file, ignoring ctx (file
// IO here is local and not worth cancelling mid-write).
func (f *FileStore) Save(_ context.Context, instrument string, p *hmm.Params) error {
	return hmm.SaveCheckpointFile(f.path(instrument), p)
}

// Load reads instrument's checkpoint back from its YAML file.
func (f *FileStore) Load(_ context.Context, instrument string) (*hmm.Params, error) {
	return hmm.LoadCheckpointFile(f.path(instrument))
}

// redisTimeout bounds every Redis round trip, matching the teacher's
// cache.go Get/Set timeout of 500ms.
const redisTimeout = 500 * time.Millisecond

// cmdable is the narrow slice of *redis.Client's surface RedisStore needs.
// Keeping the dependency this small lets tests supply a hand-written fake
// instead of pulling in a mock of the entire client.
type cmdable interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) *redis.StatusCmd
}

// RedisStore persists checkpoints as YAML blobs under a per-instrument key,
// for deployments that run several engine processes against one shared
// warm-restart store instead of each owning its own local filesystem
// (spec.md §6, §8 scenario S6 "restore across a process restart").
type RedisStore struct {
	client cmdable
	prefix string
}

// NewRedisStore dials addr and returns a RedisStore keying checkpoints
// under prefix (defaulting to "qrse:checkpoint:").
func NewRedisStore(addr, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "qrse:checkpoint:"
	}
	return &RedisStore{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		prefix: prefix,
	}
}

func (r *RedisStore) key(instrument string) string { return r.prefix + sanitize(instrument) }

// Save marshals p's checkpoint and stores it with no expiry (a checkpoint
// is valid until the next one overwrites it).
func (r *RedisStore) Save(ctx context.Context, instrument string, p *hmm.Params) error {
	ctx, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()
	data, err := hmm.MarshalCheckpoint(p)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.key(instrument), data, 0).Err(); err != nil {
		return fmt.Errorf("checkpoint: redis set %s: %w", instrument, err)
	}
	return nil
}

// Load fetches and restores instrument's checkpoint.
func (r *RedisStore) Load(ctx context.Context, instrument string) (*hmm.Params, error) {
	ctx, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()
	data, err := r.client.Get(ctx, r.key(instrument)).Bytes()
	if err != nil {
		return nil, fmt.Errorf("checkpoint: redis get %s: %w", instrument, err)
	}
	return hmm.UnmarshalCheckpoint(data)
}

// NewAuto picks a RedisStore when redisAddr is non-empty, else a FileStore
// rooted at dir when dir is non-empty; when both are empty it returns nil
// (checkpointing disabled), matching the teacher's NewAuto(REDIS_ADDR)
// fallback-to-memory pattern in data/cache/cache.go.
func NewAuto(dir, redisAddr string) Store {
	if redisAddr != "" {
		return NewRedisStore(redisAddr, "")
	}
	if dir != "" {
		return NewFileStore(dir)
	}
	return nil
}
