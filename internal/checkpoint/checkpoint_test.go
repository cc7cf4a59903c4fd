package checkpoint

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantregime/qrse/internal/hmm"
)

func TestFileStore_SaveThenLoad_RoundTripsParams(t *testing.T) {
	store := NewFileStore(t.TempDir())
	prior := hmm.NewWeaklyInformativePrior(3, 1.0, 2.5, 30)

	require.NoError(t, store.Save(context.Background(), "BTC/USD", prior))

	restored, err := store.Load(context.Background(), "BTC/USD")
	require.NoError(t, err)
	assert.Equal(t, prior.K, restored.K)
	assert.Equal(t, prior.Pi, restored.Pi)
}

func TestFileStore_Load_MissingInstrumentErrors(t *testing.T) {
	store := NewFileStore(t.TempDir())
	_, err := store.Load(context.Background(), "ETH/USD")
	assert.Error(t, err)
}

func TestFileStore_Path_SanitizesInstrumentName(t *testing.T) {
	store := NewFileStore("/data/checkpoints")
	assert.Equal(t, filepath.ToSlash("/data/checkpoints/BTC_USD.yaml"), filepath.ToSlash(store.path("BTC/USD")))
}

// fakeCmdable is a minimal in-memory stand-in for the cmdable slice of
// *redis.Client that RedisStore depends on.
type fakeCmdable struct {
	data map[string][]byte
}

func newFakeCmdable() *fakeCmdable { return &fakeCmdable{data: make(map[string][]byte)} }

func (f *fakeCmdable) Get(ctx context.Context, key string) *redis.StringCmd {
	cmd := redis.NewStringCmd(ctx, "get", key)
	v, ok := f.data[key]
	if !ok {
		cmd.SetErr(redis.Nil)
		return cmd
	}
	cmd.SetVal(string(v))
	return cmd
}

func (f *fakeCmdable) Set(ctx context.Context, key string, value interface{}, _ time.Duration) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx, "set", key, value)
	switch v := value.(type) {
	case []byte:
		f.data[key] = v
	case string:
		f.data[key] = []byte(v)
	default:
		cmd.SetErr(errors.New("fakeCmdable: unsupported value type"))
		return cmd
	}
	cmd.SetVal("OK")
	return cmd
}

func TestRedisStore_SaveThenLoad_RoundTripsParams(t *testing.T) {
	store := &RedisStore{client: newFakeCmdable(), prefix: "qrse:checkpoint:"}
	prior := hmm.NewWeaklyInformativePrior(4, 1.0, 2.5, 30)

	require.NoError(t, store.Save(context.Background(), "BTC/USD", prior))

	restored, err := store.Load(context.Background(), "BTC/USD")
	require.NoError(t, err)
	assert.Equal(t, prior.K, restored.K)
}

func TestRedisStore_Load_MissingKeyReturnsError(t *testing.T) {
	store := &RedisStore{client: newFakeCmdable(), prefix: "qrse:checkpoint:"}
	_, err := store.Load(context.Background(), "ETH/USD")
	assert.Error(t, err)
}

func TestRedisStore_Key_UsesPrefixAndSanitizes(t *testing.T) {
	store := &RedisStore{prefix: "qrse:checkpoint:"}
	assert.Equal(t, "qrse:checkpoint:BTC_USD", store.key("BTC/USD"))
}

func TestNewAuto_PrefersRedisOverFile(t *testing.T) {
	store := NewAuto(t.TempDir(), "localhost:6379")
	_, ok := store.(*RedisStore)
	assert.True(t, ok)
}

func TestNewAuto_FallsBackToFileStore(t *testing.T) {
	store := NewAuto(t.TempDir(), "")
	_, ok := store.(*FileStore)
	assert.True(t, ok)
}

func TestNewAuto_ReturnsNilWhenUnconfigured(t *testing.T) {
	assert.Nil(t, NewAuto("", ""))
}
