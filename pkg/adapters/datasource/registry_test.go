package datasource

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dbscope-io/dbscope-engine/pkg/apperrors"
	"github.com/dbscope-io/dbscope-engine/pkg/models"
)

type fakeExecutor struct {
	name   string
	mu     sync.Mutex
	closed int
}

func (f *fakeExecutor) DialectName() string                { return "fake" }
func (f *fakeExecutor) IdentifierQuote() string            { return `"` }
func (f *fakeExecutor) TestConnection(context.Context) error { return nil }
func (f *fakeExecutor) ExtractMetadata(context.Context) (*models.DatabaseMetadata, error) {
	return &models.DatabaseMetadata{}, nil
}
func (f *fakeExecutor) ExecuteQuery(context.Context, string) (*QueryResult, error) {
	return &QueryResult{}, nil
}
func (f *fakeExecutor) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
}

func (f *fakeExecutor) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func fakeFactory(created *atomic.Int32) Factory {
	return func(desc Descriptor, _ *zap.Logger) (Executor, error) {
		if created != nil {
			created.Add(1)
		}
		return &fakeExecutor{name: desc.Name}, nil
	}
}

func TestRegistryGetOrCreateReturnsSameInstance(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	reg.Register("pg", fakeFactory(nil))

	first, err := reg.GetOrCreate("pg", Descriptor{Name: "sales"})
	require.NoError(t, err)
	second, err := reg.GetOrCreate("pg", Descriptor{Name: "sales"})
	require.NoError(t, err)

	assert.Same(t, first, second)

	other, err := reg.GetOrCreate("pg", Descriptor{Name: "analytics"})
	require.NoError(t, err)
	assert.NotSame(t, first, other)
}

func TestRegistryConcurrentFirstCall(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	var created atomic.Int32
	reg.Register("pg", fakeFactory(&created))

	const goroutines = 16
	results := make([]Executor, goroutines)
	errs := make([]error, goroutines)
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			results[i], errs[i] = reg.GetOrCreate("pg", Descriptor{Name: "sales"})
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), created.Load(), "factory must run exactly once per key")
	for i := 0; i < goroutines; i++ {
		require.NoError(t, errs[i])
		assert.Same(t, results[0], results[i])
	}
}

func TestRegistryUnknownType(t *testing.T) {
	reg := NewRegistry(zap.NewNop())

	_, err := reg.GetOrCreate("oracle", Descriptor{Name: "legacy"})
	assert.ErrorIs(t, err, apperrors.ErrUnsupportedDatabaseType)

	_, err = reg.NewExecutor("oracle", Descriptor{Name: "legacy"})
	assert.ErrorIs(t, err, apperrors.ErrUnsupportedDatabaseType)
}

func TestRegistryCloseEvicts(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	reg.Register("pg", fakeFactory(nil))

	first, err := reg.GetOrCreate("pg", Descriptor{Name: "sales"})
	require.NoError(t, err)

	reg.Close("pg", "sales")
	assert.Equal(t, 1, first.(*fakeExecutor).closeCount())

	// Closing an unknown key is a no-op.
	reg.Close("pg", "sales")
	assert.Equal(t, 1, first.(*fakeExecutor).closeCount())

	second, err := reg.GetOrCreate("pg", Descriptor{Name: "sales"})
	require.NoError(t, err)
	assert.NotSame(t, first, second)
}

func TestRegistryCloseAll(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	reg.Register("pg", fakeFactory(nil))
	reg.Register("mysql", fakeFactory(nil))

	pg, err := reg.GetOrCreate("pg", Descriptor{Name: "sales"})
	require.NoError(t, err)
	my, err := reg.GetOrCreate("mysql", Descriptor{Name: "inventory"})
	require.NoError(t, err)

	assert.Equal(t, 2, reg.Stats().ActiveExecutors)

	reg.CloseAll()
	assert.Equal(t, 1, pg.(*fakeExecutor).closeCount())
	assert.Equal(t, 1, my.(*fakeExecutor).closeCount())
	assert.Equal(t, 0, reg.Stats().ActiveExecutors)

	// Idempotent.
	reg.CloseAll()
	assert.Equal(t, 1, pg.(*fakeExecutor).closeCount())
}

func TestRegistryNewExecutorIsUnmanaged(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	reg.Register("pg", fakeFactory(nil))

	_, err := reg.NewExecutor("pg", Descriptor{Name: "sales"})
	require.NoError(t, err)

	assert.Equal(t, 0, reg.Stats().ActiveExecutors, "pre-test executors must not be cached")
}

func TestRegistryStatsKeys(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	reg.Register("pg", fakeFactory(nil))
	reg.Register("mysql", fakeFactory(nil))

	_, err := reg.GetOrCreate("pg", Descriptor{Name: "zeta"})
	require.NoError(t, err)
	_, err = reg.GetOrCreate("mysql", Descriptor{Name: "alpha"})
	require.NoError(t, err)

	stats := reg.Stats()
	assert.Equal(t, 2, stats.ActiveExecutors)
	assert.Equal(t, []string{"mysql/alpha", "pg/zeta"}, stats.Keys)
}
