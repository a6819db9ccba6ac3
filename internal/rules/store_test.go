package rules

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	return NewFileStore(filepath.Join(t.TempDir(), "rules.json"), zerolog.Nop())
}

func sampleRules() []Rule {
	return []Rule{
		{Metric: "acos", Operator: OpGreater, Threshold: 0.25, LookbackDays: 7, Action: ActionDigest, Name: "ACoS"},
		{Metric: "revenue", Operator: OpCrossesBelow, Threshold: 1000, LookbackDays: 2, Action: ActionDigest},
		{Metric: "refund_rate", Operator: OpGreaterEqual, Threshold: 0.05, LookbackDays: 14, Action: ActionDigest, Name: "Refunds"},
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	assert.Empty(t, store.List(ctx))

	want := sampleRules()
	require.NoError(t, store.Save(ctx, want))
	assert.Equal(t, want, store.List(ctx))
}

func TestFileStoreFieldOrder(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.Add(ctx, New("acos", OpGreater, 0.25, 7)))

	data, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	text := string(data)
	keys := []string{`"metric"`, `"operator"`, `"threshold"`, `"lookback_days"`, `"action"`, `"name"`}
	last := -1
	for _, k := range keys {
		pos := strings.Index(text, k)
		require.Greater(t, pos, last, "field %s out of order in %s", k, text)
		last = pos
	}
	assert.Contains(t, text, `"action": "Digest"`)
	assert.Contains(t, text, `"name": ""`)
}

func TestFileStoreSaveNormalizes(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	in := []Rule{
		{Metric: " acos ", Operator: OpGreater, Threshold: 0.3, LookbackDays: 7},
		{Metric: "sessions", Operator: OpLess, Threshold: 100, LookbackDays: 3, Action: "digest"},
	}
	require.NoError(t, store.Save(ctx, in))

	data, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), `"action": "Digest"`))
	assert.NotContains(t, string(data), `" acos "`)

	got := store.List(ctx)
	require.Len(t, got, 2)
	assert.Equal(t, "acos", got[0].Metric)
	assert.Equal(t, ActionDigest, got[1].Action)

	// saving what List returned is stable
	require.NoError(t, store.Save(ctx, got))
	again, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	assert.Equal(t, string(data), string(again))

	// the caller's slice is left as given
	assert.Equal(t, "", in[0].Action)

	require.NoError(t, store.Save(ctx, nil))
	data, err = os.ReadFile(store.Path())
	require.NoError(t, err)
	assert.Equal(t, "[]", strings.TrimSpace(string(data)))
}

func TestFileStoreAddAndRemove(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	for _, r := range sampleRules() {
		require.NoError(t, store.Add(ctx, r))
	}

	require.NoError(t, store.Remove(ctx, 1))
	got := store.List(ctx)
	require.Len(t, got, 2)
	assert.Equal(t, "acos", got[0].Metric)
	assert.Equal(t, "refund_rate", got[1].Metric)
}

func TestFileStoreConcurrentAdds(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	const n = 25
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = store.Add(ctx, New("acos", OpGreater, float64(i), 7))
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Len(t, store.List(ctx), n)

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, store.Remove(ctx, 0))
		}()
	}
	wg.Wait()
	assert.Len(t, store.List(ctx), n-5)
}

func TestFileStoreRemoveOutOfRange(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.Save(ctx, sampleRules()))
	before := store.List(ctx)

	for _, idx := range []int{-1, 3, 99} {
		assert.NoError(t, store.Remove(ctx, idx), "remove(%d) should be a no-op", idx)
	}
	assert.Equal(t, before, store.List(ctx))
}

func TestFileStoreCorruptReadsEmpty(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, os.WriteFile(store.Path(), []byte(`[{"metric": "acos", "oper`), 0o644))
	assert.Empty(t, store.List(ctx))
}

func TestFileStoreFailedWriteKeepsPrevious(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.json")
	store := NewFileStore(path, zerolog.Nop())
	require.NoError(t, store.Save(ctx, sampleRules()))

	// A directory squatting on the rename target makes the replace fail.
	blocked := NewFileStore(filepath.Join(dir, "blocked"), zerolog.Nop())
	require.NoError(t, os.Mkdir(blocked.Path(), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(blocked.Path(), "keep"), []byte("x"), 0o644))
	assert.Error(t, blocked.Save(ctx, sampleRules()))

	assert.Equal(t, sampleRules(), store.List(ctx))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasSuffix(e.Name(), ".tmp"), "temp file left behind: %s", e.Name())
	}
}

func TestListNormalizesMissingAction(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	legacy := `[{"metric":"acos","operator":">","threshold":0.3,"lookback_days":7}]`
	require.NoError(t, os.WriteFile(store.Path(), []byte(legacy), 0o644))

	got := store.List(ctx)
	require.Len(t, got, 1)
	assert.Equal(t, ActionDigest, got[0].Action)
}

func TestRuleValidate(t *testing.T) {
	require.NoError(t, New("acos", OpGreater, 0.3, 7).Validate())
	bad := []Rule{
		New("", OpGreater, 1, 7),
		New("acos", "!=", 1, 7),
		New("acos", OpGreater, 1, 0),
		{Metric: "acos", Operator: OpGreater, Threshold: 1, LookbackDays: 7, Action: "Email"},
	}
	for _, r := range bad {
		assert.ErrorIs(t, r.Validate(), ErrInvalidRule, "expected %+v to be rejected", r)
	}
}

func TestTemplatesAreValid(t *testing.T) {
	for _, tpl := range Templates() {
		assert.NoError(t, tpl.Rule.Validate(), "template %s", tpl.Key)
	}
	_, ok := LookupTemplate("ACOS-HIGH")
	assert.True(t, ok, "lookup should be case-insensitive")
}
