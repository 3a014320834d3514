package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cacheDocA = `{"bookSourceName":"A","bookSourceUrl":"https://a.example.com","searchUrl":"/s?q={{key}}"}`
const cacheDocB = `{"bookSourceName":"B","bookSourceUrl":"https://b.example.com","searchUrl":"/s?q={{key}}"}`

func TestCompiledCacheReusesUnchangedDocument(t *testing.T) {
	cache := NewCompiledCache()
	rec := &SourceRecord{ID: 1, Raw: cacheDocA}

	first, err := cache.Get(rec)
	require.NoError(t, err)
	second, err := cache.Get(rec)
	require.NoError(t, err)
	assert.Same(t, first, second, "unchanged raw serves the cached plan")
}

func TestCompiledCacheRecompilesOnEdit(t *testing.T) {
	cache := NewCompiledCache()
	rec := &SourceRecord{ID: 1, Raw: cacheDocA}

	first, err := cache.Get(rec)
	require.NoError(t, err)

	rec.Raw = cacheDocB
	second, err := cache.Get(rec)
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.Equal(t, "B", second.Name)
}

func TestCompiledCacheInvalidate(t *testing.T) {
	cache := NewCompiledCache()
	rec := &SourceRecord{ID: 1, Raw: cacheDocA}

	first, err := cache.Get(rec)
	require.NoError(t, err)

	cache.Invalidate(rec.ID)
	second, err := cache.Get(rec)
	require.NoError(t, err)
	assert.NotSame(t, first, second, "invalidation forces a recompile")
}

func TestCompiledCacheDoesNotCacheFailures(t *testing.T) {
	cache := NewCompiledCache()
	rec := &SourceRecord{ID: 2, Raw: `{"bookSourceUrl":"https://x.example.com"}`}

	_, err := cache.Get(rec)
	require.Error(t, err)

	rec.Raw = cacheDocA
	compiled, err := cache.Get(rec)
	require.NoError(t, err, "a later valid document compiles cleanly")
	assert.Equal(t, "A", compiled.Name)
}

func TestCompiledCacheKeysById(t *testing.T) {
	cache := NewCompiledCache()
	a, err := cache.Get(&SourceRecord{ID: 1, Raw: cacheDocA})
	require.NoError(t, err)
	b, err := cache.Get(&SourceRecord{ID: 2, Raw: cacheDocB})
	require.NoError(t, err)

	assert.Equal(t, "A", a.Name)
	assert.Equal(t, "B", b.Name)

	again, err := cache.Get(&SourceRecord{ID: 1, Raw: cacheDocA})
	require.NoError(t, err)
	assert.Same(t, a, again)
}
