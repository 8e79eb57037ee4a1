package modelstore

import (
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeModel struct {
	Eps    float64
	Labels []int
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	return store
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store := newTestStore(t)

	saved := fakeModel{Eps: 0.5, Labels: []int{0, 0, 1, -1}}
	name, err := store.Save(KindClustering, saved)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(name, "clustering_model_"))

	var loaded fakeModel
	require.NoError(t, store.Load(name, &loaded))
	assert.Equal(t, saved, loaded)
}

func TestSave_CollisionWithinSameSecond(t *testing.T) {
	store := newTestStore(t)

	// Two saves in the same second must yield distinct names.
	first, err := store.Save(KindAnomaly, fakeModel{Eps: 1})
	require.NoError(t, err)
	second, err := store.Save(KindAnomaly, fakeModel{Eps: 2})
	require.NoError(t, err)

	assert.NotEqual(t, first, second)

	names, err := store.List(KindAnomaly)
	require.NoError(t, err)
	assert.Len(t, names, 2)
}

func TestSave_UnknownKind(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Save(Kind("bogus"), fakeModel{})
	assert.Error(t, err)
}

func TestList_FiltersByKindPrefix(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Save(KindClustering, fakeModel{Eps: 1})
	require.NoError(t, err)
	_, err = store.Save(KindPrediction, fakeModel{Eps: 2})
	require.NoError(t, err)

	clustering, err := store.List(KindClustering)
	require.NoError(t, err)
	require.Len(t, clustering, 1)
	assert.True(t, strings.HasPrefix(clustering[0], "clustering_model_"))

	anomaly, err := store.List(KindAnomaly)
	require.NoError(t, err)
	assert.Empty(t, anomaly)

	all, err := store.ListAll()
	require.NoError(t, err)
	assert.Len(t, all[KindClustering], 1)
	assert.Len(t, all[KindPrediction], 1)
	assert.Empty(t, all[KindAnomaly])
}

func TestLoad_Missing(t *testing.T) {
	store := newTestStore(t)
	var m fakeModel
	assert.Error(t, store.Load("clustering_model_19700101_000000.gob", &m))
}
