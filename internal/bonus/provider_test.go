package bonus

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPTowerLoadout(t *testing.T) {
	id := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/towers/"+id.String(), r.URL.Path)
		fmt.Fprint(w, `{
			"bonuses": {"DamagePercent": 50, "DamageFlat": 2, "FutureBonus": 99},
			"weapon": {"Subtype": 5, "Damage": 12, "Range": 1.5, "AttackSpeed": 1.2,
			           "HitsMultiple": true, "MaxTargets": 3, "IsProjectile": false}
		}`)
	}))
	defer srv.Close()

	p := NewHTTP(srv.URL, time.Second)
	lo, err := p.TowerLoadout(context.Background(), id)
	require.NoError(t, err)

	assert.Equal(t, 50.0, lo.Summary.Get(DamagePercent))
	assert.Equal(t, 2.0, lo.Summary.Get(DamageFlat))
	assert.Len(t, lo.Summary, 2, "unknown bonus names are skipped")
	require.NotNil(t, lo.Weapon)
	assert.Equal(t, WeaponSword, lo.Weapon.Subtype)
	assert.True(t, lo.Weapon.HitsMultiple)
	assert.Equal(t, 3, lo.Weapon.MaxTargets)
}

func TestHTTPErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := NewHTTP(srv.URL, time.Second)
	_, err := p.TowerLoadout(context.Background(), uuid.New())
	require.Error(t, err)
}

func TestHTTPPlayerData(t *testing.T) {
	charID := uuid.New()
	towerID := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/players/"+charID.String()+"/loadout", r.URL.Path)
		fmt.Fprintf(w, `{
			"towers": [{"playerTowerId": %q, "towerType": 1, "level": 3, "xp": 120}],
			"items": []
		}`, towerID)
	}))
	defer srv.Close()

	p := NewHTTP(srv.URL, time.Second)
	data, err := p.PlayerData(context.Background(), charID)
	require.NoError(t, err)
	require.Len(t, data.Towers, 1)
	assert.Equal(t, towerID, data.Towers[0].PlayerTowerID)
	assert.Equal(t, uint16(3), data.Towers[0].Level)
}

// countingProvider records how often each lookup runs.
type countingProvider struct {
	Static
	calls atomic.Int64
}

func (c *countingProvider) TowerLoadout(ctx context.Context, id uuid.UUID) (Loadout, error) {
	c.calls.Add(1)
	return c.Static.TowerLoadout(ctx, id)
}

func TestCachedServesRepeatLookups(t *testing.T) {
	id := uuid.New()
	next := &countingProvider{Static: Static{
		Loadouts: map[uuid.UUID]Loadout{id: {Summary: Summary{DamageFlat: 7}}},
	}}
	c := NewCached(next, time.Minute)

	for range 3 {
		lo, err := c.TowerLoadout(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, 7.0, lo.Summary.Get(DamageFlat))
	}
	assert.Equal(t, int64(1), next.calls.Load())
}

func TestResolverCompletesOffThread(t *testing.T) {
	id := uuid.New()
	r := NewResolver(&Static{
		Loadouts: map[uuid.UUID]Loadout{id: {Summary: Summary{CritChance: 25}}},
	}, 2, time.Second)
	defer r.Close()

	var wg sync.WaitGroup
	wg.Add(1)
	var got Loadout
	var gotErr error
	r.ResolveTower(context.Background(), id, func(lo Loadout, err error) {
		got, gotErr = lo, err
		wg.Done()
	})
	wg.Wait()

	require.NoError(t, gotErr)
	assert.Equal(t, 25.0, got.Summary.Get(CritChance))
}

func TestResolverTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	r := NewResolver(NewHTTP(srv.URL, time.Minute), 1, 20*time.Millisecond)
	defer r.Close()

	var wg sync.WaitGroup
	wg.Add(1)
	var gotErr error
	r.ResolveTower(context.Background(), uuid.New(), func(_ Loadout, err error) {
		gotErr = err
		wg.Done()
	})
	wg.Wait()

	require.Error(t, gotErr)
}
