package bonus

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"
)

// PlayerTower is one durable tower in a character's loadout.
type PlayerTower struct {
	PlayerTowerID uuid.UUID `json:"playerTowerId"`
	TowerType     uint8     `json:"towerType"`
	Level         uint16    `json:"level"`
	XP            int64     `json:"xp"`
}

// PlayerItem is one durable item in a character's stash or equipment.
type PlayerItem struct {
	ItemID          uuid.UUID `json:"itemId"`
	ItemType        uint8     `json:"itemType"`
	Rarity          uint8     `json:"rarity"`
	ItemLevel       uint16    `json:"itemLevel"`
	EquippedTowerID uuid.UUID `json:"equippedTowerId"`
	Name            string    `json:"name"`
}

// PlayerData is the lobby view of a character's durable state.
type PlayerData struct {
	Towers []PlayerTower `json:"towers"`
	Items  []PlayerItem  `json:"items"`
}

// Provider resolves durable progression state. Implementations must be safe
// for concurrent use; lookups run off the tick thread.
type Provider interface {
	// TowerLoadout returns the aggregated bonuses and weapon style for one
	// player-tower. The result is stable for a given world version.
	TowerLoadout(ctx context.Context, playerTowerID uuid.UUID) (Loadout, error)
	// PlayerData returns the character's towers and items for the lobby.
	PlayerData(ctx context.Context, characterID uuid.UUID) (PlayerData, error)
}

// Static serves fixed data. It backs local development without a progression
// service and most tests.
type Static struct {
	Loadouts map[uuid.UUID]Loadout
	Players  map[uuid.UUID]PlayerData
}

func (s *Static) TowerLoadout(_ context.Context, id uuid.UUID) (Loadout, error) {
	if lo, ok := s.Loadouts[id]; ok {
		return lo, nil
	}
	return Loadout{Summary: Summary{}}, nil
}

func (s *Static) PlayerData(_ context.Context, id uuid.UUID) (PlayerData, error) {
	return s.Players[id], nil
}

// httpLoadout is the progression service's tower response shape. Bonuses are
// keyed by bonus type name.
type httpLoadout struct {
	Bonuses map[string]float64 `json:"bonuses"`
	Weapon  *WeaponAttackStyle `json:"weapon"`
}

var typesByName = func() map[string]Type {
	m := make(map[string]Type, len(typeNames))
	for t, name := range typeNames {
		m[name] = t
	}
	return m
}()

// HTTP resolves loadouts against the progression service's REST API.
type HTTP struct {
	base   string
	client *http.Client
}

// NewHTTP builds an HTTP provider. timeout bounds each lookup.
func NewHTTP(baseURL string, timeout time.Duration) *HTTP {
	return &HTTP{
		base:   baseURL,
		client: &http.Client{Timeout: timeout},
	}
}

func (h *HTTP) TowerLoadout(ctx context.Context, id uuid.UUID) (Loadout, error) {
	var raw httpLoadout
	if err := h.getJSON(ctx, fmt.Sprintf("%s/api/towers/%s", h.base, id), &raw); err != nil {
		return Loadout{}, fmt.Errorf("fetching tower loadout %s: %w", id, err)
	}
	lo := Loadout{Summary: make(Summary, len(raw.Bonuses)), Weapon: raw.Weapon}
	for name, v := range raw.Bonuses {
		t, ok := typesByName[name]
		if !ok {
			// Unknown bonus types come from newer world versions; skip them.
			continue
		}
		lo.Summary.Add(t, v)
	}
	return lo, nil
}

func (h *HTTP) PlayerData(ctx context.Context, characterID uuid.UUID) (PlayerData, error) {
	var data PlayerData
	if err := h.getJSON(ctx, fmt.Sprintf("%s/api/players/%s/loadout", h.base, characterID), &data); err != nil {
		return PlayerData{}, fmt.Errorf("fetching player data %s: %w", characterID, err)
	}
	return data, nil
}

func (h *HTTP) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// Cached memoizes tower loadouts. Bonuses are captured at build time and a
// session never re-reads them, so a TTL spanning the longest session keeps
// repeat builds of the same tower cheap and deterministic.
type Cached struct {
	next  Provider
	cache *ttlcache.Cache[uuid.UUID, Loadout]
}

// NewCached wraps next with a loadout cache. Start the background eviction
// with Run and release it with Stop.
func NewCached(next Provider, ttl time.Duration) *Cached {
	return &Cached{
		next: next,
		cache: ttlcache.New(
			ttlcache.WithTTL[uuid.UUID, Loadout](ttl),
			ttlcache.WithDisableTouchOnHit[uuid.UUID, Loadout](),
		),
	}
}

// Run drives cache eviction until Stop is called.
func (c *Cached) Run() { c.cache.Start() }

// Stop halts cache eviction.
func (c *Cached) Stop() { c.cache.Stop() }

func (c *Cached) TowerLoadout(ctx context.Context, id uuid.UUID) (Loadout, error) {
	if item := c.cache.Get(id); item != nil {
		return item.Value(), nil
	}
	lo, err := c.next.TowerLoadout(ctx, id)
	if err != nil {
		return Loadout{}, err
	}
	c.cache.Set(id, lo, ttlcache.DefaultTTL)
	return lo, nil
}

func (c *Cached) PlayerData(ctx context.Context, characterID uuid.UUID) (PlayerData, error) {
	return c.next.PlayerData(ctx, characterID)
}
