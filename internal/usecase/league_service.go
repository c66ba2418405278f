package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/matchsight/matchsight/internal/domain/event"
	"github.com/matchsight/matchsight/internal/domain/league"
	"github.com/matchsight/matchsight/internal/platform/cache"
	"github.com/matchsight/matchsight/internal/platform/logging"
)

// curatedFootballLeagues is the fixed selection shown for football, in
// display order.
var curatedFootballLeagues = []struct {
	Name    string
	Country string
}{
	{"Premier League", "England"},
	{"Serie A", "Italy"},
	{"La Liga", "Spain"},
	{"Bundesliga", "Germany"},
	{"Ligue 1", "France"},
	{"Ekstraklasa", "Poland"},
}

// curatedFallbackLimit bounds the list served when curation matches too
// few leagues.
const curatedFallbackLimit = 30

// curatedMinMatches is the smallest curated result considered usable.
const curatedMinMatches = 3

// LeagueService normalizes the provider's heterogeneous league-list
// shapes into a canonical catalog, cached per sport.
type LeagueService struct {
	api     SportsAPIClient
	catalog *cache.Store
	logger  *logging.Logger
}

func NewLeagueService(api SportsAPIClient, catalog *cache.Store, logger *logging.Logger) *LeagueService {
	if logger == nil {
		logger = logging.Default()
	}
	return &LeagueService{
		api:     api,
		catalog: catalog,
		logger:  logger,
	}
}

type LeagueMeta struct {
	Sport  string
	Source string
}

type LeagueCatalog struct {
	Leagues       []league.League
	Meta          LeagueMeta
	CacheHit      bool
	UpstreamCache string
}

func (s *LeagueService) GetLeagues(ctx context.Context, sport event.Sport) (LeagueCatalog, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.LeagueService.GetLeagues")
	defer span.End()

	if sport == "" {
		sport = event.SportFootball
	}

	if v, ok := s.catalog.Get(ctx, string(sport)); ok {
		if cached, isCatalog := v.(LeagueCatalog); isCatalog {
			// Older deployments cached preset or placeholder lists for
			// non-football sports; drop those so the live normalizer
			// runs instead.
			stale := sport != event.SportFootball && (cached.Meta.Source == "preset" || len(cached.Leagues) > 0)
			if !stale {
				cached.CacheHit = true
				return cached, nil
			}
			s.catalog.Delete(ctx, string(sport))
		}
	}

	var (
		out LeagueCatalog
		err error
	)
	if sport == event.SportFootball {
		out, err = s.fetchFootballLeagues(ctx)
	} else {
		out, err = s.fetchGenericLeagues(ctx, sport)
	}
	if err != nil {
		return LeagueCatalog{}, err
	}

	s.catalog.Set(ctx, string(sport), out)
	return out, nil
}

func (s *LeagueService) fetchFootballLeagues(ctx context.Context) (LeagueCatalog, error) {
	params := url.Values{}
	params.Set("current", "true")

	resp, err := s.api.Fetch(ctx, event.SportFootball, "leagues", params, UpstreamFetchOptions{})
	if err != nil {
		return LeagueCatalog{}, fmt.Errorf("fetch football leagues: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return LeagueCatalog{}, fmt.Errorf("%w: leagues: status=%d body=%s", ErrUpstreamHTTP, resp.StatusCode, excerpt(resp.Body))
	}

	var wire struct {
		Response *[]struct {
			League struct {
				ID   *int64 `json:"id"`
				Name string `json:"name"`
				Type string `json:"type"`
			} `json:"league"`
			Country struct {
				Name *string `json:"name"`
			} `json:"country"`
			Seasons []struct {
				Year    int  `json:"year"`
				Current bool `json:"current"`
			} `json:"seasons"`
		} `json:"response"`
	}
	if err := sonic.Unmarshal(resp.Body, &wire); err != nil {
		return LeagueCatalog{}, fmt.Errorf("%w: leagues: %v", ErrUpstreamShape, err)
	}
	if wire.Response == nil {
		return LeagueCatalog{}, fmt.Errorf("%w: leagues payload has no response array", ErrUpstreamShape)
	}

	// Cups and finished competitions are noise for the dashboard.
	normalized := make([]league.League, 0, len(*wire.Response))
	for _, item := range *wire.Response {
		if item.League.ID == nil || item.League.Name == "" {
			return LeagueCatalog{}, fmt.Errorf("%w: league entry is missing id or name", ErrUpstreamShape)
		}
		if !strings.EqualFold(item.League.Type, "league") {
			continue
		}
		hasCurrent := false
		for _, season := range item.Seasons {
			if season.Current {
				hasCurrent = true
				break
			}
		}
		if !hasCurrent {
			continue
		}
		normalized = append(normalized, league.League{
			ID:      *item.League.ID,
			Name:    item.League.Name,
			Country: item.Country.Name,
		})
	}

	selected := make([]league.League, 0, len(curatedFootballLeagues))
	for _, want := range curatedFootballLeagues {
		for _, candidate := range normalized {
			country := ""
			if candidate.Country != nil {
				country = *candidate.Country
			}
			if strings.EqualFold(candidate.Name, want.Name) && strings.EqualFold(country, want.Country) {
				selected = append(selected, candidate)
				break
			}
		}
	}
	if len(selected) < curatedMinMatches {
		if len(normalized) > curatedFallbackLimit {
			normalized = normalized[:curatedFallbackLimit]
		}
		selected = normalized
	}

	return LeagueCatalog{
		Leagues:       selected,
		Meta:          LeagueMeta{Sport: string(event.SportFootball), Source: "upstream"},
		UpstreamCache: resp.CacheStatus(),
	}, nil
}

func (s *LeagueService) fetchGenericLeagues(ctx context.Context, sport event.Sport) (LeagueCatalog, error) {
	resp, err := s.api.Fetch(ctx, sport, "leagues", url.Values{}, UpstreamFetchOptions{})
	if err != nil {
		return LeagueCatalog{}, fmt.Errorf("fetch %s leagues: %w", sport, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return LeagueCatalog{}, fmt.Errorf("%w: %s leagues: status=%d body=%s", ErrUpstreamHTTP, sport, resp.StatusCode, excerpt(resp.Body))
	}

	var wire struct {
		Response []json.RawMessage `json:"response"`
		Errors   json.RawMessage   `json:"errors"`
	}
	if err := sonic.Unmarshal(resp.Body, &wire); err != nil {
		return LeagueCatalog{}, fmt.Errorf("%w: %s leagues: %v", ErrUpstreamShape, sport, err)
	}
	if len(wire.Response) == 0 && hasErrorEntries(wire.Errors) {
		return LeagueCatalog{}, fmt.Errorf("%w: %s leagues: upstream error payload: %s", ErrUpstreamHTTP, sport, excerpt(resp.Body))
	}

	leagues := make([]league.League, 0, len(wire.Response))
	for _, raw := range wire.Response {
		if entry, ok := normalizeGenericLeague(raw); ok {
			leagues = append(leagues, entry)
		}
	}

	return LeagueCatalog{
		Leagues:       leagues,
		Meta:          LeagueMeta{Sport: string(sport), Source: "upstream"},
		UpstreamCache: resp.CacheStatus(),
	}, nil
}

// normalizeGenericLeague accepts both the nested ({league:{...}}) and
// flat variants the non-football hosts return, with ids as numbers or
// numeric strings. Entries with a non-league type, an unparseable id or
// an empty name are dropped rather than failing the whole list.
func normalizeGenericLeague(raw json.RawMessage) (league.League, bool) {
	var nested struct {
		League *struct {
			ID   any    `json:"id"`
			Name string `json:"name"`
			Type string `json:"type"`
		} `json:"league"`
		Country *struct {
			Name *string `json:"name"`
		} `json:"country"`
	}
	if err := sonic.Unmarshal(raw, &nested); err == nil && nested.League != nil {
		if nested.League.Type != "" && !strings.EqualFold(nested.League.Type, "league") {
			return league.League{}, false
		}
		id, ok := coerceLeagueID(nested.League.ID)
		if !ok {
			return league.League{}, false
		}
		name := strings.TrimSpace(nested.League.Name)
		if name == "" {
			return league.League{}, false
		}
		var country *string
		if nested.Country != nil {
			country = nested.Country.Name
		}
		return league.League{ID: id, Name: name, Country: country}, true
	}

	var flat struct {
		ID      any             `json:"id"`
		Name    string          `json:"name"`
		Type    string          `json:"type"`
		Country json.RawMessage `json:"country"`
	}
	if err := sonic.Unmarshal(raw, &flat); err != nil {
		return league.League{}, false
	}
	if flat.Type != "" && !strings.EqualFold(flat.Type, "league") {
		return league.League{}, false
	}
	id, ok := coerceLeagueID(flat.ID)
	if !ok {
		return league.League{}, false
	}
	name := strings.TrimSpace(flat.Name)
	if name == "" {
		return league.League{}, false
	}

	var country *string
	if len(flat.Country) > 0 {
		var asString string
		if err := sonic.Unmarshal(flat.Country, &asString); err == nil {
			if asString != "" {
				country = &asString
			}
		} else {
			var asObject struct {
				Name *string `json:"name"`
			}
			if err := sonic.Unmarshal(flat.Country, &asObject); err == nil {
				country = asObject.Name
			}
		}
	}

	return league.League{ID: id, Name: name, Country: country}, true
}

// hasErrorEntries reports whether the upstream errors field is a
// non-empty array. The non-football hosts use the array form.
func hasErrorEntries(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	var entries []json.RawMessage
	if err := sonic.Unmarshal(raw, &entries); err != nil {
		return false
	}
	return len(entries) > 0
}

func coerceLeagueID(v any) (int64, bool) {
	switch id := v.(type) {
	case float64:
		return int64(id), true
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(id), 64)
		if err != nil || math.IsNaN(parsed) || math.IsInf(parsed, 0) {
			return 0, false
		}
		return int64(parsed), true
	default:
		return 0, false
	}
}
