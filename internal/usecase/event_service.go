package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"github.com/matchsight/matchsight/internal/domain/event"
	"github.com/matchsight/matchsight/internal/platform/cache"
	"github.com/matchsight/matchsight/internal/platform/logging"
)

const defaultNextCount = 20

// maxErrorBodyLen caps upstream body excerpts carried inside error
// messages.
const maxErrorBodyLen = 512

// EventService resolves upcoming fixtures through an ordered chain of
// provider query shapes. The chain compensates for free-tier provider
// quirks: some plans demand an explicit season, pin usable data to one
// season, or return sparse windows.
type EventService struct {
	api     SportsAPIClient
	results *cache.Store
	logger  *logging.Logger
	now     func() time.Time
}

func NewEventService(api SportsAPIClient, results *cache.Store, logger *logging.Logger) *EventService {
	if logger == nil {
		logger = logging.Default()
	}
	return &EventService{
		api:     api,
		results: results,
		logger:  logger,
		now:     time.Now,
	}
}

type ListEventsInput struct {
	Sport  event.Sport
	League string
	Season string
	Next   int
}

type ListEventsMeta struct {
	Sport    string
	Strategy string
	Count    int
	Query    string
	Note     string
}

type EventList struct {
	Events   []event.Event
	Meta     ListEventsMeta
	CacheHit bool
}

type GetEventInput struct {
	ID     string
	Sport  event.Sport
	League string
	Season string
}

type EventLookup struct {
	Details  event.Details
	Found    bool
	Strategy string
}

// List returns upcoming fixtures for a league. Results are cached for
// the store's TTL keyed by sport, league, season and count, so repeat
// queries never touch the provider within the window.
func (s *EventService) List(ctx context.Context, in ListEventsInput) (EventList, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.EventService.List")
	defer span.End()

	league := strings.TrimSpace(in.League)
	if league == "" {
		return EventList{}, fmt.Errorf("%w: league is required", ErrInvalidInput)
	}

	sport := in.Sport
	if sport == "" {
		sport = event.SportFootball
	}

	season := strings.TrimSpace(in.Season)
	cacheKey := listCacheKey(sport, league, season, in.Next)
	if v, ok := s.results.Get(ctx, cacheKey); ok {
		if cached, isList := v.(EventList); isList {
			cached.CacheHit = true
			return cached, nil
		}
	}

	// Only football is wired to the provider today. The placeholder is
	// cached so unsupported sports cost zero upstream quota.
	if sport != event.SportFootball {
		out := EventList{
			Events: []event.Event{},
			Meta: ListEventsMeta{
				Sport: string(sport),
				Note:  "this sport is not implemented yet",
			},
		}
		s.results.Set(ctx, cacheKey, out)
		return out, nil
	}

	next := in.Next
	if next <= 0 {
		next = defaultNextCount
	}
	chosenSeason := season
	if chosenSeason == "" {
		chosenSeason = event.FreePlanDefaultSeason
	}
	now := s.now().UTC()

	var (
		used     fixtureQuery
		usedResp UpstreamResponse
		items    []fixtureItem
		lastEnv  fixturesEnvelope
	)

	for _, st := range listStrategies(league, chosenSeason, event.PreviousSeason(chosenSeason), next, now) {
		used = st
		resp, err := s.api.Fetch(ctx, event.SportFootball, "fixtures", st.params, UpstreamFetchOptions{})
		if err != nil {
			return EventList{}, fmt.Errorf("strategy %s: %w", st.name, err)
		}
		env, err := s.checkFixtureResponse(st, resp)
		if err != nil {
			return EventList{}, err
		}

		usedResp = resp
		lastEnv = env
		if len(env.fixtures) > 0 {
			items = env.fixtures
			break
		}
	}

	// Last resort for metered free plans: the provider rejects every
	// season except its pinned one, and says so in the errors payload.
	if len(items) == 0 && lastEnv.indicatesFreePlanLimit() {
		st := freePlanFallbackQuery(league)
		used = st
		resp, err := s.api.Fetch(ctx, event.SportFootball, "fixtures", st.params, UpstreamFetchOptions{})
		if err != nil {
			return EventList{}, fmt.Errorf("strategy %s: %w", st.name, err)
		}
		env, err := s.checkFixtureResponse(st, resp)
		if err != nil {
			return EventList{}, err
		}
		usedResp = resp
		items = env.fixtures
	}

	events := make([]event.Event, 0, len(items))
	for _, it := range items {
		country := it.League.Country
		if country == "" {
			country = "Unknown"
		}
		events = append(events, event.Event{
			ID:           strconv.FormatInt(*it.Fixture.ID, 10),
			ParticipantA: it.Teams.Home.Name,
			ParticipantB: it.Teams.Away.Name,
			Country:      country,
			League:       it.League.Name,
			StartTime:    it.Fixture.Date,
		})
	}

	seasonForLog := season
	if seasonForLog == "" {
		seasonForLog = event.InferSeason(now)
	}
	s.logger.InfoContext(ctx, "events fetch summary",
		"league", league,
		"season", seasonForLog,
		"strategy", used.name,
		"count", len(events),
		"query", used.params.Encode(),
		"ratelimit_remaining", usedResp.Header.Get("x-ratelimit-remaining"),
		"ratelimit_daily_remaining", usedResp.Header.Get("x-ratelimit-requests-remaining"),
	)

	out := EventList{
		Events: events,
		Meta: ListEventsMeta{
			Sport:    string(sport),
			Strategy: used.name,
			Count:    len(events),
			Query:    used.params.Encode(),
		},
	}
	s.results.Set(ctx, cacheKey, out)
	return out, nil
}

// GetByID resolves a single fixture. Lookups bypass the fetch cache:
// fixture status transitions quickly around kickoff, and a single by-id
// call is cheap relative to the staleness risk.
func (s *EventService) GetByID(ctx context.Context, in GetEventInput) (EventLookup, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.EventService.GetByID")
	defer span.End()

	eventID := strings.TrimSpace(in.ID)
	if eventID == "" {
		return EventLookup{}, fmt.Errorf("%w: event id is required", ErrInvalidInput)
	}

	sport := in.Sport
	if sport == "" {
		sport = event.SportFootball
	}
	if sport != event.SportFootball {
		return EventLookup{}, fmt.Errorf("%w: sport %s is not supported for event lookup", ErrInvalidInput, sport)
	}

	strategy := "by-id"
	params := url.Values{}
	params.Set("id", eventID)
	params.Set("timezone", "UTC")
	if season := strings.TrimSpace(in.Season); season != "" {
		params.Set("season", season)
	}

	resp, err := s.api.Fetch(ctx, event.SportFootball, "fixtures", params, UpstreamFetchOptions{NoCache: true})
	if err != nil {
		return EventLookup{}, fmt.Errorf("strategy %s: %w", strategy, err)
	}
	env, err := s.checkFixtureResponse(fixtureQuery{name: strategy, params: params}, resp)
	if err != nil {
		return EventLookup{}, err
	}

	var first *fixtureItem
	if len(env.fixtures) > 0 {
		first = &env.fixtures[0]
	}

	// Free plans often refuse id-only lookups without a season, so walk
	// the plausible season candidates. Failures here are soft: the next
	// candidate may still hit.
	if first == nil {
		strategy = "by-id-multi-season"
		for _, season := range seasonCandidates(in.Season, s.now().UTC()) {
			params := url.Values{}
			params.Set("id", eventID)
			params.Set("timezone", "UTC")
			params.Set("season", season)

			resp, err := s.api.Fetch(ctx, event.SportFootball, "fixtures", params, UpstreamFetchOptions{NoCache: true})
			if err != nil || resp.StatusCode != 200 {
				continue
			}
			env, decodeErr := decodeFixtures(resp.Body)
			if decodeErr != nil || len(env.fixtures) == 0 {
				continue
			}
			first = &env.fixtures[0]
			break
		}
	}

	// Final fallback: pull the league listing through the full strategy
	// chain and filter by id.
	if first == nil && (strings.TrimSpace(in.League) != "" || strings.TrimSpace(in.Season) != "") {
		list, listErr := s.List(ctx, ListEventsInput{
			Sport:  event.SportFootball,
			League: in.League,
			Season: in.Season,
			Next:   200,
		})
		if listErr == nil {
			for _, e := range list.Events {
				if e.ID != eventID {
					continue
				}
				strategy = "list-fallback"
				first = fixtureFromEvent(e)
				break
			}
		}
	}

	if first == nil {
		return EventLookup{Strategy: strategy}, nil
	}

	status := first.Fixture.Status.Long
	if status == "" {
		status = "scheduled"
	}
	description := first.League.Name
	if first.League.Country != "" {
		description = strings.TrimSpace(fmt.Sprintf("%s (%s)", first.League.Name, first.League.Country))
	}

	return EventLookup{
		Found:    true,
		Strategy: strategy,
		Details: event.Details{
			ID:     strconv.FormatInt(*first.Fixture.ID, 10),
			Title:  fmt.Sprintf("%s vs %s", first.Teams.Home.Name, first.Teams.Away.Name),
			Date:   first.Fixture.Date,
			Type:   string(event.SportFootball),
			Status: status,
			Teams: event.Teams{
				Home: first.Teams.Home.Name,
				Away: first.Teams.Away.Name,
			},
			Venue:       first.Fixture.Venue.Name,
			Description: description,
		},
	}, nil
}

// checkFixtureResponse maps upstream status codes onto the error
// taxonomy and decodes the fixtures payload. A 429 aborts the whole
// chain: retrying other shapes would burn the remaining quota.
func (s *EventService) checkFixtureResponse(st fixtureQuery, resp UpstreamResponse) (fixturesEnvelope, error) {
	if resp.StatusCode == 429 {
		return fixturesEnvelope{}, fmt.Errorf("%w: strategy %s: %s", ErrRateLimited, st.name, excerpt(resp.Body))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fixturesEnvelope{}, fmt.Errorf("%w: strategy %s: status=%d body=%s", ErrUpstreamHTTP, st.name, resp.StatusCode, excerpt(resp.Body))
	}

	env, err := decodeFixtures(resp.Body)
	if err != nil {
		return fixturesEnvelope{}, fmt.Errorf("%w: strategy %s: %v", ErrUpstreamShape, st.name, err)
	}
	return env, nil
}

type fixtureQuery struct {
	name   string
	params url.Values
}

// listStrategies is the ordered fallback chain. Season-less shapes are
// deliberately absent: free plans reject them outright.
func listStrategies(league, season, prevSeason string, next int, now time.Time) []fixtureQuery {
	day := func(offset int) string {
		return now.AddDate(0, 0, offset).Format("2006-01-02")
	}
	query := func(extra map[string]string) url.Values {
		v := url.Values{}
		v.Set("league", league)
		v.Set("timezone", "UTC")
		for key, val := range extra {
			v.Set(key, val)
		}
		return v
	}
	nextStr := strconv.Itoa(next)

	return []fixtureQuery{
		{"next-with-season", query(map[string]string{"season": season, "next": nextStr})},
		{"league-season-only", query(map[string]string{"season": season})},
		{"window-with-season", query(map[string]string{"season": season, "from": day(0), "to": day(30)})},
		{"date-today", query(map[string]string{"season": season, "date": day(0)})},
		{"date-tomorrow", query(map[string]string{"season": season, "date": day(1)})},
		{"window-7d-with-season", query(map[string]string{"season": season, "from": day(0), "to": day(7)})},
		{"next-with-prev-season", query(map[string]string{"season": prevSeason, "next": nextStr})},
		{"window-7d-with-prev-season", query(map[string]string{"season": prevSeason, "from": day(0), "to": day(7)})},
	}
}

// freePlanFallbackQuery spans the provider's pinned free-tier season.
func freePlanFallbackQuery(league string) fixtureQuery {
	v := url.Values{}
	v.Set("league", league)
	v.Set("season", event.FreePlanDefaultSeason)
	v.Set("from", "2023-07-01")
	v.Set("to", "2024-06-30")
	v.Set("timezone", "UTC")
	return fixtureQuery{name: "free-plan-fallback-2023", params: v}
}

func seasonCandidates(explicit string, now time.Time) []string {
	inferred := event.InferSeason(now)
	candidates := []string{
		strings.TrimSpace(explicit),
		inferred,
		event.PreviousSeason(inferred),
		event.FreePlanDefaultSeason,
	}

	seen := make(map[string]struct{}, len(candidates))
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if c == "" {
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

func listCacheKey(sport event.Sport, league, season string, next int) string {
	nextPart := ""
	if next > 0 {
		nextPart = strconv.Itoa(next)
	}
	return fmt.Sprintf("%s|%s|%s|%s", sport, league, season, nextPart)
}

type fixtureItem struct {
	Fixture struct {
		ID     *int64 `json:"id"`
		Date   string `json:"date"`
		Status struct {
			Short string `json:"short"`
			Long  string `json:"long"`
		} `json:"status"`
		Venue struct {
			Name string `json:"name"`
		} `json:"venue"`
	} `json:"fixture"`
	League struct {
		Name    string `json:"name"`
		Country string `json:"country"`
	} `json:"league"`
	Teams struct {
		Home struct {
			Name string `json:"name"`
		} `json:"home"`
		Away struct {
			Name string `json:"name"`
		} `json:"away"`
	} `json:"teams"`
}

type fixturesEnvelope struct {
	fixtures []fixtureItem
	errors   json.RawMessage
}

// indicatesFreePlanLimit reports whether the provider's errors payload
// names a free-plan or season-required restriction.
func (e fixturesEnvelope) indicatesFreePlanLimit() bool {
	if len(e.errors) == 0 {
		return false
	}
	var fields map[string]any
	if err := sonic.Unmarshal(e.errors, &fields); err != nil {
		return false
	}
	if plan, ok := fields["plan"].(string); ok && strings.Contains(strings.ToLower(plan), "free plans") {
		return true
	}
	if season, ok := fields["season"].(string); ok && strings.Contains(strings.ToLower(season), "required") {
		return true
	}
	return false
}

func decodeFixtures(body []byte) (fixturesEnvelope, error) {
	var wire struct {
		Response *[]fixtureItem  `json:"response"`
		Errors   json.RawMessage `json:"errors"`
	}
	if err := sonic.Unmarshal(body, &wire); err != nil {
		return fixturesEnvelope{}, fmt.Errorf("decode fixtures payload: %w", err)
	}
	if wire.Response == nil {
		return fixturesEnvelope{}, fmt.Errorf("fixtures payload has no response array")
	}
	for i, it := range *wire.Response {
		if it.Fixture.ID == nil {
			return fixturesEnvelope{}, fmt.Errorf("fixture %d has no id", i)
		}
		if it.Teams.Home.Name == "" || it.Teams.Away.Name == "" {
			return fixturesEnvelope{}, fmt.Errorf("fixture %d is missing team names", i)
		}
	}
	return fixturesEnvelope{fixtures: *wire.Response, errors: wire.Errors}, nil
}

// fixtureFromEvent lifts a list entry back into the by-id shape so the
// list-fallback path shares the projection code.
func fixtureFromEvent(e event.Event) *fixtureItem {
	var it fixtureItem
	id, err := strconv.ParseInt(e.ID, 10, 64)
	if err != nil {
		return nil
	}
	it.Fixture.ID = &id
	it.Fixture.Date = e.StartTime
	it.League.Name = e.League
	it.League.Country = e.Country
	it.Teams.Home.Name = e.ParticipantA
	it.Teams.Away.Name = e.ParticipantB
	return &it
}

func excerpt(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxErrorBodyLen {
		return s[:maxErrorBodyLen]
	}
	return s
}
