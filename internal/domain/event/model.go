package event

import (
	"strconv"
	"strings"
	"time"
)

// Sport is one of the upstream provider's supported disciplines.
type Sport string

const (
	SportFootball   Sport = "football"
	SportBasketball Sport = "basketball"
	SportVolleyball Sport = "volleyball"
	SportBaseball   Sport = "baseball"
	SportHockey     Sport = "hockey"
)

// FreePlanDefaultSeason is the only season fully served to metered free
// plans by the provider.
const FreePlanDefaultSeason = "2023"

func Sports() []Sport {
	return []Sport{SportFootball, SportBasketball, SportVolleyball, SportBaseball, SportHockey}
}

func ParseSport(raw string) (Sport, bool) {
	switch Sport(strings.ToLower(strings.TrimSpace(raw))) {
	case SportFootball:
		return SportFootball, true
	case SportBasketball:
		return SportBasketball, true
	case SportVolleyball:
		return SportVolleyball, true
	case SportBaseball:
		return SportBaseball, true
	case SportHockey:
		return SportHockey, true
	}
	return "", false
}

// Event is a normalized upcoming fixture.
type Event struct {
	ID           string `json:"id"`
	ParticipantA string `json:"participantA"`
	ParticipantB string `json:"participantB"`
	Country      string `json:"country"`
	League       string `json:"league"`
	StartTime    string `json:"startTime"`
}

// Teams names the two sides of a fixture.
type Teams struct {
	Home string `json:"home"`
	Away string `json:"away"`
}

// Details is the by-ID projection of a fixture.
type Details struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Date        string `json:"date"`
	Type        string `json:"type"`
	Status      string `json:"status"`
	Teams       Teams  `json:"teams"`
	Venue       string `json:"venue"`
	Description string `json:"description"`
}

// InferSeason maps a calendar date onto a European football season
// label. Before July the season that started the previous year is still
// running.
func InferSeason(now time.Time) string {
	year := now.UTC().Year()
	if now.UTC().Month() < time.July {
		year--
	}
	return strconv.Itoa(year)
}

// PreviousSeason returns the season label one year earlier, or the
// input unchanged when it is not numeric.
func PreviousSeason(season string) string {
	n, err := strconv.Atoi(strings.TrimSpace(season))
	if err != nil {
		return season
	}
	return strconv.Itoa(n - 1)
}
