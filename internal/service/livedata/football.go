package livedata

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

const footballProvider = "thesportsdb"

// maxEvents caps how many past or upcoming matches are reported.
const maxEvents = 5

// Match is one past or scheduled fixture.
type Match struct {
	Event     string
	HomeTeam  string
	AwayTeam  string
	HomeScore string
	AwayScore string
	Date      string
	Time      string
	League    string
}

// TeamReport holds a team's latest results and next fixtures.
type TeamReport struct {
	Team     string
	League   string
	Country  string
	Stadium  string
	Last     []Match
	Upcoming []Match
}

// Football queries TheSportsDB.
type Football struct {
	client  *http.Client
	baseURL string
	apiKey  string
}

// NewFootball creates the football client. apiKey "3" is the public test key.
func NewFootball(client *http.Client, baseURL, apiKey string) *Football {
	if client == nil {
		client = http.DefaultClient
	}
	if apiKey == "" {
		apiKey = "3"
	}
	return &Football{client: client, baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey}
}

type teamSearchResponse struct {
	Teams []struct {
		ID      flexString `json:"idTeam"`
		Name    string     `json:"strTeam"`
		Sport   string     `json:"strSport"`
		League  string     `json:"strLeague"`
		Country string     `json:"strCountry"`
		Stadium string     `json:"strStadium"`
	} `json:"teams"`
}

type sportsEvent struct {
	Event     string     `json:"strEvent"`
	HomeTeam  string     `json:"strHomeTeam"`
	AwayTeam  string     `json:"strAwayTeam"`
	HomeScore flexString `json:"intHomeScore"`
	AwayScore flexString `json:"intAwayScore"`
	Date      string     `json:"dateEvent"`
	Time      string     `json:"strTime"`
	League    string     `json:"strLeague"`
}

type lastEventsResponse struct {
	Results []sportsEvent `json:"results"`
}

type nextEventsResponse struct {
	Events []sportsEvent `json:"events"`
}

// Latest finds team and fetches its last results and upcoming fixtures.
// A failed fixtures call leaves Upcoming empty.
func (f *Football) Latest(ctx context.Context, team string) (TeamReport, error) {
	team = strings.TrimSpace(team)
	if team == "" {
		return TeamReport{}, ErrNotFound
	}

	var search teamSearchResponse
	if err := getJSON(ctx, f.client, footballProvider, f.endpoint("searchteams.php", "t", team), &search); err != nil {
		return TeamReport{}, err
	}

	idx := -1
	for i, candidate := range search.Teams {
		if candidate.Sport == "" || strings.EqualFold(candidate.Sport, "Soccer") {
			idx = i
			break
		}
	}
	if idx == -1 {
		return TeamReport{}, fmt.Errorf("team %q: %w", team, ErrNotFound)
	}
	found := search.Teams[idx]

	report := TeamReport{
		Team:    found.Name,
		League:  found.League,
		Country: found.Country,
		Stadium: found.Stadium,
	}

	var last lastEventsResponse
	if err := getJSON(ctx, f.client, footballProvider, f.endpoint("eventslast.php", "id", string(found.ID)), &last); err != nil {
		return TeamReport{}, err
	}
	report.Last = toMatches(last.Results)

	var next nextEventsResponse
	if err := getJSON(ctx, f.client, footballProvider, f.endpoint("eventsnext.php", "id", string(found.ID)), &next); err == nil {
		report.Upcoming = toMatches(next.Events)
	}

	return report, nil
}

func (f *Football) endpoint(path, key, value string) string {
	query := url.Values{}
	query.Set(key, value)
	return fmt.Sprintf("%s/%s/%s?%s", f.baseURL, url.PathEscape(f.apiKey), path, query.Encode())
}

func toMatches(events []sportsEvent) []Match {
	if len(events) > maxEvents {
		events = events[:maxEvents]
	}
	matches := make([]Match, 0, len(events))
	for _, ev := range events {
		matches = append(matches, Match{
			Event:     ev.Event,
			HomeTeam:  ev.HomeTeam,
			AwayTeam:  ev.AwayTeam,
			HomeScore: string(ev.HomeScore),
			AwayScore: string(ev.AwayScore),
			Date:      ev.Date,
			Time:      ev.Time,
			League:    ev.League,
		})
	}
	return matches
}

// Format renders the report as a plain-text context block.
func (r TeamReport) Format() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Football data for %s", r.Team)
	if r.League != "" {
		fmt.Fprintf(&sb, " (%s)", r.League)
	}
	sb.WriteString(":\n")

	sb.WriteString("Latest results:\n")
	if len(r.Last) == 0 {
		sb.WriteString("- none available\n")
	}
	for _, m := range r.Last {
		fmt.Fprintf(&sb, "- %s %s\n", m.Date, m.result())
	}

	if len(r.Upcoming) > 0 {
		sb.WriteString("Upcoming fixtures:\n")
		for _, m := range r.Upcoming {
			when := m.Date
			if t := strings.TrimSpace(m.Time); t != "" {
				when += " " + strings.TrimSuffix(t, ":00")
			}
			fmt.Fprintf(&sb, "- %s %s vs %s", when, m.HomeTeam, m.AwayTeam)
			if m.League != "" {
				fmt.Fprintf(&sb, " (%s)", m.League)
			}
			sb.WriteString("\n")
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (m Match) result() string {
	var line string
	if m.HomeScore != "" && m.AwayScore != "" {
		line = fmt.Sprintf("%s %s-%s %s", m.HomeTeam, m.HomeScore, m.AwayScore, m.AwayTeam)
	} else {
		line = fmt.Sprintf("%s vs %s (no score)", m.HomeTeam, m.AwayTeam)
	}
	if m.League != "" {
		line += " (" + m.League + ")"
	}
	return line
}
