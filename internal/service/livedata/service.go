package livedata

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/zhouzirui/messenger-relay/backend/internal/analysis/intent"
	"github.com/zhouzirui/messenger-relay/backend/internal/config"
)

// Service looks up weather or football data for a decision and formats it
// as prompt context.
type Service struct {
	weather  *Weather
	football *Football
}

// NewService builds the enabled lookups from cfg.
func NewService(cfg config.LiveDataConfig, client *http.Client) *Service {
	svc := &Service{}
	if cfg.WeatherEnabled {
		svc.weather = NewWeather(client, cfg.GeocodingBaseURL, cfg.WeatherBaseURL, cfg.WeatherAPIKey)
	}
	if cfg.FootballEnabled {
		svc.football = NewFootball(client, cfg.SportsDBBaseURL, cfg.SportsDBAPIKey)
	}
	return svc
}

// Lookup returns the context block for decision, or "" when nothing applies.
// A city or team without a match yields a note telling the model so.
func (s *Service) Lookup(ctx context.Context, decision intent.Decision) (string, error) {
	if s == nil || !decision.NeedsLiveData() {
		return "", nil
	}

	switch decision.Intent {
	case intent.Weather:
		if s.weather == nil {
			return "", nil
		}
		report, err := s.weather.Current(ctx, decision.City)
		if errors.Is(err, ErrNotFound) {
			return fmt.Sprintf("No weather data could be found for %q.", decision.City), nil
		}
		if err != nil {
			return "", err
		}
		return report.Format(), nil
	case intent.Football:
		if s.football == nil {
			return "", nil
		}
		report, err := s.football.Latest(ctx, decision.Team)
		if errors.Is(err, ErrNotFound) {
			return fmt.Sprintf("No football team called %q could be found.", decision.Team), nil
		}
		if err != nil {
			return "", err
		}
		return report.Format(), nil
	default:
		return "", nil
	}
}
