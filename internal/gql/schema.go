// Package gql serves the GraphQL route behind the gateway's gql resource.
package gql

import (
	"context"

	graphql "github.com/graph-gophers/graphql-go"

	"github.com/mikecbrant/distro-backend/internal/utils/logging"
)

// SDL is the served schema.
const SDL = `
type Weather {
  temperature: Float
  icon: String
  xx: String
}

type Query {
  weather(city: String): Weather
}
`

// WeatherSource yields current conditions for a city.
type WeatherSource interface {
	Current(ctx context.Context, city string) (Current, error)
}

// Resolver is the root query resolver.
type Resolver struct {
	weather WeatherSource
	logger  logging.Logger
}

// NewSchema parses SDL against a resolver backed by src.
func NewSchema(src WeatherSource, logger logging.Logger) (*graphql.Schema, error) {
	return graphql.ParseSchema(SDL, &Resolver{weather: src, logger: logging.OrNop(logger)})
}

// WeatherResolver resolves the Weather type.
type WeatherResolver struct {
	temperature float64
	icon        string
	xx          *string
}

func (w *WeatherResolver) Temperature() *float64 { return &w.temperature }
func (w *WeatherResolver) Icon() *string         { return &w.icon }
func (w *WeatherResolver) Xx() *string           { return w.xx }

// Weather never fails: any upstream error yields temperature 0 and an empty icon.
func (r *Resolver) Weather(ctx context.Context, args struct{ City *string }) *WeatherResolver {
	city := ""
	if args.City != nil {
		city = *args.City
	}
	cur, err := r.weather.Current(ctx, city)
	if err != nil {
		r.logger.Warn("gql.weather.fallback", logging.Fields{"error": err})
		return &WeatherResolver{}
	}
	xx := "12"
	return &WeatherResolver{temperature: cur.TempC, icon: cur.Condition.Icon, xx: &xx}
}
