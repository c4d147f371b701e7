package gql

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/require"

	"github.com/mikecbrant/distro-backend/internal/testutil"
	"github.com/mikecbrant/distro-backend/internal/utils/logging"
)

func weatherServer(t *testing.T, status int, body string) (*httptest.Server, *url.URL) {
	t.Helper()
	seen := &url.URL{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*seen = *r.URL
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, seen
}

func TestWeatherClient_Current(t *testing.T) {
	srv, seen := weatherServer(t, 200, `{"current":{"temp_c":17.5,"condition":{"icon":"//cdn/sun.png"}}}`)
	c := NewWeatherClient(srv.URL+"/", "k1", srv.Client(), nil)

	cur, err := c.Current(context.Background(), "London")
	require.NoError(t, err)
	require.Equal(t, 17.5, cur.TempC)
	require.Equal(t, "//cdn/sun.png", cur.Condition.Icon)
	require.Equal(t, "/current.json", seen.Path)
	require.Equal(t, "k1", seen.Query().Get("key"))
	require.Equal(t, "London", seen.Query().Get("q"))
	require.Equal(t, "no", seen.Query().Get("aqi"))
}

func TestWeatherClient_Errors(t *testing.T) {
	srv, _ := weatherServer(t, 403, `{"error":{"message":"bad key"}}`)
	_, err := NewWeatherClient(srv.URL, "k", srv.Client(), nil).Current(context.Background(), "x")
	require.Error(t, err)

	srv, _ = weatherServer(t, 200, `{}`)
	_, err = NewWeatherClient(srv.URL, "k", srv.Client(), nil).Current(context.Background(), "x")
	require.Error(t, err)
}

type stubWeather struct {
	cur  Current
	err  error
	city string
}

func (s *stubWeather) Current(_ context.Context, city string) (Current, error) {
	s.city = city
	return s.cur, s.err
}

func exec(t *testing.T, src WeatherSource, log logging.Logger, req events.APIGatewayProxyRequest) map[string]any {
	t.Helper()
	schema, err := NewSchema(src, log)
	require.NoError(t, err)
	resp, err := NewHandler(schema, log).Handle(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &out))
	return out
}

func TestHandle_WeatherQuery(t *testing.T) {
	src := &stubWeather{}
	src.cur.TempC = 21
	src.cur.Condition.Icon = "sun"
	out := exec(t, src, nil, events.APIGatewayProxyRequest{
		HTTPMethod: "POST",
		Body:       `{"query":"query W($c: String) { weather(city: $c) { temperature icon xx } }","variables":{"c":"Leeds"}}`,
	})
	require.Equal(t, "Leeds", src.city)
	w := out["data"].(map[string]any)["weather"].(map[string]any)
	require.Equal(t, 21.0, w["temperature"])
	require.Equal(t, "sun", w["icon"])
	require.Equal(t, "12", w["xx"])
}

func TestHandle_WeatherFallback(t *testing.T) {
	log := &testutil.BufferLogger{}
	out := exec(t, &stubWeather{err: errors.New("upstream down")}, log, events.APIGatewayProxyRequest{
		HTTPMethod:            "GET",
		QueryStringParameters: map[string]string{"query": `{ weather(city: "Paris") { temperature icon xx } }`},
	})
	_, hasErrors := out["errors"]
	require.False(t, hasErrors)
	w := out["data"].(map[string]any)["weather"].(map[string]any)
	require.Equal(t, 0.0, w["temperature"])
	require.Equal(t, "", w["icon"])
	require.Nil(t, w["xx"])
	require.True(t, log.Has("warn", "gql.weather.fallback"))
}

func TestHandle_BadRequests(t *testing.T) {
	schema, err := NewSchema(&stubWeather{}, nil)
	require.NoError(t, err)
	h := NewHandler(schema, nil)

	resp, err := h.Handle(context.Background(), events.APIGatewayProxyRequest{HTTPMethod: "POST", Body: "nope"})
	require.NoError(t, err)
	require.Equal(t, 400, resp.StatusCode)

	resp, _ = h.Handle(context.Background(), events.APIGatewayProxyRequest{HTTPMethod: "POST", Body: `{"query":""}`})
	require.Equal(t, 400, resp.StatusCode)

	resp, _ = h.Handle(context.Background(), events.APIGatewayProxyRequest{HTTPMethod: "OPTIONS"})
	require.Equal(t, 204, resp.StatusCode)
}

func TestHandle_SchemaErrorsAre200(t *testing.T) {
	out := exec(t, &stubWeather{}, nil, events.APIGatewayProxyRequest{HTTPMethod: "POST", Body: `{"query":"{ nope }"}`})
	require.NotEmpty(t, out["errors"])
}
