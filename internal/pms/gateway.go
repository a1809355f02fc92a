package pms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/avstrong/checkin/internal/logger"
	"github.com/avstrong/checkin/internal/reservation"
)

const (
	// StaticKeyPrefix marks a long-lived API key. Such keys go in x-api-key and are never refreshed.
	StaticKeyPrefix = "cbat_"

	tokenExpiryMargin = 60 * time.Second
	defaultTimeout    = 10 * time.Second
	maxBodyBytes      = 4 << 20
)

type Token struct {
	AccessToken string
	ExpiresAt   time.Time
}

type tokenSource interface {
	AccessToken(ctx context.Context) (Token, error)
}

type Config struct {
	L          *logger.Logger
	BaseURL    string
	PropertyID string
	APIKey     string
	Timeout    time.Duration
	Tokens     tokenSource
	Client     *http.Client
	Tracer     trace.Tracer
	Now        func() time.Time
}

// Gateway issues authenticated calls against the PMS vendor API.
type Gateway struct {
	l          *logger.Logger
	baseURL    string
	propertyID string
	apiKey     string
	timeout    time.Duration
	tokens     tokenSource
	client     *http.Client
	tracer     trace.Tracer
	now        func() time.Time
}

func New(conf Config) *Gateway {
	timeout := conf.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	client := conf.Client
	if client == nil {
		client = &http.Client{Timeout: timeout} //nolint:exhaustruct
	}

	tracer := conf.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("pms")
	}

	now := conf.Now
	if now == nil {
		now = time.Now
	}

	l := conf.L
	if l == nil {
		l = logger.Nop()
	}

	return &Gateway{
		l:          l,
		baseURL:    strings.TrimRight(conf.BaseURL, "/"),
		propertyID: conf.PropertyID,
		apiKey:     conf.APIKey,
		timeout:    timeout,
		tokens:     conf.Tokens,
		client:     client,
		tracer:     tracer,
		now:        now,
	}
}

// Response is the vendor envelope shared by every endpoint.
type Response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Count   int             `json:"count"`
	Total   int             `json:"total"`
}

// resolveToken prefers a cached access token that is not about to expire and
// falls back to the static key otherwise.
func (g *Gateway) resolveToken(ctx context.Context) string {
	if g.tokens == nil {
		return g.apiKey
	}

	token, err := g.tokens.AccessToken(ctx)
	if err != nil {
		if !errors.Is(err, ErrNoToken) {
			g.l.LogWarnf("Could not read PMS token cache, using static key: %v", err.Error())
		}

		return g.apiKey
	}

	if token.AccessToken == "" || !token.ExpiresAt.After(g.now().Add(tokenExpiryMargin)) {
		return g.apiKey
	}

	return token.AccessToken
}

// Call sends a GET to endpoint with params plus the configured property id.
// A 401 is retried once with a freshly resolved token.
func (g *Gateway) Call(ctx context.Context, endpoint string, params url.Values) (*Response, error) {
	ctx, span := g.tracer.Start(ctx, "pms."+endpoint)
	defer span.End()

	span.SetAttributes(attribute.String("pms.endpoint", endpoint))

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	query := url.Values{}
	for k, v := range params {
		query[k] = v
	}

	if g.propertyID != "" {
		query.Set("propertyID", g.propertyID)
	}

	target := g.baseURL + "/" + strings.TrimLeft(endpoint, "/") + "?" + query.Encode()

	for attempt := 0; attempt < 2; attempt++ {
		status, body, err := g.do(ctx, target, g.resolveToken(ctx))
		if err != nil {
			span.RecordError(err)

			return nil, fmt.Errorf("call %v: %w: %w", endpoint, reservation.ErrUnreachable, err)
		}

		if status == http.StatusUnauthorized {
			g.l.LogWarnf("PMS answered 401 on %v (attempt %d)", endpoint, attempt+1)

			continue
		}

		if status < 200 || status > 299 {
			err = fmt.Errorf("call %v: %w: status %d", endpoint, reservation.ErrUnreachable, status)
			span.RecordError(err)

			return nil, err
		}

		var resp Response
		if err := json.Unmarshal(body, &resp); err != nil {
			span.RecordError(err)

			return nil, fmt.Errorf("decode %v response: %w: %w", endpoint, reservation.ErrUnreachable, err)
		}

		return &resp, nil
	}

	span.RecordError(reservation.ErrUnauthorized)

	return nil, fmt.Errorf("call %v: %w", endpoint, reservation.ErrUnauthorized)
}

func (g *Gateway) do(ctx context.Context, target, token string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("Accept", "application/json")

	if strings.HasPrefix(token, StaticKeyPrefix) {
		req.Header.Set("x-api-key", token)
	} else {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return 0, nil, fmt.Errorf("read body: %w", err)
	}

	return resp.StatusCode, body, nil
}
