package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/javajoker/multistore-backend/internal/config"
)

// Credentials address one shop. AccessToken is the decrypted Admin API token.
type Credentials struct {
	Domain      string
	AccessToken string
	APIVersion  string
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

// Client talks to the Shopify Admin GraphQL API of any number of shops. Each
// shop gets its own rate limiter.
type Client struct {
	config     config.ShopifyConfig
	httpClient *http.Client
	backoff    func(attempt int) time.Duration

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewClient(cfg config.ShopifyConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &Client{
		config:     cfg,
		httpClient: httpClient,
		backoff:    retryDelay,
		limiters:   make(map[string]*rate.Limiter),
	}
}

func (c *Client) limiter(domain string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()

	l, ok := c.limiters[domain]
	if !ok {
		limit := rate.Limit(c.config.RequestsPerSecond)
		if c.config.RequestsPerSecond <= 0 {
			limit = rate.Inf
		}
		burst := c.config.Burst
		if burst < 1 {
			burst = 1
		}
		l = rate.NewLimiter(limit, burst)
		c.limiters[domain] = l
	}
	return l
}

func (c *Client) endpoint(creds Credentials) (string, error) {
	base := strings.TrimSpace(c.config.BaseURLOverride)
	if base == "" {
		base = strings.TrimSpace(creds.Domain)
	}
	if base == "" {
		return "", errors.New("shopify shop domain is empty")
	}
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "https://" + base
	}
	base = strings.TrimRight(base, "/")

	version := creds.APIVersion
	if version == "" {
		version = c.config.APIVersion
	}
	if version == "" {
		return "", errors.New("shopify api version is empty")
	}
	return base + "/admin/api/" + version + "/graphql.json", nil
}

// graphqlRequest posts one query, retrying throttled and transient failures
// with exponential backoff.
func (c *Client) graphqlRequest(ctx context.Context, creds Credentials, query string, variables map[string]any, out any) error {
	endpoint, err := c.endpoint(creds)
	if err != nil {
		return err
	}

	bodyBytes, err := json.Marshal(graphQLRequest{
		Query:     strings.TrimSpace(query),
		Variables: variables,
	})
	if err != nil {
		return err
	}

	limiter := c.limiter(creds.Domain)
	for attempt := 0; ; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}

		err = c.doGraphQL(ctx, creds, endpoint, bodyBytes, out)
		if err == nil || !isRetryable(err) || attempt >= c.config.MaxRetries {
			return err
		}

		delay := c.backoff(attempt)
		logrus.WithFields(logrus.Fields{
			"shop":    creds.Domain,
			"attempt": attempt + 1,
			"delay":   delay.String(),
		}).WithError(err).Warn("Retrying Shopify request")
		if err := sleepWithContext(ctx, delay); err != nil {
			return err
		}
	}
}

func (c *Client) doGraphQL(ctx context.Context, creds Credentials, endpoint string, body []byte, out any) error {
	raw, err := c.shopifyAPIRequest(ctx, creds, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}

	var resp GraphQLResponse[json.RawMessage]
	if err := json.Unmarshal(raw, &resp); err != nil {
		return err
	}
	if len(resp.Errors) > 0 {
		if isThrottleGraphQLError(resp.Errors) {
			return &throttledError{message: formatGraphQLErrors(resp.Errors)}
		}
		return fmt.Errorf("shopify graphql errors: %s", formatGraphQLErrors(resp.Errors))
	}
	if out == nil {
		return nil
	}
	if len(resp.Data) == 0 {
		return errors.New("shopify graphql response missing data")
	}
	return json.Unmarshal(resp.Data, out)
}

func (c *Client) shopifyAPIRequest(ctx context.Context, creds Credentials, method string, endpoint string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Shopify-Access-Token", creds.AccessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newHTTPStatusError(resp.StatusCode, resp.Status, respBody)
	}

	return respBody, nil
}
