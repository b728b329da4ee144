package eboekhouden

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var (
	// ErrSession means no access token could be obtained or refreshed.
	// This is run-fatal.
	ErrSession = errors.New("could not establish a session with the external ledger")

	// ErrPaging means a page fetch failed after all retries. Run-fatal.
	ErrPaging = errors.New("fetching a page from the external ledger failed")
)

const (
	// Tokens are valid for an hour; refresh after 55 minutes so a token
	// never expires mid-call.
	tokenLifetime = 55 * time.Minute

	callTimeout  = 30 * time.Second
	tokenTimeout = 10 * time.Second

	restMaxLimit = 2000

	maxAttempts = 3
)

// RESTClient talks to the modern REST API. The access token is exchanged
// lazily from the long-lived api key and refreshed when it ages out.
type RESTClient struct {
	baseURL  string
	apiToken string
	client   *http.Client
	log      zerolog.Logger

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewRESTClient returns a client for the REST API at baseURL.
func NewRESTClient(baseURL, apiToken string, log zerolog.Logger) *RESTClient {
	return &RESTClient{
		baseURL:  baseURL,
		apiToken: apiToken,
		client:   &http.Client{Timeout: callTimeout},
		log:      log.With().Str("api", "rest").Logger(),
	}
}

type sessionRequest struct {
	AccessToken string `json:"accessToken"`
}

type sessionResponse struct {
	Token string `json:"token"`
}

// ensureSession returns a valid bearer token, exchanging the api key when no
// token is cached or the cached one has aged out.
func (c *RESTClient) ensureSession(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	body, err := json.Marshal(sessionRequest{AccessToken: c.apiToken})
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, tokenTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/session", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSession, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("%w: token exchange returned HTTP %d", ErrSession, resp.StatusCode)
	}

	var session sessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return "", fmt.Errorf("%w: %v", ErrSession, err)
	}
	if session.Token == "" {
		return "", fmt.Errorf("%w: token exchange returned an empty token", ErrSession)
	}

	c.token = session.Token
	c.tokenExpiry = time.Now().Add(tokenLifetime)
	c.log.Debug().Time("expiry", c.tokenExpiry).Msg("session token refreshed")

	return c.token, nil
}

// get performs an authenticated GET with up to maxAttempts attempts.
// 5xx responses and transport errors are retried with exponential back-off,
// 4xx responses never are.
func (c *RESTClient) get(ctx context.Context, path string, query url.Values, out any) error {
	token, err := c.ensureSession(ctx)
	if err != nil {
		return err
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * 500 * time.Millisecond
			c.log.Warn().Str("path", path).Int("attempt", attempt).Err(lastErr).Msg("retrying request")

			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}

		switch {
		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("HTTP %d from %s", resp.StatusCode, path)
			continue
		case resp.StatusCode == http.StatusUnauthorized:
			return fmt.Errorf("%w: HTTP 401 from %s", ErrSession, path)
		case resp.StatusCode >= 400:
			// Client errors are never retried
			return fmt.Errorf("HTTP %d from %s: %s", resp.StatusCode, path, body)
		}

		return json.Unmarshal(body, out)
	}

	return fmt.Errorf("%w: %s: %v", ErrPaging, path, lastErr)
}

// listResponse is the envelope the REST API wraps all list results in.
type listResponse[T any] struct {
	Items []T `json:"items"`
	Count int `json:"count"`
}

// Mutations returns one page of shallow mutation records.
func (c *RESTClient) Mutations(ctx context.Context, mutationType int, from, to time.Time, offset, limit int) ([]RestMutation, error) {
	if limit <= 0 || limit > restMaxLimit {
		limit = restMaxLimit
	}

	query := url.Values{
		"type":   {strconv.Itoa(mutationType)},
		"limit":  {strconv.Itoa(limit)},
		"offset": {strconv.Itoa(offset)},
	}
	if !from.IsZero() {
		query.Set("from", from.Format("2006-01-02"))
	}
	if !to.IsZero() {
		query.Set("to", to.Format("2006-01-02"))
	}

	var list listResponse[RestMutation]
	err := c.get(ctx, "/v1/mutation", query, &list)
	return list.Items, err
}

// Mutation fetches one full mutation. List calls return shallow records;
// only the detail endpoint includes the rows.
func (c *RESTClient) Mutation(ctx context.Context, id int64) (RestMutation, error) {
	var mutation RestMutation
	err := c.get(ctx, "/v1/mutation/"+strconv.FormatInt(id, 10), nil, &mutation)
	return mutation, err
}

type restLedger struct {
	ID          int64  `json:"id"`
	Code        string `json:"code"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// Ledgers returns one page of the external chart of accounts.
func (c *RESTClient) Ledgers(ctx context.Context, offset, limit int) ([]LedgerEntry, error) {
	if limit <= 0 || limit > restMaxLimit {
		limit = restMaxLimit
	}

	var list listResponse[restLedger]
	err := c.get(ctx, "/v1/ledger", url.Values{
		"limit":  {strconv.Itoa(limit)},
		"offset": {strconv.Itoa(offset)},
	}, &list)
	if err != nil {
		return nil, err
	}

	entries := make([]LedgerEntry, 0, len(list.Items))
	for _, l := range list.Items {
		entries = append(entries, LedgerEntry{
			ID:       l.ID,
			Code:     l.Code,
			Name:     l.Description,
			Category: LedgerCategory(l.Category),
		})
	}

	return entries, nil
}

type restRelation struct {
	ID   int64  `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// Relations returns one page of external relations.
func (c *RESTClient) Relations(ctx context.Context, offset, limit int) ([]RelationEntry, error) {
	if limit <= 0 || limit > restMaxLimit {
		limit = restMaxLimit
	}

	var list listResponse[restRelation]
	err := c.get(ctx, "/v1/relation", url.Values{
		"limit":  {strconv.Itoa(limit)},
		"offset": {strconv.Itoa(offset)},
	}, &list)
	if err != nil {
		return nil, err
	}

	entries := make([]RelationEntry, 0, len(list.Items))
	for _, r := range list.Items {
		entries = append(entries, RelationEntry{
			ID:   r.ID,
			Code: r.Code,
			Name: r.Name,
			Kind: relationKind(r.Type),
		})
	}

	return entries, nil
}

// relationKind maps the external relation type letter to a kind.
// "P" is a private person (customer), "B" a business. Businesses appear on
// both sides, so they stay unknown until a mutation pins them down.
func relationKind(relationType string) RelationKind {
	switch relationType {
	case "P":
		return RelationCustomer
	case "B":
		return RelationUnknown
	}

	return RelationUnknown
}

type restVatCode struct {
	ID         int64  `json:"id"`
	Code       string `json:"code"`
	Percentage string `json:"percentage"`
}

// VatCodes returns one page of VAT codes.
func (c *RESTClient) VatCodes(ctx context.Context, offset, limit int) ([]VATEntry, error) {
	if limit <= 0 || limit > restMaxLimit {
		limit = restMaxLimit
	}

	var list listResponse[restVatCode]
	err := c.get(ctx, "/v1/vat", url.Values{
		"limit":  {strconv.Itoa(limit)},
		"offset": {strconv.Itoa(offset)},
	}, &list)
	if err != nil {
		return nil, err
	}

	entries := make([]VATEntry, 0, len(list.Items))
	for _, v := range list.Items {
		entry := VATEntry{ID: v.ID, Code: v.Code}
		if v.Percentage != "" {
			entry.Percentage, err = decimal.NewFromString(v.Percentage)
			if err != nil {
				return nil, fmt.Errorf("invalid percentage for VAT code %q: %w", v.Code, err)
			}
		}
		entries = append(entries, entry)
	}

	return entries, nil
}
