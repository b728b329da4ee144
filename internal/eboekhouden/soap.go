package eboekhouden

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// soapMaxRecords is the hard cap of the legacy API: a single GetMutaties
// call never returns more than 500 records. The iterator splits the date
// window when it hits the cap.
const soapMaxRecords = 500

var errWindowFull = errors.New("date window returned the maximum record count")

// SOAPClient talks to the legacy SOAP API. It is used to warm the lookup
// cache (the SOAP responses carry codes directly) and as a fallback when the
// REST session cannot be established.
type SOAPClient struct {
	endpoint      string
	username      string
	securityCode1 string
	securityCode2 string
	client        *http.Client
	log           zerolog.Logger

	mu        sync.Mutex
	sessionID string
}

// NewSOAPClient returns a client for the SOAP endpoint.
func NewSOAPClient(endpoint, username, securityCode1, securityCode2 string, log zerolog.Logger) *SOAPClient {
	return &SOAPClient{
		endpoint:      endpoint,
		username:      username,
		securityCode1: securityCode1,
		securityCode2: securityCode2,
		client:        &http.Client{Timeout: callTimeout},
		log:           log.With().Str("api", "soap").Logger(),
	}
}

type soapEnvelope struct {
	XMLName xml.Name `xml:"soap:Envelope"`
	XMLNSs  string   `xml:"xmlns:soap,attr"`
	Body    any      `xml:"soap:Body"`
}

type soapResponseEnvelope struct {
	XMLName xml.Name `xml:"Envelope"`
	Body    struct {
		Inner []byte `xml:",innerxml"`
	} `xml:"Body"`
}

// call performs one SOAP request with the same retry policy as the REST
// client: up to three attempts with exponential back-off on 5xx and
// transport errors.
func (c *SOAPClient) call(ctx context.Context, action string, request, response any) error {
	payload, err := xml.Marshal(soapEnvelope{
		XMLNSs: "http://schemas.xmlsoap.org/soap/envelope/",
		Body:   request,
	})
	if err != nil {
		return err
	}

	body := append([]byte(xml.Header), payload...)

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * 500 * time.Millisecond
			c.log.Warn().Str("action", action).Int("attempt", attempt).Err(lastErr).Msg("retrying request")

			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "text/xml; charset=utf-8")
		req.Header.Set("SOAPAction", "http://www.e-boekhouden.nl/soap/"+action)

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		raw, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}

		switch {
		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("HTTP %d from %s", resp.StatusCode, action)
			continue
		case resp.StatusCode >= 400:
			return fmt.Errorf("HTTP %d from %s: %s", resp.StatusCode, action, raw)
		}

		var envelope soapResponseEnvelope
		if err := xml.Unmarshal(raw, &envelope); err != nil {
			return fmt.Errorf("malformed SOAP response for %s: %w", action, err)
		}

		return xml.Unmarshal(envelope.Body.Inner, response)
	}

	return fmt.Errorf("%w: %s: %v", ErrPaging, action, lastErr)
}

type openSessionRequest struct {
	XMLName       xml.Name `xml:"OpenSession"`
	XMLNS         string   `xml:"xmlns,attr"`
	Username      string   `xml:"Username"`
	SecurityCode1 string   `xml:"SecurityCode1"`
	SecurityCode2 string   `xml:"SecurityCode2"`
}

type openSessionResponse struct {
	XMLName xml.Name `xml:"OpenSessionResponse"`
	Result  struct {
		SessionID    string `xml:"SessionID"`
		ErrorMessage string `xml:"ErrorMsg>LastErrorDescription"`
	} `xml:"OpenSessionResult"`
}

// ensureSession opens a SOAP session when none is cached. The lock spans
// the exchange so concurrent runs share one session.
func (c *SOAPClient) ensureSession(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sessionID != "" {
		return c.sessionID, nil
	}

	ctx, cancel := context.WithTimeout(ctx, tokenTimeout)
	defer cancel()

	var response openSessionResponse
	err := c.call(ctx, "OpenSession", openSessionRequest{
		XMLNS:         "http://www.e-boekhouden.nl/soap",
		Username:      c.username,
		SecurityCode1: c.securityCode1,
		SecurityCode2: c.securityCode2,
	}, &response)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSession, err)
	}

	if response.Result.SessionID == "" {
		return "", fmt.Errorf("%w: %s", ErrSession, response.Result.ErrorMessage)
	}

	c.sessionID = response.Result.SessionID
	return c.sessionID, nil
}

type getMutatiesRequest struct {
	XMLName       xml.Name `xml:"GetMutaties"`
	XMLNS         string   `xml:"xmlns,attr"`
	SessionID     string   `xml:"SessionID"`
	SecurityCode2 string   `xml:"SecurityCode2"`
	Filter        struct {
		Soort    int    `xml:"Soort"`
		DateFrom string `xml:"DatumVan"`
		DateTo   string `xml:"DatumTm"`
	} `xml:"cFilter"`
}

type getMutatiesResponse struct {
	XMLName xml.Name `xml:"GetMutatiesResponse"`
	Result  struct {
		Mutations    []SoapMutation `xml:"Mutaties>cMutatieList"`
		ErrorMessage string         `xml:"ErrorMsg>LastErrorDescription"`
	} `xml:"GetMutatiesResult"`
}

// Mutations returns all mutations of one type in [from, to]. When a window
// hits the 500-record cap it is split in half and both halves are fetched
// recursively, so the composed result is complete and deterministic.
func (c *SOAPClient) Mutations(ctx context.Context, mutationType int, from, to time.Time) ([]SoapMutation, error) {
	mutations, err := c.mutationsWindow(ctx, mutationType, from, to)
	if errors.Is(err, errWindowFull) {
		if to.Sub(from) < 24*time.Hour {
			// Cannot split any further; accept the capped page
			return mutations, nil
		}

		mid := from.Add(to.Sub(from) / 2).Truncate(24 * time.Hour)

		left, err := c.Mutations(ctx, mutationType, from, mid)
		if err != nil {
			return nil, err
		}
		right, err := c.Mutations(ctx, mutationType, mid.AddDate(0, 0, 1), to)
		if err != nil {
			return nil, err
		}

		return append(left, right...), nil
	}

	return mutations, err
}

func (c *SOAPClient) mutationsWindow(ctx context.Context, mutationType int, from, to time.Time) ([]SoapMutation, error) {
	sessionID, err := c.ensureSession(ctx)
	if err != nil {
		return nil, err
	}

	request := getMutatiesRequest{
		XMLNS:         "http://www.e-boekhouden.nl/soap",
		SessionID:     sessionID,
		SecurityCode2: c.securityCode2,
	}
	request.Filter.Soort = mutationType
	if !from.IsZero() {
		request.Filter.DateFrom = from.Format("2006-01-02")
	}
	if !to.IsZero() {
		request.Filter.DateTo = to.Format("2006-01-02")
	}

	var response getMutatiesResponse
	if err := c.call(ctx, "GetMutaties", request, &response); err != nil {
		return nil, err
	}
	if response.Result.ErrorMessage != "" {
		return nil, fmt.Errorf("GetMutaties: %s", response.Result.ErrorMessage)
	}

	if len(response.Result.Mutations) >= soapMaxRecords {
		return response.Result.Mutations, errWindowFull
	}

	return response.Result.Mutations, nil
}

type getLedgersRequest struct {
	XMLName       xml.Name `xml:"GetGrootboekrekeningen"`
	XMLNS         string   `xml:"xmlns,attr"`
	SessionID     string   `xml:"SessionID"`
	SecurityCode2 string   `xml:"SecurityCode2"`
}

type soapLedger struct {
	ID          int64  `xml:"ID"`
	Code        string `xml:"Code"`
	Description string `xml:"Omschrijving"`
	Category    string `xml:"Categorie"`
}

type getLedgersResponse struct {
	XMLName xml.Name `xml:"GetGrootboekrekeningenResponse"`
	Result  struct {
		Ledgers      []soapLedger `xml:"Rekeningen>cGrootboekrekening"`
		ErrorMessage string       `xml:"ErrorMsg>LastErrorDescription"`
	} `xml:"GetGrootboekrekeningenResult"`
}

// Ledgers returns the complete external chart of accounts.
func (c *SOAPClient) Ledgers(ctx context.Context) ([]LedgerEntry, error) {
	sessionID, err := c.ensureSession(ctx)
	if err != nil {
		return nil, err
	}

	var response getLedgersResponse
	err = c.call(ctx, "GetGrootboekrekeningen", getLedgersRequest{
		XMLNS:         "http://www.e-boekhouden.nl/soap",
		SessionID:     sessionID,
		SecurityCode2: c.securityCode2,
	}, &response)
	if err != nil {
		return nil, err
	}
	if response.Result.ErrorMessage != "" {
		return nil, fmt.Errorf("GetGrootboekrekeningen: %s", response.Result.ErrorMessage)
	}

	entries := make([]LedgerEntry, 0, len(response.Result.Ledgers))
	for _, l := range response.Result.Ledgers {
		entries = append(entries, LedgerEntry{
			ID:       l.ID,
			Code:     l.Code,
			Name:     l.Description,
			Category: LedgerCategory(l.Category),
		})
	}

	return entries, nil
}

type getRelationsRequest struct {
	XMLName       xml.Name `xml:"GetRelaties"`
	XMLNS         string   `xml:"xmlns,attr"`
	SessionID     string   `xml:"SessionID"`
	SecurityCode2 string   `xml:"SecurityCode2"`
}

type soapRelation struct {
	ID   int64  `xml:"ID"`
	Code string `xml:"Code"`
	Name string `xml:"Bedrijf"`
	Type string `xml:"BP"`
}

type getRelationsResponse struct {
	XMLName xml.Name `xml:"GetRelatiesResponse"`
	Result  struct {
		Relations    []soapRelation `xml:"Relaties>cRelatie"`
		ErrorMessage string         `xml:"ErrorMsg>LastErrorDescription"`
	} `xml:"GetRelatiesResult"`
}

// Relations returns all external relations.
func (c *SOAPClient) Relations(ctx context.Context) ([]RelationEntry, error) {
	sessionID, err := c.ensureSession(ctx)
	if err != nil {
		return nil, err
	}

	var response getRelationsResponse
	err = c.call(ctx, "GetRelaties", getRelationsRequest{
		XMLNS:         "http://www.e-boekhouden.nl/soap",
		SessionID:     sessionID,
		SecurityCode2: c.securityCode2,
	}, &response)
	if err != nil {
		return nil, err
	}
	if response.Result.ErrorMessage != "" {
		return nil, fmt.Errorf("GetRelaties: %s", response.Result.ErrorMessage)
	}

	entries := make([]RelationEntry, 0, len(response.Result.Relations))
	for _, r := range response.Result.Relations {
		entries = append(entries, RelationEntry{
			ID:   r.ID,
			Code: r.Code,
			Name: r.Name,
			Kind: relationKind(r.Type),
		})
	}

	return entries, nil
}
