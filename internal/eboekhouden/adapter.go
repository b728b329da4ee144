package eboekhouden

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Adapter is the unified fetch surface over both APIs. It prefers REST for
// throughput and falls back to the SOAP iterator when no REST session can be
// established. A nil SOAP client disables the fallback.
type Adapter struct {
	rest      *RESTClient
	soap      *SOAPClient
	batchSize int
	log       zerolog.Logger

	// set once the REST session has failed, so subsequent calls go
	// straight to SOAP. Runs for different companies share the adapter.
	mu              sync.Mutex
	restUnavailable bool
}

// NewAdapter wires the two backends together. batchSize caps the REST page
// size; zero means the API maximum of 2000.
func NewAdapter(rest *RESTClient, soap *SOAPClient, batchSize int, log zerolog.Logger) *Adapter {
	if batchSize <= 0 || batchSize > restMaxLimit {
		batchSize = restMaxLimit
	}

	return &Adapter{
		rest:      rest,
		soap:      soap,
		batchSize: batchSize,
		log:       log.With().Str("component", "adapter").Logger(),
	}
}

// FetchMutations returns all mutations of one type in [from, to], in
// ascending external id order. REST records are fetched shallow first and
// then detailed one by one, because only the detail endpoint carries the
// rows.
func (a *Adapter) FetchMutations(ctx context.Context, mutationType int, from, to time.Time) ([]RawMutation, error) {
	if !a.restDown() {
		mutations, err := a.fetchMutationsREST(ctx, mutationType, from, to)
		if err == nil {
			return mutations, nil
		}
		if !a.failover(err) {
			return nil, err
		}
	}

	if a.soap == nil {
		return nil, ErrSession
	}

	soapMutations, err := a.soap.Mutations(ctx, mutationType, from, to)
	if err != nil {
		return nil, err
	}

	mutations := make([]RawMutation, 0, len(soapMutations))
	for i := range soapMutations {
		mutations = append(mutations, RawMutation{SOAP: &soapMutations[i]})
	}

	sortByExternalID(mutations)
	return mutations, nil
}

func (a *Adapter) fetchMutationsREST(ctx context.Context, mutationType int, from, to time.Time) ([]RawMutation, error) {
	var mutations []RawMutation

	for offset := 0; ; offset += a.batchSize {
		page, err := a.rest.Mutations(ctx, mutationType, from, to, offset, a.batchSize)
		if err != nil {
			return nil, err
		}

		for _, shallow := range page {
			detail, err := a.rest.Mutation(ctx, shallow.ID)
			if err != nil {
				return nil, err
			}
			mutations = append(mutations, RawMutation{REST: &detail})
		}

		// A short page terminates pagination
		if len(page) < a.batchSize {
			break
		}
	}

	sortByExternalID(mutations)
	return mutations, nil
}

// failover marks REST unavailable on session errors so the SOAP path takes
// over. Paging errors are not failed over: they are run-fatal either way.
func (a *Adapter) failover(err error) bool {
	if !errors.Is(err, ErrSession) || a.soap == nil {
		return false
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.restUnavailable {
		a.log.Warn().Err(err).Msg("REST session failed, falling back to SOAP")
		a.restUnavailable = true
	}

	return true
}

func (a *Adapter) restDown() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.restUnavailable
}

// FetchLedgers loads the external chart of accounts for the cache,
// paginated on the REST side.
func (a *Adapter) FetchLedgers(ctx context.Context) ([]LedgerEntry, error) {
	if !a.restDown() {
		entries, err := fetchPaged(ctx, a.rest.Ledgers)
		if err == nil {
			return entries, nil
		}
		if !a.failover(err) {
			return nil, err
		}
	}

	if a.soap == nil {
		return nil, ErrSession
	}

	return a.soap.Ledgers(ctx)
}

// FetchRelations loads all relations for the cache.
func (a *Adapter) FetchRelations(ctx context.Context) ([]RelationEntry, error) {
	if !a.restDown() {
		entries, err := fetchPaged(ctx, a.rest.Relations)
		if err == nil {
			return entries, nil
		}
		if !a.failover(err) {
			return nil, err
		}
	}

	if a.soap == nil {
		return nil, ErrSession
	}

	return a.soap.Relations(ctx)
}

// FetchVATCodes loads all VAT codes for the cache. The SOAP API has no VAT
// table; when REST is unavailable the standard Dutch codes are assumed.
func (a *Adapter) FetchVATCodes(ctx context.Context) ([]VATEntry, error) {
	if !a.restDown() {
		entries, err := fetchPaged(ctx, a.rest.VatCodes)
		if err == nil {
			return entries, nil
		}
		if !a.failover(err) {
			return nil, err
		}
	}

	return defaultVATCodes(), nil
}

// fetchPaged drains a paginated REST list endpoint. A short page terminates
// pagination.
func fetchPaged[T any](ctx context.Context, fetch func(context.Context, int, int) ([]T, error)) ([]T, error) {
	var entries []T

	for offset := 0; ; offset += restMaxLimit {
		page, err := fetch(ctx, offset, restMaxLimit)
		if err != nil {
			return nil, err
		}

		entries = append(entries, page...)

		if len(page) < restMaxLimit {
			break
		}
	}

	return entries, nil
}

func sortByExternalID(mutations []RawMutation) {
	sort.Slice(mutations, func(i, j int) bool {
		return mutations[i].ExternalID() < mutations[j].ExternalID()
	})
}

// defaultVATCodes returns the standard Dutch VAT code set used when the VAT
// table cannot be fetched.
func defaultVATCodes() []VATEntry {
	codes := []string{"GEEN", "HOOG_VERK_21", "LAAG_VERK_9", "HOOG_INK_21", "LAAG_INK_9", "BU_EU_VERK", "BI_EU_VERK"}

	entries := make([]VATEntry, 0, len(codes))
	for i, code := range codes {
		entries = append(entries, VATEntry{ID: int64(i + 1), Code: code})
	}

	return entries
}
