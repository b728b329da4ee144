package eboekhouden_test

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/verenigingen/boekhouden-import/internal/eboekhouden"
)

// soapEnvelope wraps a response body in the SOAP 1.1 envelope.
func soapEnvelope(inner string) string {
	return xml.Header + `<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/"><soap:Body>` +
		inner + `</soap:Body></soap:Envelope>`
}

func soapMutationXML(id int64, date string) string {
	return fmt.Sprintf(`<cMutatieList>
		<MutatieNr>%d</MutatieNr><Soort>2</Soort><Datum>%s</Datum>
		<Rekening>1300</Rekening><RelatieCode>M-0001</RelatieCode>
		<Factuurnummer>F-%d</Factuurnummer><Bedrag>50.00</Bedrag>
		<MutatieRegels><cMutatieListRegel>
			<TegenrekeningCode>8000</TegenrekeningCode><BedragInclBTW>50.00</BedragInclBTW>
			<BTWCode>GEEN</BTWCode><Omschrijving>Contributie</Omschrijving>
		</cMutatieListRegel></MutatieRegels>
	</cMutatieList>`, id, date, id)
}

func openSessionXML(sessionID string) string {
	return soapEnvelope(`<OpenSessionResponse xmlns="http://www.e-boekhouden.nl/soap">
		<OpenSessionResult><SessionID>` + sessionID + `</SessionID></OpenSessionResult>
	</OpenSessionResponse>`)
}

func TestSOAPMutations(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Header.Get("SOAPAction") {
		case "http://www.e-boekhouden.nl/soap/OpenSession":
			fmt.Fprint(w, openSessionXML("s3ss10n"))
		case "http://www.e-boekhouden.nl/soap/GetMutaties":
			body, err := io.ReadAll(r.Body)
			require.NoError(t, err)
			assert.Contains(t, string(body), "<SessionID>s3ss10n</SessionID>")
			assert.Contains(t, string(body), "<Soort>2</Soort>")

			fmt.Fprint(w, soapEnvelope(`<GetMutatiesResponse xmlns="http://www.e-boekhouden.nl/soap">
				<GetMutatiesResult><Mutaties>`+soapMutationXML(42, "2019-03-01")+`</Mutaties></GetMutatiesResult>
			</GetMutatiesResponse>`))
		}
	}))
	defer server.Close()

	client := eboekhouden.NewSOAPClient(server.URL, "user", "sec1", "sec2", zerolog.Nop())

	mutations, err := client.Mutations(context.Background(), 2, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, mutations, 1)

	assert.Equal(t, int64(42), mutations[0].MutationNr)
	assert.Equal(t, "F-42", mutations[0].InvoiceNumber)
	require.Len(t, mutations[0].Rows, 1)
	assert.Equal(t, "8000", mutations[0].Rows[0].CounterAccount)
}

func TestSOAPSessionRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, soapEnvelope(`<OpenSessionResponse xmlns="http://www.e-boekhouden.nl/soap">
			<OpenSessionResult><ErrorMsg><LastErrorDescription>invalid credentials</LastErrorDescription></ErrorMsg></OpenSessionResult>
		</OpenSessionResponse>`))
	}))
	defer server.Close()

	client := eboekhouden.NewSOAPClient(server.URL, "user", "bad", "bad", zerolog.Nop())

	_, err := client.Mutations(context.Background(), 2, time.Time{}, time.Time{})
	assert.ErrorIs(t, err, eboekhouden.ErrSession)
}

func TestSOAPWindowSplitOnRecordCap(t *testing.T) {
	// A full window answers with the 500-record cap; the halves answer
	// with small pages. The composed result must contain both halves.
	var full strings.Builder
	for i := 0; i < 500; i++ {
		full.WriteString(soapMutationXML(int64(1000+i), "2019-03-01"))
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("SOAPAction") == "http://www.e-boekhouden.nl/soap/OpenSession" {
			fmt.Fprint(w, openSessionXML("s3ss10n"))
			return
		}

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		var mutations string
		switch {
		case strings.Contains(string(body), "<DatumVan>2019-01-01</DatumVan>") &&
			strings.Contains(string(body), "<DatumTm>2019-12-31</DatumTm>"):
			mutations = full.String()
		case strings.Contains(string(body), "<DatumVan>2019-01-01</DatumVan>"):
			mutations = soapMutationXML(1, "2019-02-01") + soapMutationXML(2, "2019-05-01")
		default:
			mutations = soapMutationXML(3, "2019-09-01")
		}

		fmt.Fprint(w, soapEnvelope(`<GetMutatiesResponse xmlns="http://www.e-boekhouden.nl/soap">
			<GetMutatiesResult><Mutaties>`+mutations+`</Mutaties></GetMutatiesResult>
		</GetMutatiesResponse>`))
	}))
	defer server.Close()

	client := eboekhouden.NewSOAPClient(server.URL, "user", "sec1", "sec2", zerolog.Nop())

	from := time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2019, 12, 31, 0, 0, 0, 0, time.UTC)

	mutations, err := client.Mutations(context.Background(), 2, from, to)
	require.NoError(t, err)
	require.Len(t, mutations, 3)
	assert.Equal(t, int64(1), mutations[0].MutationNr)
	assert.Equal(t, int64(3), mutations[2].MutationNr)
}

func TestSOAPLedgers(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("SOAPAction") == "http://www.e-boekhouden.nl/soap/OpenSession" {
			fmt.Fprint(w, openSessionXML("s3ss10n"))
			return
		}

		fmt.Fprint(w, soapEnvelope(`<GetGrootboekrekeningenResponse xmlns="http://www.e-boekhouden.nl/soap">
			<GetGrootboekrekeningenResult><Rekeningen>
				<cGrootboekrekening><ID>1</ID><Code>1010</Code><Omschrijving>Bank</Omschrijving><Categorie>FIN-bank</Categorie></cGrootboekrekening>
			</Rekeningen></GetGrootboekrekeningenResult>
		</GetGrootboekrekeningenResponse>`))
	}))
	defer server.Close()

	client := eboekhouden.NewSOAPClient(server.URL, "user", "sec1", "sec2", zerolog.Nop())

	ledgers, err := client.Ledgers(context.Background())
	require.NoError(t, err)
	require.Len(t, ledgers, 1)
	assert.Equal(t, "1010", ledgers[0].Code)
	assert.Equal(t, "Bank", ledgers[0].Name)
	assert.Equal(t, eboekhouden.CategoryBank, ledgers[0].Category)
}

func TestSOAPRelations(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("SOAPAction") == "http://www.e-boekhouden.nl/soap/OpenSession" {
			fmt.Fprint(w, openSessionXML("s3ss10n"))
			return
		}

		fmt.Fprint(w, soapEnvelope(`<GetRelatiesResponse xmlns="http://www.e-boekhouden.nl/soap">
			<GetRelatiesResult><Relaties>
				<cRelatie><ID>10</ID><Code>M-0001</Code><Bedrijf>Jansen</Bedrijf><BP>P</BP></cRelatie>
			</Relaties></GetRelatiesResult>
		</GetRelatiesResponse>`))
	}))
	defer server.Close()

	client := eboekhouden.NewSOAPClient(server.URL, "user", "sec1", "sec2", zerolog.Nop())

	relations, err := client.Relations(context.Background())
	require.NoError(t, err)
	require.Len(t, relations, 1)
	assert.Equal(t, "M-0001", relations[0].Code)
	assert.Equal(t, eboekhouden.RelationCustomer, relations[0].Kind)
}
