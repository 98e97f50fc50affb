package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openpdv/pdvhost/internal/audit"
	"github.com/openpdv/pdvhost/internal/auth"
	"github.com/openpdv/pdvhost/internal/metrics"
	"github.com/openpdv/pdvhost/internal/model"
	"github.com/openpdv/pdvhost/internal/service"
	"github.com/openpdv/pdvhost/internal/testutil"
)

type syncFixture struct {
	companies *testutil.MemorySource[model.Company]
	products  *testutil.MemorySource[model.Product]
	notes     *testutil.MemorySource[model.FiscalNote]
	users     *testutil.MemorySource[model.User]
	metrics   *metrics.InMemoryRecorder
	audits    *recordingAuditor
	router    chi.Router
}

type recordingAuditor struct {
	mu     sync.Mutex
	events []audit.EventPayload
}

func (a *recordingAuditor) Record(e audit.EventPayload) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, e)
}

func (a *recordingAuditor) recorded() []audit.EventPayload {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]audit.EventPayload(nil), a.events...)
}

var cutoff = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

func newSyncFixture(t *testing.T) *syncFixture {
	t.Helper()
	f := &syncFixture{
		companies: testutil.NewMemorySource(model.EntityCompany, model.CompanyID.Ref(),
			model.Company{ID: 1, Name: "Mercado Central"},
			model.Company{ID: 2, Name: "Contabil Silva", Accountant: true},
		),
		products: testutil.NewMemorySource(model.EntityProduct, model.ProductID.Ref(),
			model.Product{ID: 1, Description: "Arroz 5kg", CreatedAt: cutoff.Add(-time.Hour), UpdatedAt: cutoff.Add(time.Hour)},
			model.Product{ID: 2, Description: "Feijao 1kg", CreatedAt: cutoff.Add(time.Hour), UpdatedAt: cutoff.Add(time.Hour)},
		),
		notes: testutil.NewMemorySource(model.EntityFiscalNote, model.FiscalNoteID.Ref(),
			model.FiscalNote{ID: 1, Number: 41},
		),
		users:   testutil.NewMemorySource[model.User](model.EntityUser, model.UserID.Ref()),
		metrics: metrics.NewInMemory(),
		audits:  &recordingAuditor{},
	}
	svc := service.NewSyncService(service.Sources{
		Companies: f.companies,
		Devices: testutil.NewMemorySource(model.EntityDevice, model.DeviceID.Ref(),
			model.Device{ID: 7, Serial: "ECF-7"},
		),
		Users:        f.users,
		PaymentTypes: testutil.NewMemorySource[model.PaymentType](model.EntityPaymentType, model.PaymentTypeID.Ref()),
		Packagings:   testutil.NewMemorySource[model.Packaging](model.EntityPackaging, model.PackagingID.Ref()),
		Products:     f.products,
		FiscalNotes:  f.notes,
		Seed:         &testutil.StaticSeed{Value: 100},
	}, nil, nil)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := chi.NewRouter()
	h := NewSyncHandler(svc, logger, f.metrics)
	h.SetAuditor(f.audits)
	r.Route(BasePath, h.Mount)
	f.router = r
	return f
}

func (f *syncFixture) get(t *testing.T, target string, p *model.Principal) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if p != nil {
		req = req.WithContext(auth.ContextWithPrincipal(req.Context(), p))
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var body ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestSync_FiscalNumberIsPlainText(t *testing.T) {
	f := newSyncFixture(t)

	rec := f.get(t, "/openpdv/host/nfe", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "42", rec.Body.String())
}

func TestSync_CompanyAndAccountant(t *testing.T) {
	f := newSyncFixture(t)

	rec := f.get(t, "/openpdv/host/empresa", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var c model.Company
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&c))
	assert.Equal(t, "Mercado Central", c.Name)

	rec = f.get(t, "/openpdv/host/contador", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&c))
	assert.True(t, c.Accountant)
}

func TestSync_DeviceUsesPrincipal(t *testing.T) {
	f := newSyncFixture(t)

	rec := f.get(t, "/openpdv/host/impressora", &model.Principal{Role: model.RoleTerminal, DeviceSerial: "ECF-7"})
	require.Equal(t, http.StatusOK, rec.Code)
	var d model.Device
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&d))
	assert.Equal(t, int64(7), d.ID)

	rec = f.get(t, "/openpdv/host/impressora", &model.Principal{Role: model.RoleAdmin})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "record not found", decodeError(t, rec).Message)
}

func TestSync_EmptyListIsArray(t *testing.T) {
	f := newSyncFixture(t)

	rec := f.get(t, "/openpdv/host/usuario", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestSync_ProductParams(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		wantStatus int
		wantIDs    []int64
		wantCalls  int
	}{
		{"new after cutoff", "/openpdv/host/produtoNovo?data=2024-05-01T00:00:00Z", http.StatusOK, []int64{2}, 1},
		{"updated after cutoff", "/openpdv/host/produtoAtualizado?data=2024-05-01T00:00:00Z", http.StatusOK, []int64{1}, 1},
		{"malformed date is ignored", "/openpdv/host/produtoNovo?data=garbage", http.StatusOK, []int64{1, 2}, 1},
		{"absent date", "/openpdv/host/produtoNovo", http.StatusOK, []int64{1, 2}, 1},
		{"non-integer page", "/openpdv/host/produtoNovo?pagina=abc", http.StatusBadRequest, nil, 0},
		{"negative limit", "/openpdv/host/produtoAtualizado?limite=-1", http.StatusBadRequest, nil, 0},
		{"page beyond data", "/openpdv/host/produtoNovo?pagina=5&limite=10", http.StatusOK, []int64{}, 1},
		{"limit above page cap", "/openpdv/host/produtoNovo?limite=5001", http.StatusBadRequest, nil, 0},
		{"offset overflow", "/openpdv/host/produtoAtualizado?pagina=2147483647&limite=2", http.StatusBadRequest, nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newSyncFixture(t)

			rec := f.get(t, tt.target, nil)

			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantCalls, f.products.Calls())
			if tt.wantStatus != http.StatusOK {
				body := decodeError(t, rec)
				assert.Equal(t, "invalid request parameters", body.Message)
				assert.NotEmpty(t, body.Cause)
				return
			}
			var rows []model.Product
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&rows))
			ids := make([]int64, 0, len(rows))
			for _, p := range rows {
				ids = append(ids, p.ID)
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}
}

func TestSync_PagingReachesDispatcher(t *testing.T) {
	f := newSyncFixture(t)

	rec := f.get(t, "/openpdv/host/produtoAtualizado?data=2024-05-01T00:00:00Z&pagina=2&limite=20", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	sel := f.products.Selections()
	require.Len(t, sel, 1)
	assert.Equal(t, 40, sel[0].Offset)
	assert.Equal(t, 20, sel[0].Limit)
	assert.NotNil(t, sel[0].Where)
}

func TestSync_FailureMapping(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(f *syncFixture)
		target     string
		wantStatus int
		wantCause  string
	}{
		{
			name:       "collaborator failure",
			setup:      func(f *syncFixture) { f.users.FailWith(errors.New("connection refused")) },
			target:     "/openpdv/host/usuario",
			wantStatus: http.StatusInternalServerError,
			wantCause:  "list users",
		},
		{
			name: "collaborator timeout",
			setup: func(f *syncFixture) {
				f.notes.FailWith(fmt.Errorf("query: %w", context.DeadlineExceeded))
			},
			target:     "/openpdv/host/nfe",
			wantStatus: http.StatusServiceUnavailable,
			wantCause:  "max fiscal number",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newSyncFixture(t)
			tt.setup(f)

			rec := f.get(t, tt.target, nil)

			require.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantCause != "" {
				body := decodeError(t, rec)
				assert.Equal(t, "unable to read host data", body.Message)
				assert.Equal(t, tt.wantCause, body.Cause)
			}
		})
	}
}

func TestSync_IntegrityConflict(t *testing.T) {
	f := newSyncFixture(t)
	svc := service.NewSyncService(service.Sources{
		Companies: testutil.NewMemorySource(model.EntityCompany, model.CompanyID.Ref(),
			model.Company{ID: 1}, model.Company{ID: 2},
		),
	}, nil, nil)
	r := chi.NewRouter()
	r.Route(BasePath, NewSyncHandler(svc, slog.New(slog.NewTextHandler(io.Discard, nil)), f.metrics).Mount)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/openpdv/host/empresa", nil))

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSync_RecordsMetrics(t *testing.T) {
	f := newSyncFixture(t)

	f.get(t, "/openpdv/host/produtoNovo", nil)
	f.get(t, "/openpdv/host/produtoNovo?pagina=x", nil)

	snap := f.metrics.Snapshot()
	assert.Equal(t, uint64(2), snap.SyncRequests[EndpointNewProducts])
	assert.Equal(t, uint64(1), snap.SyncErrors[EndpointNewProducts])
	assert.Equal(t, uint64(2), snap.RowsServed[EndpointNewProducts])
	assert.Equal(t, uint64(2), snap.DurationCount)
}

func TestSync_AuditsAuthorizedRequests(t *testing.T) {
	f := newSyncFixture(t)
	p := &model.Principal{AccountID: "acc-7", Role: model.RoleTerminal}

	rec := f.get(t, "/openpdv/host/produtoNovo?data=2024-05-01T00:00:00Z", p)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = f.get(t, "/openpdv/host/produtoNovo?pagina=x", p)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	// Requests without a principal never reach the sync routes in
	// production and are not audited.
	f.get(t, "/openpdv/host/nfe", nil)

	events := f.audits.recorded()
	require.Len(t, events, 2)

	ok := events[0]
	assert.Equal(t, "acc-7", ok.AccountID)
	assert.Equal(t, EndpointNewProducts, ok.Endpoint)
	assert.Equal(t, http.StatusOK, ok.Status)
	assert.Equal(t, 1, ok.Rows)
	assert.NoError(t, ok.Validate())

	bad := events[1]
	assert.Equal(t, http.StatusBadRequest, bad.Status)
	assert.Zero(t, bad.Rows)
	assert.NotEqual(t, ok.EventID, bad.EventID)
}
