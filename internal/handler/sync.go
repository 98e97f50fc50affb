package handler

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/openpdv/pdvhost/internal/audit"
	"github.com/openpdv/pdvhost/internal/auth"
	"github.com/openpdv/pdvhost/internal/metrics"
	"github.com/openpdv/pdvhost/internal/middleware"
	"github.com/openpdv/pdvhost/internal/query"
	"github.com/openpdv/pdvhost/internal/service"
)

// BasePath is the root of the sync routes.
const BasePath = "/openpdv/host"

// Endpoint names, also used as metric labels.
const (
	EndpointFiscalNumber    = "nfe"
	EndpointCompany         = "empresa"
	EndpointAccountant      = "contador"
	EndpointDevice          = "impressora"
	EndpointUsers           = "usuario"
	EndpointPaymentTypes    = "tipo_pagamento"
	EndpointPackagings      = "embalagem"
	EndpointNewProducts     = "produtoNovo"
	EndpointUpdatedProducts = "produtoAtualizado"
)

const (
	contentTypeText          = "text/plain; charset=utf-8"
	productParamsDescription = "data: cutoff, pagina: zero-based page, limite: page size (0 = all)"
)

var productParams = []string{"data", "pagina", "limite"}

// Endpoints returns the sync route catalogue.
func Endpoints() []Endpoint {
	get := func(name, produces, desc string, params ...string) Endpoint {
		return Endpoint{
			Method:      http.MethodGet,
			Path:        BasePath + "/" + name,
			Params:      params,
			Produces:    produces,
			Description: desc,
		}
	}
	return []Endpoint{
		get(EndpointFiscalNumber, "text/plain", "next fiscal document number"),
		get(EndpointCompany, "application/json", "store owner company"),
		get(EndpointAccountant, "application/json", "accounting office"),
		get(EndpointDevice, "application/json", "fiscal printer bound to the caller"),
		get(EndpointUsers, "application/json", "operators ordered by id"),
		get(EndpointPaymentTypes, "application/json", "payment types ordered by id"),
		get(EndpointPackagings, "application/json", "packagings ordered by id"),
		get(EndpointNewProducts, "application/json", "products created after data; "+productParamsDescription, productParams...),
		get(EndpointUpdatedProducts, "application/json", "products updated after data that existed before it; "+productParamsDescription, productParams...),
	}
}

// Auditor receives one event per served sync request.
type Auditor interface {
	Record(event audit.EventPayload)
}

// SyncHandler serves the terminal sync endpoints.
type SyncHandler struct {
	svc     *service.SyncService
	logger  *slog.Logger
	metrics metrics.Recorder
	auditor Auditor
}

// NewSyncHandler creates a new SyncHandler.
func NewSyncHandler(svc *service.SyncService, logger *slog.Logger, recorder metrics.Recorder) *SyncHandler {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &SyncHandler{svc: svc, logger: logger, metrics: recorder}
}

// SetAuditor enables the sync audit trail.
func (h *SyncHandler) SetAuditor(a Auditor) {
	h.auditor = a
}

// Mount registers the sync endpoints on r. Authentication is applied by
// the caller.
func (h *SyncHandler) Mount(r chi.Router) {
	r.Get("/"+EndpointFiscalNumber, h.serve(EndpointFiscalNumber, h.fiscalNumber))
	r.Get("/"+EndpointCompany, h.serve(EndpointCompany, h.company))
	r.Get("/"+EndpointAccountant, h.serve(EndpointAccountant, h.accountant))
	r.Get("/"+EndpointDevice, h.serve(EndpointDevice, h.device))
	r.Get("/"+EndpointUsers, h.serve(EndpointUsers, h.users))
	r.Get("/"+EndpointPaymentTypes, h.serve(EndpointPaymentTypes, h.paymentTypes))
	r.Get("/"+EndpointPackagings, h.serve(EndpointPackagings, h.packagings))
	r.Get("/"+EndpointNewProducts, h.serve(EndpointNewProducts, h.newProducts))
	r.Get("/"+EndpointUpdatedProducts, h.serve(EndpointUpdatedProducts, h.updatedProducts))
}

// reply is the outcome of an endpoint: a body and the number of records in
// it, or an error.
type reply struct {
	body any
	text string
	rows int
}

type endpointFunc func(r *http.Request) (reply, error)

func (h *SyncHandler) serve(endpoint string, fn endpointFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		res, err := fn(r)

		status := http.StatusOK
		switch {
		case err != nil:
			status = h.writeFailure(w, r, endpoint, err)
		case res.body == nil:
			w.Header().Set("Content-Type", contentTypeText)
			w.WriteHeader(status)
			_, _ = w.Write([]byte(res.text))
		default:
			writeJSON(w, status, res.body)
		}

		took := time.Since(start)
		h.metrics.IncSyncRequest(endpoint, status)
		h.metrics.ObserveSyncDuration(endpoint, took)
		if err == nil {
			h.metrics.ObserveRowsServed(endpoint, res.rows)
		} else {
			res.rows = 0
		}
		h.audit(r, endpoint, status, res.rows, took, start)
	}
}

func (h *SyncHandler) audit(r *http.Request, endpoint string, status, rows int, took time.Duration, at time.Time) {
	ctx := r.Context()
	account := auth.AccountIDFromContext(ctx)
	if h.auditor == nil || account == "" {
		return
	}
	h.auditor.Record(audit.NewPayload(
		account,
		endpoint,
		status,
		rows,
		middleware.GetRequestID(ctx),
		clientIP(r),
		took,
		at,
	))
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (h *SyncHandler) writeFailure(w http.ResponseWriter, r *http.Request, endpoint string, err error) int {
	var (
		ve *query.ValidationError
		ce *service.CollaboratorError
	)
	switch {
	case errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, "invalid request parameters", ve.Error())
		return http.StatusBadRequest
	case errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusNotFound, "record not found", endpoint)
		return http.StatusNotFound
	case errors.Is(err, service.ErrIntegrity):
		h.logger.ErrorContext(r.Context(), "integrity violation",
			"endpoint", endpoint,
			"account_id", auth.AccountIDFromContext(r.Context()),
			"error", err,
		)
		writeError(w, http.StatusConflict, "more than one record matched", endpoint)
		return http.StatusConflict
	}

	status := http.StatusInternalServerError
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		status = http.StatusServiceUnavailable
	}
	cause := endpoint
	if errors.As(err, &ce) {
		cause = ce.Op
	}
	h.logger.ErrorContext(r.Context(), "sync request failed",
		"endpoint", endpoint,
		"account_id", auth.AccountIDFromContext(r.Context()),
		"status", status,
		"error", err,
	)
	writeError(w, status, "unable to read host data", cause)
	return status
}

// GET /openpdv/host/nfe
func (h *SyncHandler) fiscalNumber(r *http.Request) (reply, error) {
	n, err := h.svc.NextFiscalNumber(r.Context())
	if err != nil {
		return reply{}, err
	}
	return reply{text: strconv.FormatInt(n, 10), rows: 1}, nil
}

// GET /openpdv/host/empresa
func (h *SyncHandler) company(r *http.Request) (reply, error) {
	c, err := h.svc.Company(r.Context())
	if err != nil {
		return reply{}, err
	}
	return reply{body: c, rows: 1}, nil
}

// GET /openpdv/host/contador
func (h *SyncHandler) accountant(r *http.Request) (reply, error) {
	c, err := h.svc.Accountant(r.Context())
	if err != nil {
		return reply{}, err
	}
	return reply{body: c, rows: 1}, nil
}

// GET /openpdv/host/impressora
func (h *SyncHandler) device(r *http.Request) (reply, error) {
	d, err := h.svc.Device(r.Context(), auth.PrincipalFromContext(r.Context()))
	if err != nil {
		return reply{}, err
	}
	return reply{body: d, rows: 1}, nil
}

// GET /openpdv/host/usuario
func (h *SyncHandler) users(r *http.Request) (reply, error) {
	rows, err := h.svc.Users(r.Context())
	return reply{body: rows, rows: len(rows)}, err
}

// GET /openpdv/host/tipo_pagamento
func (h *SyncHandler) paymentTypes(r *http.Request) (reply, error) {
	rows, err := h.svc.PaymentTypes(r.Context())
	return reply{body: rows, rows: len(rows)}, err
}

// GET /openpdv/host/embalagem
func (h *SyncHandler) packagings(r *http.Request) (reply, error) {
	rows, err := h.svc.Packagings(r.Context())
	return reply{body: rows, rows: len(rows)}, err
}

// GET /openpdv/host/produtoNovo?data&pagina&limite
func (h *SyncHandler) newProducts(r *http.Request) (reply, error) {
	q, err := productQuery(r)
	if err != nil {
		return reply{}, err
	}
	rows, err := h.svc.NewProducts(r.Context(), q)
	return reply{body: rows, rows: len(rows)}, err
}

// GET /openpdv/host/produtoAtualizado?data&pagina&limite
func (h *SyncHandler) updatedProducts(r *http.Request) (reply, error) {
	q, err := productQuery(r)
	if err != nil {
		return reply{}, err
	}
	rows, err := h.svc.UpdatedProducts(r.Context(), q)
	return reply{body: rows, rows: len(rows)}, err
}

func productQuery(r *http.Request) (service.ProductQuery, error) {
	values := r.URL.Query()
	page, err := intParam(values.Get("pagina"), "pagina")
	if err != nil {
		return service.ProductQuery{}, err
	}
	limit, err := intParam(values.Get("limite"), "limite")
	if err != nil {
		return service.ProductQuery{}, err
	}
	return service.ProductQuery{Since: values.Get("data"), Page: page, Limit: limit}, nil
}

// intParam reads an optional integer parameter. Absent means zero.
func intParam(raw, name string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &query.ValidationError{Field: name, Message: "must be an integer"}
	}
	return n, nil
}
