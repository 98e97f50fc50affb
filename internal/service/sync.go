// Package service implements the read-only sync operations served to
// point-of-sale terminals.
package service

import (
	"context"
	"errors"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/openpdv/pdvhost/internal/dateparse"
	"github.com/openpdv/pdvhost/internal/filter"
	"github.com/openpdv/pdvhost/internal/model"
	"github.com/openpdv/pdvhost/internal/query"
	"github.com/openpdv/pdvhost/internal/sequence"
)

// SeedSource supplies the fallback seed of the fiscal sequence.
type SeedSource interface {
	SequenceSeed(ctx context.Context) (int64, error)
}

// Sources are the collaborators queried by the sync operations.
type Sources struct {
	Companies    query.Source[model.Company]
	Devices      query.Source[model.Device]
	Users        query.Source[model.User]
	PaymentTypes query.Source[model.PaymentType]
	Packagings   query.Source[model.Packaging]
	Products     query.Source[model.Product]
	FiscalNotes  query.Aggregator
	Seed         SeedSource
}

// SyncService answers terminal sync requests. It holds no per-request
// state; every call builds its own filter and queries the sources again.
type SyncService struct {
	src      Sources
	dates    *dateparse.Parser
	validate *validator.Validate
	logger   *slog.Logger
}

// NewSyncService creates a SyncService. dates interprets the cutoff
// parameter; nil parses in UTC.
func NewSyncService(src Sources, dates *dateparse.Parser, logger *slog.Logger) *SyncService {
	if dates == nil {
		dates = dateparse.New(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}

	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("query"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	v.RegisterStructValidation(productQueryOffset, ProductQuery{})

	return &SyncService{src: src, dates: dates, validate: v, logger: logger}
}

// NextFiscalNumber proposes the next fiscal document number. The seed is
// only read when no positive number has been issued yet. Concurrent
// callers can receive the same proposal; the unique constraint on the
// issued number rejects the second commit.
func (s *SyncService) NextFiscalNumber(ctx context.Context) (int64, error) {
	current, err := s.src.FiscalNotes.Max(ctx, model.FiscalNoteNumber.Ref())
	if err != nil {
		return 0, classify("max fiscal number", err)
	}
	if current != nil && *current > 0 {
		return sequence.Next(current, 0), nil
	}

	seed, err := s.src.Seed.SequenceSeed(ctx)
	if err != nil {
		return 0, classify("read sequence seed", err)
	}
	return sequence.Next(nil, seed), nil
}

// Company returns the store owner record.
func (s *SyncService) Company(ctx context.Context) (*model.Company, error) {
	return s.company(ctx, false)
}

// Accountant returns the accounting office record.
func (s *SyncService) Accountant(ctx context.Context) (*model.Company, error) {
	return s.company(ctx, true)
}

func (s *SyncService) company(ctx context.Context, accountant bool) (*model.Company, error) {
	c, err := s.src.Companies.SelectOne(ctx, filter.Eq(model.CompanyAccountant, accountant))
	if err != nil {
		return nil, classify("select company", err)
	}
	return &c, nil
}

// Device returns the fiscal printer bound to the caller. Accounts without
// a device serial have no printer.
func (s *SyncService) Device(ctx context.Context, p *model.Principal) (*model.Device, error) {
	if p == nil || !p.HasDevice() {
		return nil, ErrNotFound
	}
	d, err := s.src.Devices.SelectOne(ctx, filter.Eq(model.DeviceSerial, p.DeviceSerial))
	if err != nil {
		return nil, classify("select device", err)
	}
	return &d, nil
}

// Users lists every operator ordered by id.
func (s *SyncService) Users(ctx context.Context) ([]model.User, error) {
	return listAll(ctx, s.src.Users, model.EntityUser, model.UserID.Ref(), "list users")
}

// PaymentTypes lists every tender ordered by id.
func (s *SyncService) PaymentTypes(ctx context.Context) ([]model.PaymentType, error) {
	return listAll(ctx, s.src.PaymentTypes, model.EntityPaymentType, model.PaymentTypeID.Ref(), "list payment types")
}

// Packagings lists every packaging ordered by id.
func (s *SyncService) Packagings(ctx context.Context) ([]model.Packaging, error) {
	return listAll(ctx, s.src.Packagings, model.EntityPackaging, model.PackagingID.Ref(), "list packagings")
}

func listAll[T any](ctx context.Context, src query.Source[T], entity filter.Entity, order filter.FieldRef, op string) ([]T, error) {
	rows, err := src.Select(ctx, query.Selection{Entity: entity, Order: order})
	if err != nil {
		return nil, classify(op, err)
	}
	return rows, nil
}

// ProductQuery holds the product delta parameters as sent by terminals.
type ProductQuery struct {
	// Since is the cutoff. Empty or unparsable means no cutoff.
	Since string `query:"data"`
	Page  int    `query:"pagina" validate:"gte=0"`
	// Limit is the page size, at most query.MaxPageSize. Zero means all rows.
	Limit int `query:"limite" validate:"gte=0,lte=5000"`
}

// productQueryOffset rejects pages whose offset would not fit the
// database binding.
func productQueryOffset(sl validator.StructLevel) {
	q := sl.Current().Interface().(ProductQuery)
	if q.Page > 0 && q.Limit > 0 && q.Page > query.MaxOffset/q.Limit {
		sl.ReportError(q.Page, "pagina", "Page", "offset", "")
	}
}

// NewProducts pages through products created after the cutoff, oldest
// first.
func (s *SyncService) NewProducts(ctx context.Context, q ProductQuery) ([]model.Product, error) {
	return s.products(ctx, q, model.ProductCreatedAt.Ref(), model.ProductDelta.New, "select new products")
}

// UpdatedProducts pages through products created before and updated after
// the cutoff, by update time. A product never shows up in both deltas for
// the same cutoff.
func (s *SyncService) UpdatedProducts(ctx context.Context, q ProductQuery) ([]model.Product, error) {
	return s.products(ctx, q, model.ProductUpdatedAt.Ref(), model.ProductDelta.Updated, "select updated products")
}

func (s *SyncService) products(ctx context.Context, q ProductQuery, order filter.FieldRef, build func(time.Time) filter.Node, op string) ([]model.Product, error) {
	if err := s.validateQuery(q); err != nil {
		return nil, err
	}
	sel := query.Selection{
		Entity: model.EntityProduct,
		Offset: query.Paginate(q.Page, q.Limit),
		Limit:  q.Limit,
		Order:  order,
	}
	if cutoff, ok := s.dates.Parse(q.Since); ok {
		sel.Where = build(cutoff)
	} else if strings.TrimSpace(q.Since) != "" {
		s.logger.DebugContext(ctx, "ignoring unparsable cutoff", "data", q.Since)
	}

	rows, err := s.src.Products.Select(ctx, sel)
	if err != nil {
		return nil, classify(op, err)
	}
	return rows, nil
}

func (s *SyncService) validateQuery(q ProductQuery) error {
	err := s.validate.Struct(q)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return &query.ValidationError{Field: fe.Field(), Message: ruleMessage(fe)}
	}
	return &query.ValidationError{Message: err.Error()}
}

func ruleMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "gte":
		return "must not be negative"
	case "lte":
		return "must be at most " + fe.Param()
	case "offset":
		return "page offset is out of range"
	default:
		return "is invalid"
	}
}
