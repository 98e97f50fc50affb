package repository

import "github.com/openpdv/pdvhost/internal/model"

// Tables of the synchronized entities.
var (
	CompanyTable     = newTable[model.Company]("sis_empresa", model.EntityCompany)
	DeviceTable      = newTable[model.Device]("ecf_impressora", model.EntityDevice)
	UserTable        = newTable[model.User]("sis_usuario", model.EntityUser)
	PaymentTypeTable = newTable[model.PaymentType]("ecf_pagamento_tipo", model.EntityPaymentType)
	PackagingTable   = newTable[model.Packaging]("prod_embalagem", model.EntityPackaging)
	ProductTable     = newTable[model.Product]("prod_produto", model.EntityProduct)
	FiscalNoteTable  = newTable[model.FiscalNote]("ecf_nota_eletronica", model.EntityFiscalNote)
)

// Companies returns the company and accountant source.
func (r *Repository) Companies() *Source[model.Company] {
	return NewSource[model.Company](r.db, CompanyTable, r.tracer)
}

// Devices returns the fiscal printer source.
func (r *Repository) Devices() *Source[model.Device] {
	return NewSource[model.Device](r.db, DeviceTable, r.tracer)
}

// Users returns the operator source.
func (r *Repository) Users() *Source[model.User] {
	return NewSource[model.User](r.db, UserTable, r.tracer)
}

// PaymentTypes returns the tender source.
func (r *Repository) PaymentTypes() *Source[model.PaymentType] {
	return NewSource[model.PaymentType](r.db, PaymentTypeTable, r.tracer)
}

// Packagings returns the packaging source.
func (r *Repository) Packagings() *Source[model.Packaging] {
	return NewSource[model.Packaging](r.db, PackagingTable, r.tracer)
}

// Products returns the catalog source.
func (r *Repository) Products() *Source[model.Product] {
	return NewSource[model.Product](r.db, ProductTable, r.tracer)
}

// FiscalNotes returns the aggregator over issued fiscal notes.
func (r *Repository) FiscalNotes() *Source[model.FiscalNote] {
	return NewSource[model.FiscalNote](r.db, FiscalNoteTable, r.tracer)
}
