package model

import (
	"time"

	"github.com/openpdv/pdvhost/internal/filter"
)

// EntityFiscalNote is the entity kind of FiscalNote records.
const EntityFiscalNote filter.Entity = "fiscal_note"

// FiscalNote fields usable in filters and aggregates.
var (
	FiscalNoteID     = filter.NewField[int64](EntityFiscalNote, "id")
	FiscalNoteNumber = filter.NewField[int64](EntityFiscalNote, "number")
)

// SequenceSeedKey is the settings key holding the fiscal number seed.
const SequenceSeedKey = "nfe.numero"

// FiscalNote is an issued electronic fiscal document. Only its number is
// read by the host; notes are written by the terminals' upload path.
type FiscalNote struct {
	ID       int64     `json:"id" db:"id"`
	Number   int64     `json:"number" db:"number"`
	IssuedAt time.Time `json:"issued_at" db:"issued_at"`
}

// Lookup implements filter.Record.
func (n FiscalNote) Lookup(f filter.FieldRef) (any, bool) {
	switch f {
	case FiscalNoteID.Ref():
		return n.ID, true
	case FiscalNoteNumber.Ref():
		return n.Number, true
	}
	return nil, false
}
