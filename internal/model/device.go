package model

import "github.com/openpdv/pdvhost/internal/filter"

// EntityDevice is the entity kind of Device records.
const EntityDevice filter.Entity = "device"

// Device fields usable in filters.
var (
	DeviceID     = filter.NewField[int64](EntityDevice, "id")
	DeviceSerial = filter.NewField[string](EntityDevice, "serial")
	DeviceActive = filter.NewField[bool](EntityDevice, "active")
)

// Device is a fiscal printer (ECF) registered to a terminal.
type Device struct {
	ID     int64  `json:"id" db:"id"`
	Serial string `json:"serial" db:"serial"`
	Code   int64  `json:"code" db:"code"`
	Brand  string `json:"brand" db:"brand"`
	Model  string `json:"model" db:"model"`
	Type   string `json:"type" db:"type"`
	MFD    bool   `json:"mfd" db:"mfd"`
	Active bool   `json:"active" db:"active"`
}

// Lookup implements filter.Record.
func (d Device) Lookup(f filter.FieldRef) (any, bool) {
	switch f {
	case DeviceID.Ref():
		return d.ID, true
	case DeviceSerial.Ref():
		return d.Serial, true
	case DeviceActive.Ref():
		return d.Active, true
	}
	return nil, false
}
