package model

import (
	"errors"
	"log/slog"

	"db-merge/internal/schema"
)

// Meta carries class-level markers. Declare it as a blank field:
//
//	type Order struct {
//		_  model.Meta `merge:"table:Orders;schema:sales;cluster:identity;unique:Number"`
//		Id int64      `merge:"primaryKey"`
//	}
type Meta struct{}

// Enum is implemented by integer types whose values are mirrored in a lookup table.
type Enum interface {
	EnumMembers() []schema.EnumMember
}

// LookupTable names the table an Enum is stored in.
type LookupTable interface {
	LookupTable() (schemaName, table string)
}

var (
	ErrMissingLookupTable = errors.New("enum type has no lookup table")
	ErrUnsupportedType    = errors.New("unsupported property type")
	ErrUnknownReference   = errors.New("foreign key references unknown column")
	ErrInvalidTag         = errors.New("invalid merge tag")
)

// Options control how models become descriptors.
type Options struct {
	// DefaultSchema applies to tables declared without a schema.
	DefaultSchema string
	// Progress, when set, receives one event per analyzed model.
	Progress func(description string, percent float64)
	Logger   *slog.Logger
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

func (o Options) report(description string, percent float64) {
	if o.Progress != nil {
		o.Progress(description, percent)
	}
}
