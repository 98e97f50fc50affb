package repository

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openpdv/pdvhost/internal/filter"
	"github.com/openpdv/pdvhost/internal/model"
	"github.com/openpdv/pdvhost/internal/query"
)

var cutoff = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func TestNewTable_ColumnsFollowDBTags(t *testing.T) {
	assert.Equal(t, "prod_produto", ProductTable.Name)
	assert.Equal(t, "id", ProductTable.Key)
	assert.Equal(t, "id", ProductTable.Columns[0])
	assert.Contains(t, ProductTable.Columns, "created_at")
	assert.Contains(t, ProductTable.Columns, "updated_at")
	assert.Len(t, ProductTable.Columns, 14)

	assert.Equal(t, []string{"id", "number", "issued_at"}, FiscalNoteTable.Columns)
}

func TestCompileSelect_FullListing(t *testing.T) {
	sql, params, err := compileSelect(UserTable, query.Selection{
		Entity: model.EntityUser,
		Order:  model.UserID.Ref(),
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(sql, `SELECT "id", "login", "name", "password_hash"`))
	assert.Contains(t, sql, `FROM "sis_usuario"`)
	assert.NotContains(t, sql, "WHERE")
	assert.True(t, strings.HasSuffix(sql, `ORDER BY "id" ASC`), sql)
	assert.NotContains(t, sql, "LIMIT")
	assert.NotContains(t, sql, "OFFSET")
	assert.Empty(t, params)
}

func TestCompileSelect_NewProducts(t *testing.T) {
	sql, params, err := compileSelect(ProductTable, query.Selection{
		Entity: model.EntityProduct,
		Offset: 40,
		Limit:  20,
		Order:  model.ProductCreatedAt.Ref(),
		Where:  model.ProductDelta.New(cutoff),
	})
	require.NoError(t, err)

	assert.Contains(t, sql, `WHERE "created_at" > $1`)
	assert.Contains(t, sql, `ORDER BY "created_at" ASC, "id" ASC LIMIT $2 OFFSET $3`)
	assert.Equal(t, []any{cutoff, 20, 40}, params)
}

func TestCompileSelect_UpdatedProducts(t *testing.T) {
	sql, params, err := compileSelect(ProductTable, query.Selection{
		Entity: model.EntityProduct,
		Limit:  50,
		Order:  model.ProductUpdatedAt.Ref(),
		Where:  model.ProductDelta.Updated(cutoff),
	})
	require.NoError(t, err)

	assert.Contains(t, sql, `WHERE ("updated_at" > $1 AND "created_at" < $2)`)
	assert.Contains(t, sql, `ORDER BY "updated_at" ASC, "id" ASC LIMIT $3`)
	assert.NotContains(t, sql, "OFFSET")
	assert.Equal(t, []any{cutoff, cutoff, 50}, params)
}

func TestCompileSelect_BoundsIndependentOfFilter(t *testing.T) {
	for _, where := range []filter.Node{nil, model.ProductDelta.New(cutoff)} {
		_, params, err := compileSelect(ProductTable, query.Selection{
			Entity: model.EntityProduct,
			Offset: 40,
			Limit:  20,
			Order:  model.ProductCreatedAt.Ref(),
			Where:  where,
		})
		require.NoError(t, err)
		assert.Equal(t, []any{20, 40}, params[len(params)-2:])
	}
}

func TestCompileSelect_NestedJunctions(t *testing.T) {
	where := filter.Any(
		filter.Eq(model.ProductActive, true),
		filter.All(
			filter.Eq(model.ProductBarcode, "7891000100103"),
			filter.Lt(model.ProductID, int64(10)),
		),
	)

	sql, params, err := compileSelect(ProductTable, query.Selection{Entity: model.EntityProduct, Where: where})
	require.NoError(t, err)

	assert.Contains(t, sql, `WHERE ("active" = $1 OR ("barcode" = $2 AND "id" < $3))`)
	assert.NotContains(t, sql, "7891000100103")
	assert.Equal(t, []any{true, "7891000100103", int64(10)}, params)
}

func TestCompileSelect_SingleChildJunctionHasNoParens(t *testing.T) {
	sql, _, err := compileSelect(CompanyTable, query.Selection{
		Entity: model.EntityCompany,
		Where:  filter.All(filter.Eq(model.CompanyAccountant, true)),
	})
	require.NoError(t, err)
	assert.Contains(t, sql, `WHERE "accountant" = $1 ORDER BY`)
}

func TestCompileSelect_Rejects(t *testing.T) {
	tests := []struct {
		name string
		sel  query.Selection
	}{
		{"negative offset", query.Selection{Entity: model.EntityProduct, Offset: -1}},
		{"foreign order field", query.Selection{Entity: model.EntityProduct, Order: model.UserID.Ref()}},
		{"foreign filter field", query.Selection{Entity: model.EntityProduct, Where: filter.Eq(model.DeviceSerial, "X")}},
		{"entity mismatch", query.Selection{Entity: model.EntityUser}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := compileSelect(ProductTable, tt.sel)
			assert.Error(t, err)
		})
	}
}

func TestCompileSelect_UnknownColumn(t *testing.T) {
	ghost := filter.NewField[string](model.EntityProduct, "ghost")
	_, _, err := compileSelect(ProductTable, query.Selection{
		Entity: model.EntityProduct,
		Where:  filter.Eq(ghost, "x"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no column")
}

func TestCompileMax(t *testing.T) {
	sql, err := compileMax(FiscalNoteTable, model.FiscalNoteNumber.Ref())
	require.NoError(t, err)
	assert.Equal(t, `SELECT MAX("number") FROM "ecf_nota_eletronica"`, sql)

	_, err = compileMax(ProductTable, model.ProductCreatedAt.Ref())
	assert.Error(t, err, "MAX over a time field")

	_, err = compileMax(ProductTable, model.FiscalNoteNumber.Ref())
	assert.Error(t, err, "MAX over another entity's field")
}
