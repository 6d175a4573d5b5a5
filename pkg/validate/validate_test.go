package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/marketsettle/pkg/errors"
	"github.com/angelmondragon/marketsettle/pkg/types"
)

type line struct {
	Quantity int `json:"quantity" validate:"min=1"`
}

type request struct {
	Address types.Address `json:"address"`
	Items   []line        `json:"items" validate:"required,min=1,dive"`
	Method  string        `json:"payment_method" validate:"required,oneof=cod card"`
}

func TestStructReportsFieldPaths(t *testing.T) {
	err := Struct(request{
		Address: types.Address{Name: "Rahim", Phone: "01711000000", City: "Dhaka", Email: "not-an-email"},
		Items:   []line{{Quantity: 0}},
		Method:  "cheque",
	})
	require.Error(t, err)

	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())

	details, ok := typed.Details().(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "is required", details["address.line1"])
	assert.Equal(t, "must be a valid email", details["address.email"])
	assert.Equal(t, "must be at least 1", details["items[0].quantity"])
	assert.Equal(t, "must be one of [cod card]", details["payment_method"])
}

func TestStructAcceptsValidInput(t *testing.T) {
	err := Struct(request{
		Address: types.Address{Name: "Rahim", Phone: "01711000000", Line1: "House 4", City: "Dhaka"},
		Items:   []line{{Quantity: 2}},
		Method:  "cod",
	})
	require.NoError(t, err)
}

func TestStructRejectsNonStruct(t *testing.T) {
	err := Struct(42)
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
}
