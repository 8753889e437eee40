package inventory_test

import (
	"testing"

	domainErrors "github.com/storefrontlabs/checkout/internal/domain/errors"
	"github.com/storefrontlabs/checkout/internal/domain/inventory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestItem_Decrease(t *testing.T) {
	item, err := inventory.NewItem("keyboard", 20000, 5)
	require.NoError(t, err)

	require.NoError(t, item.Decrease(3))
	assert.Equal(t, 2, item.Quantity)

	err = item.Decrease(3)
	assert.ErrorIs(t, err, domainErrors.ErrInsufficientStock)
	assert.Equal(t, 2, item.Quantity)
}

func TestItem_Increase(t *testing.T) {
	item, err := inventory.NewItem("keyboard", 20000, 0)
	require.NoError(t, err)

	require.NoError(t, item.Increase(4))
	assert.Equal(t, 4, item.Quantity)

	assert.Error(t, item.Increase(0))
	assert.Error(t, item.Decrease(0))
}

func TestNewItem_Validation(t *testing.T) {
	_, err := inventory.NewItem("", 100, 1)
	assert.Error(t, err)

	_, err = inventory.NewItem("keyboard", -1, 1)
	assert.Error(t, err)

	_, err = inventory.NewItem("keyboard", 100, -1)
	assert.Error(t, err)
}
