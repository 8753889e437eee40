package wallet_test

import (
	"testing"

	"github.com/google/uuid"
	domainErrors "github.com/storefrontlabs/checkout/internal/domain/errors"
	"github.com/storefrontlabs/checkout/internal/domain/wallet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWallet_Debit(t *testing.T) {
	w, err := wallet.NewWallet(uuid.New(), 50000)
	require.NoError(t, err)

	require.NoError(t, w.Debit(35000))
	assert.Equal(t, int64(15000), w.Balance)
	assert.Equal(t, 1, w.Version)

	err = w.Debit(20000)
	assert.ErrorIs(t, err, domainErrors.ErrInsufficientBalance)
	assert.Equal(t, int64(15000), w.Balance)
}

func TestWallet_Credit(t *testing.T) {
	w, err := wallet.NewWallet(uuid.New(), 0)
	require.NoError(t, err)

	require.NoError(t, w.Credit(10000))
	assert.Equal(t, int64(10000), w.Balance)

	assert.Error(t, w.Credit(0))
	assert.Error(t, w.Debit(-5))
}

func TestNewWallet_RejectsNegativeBalance(t *testing.T) {
	_, err := wallet.NewWallet(uuid.New(), -1)
	assert.Error(t, err)
}
