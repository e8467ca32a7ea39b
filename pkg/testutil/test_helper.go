package testutil

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Constants for testing
const (
	DefaultTestTimeout = 5 * time.Second
)

// SimAccount is a funded account on a simulated chain
type SimAccount struct {
	PrivateKeyHex string
	Address       common.Address
}

// SetupSimulation creates a simulated chain with one account funded with 10 native units
func SetupSimulation(t *testing.T) (*simulated.Backend, SimAccount) {
	t.Helper()

	privateKey, err := crypto.GenerateKey()
	require.NoError(t, err, "Failed to generate private key")

	balance := CreateBigInt("10000000000000000000") // 10 ETH
	address := crypto.PubkeyToAddress(privateKey.PublicKey)
	//nolint:SA1019 // Using deprecated GenesisAccount for compatibility
	genesisAlloc := map[common.Address]core.GenesisAccount{
		address: {
			Balance: balance,
		},
	}

	sim := simulated.NewBackend(genesisAlloc)
	t.Cleanup(func() {
		_ = sim.Close()
	})

	return sim, SimAccount{
		PrivateKeyHex: common.Bytes2Hex(crypto.FromECDSA(privateKey)),
		Address:       address,
	}
}

// GenerateAddress creates a random address for testing
func GenerateAddress() common.Address {
	privateKey, _ := crypto.GenerateKey()
	return crypto.PubkeyToAddress(privateKey.PublicKey)
}

// CreateBigInt parses a string into a big.Int
func CreateBigInt(value string) *big.Int {
	result := new(big.Int)
	result.SetString(value, 10)
	return result
}

// AssertBigIntEqual compares two big.Int values for equality in tests
func AssertBigIntEqual(t *testing.T, expected, actual *big.Int, msgAndArgs ...interface{}) {
	t.Helper()
	if expected == nil && actual == nil {
		return
	}

	if (expected == nil && actual != nil) || (expected != nil && actual == nil) {
		assert.Fail(t, "Values not equal", msgAndArgs...)
		return
	}

	assert.Equal(t, 0, expected.Cmp(actual), msgAndArgs...)
}

// ContextWithTimeout returns a context bounded by DefaultTestTimeout and cancelled on cleanup
func ContextWithTimeout(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultTestTimeout)
	t.Cleanup(cancel)
	return ctx
}
