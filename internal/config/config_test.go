package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, cfg.StoreDriver)
	assert.Equal(t, 5*time.Second, cfg.TxTimeout)
	assert.Equal(t, "60", cfg.Shipping.DomesticFee.String())
	assert.Equal(t, "300", cfg.Shipping.FreeThreshold.String())
	assert.Equal(t, "ZAR", cfg.Checkout.Currency)
	assert.Equal(t, 2, cfg.NotifyWorkers)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("TX_TIMEOUT", "750ms")
	t.Setenv("FREE_SHIPPING_THRESHOLD", "500.00")
	t.Setenv("CURRENCY", "usd")
	t.Setenv("DB_MAX_CONNS", "25")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 750*time.Millisecond, cfg.TxTimeout)
	assert.Equal(t, "500", cfg.Shipping.FreeThreshold.String())
	assert.Equal(t, "USD", cfg.Checkout.Currency)
	assert.Equal(t, int32(25), cfg.DBMaxConns)
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "checkout.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store_driver: memory\nshipping_domestic_fee: \"75.50\"\n"), 0o600))
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, cfg.StoreDriver)
	assert.Equal(t, "75.5", cfg.Shipping.DomesticFee.String())
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	t.Setenv("STORE_DRIVER", "sqlite")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsBadMoney(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("SHIPPING_DOMESTIC_FEE", "-1")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("SHIPPING_DOMESTIC_FEE", "abc")
	_, err = Load()
	assert.Error(t, err)
}
