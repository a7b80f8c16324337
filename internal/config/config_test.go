package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, []string{"BTC", "ETH"}, cfg.AllowedSymbols)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("LISTEN_ADDR", ":9999")
	t.Setenv("ALLOWED_SYMBOLS", "btc, eth ,DOGE")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.ListenAddr)
	assert.Equal(t, []string{"BTC", "ETH", "DOGE"}, cfg.AllowedSymbols)
}

func TestSymbolAllowed(t *testing.T) {
	cfg := &Config{AllowedSymbols: []string{"BTC", "ETH"}}

	assert.True(t, cfg.SymbolAllowed("BTC"))
	assert.True(t, cfg.SymbolAllowed("ETH"))
	assert.False(t, cfg.SymbolAllowed("XRP"))
	assert.False(t, cfg.SymbolAllowed(""))
}
