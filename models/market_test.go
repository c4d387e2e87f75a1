package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCategory(t *testing.T) {
	tests := []struct {
		in   string
		want Category
	}{
		{"indices", CategoryIndices},
		{" Index ", CategoryIndices},
		{"cryptocurrencies", CategoryCrypto},
		{"forex", CategoryCurrencies},
		{"commodity", CategoryCommodities},
	}
	for _, tt := range tests {
		got, err := ParseCategory(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}

	_, err := ParseCategory("bonds")
	assert.ErrorIs(t, err, ErrUnknownCategory)
}

func TestTradingViewFileDecodesMixedNumerics(t *testing.T) {
	raw := `{
		"generated_at": "2024-05-01T10:00:00Z",
		"items": [
			{"symbol": "SPX", "name": "S&P 500", "last": "5,012.40", "change": "+25", "change_percent": "0.50%"},
			{"symbol": "NI225", "name": "Nikkei 225", "last": 38000.5, "change": "−120.5", "high": "n/a"}
		]
	}`

	var file TradingViewSnapshotFile
	require.NoError(t, json.Unmarshal([]byte(raw), &file))
	require.Len(t, file.Items, 2)

	spx := file.Items[0]
	assert.InDelta(t, 5012.40, spx.Last.Value, 1e-9)
	assert.InDelta(t, 25.0, spx.Change.Value, 1e-9)
	assert.InDelta(t, 0.5, spx.ChangePercent.Value, 1e-9)
	assert.Nil(t, spx.High.Ptr())

	nikkei := file.Items[1]
	assert.InDelta(t, 38000.5, nikkei.Last.Value, 1e-9)
	assert.InDelta(t, -120.5, nikkei.Change.Value, 1e-9)
	assert.False(t, nikkei.High.Valid)
}

func TestParseNumber(t *testing.T) {
	_, ok := ParseNumber(".")
	assert.False(t, ok)
	_, ok = ParseNumber("NaN")
	assert.False(t, ok)
	v, ok := ParseNumber(" -0.3500% ")
	assert.True(t, ok)
	assert.InDelta(t, -0.35, v, 1e-12)
}
