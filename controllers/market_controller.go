package controllers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"market_backend/models"
	"market_backend/services/marketconfig"
)

// MarketReader serves cached snapshot rows
type MarketReader interface {
	GetCached(ctx context.Context, category models.Category, symbols ...string) []models.SnapshotRow
	IsStale(category models.Category, snap models.Snapshot) bool
}

// SymbolLister exposes the tracked symbol configuration
type SymbolLister interface {
	GetTrackedSymbols(ctx context.Context, category models.Category, opts marketconfig.Options) []models.TrackedSymbol
}

// StreamHandler upgrades a request to the snapshot websocket stream
type StreamHandler interface {
	HandleWebSocket(w http.ResponseWriter, r *http.Request)
}

// MarketController handles the public market data endpoints
type MarketController struct {
	reader  MarketReader
	symbols SymbolLister
	stream  StreamHandler
}

func NewMarketController(reader MarketReader, symbols SymbolLister, stream StreamHandler) *MarketController {
	return &MarketController{reader: reader, symbols: symbols, stream: stream}
}

// MarketRow is a snapshot plus the category specific columns
type MarketRow struct {
	models.SnapshotView
	Stale         bool   `json:"stale"`
	Exchange      string `json:"exchange,omitempty"`
	Country       string `json:"country,omitempty"`
	Timezone      string `json:"timezone,omitempty"`
	CoinID        string `json:"coinId,omitempty"`
	Unit          string `json:"unit,omitempty"`
	BaseCurrency  string `json:"baseCurrency,omitempty"`
	QuoteCurrency string `json:"quoteCurrency,omitempty"`
}

func (mc *MarketController) toRow(category models.Category, row models.SnapshotRow) MarketRow {
	snap := row.GetSnapshot()
	out := MarketRow{SnapshotView: snap.View(), Stale: mc.reader.IsStale(category, snap)}
	switch r := row.(type) {
	case models.MarketIndex:
		out.Exchange, out.Country, out.Timezone = r.Exchange, r.Country, r.Timezone
	case models.Cryptocurrency:
		out.CoinID = r.CoinID
	case models.Commodity:
		out.Unit = r.Unit
	case models.CurrencyRate:
		out.BaseCurrency, out.QuoteCurrency = r.BaseCurrency, r.QuoteCurrency
	}
	return out
}

func (mc *MarketController) list(category models.Category) gin.HandlerFunc {
	return func(c *gin.Context) {
		rows := mc.reader.GetCached(c.Request.Context(), category, splitSymbols(c.Query("symbols"))...)
		data := make([]MarketRow, 0, len(rows))
		for _, row := range rows {
			data = append(data, mc.toRow(category, row))
		}
		c.JSON(http.StatusOK, gin.H{
			"category": category,
			"data":     data,
			"count":    len(data),
		})
	}
}

// GetIndices returns cached index snapshots
// GET /api/v1/market/indices?symbols=^GSPC,^NSEI
func (mc *MarketController) GetIndices(c *gin.Context) { mc.list(models.CategoryIndices)(c) }

// GetCrypto returns cached cryptocurrency snapshots
// GET /api/v1/market/crypto
func (mc *MarketController) GetCrypto(c *gin.Context) { mc.list(models.CategoryCrypto)(c) }

// GetCurrencies returns cached currency rates
// GET /api/v1/market/currencies
func (mc *MarketController) GetCurrencies(c *gin.Context) { mc.list(models.CategoryCurrencies)(c) }

// GetCommodities returns cached commodity snapshots
// GET /api/v1/market/commodities
func (mc *MarketController) GetCommodities(c *gin.Context) { mc.list(models.CategoryCommodities)(c) }

var configFilters = []string{"exchange", "country", "currency", "unit", "timezone", "symbols"}

// GetConfig returns the tracked symbols of a category
// GET /api/v1/market/config/:category?include_inactive=true&exchange=NYSE
func (mc *MarketController) GetConfig(c *gin.Context) {
	category, err := models.ParseCategory(c.Param("category"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown category", "category": c.Param("category")})
		return
	}

	opts := marketconfig.Options{}
	opts.IncludeInactive, _ = strconv.ParseBool(c.Query("include_inactive"))
	for _, key := range configFilters {
		if v := strings.TrimSpace(c.Query(key)); v != "" {
			if opts.FilterBy == nil {
				opts.FilterBy = map[string]string{}
			}
			opts.FilterBy[key] = v
		}
	}

	symbols := mc.symbols.GetTrackedSymbols(c.Request.Context(), category, opts)
	c.JSON(http.StatusOK, gin.H{
		"category": category,
		"data":     symbols,
		"count":    len(symbols),
	})
}

// Stream upgrades to the snapshot websocket
// GET /api/v1/market/ws?category=crypto
func (mc *MarketController) Stream(c *gin.Context) {
	mc.stream.HandleWebSocket(c.Writer, c.Request)
}

func splitSymbols(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, strings.ToUpper(s))
		}
	}
	return out
}
