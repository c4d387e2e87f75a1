// Package scheduler keeps the market snapshot tables fresh. Each category has
// its own recurring gocron job (crypto, indices, currencies, commodities) plus
// an hourly TradingView snapshot refresh; jobs never overlap themselves.
//
// The jobs live in jobs.go.
package scheduler
