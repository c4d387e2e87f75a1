package models

import "gorm.io/gorm"

// defaultTrackedSymbols is what a fresh install tracks until an admin edits the lists
var defaultTrackedSymbols = []TrackedSymbol{
	{Category: CategoryIndices, Symbol: "^GSPC", Name: "S&P 500", Exchange: "SNP", Country: "United States", Timezone: "America/New_York", Currency: "USD"},
	{Category: CategoryIndices, Symbol: "^DJI", Name: "Dow Jones Industrial Average", Exchange: "DJI", Country: "United States", Timezone: "America/New_York", Currency: "USD"},
	{Category: CategoryIndices, Symbol: "^IXIC", Name: "Nasdaq Composite", Exchange: "NASDAQ", Country: "United States", Timezone: "America/New_York", Currency: "USD"},
	{Category: CategoryIndices, Symbol: "^FTSE", Name: "FTSE 100", Exchange: "LSE", Country: "United Kingdom", Timezone: "Europe/London", Currency: "GBP"},
	{Category: CategoryIndices, Symbol: "^GDAXI", Name: "DAX", Exchange: "XETRA", Country: "Germany", Timezone: "Europe/Berlin", Currency: "EUR"},
	{Category: CategoryIndices, Symbol: "^N225", Name: "Nikkei 225", Exchange: "TSE", Country: "Japan", Timezone: "Asia/Tokyo", Currency: "JPY"},
	{Category: CategoryIndices, Symbol: "^HSI", Name: "Hang Seng Index", Exchange: "HKEX", Country: "Hong Kong", Timezone: "Asia/Hong_Kong", Currency: "HKD"},
	{Category: CategoryIndices, Symbol: "^NSEI", Name: "Nifty 50", Exchange: "NSE", Country: "India", Timezone: "Asia/Kolkata", Currency: "INR"},

	{Category: CategoryCrypto, Symbol: "BTC", Name: "Bitcoin", CoinID: "bitcoin", Currency: "USD"},
	{Category: CategoryCrypto, Symbol: "ETH", Name: "Ethereum", CoinID: "ethereum", Currency: "USD"},
	{Category: CategoryCrypto, Symbol: "SOL", Name: "Solana", CoinID: "solana", Currency: "USD"},
	{Category: CategoryCrypto, Symbol: "XRP", Name: "XRP", CoinID: "ripple", Currency: "USD"},

	{Category: CategoryCurrencies, Symbol: "EUR/USD", Name: "Euro / US Dollar", Currency: "USD"},
	{Category: CategoryCurrencies, Symbol: "GBP/USD", Name: "British Pound / US Dollar", Currency: "USD"},
	{Category: CategoryCurrencies, Symbol: "USD/JPY", Name: "US Dollar / Japanese Yen", Currency: "JPY"},
	{Category: CategoryCurrencies, Symbol: "USD/INR", Name: "US Dollar / Indian Rupee", Currency: "INR"},

	{Category: CategoryCommodities, Symbol: "XAU", Name: "Gold", Unit: "oz", Currency: "USD"},
	{Category: CategoryCommodities, Symbol: "XAG", Name: "Silver", Unit: "oz", Currency: "USD"},
	{Category: CategoryCommodities, Symbol: "WTI", Name: "Crude Oil WTI", Unit: "bbl", Currency: "USD"},
	{Category: CategoryCommodities, Symbol: "BRENT", Name: "Brent Crude", Unit: "bbl", Currency: "USD"},
	{Category: CategoryCommodities, Symbol: "NATURAL_GAS", Name: "Natural Gas", Unit: "MMBtu", Currency: "USD"},
}

// SeedDefaultTrackedSymbols fills tracked_symbols when the table is empty
func SeedDefaultTrackedSymbols(db *gorm.DB) error {
	var count int64
	if err := db.Model(&TrackedSymbol{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	symbols := make([]TrackedSymbol, len(defaultTrackedSymbols))
	order := map[Category]int{}
	for i, s := range defaultTrackedSymbols {
		s.IsActive = true
		s.SortOrder = order[s.Category]
		order[s.Category]++
		symbols[i] = s
	}
	return db.Create(&symbols).Error
}
