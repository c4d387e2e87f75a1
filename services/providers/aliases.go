package providers

import "strings"

// indexAliases maps Yahoo-style caret symbols to the plain codes most providers publish
var indexAliases = map[string]string{
	"^GSPC":     "SPX",
	"^DJI":      "DJI",
	"^IXIC":     "IXIC",
	"^NDX":      "NDX",
	"^RUT":      "RUT",
	"^VIX":      "VIX",
	"^NSEI":     "NIFTY",
	"^NSEBANK":  "BANKNIFTY",
	"^BSESN":    "SENSEX",
	"^FTSE":     "UKX",
	"^GDAXI":    "DAX",
	"^FCHI":     "PX1",
	"^STOXX50E": "SX5E",
	"^N225":     "NI225",
	"^HSI":      "HSI",
	"^AXJO":     "XJO",
	"^GSPTSE":   "TSX",
	"^KS11":     "KOSPI",
	"^TWII":     "TAIEX",
	"^BVSP":     "IBOV",
	"000001.SS": "000001",
}

// IndexAlias returns the plain index code for symbol, if one is known
func IndexAlias(symbol string) (string, bool) {
	code, ok := indexAliases[strings.ToUpper(strings.TrimSpace(symbol))]
	return code, ok
}

// plainIndexSymbol maps a caret symbol to the alias or, failing that, strips the caret
func plainIndexSymbol(symbol string) string {
	if code, ok := IndexAlias(symbol); ok {
		return code
	}
	return strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(symbol)), "^")
}
