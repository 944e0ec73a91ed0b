package api

import (
	"sort"
	"strings"
)

// Constituent lists served by GET /api/tickers/{index}. These cover the two
// NSE indices the engine is usually pointed at; anything else should come in
// as an explicit symbol list.
var indexTickers = map[string][]string{
	"NIFTY50": {
		"ADANIENT", "ADANIPORTS", "APOLLOHOSP", "ASIANPAINT", "AXISBANK",
		"BAJAJ-AUTO", "BAJAJFINSV", "BAJFINANCE", "BHARTIARTL", "BPCL",
		"BRITANNIA", "CIPLA", "COALINDIA", "DIVISLAB", "DRREDDY",
		"EICHERMOT", "GRASIM", "HCLTECH", "HDFCBANK", "HDFCLIFE",
		"HEROMOTOCO", "HINDALCO", "HINDUNILVR", "ICICIBANK", "INDUSINDBK",
		"INFY", "ITC", "JSWSTEEL", "KOTAKBANK", "LT",
		"LTIM", "M&M", "MARUTI", "NESTLEIND", "NTPC",
		"ONGC", "POWERGRID", "RELIANCE", "SBILIFE", "SBIN",
		"SHRIRAMFIN", "SUNPHARMA", "TATACONSUM", "TATAMOTORS", "TATASTEEL",
		"TCS", "TECHM", "TITAN", "ULTRACEMCO", "WIPRO",
	},
	"NIFTYBANK": {
		"AUBANK", "AXISBANK", "BANDHANBNK", "BANKBARODA", "FEDERALBNK",
		"HDFCBANK", "ICICIBANK", "IDFCFIRSTB", "INDUSINDBK", "KOTAKBANK",
		"PNB", "SBIN",
	},
}

// Tickers returns the constituents of a supported index, case-insensitively.
func Tickers(index string) ([]string, bool) {
	symbols, ok := indexTickers[strings.ToUpper(index)]
	if !ok {
		return nil, false
	}
	out := make([]string, len(symbols))
	copy(out, symbols)
	sort.Strings(out)
	return out, true
}

// Indices lists the supported index names.
func Indices() []string {
	out := make([]string, 0, len(indexTickers))
	for name := range indexTickers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
