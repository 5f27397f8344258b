package model

// Instrument describes one tradeable symbol from the instruments file.
type Instrument struct {
	Symbol        string  `yaml:"symbol" json:"symbol"`
	Token         string  `yaml:"token" json:"token"`
	Exchange      string  `yaml:"exchange" json:"exchange"` // NSE, NFO
	TradingSymbol string  `yaml:"trading_symbol" json:"trading_symbol"`
	LotSize       int64   `yaml:"lot_size" json:"lot_size"`
	TickSize      float64 `yaml:"tick_size" json:"tick_size"`
}
