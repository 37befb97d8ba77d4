package models

// GlobalSnapshot is the world-market summary served by /api/global.
type GlobalSnapshot struct {
	BtcDominance      float64 `json:"btcDominance"`
	EthDominance      float64 `json:"ethDominance"`
	TotalMarketCap    float64 `json:"totalMarketCap"`
	TotalMarketCapUsd float64 `json:"totalMarketCapUsd"`
	Timestamp         string  `json:"timestamp"`
	Success           bool    `json:"success"`
	Error             string  `json:"error,omitempty"`
}

type GlobalResponse struct {
	GlobalSnapshot
	Mode        string `json:"mode"`
	FromCache   bool   `json:"fromCache,omitempty"`
	RateLimited bool   `json:"rateLimited,omitempty"`
}

// Ticker is a normalized quote for one trading pair.
type Ticker struct {
	Symbol      string  `json:"symbol"`
	Name        string  `json:"name"`
	Market      string  `json:"market"`
	Price       float64 `json:"price"`
	Change      float64 `json:"change"`
	Volume      float64 `json:"volume"`
	TradeVolume float64 `json:"trade_volume"`
}

type MarketInfo struct {
	Market      string `json:"market"`
	Symbol      string `json:"symbol"`
	Name        string `json:"name"`
	EnglishName string `json:"englishName"`
}

type Candle struct {
	Time   string  `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

type OrderBookLevel struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

type OrderBook struct {
	Market       string           `json:"market"`
	Timestamp    int64            `json:"timestamp"`
	TotalAskSize float64          `json:"totalAskSize"`
	TotalBidSize float64          `json:"totalBidSize"`
	Asks         []OrderBookLevel `json:"asks"`
	Bids         []OrderBookLevel `json:"bids"`
}

type Trade struct {
	Price        float64 `json:"price"`
	Volume       float64 `json:"volume"`
	Side         string  `json:"side"`
	Timestamp    int64   `json:"timestamp"`
	SequentialID int64   `json:"sequentialId"`
}

type DepStatus struct {
	Ok        bool   `json:"ok"`
	LatencyMs int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

type HealthResponse struct {
	Ok           bool                 `json:"ok"`
	TsISO        string               `json:"tsISO"`
	Service      string               `json:"service"`
	Version      string               `json:"version"`
	CacheBackend string               `json:"cache_backend"`
	DepsStatus   map[string]DepStatus `json:"deps_status"`
	DataMissing  []string             `json:"data_missing"`
}
