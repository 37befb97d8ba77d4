package services

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"coinboard/backend-go/internal/config"
	"coinboard/backend-go/internal/models"
)

type UpbitClient struct {
	baseURL string
	up      *upstream
}

type upbitMarket struct {
	Market      string `json:"market"`
	KoreanName  string `json:"korean_name"`
	EnglishName string `json:"english_name"`
}

type upbitTicker struct {
	Market           string  `json:"market"`
	TradePrice       float64 `json:"trade_price"`
	SignedChangeRate float64 `json:"signed_change_rate"`
	AccTradePrice24h float64 `json:"acc_trade_price_24h"`
	AccTradeVol24h   float64 `json:"acc_trade_volume_24h"`
}

type upbitCandle struct {
	CandleDateTimeKST string  `json:"candle_date_time_kst"`
	OpeningPrice      float64 `json:"opening_price"`
	HighPrice         float64 `json:"high_price"`
	LowPrice          float64 `json:"low_price"`
	TradePrice        float64 `json:"trade_price"`
	AccTradeVolume    float64 `json:"candle_acc_trade_volume"`
}

type upbitOrderBook struct {
	Market       string  `json:"market"`
	Timestamp    int64   `json:"timestamp"`
	TotalAskSize float64 `json:"total_ask_size"`
	TotalBidSize float64 `json:"total_bid_size"`
	Units        []struct {
		AskPrice float64 `json:"ask_price"`
		BidPrice float64 `json:"bid_price"`
		AskSize  float64 `json:"ask_size"`
		BidSize  float64 `json:"bid_size"`
	} `json:"orderbook_units"`
}

type upbitTrade struct {
	TradePrice   float64 `json:"trade_price"`
	TradeVolume  float64 `json:"trade_volume"`
	AskBid       string  `json:"ask_bid"`
	Timestamp    int64   `json:"timestamp"`
	SequentialID int64   `json:"sequential_id"`
}

func NewUpbitClient(cfg config.Config, log *zap.Logger) *UpbitClient {
	return &UpbitClient{
		baseURL: strings.TrimRight(cfg.UpbitBaseURL, "/"),
		up:      newUpstream("upbit", cfg, log),
	}
}

// Markets lists the tradable pairs quoted in quote (e.g. KRW-BTC for KRW).
func (c *UpbitClient) Markets(ctx context.Context, quote string) ([]models.MarketInfo, error) {
	var raw []upbitMarket
	if _, err := c.up.getJSON(ctx, c.baseURL+"/market/all?isDetails=false", &raw); err != nil {
		return nil, err
	}
	prefix := strings.ToUpper(quote) + "-"
	out := make([]models.MarketInfo, 0, len(raw))
	for _, m := range raw {
		if !strings.HasPrefix(m.Market, prefix) {
			continue
		}
		symbol := strings.TrimPrefix(m.Market, prefix)
		name := m.KoreanName
		if name == "" {
			name = symbol
		}
		out = append(out, models.MarketInfo{
			Market:      m.Market,
			Symbol:      symbol,
			Name:        name,
			EnglishName: m.EnglishName,
		})
	}
	return out, nil
}

// Tickers fetches quotes for at most one batch of market codes.
func (c *UpbitClient) Tickers(ctx context.Context, markets []string) ([]upbitTicker, error) {
	escaped := make([]string, len(markets))
	for i, m := range markets {
		escaped[i] = url.QueryEscape(m)
	}
	var raw []upbitTicker
	if _, err := c.up.getJSON(ctx, c.baseURL+"/ticker?markets="+strings.Join(escaped, ","), &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// Candles returns candles oldest first. unit is minutes, days, weeks or
// months; interval only applies to minutes.
func (c *UpbitClient) Candles(ctx context.Context, market string, unit string, interval int, count int) ([]models.Candle, error) {
	path := "/candles/" + unit
	if unit == "minutes" {
		path = fmt.Sprintf("/candles/minutes/%d", interval)
	}
	q := url.Values{}
	q.Set("market", market)
	q.Set("count", fmt.Sprintf("%d", count))
	var raw []upbitCandle
	if _, err := c.up.getJSON(ctx, c.baseURL+path+"?"+q.Encode(), &raw); err != nil {
		return nil, err
	}
	out := make([]models.Candle, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		r := raw[i]
		out = append(out, models.Candle{
			Time:   r.CandleDateTimeKST,
			Open:   r.OpeningPrice,
			High:   r.HighPrice,
			Low:    r.LowPrice,
			Close:  r.TradePrice,
			Volume: r.AccTradeVolume,
		})
	}
	return out, nil
}

func (c *UpbitClient) OrderBook(ctx context.Context, market string) (models.OrderBook, error) {
	var raw []upbitOrderBook
	if _, err := c.up.getJSON(ctx, c.baseURL+"/orderbook?markets="+url.QueryEscape(market), &raw); err != nil {
		return models.OrderBook{}, err
	}
	if len(raw) == 0 {
		return models.OrderBook{}, fmt.Errorf("upbit: no orderbook for %s", market)
	}
	ob := raw[0]
	out := models.OrderBook{
		Market:       ob.Market,
		Timestamp:    ob.Timestamp,
		TotalAskSize: ob.TotalAskSize,
		TotalBidSize: ob.TotalBidSize,
		Asks:         make([]models.OrderBookLevel, 0, len(ob.Units)),
		Bids:         make([]models.OrderBookLevel, 0, len(ob.Units)),
	}
	for _, u := range ob.Units {
		out.Asks = append(out.Asks, models.OrderBookLevel{Price: u.AskPrice, Size: u.AskSize})
		out.Bids = append(out.Bids, models.OrderBookLevel{Price: u.BidPrice, Size: u.BidSize})
	}
	return out, nil
}

func (c *UpbitClient) Trades(ctx context.Context, market string, count int) ([]models.Trade, error) {
	q := url.Values{}
	q.Set("market", market)
	q.Set("count", fmt.Sprintf("%d", count))
	var raw []upbitTrade
	if _, err := c.up.getJSON(ctx, c.baseURL+"/trades/ticks?"+q.Encode(), &raw); err != nil {
		return nil, err
	}
	out := make([]models.Trade, 0, len(raw))
	for _, r := range raw {
		side := "buy"
		if r.AskBid == "ASK" {
			side = "sell"
		}
		out = append(out, models.Trade{
			Price:        r.TradePrice,
			Volume:       r.TradeVolume,
			Side:         side,
			Timestamp:    r.Timestamp,
			SequentialID: r.SequentialID,
		})
	}
	return out, nil
}

func (c *UpbitClient) Ping(ctx context.Context) error {
	_, err := c.up.getJSON(ctx, c.baseURL+"/ticker?markets=KRW-BTC", nil)
	return err
}
