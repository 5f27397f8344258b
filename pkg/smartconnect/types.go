package smartconnect

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FlexFloat tolerates the API's habit of sending numbers as strings.
type FlexFloat float64

func (f *FlexFloat) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*f = FlexFloat(v)
	return nil
}

// OrderParams is the typed body for placeOrder.
type OrderParams struct {
	Variety         string `json:"variety"` // NORMAL, STOPLOSS, AMO
	TradingSymbol   string `json:"tradingsymbol"`
	SymbolToken     string `json:"symboltoken"`
	TransactionType string `json:"transactiontype"` // BUY, SELL
	Exchange        string `json:"exchange"`
	OrderType       string `json:"ordertype"` // MARKET, LIMIT, SL, SL-M
	ProductType     string `json:"producttype"`
	Duration        string `json:"duration"` // DAY, IOC
	Price           string `json:"price,omitempty"`
	TriggerPrice    string `json:"triggerprice,omitempty"`
	Quantity        string `json:"quantity"`
}

// PlaceOrderResult reports the outcome of a placement attempt. Exactly one
// of OrderID or Reason is meaningful, selected by OK.
type PlaceOrderResult struct {
	OK      bool
	OrderID string
	Reason  string
}

// OrderRecord is one row of the broker order book.
type OrderRecord struct {
	OrderID         string    `json:"orderid"`
	UniqueOrderID   string    `json:"uniqueorderid"`
	TradingSymbol   string    `json:"tradingsymbol"`
	SymbolToken     string    `json:"symboltoken"`
	Exchange        string    `json:"exchange"`
	TransactionType string    `json:"transactiontype"`
	Status          string    `json:"status"` // open, complete, rejected, cancelled
	Text            string    `json:"text"`   // rejection reason when present
	Quantity        FlexFloat `json:"quantity"`
	FilledShares    FlexFloat `json:"filledshares"`
	AveragePrice    FlexFloat `json:"averageprice"`
	Price           FlexFloat `json:"price"`
	Variety         string    `json:"variety"`
}

// Filled returns the filled quantity as an integer.
func (r *OrderRecord) Filled() int64 { return int64(r.FilledShares) }

// PositionRecord is one row of the broker net-position response.
type PositionRecord struct {
	TradingSymbol string    `json:"tradingsymbol"`
	SymbolToken   string    `json:"symboltoken"`
	Exchange      string    `json:"exchange"`
	ProductType   string    `json:"producttype"`
	NetQty        FlexFloat `json:"netqty"`
	AvgNetPrice   FlexFloat `json:"avgnetprice"`
	LTP           FlexFloat `json:"ltp"`
	PnL           FlexFloat `json:"pnl"`
}

// LTPQuote is the getLtpData payload.
type LTPQuote struct {
	TradingSymbol string    `json:"tradingsymbol"`
	SymbolToken   string    `json:"symboltoken"`
	Exchange      string    `json:"exchange"`
	LTP           FlexFloat `json:"ltp"`
}

// CandleParams selects a historical candle window. Times are formatted in
// the exchange-local "2006-01-02 15:04" layout the API expects.
type CandleParams struct {
	Exchange    string
	SymbolToken string
	Interval    string // ONE_MINUTE .. ONE_DAY
	From        time.Time
	To          time.Time
}

const candleTimeLayout = "2006-01-02 15:04"

func (p CandleParams) body() map[string]string {
	return map[string]string{
		"exchange":    p.Exchange,
		"symboltoken": p.SymbolToken,
		"interval":    p.Interval,
		"fromdate":    p.From.Format(candleTimeLayout),
		"todate":      p.To.Format(candleTimeLayout),
	}
}

// CandleRow is one historical bar: [timestamp, open, high, low, close, volume].
type CandleRow struct {
	TS     time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64
}

func (r *CandleRow) UnmarshalJSON(b []byte) error {
	var arr []any
	if err := json.Unmarshal(b, &arr); err != nil {
		return err
	}
	if len(arr) < 6 {
		return fmt.Errorf("smartconnect: short candle row: %d fields", len(arr))
	}
	tsStr, _ := arr[0].(string)
	ts, err := time.Parse(time.RFC3339, tsStr)
	if err != nil {
		return err
	}
	num := func(v any) float64 {
		switch t := v.(type) {
		case float64:
			return t
		case string:
			f, _ := strconv.ParseFloat(t, 64)
			return f
		}
		return 0
	}
	r.TS = ts
	r.Open = num(arr[1])
	r.High = num(arr[2])
	r.Low = num(arr[3])
	r.Close = num(arr[4])
	r.Volume = int64(num(arr[5]))
	return nil
}
