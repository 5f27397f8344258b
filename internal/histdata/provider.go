package histdata

import (
	"context"
	"time"

	"swingbot/internal/model"
	"swingbot/pkg/smartconnect"
)

// SmartAPIProvider adapts the broker client to CandleProvider, renewing the
// session before every fetch so a stale token never fails a sync cycle.
type SmartAPIProvider struct {
	Client *smartconnect.Client
	Creds  smartconnect.Credentials
}

func (p *SmartAPIProvider) FetchCandles(ctx context.Context, exchange, token string, interval model.Interval, from, to time.Time) (model.Series, error) {
	if err := p.Client.EnsureSession(ctx, p.Creds); err != nil {
		return nil, err
	}
	rows, err := p.Client.Candles(ctx, smartconnect.CandleParams{
		Exchange:    exchange,
		SymbolToken: token,
		Interval:    string(interval),
		From:        from,
		To:          to,
	})
	if err != nil {
		return nil, err
	}
	series := make(model.Series, 0, len(rows))
	for _, r := range rows {
		series = append(series, model.Candle{
			TS: r.TS, Open: r.Open, High: r.High, Low: r.Low, Close: r.Close, Volume: r.Volume,
		})
	}
	return series, nil
}
