package agents

import (
	"fmt"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/momentum"
	"github.com/cinar/indicator/v2/trend"
	"github.com/shopspring/decimal"
)

// computeEMA returns the exponential moving average series for the period.
func computeEMA(closes []decimal.Decimal, period int) ([]float64, error) {
	if len(closes) < period {
		return nil, fmt.Errorf("not enough data points: need %d, got %d", period, len(closes))
	}

	ema := trend.NewEmaWithPeriod[float64](period)
	out := ema.Compute(helper.SliceToChan(decimalsToFloat64(closes)))
	return helper.ChanToSlice(out), nil
}

// computeRSI returns the relative strength index series for the period.
func computeRSI(closes []decimal.Decimal, period int) ([]float64, error) {
	if len(closes) < period+1 {
		return nil, fmt.Errorf("not enough data points for RSI: need %d, got %d", period+1, len(closes))
	}

	rsi := momentum.NewRsiWithPeriod[float64](period)
	out := rsi.Compute(helper.SliceToChan(decimalsToFloat64(closes)))
	return helper.ChanToSlice(out), nil
}

// computeMACD returns the MACD line and its signal line. Both channels are
// consumed concurrently: draining one after the other would block the
// indicator pipeline.
func computeMACD(closes []decimal.Decimal) (macdLine, signalLine []float64, err error) {
	if len(closes) < 26 {
		return nil, nil, fmt.Errorf("not enough data points for MACD: need at least 26, got %d", len(closes))
	}

	macd := trend.NewMacd[float64]()
	macdChan, signalChan := macd.Compute(helper.SliceToChan(decimalsToFloat64(closes)))

	done := make(chan struct{})
	go func() {
		signalLine = helper.ChanToSlice(signalChan)
		close(done)
	}()

	macdLine = helper.ChanToSlice(macdChan)
	<-done

	return macdLine, signalLine, nil
}

func decimalsToFloat64(decimals []decimal.Decimal) []float64 {
	result := make([]float64, len(decimals))
	for i, d := range decimals {
		result[i], _ = d.Float64()
	}
	return result
}
