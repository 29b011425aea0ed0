package calculator

import (
	"errors"
	"fmt"
	"math"
	"math/big"

	"CDPRadar/internal/model"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidInput is returned for non-finite prices, high < low, a negative low,
	// or a close outside [low, high].
	ErrInvalidInput = errors.New("invalid pivot input")
	// ErrDivisionGuard is returned when a percent change has no usable base price.
	ErrDivisionGuard = errors.New("open price is zero or missing")
)

// CalculateCDP projects the next session's pivot levels from one session's
// high, low and close. Each level is rounded half-to-even to 2 decimals on its
// own, never from an already rounded CDP.
func CalculateCDP(high, low, close float64) (model.PivotLevels, error) {
	if err := checkPivotInput(high, low, close); err != nil {
		return model.PivotLevels{}, err
	}

	rng := high - low
	cdp := (high + low + 2*close) / 4
	return model.PivotLevels{
		CDP: round2(cdp),
		AH:  round2(cdp + rng),
		NH:  round2(2*cdp - low),
		NL:  round2(2*cdp - high),
		AL:  round2(cdp - rng),
	}, nil
}

// CalculateCDPFromBar is CalculateCDP over a bar's high, low and close.
func CalculateCDPFromBar(bar model.OHLCV) (model.PivotLevels, error) {
	return CalculateCDP(bar.High, bar.Low, bar.Close)
}

// ChangePercent returns (close-open)/open*100.
func ChangePercent(open, close float64) (float64, error) {
	if !finite(open) || !finite(close) {
		return 0, fmt.Errorf("%w: non-finite price", ErrInvalidInput)
	}
	if open == 0 {
		return 0, ErrDivisionGuard
	}
	return (close - open) / open * 100, nil
}

func checkPivotInput(high, low, close float64) error {
	if !finite(high) || !finite(low) || !finite(close) {
		return fmt.Errorf("%w: non-finite price", ErrInvalidInput)
	}
	if low < 0 {
		return fmt.Errorf("%w: low %.4f is negative", ErrInvalidInput, low)
	}
	if high < low {
		return fmt.Errorf("%w: high %.4f below low %.4f", ErrInvalidInput, high, low)
	}
	if close < low || close > high {
		return fmt.Errorf("%w: close %.4f outside [%.4f, %.4f]", ErrInvalidInput, close, low, high)
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// round2 rounds the exact binary value of v half-to-even. 2.645 is stored as
// 2.64500000000000001776..., so it rounds up to 2.65.
func round2(v float64) float64 {
	r := new(big.Rat).SetFloat64(v)
	if r == nil {
		return v
	}
	// v = num / 2^k = num*5^k / 10^k
	k := r.Denom().BitLen() - 1
	pow5 := new(big.Int).Exp(big.NewInt(5), big.NewInt(int64(k)), nil)
	exact := decimal.NewFromBigInt(new(big.Int).Mul(r.Num(), pow5), -int32(k))
	f, _ := exact.RoundBank(2).Float64()
	return f
}
