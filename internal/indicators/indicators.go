// Package indicators provides pure, allocation-light functions over kline
// closes/highs/lows/volumes. Every function returns a slice aligned to
// its input (NaN for bars before the indicator has warmed up), the style
// of internal/features/vwap.go and imbalance.go generalized from a single
// rolling statistic to the full indicator set of spec §4.6.
package indicators

import "math"

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// SMA is the simple moving average over period bars.
func SMA(closes []float64, period int) []float64 {
	out := nanSlice(len(closes))
	if period <= 0 {
		return out
	}
	sum := 0.0
	for i, c := range closes {
		sum += c
		if i >= period {
			sum -= closes[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out
}

// EMA is the exponential moving average with the standard 2/(n+1)
// smoothing constant, seeded from the SMA of the first period values.
func EMA(closes []float64, period int) []float64 {
	out := nanSlice(len(closes))
	if period <= 0 || len(closes) < period {
		return out
	}
	k := 2.0 / (float64(period) + 1.0)

	seed := 0.0
	for i := 0; i < period; i++ {
		seed += closes[i]
	}
	seed /= float64(period)
	out[period-1] = seed

	prev := seed
	for i := period; i < len(closes); i++ {
		prev = closes[i]*k + prev*(1-k)
		out[i] = prev
	}
	return out
}

// RSI is the Wilder relative strength index over period bars.
func RSI(closes []float64, period int) []float64 {
	out := nanSlice(len(closes))
	if period <= 0 || len(closes) <= period {
		return out
	}

	gain, loss := 0.0, 0.0
	for i := 1; i <= period; i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			gain += delta
		} else {
			loss -= delta
		}
	}
	avgGain := gain / float64(period)
	avgLoss := loss / float64(period)
	out[period] = rsiFromAvg(avgGain, avgLoss)

	for i := period + 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		g, l := 0.0, 0.0
		if delta > 0 {
			g = delta
		} else {
			l = -delta
		}
		avgGain = (avgGain*float64(period-1) + g) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + l) / float64(period)
		out[i] = rsiFromAvg(avgGain, avgLoss)
	}
	return out
}

func rsiFromAvg(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// BollingerBands returns (middle, upper, lower) bands: an SMA(period)
// center with +/- numStdDev standard deviations.
func BollingerBands(closes []float64, period int, numStdDev float64) (mid, upper, lower []float64) {
	mid = SMA(closes, period)
	upper = nanSlice(len(closes))
	lower = nanSlice(len(closes))
	if period <= 0 {
		return
	}
	for i := period - 1; i < len(closes); i++ {
		window := closes[i-period+1 : i+1]
		mean := mid[i]
		variance := 0.0
		for _, c := range window {
			d := c - mean
			variance += d * d
		}
		sd := math.Sqrt(variance / float64(period))
		upper[i] = mean + numStdDev*sd
		lower[i] = mean - numStdDev*sd
	}
	return
}

// MACD returns (macd, signal, histogram) using fast/slow/signal EMA
// periods, the standard 12/26/9 definition generalized to arbitrary
// periods.
func MACD(closes []float64, fast, slow, signal int) (macd, sig, hist []float64) {
	emaFast := EMA(closes, fast)
	emaSlow := EMA(closes, slow)
	macd = nanSlice(len(closes))
	for i := range closes {
		if !math.IsNaN(emaFast[i]) && !math.IsNaN(emaSlow[i]) {
			macd[i] = emaFast[i] - emaSlow[i]
		}
	}
	sig = emaOfSeries(macd, signal)
	hist = nanSlice(len(closes))
	for i := range closes {
		if !math.IsNaN(macd[i]) && !math.IsNaN(sig[i]) {
			hist[i] = macd[i] - sig[i]
		}
	}
	return
}

// emaOfSeries computes an EMA over a series that may start with NaNs,
// treating the first non-NaN run as the warm-up window.
func emaOfSeries(series []float64, period int) []float64 {
	out := nanSlice(len(series))
	start := -1
	for i, v := range series {
		if !math.IsNaN(v) {
			start = i
			break
		}
	}
	if start < 0 || start+period > len(series) {
		return out
	}
	k := 2.0 / (float64(period) + 1.0)
	seed := 0.0
	for i := start; i < start+period; i++ {
		seed += series[i]
	}
	seed /= float64(period)
	out[start+period-1] = seed
	prev := seed
	for i := start + period; i < len(series); i++ {
		prev = series[i]*k + prev*(1-k)
		out[i] = prev
	}
	return out
}

// UltimateOscillator implements the Williams Ultimate Oscillator over
// three periods (short/medium/long), weighted 4:2:1.
func UltimateOscillator(highs, lows, closes []float64, p1, p2, p3 int) []float64 {
	n := len(closes)
	out := nanSlice(n)
	bp := make([]float64, n)
	tr := make([]float64, n)
	for i := 1; i < n; i++ {
		trueLow := math.Min(lows[i], closes[i-1])
		trueHigh := math.Max(highs[i], closes[i-1])
		bp[i] = closes[i] - trueLow
		tr[i] = trueHigh - trueLow
	}
	longest := p3
	if longest < p1 || longest < p2 {
		longest = int(math.Max(float64(p1), math.Max(float64(p2), float64(p3))))
	}
	for i := longest; i < n; i++ {
		avg1 := sumRatio(bp, tr, i, p1)
		avg2 := sumRatio(bp, tr, i, p2)
		avg3 := sumRatio(bp, tr, i, p3)
		out[i] = 100 * (4*avg1 + 2*avg2 + avg3) / 7
	}
	return out
}

func sumRatio(bp, tr []float64, end, period int) float64 {
	start := end - period + 1
	if start < 0 {
		start = 0
	}
	sumBP, sumTR := 0.0, 0.0
	for i := start; i <= end; i++ {
		sumBP += bp[i]
		sumTR += tr[i]
	}
	if sumTR == 0 {
		return 0
	}
	return sumBP / sumTR
}

// ADX returns (adx, plusDI, minusDI) — the Directional Movement Index
// family — over period bars.
func ADX(highs, lows, closes []float64, period int) (adx, plusDI, minusDI []float64) {
	n := len(closes)
	adx, plusDI, minusDI = nanSlice(n), nanSlice(n), nanSlice(n)
	if n <= period+1 {
		return
	}

	trSum, plusDMSum, minusDMSum := 0.0, 0.0, 0.0
	for i := 1; i <= period; i++ {
		upMove := highs[i] - highs[i-1]
		downMove := lows[i-1] - lows[i]
		plusDM := 0.0
		if upMove > downMove && upMove > 0 {
			plusDM = upMove
		}
		minusDM := 0.0
		if downMove > upMove && downMove > 0 {
			minusDM = downMove
		}
		tr := trueRange(highs[i], lows[i], closes[i-1])
		trSum += tr
		plusDMSum += plusDM
		minusDMSum += minusDM
	}

	dxs := make([]float64, n)
	for i := period + 1; i < n; i++ {
		upMove := highs[i] - highs[i-1]
		downMove := lows[i-1] - lows[i]
		plusDM := 0.0
		if upMove > downMove && upMove > 0 {
			plusDM = upMove
		}
		minusDM := 0.0
		if downMove > upMove && downMove > 0 {
			minusDM = downMove
		}
		tr := trueRange(highs[i], lows[i], closes[i-1])

		trSum = trSum - trSum/float64(period) + tr
		plusDMSum = plusDMSum - plusDMSum/float64(period) + plusDM
		minusDMSum = minusDMSum - minusDMSum/float64(period) + minusDM

		if trSum > 0 {
			plusDI[i] = 100 * plusDMSum / trSum
			minusDI[i] = 100 * minusDMSum / trSum
		}
		sumDI := plusDI[i] + minusDI[i]
		if sumDI > 0 {
			dxs[i] = 100 * math.Abs(plusDI[i]-minusDI[i]) / sumDI
		}
	}

	adxSum := 0.0
	count := 0
	for i := period + 1; i < len(dxs) && count < period; i++ {
		adxSum += dxs[i]
		count++
	}
	if count == period {
		adx[period+count] = adxSum / float64(period)
		prev := adx[period+count]
		for i := period + count + 1; i < n; i++ {
			prev = (prev*float64(period-1) + dxs[i]) / float64(period)
			adx[i] = prev
		}
	}
	return
}

func trueRange(high, low, prevClose float64) float64 {
	return math.Max(high-low, math.Max(math.Abs(high-prevClose), math.Abs(low-prevClose)))
}

// Supertrend returns (value, isUptrend) using an ATR(period) band at
// multiplier widths around the median price.
func Supertrend(highs, lows, closes []float64, period int, multiplier float64) (value []float64, up []bool) {
	n := len(closes)
	value = nanSlice(n)
	up = make([]bool, n)
	atr := atrSeries(highs, lows, closes, period)

	finalUpper := make([]float64, n)
	finalLower := make([]float64, n)
	trendUp := true

	for i := 0; i < n; i++ {
		if math.IsNaN(atr[i]) {
			continue
		}
		median := (highs[i] + lows[i]) / 2
		basicUpper := median + multiplier*atr[i]
		basicLower := median - multiplier*atr[i]

		if i == 0 || finalUpper[i-1] == 0 {
			finalUpper[i] = basicUpper
			finalLower[i] = basicLower
		} else {
			if basicUpper < finalUpper[i-1] || closes[i-1] > finalUpper[i-1] {
				finalUpper[i] = basicUpper
			} else {
				finalUpper[i] = finalUpper[i-1]
			}
			if basicLower > finalLower[i-1] || closes[i-1] < finalLower[i-1] {
				finalLower[i] = basicLower
			} else {
				finalLower[i] = finalLower[i-1]
			}
		}

		if closes[i] > finalUpper[i] {
			trendUp = true
		} else if closes[i] < finalLower[i] {
			trendUp = false
		}

		up[i] = trendUp
		if trendUp {
			value[i] = finalLower[i]
		} else {
			value[i] = finalUpper[i]
		}
	}
	return
}

func atrSeries(highs, lows, closes []float64, period int) []float64 {
	n := len(closes)
	out := nanSlice(n)
	if n <= period {
		return out
	}
	sum := 0.0
	for i := 1; i <= period; i++ {
		sum += trueRange(highs[i], lows[i], closes[i-1])
	}
	out[period] = sum / float64(period)
	for i := period + 1; i < n; i++ {
		tr := trueRange(highs[i], lows[i], closes[i-1])
		out[i] = (out[i-1]*float64(period-1) + tr) / float64(period)
	}
	return out
}

// Stochastic returns (%K, %D) over period bars with a dPeriod SMA smooth.
func Stochastic(highs, lows, closes []float64, period, dPeriod int) (k, d []float64) {
	n := len(closes)
	k = nanSlice(n)
	for i := period - 1; i < n; i++ {
		hh := highs[i-period+1]
		ll := lows[i-period+1]
		for j := i - period + 2; j <= i; j++ {
			if highs[j] > hh {
				hh = highs[j]
			}
			if lows[j] < ll {
				ll = lows[j]
			}
		}
		if hh == ll {
			k[i] = 50
		} else {
			k[i] = 100 * (closes[i] - ll) / (hh - ll)
		}
	}
	d = nanSlice(n)
	if period > 0 && period <= n {
		copy(d[period-1:], SMA(k[period-1:], dPeriod))
	}
	return
}

// PSAR is the parabolic stop-and-reverse indicator.
func PSAR(highs, lows []float64, step, maxStep float64) []float64 {
	n := len(highs)
	out := nanSlice(n)
	if n < 2 {
		return out
	}
	risingTrend := true
	af := step
	ep := highs[0]
	sar := lows[0]

	for i := 1; i < n; i++ {
		sar = sar + af*(ep-sar)
		if risingTrend {
			if lows[i] < sar {
				risingTrend = false
				sar = ep
				ep = lows[i]
				af = step
			} else {
				if highs[i] > ep {
					ep = highs[i]
					af = math.Min(af+step, maxStep)
				}
			}
		} else {
			if highs[i] > sar {
				risingTrend = true
				sar = ep
				ep = highs[i]
				af = step
			} else {
				if lows[i] < ep {
					ep = lows[i]
					af = math.Min(af+step, maxStep)
				}
			}
		}
		out[i] = sar
	}
	return out
}

// Donchian returns (upper, lower, middle) channels over period bars.
func Donchian(highs, lows []float64, period int) (upper, lower, middle []float64) {
	n := len(highs)
	upper, lower, middle = nanSlice(n), nanSlice(n), nanSlice(n)
	for i := period - 1; i < n; i++ {
		hh := highs[i-period+1]
		ll := lows[i-period+1]
		for j := i - period + 2; j <= i; j++ {
			if highs[j] > hh {
				hh = highs[j]
			}
			if lows[j] < ll {
				ll = lows[j]
			}
		}
		upper[i] = hh
		lower[i] = ll
		middle[i] = (hh + ll) / 2
	}
	return
}

// WilliamsR is Williams %R over period bars.
func WilliamsR(highs, lows, closes []float64, period int) []float64 {
	n := len(closes)
	out := nanSlice(n)
	for i := period - 1; i < n; i++ {
		hh := highs[i-period+1]
		ll := lows[i-period+1]
		for j := i - period + 2; j <= i; j++ {
			if highs[j] > hh {
				hh = highs[j]
			}
			if lows[j] < ll {
				ll = lows[j]
			}
		}
		if hh == ll {
			out[i] = -50
		} else {
			out[i] = -100 * (hh - closes[i]) / (hh - ll)
		}
	}
	return out
}
