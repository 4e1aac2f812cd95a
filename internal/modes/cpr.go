package modes

import (
	"math"
	"time"
)

// CPRReport is one raw airborne position report
type CPRReport struct {
	Lat  uint32 // 17-bit encoded latitude
	Lon  uint32 // 17-bit encoded longitude
	Odd  bool   // F flag
	Time time.Time
}

// Position is a resolved coordinate. Longitude is in [0, 360).
type Position struct {
	Latitude  float64
	Longitude float64
}

// SignedLongitude returns the longitude in (-180, 180]
func (p Position) SignedLongitude() float64 {
	if p.Longitude > 180 {
		return p.Longitude - 360
	}
	return p.Longitude
}

// nlThresholds holds the latitude boundaries where the number of longitude
// zones drops by one, starting from 59 zones at the equator.
var nlThresholds = [...]float64{
	10.47047130, 14.82817437, 18.18626357, 21.02939493, 23.54504487,
	25.82924707, 27.93898710, 29.91135686, 31.77209708, 33.53993436,
	35.22899598, 36.85025108, 38.41241892, 39.92256684, 41.38651832,
	42.80914012, 44.19454951, 45.54626723, 46.86733252, 48.16039128,
	49.42776439, 50.67150166, 51.89342469, 53.09516153, 54.27817472,
	55.44378444, 56.59318756, 57.72747354, 58.84763776, 59.95459277,
	61.04917774, 62.13216659, 63.20427479, 64.26616523, 65.31845310,
	66.36171008, 67.39646774, 68.42322022, 69.44242631, 70.45451075,
	71.45986473, 72.45884545, 73.45177442, 74.43893416, 75.42056257,
	76.39684391, 77.36789461, 78.33374083, 79.29428225, 80.24923213,
	81.19801349, 82.13956981, 83.07199445, 83.99173563, 84.89166191,
	85.75541621, 86.53536998, 87.00000000,
}

// cprNL returns the number of longitude zones at the given latitude
func cprNL(lat float64) int {
	lat = math.Abs(lat)
	for i, threshold := range nlThresholds {
		if lat < threshold {
			return 59 - i
		}
	}
	return 1
}

// cprN returns the number of longitude zones for the given parity, at least 1
func cprN(lat float64, odd bool) int {
	n := cprNL(lat)
	if odd {
		n--
	}
	if n < 1 {
		n = 1
	}
	return n
}

// cprMod is a modulo that is always non-negative
func cprMod(a, b int) int {
	res := a % b
	if res < 0 {
		res += b
	}
	return res
}

// ResolveCPR performs a global decode of an even/odd report pair. The more
// recent report determines the result. ok is false when the reports straddle
// a longitude-zone boundary or yield an impossible latitude. Pairing reports
// within a time window is up to the caller.
func ResolveCPR(even, odd CPRReport) (Position, bool) {
	const (
		dLat0 = 360.0 / 60
		dLat1 = 360.0 / 59
	)

	lat0 := float64(even.Lat)
	lat1 := float64(odd.Lat)
	lon0 := float64(even.Lon)
	lon1 := float64(odd.Lon)

	j := int(math.Floor((59*lat0-60*lat1)/CPRLatMax + 0.5))
	rlat0 := dLat0 * (float64(cprMod(j, 60)) + lat0/CPRLatMax)
	rlat1 := dLat1 * (float64(cprMod(j, 59)) + lat1/CPRLatMax)

	// southern hemisphere
	if rlat0 >= 270 {
		rlat0 -= 360
	}
	if rlat1 >= 270 {
		rlat1 -= 360
	}

	if rlat0 < -90 || rlat0 > 90 || rlat1 < -90 || rlat1 > 90 {
		return Position{}, false
	}

	if cprNL(rlat0) != cprNL(rlat1) {
		return Position{}, false
	}

	var pos Position
	if even.Time.After(odd.Time) {
		nl := cprNL(rlat0)
		ni := cprN(rlat0, false)
		m := int(math.Floor((lon0*float64(nl-1)-lon1*float64(nl))/CPRLonMax + 0.5))
		pos.Latitude = rlat0
		pos.Longitude = (360.0 / float64(ni)) * (float64(cprMod(m, ni)) + lon0/CPRLonMax)
	} else {
		nl := cprNL(rlat1)
		ni := cprN(rlat1, true)
		m := int(math.Floor((lon0*float64(nl-1)-lon1*float64(nl))/CPRLonMax + 0.5))
		pos.Latitude = rlat1
		pos.Longitude = (360.0 / float64(ni)) * (float64(cprMod(m, ni)) + lon1/CPRLonMax)
	}

	if pos.Longitude >= 360 {
		pos.Longitude -= 360
	}
	return pos, true
}
