package units

import "math"

func dim(pairs ...int) Dimension {
	var d Dimension
	for i := 0; i+1 < len(pairs); i += 2 {
		d[pairs[i]] = int8(pairs[i+1])
	}
	return d
}

const (
	day  = 86400.0
	year = 365.25 * day
)

var defaultUnits = []Unit{
	{Symbol: "m", Scale: 1, Dim: dim(int(Length), 1)},
	{Symbol: "AU", Scale: 1.495978707e11, Dim: dim(int(Length), 1)},
	{Symbol: "pc", Scale: 3.0856775814913673e16, Dim: dim(int(Length), 1)},
	{Symbol: "ly", Scale: 9.4607304725808e15, Dim: dim(int(Length), 1)},
	{Symbol: "Rearth", Scale: 6.3781e6, Dim: dim(int(Length), 1)},
	{Symbol: "Rjup", Scale: 7.1492e7, Dim: dim(int(Length), 1)},
	{Symbol: "Rsun", Scale: 6.957e8, Dim: dim(int(Length), 1)},

	{Symbol: "s", Scale: 1, Dim: dim(int(Time), 1)},
	{Symbol: "min", Scale: 60, Dim: dim(int(Time), 1)},
	{Symbol: "h", Scale: 3600, Dim: dim(int(Time), 1)},
	{Symbol: "d", Scale: day, Dim: dim(int(Time), 1)},
	{Symbol: "yr", Scale: year, Dim: dim(int(Time), 1)},
	{Symbol: "Hz", Scale: 1, Dim: dim(int(Time), -1)},

	{Symbol: "g", Scale: 1e-3, Dim: dim(int(Mass), 1)},
	{Symbol: "Mearth", Scale: 5.9722e24, Dim: dim(int(Mass), 1)},
	{Symbol: "Mjup", Scale: 1.89812e27, Dim: dim(int(Mass), 1)},
	{Symbol: "Msun", Scale: 1.98847e30, Dim: dim(int(Mass), 1)},

	{Symbol: "W", Scale: 1, Dim: dim(int(Mass), 1, int(Length), 2, int(Time), -3)},
	{Symbol: "Lsun", Scale: 3.828e26, Dim: dim(int(Mass), 1, int(Length), 2, int(Time), -3)},

	{Symbol: "rad", Scale: 1, Dim: dim(int(Angle), 1)},
	{Symbol: "deg", Scale: math.Pi / 180, Dim: dim(int(Angle), 1)},
	{Symbol: "arcmin", Scale: math.Pi / 10800, Dim: dim(int(Angle), 1)},
	{Symbol: "arcsec", Scale: math.Pi / 648000, Dim: dim(int(Angle), 1)},
	{Symbol: "mas", Scale: math.Pi / 648000000, Dim: dim(int(Angle), 1)},

	{Symbol: "K", Scale: 1, Dim: dim(int(Temperature), 1)},
	{Symbol: "lambda/D", Scale: 1, Dim: dim(int(LambdaOverD), 1)},
	{Symbol: "mag", Scale: 1, Dim: dim(int(Magnitude), 1)},
	{Symbol: "count", Scale: 1, Dim: dim(int(Count), 1)},
	{Symbol: "%", Scale: 0.01},
}

var defaultAliases = map[string]string{
	"years":     "yr",
	"year":      "yr",
	"yrs":       "yr",
	"days":      "d",
	"day":       "d",
	"hours":     "h",
	"hour":      "h",
	"hr":        "h",
	"hrs":       "h",
	"sec":       "s",
	"seconds":   "s",
	"l/D":       "lambda/D",
	"L/D":       "lambda/D",
	"lam/D":     "lambda/D",
	"lambda/D":  "lambda/D",
	"counts":    "count",
	"cts":       "count",
	"photon":    "count",
	"photons":   "count",
	"electrons": "count",
	"micron":    "um",
	"microns":   "um",
	"µm":        "um",
	"parsec":    "pc",
	"parsecs":   "pc",
	"au":        "AU",
	"degrees":   "deg",
	"degree":    "deg",
	"mags":      "mag",
	"magnitude": "mag",
	"Msol":      "Msun",
	"Lsol":      "Lsun",
	"Rsol":      "Rsun",
	"earthMass": "Mearth",
	"earthRad":  "Rearth",
	"percent":   "%",
}

var prefixable = map[string]bool{
	"m":  true,
	"s":  true,
	"g":  true,
	"W":  true,
	"Hz": true,
}

var siPrefixes = []struct {
	prefix string
	factor float64
}{
	{"n", 1e-9},
	{"u", 1e-6},
	{"µ", 1e-6},
	{"m", 1e-3},
	{"c", 1e-2},
	{"k", 1e3},
	{"M", 1e6},
	{"G", 1e9},
}
