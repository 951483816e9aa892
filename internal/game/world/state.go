package world

import "math"

// Weather is the ambient weather type.
type Weather string

const (
	WeatherClear  Weather = "clear"
	WeatherCloudy Weather = "cloudy"
	WeatherRain   Weather = "rain"
	WeatherFog    Weather = "fog"
)

// AllWeathers lists every valid weather type, for random transitions.
var AllWeathers = []Weather{WeatherClear, WeatherCloudy, WeatherRain, WeatherFog}

// Valid reports whether w is one of the defined weather types.
func (w Weather) Valid() bool {
	switch w {
	case WeatherClear, WeatherCloudy, WeatherRain, WeatherFog:
		return true
	}
	return false
}

// State is the shared ambient record broadcast to every session.
type State struct {
	// Weather is the current weather type.
	Weather Weather
	// Intensity is the weather strength in [0, 1].
	Intensity float64
	// GameTime is the time-of-day in game hours, in [0, 24), wrapping.
	GameTime float64
}

// AdvanceTime returns the game time after adding hours, wrapped into
// [0, 24).
//
// Precondition: hours must be >= 0.
func AdvanceTime(gameTime, hours float64) float64 {
	t := math.Mod(gameTime+hours, 24)
	if t < 0 {
		t += 24
	}
	return t
}
