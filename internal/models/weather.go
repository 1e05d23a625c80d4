package models

// WeatherSnapshot is one current-conditions reading from the weather provider.
// TemperatureKelvin is the raw provider value; no unit conversion is applied.
type WeatherSnapshot struct {
	LocationName      string  `json:"locationName"`
	TemperatureKelvin float64 `json:"temperatureKelvin"`
	HumidityPercent   int     `json:"humidityPercent"`
	Description       string  `json:"description"`
}

// AggregatedView is the GET /news response: stored news plus a weather summary line.
// Temperature is 0 when weather was unavailable.
type AggregatedView struct {
	News           []NewsItem `json:"news"`
	WeatherSummary string     `json:"weatherSummary"`
	Temperature    float64    `json:"temperature"`
}
