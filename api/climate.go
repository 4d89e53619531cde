package api

import (
	"context"
	"net/http"
	"sort"
	"strconv"
)

// YearlyTemperature is one year of anomaly data. Missing series are nil.
type YearlyTemperature struct {
	Year          int      `json:"year"`
	Upper         *float64 `json:"upper"`
	Lower         *float64 `json:"lower"`
	GlobalAverage *float64 `json:"global_average"`
}

// TemperatureData maps a region name ("World", "Northern Hemisphere", ...) to
// its series ordered by year.
type TemperatureData map[string][]YearlyTemperature

// Regions returns the region names in sorted order.
func (t TemperatureData) Regions() []string {
	out := make([]string, 0, len(t))
	for r := range t {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// CO2Data holds total emissions per year per ISO country code.
type CO2Data struct {
	ByYear map[string]map[string]float64 `json:"co2_data"`
}

// Years returns the years present, ascending.
func (d CO2Data) Years() []int {
	out := make([]int, 0, len(d.ByYear))
	for y := range d.ByYear {
		if n, err := strconv.Atoi(y); err == nil {
			out = append(out, n)
		}
	}
	sort.Ints(out)
	return out
}

// Emission is one country's value for a year.
type Emission struct {
	ISOCode string
	Value   float64
}

// Top returns the n largest emitters of year, largest first. n <= 0 returns all.
func (d CO2Data) Top(year, n int) []Emission {
	values := d.ByYear[strconv.Itoa(year)]
	out := make([]Emission, 0, len(values))
	for iso, v := range values {
		out = append(out, Emission{ISOCode: iso, Value: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Value != out[j].Value {
			return out[i].Value > out[j].Value
		}
		return out[i].ISOCode < out[j].ISOCode
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// Temperature fetches anomaly series for every region.
func (c *Client) Temperature(ctx context.Context) (TemperatureData, error) {
	var data TemperatureData
	if err := c.r.do(ctx, http.MethodGet, PathTemperature, nil, &data); err != nil {
		return nil, err
	}
	return data, nil
}

// CO2ByYear fetches emissions grouped by year.
func (c *Client) CO2ByYear(ctx context.Context) (*CO2Data, error) {
	var data CO2Data
	if err := c.r.do(ctx, http.MethodGet, PathCO2, nil, &data); err != nil {
		return nil, err
	}
	return &data, nil
}
