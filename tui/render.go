package tui

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"charm.land/lipgloss/v2"
	"charm.land/lipgloss/v2/table"

	"github.com/go-authgate/climate-cli/api"
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...)
}

func formatValue(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', 2, 64)
}

// FormatUser renders the account details.
func FormatUser(u *api.User) string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		name = "-"
	}
	email := u.Email
	if email == "" {
		email = "-"
	}
	return newTable("Field", "Value").
		Row("Username", u.Username).
		Row("Email", email).
		Row("Name", name).
		Render()
}

// FormatTemperature renders the last n years of one region. n <= 0 renders all.
func FormatTemperature(data api.TemperatureData, region string, n int) (string, error) {
	series, ok := data[region]
	if !ok {
		return "", fmt.Errorf("unknown region %q (available: %s)", region, strings.Join(data.Regions(), ", "))
	}
	if n > 0 && len(series) > n {
		series = series[len(series)-n:]
	}

	t := newTable("Year", "Lower", "Average", "Upper")
	for _, y := range series {
		t.Row(strconv.Itoa(y.Year), formatValue(y.Lower), formatValue(y.GlobalAverage), formatValue(y.Upper))
	}
	return t.Render(), nil
}

// FormatCO2 renders the top n emitters of year. Year 0 picks the latest year.
func FormatCO2(data *api.CO2Data, year, n int) (string, int, error) {
	years := data.Years()
	if len(years) == 0 {
		return "", 0, errors.New("no emission data")
	}
	if year == 0 {
		year = years[len(years)-1]
	}

	top := data.Top(year, n)
	if len(top) == 0 {
		return "", year, fmt.Errorf("no emission data for %d (range %d-%d)", year, years[0], years[len(years)-1])
	}

	t := newTable("#", "Country", "CO2 (Mt)")
	for i, e := range top {
		t.Row(strconv.Itoa(i+1), e.ISOCode, strconv.FormatFloat(e.Value, 'f', 1, 64))
	}
	return t.Render(), year, nil
}
