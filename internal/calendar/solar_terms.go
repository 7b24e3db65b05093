package calendar

import "time"

// SolarTerm is one of the 24 periods of the solar year. Index 0 is 小寒 (early January).
type SolarTerm struct {
	Index int       `json:"index"`
	Name  string    `json:"name"`
	Start time.Time `json:"start"`
}

var termNames = [24]string{
	"小寒", "大寒", "立春", "雨水", "啓蟄", "春分",
	"清明", "穀雨", "立夏", "小満", "芒種", "夏至",
	"小暑", "大暑", "立秋", "処暑", "白露", "秋分",
	"寒露", "霜降", "立冬", "小雪", "大雪", "冬至",
}

// termStartDays holds the JST start day-of-month of each term; the month of
// term i is i/2+1. Years outside the table use the nearest known year.
var termStartDays = map[int][24]int{
	2020: {6, 20, 4, 19, 5, 20, 4, 19, 5, 20, 5, 21, 7, 22, 7, 23, 7, 22, 8, 23, 7, 22, 7, 21},
	2021: {5, 20, 3, 18, 5, 20, 4, 20, 5, 21, 5, 21, 7, 22, 7, 23, 7, 23, 8, 23, 7, 22, 7, 22},
	2022: {5, 20, 4, 19, 5, 21, 5, 20, 5, 21, 6, 21, 7, 23, 7, 23, 8, 23, 8, 23, 7, 22, 7, 22},
	2023: {6, 20, 4, 19, 6, 21, 5, 20, 6, 21, 6, 21, 7, 23, 8, 23, 8, 23, 8, 24, 8, 22, 7, 22},
	2024: {6, 20, 4, 19, 5, 20, 4, 19, 5, 20, 5, 21, 6, 22, 7, 22, 7, 22, 8, 23, 7, 22, 7, 21},
	2025: {5, 20, 3, 18, 5, 20, 4, 20, 5, 21, 5, 21, 7, 22, 7, 23, 7, 23, 8, 23, 7, 22, 7, 22},
	2026: {5, 20, 4, 19, 5, 20, 5, 20, 5, 21, 6, 21, 7, 23, 7, 23, 7, 23, 8, 23, 7, 22, 7, 22},
	2027: {5, 20, 4, 19, 6, 21, 5, 20, 6, 21, 6, 21, 7, 23, 8, 23, 8, 23, 8, 24, 8, 22, 7, 22},
	2028: {6, 20, 4, 19, 5, 20, 4, 19, 5, 20, 5, 21, 6, 22, 7, 22, 7, 22, 8, 23, 7, 22, 6, 21},
	2029: {5, 20, 3, 18, 5, 20, 4, 20, 5, 21, 5, 21, 7, 22, 7, 23, 7, 23, 8, 23, 7, 22, 7, 21},
	2030: {5, 20, 4, 18, 5, 20, 5, 20, 5, 21, 5, 21, 7, 23, 7, 23, 7, 23, 8, 23, 7, 22, 7, 22},
}

const (
	firstTableYear = 2020
	lastTableYear  = 2030
)

// TermName returns the name of term i, wrapping indexes outside 0..23
func TermName(i int) string {
	return termNames[((i%24)+24)%24]
}

// termStart returns the start date of term i in year, using the nearest table year's days
func termStart(year, i int) time.Time {
	tableYear := year
	if tableYear < firstTableYear {
		tableYear = firstTableYear
	}
	if tableYear > lastTableYear {
		tableYear = lastTableYear
	}
	days := termStartDays[tableYear]
	return time.Date(year, time.Month(i/2+1), days[i], 0, 0, 0, 0, time.UTC)
}

// SolarTermFor returns the term containing date. Days before 小寒 belong to the
// previous year's 冬至.
func SolarTermFor(date time.Time) SolarTerm {
	d := DateOnly(date)
	year := d.Year()

	for i := 23; i >= 0; i-- {
		start := termStart(year, i)
		if !d.Before(start) {
			return SolarTerm{Index: i, Name: TermName(i), Start: start}
		}
	}

	start := termStart(year-1, 23)
	return SolarTerm{Index: 23, Name: TermName(23), Start: start}
}
