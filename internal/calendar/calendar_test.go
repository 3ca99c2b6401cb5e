package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsWeekend(t *testing.T) {
	// 2026-10-17 is a Saturday.
	sat := time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC)
	assert.True(t, IsWeekend(sat))
	assert.True(t, IsWeekend(sat.AddDate(0, 0, 1)))
	assert.False(t, IsWeekend(sat.AddDate(0, 0, 2)))
	assert.True(t, IsBusinessDay(sat.AddDate(0, 0, -1)))
}

func TestDayKeepsLocalDate(t *testing.T) {
	loc := time.FixedZone("IST", 5*3600+1800)
	// 01:00 on the 16th in IST is 19:30 on the 15th in UTC.
	late := time.Date(2026, 10, 16, 1, 0, 0, 0, loc)
	assert.Equal(t, "2026-10-16", Format(Day(late)))
	assert.Equal(t, "2026-10-15", Format(Today(late, time.UTC)))
	assert.Equal(t, "2026-10-16", Format(Today(late.UTC(), loc)))
}

func TestRange(t *testing.T) {
	start := time.Date(2026, 12, 30, 15, 0, 0, 0, time.UTC)
	got := Range(start, 4)
	require.Len(t, got, 4)
	assert.Equal(t, "2026-12-30", Format(got[0]))
	assert.Equal(t, "2027-01-02", Format(got[3]))
	assert.Nil(t, Range(start, 0))
}

func TestMonthRange(t *testing.T) {
	assert.Len(t, MonthRange(2028, time.February), 29)
	assert.Len(t, MonthRange(2026, time.February), 28)
	assert.Len(t, MonthRange(2026, time.October), 31)
}

func TestParseFormatRoundTrip(t *testing.T) {
	d, err := Parse("2026-10-20")
	require.NoError(t, err)
	assert.Equal(t, "2026-10-20", Format(d))

	_, err = Parse("20/10/2026")
	assert.Error(t, err)
}

func TestAddDaysAndCompare(t *testing.T) {
	d := time.Date(2026, 10, 31, 22, 0, 0, 0, time.UTC)
	next := AddDays(d, 1)
	assert.Equal(t, "2026-11-01", Format(next))
	assert.True(t, Day(d).Before(next))
	assert.Equal(t, "2026-10-31", Format(time.Date(2026, 10, 31, 1, 0, 0, 0, time.UTC)))
}
