package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestIsHoliday(t *testing.T) {
	// 固定祝日
	assert.True(t, isHoliday(date(2025, 9, 18)), "独立記念日は祝日")
	assert.True(t, isHoliday(date(2025, 1, 1)), "元日は祝日")
	assert.True(t, isHoliday(date(2026, 12, 25)), "クリスマスは祝日")

	// 移動祝日（聖金曜日）
	assert.True(t, isHoliday(date(2024, 3, 29)))
	assert.True(t, isHoliday(date(2025, 4, 18)))
	assert.True(t, isHoliday(date(2026, 4, 3)))
	assert.False(t, isHoliday(date(2025, 3, 29)), "2024年の聖金曜日は2025年には適用されない")

	assert.False(t, isHoliday(date(2025, 3, 11)))
}

func TestDaysToNearestHoliday(t *testing.T) {
	// 2025-09-18 が祝日。前日と翌日
	since, until := daysToNearestHoliday(date(2025, 9, 17))
	assert.Equal(t, 1, until)

	since, until = daysToNearestHoliday(date(2025, 9, 20))
	assert.Equal(t, 2, since)

	// 祝日当日は両方0
	since, until = daysToNearestHoliday(date(2025, 9, 18))
	assert.Equal(t, 0, since)
	assert.Equal(t, 0, until)

	// 前後7日に祝日がない日は両方7
	since, until = daysToNearestHoliday(date(2025, 3, 11))
	assert.Equal(t, 7, since)
	assert.Equal(t, 7, until)
}

func TestBuildCalendarFeatures(t *testing.T) {
	// 2025-08-30 は土曜日
	f := buildCalendarFeatures(date(2025, 8, 30))
	assert.Equal(t, 5.0, f.Weekday, "月曜=0なので土曜=5")
	assert.Equal(t, 1.0, f.IsWeekend)
	assert.Equal(t, 1.0, f.IsPayday, "28日以降は給料日扱い")
	assert.Equal(t, 1.0, f.IsMonthEnd)
	assert.Equal(t, 1.0, f.IsWinter, "8月は冬（チリ）")
	assert.Equal(t, 1.0, f.IsHighSeason)
	assert.Equal(t, 0.0, f.IsSummer)

	// 給料日（15日）
	f = buildCalendarFeatures(date(2025, 10, 15))
	assert.Equal(t, 1.0, f.IsPayday)
	assert.Equal(t, 1.0, f.IsMidMonth)

	// 月初は7日まで
	f = buildCalendarFeatures(date(2025, 10, 7))
	assert.Equal(t, 1.0, f.IsMonthStart)
	f = buildCalendarFeatures(date(2025, 10, 8))
	assert.Equal(t, 0.0, f.IsMonthStart)

	// 夏（1月）
	f = buildCalendarFeatures(date(2026, 1, 12))
	assert.Equal(t, 1.0, f.IsSummer)
	assert.Equal(t, 1.0, f.IsHighSeason)
	assert.Equal(t, 0.0, f.IsWinter)
	assert.Equal(t, 1.0, f.IsMonday)
}

func TestCalendarFeaturesDeterministic(t *testing.T) {
	d := date(2025, 12, 24)
	v1 := buildCalendarFeatures(d).vector()
	v2 := buildCalendarFeatures(d).vector()
	assert.Equal(t, v1, v2)
	assert.Len(t, v1, len(calendarFeatureNames), "ベクトル長はスキーマの名前数と一致する")
}
