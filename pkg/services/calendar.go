package services

import (
	"math"
	"time"
)

// チリの固定祝日（月, 日）
var fixedHolidays = [][2]int{
	{1, 1},   // 元日
	{5, 1},   // 労働者の日
	{5, 21},  // 海軍記念日
	{6, 29},  // 聖ペドロと聖パブロ
	{7, 16},  // カルメンの聖母
	{8, 15},  // 聖母被昇天
	{9, 18},  // 独立記念日
	{9, 19},  // 陸軍栄光の日
	{10, 12}, // 新大陸発見の日
	{11, 1},  // 諸聖人の日
	{12, 8},  // 無原罪の御宿り
	{12, 25}, // クリスマス
}

// 年ごとの聖金曜日（移動祝日）
var goodFridays = map[int][2]int{
	2024: {3, 29},
	2025: {4, 18},
	2026: {4, 3},
}

// 給料日として扱う日（5の倍数＋月末）
var paydayDays = map[int]bool{5: true, 10: true, 15: true, 20: true, 25: true}

// holidaysForYear 指定年の祝日集合を月日キー（month*100+day）で返す
func holidaysForYear(year int) map[int]bool {
	set := make(map[int]bool, len(fixedHolidays)+1)
	for _, h := range fixedHolidays {
		set[h[0]*100+h[1]] = true
	}
	if gf, ok := goodFridays[year]; ok {
		set[gf[0]*100+gf[1]] = true
	}
	return set
}

// isHoliday 指定日が祝日かどうか
func isHoliday(t time.Time) bool {
	return holidaysForYear(t.Year())[int(t.Month())*100+t.Day()]
}

// daysToNearestHoliday 前後7日以内で直近の祝日までの日数を返す。
// 戻り値は (祝日からの経過日数, 祝日までの残り日数)。見つからなければ両方7。
func daysToNearestHoliday(t time.Time) (since, until int) {
	since, until = 7, 7
	for d := 1; d <= 7; d++ {
		if since == 7 && isHoliday(t.AddDate(0, 0, -d)) {
			since = d
		}
		if until == 7 && isHoliday(t.AddDate(0, 0, d)) {
			until = d
		}
	}
	if isHoliday(t) {
		since, until = 0, 0
	}
	return since, until
}

// calendarFeatures 1日分のカレンダー特徴量。学習と推論で共通に使う。
type calendarFeatures struct {
	Weekday      float64
	Month        float64
	DayOfMonth   float64
	Year         float64
	WeekOfYear   float64
	Quarter      float64
	DayOfYear    float64
	WeekdaySin   float64
	WeekdayCos   float64
	MonthSin     float64
	MonthCos     float64
	DaySin       float64
	DayCos       float64
	QuarterSin   float64
	QuarterCos   float64
	DayOfYearSin float64
	DayOfYearCos float64
	IsWeekend    float64
	IsMonthStart float64
	IsMidMonth   float64
	IsMonthEnd   float64
	IsMonday     float64
	IsFriday     float64
	IsHoliday    float64
	IsPayday     float64
	DaysSinceHol float64
	DaysUntilHol float64
	NearHoliday  float64 // 祝日の前後2日以内
	IsSummer     float64 // 12〜2月
	IsWinter     float64 // 6〜8月
	IsHighSeason float64 // 夏季＋7・8月
}

// buildCalendarFeatures 日付から決定的にカレンダー特徴量を計算する
func buildCalendarFeatures(t time.Time) calendarFeatures {
	weekday := (int(t.Weekday()) + 6) % 7 // 月曜=0
	month := int(t.Month())
	day := t.Day()
	quarter := (month-1)/3 + 1
	dayOfYear := t.YearDay()
	_, week := t.ISOWeek()

	payday := paydayDays[day] || day >= 28

	since, until := daysToNearestHoliday(t)

	f := calendarFeatures{
		Weekday:      float64(weekday),
		Month:        float64(month),
		DayOfMonth:   float64(day),
		Year:         float64(t.Year()),
		WeekOfYear:   float64(week),
		Quarter:      float64(quarter),
		DayOfYear:    float64(dayOfYear),
		WeekdaySin:   math.Sin(2 * math.Pi * float64(weekday) / 7),
		WeekdayCos:   math.Cos(2 * math.Pi * float64(weekday) / 7),
		MonthSin:     math.Sin(2 * math.Pi * float64(month) / 12),
		MonthCos:     math.Cos(2 * math.Pi * float64(month) / 12),
		DaySin:       math.Sin(2 * math.Pi * float64(day) / 31),
		DayCos:       math.Cos(2 * math.Pi * float64(day) / 31),
		QuarterSin:   math.Sin(2 * math.Pi * float64(quarter) / 4),
		QuarterCos:   math.Cos(2 * math.Pi * float64(quarter) / 4),
		DayOfYearSin: math.Sin(2 * math.Pi * float64(dayOfYear) / 365.25),
		DayOfYearCos: math.Cos(2 * math.Pi * float64(dayOfYear) / 365.25),
		DaysSinceHol: float64(since),
		DaysUntilHol: float64(until),
	}
	if weekday >= 5 {
		f.IsWeekend = 1
	}
	if day <= 7 {
		f.IsMonthStart = 1
	}
	if day >= 14 && day <= 16 {
		f.IsMidMonth = 1
	}
	if day >= 25 {
		f.IsMonthEnd = 1
	}
	if weekday == 0 {
		f.IsMonday = 1
	}
	if weekday == 4 {
		f.IsFriday = 1
	}
	if isHoliday(t) {
		f.IsHoliday = 1
	}
	if payday {
		f.IsPayday = 1
	}
	if since <= 2 || until <= 2 {
		f.NearHoliday = 1
	}
	if month == 12 || month <= 2 {
		f.IsSummer = 1
		f.IsHighSeason = 1
	}
	if month >= 6 && month <= 8 {
		f.IsWinter = 1
	}
	if month == 7 || month == 8 {
		f.IsHighSeason = 1
	}
	return f
}

// calendarFeatureNames 特徴量スキーマに載せるカレンダー特徴量の順序付き名前
var calendarFeatureNames = []string{
	"dia_semana", "mes", "dia_mes", "anio", "semana_anio", "trimestre", "dia_anio",
	"dia_semana_sin", "dia_semana_cos", "mes_sin", "mes_cos", "dia_sin", "dia_cos",
	"trimestre_sin", "trimestre_cos", "dia_anio_sin", "dia_anio_cos",
	"es_fin_semana", "es_inicio_mes", "es_quincena", "es_fin_mes", "es_lunes", "es_viernes",
	"es_feriado", "es_dia_pago", "dias_desde_feriado", "dias_hasta_feriado", "cerca_feriado",
	"es_verano", "es_invierno", "es_temporada_alta",
}

// vector カレンダー特徴量をスキーマ順のスライスに展開する
func (f calendarFeatures) vector() []float64 {
	return []float64{
		f.Weekday, f.Month, f.DayOfMonth, f.Year, f.WeekOfYear, f.Quarter, f.DayOfYear,
		f.WeekdaySin, f.WeekdayCos, f.MonthSin, f.MonthCos, f.DaySin, f.DayCos,
		f.QuarterSin, f.QuarterCos, f.DayOfYearSin, f.DayOfYearCos,
		f.IsWeekend, f.IsMonthStart, f.IsMidMonth, f.IsMonthEnd, f.IsMonday, f.IsFriday,
		f.IsHoliday, f.IsPayday, f.DaysSinceHol, f.DaysUntilHol, f.NearHoliday,
		f.IsSummer, f.IsWinter, f.IsHighSeason,
	}
}
