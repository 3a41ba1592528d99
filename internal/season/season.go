// Package season は会員シーズンの算出、割引期間の判定、年齢区分の算出を提供する。
//
// シーズンは8月1日前後で切り替わる。年の長さを365.25日で近似しているため、
// 年の境界付近で計算上の年オフセットが1ずれる場合があるが、算出されるシーズンは変わらない。
// この近似は下流の閾値がこれに依存しているため補正しない。
package season

import (
	"time"

	"github.com/hitoshi/ffmesync/internal/model"
)

const (
	// epoch2020 は2020-01-01T00:00:00ZのUnix秒。シーズン2020の基準点。
	epoch2020 int64 = 1577836800
	// secondsPerYear は平均年長（365.25日）の秒数。
	secondsPerYear int64 = 31557600

	// 1月1日から5月1日、8月1日までの秒数。年オフセットが4の倍数の年は1日分多い。
	leapMay1     int64 = 10540800
	leapAugust1  int64 = 18316800
	plainMay1    int64 = 10454400
	plainAugust1 int64 = 18230400
)

// split は基準点からの経過秒を年オフセットと近似年内の経過秒に分解する。
// 除算は切り捨て。
func split(ts int64) (offset int64, elapsed int64) {
	since := ts - epoch2020
	offset = since / secondsPerYear
	elapsed = since - offset*secondsPerYear
	return offset, elapsed
}

// thresholds は年オフセットのうるう年パリティに応じた5月1日・8月1日の閾値を返す。
func thresholds(offset int64) (may1, august1 int64) {
	if offset%4 == 0 {
		return leapMay1, leapAugust1
	}
	return plainMay1, plainAugust1
}

// Season はUnix秒のタイムスタンプが属するシーズンを返す。
// 近似年内の経過秒が8月1日の閾値を超えると翌シーズンになる。
func Season(ts int64) int {
	offset, elapsed := split(ts)
	_, august1 := thresholds(offset)
	if elapsed > august1 {
		return 2020 + int(offset) + 1
	}
	return 2020 + int(offset)
}

// IsDiscountPeriod はタイムスタンプが年次割引期間内かを返す。
// 5月1日の閾値と8月1日の閾値の間（両端を含まない）が割引期間となる。
func IsDiscountPeriod(ts int64) bool {
	offset, elapsed := split(ts)
	may1, august1 := thresholds(offset)
	return elapsed > may1 && elapsed < august1
}

// Clock は現在時刻を返す関数。テストで差し替える。
type Clock func() time.Time

// Current は現在時刻のシーズンを返す。clockがnilの場合はtime.Nowを使用する。
func Current(clock Clock) int {
	return Season(now(clock).Unix())
}

// CurrentDiscount は現在時刻が割引期間内かを返す。
func CurrentDiscount(clock Clock) bool {
	return IsDiscountPeriod(now(clock).Unix())
}

func now(clock Clock) time.Time {
	if clock == nil {
		return time.Now()
	}
	return clock()
}

// Category は生年月日（YYYYMMDD）とシーズンから年齢区分を算出する。
// 年齢はシーズンから生年を引いた値。
func Category(birthDate int, season int) model.AgeCategory {
	age := season - model.BirthYear(birthDate)
	switch {
	case age < 6:
		return model.AgeCategoryBaby
	case age < 8:
		return model.AgeCategoryU8
	case age < 10:
		return model.AgeCategoryU10
	case age < 12:
		return model.AgeCategoryU12
	case age < 14:
		return model.AgeCategoryU14
	case age < 16:
		return model.AgeCategoryU16
	case age < 18:
		return model.AgeCategoryU18
	case age < 20:
		return model.AgeCategoryU20
	case age < 40:
		return model.AgeCategorySeniors
	default:
		return model.AgeCategoryVeterans
	}
}

// LicenseTypeFor は料金見積もりで使う年齢区分ごとのライセンス種別を返す。
// U18以下は青少年ライセンス、それ以外は成人ライセンス。
func LicenseTypeFor(c model.AgeCategory) model.LicenseType {
	if c <= model.AgeCategoryU18 {
		return model.LicenseTypeChild
	}
	return model.LicenseTypeAdult
}
