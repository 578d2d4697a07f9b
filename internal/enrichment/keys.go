package enrichment

import "strconv"

// Key prefixes and hash fields shared with the bootstrap job that populates
// the cache.
const (
	PrefixTrip    = "dvj:"
	PrefixStop    = "jpp:"
	PrefixJore    = "jore:"
	PrefixMetro   = "metro:"
	KeyLastUpdate = "cache:last-update"

	FieldDvjID        = "dvj-id"
	FieldRouteName    = "route-name"
	FieldDirection    = "direction"
	FieldStartTime    = "start-time"
	FieldOperatingDay = "operating-day"

	FieldStartStopNumber = "start-stop-number"
	FieldStartDatetime   = "start-datetime"
)

// MetroTimeLayout renders metro journey start instants in UTC.
const MetroTimeLayout = "2006-01-02T15:04:05.000Z"

// TripKey is the trip-context key of a dated vehicle journey.
func TripKey(dvjID int64) string {
	return PrefixTrip + strconv.FormatInt(dvjID, 10)
}

// StopKey is the stop-context key of a journey pattern point.
func StopKey(jppGid int64) string {
	return PrefixStop + strconv.FormatInt(jppGid, 10)
}

// JoreKey is the reverse-lookup key from a scheduled departure to its dated
// vehicle journey id. operatingDay is yyyyMMdd and startTime HH:mm:ss, where
// hours may run past 23 on the service day.
func JoreKey(routeName string, direction int, operatingDay, startTime string) string {
	return PrefixJore + routeName + "-" + strconv.Itoa(direction) + "-" + operatingDay + "-" + startTime
}

// MetroKey is the key of a metro journey starting from stopNumber at
// startDatetime, which is formatted with MetroTimeLayout.
func MetroKey(stopNumber, startDatetime string) string {
	return PrefixMetro + stopNumber + "_" + startDatetime
}
