package timezone

import (
	"time"
	_ "time/tzdata"
)

var Location *time.Location

func init() {
	var err error
	Location, err = time.LoadLocation("Europe/Zurich")
	if err != nil {
		panic(err)
	}
}

// dates are shown in swiss local time, the same as the backend renders them
func Now() time.Time {
	return time.Now().In(Location)
}

func Format(t time.Time) string {
	return t.In(Location).Format("2006-01-02 15:04 MST")
}
