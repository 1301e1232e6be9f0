package volleymanager

import (
	"volleymanager-backend/lib/telemetry"
)

var tracer = telemetry.Tracer("volleymanager-backend.lib.scrapers.volleymanager")
var meter = telemetry.Meter("volleymanager-backend.lib.scrapers.volleymanager")

var loginOutcomes, _ = meter.Int64Counter(
	"volleymanager.login.outcomes",
)
var sessionChecks, _ = meter.Int64Counter(
	"volleymanager.session.checks",
)
