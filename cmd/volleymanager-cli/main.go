package main

import (
	"context"
	"log/slog"
	"volleymanager-backend/cmd/volleymanager-cli/commands"
	"volleymanager-backend/lib/serviceutil"
	"volleymanager-backend/lib/telemetry"
)

func main() {
	ctx := serviceutil.SignalContext()

	t, err := telemetry.SetupFromEnv(ctx, "volleymanager-cli")
	if err != nil {
		slog.Debug("telemetry disabled", "err", err)
	}
	defer t.Shutdown(context.Background())

	commands.ExecuteContext(ctx)
}
