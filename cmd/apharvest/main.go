package main

import (
	"context"

	"apharvest/cmd/apharvest/commands"
	"apharvest/lib/serviceutil"
	"apharvest/lib/telemetry"
)

func main() {
	ctx := serviceutil.SignalContext()

	telemetry.InitSlog(true)
	t, err := telemetry.SetupFromEnv(ctx, "apharvest")
	if err != nil {
		serviceutil.Fatal("setup telemetry", err)
	}
	defer t.Shutdown(context.Background())

	commands.ExecuteContext(ctx)
}
