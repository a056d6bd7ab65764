package main

// Modules compiled into the binary.
import (
	_ "github.com/flemzord/toolbench/internal/cron"
	_ "github.com/flemzord/toolbench/internal/engine"
	_ "github.com/flemzord/toolbench/internal/gateway"
	_ "github.com/flemzord/toolbench/internal/telemetry"
	_ "github.com/flemzord/toolbench/modules/session/sqlite"
	_ "github.com/flemzord/toolbench/modules/tools/smarthome"
)
