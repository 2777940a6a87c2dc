// Command predict reads gauge CSV exports, sends their joined series to a
// deployed forecasting endpoint and prints the returned quantile forecast.
//
// Usage:
//
//	predict --endpoint http://localhost:8081/invocations --prediction-length 24 flow_1.csv rain_1.csv
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/gauge-forecast-etl/internal/observability"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(observability.NewMetrics()).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
