// Command advisor analyzes stocks and tracks the resulting recommendations.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"stock-advisor/internal/cli"
	"stock-advisor/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	app := cli.NewApp(logging.NewLogger())
	err := cli.NewRootCmd(app).ExecuteContext(ctx)

	if cerr := app.Close(); cerr != nil {
		app.Logger.Warn().Err(cerr).Msg("Failed to close store")
	}
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
