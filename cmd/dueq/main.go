package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"dueq/internal/app"
	"dueq/pkg/systemd"
)

func main() {
	var (
		cfgPath string
		demo    bool
	)
	flag.StringVar(&cfgPath, "config", "", "path to config (json or yaml); empty uses defaults")
	flag.BoolVar(&demo, "demo", true, "schedule the demo tasks, then shut down once they have run")
	flag.Parse()

	os.Exit(run(cfgPath, demo))
}

func run(cfgPath string, demo bool) int {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.NewApp(cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		return 1
	}
	if err := a.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "fatal start:", err)
		return 1
	}
	_, _ = systemd.Ready("scheduler running")

	reason := app.StopAppStop
	if demo {
		if tasks, err := a.ScheduleDemo(os.Stdout); err != nil {
			fmt.Fprintln(os.Stderr, "demo:", err)
			reason = app.StopFatalError
		} else {
			_, _ = systemd.Status(fmt.Sprintf("%d demo tasks scheduled", len(tasks)))
			reason = app.StopDemoDone
		}
	} else {
		select {
		case sig := <-sigCh:
			reason = signalReason(sig)
		case <-a.Done():
			reason = app.StopFatalError
		}
	}

	// A signal during the drain is logged; the drain itself continues.
	go func() {
		for sig := range sigCh {
			a.Logger().Warn(fmt.Sprintf("%s received while draining; waiting for due tasks", sig))
		}
	}()

	_, _ = systemd.Stopping("draining scheduled tasks")
	if err := a.Stop(context.Background(), reason); err != nil {
		fmt.Fprintln(os.Stderr, "stop:", err)
		return 1
	}
	if reason == app.StopFatalError {
		return 1
	}
	return 0
}

func signalReason(sig os.Signal) app.StopReason {
	switch sig {
	case os.Interrupt:
		return app.StopSIGINT
	case syscall.SIGTERM:
		return app.StopSIGTERM
	default:
		return app.StopUnknown
	}
}
