// Command gpuvalcheck records canned command buffers on a gpuval device,
// submits the ones validation accepts and reports the rest.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/gogpu/gpuval"
	"github.com/gogpu/gpuval/backend"
	_ "github.com/gogpu/gpuval/backend/halbackend"
)

func main() {
	var (
		backendName = flag.String("backend", "", "backend name (default: best registered)")
		verbose     = flag.Bool("v", false, "log debug output to stderr")
		only        = flag.String("scenario", "all", "scenario to run: all, copy, render, compute, hazards")
		timeout     = flag.Duration("timeout", 5*time.Second, "how long to wait for submitted work")
	)
	flag.Parse()

	if *verbose {
		gpuval.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}
	if err := run(*backendName, *only, *timeout); err != nil {
		log.Fatal(err)
	}
}

func run(backendName, only string, timeout time.Duration) error {
	d, err := openDevice(backendName)
	if err != nil {
		return fmt.Errorf("open device: %w", err)
	}
	defer d.Destroy()
	log.Printf("backend: %s (available: %v)", d.Backend().Name(), backend.Available())

	r := &runner{device: d, report: log.Printf}
	if err := r.runScenarios(only); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := r.finish(ctx); err != nil {
		return err
	}

	log.Printf("%d submitted, %d rejected, completed serial %d",
		r.submitted, r.rejected, d.CompletedSerial())
	if r.mismatched > 0 {
		return fmt.Errorf("%d checks did not behave as expected", r.mismatched)
	}
	return nil
}

func openDevice(name string) (*gpuval.Device, error) {
	if name == "" {
		return backend.InitDefault()
	}
	return backend.Open(name)
}
