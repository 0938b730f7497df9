package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zsiec/tsflow/internal/control"
	"github.com/zsiec/tsflow/internal/engine"
	"github.com/zsiec/tsflow/internal/plugin"
	"github.com/zsiec/tsflow/internal/plugins"
)

var version = "dev"

func main() {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	globals, chainArgs := splitArgs(os.Args[1:])

	fs := flag.NewFlagSet("tsflow", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: tsflow [options] -I input [args] [-P processor [args]]... -O output [args]\n\noptions:\n")
		fs.PrintDefaults()
	}
	bufferPackets := fs.Int("buffer-packets", 0, "packet arena capacity in packets")
	maxFlush := fs.Int("max-flush-packets", 0, "maximum packets a processor handles before flushing")
	maxInput := fs.Int("max-input-packets", 0, "maximum packets per input operation")
	instuffNull := fs.Int("instuff-nullpkt", 0, "null packets to insert per -instuff-inpkt input packets")
	instuffIn := fs.Int("instuff-inpkt", 0, "input packet count for interleaved stuffing")
	instuffStart := fs.Int("instuff-start", 0, "null packets to insert before the first input packet")
	instuffStop := fs.Int("instuff-stop", 0, "null packets to insert after the last input packet")
	fixedBitrate := fs.Uint64("bitrate", 0, "force the input bitrate in bits per second")
	adjustInterval := fs.Duration("bitrate-adjust-interval", 0, "how often the bitrate is re-evaluated")
	receiveTimeout := fs.Duration("receive-timeout", 0, "abort when a stage gets no packet within this duration")
	realtime := fs.String("realtime", "auto", "real-time defaults: auto, on or off")
	controlAddr := fs.String("control", "", "control API listen address, empty disables the API")
	list := fs.Bool("list", false, "list the available plugins and exit")
	showVersion := fs.Bool("version", false, "print the version and exit")
	fs.Parse(globals)

	if *showVersion {
		fmt.Println("tsflow", version)
		return
	}

	reg := plugin.NewRegistry()
	if err := plugins.RegisterBuiltins(reg); err != nil {
		fatal("registering plugins", err)
	}

	if *list {
		fmt.Println("input plugins:     ", reg.InputNames())
		fmt.Println("processor plugins: ", reg.ProcessorNames())
		fmt.Println("output plugins:    ", reg.OutputNames())
		return
	}

	chain, err := plugin.ParseChain(chainArgs)
	if err != nil {
		fmt.Fprintln(os.Stderr, "tsflow:", err)
		fs.Usage()
		os.Exit(2)
	}

	rt, err := parseTristate(*realtime)
	if err != nil {
		fatal("parsing options", err)
	}

	eng, err := engine.New(engine.Options{
		BufferPackets:         *bufferPackets,
		MaxFlushPackets:       *maxFlush,
		MaxInputPackets:       *maxInput,
		InstuffNullPkt:        *instuffNull,
		InstuffInPkt:          *instuffIn,
		InstuffStart:          *instuffStart,
		InstuffStop:           *instuffStop,
		FixedBitrate:          *fixedBitrate,
		BitrateAdjustInterval: *adjustInterval,
		ReceiveTimeout:        *receiveTimeout,
		Realtime:              rt,
		Input:                 chain.Input,
		Processors:            chain.Processors,
		Output:                chain.Output,
	}, reg, slog.Default())
	if err != nil {
		fatal("creating pipeline", err)
	}

	slog.Info("tsflow starting",
		"version", version,
		"input", chain.Input.String(),
		"output", chain.Output.String(),
		"processors", len(chain.Processors),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, aborting pipeline", "signal", sig)
		eng.Abort()
	}()

	if err := eng.Start(); err != nil {
		fatal("starting pipeline", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()
		return eng.Wait()
	})

	if *controlAddr != "" {
		ctl := control.NewServer(*controlAddr, eng, slog.Default())
		g.Go(func() error {
			return ctl.Start(ctx)
		})
	}

	start := time.Now()
	if err := g.Wait(); err != nil {
		slog.Error("pipeline terminated", "error", err, "uptime", time.Since(start).Truncate(time.Millisecond))
		os.Exit(1)
	}
	slog.Info("pipeline complete", "uptime", time.Since(start).Truncate(time.Millisecond))
}

// splitArgs separates the global options from the plugin chain, which
// starts at the first -I, -P or -O marker.
func splitArgs(args []string) (globals, chain []string) {
	for i, a := range args {
		if a == "-I" || a == "-P" || a == "-O" {
			return args[:i], args[i:]
		}
	}
	return args, nil
}

func parseTristate(s string) (engine.Tristate, error) {
	switch s {
	case "auto":
		return engine.Auto, nil
	case "on":
		return engine.On, nil
	case "off":
		return engine.Off, nil
	default:
		return engine.Auto, errors.New(`-realtime must be "auto", "on" or "off"`)
	}
}

func fatal(what string, err error) {
	slog.Error(what, "error", err)
	os.Exit(1)
}
