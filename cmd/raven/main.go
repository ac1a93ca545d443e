package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ravenwm/raven/internal/backend"
	"github.com/ravenwm/raven/internal/config"
	"github.com/ravenwm/raven/internal/cursor"
	"github.com/ravenwm/raven/internal/daemon"
	"github.com/ravenwm/raven/internal/eventloop"
	"github.com/ravenwm/raven/internal/ipc"
	"github.com/ravenwm/raven/internal/runtimepath"
	"github.com/ravenwm/raven/internal/session"
	"github.com/ravenwm/raven/internal/udev"
)

const (
	sysfsRoot = "/sys"
	drmDir    = "/dev/dri"
)

func main() {
	if len(os.Args) < 2 {
		printMainUsage(os.Stdout)
		os.Exit(0)
	}

	switch os.Args[1] {
	case "run":
		os.Exit(runCompositor(os.Args[2:]))
	case "status":
		os.Exit(runStatus(os.Args[2:]))
	case "outputs":
		os.Exit(runOutputs(os.Args[2:]))
	case "redraw":
		os.Exit(runRedraw(os.Args[2:]))
	case "reload":
		os.Exit(runReload(os.Args[2:]))
	case "reload-cursor":
		os.Exit(runReloadCursor(os.Args[2:]))
	case "config":
		os.Exit(runConfig(os.Args[2:]))
	case "probe":
		os.Exit(runProbe(os.Args[2:]))
	case "help", "-h", "--help":
		printMainUsage(os.Stdout)
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printMainUsage(os.Stderr)
		os.Exit(2)
	}
}

func printMainUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: raven <command> [options]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  run                 Start the compositor on the current seat (foreground)")
	fmt.Fprintln(w, "  status              Show compositor status")
	fmt.Fprintln(w, "  outputs             List active outputs")
	fmt.Fprintln(w, "  redraw [output]     Repaint one output, or all of them")
	fmt.Fprintln(w, "  reload              Reload configuration")
	fmt.Fprintln(w, "  reload-cursor       Reload the cursor theme")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "  config validate     Validate configuration")
	fmt.Fprintln(w, "  config print        Print configuration")
	fmt.Fprintln(w, "  config explain      Explain a config value")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "  probe               Preview output placement against a running X server")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Run 'raven <command> --help' for command-specific options.")
}

func loadConfig(path string) (*config.LoadResult, string, error) {
	if path == "" {
		var err error
		path, err = config.DefaultConfigPath()
		if err != nil {
			return nil, "", err
		}
	}
	res, err := config.LoadFromPath(path)
	return res, path, err
}

func runCompositor(args []string) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	configPath := fs.String("config", "", "Config file path (default: ~/.config/raven/config.yaml)")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: raven run [--config PATH]")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Take over the DRM devices of the current seat and drive every connected output.")
	}
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "run takes no arguments")
		fs.Usage()
		return 2
	}

	res, path, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	cfg := res.Config
	cfg.ApplyEnv(os.Getenv)

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)
	for _, w := range cfg.Warnings() {
		logger.Warn("config warning", "warning", w)
	}
	logger.Info("configuration loaded", "path", path, "files", len(res.Files), "monitors", len(cfg.Monitors))

	sess, err := session.Open(session.Config{Logger: logger})
	if err != nil {
		log.Fatalf("Failed to open session: %v", err)
	}
	defer sess.Shutdown()

	loop := eventloop.New(eventloop.Config{Logger: logger})

	theme, size := daemon.CursorSettings(cfg)
	b, err := backend.New(backend.Config{
		Loop:            loop,
		Session:         sess,
		Open:            backend.KMSOpener(sysfsRoot, logger),
		Cursor:          cursor.NewManager(cursor.Config{Theme: theme, Size: size, Logger: logger}),
		Monitors:        cfg.Monitors,
		ForceFullRedraw: cfg.Backend.ForceFullRedraw,
		Logger:          logger,
	})
	if err != nil {
		log.Fatalf("Failed to create backend: %v", err)
	}

	listGPUs := func() ([]udev.GPU, error) { return udev.Enumerate(sysfsRoot, drmDir) }
	gpus, err := listGPUs()
	if err != nil {
		log.Fatalf("Failed to enumerate gpus: %v", err)
	}
	primary, ok := udev.Primary(gpus, cfg.Backend.PrimaryGPU)
	if !ok {
		log.Fatalf("Failed to initialize backend: %v", backend.ErrNoGPU)
	}
	// The loop is not running yet, so the backend is still owned by this
	// goroutine.
	if err := b.Init(gpus, primary); err != nil {
		if errors.Is(err, backend.ErrNoGPU) {
			log.Fatalf("Failed to initialize backend: no usable gpu among %d candidates", len(gpus))
		}
		log.Fatalf("Failed to initialize backend: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go func() {
		if err := sess.Run(ctx, func(ev session.Event) {
			logger.Info("session event", "kind", ev.Kind.String())
			loop.Post(func() { b.HandleSessionEvent(ev) })
		}); err != nil {
			logger.Warn("session events unavailable", "error", err)
		}
	}()

	reconciler := daemon.NewReconciler(daemon.ReconcilerConfig{Logger: logger}, loop, b, listGPUs)
	mon, err := udev.NewMonitor(udev.MonitorConfig{DevDir: drmDir, Logger: logger})
	if err != nil {
		logger.Warn("udev monitor unavailable, polling connectors", "error", err)
		reconciler = daemon.NewReconciler(daemon.ReconcilerConfig{PollConnectors: true, Logger: logger}, loop, b, listGPUs)
	} else {
		defer mon.Close()
		go func() {
			if err := mon.Run(ctx, func(ev udev.Event) {
				loop.Post(func() { handleDeviceEvent(b, ev) })
			}); err != nil {
				logger.Warn("udev monitor stopped", "error", err)
			}
		}()
	}
	go reconciler.Run(ctx)

	controller := daemon.NewController(daemon.ControllerConfig{
		ConfigPath: path,
		Logger:     logger,
	}, loop, b, res)

	socketPath, err := runtimepath.SocketPathForSeat(sess.Seat())
	if err != nil {
		log.Fatalf("Failed to resolve IPC socket: %v", err)
	}
	ipcServer, err := ipc.NewServer(ipc.ServerConfig{SocketPath: socketPath, Logger: logger}, controller)
	if err != nil {
		log.Fatalf("Failed to create IPC server: %v", err)
	}
	if err := ipcServer.Start(); err != nil {
		log.Fatalf("Failed to start IPC server: %v", err)
	}
	defer ipcServer.Stop()

	reload := func() {
		rd, err := controller.Reload()
		if err != nil {
			logger.Warn("config reload failed", "error", err)
			return
		}
		logger.Info("config reloaded", "files", len(rd.Files))
	}

	watcher, err := daemon.NewWatcher(daemon.WatcherConfig{ConfigPath: path, Logger: logger})
	if err != nil {
		logger.Warn("config watching disabled", "error", err)
	} else {
		defer watcher.Close()
		watcher.SetFiles(res.Files)
		go watcher.Run(ctx, func() {
			reload()
			watcher.SetFiles(controller.ConfigFiles())
		})
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				logger.Info("received SIGHUP, reloading config")
				reload()
			}
		}
	}()

	logger.Info("raven started", "seat", sess.Seat(), "socket", socketPath)
	loop.Run(ctx)

	logger.Info("shutting down")
	b.Shutdown()
	return 0
}

func handleDeviceEvent(b *backend.Backend, ev udev.Event) {
	switch ev.Action {
	case udev.Add:
		b.DeviceAdded(ev.Node, ev.Path)
	case udev.Change:
		b.DeviceChanged(ev.Node)
	case udev.Remove:
		b.DeviceRemoved(ev.Node)
	}
}

func newClient(seat string) (*ipc.Client, error) {
	if seat == "" {
		return ipc.NewClient(), nil
	}
	path, err := runtimepath.SocketPathForSeat(seat)
	if err != nil {
		return nil, err
	}
	return ipc.NewClientWithPath(path), nil
}
