package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/doridoridoriand/pingalert/internal/alert"
	"github.com/doridoridoriand/pingalert/internal/cli"
	"github.com/doridoridoriand/pingalert/internal/config"
	"github.com/doridoridoriand/pingalert/internal/devicelist"
	"github.com/doridoridoriand/pingalert/internal/log"
	"github.com/doridoridoriand/pingalert/internal/metrics"
	"github.com/doridoridoriand/pingalert/internal/ping"
	"github.com/doridoridoriand/pingalert/internal/record"
	"github.com/doridoridoriand/pingalert/internal/scheduler"
	"github.com/doridoridoriand/pingalert/internal/state"
	"github.com/doridoridoriand/pingalert/internal/stream"
	"github.com/doridoridoriand/pingalert/internal/ui"
)

const (
	version           = "0.1.0"
	defaultConfigPath = "pingalert.yaml"
	defaultUILogFile  = "pingalert.log"
)

var errUserQuit = errors.New("quit requested")

type app struct {
	stdout     io.Writer
	stderr     io.Writer
	configPath string
	newPinger  func(config.PingerMode) (ping.Pinger, error)
	notifier   alert.Notifier
}

func newApp(stdout, stderr io.Writer) *app {
	return &app{
		stdout:    stdout,
		stderr:    stderr,
		newPinger: ping.NewPinger,
	}
}

func main() {
	a := newApp(os.Stdout, os.Stderr)
	if err := a.rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "pingalert",
		Short:         "Ping a list of devices and alert when they go down or come back",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)
	root.SetVersionTemplate("pingalert version {{.Version}}\n")
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", defaultConfigPath, "config file (missing file uses defaults)")

	root.AddCommand(a.runCmd(), a.listsCmd(), a.listCmd(), a.notifyCmd())
	return root
}

type runFlags struct {
	list           string
	file           string
	interval       cli.OptionalDuration
	timeout        cli.OptionalDuration
	maxConcurrency cli.OptionalInt
	pinger         cli.OptionalPingerMode
	metricsListen  cli.OptionalString
	noUI           cli.OptionalBool
	logLevel       cli.OptionalString
}

func (a *app) runCmd() *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start monitoring a device list",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()
			return a.runMonitor(ctx, &f)
		},
	}
	fs := cmd.Flags()
	fs.StringVarP(&f.list, "list", "l", "", "saved device list name")
	fs.StringVarP(&f.file, "file", "f", "", "device list file (.json, .yaml)")
	fs.VarP(&f.interval, "interval", "i", "cycle interval (override config)")
	fs.VarP(&f.timeout, "timeout", "t", "ping timeout (override config)")
	fs.Var(&f.maxConcurrency, "max-concurrency", "max concurrent probes, 0 for unlimited (override config)")
	fs.Var(&f.pinger, "pinger", "pinger: auto|icmp|external (override config)")
	fs.Var(&f.metricsListen, "metrics-listen", "metrics and event stream listen address (e.g. :9100)")
	fs.Var(&f.noUI, "no-ui", "disable TUI (log only)")
	fs.Lookup("no-ui").NoOptDefVal = "true"
	fs.Var(&f.logLevel, "log-level", "log level: debug|info|warn|error")
	cmd.MarkFlagsMutuallyExclusive("list", "file")
	return cmd
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func buildOverrides(f *runFlags) config.CLIOverrides {
	return config.CLIOverrides{
		Interval:       f.interval.Ptr(),
		Timeout:        f.timeout.Ptr(),
		MaxConcurrency: f.maxConcurrency.Ptr(),
		Pinger:         f.pinger.Ptr(),
		MetricsListen:  f.metricsListen.Ptr(),
		UIDisable:      f.noUI.Ptr(),
		LogLevel:       f.logLevel.Ptr(),
	}
}

func (a *app) loadConfig(overrides config.CLIOverrides) (*config.Config, error) {
	cfg, err := config.Load(a.configPath, overrides)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// openLogger writes to the configured file, or to stderr when headless. The
// TUI owns the terminal, so it always logs to a file.
func (a *app) openLogger(cfg *config.Config) (*log.Logger, func(), error) {
	level := log.ParseLevel(cfg.Log.Level)
	path := cfg.Log.File
	if path == "" && !cfg.UI.Disable {
		path = filepath.Join(filepath.Dir(a.configPath), defaultUILogFile)
	}
	if path == "" {
		return log.NewLoggerTo(level, a.stderr), func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	logger := log.NewLoggerTo(level, f)
	return logger, func() {
		_ = logger.Sync()
		f.Close()
	}, nil
}

func loadDevices(cfg *config.Config, list, file string) ([]config.Device, error) {
	switch {
	case file != "":
		return devicelist.Load(file)
	case list != "":
		return devicelist.NewDir(cfg.Paths.ListsDir).Load(list)
	default:
		return nil, errors.New("no device list given: use --list NAME or --file PATH")
	}
}

func (a *app) runMonitor(ctx context.Context, f *runFlags) error {
	cfg, err := a.loadConfig(buildOverrides(f))
	if err != nil {
		return err
	}
	logger, closeLog, err := a.openLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()
	logger.LogConfigLoad(true, a.configPath, nil)

	devices, err := loadDevices(cfg, f.list, f.file)
	if err != nil {
		return err
	}

	pinger, err := a.newPinger(cfg.Monitor.Pinger)
	if err != nil {
		return fmt.Errorf("create pinger: %w", err)
	}
	prober := ping.NewProber(pinger, cfg.Monitor.ProbeDeadline, cfg.Monitor.ProbeTimeout, logger)

	recorders := record.Multi{
		Latency: []record.LatencyRecorder{record.NewCSVLatencyLog(cfg.Paths.LatencyLog, logger)},
		Events:  []record.EventLog{record.NewTextEventLog(cfg.Paths.EventLog, logger)},
	}
	if cfg.Paths.HistoryDB != "" {
		history, err := record.OpenSQLiteHistory(cfg.Paths.HistoryDB, logger)
		if err != nil {
			return err
		}
		defer history.Close()
		recorders.Latency = append(recorders.Latency, history)
		recorders.Events = append(recorders.Events, history)
	}

	dispatcher := alert.NewDispatcher(logger, alert.ChannelsFromConfig(cfg.Notify, a.notifier, logger))

	hub := stream.NewHub(nil, logger)
	var collector *metrics.Collector
	observers := []scheduler.Observer{hub}
	if cfg.Metrics.Listen != "" {
		collector = metrics.NewCollector(nil)
		observers = append(observers, collector)
	}

	engine, err := scheduler.New(scheduler.Options{
		Prober: prober,
		Policy: state.Policy{
			RecoveryThreshold: cfg.Monitor.RecoveryThreshold,
			AlertCooldown:     cfg.Monitor.AlertCooldown,
		},
		Dispatcher:     dispatcher,
		Latency:        recorders,
		Events:         recorders,
		Observers:      observers,
		Logger:         logger,
		Interval:       cfg.Monitor.Interval,
		MaxConcurrency: cfg.Monitor.MaxConcurrency,
	})
	if err != nil {
		return err
	}
	hub.SetSource(engine)
	if collector != nil {
		collector.SetSource(engine)
	}

	g, gctx := errgroup.WithContext(ctx)
	if err := engine.Start(gctx, devices); err != nil {
		return err
	}

	if collector != nil {
		handler, err := metrics.Handler(collector)
		if err != nil {
			engine.Stop()
			return err
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", handler)
		mux.Handle("/events", hub)
		g.Go(func() error {
			err := metrics.Serve(gctx, cfg.Metrics.Listen, mux)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
		logger.Info("metrics listening", map[string]interface{}{"addr": cfg.Metrics.Listen})
	}

	if !cfg.UI.Disable {
		board := ui.New(engine, ui.Options{
			Interval:          engine.Interval(),
			RecoveryThreshold: cfg.Monitor.RecoveryThreshold,
			Toggle:            toggleMonitoring(gctx, engine, devices, logger),
		})
		g.Go(func() error {
			err := board.Run(gctx)
			switch {
			case errors.Is(err, ui.ErrQuit):
				return errUserQuit
			case err != nil && gctx.Err() == nil:
				return fmt.Errorf("terminal ui: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		engine.Stop()
		hub.Close()
		return nil
	})

	err = g.Wait()
	if errors.Is(err, errUserQuit) {
		return nil
	}
	return err
}

// toggleMonitoring returns the board's start/stop key handler. Both
// directions run in the background so the board never waits on a stop in
// progress.
func toggleMonitoring(ctx context.Context, engine *scheduler.Engine, devices []config.Device, logger *log.Logger) func() {
	return func() {
		if engine.Running() {
			go engine.Stop()
			return
		}
		go func() {
			if err := engine.Start(ctx, devices); err != nil && !errors.Is(err, scheduler.ErrAlreadyRunning) {
				logger.LogError("ui", err, nil)
			}
		}()
	}
}

func (a *app) listsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lists",
		Short: "Show saved device lists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig(config.CLIOverrides{})
			if err != nil {
				return err
			}
			names, err := devicelist.NewDir(cfg.Paths.ListsDir).Names()
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Fprintln(a.stdout, name)
			}
			return nil
		},
	}
}

func (a *app) listCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Manage a saved device list",
	}
	withDir := func(fn func(d *devicelist.Dir, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig(config.CLIOverrides{})
			if err != nil {
				return err
			}
			return fn(devicelist.NewDir(cfg.Paths.ListsDir), args)
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "show NAME",
			Short: "Print the devices in a list",
			Args:  cobra.ExactArgs(1),
			RunE: withDir(func(d *devicelist.Dir, args []string) error {
				devices, err := d.Load(args[0])
				if err != nil {
					return err
				}
				printDevices(a.stdout, devices)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "add NAME IP DEVICE-NAME",
			Short: "Add a device to a list, creating the list if needed",
			Args:  cobra.MinimumNArgs(3),
			RunE: withDir(func(d *devicelist.Dir, args []string) error {
				dev := config.Device{IP: args[1], Name: strings.Join(args[2:], " ")}
				devices, err := d.AddDevice(args[0], dev)
				if err != nil {
					return err
				}
				printDevices(a.stdout, devices)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "remove NAME IP",
			Short: "Remove a device from a list",
			Args:  cobra.ExactArgs(2),
			RunE: withDir(func(d *devicelist.Dir, args []string) error {
				devices, err := d.RemoveDevice(args[0], args[1])
				if err != nil {
					return err
				}
				printDevices(a.stdout, devices)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "delete NAME",
			Short: "Delete a saved list",
			Args:  cobra.ExactArgs(1),
			RunE: withDir(func(d *devicelist.Dir, args []string) error {
				if err := d.Delete(args[0]); err != nil {
					return err
				}
				fmt.Fprintf(a.stdout, "deleted %s\n", args[0])
				return nil
			}),
		},
	)
	return cmd
}

func printDevices(w io.Writer, devices []config.Device) {
	for _, dev := range devices {
		fmt.Fprintf(w, "%s (%s)\n", dev.Name, dev.IP)
	}
}

func (a *app) notifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Notification channel tools",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "test",
		Short: "Send a test alert through every configured channel",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig(config.CLIOverrides{})
			if err != nil {
				return err
			}
			logger := log.NewLoggerTo(log.ParseLevel(cfg.Log.Level), a.stderr)
			channels := alert.ChannelsFromConfig(cfg.Notify, a.notifier, logger)
			return a.sendTest(cmd.Context(), alert.NewDispatcher(logger, channels))
		},
	})
	return cmd
}

// sendTest dispatches the test event and prints one result line per channel.
func (a *app) sendTest(ctx context.Context, d *alert.Dispatcher) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ev := alert.TestEvent()
	err := d.Dispatch(ctx, ev.Subject, ev.Body)

	failed := make(map[string]error)
	for _, e := range alert.Errors(err) {
		var chErr *alert.ChannelError
		if errors.As(e, &chErr) {
			failed[chErr.Channel] = chErr.Err
		}
	}
	for _, ch := range d.Channels() {
		switch {
		case !ch.Configured():
			fmt.Fprintf(a.stdout, "%-9s not configured\n", ch.Name())
		case failed[ch.Name()] != nil:
			fmt.Fprintf(a.stdout, "%-9s failed: %v\n", ch.Name(), failed[ch.Name()])
		default:
			fmt.Fprintf(a.stdout, "%-9s sent\n", ch.Name())
		}
	}
	if err != nil {
		return fmt.Errorf("%d channel(s) failed", len(failed))
	}
	return nil
}
