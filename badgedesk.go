package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"badgedesk/api"
	"badgedesk/cmdpipe"
	"badgedesk/directory"
	"badgedesk/health"
	"badgedesk/indicator"
	"badgedesk/journal"
	"badgedesk/metrics"
	"badgedesk/mqtt"
	"badgedesk/reader"
	"badgedesk/registry"
	"badgedesk/scan"
)

var myBuild string

var cfgFile string

var rootCmd = &cobra.Command{
	Use:           "badgedesk",
	Short:         "Student check-in desk driving a serial RFID reader",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "badgedesk.yml", "Config file")
	rootCmd.AddCommand(
		newServeCmd(),
		newPortsCmd(),
		newScanCmd(),
		newStudentsCmd(),
	)
}

func main() {
	loadDotEnv()
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("badgedesk: %v", err)
	}
}

// App holds the application state and dependencies.
type App struct {
	cfg       *Config
	store     *directory.Store
	journal   *journal.Journal
	registry  *registry.Registry
	scanner   *scan.Service
	mqtt      *mqtt.Client
	indicator indicator.Indicator
	lights    *indicator.ScanObserver
	metrics   *metrics.Metrics
	promReg   *prometheus.Registry
	pipe      *cmdpipe.Pipe
	health    *health.Reporter
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the check-in desk (HTTP API, MQTT, command pipe)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(cfgFile, true)
			if err != nil {
				return err
			}
			if err := cfg.Validate(true); err != nil {
				return err
			}
			setupLogging(cfg.LogLevel)
			log.WithField("build", myBuild).Info("badgedesk starting")

			driver, err := reader.NewDriver(cfg.Reader.Driver)
			if err != nil {
				return err
			}
			app, err := NewApp(cfg, driver)
			if err != nil {
				return err
			}
			defer app.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return app.Run(ctx)
		},
	}
}

// NewApp opens storage and builds every component. Nothing is started.
func NewApp(cfg *Config, driver reader.Driver) (*App, error) {
	app := &App{cfg: cfg}
	ok := false
	defer func() {
		if !ok {
			app.Close()
		}
	}()

	protocol, err := cfg.Reader.Protocol.Protocol()
	if err != nil {
		return nil, fmt.Errorf("reader protocol: %w", err)
	}

	if app.store, err = directory.Open(cfg.Directory.Path); err != nil {
		return nil, err
	}
	if app.journal, err = journal.Open(cfg.Journal); err != nil {
		return nil, err
	}

	app.promReg = prometheus.NewRegistry()
	app.promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	app.metrics = metrics.New(app.promReg)

	if app.indicator, err = indicator.New(cfg.Indicator); err != nil {
		return nil, fmt.Errorf("init indicator: %w", err)
	}
	app.lights = indicator.NewScanObserver(app.indicator, 0)

	app.mqtt, err = mqtt.New(cfg.MQTT, cfg.ClientID, mqtt.Handlers{
		OnConnect:    app.onMQTTConnect,
		OnDisconnect: app.onMQTTDisconnect,
		OnMessage:    app.onMQTTMessage,
	})
	if err != nil {
		return nil, fmt.Errorf("init MQTT: %w", err)
	}

	app.registry = registry.New(driver)
	app.registry.SetChangeCallback(app.onReaderChange)

	app.scanner = scan.New(app.registry, protocol, directory.NewResolver(app.store))
	app.scanner.SetMetrics(app.metrics)
	app.scanner.AddObserver(app.journal)
	app.scanner.AddObserver(app.lights)
	app.scanner.AddObserver(scan.ObserverFunc(app.publishScan))
	if cfg.RecordAttendance {
		app.scanner.AddObserver(&attendanceRecorder{store: app.store})
	}

	app.health = health.NewReporter(health.SystemSampler{DiskPath: cfg.Health.DiskPath}, cfg.Health.Interval, func(st health.Stats) {
		app.mqtt.PublishStatus("health", st)
	})

	if app.pipe, err = cmdpipe.New(cfg.Pipe, app.onPipeCommand); err != nil {
		return nil, fmt.Errorf("init command pipe: %w", err)
	}

	ok = true
	return app, nil
}

// Run starts the background workers and blocks until ctx is done or one
// of them fails.
func (app *App) Run(ctx context.Context) error {
	if app.cfg.Reader.AutoConnect {
		if msg, err := app.scanner.Connect(app.cfg.Reader.Port, app.cfg.Reader.Baud); err != nil {
			log.Warnf("Auto-connect: %v", err)
		} else {
			log.Info(msg)
		}
	}

	// Connect retries in the background until the broker answers.
	go func() {
		if err := app.mqtt.Connect(); err != nil {
			log.Warnf("MQTT connect: %v", err)
		}
	}()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return app.health.Run(ctx) })

	if app.cfg.HTTP.Listen != "" {
		handler := api.New(app.scanner, app.journal, app.store, app.promReg).Router()
		g.Go(func() error { return api.Serve(ctx, app.cfg.HTTP.Listen, handler) })
	}

	if app.pipe != nil {
		go app.pipe.Start()
		g.Go(func() error {
			<-ctx.Done()
			return app.pipe.Close()
		})
	}

	err := g.Wait()
	log.Info("Shutting down...")
	return err
}

// Close releases everything NewApp opened. It is safe on a partial App.
func (app *App) Close() {
	if app.registry != nil {
		app.registry.Disconnect()
	}
	if app.mqtt != nil {
		app.mqtt.Disconnect()
	}
	if app.lights != nil {
		app.lights.Stop()
	}
	if app.indicator != nil {
		if err := app.indicator.Release(); err != nil {
			log.Debugf("Release indicator: %v", err)
		}
	}
	if app.journal != nil {
		app.journal.Close()
	}
	if app.store != nil {
		app.store.Close()
	}
}

func (app *App) onReaderChange(st registry.State) {
	app.metrics.SetReaderConnected(st.Connected)
	app.lights.ReaderState(st.Connected)
	app.mqtt.PublishStatus("reader", st)
}

func (app *App) publishScan(o scan.Outcome) {
	app.mqtt.PublishStatus("scan", o)
}

func (app *App) onMQTTConnect() {
	if app.cfg.ControlSecret == "" {
		return
	}
	if err := app.mqtt.Subscribe(mqtt.ControlTopic(app.cfg.ClientID)); err != nil {
		log.Warnf("Subscribe error: %v", err)
	}
}

func (app *App) onMQTTDisconnect() {
	log.Debug("Reader commands over MQTT unavailable until reconnect")
}

func (app *App) onMQTTMessage(topic string, payload []byte) {
	if topic != mqtt.ControlTopic(app.cfg.ClientID) {
		return
	}
	cmd, err := parseControl(app.cfg.ControlSecret, app.cfg.ClientID, payload, time.Now())
	if err != nil {
		log.WithField("topic", topic).Warnf("Reject control request: %v", err)
		return
	}
	app.execute(cmd, "mqtt")
}

func (app *App) onPipeCommand(cmd cmdpipe.Command) {
	app.execute(cmd, "pipe")
}

// execute runs cmd and publishes the reply on the command status topic.
func (app *App) execute(cmd cmdpipe.Command, source string) cmdpipe.Reply {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	reply := cmdpipe.Execute(ctx, app.scanner, cmd)
	entry := log.WithFields(log.Fields{"source": source, "command": cmd.Op})
	if reply.OK {
		entry.Info(reply.Message)
	} else {
		entry.Warn(reply.Message)
	}
	app.mqtt.PublishStatus("command", reply)
	return reply
}
