package cmd

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/spf13/cobra"

	"github.com/ftl/hamshack/config"
	"github.com/ftl/hamshack/scope"
	"github.com/ftl/hamshack/sdr"
	"github.com/ftl/hamshack/spots"
	"github.com/ftl/hamshack/tci"
	"github.com/ftl/hamshack/telnet"
	"github.com/ftl/hamshack/trace"
	"github.com/ftl/hamshack/web"
)

const stopTimeout = 2 * time.Second

var serveFlags = struct {
	host      string
	port      int
	staticDir string
	telnet    bool
	tci       bool
	scope     bool
}{}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "run the web server with the spectrum display and all enabled integrations",
	Run:   runWithCtx(runServe),
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveFlags.host, "host", "127.0.0.1", "the host address of the web server")
	serveCmd.Flags().IntVar(&serveFlags.port, "port", 3000, "the port of the web server")
	serveCmd.Flags().StringVar(&serveFlags.staticDir, "static-dir", "static", "the directory of the frontend files")
	serveCmd.Flags().BoolVar(&serveFlags.telnet, "telnet", false, "enable the telnet cluster interface")
	serveCmd.Flags().BoolVar(&serveFlags.tci, "tci", false, "publish the spots to a TCI host")
	serveCmd.Flags().BoolVar(&serveFlags.scope, "scope", false, "enable the scope server for insights into the inner workings")

	bindFlags(serveCmd.Flags(), "server", map[string]string{
		"host":       "host",
		"port":       "port",
		"static-dir": "static_dir",
	})
	bindFlags(serveCmd.Flags(), "telnet", map[string]string{"telnet": "enabled"})
	bindFlags(serveCmd.Flags(), "tci", map[string]string{"tci": "enabled"})
	bindFlags(serveCmd.Flags(), "scope", map[string]string{"scope": "enabled"})
}

func runServe(ctx context.Context, cfg *config.Config, _ *cobra.Command, _ []string) {
	tracer, err := trace.New(cfg.Trace.Context, cfg.Trace.Destination)
	if err != nil {
		log.Fatalf("cannot create tracer: %v", err)
	}
	tracer.Start()
	defer tracer.Stop()

	controller, err := sdr.NewController(cfg.SDRConfig())
	if err != nil {
		log.Fatalf("cannot create SDR: %v", err)
	}
	controller.SetInterval(cfg.SDR.Interval)
	controller.SetTracer(tracer)
	if cfg.SDR.Enabled {
		if err := controller.Start(); err != nil {
			log.Fatalf("cannot start SDR: %v", err)
		}
	}
	defer stopController(controller)

	cache := spots.NewCache(cfg.Spots.Capacity, cfg.Spots.Retention)
	poller := web.NewPoller(controller, cfg.Server.PollInterval)
	poller.Notify(&statusTracer{tracer: tracer})

	if cfg.Telnet.Enabled {
		cluster, err := telnet.NewServer(cfg.TelnetAddress(), cfg.TelnetCall(), formatVersion(), cache)
		if err != nil {
			log.Fatalf("cannot start telnet cluster: %v", err)
		}
		cluster.SetSilencePeriod(cfg.Telnet.SilencePeriod)
		cache.Notify(cluster)
		defer cluster.Stop()
	}

	if cfg.TCI.Enabled {
		publisher, err := tci.New(cfg.TCI.Host, cache, cfg.TCI.Trace)
		if err != nil {
			log.Fatalf("cannot connect to TCI: %v", err)
		}
		cache.Notify(publisher)
		defer publisher.Close()
	}

	if cfg.Scope.Enabled {
		scopeServer := scope.NewScopeServer(cfg.Scope.Address)
		if err := scopeServer.Start(); err != nil {
			log.Fatalf("cannot start scope server: %v", err)
		}
		poller.Notify(scopeServer)
		defer scopeServer.Stop()
	}

	go poller.Run(ctx)

	server := web.NewServer(cfg.ServerAddress(), cfg.Server.StaticDir, controller, cache, poller)
	server.SetStation(cfg.StationCallsign(), cfg.Station.Locator)
	if err := server.Start(ctx); err != nil {
		log.Printf("[ERROR] %v", err)
	}
}

func stopController(controller *sdr.Controller) {
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	err := controller.StopAndWait(ctx)
	if err != nil && !errors.Is(err, sdr.ErrNotRunning) {
		log.Printf("[ERROR] %v", err)
	}
}

// statusTracer writes the polled status into the status trace context.
type statusTracer struct {
	tracer trace.Tracer
}

func (t *statusTracer) ShowStatus(status sdr.Status) {
	if t.tracer.Context() != trace.StatusContext {
		return
	}
	t.tracer.Trace(trace.StatusContext, "%s;%t;%d;%d;%.1f\n", time.Now().Format(time.RFC3339Nano), status.Running, status.Frequency, status.SampleRate, status.Gain)
}

func (t *statusTracer) ShowSpectrum(*sdr.Frame, int) {}
