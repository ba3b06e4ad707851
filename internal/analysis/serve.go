package analysis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/host"

	"github.com/birdwatch-app/birdwatch-go/internal/api"
	"github.com/birdwatch-app/birdwatch-go/internal/buildinfo"
	"github.com/birdwatch-app/birdwatch-go/internal/catalog"
	"github.com/birdwatch-app/birdwatch-go/internal/conf"
	"github.com/birdwatch-app/birdwatch-go/internal/httpclient"
	"github.com/birdwatch-app/birdwatch-go/internal/identify"
	"github.com/birdwatch-app/birdwatch-go/internal/logger"
	"github.com/birdwatch-app/birdwatch-go/internal/mqtt"
	"github.com/birdwatch-app/birdwatch-go/internal/observability"
	"github.com/birdwatch-app/birdwatch-go/internal/speciesinfo"
	"github.com/birdwatch-app/birdwatch-go/internal/telemetry"
)

const telemetryFlushTimeout = 2 * time.Second

// Serve runs the HTTP service until ctx ends or a termination signal arrives.
func Serve(ctx context.Context, settings *conf.Settings, build *buildinfo.Context) error {
	log := GetLogger()

	if info, err := host.InfoWithContext(ctx); err == nil {
		log.Info("system details",
			logger.String("os", info.OS),
			logger.String("platform", info.Platform),
			logger.String("platform_version", info.PlatformVersion),
			logger.String("arch", info.KernelArch))
	}

	if err := telemetry.InitSentry(settings, build.GetVersion()); err != nil {
		log.Warn("telemetry disabled", logger.Error(err))
	}
	defer telemetry.Shutdown(telemetryFlushTimeout)

	metrics, err := observability.NewMetrics()
	if err != nil {
		return fmt.Errorf("error initializing metrics: %w", err)
	}

	observers := []identify.Observer{metrics.Identify}
	if settings.MQTT.Enabled {
		publisher, closeMQTT := startMQTT(ctx, settings, metrics)
		if publisher != nil {
			defer closeMQTT()
			observers = append(observers, publisher)
		}
	}

	detectorClient := httpclient.New(&httpclient.Config{DefaultTimeout: settings.Detector.Timeout})
	defer detectorClient.Close()
	metrics.InstrumentClient(detectorClient)

	opts := []Option{WithHTTPClient(detectorClient)}
	for _, o := range observers {
		opts = append(opts, WithObserver(o))
	}
	components, err := BuildPipeline(settings, opts...)
	if err != nil {
		return err
	}
	defer components.Close()

	contentClient := httpclient.New(&httpclient.Config{DefaultTimeout: settings.SpeciesInfo.Timeout})
	defer contentClient.Close()
	metrics.InstrumentClient(contentClient)

	store := catalog.NewStore(settings.Content.DataDir, settings.Content.CacheTTL)
	serverOpts := []api.ServerOption{
		api.WithMetrics(metrics),
		api.WithBuildInfo(build),
		api.WithCatalog(store),
	}
	if settings.SpeciesInfo.Enabled {
		serverOpts = append(serverOpts, api.WithSpeciesInfo(speciesinfo.NewProvider(&settings.SpeciesInfo, contentClient)))
	}

	server, err := api.New(settings, components.Pipeline, serverOpts...)
	if err != nil {
		return err
	}

	// Initial content sync runs alongside the server; missing files are
	// served as 404 until it finishes.
	syncCtx, cancelSync := context.WithCancel(ctx)
	var wg sync.WaitGroup
	if len(settings.Content.Files) > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := SyncContent(syncCtx, settings, contentClient, metrics.Content); err != nil {
				log.Warn("initial content sync incomplete", logger.Error(err))
			}
			store.Invalidate()
		}()
	}
	defer func() {
		cancelSync()
		wg.Wait()
	}()

	log.Info("birdwatch service starting",
		logger.String("version", build.GetVersion()),
		logger.String("detector_backend", components.Backend),
		logger.Bool("mqtt", settings.MQTT.Enabled),
		logger.Bool("species_info", settings.SpeciesInfo.Enabled))

	return server.Run(ctx)
}

// startMQTT connects to the broker. A failed first connection disables
// publishing for this run instead of failing startup.
func startMQTT(ctx context.Context, settings *conf.Settings, metrics *observability.Metrics) (*mqtt.Publisher, func()) {
	cfg := mqtt.ConfigFromSettings(settings)
	client := mqtt.NewClient(cfg, metrics.MQTT)

	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := client.Connect(connectCtx); err != nil {
		GetLogger().Warn("MQTT publishing disabled",
			logger.String("broker", cfg.Broker),
			logger.Error(err))
		return nil, nil
	}

	publisher := mqtt.NewPublisher(client, cfg)
	return publisher, func() {
		publisher.Close()
		client.Disconnect()
	}
}
