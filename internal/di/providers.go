package di

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"FlockWatch/internal/domain/models"
	domrepo "FlockWatch/internal/domain/repository"
	"FlockWatch/internal/handler/api"
	internalrepo "FlockWatch/internal/repository"
	"FlockWatch/internal/service/alertfeed"
	icache "FlockWatch/internal/service/cache"
	"FlockWatch/internal/service/metrics"
	"FlockWatch/internal/services/detector"
	"FlockWatch/internal/services/registry"
	"FlockWatch/internal/usecase"
	pkgcache "FlockWatch/pkg/cache"
	pkgch "FlockWatch/pkg/clickhouse"
	"FlockWatch/pkg/config"
	xhttp "FlockWatch/pkg/http"
	pkgkafka "FlockWatch/pkg/kafka"
	applogger "FlockWatch/pkg/logger"
	"FlockWatch/pkg/server"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	level := "info"
	if cfg.Environment == "development" {
		level = "debug"
	}
	return applogger.New(&applogger.Config{Level: level, Format: "console", Output: "stdout"})
}

// ProvideClickHouseClient creates a ClickHouse client and ensures the schema.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	// Initialize schema
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db := cfg.ClickHouse.Database
	if db == "" {
		db = "flockwatch"
	}
	if err := client.InitSchema(ctx, []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", db),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.sensor_metrics (
            room_id String, farm_id String, metric_name String, ts DateTime64(3), value Float64
        ) ENGINE=MergeTree ORDER BY (room_id, metric_name, ts)`, db),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.anomalies (
            id String, room_id String, farm_id String, ts DateTime64(3),
            metric_name String, value Float64, combined_score Float64,
            anomaly_type String, severity String, description String,
            confirmation_state String, feedback_notes String,
            created_at DateTime64(3), updated_at DateTime64(3)
        ) ENGINE=ReplacingMergeTree(updated_at) ORDER BY id`, db),
	}); err != nil {
		_ = client.Close() // cannot log here (DI layer no logger); propagate error
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}

	return client, nil
}

// ProvideKafkaProducer creates a Kafka producer, or nil when Kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}

	return producer, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() domrepo.Metrics {
	return metrics.NewRecorder()
}

// ProvideWindowSupplier creates the ClickHouse window supplier.
func ProvideWindowSupplier(chClient *pkgch.Client, cfg *config.Config, log *applogger.Logger) domrepo.WindowSupplier {
	store := internalrepo.NewCHWindowStore(chClient, cfg.ClickHouse.Database+".sensor_metrics")
	store.SetLogger(log)
	return store
}

// ProvideAnomalyStore creates the ClickHouse anomaly store.
func ProvideAnomalyStore(chClient *pkgch.Client, cfg *config.Config, log *applogger.Logger) domrepo.AnomalyStore {
	store := internalrepo.NewCHAnomalyStore(chClient, cfg.ClickHouse.Database+".anomalies")
	store.SetLogger(log)
	return store
}

// ProvideAlertHub creates the WebSocket alert feed hub.
func ProvideAlertHub(log *applogger.Logger) *alertfeed.Hub {
	return alertfeed.NewHub(log)
}

// ProvideAnomalyPublisher fans anomaly events out to Kafka (when enabled) and
// the live alert feed.
func ProvideAnomalyPublisher(producer *pkgkafka.Producer, hub *alertfeed.Hub, cfg *config.Config) domrepo.AnomalyPublisher {
	targets := []domrepo.AnomalyPublisher{hub}
	if producer != nil {
		topic := cfg.Kafka.Topic
		if topic == "" {
			topic = "flockwatch.anomalies"
		}
		targets = append(targets, internalrepo.NewKafkaAnomalyPublisher(producer, topic))
	}
	return internalrepo.NewFanoutPublisher(targets...)
}

// ProvideRegistry creates the fitted-detector cache.
func ProvideRegistry(cfg *config.Config, log *applogger.Logger, m domrepo.Metrics) *registry.Registry {
	dc := detector.Config{
		Seed:              cfg.Detection.Detector.Seed,
		Trees:             cfg.Detection.Detector.Trees,
		SubsampleSize:     cfg.Detection.Detector.SubsampleSize,
		Neighbors:         cfg.Detection.Detector.Neighbors,
		ZThreshold:        cfg.Detection.Detector.ZThreshold,
		IQRMultiplier:     cfg.Detection.Detector.IQRMultiplier,
		TrendThreshold:    cfg.Detection.Detector.TrendThreshold,
		VelocityThreshold: cfg.Detection.Detector.VelocityThreshold,
		SeasonLength:      cfg.Detection.Detector.SeasonLength,
	}
	ttl := cfg.Detection.RegistryTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return registry.New(dc.Normalize(), ttl, log, m)
}

// ProvideEnsemble creates the ensemble coordinator with configured weights
// and severity thresholds.
func ProvideEnsemble(reg *registry.Registry, cfg *config.Config) *usecase.Ensemble {
	weights := models.DefaultEnsembleWeights()
	if len(cfg.Detection.Weights) > 0 {
		weights = make(models.EnsembleWeights, len(cfg.Detection.Weights))
		for kind, w := range cfg.Detection.Weights {
			weights[models.DetectorKind(kind)] = w
		}
	}
	thresholds := models.DefaultSeverityThresholds()
	if cfg.Detection.Severity.Medium > 0 {
		thresholds.Medium = cfg.Detection.Severity.Medium
	}
	if cfg.Detection.Severity.High > 0 {
		thresholds.High = cfg.Detection.Severity.High
	}
	return usecase.NewEnsemble(reg, weights, thresholds)
}

// ProvideDetectionUseCase creates the detection orchestrator.
func ProvideDetectionUseCase(
	windows domrepo.WindowSupplier,
	store domrepo.AnomalyStore,
	pub domrepo.AnomalyPublisher,
	m domrepo.Metrics,
	ensemble *usecase.Ensemble,
	log *applogger.Logger,
	cfg *config.Config,
) *usecase.DetectionUseCase {
	return usecase.NewDetectionUseCase(windows, store, pub, m, ensemble, log, cfg.Detection.Sensitivity)
}

// ProvideFeedbackUseCase creates the feedback recorder.
func ProvideFeedbackUseCase(store domrepo.AnomalyStore, m domrepo.Metrics, log *applogger.Logger) *usecase.FeedbackUseCase {
	return usecase.NewFeedbackUseCase(store, m, log)
}

// ProvideResponseCache builds a layered memory+Redis response cache when
// Redis is configured, an in-process TTL cache otherwise.
func ProvideResponseCache(cfg *config.Config) (icache.BytesCache, error) {
	if !cfg.Cache.Redis.Enabled {
		return icache.NewTTLCache(), nil
	}

	host, port := splitHostPort(cfg.Cache.Redis.Addr)
	redisCache, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisHost(host),
		pkgcache.WithRedisPort(port),
		pkgcache.WithRedisPassword(cfg.Cache.Redis.Password),
		pkgcache.WithRedisDB(cfg.Cache.Redis.DB),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return icache.NewServiceCache(pkgcache.NewLayeredCache(redisCache)), nil
}

func splitHostPort(addr string) (string, int) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, 6379
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return host, 6379
	}
	return host, port
}

// ProvideHandler creates the detection API handler.
func ProvideHandler(
	log *applogger.Logger,
	detect *usecase.DetectionUseCase,
	feedback *usecase.FeedbackUseCase,
	hub *alertfeed.Hub,
	cache icache.BytesCache,
) xhttp.Handler {
	h := api.NewAnomaliesHandler(log, detect, feedback, hub)
	h.SetCache(cache)
	return h
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	log *applogger.Logger,
	chClient *pkgch.Client,
	pub domrepo.AnomalyPublisher,
	hub *alertfeed.Hub,
	handler xhttp.Handler,
) *server.App {
	return server.New(cfg, log, chClient, pub, hub, handler)
}
