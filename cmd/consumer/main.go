// Command consumer is the §6 entrypoint: one cobra subcommand per
// specialized consumer (behavioral, transaction, document), each wiring
// the C1-C9 pipeline behind an internal/eventconsumer.Consumer and
// running until SIGINT/SIGTERM. Grounded on cmd/observability-cli's
// rootCmd + PersistentFlags + subcommand layout, narrowed to this
// module's own flags and components.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"

	"github.com/innovabiz/iam-fraud-core/internal/aggregator"
	"github.com/innovabiz/iam-fraud-core/internal/alert"
	"github.com/innovabiz/iam-fraud-core/internal/consumers"
	"github.com/innovabiz/iam-fraud-core/internal/contextstore"
	"github.com/innovabiz/iam-fraud-core/internal/creditbureau"
	"github.com/innovabiz/iam-fraud-core/internal/eventconsumer"
	"github.com/innovabiz/iam-fraud-core/internal/gateway"
	"github.com/innovabiz/iam-fraud-core/internal/geolocation"
	"github.com/innovabiz/iam-fraud-core/internal/policy"
	"github.com/innovabiz/iam-fraud-core/internal/regional"
	"github.com/innovabiz/iam-fraud-core/internal/rules"
	"github.com/innovabiz/iam-fraud-core/internal/signals"
	"github.com/innovabiz/iam-fraud-core/internal/telemetry/logging"
	"github.com/innovabiz/iam-fraud-core/internal/telemetry/metrics"
	"github.com/innovabiz/iam-fraud-core/internal/telemetry/tracing"
	"github.com/innovabiz/iam-fraud-core/internal/tenantconfig"
)

// Exit codes per §6.
const (
	exitOK              = 0
	exitConfigError     = 1
	exitBrokerUnreachable = 2
	exitFatalPipeline   = 3
)

var supportedRegions = map[string]bool{"AO": true, "BR": true, "MZ": true, "PT": true}

var (
	flagRegion       string
	flagConfigPath   string
	flagBrokers      []string
	flagGroupIDSuffix string
	flagLogLevel     string
	flagMetricsAddr  string
	flagGeoIPPath    string
	flagGatewayURL   string
	flagGatewayKey   string
	flagGatewaySecret string
	flagMaxRetries   int
	flagPoisonTopic  string
	flagRedisAddr    string
	flagPostgresDSN  string
)

var rootCmd = &cobra.Command{
	Use:   "consumer",
	Short: "Runs one specialized fraud-detection Kafka consumer (behavioral, transaction, or document)",
	Long: `consumer wires the adaptive authentication and fraud-detection core's
context store, signal processors, rule engine, risk aggregator, policy
resolver, and alert notifier behind a single Kafka consumer loop for one
of the three specialized event streams.`,
}

var behavioralCmd = &cobra.Command{
	Use:   "behavioral",
	Short: "Run the behavioral/authentication/session/device event consumer",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConsumer(cmd.Context(), "behavioral")
	},
}

var transactionCmd = &cobra.Command{
	Use:   "transaction",
	Short: "Run the transaction (PIX / M-Pesa / mobile money) event consumer",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConsumer(cmd.Context(), "transaction")
	},
}

var documentCmd = &cobra.Command{
	Use:   "document",
	Short: "Run the document-validation event consumer",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConsumer(cmd.Context(), "document")
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagRegion, "region", "", "Region code this consumer instance serves (AO, BR, MZ, PT)")
	rootCmd.PersistentFlags().StringVar(&flagConfigPath, "config", "tenants.yaml", "Path to the tenant registry config file")
	rootCmd.PersistentFlags().StringSliceVar(&flagBrokers, "brokers", []string{"localhost:9092"}, "Kafka broker addresses")
	rootCmd.PersistentFlags().StringVar(&flagGroupIDSuffix, "group-suffix", "", "Appended to the consumer group ID, for running multiple instances side by side")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&flagMetricsAddr, "metrics-addr", ":9090", "Address to serve Prometheus /metrics on")
	rootCmd.PersistentFlags().StringVar(&flagGeoIPPath, "geoip-db", "", "Path to a MaxMind GeoIP2/GeoLite2 City database; geolocation enrichment is skipped if empty")
	rootCmd.PersistentFlags().StringVar(&flagGatewayURL, "gateway-url", "", "Base URL of the alert notification gateway")
	rootCmd.PersistentFlags().StringVar(&flagGatewayKey, "gateway-key", "", "API key for the alert notification gateway")
	rootCmd.PersistentFlags().StringVar(&flagGatewaySecret, "gateway-secret", "", "API secret for the alert notification gateway's HMAC signature")
	rootCmd.PersistentFlags().IntVar(&flagMaxRetries, "max-retries", 3, "Max per-message retries before a message is parked in the poison queue")
	rootCmd.PersistentFlags().StringVar(&flagPoisonTopic, "poison-topic", "", "Poison-queue topic; empty disables it")
	rootCmd.PersistentFlags().StringVar(&flagRedisAddr, "redis-addr", "", "Redis address for alert cooldown/idempotency state; empty uses an in-memory store (single instance only)")
	rootCmd.PersistentFlags().StringVar(&flagPostgresDSN, "postgres-dsn", "", "Postgres DSN for durable behavioral-profile persistence; empty keeps profiles in memory only")

	rootCmd.AddCommand(behavioralCmd, transactionCmd, documentCmd)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		color.Red("%v", err)
		os.Exit(exitFromError(err))
	}
}

// exitFromError maps a run error to the §6 exit-code contract by its
// wrapper type: a *configError (flags, logger, tenant registry, regional
// tables, profile repository) maps to exitConfigError, a *brokerError
// (consumer Init) to exitBrokerUnreachable, and any other error,
// including one from the Run loop, to exitFatalPipeline.
func exitFromError(err error) int {
	if ce, ok := err.(*configError); ok {
		_ = ce
		return exitConfigError
	}
	if be, ok := err.(*brokerError); ok {
		_ = be
		return exitBrokerUnreachable
	}
	return exitFatalPipeline
}

type configError struct{ err error }

func (e *configError) Error() string { return e.err.Error() }

type brokerError struct{ err error }

func (e *brokerError) Error() string { return e.err.Error() }

// runConsumer builds the full pipeline for one specialized consumer and
// runs it until the context is canceled.
func runConsumer(ctx context.Context, kind string) error {
	if !supportedRegions[flagRegion] {
		return &configError{fmt.Errorf("--region must be one of AO, BR, MZ, PT, got %q", flagRegion)}
	}

	logger, err := logging.New(logging.Config{
		ServiceName: "iam-fraud-core-consumer-" + kind,
		Environment: os.Getenv("IAM_FRAUD_ENV"),
		Level:       logLevelFromFlag(flagLogLevel),
		JSONFormat:  true,
	})
	if err != nil {
		return &configError{fmt.Errorf("build logger: %w", err)}
	}

	tracer := tracing.NewTracer("iam-fraud-core-consumer-"+kind, logger)

	registry := tenantconfig.New(flagConfigPath, logger)
	if err := registry.Load(); err != nil {
		return &configError{fmt.Errorf("load tenant registry: %w", err)}
	}
	registry.Watch()

	regionalAnalyzers, err := buildRegionalAnalyzers()
	if err != nil {
		return &configError{err}
	}

	alerts := buildNotifier(logger)

	// The credit-bureau factory is constructed here so a deployment's real
	// bureau adapter has a registration point without touching this file;
	// no signal processor in this build consults it yet (§6 scopes
	// credit-bureau checks to a document/user identity no processor here
	// carries), so only its "mock" entry is ever created.
	creditFactory := creditbureau.NewFactory()
	if _, err := creditFactory.Create("mock"); err != nil {
		logger.Warn("failed to instantiate mock credit bureau provider")
	}

	geoLookup := geoIPLookupOrNil(logger)
	if geoLookup != nil {
		defer geoLookup.Close()
	}

	go serveMetrics(logger)

	var handler eventconsumer.Handler
	var topic, groupID string

	store := contextstore.New(24*time.Hour, logger)
	if flagPostgresDSN != "" {
		repo, err := contextstore.NewPostgresProfileRepository(flagPostgresDSN)
		if err != nil {
			return &configError{fmt.Errorf("connect behavioral profile repository: %w", err)}
		}
		store.Repo = repo
	}

	switch kind {
	case "behavioral":
		c := &consumers.BehavioralConsumer{
			Store:      store,
			Registry:   buildSignalRegistry(),
			Engine:     rules.NewEngine(logger),
			Aggregator: aggregator.New(),
			Resolver:   policy.New(),
			Regional:   regionalAnalyzers,
			Policies:   registry,
			Rules:      registry,
			Alerts:     alerts,
			Logger:     logger,
			Tracer:     tracer,
		}
		handler = c.Handle
		topic, groupID = "auth-events", "fraud-core-behavioral"
	case "transaction":
		c := consumers.NewTransactionConsumer(regionalAnalyzers, registry, alerts, logger)
		handler = c.Handle
		topic, groupID = "transaction-events", "fraud-core-transaction"
	case "document":
		c := consumers.NewDocumentConsumer(documentRuleAdapter{regional.NewStaticDocumentRules()}, registry, alerts, logger)
		handler = c.Handle
		topic, groupID = "document-events", "fraud-core-document"
	default:
		return &configError{fmt.Errorf("unknown consumer kind %q", kind)}
	}

	if flagGroupIDSuffix != "" {
		groupID = groupID + "-" + flagGroupIDSuffix
	}

	consumer := eventconsumer.New(eventconsumer.Config{
		Name:         kind,
		Brokers:      flagBrokers,
		Topic:        topic,
		GroupID:      groupID,
		RegionFilter: []string{flagRegion},
		MaxRetries:   flagMaxRetries,
		PoisonTopic:  flagPoisonTopic,
	}, handler, logger, tracer)

	if err := consumer.Init(ctx); err != nil {
		return &brokerError{fmt.Errorf("initialize %s consumer: %w", kind, err)}
	}
	color.Green("✓ %s consumer running (topic=%s group=%s region=%s)", kind, topic, groupID, flagRegion)

	runErrCh := make(chan error, 1)
	go func() { runErrCh <- consumer.Run(ctx) }()

	select {
	case <-ctx.Done():
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer stopCancel()
		if err := consumer.Stop(stopCtx); err != nil {
			logger.Error("error stopping consumer cleanly")
		}
		return nil
	case err := <-runErrCh:
		if err != nil {
			return fmt.Errorf("%s consumer run loop exited: %w", kind, err)
		}
		return nil
	}
}

// buildRegionalAnalyzers loads every supported region's embedded
// regulatory table, not just flagRegion's, since a tenant may span
// multiple markets and BehavioralConsumer.Regional is keyed by the
// event's own region code, not the process's.
func buildRegionalAnalyzers() (map[string]*regional.Analyzer, error) {
	out := make(map[string]*regional.Analyzer, len(supportedRegions))
	for code := range supportedRegions {
		table, err := regional.LoadEmbedded(code)
		if err != nil {
			return nil, fmt.Errorf("load regional table %s: %w", code, err)
		}
		out[code] = regional.NewAnalyzer(table)
	}
	return out, nil
}

// buildSignalRegistry registers every stateless signal processor this
// module ships. The credit-bureau and geolocation external connectors
// are constructed in runConsumer, not here, and no processor registered
// here consults them.
func buildSignalRegistry() *signals.Registry {
	r := signals.NewRegistry()
	r.Register(signals.NewBehavioralProcessor())
	r.Register(signals.NewTimePatternProcessor())
	r.Register(signals.NewDeviceAnalysisProcessor())
	r.Register(signals.NewGeoVelocityProcessor())
	r.Register(signals.NewIPReputationProcessor(defaultHighRiskCountries))
	r.Register(signals.NewCredentialAnomalyProcessor(nil))
	matcher := signals.NewCosineTemplateMatcher()
	r.Register(signals.NewARBiometricProcessor(matcher))
	r.Register(signals.NewEnvironmentProcessor(matcher))
	r.Register(signals.NewGazePatternProcessor(matcher))
	r.Register(signals.NewSpatialGestureProcessor(matcher))
	return r
}

var defaultHighRiskCountries = []string{"IR", "KP", "SY", "CU", "SD"}

// buildNotifier wires C9: an HTTPS gateway sender when --gateway-url is
// set, otherwise a local no-op sender so a consumer can still run (e.g.
// in a development environment with no real gateway) without a nil
// dereference. Cooldown/idempotency state is redis-backed when
// --redis-addr is set, so the cooldown window survives a restart and is
// shared across every consumer replica; otherwise it falls back to the
// in-memory default, which is only correct for a single instance.
func buildNotifier(logger *logging.Logger) *alert.Notifier {
	var sender gateway.Sender
	if flagGatewayURL != "" {
		sender = gateway.NewHTTPSender(gateway.Config{
			BaseURL:   flagGatewayURL,
			APIKey:    flagGatewayKey,
			APISecret: flagGatewaySecret,
		})
	} else {
		sender = noopSender{logger: logger}
	}
	matrix := alert.DefaultEscalationMatrix(map[string]string{
		"AO": "security-ao", "BR": "security-br", "MZ": "security-mz", "PT": "security-pt",
	})
	notifier := alert.NewNotifier(sender, matrix, logger)

	if flagRedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: flagRedisAddr})
		notifier.Cooldowns = alert.NewRedisCooldownStore(client, alert.DefaultCooldown)
	}

	return notifier
}

// noopSender stands in for a real notification gateway when none is
// configured, logging what would have been sent instead of failing the
// pipeline outright.
type noopSender struct{ logger *logging.Logger }

func (n noopSender) Send(ctx context.Context, req gateway.SendRequest) (gateway.SendResponse, error) {
	n.logger.Warn("no notification gateway configured, dropping alert dispatch")
	return gateway.SendResponse{Success: true, NotificationID: "noop", DeliveryStatus: "skipped"}, nil
}

// documentRuleAdapter bridges internal/regional.StaticDocumentRules to
// internal/consumers.DocumentRuleProvider. Go requires exact type
// identity for interface satisfaction, so the structurally-identical
// regional.DocumentRules cannot stand in for consumers.DocumentRules on
// its own; this adapter does the one-field-at-a-time conversion at the
// wiring boundary instead of introducing a reverse package dependency.
type documentRuleAdapter struct {
	rules regional.StaticDocumentRules
}

func (a documentRuleAdapter) RulesFor(countryCode, documentType string) consumers.DocumentRules {
	r := a.rules.RulesFor(countryCode, documentType)
	return consumers.DocumentRules{
		MinConfidenceScore: r.MinConfidenceScore,
		RequiredSteps:      r.RequiredSteps,
		MinValidityYears:   r.MinValidityYears,
		MaxValidityYears:   r.MaxValidityYears,
	}
}

// geoIPLookupOrNil opens the configured GeoIP2 database, if any, closing
// over its own error so a missing/unreadable database degrades to "no
// geolocation enrichment" rather than refusing to start the consumer.
func geoIPLookupOrNil(logger *logging.Logger) *geolocation.GeoIP2Lookup {
	if flagGeoIPPath == "" {
		return nil
	}
	lookup, err := geolocation.NewGeoIP2Lookup(flagGeoIPPath)
	if err != nil {
		logger.Warn("failed to open geoip database, continuing without geolocation enrichment")
		return nil
	}
	return lookup
}

func serveMetrics(logger *logging.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(flagMetricsAddr, mux); err != nil && err != http.ErrServerClosed {
		logger.Error("metrics server exited")
	}
	_ = metrics.AssessmentsTotal // keep the metrics package import exercised even if no assessment has completed yet
}

func logLevelFromFlag(s string) zapcore.Level {
	switch s {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
