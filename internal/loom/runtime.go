// Package loom assembles the independently-testable internal packages
// (audit, auth, flags, jobs, keys, query, weaver) into a single running
// process per a resolved *config.Config. It is the composition root: no
// package above it decides wiring, and nothing below it knows about any
// sibling package.
package loom

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/ohitslaurence/loom/internal/audit"
	"github.com/ohitslaurence/loom/internal/auth"
	"github.com/ohitslaurence/loom/internal/config"
	"github.com/ohitslaurence/loom/internal/flags"
	"github.com/ohitslaurence/loom/internal/jobs"
	"github.com/ohitslaurence/loom/internal/keys"
	"github.com/ohitslaurence/loom/internal/query"
	"github.com/ohitslaurence/loom/internal/weaver"
)

// Deps carries the collaborators Runtime cannot construct from config
// alone: persistence and outbound email are database- and SMTP-layer
// concerns left outside every package's scope, so the process assembling
// Runtime must supply concrete implementations.
type Deps struct {
	AuditStore  audit.Store
	SessionRepo auth.SessionRepository
	JobRepo     jobs.Repository
	EmailSender auth.EmailSender
}

// Runtime holds every long-lived component of a single Loom control
// plane process.
type Runtime struct {
	Config *config.Config

	Audit     *audit.Pipeline
	Retention *audit.RetentionDaemon
	Auth      *auth.Service
	Flags     *flags.Broadcaster
	Jobs      *jobs.Scheduler
	Keys      keys.Backend
	Query     *query.Correlator

	clock clockwork.Clock
	log   *log.Entry

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New assembles a Runtime from cfg and deps but starts nothing; call Run
// to begin background work.
func New(cfg *config.Config, deps Deps, clock clockwork.Clock) (*Runtime, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	rt := &Runtime{
		Config: cfg,
		clock:  clock,
		log:    log.WithField("component", "runtime"),
	}

	rt.Audit = audit.NewPipeline(cfg.Audit.QueueCapacity, audit.OverflowPolicy(cfg.Audit.OverflowPolicy),
		audit.ParseSeverity(cfg.Audit.MinSeverity), audit.WithStore(deps.AuditStore), audit.WithClock(clock))
	for _, sink := range buildAuditSinks(cfg.Audit) {
		rt.Audit.AddSink(sink)
	}
	if deps.AuditStore != nil {
		rt.Retention = audit.NewRetentionDaemon(rt.Audit, deps.AuditStore, cfg.Audit.RetentionDays,
			retentionSweepInterval, clock)
	}

	rt.Auth = auth.NewService(deps.SessionRepo, deps.EmailSender,
		auth.WithClock(clock),
		auth.WithAccessTokenTTL(cfg.Auth.AccessTokenTTL),
		auth.WithMagicLinkTTL(cfg.Auth.MagicLinkTTL),
		auth.WithDeviceCodeTTL(cfg.Auth.DeviceCodeTTL),
		auth.WithWSTokenTTL(cfg.Auth.WSTokenTTL),
	)

	rt.Flags = flags.NewBroadcaster(cfg.Flags.ChannelCapacity, clock)

	if deps.JobRepo != nil {
		rt.Jobs = jobs.New(deps.JobRepo, clock)
	}

	backend, err := buildKeysBackend(cfg.Keys, clock)
	if err != nil {
		return nil, fmt.Errorf("building keys backend: %w", err)
	}
	rt.Keys = backend

	rt.Query = query.New(clock)

	return rt, nil
}

// retentionSweepInterval is how often the retention daemon checks for
// rows past the configured retention window; the window itself (days)
// is configured, the sweep cadence is not.
const retentionSweepInterval = 24 * time.Hour

// syslogDialTimeout bounds how long a sink's Dial may take to connect.
const syslogDialTimeout = 5 * time.Second

func buildAuditSinks(cfg config.AuditConfig) []audit.Sink {
	var sinks []audit.Sink
	if cfg.Syslog.Enabled {
		sinks = append(sinks, audit.NewSyslogSink(
			"syslog", cfg.Syslog.Target, cfg.Syslog.Protocol, cfg.Syslog.Facility, cfg.Syslog.AppName,
			cfg.Syslog.CEF, audit.ParseSeverity(cfg.Syslog.MinSeverity), syslogDialTimeout, nil))
	}
	if cfg.Stream.Enabled {
		sinks = append(sinks, audit.NewStreamSink(
			"stream", cfg.Stream.Target, cfg.Stream.Protocol, audit.ParseSeverity(cfg.Stream.MinSeverity),
			syslogDialTimeout, nil))
	}
	if cfg.HTTP.Enabled {
		sinks = append(sinks, audit.NewHTTPSink(
			"http", cfg.HTTP.URL, cfg.HTTP.Headers, cfg.HTTP.MaxRetries, audit.ParseSeverity(cfg.HTTP.MinSeverity), nil))
	}
	if cfg.File.Enabled {
		sinks = append(sinks, audit.NewFileSink("file", cfg.File.Path, cfg.File.Format, audit.ParseSeverity(cfg.File.MinSeverity)))
	}
	return sinks
}

// buildKeysBackend decodes the configured KEK and Ed25519 signing seed
// and constructs the software-backed key Backend. A production
// deployment swaps this constructor for one backed by an HSM or KMS
// without changing anything above it, since callers depend only on
// keys.Backend.
func buildKeysBackend(cfg config.KeysConfig, clock clockwork.Clock) (keys.Backend, error) {
	seedHex := cfg.SigningKeySeedHex.Expose()
	seed, err := hex.DecodeString(seedHex)
	if err != nil {
		return nil, fmt.Errorf("decoding signing key seed: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("signing key seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	signingKey := ed25519.NewKeyFromSeed(seed)

	return keys.NewSoftwareBackend(cfg.KEKHex, signingKey, cfg.Issuer, clock)
}

// NewWeaverProcessor constructs a Processor for one connecting weaver
// sidecar. Unlike the other components, a Processor is per-connection
// rather than a singleton owned by Runtime, so it is exposed as a
// factory instead of a field.
func (rt *Runtime) NewWeaverProcessor(identity weaver.Identity) *weaver.Processor {
	return weaver.NewProcessor(identity, rt.Config.Weaver.OutboundCapacity,
		weaver.OverflowPolicy(rt.Config.Weaver.OverflowPolicy), rt.clock)
}

// Run starts every background loop (the audit pipeline, the retention
// sweep, the flags heartbeat, the query cleanup sweep, and the job
// scheduler) and blocks until ctx is cancelled or Stop is called.
func (rt *Runtime) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	rt.cancel = cancel

	rt.spawn(func() { rt.Audit.Run(ctx) })
	if rt.Retention != nil {
		rt.spawn(func() { rt.Retention.Run(ctx) })
	}
	rt.spawn(func() { rt.Flags.RunHeartbeat(ctx, rt.Config.Flags.HeartbeatInterval) })
	rt.spawn(func() { rt.Query.RunCleanup(ctx, rt.Config.Query.DefaultTimeout, rt.Config.Query.DefaultTimeout*queryCleanupAgeMultiple) })
	if rt.Jobs != nil {
		if err := rt.Jobs.Start(ctx); err != nil {
			cancel()
			return fmt.Errorf("starting job scheduler: %w", err)
		}
	}

	<-ctx.Done()
	rt.wg.Wait()
	return nil
}

// queryCleanupAgeMultiple sets how much older than one default query
// timeout a late/unmatched response must be before the cleanup sweep
// discards it, giving slow-but-legitimate stragglers room to land.
const queryCleanupAgeMultiple = 4

func (rt *Runtime) spawn(fn func()) {
	rt.wg.Add(1)
	go func() {
		defer rt.wg.Done()
		fn()
	}()
}

// Stop cancels every background loop started by Run and closes the
// audit pipeline so its drain completes before Run returns.
func (rt *Runtime) Stop() {
	if rt.cancel != nil {
		rt.cancel()
	}
	rt.Audit.Close()
	if rt.Jobs != nil {
		if err := rt.Jobs.Shutdown(); err != nil {
			rt.log.WithError(err).Warn("job scheduler shutdown reported an error")
		}
	}
}

// PrometheusCollectors returns every metric collector owned by a wired
// component, for a caller registering them against a shared registry.
func (rt *Runtime) PrometheusCollectors() []prometheus.Collector {
	var all []prometheus.Collector
	all = append(all, audit.PrometheusCollectors...)
	all = append(all, query.PrometheusCollectors...)
	return all
}
