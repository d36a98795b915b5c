package config

import (
	"fmt"
	"time"

	"github.com/gravitational/trace"

	"github.com/ohitslaurence/loom/internal/secret"
)

var validTLSModes = map[string]bool{"none": true, "starttls": true, "tls": true}
var validOverflowPolicies = map[string]bool{"drop_newest": true, "drop_oldest": true, "block": true}
var validSeverities = map[string]bool{"debug": true, "info": true, "warn": true, "error": true, "critical": true}
var validSinkProtocols = map[string]bool{"udp": true, "tcp": true, "tls": true}
var validFileFormats = map[string]bool{"json": true, "cef": true}

// Config is the fully resolved, validated runtime configuration. It has no
// exported setters: once Finalize returns a *Config, it is effectively
// immutable for the lifetime of the process.
type Config struct {
	Server ServerConfig
	SMTP   SMTPConfig
	Audit  AuditConfig
	Flags  FlagsConfig
	Weaver WeaverConfig
	Keys   KeysConfig
	Query  QueryConfig
	Auth   AuthConfig
}

type ServerConfig struct {
	ListenAddr string
}

type SMTPConfig struct {
	Host        string
	Port        int
	Username    string
	Password    secret.String
	FromAddress string
	TLSMode     string
}

// Debug renders a placeholder for the password field instead of leaking
// it, per the secret-wrapper contract.
func (c SMTPConfig) Debug() string {
	return fmt.Sprintf("SMTPConfig{Host:%q Port:%d Username:%q Password:%s FromAddress:%q TLSMode:%q}",
		c.Host, c.Port, c.Username, c.Password, c.FromAddress, c.TLSMode)
}

type SyslogSinkConfig struct {
	Enabled     bool
	Target      string
	Protocol    string
	Facility    string
	AppName     string
	CEF         bool
	MinSeverity string
}

type StreamSinkConfig struct {
	Enabled     bool
	Target      string
	Protocol    string
	MinSeverity string
}

type HTTPSinkConfig struct {
	Enabled     bool
	URL         string
	Headers     map[string]secret.String
	MaxRetries  int
	MinSeverity string
}

// Debug redacts header values, matching the spec's
// "[N header(s) REDACTED]" placeholder for sensitive collections.
func (c HTTPSinkConfig) Debug() string {
	return fmt.Sprintf("HTTPSinkConfig{Enabled:%v URL:%q Headers:[%d header(s) REDACTED] MaxRetries:%d MinSeverity:%q}",
		c.Enabled, c.URL, len(c.Headers), c.MaxRetries, c.MinSeverity)
}

type FileSinkConfig struct {
	Enabled     bool
	Path        string
	Format      string
	MinSeverity string
}

type AuditConfig struct {
	QueueCapacity  int
	OverflowPolicy string
	MinSeverity    string
	RetentionDays  int
	Syslog         SyslogSinkConfig
	Stream         StreamSinkConfig
	HTTP           HTTPSinkConfig
	File           FileSinkConfig
}

type FlagsConfig struct {
	ChannelCapacity  int
	HeartbeatInterval time.Duration
}

type WeaverConfig struct {
	CommandBufferPages int
	DiskBufferPages    int
	NetworkBufferPages int
	OutboundCapacity   int
	OverflowPolicy     string
}

type KeysConfig struct {
	KEKHex            secret.String
	SigningKeySeedHex secret.String
	Issuer            string
}

// Debug never exposes the KEK or the signing key seed.
func (c KeysConfig) Debug() string {
	return fmt.Sprintf("KeysConfig{KEKHex:%s SigningKeySeedHex:%s Issuer:%q}", c.KEKHex, c.SigningKeySeedHex, c.Issuer)
}

type QueryConfig struct {
	DefaultTimeout time.Duration
}

type AuthConfig struct {
	AccessTokenTTL   time.Duration
	MagicLinkTTL     time.Duration
	DeviceCodeTTL    time.Duration
	OAuthStateTTL    time.Duration
	WSTokenTTL       time.Duration
}

// Load resolves the final configuration from the documented precedence:
// defaults, then an optional TOML file, then the environment.
func Load(filePath string) (*Config, error) {
	file, err := FileLayer(filePath)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	envLayer, err := EnvLayer()
	if err != nil {
		return nil, trace.Wrap(err)
	}

	merged := Merge(Merge(DefaultLayer(), file), envLayer)
	return Finalize(merged)
}

func deref[T any](p *T, fallback T) T {
	if p == nil {
		return fallback
	}
	return *p
}

// Finalize fills any field still missing from the supplied layer using
// DefaultLayer, then validates cross-field invariants. A layer passed
// directly to Finalize need not be pre-merged with defaults — Finalize
// performs that merge itself, so Finalize(Merge(DefaultLayer(), x)) and
// Finalize(x) agree.
func Finalize(layer Layer) (*Config, error) {
	layer = Merge(DefaultLayer(), layer)

	cfg := &Config{
		Server: ServerConfig{ListenAddr: deref(layer.Server.ListenAddr, "")},
		SMTP: SMTPConfig{
			Host:        deref(layer.SMTP.Host, ""),
			Port:        deref(layer.SMTP.Port, 0),
			Username:    deref(layer.SMTP.Username, ""),
			FromAddress: deref(layer.SMTP.FromAddress, ""),
			TLSMode:     deref(layer.SMTP.TLSMode, ""),
		},
		Audit: AuditConfig{
			QueueCapacity:  deref(layer.Audit.QueueCapacity, 0),
			OverflowPolicy: deref(layer.Audit.OverflowPolicy, ""),
			MinSeverity:    deref(layer.Audit.MinSeverity, ""),
			RetentionDays:  deref(layer.Audit.RetentionDays, 0),
			Syslog: SyslogSinkConfig{
				Enabled:     deref(layer.Audit.Syslog.Enabled, false),
				Target:      deref(layer.Audit.Syslog.Target, ""),
				Protocol:    deref(layer.Audit.Syslog.Protocol, ""),
				Facility:    deref(layer.Audit.Syslog.Facility, ""),
				AppName:     deref(layer.Audit.Syslog.AppName, ""),
				CEF:         deref(layer.Audit.Syslog.CEF, false),
				MinSeverity: deref(layer.Audit.Syslog.MinSeverity, deref(layer.Audit.MinSeverity, "info")),
			},
			Stream: StreamSinkConfig{
				Enabled:     deref(layer.Audit.Stream.Enabled, false),
				Target:      deref(layer.Audit.Stream.Target, ""),
				Protocol:    deref(layer.Audit.Stream.Protocol, ""),
				MinSeverity: deref(layer.Audit.Stream.MinSeverity, deref(layer.Audit.MinSeverity, "info")),
			},
			HTTP: HTTPSinkConfig{
				Enabled:     deref(layer.Audit.HTTP.Enabled, false),
				URL:         deref(layer.Audit.HTTP.URL, ""),
				Headers:     layer.Audit.HTTP.Headers,
				MaxRetries:  deref(layer.Audit.HTTP.MaxRetries, 0),
				MinSeverity: deref(layer.Audit.HTTP.MinSeverity, deref(layer.Audit.MinSeverity, "info")),
			},
			File: FileSinkConfig{
				Enabled:     deref(layer.Audit.File.Enabled, false),
				Path:        deref(layer.Audit.File.Path, ""),
				Format:      deref(layer.Audit.File.Format, ""),
				MinSeverity: deref(layer.Audit.File.MinSeverity, deref(layer.Audit.MinSeverity, "info")),
			},
		},
		Flags: FlagsConfig{
			ChannelCapacity:   deref(layer.Flags.ChannelCapacity, 0),
			HeartbeatInterval: time.Duration(deref(layer.Flags.HeartbeatIntervalSeconds, 0)) * time.Second,
		},
		Weaver: WeaverConfig{
			CommandBufferPages: deref(layer.Weaver.CommandBufferPages, 0),
			DiskBufferPages:    deref(layer.Weaver.DiskBufferPages, 0),
			NetworkBufferPages: deref(layer.Weaver.NetworkBufferPages, 0),
			OutboundCapacity:   deref(layer.Weaver.OutboundCapacity, 0),
			OverflowPolicy:     deref(layer.Weaver.OverflowPolicy, ""),
		},
		Keys: KeysConfig{Issuer: deref(layer.Keys.Issuer, "")},
		Query: QueryConfig{
			DefaultTimeout: time.Duration(deref(layer.Query.DefaultTimeoutSeconds, 0)) * time.Second,
		},
		Auth: AuthConfig{
			AccessTokenTTL: time.Duration(deref(layer.Auth.AccessTokenTTLDays, 0)) * 24 * time.Hour,
			MagicLinkTTL:   time.Duration(deref(layer.Auth.MagicLinkTTLMinutes, 0)) * time.Minute,
			DeviceCodeTTL:  time.Duration(deref(layer.Auth.DeviceCodeTTLMinutes, 0)) * time.Minute,
			OAuthStateTTL:  time.Duration(deref(layer.Auth.OAuthStateTTLMinutes, 0)) * time.Minute,
			WSTokenTTL:     time.Duration(deref(layer.Auth.WSTokenTTLSeconds, 0)) * time.Second,
		},
	}
	if layer.SMTP.Password != nil {
		cfg.SMTP.Password = *layer.SMTP.Password
	}
	if layer.Keys.KEKHex != nil {
		cfg.Keys.KEKHex = *layer.Keys.KEKHex
	}
	if layer.Keys.SigningKeySeedHex != nil {
		cfg.Keys.SigningKeySeedHex = *layer.Keys.SigningKeySeedHex
	}

	if err := cfg.validate(); err != nil {
		return nil, trace.Wrap(err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.ListenAddr == "" {
		return missing("server.listen_addr")
	}

	if !validTLSModes[c.SMTP.TLSMode] {
		return invalid("smtp.tls_mode", fmt.Sprintf("must be one of none, starttls, tls; got %q", c.SMTP.TLSMode))
	}
	if c.SMTP.Host != "" && c.SMTP.FromAddress == "" {
		return validationErr("smtp.from_address", "must be set when smtp.host is set")
	}

	if !validOverflowPolicies[c.Audit.OverflowPolicy] {
		return invalid("audit.overflow_policy", fmt.Sprintf("must be one of drop_newest, drop_oldest, block; got %q", c.Audit.OverflowPolicy))
	}
	if !validSeverities[c.Audit.MinSeverity] {
		return invalid("audit.min_severity", fmt.Sprintf("unknown severity %q", c.Audit.MinSeverity))
	}
	if c.Audit.QueueCapacity <= 0 {
		return invalid("audit.queue_capacity", "must be positive")
	}
	if c.Audit.RetentionDays <= 0 {
		return invalid("audit.retention_days", "must be positive")
	}
	if c.Audit.Syslog.Enabled {
		if c.Audit.Syslog.Target == "" {
			return missing("audit.syslog.target")
		}
		if !validSinkProtocols[c.Audit.Syslog.Protocol] {
			return invalid("audit.syslog.protocol", fmt.Sprintf("must be one of udp, tcp, tls; got %q", c.Audit.Syslog.Protocol))
		}
	}
	if c.Audit.Stream.Enabled {
		if c.Audit.Stream.Target == "" {
			return missing("audit.stream.target")
		}
		if !validSinkProtocols[c.Audit.Stream.Protocol] {
			return invalid("audit.stream.protocol", fmt.Sprintf("must be one of udp, tcp, tls; got %q", c.Audit.Stream.Protocol))
		}
	}
	if c.Audit.HTTP.Enabled {
		if c.Audit.HTTP.URL == "" {
			return missing("audit.http.url")
		}
		if c.Audit.HTTP.MaxRetries < 0 {
			return invalid("audit.http.max_retries", "must be non-negative")
		}
	}
	if c.Audit.File.Enabled {
		if c.Audit.File.Path == "" {
			return missing("audit.file.path")
		}
		if !validFileFormats[c.Audit.File.Format] {
			return invalid("audit.file.format", fmt.Sprintf("must be one of json, cef; got %q", c.Audit.File.Format))
		}
	}

	if c.Flags.ChannelCapacity <= 0 {
		return invalid("flags.channel_capacity", "must be positive")
	}
	if c.Flags.HeartbeatInterval <= 0 {
		return invalid("flags.heartbeat_interval_seconds", "must be positive")
	}

	if !validOverflowPolicies[c.Weaver.OverflowPolicy] {
		return invalid("weaver.overflow_policy", fmt.Sprintf("must be one of drop_newest, drop_oldest, block; got %q", c.Weaver.OverflowPolicy))
	}
	if c.Weaver.OutboundCapacity <= 0 {
		return invalid("weaver.outbound_capacity", "must be positive")
	}

	if c.Keys.Issuer == "" {
		return missing("keys.issuer")
	}

	if c.Query.DefaultTimeout <= 0 {
		return invalid("query.default_timeout_seconds", "must be positive")
	}

	if c.Auth.AccessTokenTTL <= 0 {
		return invalid("auth.access_token_ttl_days", "must be positive")
	}

	return nil
}
