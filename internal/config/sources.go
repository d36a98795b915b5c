package config

import (
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/gravitational/trace"
	"github.com/pelletier/go-toml/v2"

	"github.com/ohitslaurence/loom/internal/secret"
)

// DefaultLayer returns the built-in defaults. It is always the base of a
// merge and never itself produced by an external source.
func DefaultLayer() Layer {
	str := func(v string) *string { return &v }
	i := func(v int) *int { return &v }
	b := func(v bool) *bool { return &v }

	return Layer{
		Server: &ServerLayer{ListenAddr: str("0.0.0.0:8080")},
		SMTP: &SMTPLayer{
			Host:        str(""),
			Port:        i(587),
			FromAddress: str(""),
			TLSMode:     str("starttls"),
		},
		Audit: &AuditLayer{
			QueueCapacity:  i(10000),
			OverflowPolicy: str("drop_newest"),
			MinSeverity:    str("info"),
			RetentionDays:  i(90),
			Syslog:         &SyslogSinkLayer{Enabled: b(false), Protocol: str("tcp"), Facility: str("local0"), AppName: str("loom"), CEF: b(false)},
			Stream:         &StreamSinkLayer{Enabled: b(false), Protocol: str("tcp")},
			HTTP:           &HTTPSinkLayer{Enabled: b(false), MaxRetries: i(3)},
			File:           &FileSinkLayer{Enabled: b(false), Format: str("json")},
		},
		Flags: &FlagsLayer{
			ChannelCapacity:          i(256),
			HeartbeatIntervalSeconds: i(30),
		},
		Weaver: &WeaverLayer{
			CommandBufferPages: i(8),
			DiskBufferPages:    i(8),
			NetworkBufferPages: i(8),
			OutboundCapacity:   i(4096),
			OverflowPolicy:     str("drop_newest"),
		},
		Keys: &KeysLayer{Issuer: str("loom")},
		Query: &QueryLayer{
			DefaultTimeoutSeconds: i(30),
		},
		Auth: &AuthLayer{
			AccessTokenTTLDays:   i(60),
			MagicLinkTTLMinutes:  i(10),
			DeviceCodeTTLMinutes: i(10),
			OAuthStateTTLMinutes: i(10),
			WSTokenTTLSeconds:    i(30),
		},
	}
}

// fileLayerSchema mirrors Layer but with plain (non-secret) types so
// go-toml/v2 can unmarshal directly; SMTP passwords are lifted into
// secret.String immediately after decode.
type fileLayerSchema struct {
	Server *ServerLayer `toml:"server"`
	SMTP   *struct {
		Host        *string `toml:"host"`
		Port        *int    `toml:"port"`
		Username    *string `toml:"username"`
		Password    *string `toml:"password"`
		FromAddress *string `toml:"from_address"`
		TLSMode     *string `toml:"tls_mode"`
	} `toml:"smtp"`
	Audit *struct {
		QueueCapacity  *int    `toml:"queue_capacity"`
		OverflowPolicy *string `toml:"overflow_policy"`
		MinSeverity    *string `toml:"min_severity"`
		RetentionDays  *int    `toml:"retention_days"`
		Syslog         *SyslogSinkLayer `toml:"syslog"`
		Stream         *StreamSinkLayer `toml:"stream"`
		HTTP           *struct {
			Enabled     *bool             `toml:"enabled"`
			URL         *string           `toml:"url"`
			Headers     map[string]string `toml:"headers"`
			MaxRetries  *int              `toml:"max_retries"`
			MinSeverity *string           `toml:"min_severity"`
		} `toml:"http"`
		File *FileSinkLayer `toml:"file"`
	} `toml:"audit"`
	Flags  *FlagsLayer  `toml:"flags"`
	Weaver *WeaverLayer `toml:"weaver"`
	Keys   *struct {
		KEKHex            *string `toml:"kek_hex"`
		SigningKeySeedHex *string `toml:"signing_key_seed_hex"`
		Issuer            *string `toml:"issuer"`
	} `toml:"keys"`
	Query *QueryLayer `toml:"query"`
	Auth  *AuthLayer  `toml:"auth"`
}

// FileLayer reads a TOML configuration file at path and produces a Layer.
// A missing file is not an error and yields an empty Layer; a malformed
// file is an error.
func FileLayer(path string) (Layer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Layer{}, nil
		}
		return Layer{}, trace.Wrap(err)
	}

	var schema fileLayerSchema
	if err := toml.Unmarshal(data, &schema); err != nil {
		return Layer{}, trace.Wrap(parseErr("<file>", err.Error()))
	}

	layer := Layer{
		Server: schema.Server,
		Flags:  schema.Flags,
		Weaver: schema.Weaver,
		Query:  schema.Query,
		Auth:   schema.Auth,
	}

	if schema.SMTP != nil {
		smtp := &SMTPLayer{
			Host:        schema.SMTP.Host,
			Port:        schema.SMTP.Port,
			Username:    schema.SMTP.Username,
			FromAddress: schema.SMTP.FromAddress,
			TLSMode:     schema.SMTP.TLSMode,
		}
		if schema.SMTP.Password != nil {
			s := secret.New(*schema.SMTP.Password)
			smtp.Password = &s
		}
		layer.SMTP = smtp
	}

	if schema.Audit != nil {
		audit := &AuditLayer{
			QueueCapacity:  schema.Audit.QueueCapacity,
			OverflowPolicy: schema.Audit.OverflowPolicy,
			MinSeverity:    schema.Audit.MinSeverity,
			RetentionDays:  schema.Audit.RetentionDays,
			Syslog:         schema.Audit.Syslog,
			Stream:         schema.Audit.Stream,
			File:           schema.Audit.File,
		}
		if schema.Audit.HTTP != nil {
			http := &HTTPSinkLayer{
				Enabled:     schema.Audit.HTTP.Enabled,
				URL:         schema.Audit.HTTP.URL,
				MaxRetries:  schema.Audit.HTTP.MaxRetries,
				MinSeverity: schema.Audit.HTTP.MinSeverity,
			}
			if schema.Audit.HTTP.Headers != nil {
				http.Headers = make(map[string]secret.String, len(schema.Audit.HTTP.Headers))
				for k, v := range schema.Audit.HTTP.Headers {
					http.Headers[k] = secret.New(v)
				}
			}
			audit.HTTP = http
		}
		layer.Audit = audit
	}

	if schema.Keys != nil {
		keys := &KeysLayer{Issuer: schema.Keys.Issuer}
		if schema.Keys.KEKHex != nil {
			s := secret.New(*schema.Keys.KEKHex)
			keys.KEKHex = &s
		}
		if schema.Keys.SigningKeySeedHex != nil {
			s := secret.New(*schema.Keys.SigningKeySeedHex)
			keys.SigningKeySeedHex = &s
		}
		layer.Keys = keys
	}

	return layer, nil
}

// envSchema is the flat, env-tagged struct caarlos0/env parses into. Only
// fields whose corresponding environment variable is actually present are
// copied into the returned Layer — env.Parse cannot by itself distinguish
// "absent" from "zero value", so presence is checked with os.LookupEnv.
type envSchema struct {
	ServerListenAddr string `env:"LOOM_SERVER_LISTEN_ADDR"`

	SMTPHost        string `env:"LOOM_SMTP_HOST"`
	SMTPPort        int    `env:"LOOM_SMTP_PORT"`
	SMTPUsername    string `env:"LOOM_SMTP_USERNAME"`
	SMTPPassword    string `env:"LOOM_SMTP_PASSWORD"`
	SMTPFromAddress string `env:"LOOM_SMTP_FROM_ADDRESS"`
	SMTPTLSMode     string `env:"LOOM_SMTP_TLS_MODE"`

	AuditQueueCapacity  int    `env:"LOOM_AUDIT_QUEUE_CAPACITY"`
	AuditOverflowPolicy string `env:"LOOM_AUDIT_OVERFLOW_POLICY"`
	AuditMinSeverity    string `env:"LOOM_AUDIT_MIN_SEVERITY"`
	AuditRetentionDays  int    `env:"LOOM_AUDIT_RETENTION_DAYS"`

	FlagsChannelCapacity          int `env:"LOOM_FLAGS_CHANNEL_CAPACITY"`
	FlagsHeartbeatIntervalSeconds int `env:"LOOM_FLAGS_HEARTBEAT_INTERVAL_SECONDS"`

	WeaverOutboundCapacity int    `env:"LOOM_WEAVER_OUTBOUND_CAPACITY"`
	WeaverOverflowPolicy   string `env:"LOOM_WEAVER_OVERFLOW_POLICY"`

	KeysKEKHex            string `env:"LOOM_KEYS_KEK_HEX"`
	KeysSigningKeySeedHex string `env:"LOOM_KEYS_SIGNING_KEY_SEED_HEX"`
	KeysIssuer            string `env:"LOOM_KEYS_ISSUER"`

	QueryDefaultTimeoutSeconds int `env:"LOOM_QUERY_DEFAULT_TIMEOUT_SECONDS"`

	AuthAccessTokenTTLDays int `env:"LOOM_AUTH_ACCESS_TOKEN_TTL_DAYS"`
}

// EnvLayer parses process environment variables carrying the LOOM_ prefix
// into a Layer, using caarlos0/env for typed decoding.
func EnvLayer() (Layer, error) {
	var schema envSchema
	if err := env.Parse(&schema); err != nil {
		return Layer{}, trace.Wrap(err)
	}

	var layer Layer

	if v, ok := os.LookupEnv("LOOM_SERVER_LISTEN_ADDR"); ok {
		layer.Server = &ServerLayer{ListenAddr: &v}
	}

	smtp := &SMTPLayer{}
	haveSMTP := false
	if _, ok := os.LookupEnv("LOOM_SMTP_HOST"); ok {
		smtp.Host = &schema.SMTPHost
		haveSMTP = true
	}
	if _, ok := os.LookupEnv("LOOM_SMTP_PORT"); ok {
		smtp.Port = &schema.SMTPPort
		haveSMTP = true
	}
	if _, ok := os.LookupEnv("LOOM_SMTP_USERNAME"); ok {
		smtp.Username = &schema.SMTPUsername
		haveSMTP = true
	}
	if _, ok := os.LookupEnv("LOOM_SMTP_PASSWORD"); ok {
		s := secret.New(schema.SMTPPassword)
		smtp.Password = &s
		haveSMTP = true
	}
	if _, ok := os.LookupEnv("LOOM_SMTP_FROM_ADDRESS"); ok {
		smtp.FromAddress = &schema.SMTPFromAddress
		haveSMTP = true
	}
	if _, ok := os.LookupEnv("LOOM_SMTP_TLS_MODE"); ok {
		smtp.TLSMode = &schema.SMTPTLSMode
		haveSMTP = true
	}
	if haveSMTP {
		layer.SMTP = smtp
	}

	audit := &AuditLayer{}
	haveAudit := false
	if _, ok := os.LookupEnv("LOOM_AUDIT_QUEUE_CAPACITY"); ok {
		audit.QueueCapacity = &schema.AuditQueueCapacity
		haveAudit = true
	}
	if _, ok := os.LookupEnv("LOOM_AUDIT_OVERFLOW_POLICY"); ok {
		audit.OverflowPolicy = &schema.AuditOverflowPolicy
		haveAudit = true
	}
	if _, ok := os.LookupEnv("LOOM_AUDIT_MIN_SEVERITY"); ok {
		audit.MinSeverity = &schema.AuditMinSeverity
		haveAudit = true
	}
	if _, ok := os.LookupEnv("LOOM_AUDIT_RETENTION_DAYS"); ok {
		audit.RetentionDays = &schema.AuditRetentionDays
		haveAudit = true
	}
	if haveAudit {
		layer.Audit = audit
	}

	flags := &FlagsLayer{}
	haveFlags := false
	if _, ok := os.LookupEnv("LOOM_FLAGS_CHANNEL_CAPACITY"); ok {
		flags.ChannelCapacity = &schema.FlagsChannelCapacity
		haveFlags = true
	}
	if _, ok := os.LookupEnv("LOOM_FLAGS_HEARTBEAT_INTERVAL_SECONDS"); ok {
		flags.HeartbeatIntervalSeconds = &schema.FlagsHeartbeatIntervalSeconds
		haveFlags = true
	}
	if haveFlags {
		layer.Flags = flags
	}

	weaver := &WeaverLayer{}
	haveWeaver := false
	if _, ok := os.LookupEnv("LOOM_WEAVER_OUTBOUND_CAPACITY"); ok {
		weaver.OutboundCapacity = &schema.WeaverOutboundCapacity
		haveWeaver = true
	}
	if _, ok := os.LookupEnv("LOOM_WEAVER_OVERFLOW_POLICY"); ok {
		weaver.OverflowPolicy = &schema.WeaverOverflowPolicy
		haveWeaver = true
	}
	if haveWeaver {
		layer.Weaver = weaver
	}

	keys := &KeysLayer{}
	haveKeys := false
	if v, ok := os.LookupEnv("LOOM_KEYS_KEK_HEX"); ok {
		s := secret.New(v)
		keys.KEKHex = &s
		haveKeys = true
	}
	if v, ok := os.LookupEnv("LOOM_KEYS_SIGNING_KEY_SEED_HEX"); ok {
		s := secret.New(v)
		keys.SigningKeySeedHex = &s
		haveKeys = true
	}
	if _, ok := os.LookupEnv("LOOM_KEYS_ISSUER"); ok {
		keys.Issuer = &schema.KeysIssuer
		haveKeys = true
	}
	if haveKeys {
		layer.Keys = keys
	}

	if _, ok := os.LookupEnv("LOOM_QUERY_DEFAULT_TIMEOUT_SECONDS"); ok {
		layer.Query = &QueryLayer{DefaultTimeoutSeconds: &schema.QueryDefaultTimeoutSeconds}
	}

	if _, ok := os.LookupEnv("LOOM_AUTH_ACCESS_TOKEN_TTL_DAYS"); ok {
		layer.Auth = &AuthLayer{AccessTokenTTLDays: &schema.AuthAccessTokenTTLDays}
	}

	return layer, nil
}
