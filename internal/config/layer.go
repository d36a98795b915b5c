// Package config resolves Loom's runtime configuration from a
// precedence-ordered set of partial sources: built-in defaults, an
// optional TOML file, and the process environment. Each source produces a
// Layer — a structure where every field is a pointer, so "not set by this
// source" is representable. Load merges the layers in order, and
// Finalize fills any remaining gaps from the defaults and validates the
// result into a *Config.
package config

import "github.com/ohitslaurence/loom/internal/secret"

// Layer is a partial configuration overlay. Every leaf field is a pointer
// (secrets included, as *secret.String; header maps are nil when absent)
// so that merging can tell "absent" apart from "zero value".
type Layer struct {
	Server *ServerLayer
	SMTP   *SMTPLayer
	Audit  *AuditLayer
	Flags  *FlagsLayer
	Weaver *WeaverLayer
	Keys   *KeysLayer
	Query  *QueryLayer
	Auth   *AuthLayer
}

type ServerLayer struct {
	ListenAddr *string
}

type SMTPLayer struct {
	Host        *string
	Port        *int
	Username    *string
	Password    *secret.String
	FromAddress *string
	TLSMode     *string // "none", "starttls", "tls"
}

type SyslogSinkLayer struct {
	Enabled     *bool
	Target      *string // host:port
	Protocol    *string // udp, tcp, tls
	Facility    *string
	AppName     *string
	CEF         *bool
	MinSeverity *string
}

type StreamSinkLayer struct {
	Enabled     *bool
	Target      *string
	Protocol    *string // tcp, udp, tls
	MinSeverity *string
}

type HTTPSinkLayer struct {
	Enabled     *bool
	URL         *string
	Headers     map[string]secret.String
	MaxRetries  *int
	MinSeverity *string
}

type FileSinkLayer struct {
	Enabled     *bool
	Path        *string // may embed strftime-style placeholders, e.g. %Y-%m-%d
	Format      *string // "json" or "cef"
	MinSeverity *string
}

type AuditLayer struct {
	QueueCapacity  *int
	OverflowPolicy *string // drop_newest, drop_oldest, block
	MinSeverity    *string
	RetentionDays  *int
	Syslog         *SyslogSinkLayer
	Stream         *StreamSinkLayer
	HTTP           *HTTPSinkLayer
	File           *FileSinkLayer
}

type FlagsLayer struct {
	ChannelCapacity          *int
	HeartbeatIntervalSeconds *int
}

type WeaverLayer struct {
	CommandBufferPages *int
	DiskBufferPages    *int
	NetworkBufferPages *int
	OutboundCapacity   *int
	OverflowPolicy     *string
}

type KeysLayer struct {
	KEKHex            *secret.String
	SigningKeySeedHex *secret.String
	Issuer            *string
}

type QueryLayer struct {
	DefaultTimeoutSeconds *int
}

type AuthLayer struct {
	AccessTokenTTLDays   *int
	MagicLinkTTLMinutes  *int
	DeviceCodeTTLMinutes *int
	OAuthStateTTLMinutes *int
	WSTokenTTLSeconds    *int
}

// mergeField replaces base with overlay whenever overlay is non-nil.
func mergeField[T any](base, overlay *T) *T {
	if overlay != nil {
		return overlay
	}
	return base
}

// Merge folds overlay onto base following the documented precedence:
// fields only replace when the overlay holds a value, nested sections
// merge recursively, and Merge is not commutative — the overlay always
// wins on conflict. Merge(x, x) is idempotent and produces x back.
func Merge(base, overlay Layer) Layer {
	return Layer{
		Server: mergeServer(base.Server, overlay.Server),
		SMTP:   mergeSMTP(base.SMTP, overlay.SMTP),
		Audit:  mergeAudit(base.Audit, overlay.Audit),
		Flags:  mergeFlags(base.Flags, overlay.Flags),
		Weaver: mergeWeaver(base.Weaver, overlay.Weaver),
		Keys:   mergeKeys(base.Keys, overlay.Keys),
		Query:  mergeQuery(base.Query, overlay.Query),
		Auth:   mergeAuth(base.Auth, overlay.Auth),
	}
}

func mergeServer(base, overlay *ServerLayer) *ServerLayer {
	if overlay == nil {
		return base
	}
	if base == nil {
		base = &ServerLayer{}
	}
	out := *base
	out.ListenAddr = mergeField(out.ListenAddr, overlay.ListenAddr)
	return &out
}

func mergeSMTP(base, overlay *SMTPLayer) *SMTPLayer {
	if overlay == nil {
		return base
	}
	if base == nil {
		base = &SMTPLayer{}
	}
	out := *base
	out.Host = mergeField(out.Host, overlay.Host)
	out.Port = mergeField(out.Port, overlay.Port)
	out.Username = mergeField(out.Username, overlay.Username)
	out.Password = mergeField(out.Password, overlay.Password)
	out.FromAddress = mergeField(out.FromAddress, overlay.FromAddress)
	out.TLSMode = mergeField(out.TLSMode, overlay.TLSMode)
	return &out
}

func mergeSyslogSink(base, overlay *SyslogSinkLayer) *SyslogSinkLayer {
	if overlay == nil {
		return base
	}
	if base == nil {
		base = &SyslogSinkLayer{}
	}
	out := *base
	out.Enabled = mergeField(out.Enabled, overlay.Enabled)
	out.Target = mergeField(out.Target, overlay.Target)
	out.Protocol = mergeField(out.Protocol, overlay.Protocol)
	out.Facility = mergeField(out.Facility, overlay.Facility)
	out.AppName = mergeField(out.AppName, overlay.AppName)
	out.CEF = mergeField(out.CEF, overlay.CEF)
	out.MinSeverity = mergeField(out.MinSeverity, overlay.MinSeverity)
	return &out
}

func mergeStreamSink(base, overlay *StreamSinkLayer) *StreamSinkLayer {
	if overlay == nil {
		return base
	}
	if base == nil {
		base = &StreamSinkLayer{}
	}
	out := *base
	out.Enabled = mergeField(out.Enabled, overlay.Enabled)
	out.Target = mergeField(out.Target, overlay.Target)
	out.Protocol = mergeField(out.Protocol, overlay.Protocol)
	out.MinSeverity = mergeField(out.MinSeverity, overlay.MinSeverity)
	return &out
}

func mergeHTTPSink(base, overlay *HTTPSinkLayer) *HTTPSinkLayer {
	if overlay == nil {
		return base
	}
	if base == nil {
		base = &HTTPSinkLayer{}
	}
	out := *base
	out.Enabled = mergeField(out.Enabled, overlay.Enabled)
	out.URL = mergeField(out.URL, overlay.URL)
	out.MaxRetries = mergeField(out.MaxRetries, overlay.MaxRetries)
	out.MinSeverity = mergeField(out.MinSeverity, overlay.MinSeverity)
	if overlay.Headers != nil {
		// Collections are replaced wholesale, not merged key-by-key.
		out.Headers = overlay.Headers
	}
	return &out
}

func mergeFileSink(base, overlay *FileSinkLayer) *FileSinkLayer {
	if overlay == nil {
		return base
	}
	if base == nil {
		base = &FileSinkLayer{}
	}
	out := *base
	out.Enabled = mergeField(out.Enabled, overlay.Enabled)
	out.Path = mergeField(out.Path, overlay.Path)
	out.Format = mergeField(out.Format, overlay.Format)
	out.MinSeverity = mergeField(out.MinSeverity, overlay.MinSeverity)
	return &out
}

func mergeAudit(base, overlay *AuditLayer) *AuditLayer {
	if overlay == nil {
		return base
	}
	if base == nil {
		base = &AuditLayer{}
	}
	out := *base
	out.QueueCapacity = mergeField(out.QueueCapacity, overlay.QueueCapacity)
	out.OverflowPolicy = mergeField(out.OverflowPolicy, overlay.OverflowPolicy)
	out.MinSeverity = mergeField(out.MinSeverity, overlay.MinSeverity)
	out.RetentionDays = mergeField(out.RetentionDays, overlay.RetentionDays)
	out.Syslog = mergeSyslogSink(out.Syslog, overlay.Syslog)
	out.Stream = mergeStreamSink(out.Stream, overlay.Stream)
	out.HTTP = mergeHTTPSink(out.HTTP, overlay.HTTP)
	out.File = mergeFileSink(out.File, overlay.File)
	return &out
}

func mergeFlags(base, overlay *FlagsLayer) *FlagsLayer {
	if overlay == nil {
		return base
	}
	if base == nil {
		base = &FlagsLayer{}
	}
	out := *base
	out.ChannelCapacity = mergeField(out.ChannelCapacity, overlay.ChannelCapacity)
	out.HeartbeatIntervalSeconds = mergeField(out.HeartbeatIntervalSeconds, overlay.HeartbeatIntervalSeconds)
	return &out
}

func mergeWeaver(base, overlay *WeaverLayer) *WeaverLayer {
	if overlay == nil {
		return base
	}
	if base == nil {
		base = &WeaverLayer{}
	}
	out := *base
	out.CommandBufferPages = mergeField(out.CommandBufferPages, overlay.CommandBufferPages)
	out.DiskBufferPages = mergeField(out.DiskBufferPages, overlay.DiskBufferPages)
	out.NetworkBufferPages = mergeField(out.NetworkBufferPages, overlay.NetworkBufferPages)
	out.OutboundCapacity = mergeField(out.OutboundCapacity, overlay.OutboundCapacity)
	out.OverflowPolicy = mergeField(out.OverflowPolicy, overlay.OverflowPolicy)
	return &out
}

func mergeKeys(base, overlay *KeysLayer) *KeysLayer {
	if overlay == nil {
		return base
	}
	if base == nil {
		base = &KeysLayer{}
	}
	out := *base
	out.KEKHex = mergeField(out.KEKHex, overlay.KEKHex)
	out.SigningKeySeedHex = mergeField(out.SigningKeySeedHex, overlay.SigningKeySeedHex)
	out.Issuer = mergeField(out.Issuer, overlay.Issuer)
	return &out
}

func mergeQuery(base, overlay *QueryLayer) *QueryLayer {
	if overlay == nil {
		return base
	}
	if base == nil {
		base = &QueryLayer{}
	}
	out := *base
	out.DefaultTimeoutSeconds = mergeField(out.DefaultTimeoutSeconds, overlay.DefaultTimeoutSeconds)
	return &out
}

func mergeAuth(base, overlay *AuthLayer) *AuthLayer {
	if overlay == nil {
		return base
	}
	if base == nil {
		base = &AuthLayer{}
	}
	out := *base
	out.AccessTokenTTLDays = mergeField(out.AccessTokenTTLDays, overlay.AccessTokenTTLDays)
	out.MagicLinkTTLMinutes = mergeField(out.MagicLinkTTLMinutes, overlay.MagicLinkTTLMinutes)
	out.DeviceCodeTTLMinutes = mergeField(out.DeviceCodeTTLMinutes, overlay.DeviceCodeTTLMinutes)
	out.OAuthStateTTLMinutes = mergeField(out.OAuthStateTTLMinutes, overlay.OAuthStateTTLMinutes)
	out.WSTokenTTLSeconds = mergeField(out.WSTokenTTLSeconds, overlay.WSTokenTTLSeconds)
	return &out
}
