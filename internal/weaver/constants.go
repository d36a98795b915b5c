// Package weaver decodes the fixed-layout kernel ring-buffer records a
// weaver sandbox's audit sidecar emits, correlates them against a short
// DNS cache and a per-PID connection tracker, and pushes the resulting
// language-neutral audit events onto a bounded outbound channel.
package weaver

// Fixed buffer widths shared by every record layout. Strings the kernel
// side writes are null-terminated within these fixed-size byte arrays.
const (
	maxPathLen     = 256
	maxArgvLen     = 256
	maxCommLen     = 16
	maxHostnameLen = 256
	maxAddrLen     = 16 // holds an IPv6 address
)

// EventType is the closed, kernel-assigned record discriminator. Unknown
// values (0 or > typeSandboxEscape) are dropped.
type EventType uint32

const (
	typeProcessExec EventType = iota + 1
	typeProcessFork
	typeProcessExit
	typeFile
	typeFileOpen
	typeConnect
	typeNetworkSocket
	typeNetworkConnect
	typeNetworkListen
	typeNetworkAccept
	typeDNSQuery
	typeDNSResponse
	typePrivilegeChange
	typeMemoryExec
	typeSandboxEscape
	typeReserved16
)

// String renders the stable tag used in the outbound event's event_type
// field. Every decodable type up to typeSandboxEscape has an entry;
// typeReserved16 and out-of-range values render as "unknown".
func (t EventType) String() string {
	switch t {
	case typeProcessExec:
		return "process_exec"
	case typeProcessFork:
		return "process_fork"
	case typeProcessExit:
		return "process_exit"
	case typeFile:
		return "file"
	case typeFileOpen:
		return "file_open"
	case typeConnect:
		return "connect"
	case typeNetworkSocket:
		return "network_socket"
	case typeNetworkConnect:
		return "network_connect"
	case typeNetworkListen:
		return "network_listen"
	case typeNetworkAccept:
		return "network_accept"
	case typeDNSQuery:
		return "dns_query"
	case typeDNSResponse:
		return "dns_response"
	case typePrivilegeChange:
		return "privilege_change"
	case typeMemoryExec:
		return "memory_exec"
	case typeSandboxEscape:
		return "sandbox_escape"
	default:
		return "unknown"
	}
}

// headerSize is the size in bytes of the common record header every
// record begins with: event_type(4) timestamp_ns(8) pid(4) tid(4)
// uid(4) gid(4), padded to 8-byte alignment.
const headerSize = 32

// Per-record total sizes (header included). These mirror the repr(C)
// layout the kernel side compiles with; the Go side can't re-derive them
// via unsafe.Sizeof since the decoded structs hold Go strings rather than
// the kernel's fixed-width byte arrays. init below asserts the handful of
// invariants Go can check — every record at least holding a header, and
// the connect record's inline-hostname slot not going negative — and
// records_test.go's TestAllRecordSizesAreConsistentWithHeaderAndFields
// exercises every one of these constants against its decode function.
const (
	sizeProcessExec     = 304
	sizeProcessFork     = 48
	sizeProcessExit     = 56
	sizeFile            = 320
	sizeFileOpen        = 304
	sizeConnect         = 176
	sizeNetworkSocket   = 48
	sizeNetworkConnect  = 64
	sizeNetworkListen   = 48
	sizeNetworkAccept   = 64
	sizeDNSQuery        = 304
	sizeDNSResponse     = 320
	sizePrivilegeChange = 64
	sizeMemoryExec      = 320
	sizeSandboxEscape   = 328
)

func init() {
	sizes := map[EventType]int{
		typeProcessExec:     sizeProcessExec,
		typeProcessFork:     sizeProcessFork,
		typeProcessExit:     sizeProcessExit,
		typeFile:            sizeFile,
		typeFileOpen:        sizeFileOpen,
		typeConnect:         sizeConnect,
		typeNetworkSocket:   sizeNetworkSocket,
		typeNetworkConnect:  sizeNetworkConnect,
		typeNetworkListen:   sizeNetworkListen,
		typeNetworkAccept:   sizeNetworkAccept,
		typeDNSQuery:        sizeDNSQuery,
		typeDNSResponse:     sizeDNSResponse,
		typePrivilegeChange: sizePrivilegeChange,
		typeMemoryExec:      sizeMemoryExec,
		typeSandboxEscape:   sizeSandboxEscape,
	}
	for et, size := range sizes {
		if size < headerSize {
			panic("weaver: record size for " + et.String() + " is smaller than the common header")
		}
	}
	if connectHostnameLen <= 0 {
		panic("weaver: sizeConnect leaves no room for an inline hostname")
	}
}
