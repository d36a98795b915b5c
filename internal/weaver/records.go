package weaver

import (
	"bytes"
	"encoding/binary"
	"net"
)

// Header is the common prefix every ring-buffer record carries.
type Header struct {
	EventType   EventType
	TimestampNs uint64
	PID         uint32
	TID         uint32
	UID         uint32
	GID         uint32
}

func decodeHeader(buf []byte) Header {
	return Header{
		EventType:   EventType(binary.LittleEndian.Uint32(buf[0:4])),
		TimestampNs: binary.LittleEndian.Uint64(buf[8:16]),
		PID:         binary.LittleEndian.Uint32(buf[16:20]),
		TID:         binary.LittleEndian.Uint32(buf[20:24]),
		UID:         binary.LittleEndian.Uint32(buf[24:28]),
		GID:         binary.LittleEndian.Uint32(buf[28:32]),
	}
}

// cString trims buf at its first NUL byte, the convention every
// fixed-width string field on the kernel side follows.
func cString(buf []byte) string {
	if i := bytes.IndexByte(buf, 0); i >= 0 {
		buf = buf[:i]
	}
	return string(buf)
}

// decodeAddr renders a 16-byte address field as an IPv4 or IPv6 string.
// The kernel side writes an IPv4 address into the first 4 bytes of the
// same 16-byte slot IPv6 uses and zero-pads the rest, so a slot whose
// last 12 bytes are zero decodes as IPv4. An IPv4-mapped IPv6 address
// also decodes as IPv4; anything else is treated as a raw IPv6 address.
func decodeAddr(buf []byte) string {
	padded := true
	for _, b := range buf[4:] {
		if b != 0 {
			padded = false
			break
		}
	}
	if padded {
		return net.IP(append([]byte(nil), buf[:4]...)).String()
	}
	ip := net.IP(append([]byte(nil), buf...))
	if v4 := ip.To4(); v4 != nil {
		return v4.String()
	}
	return ip.String()
}

// ProcessExec is emitted on execve(2): the replacing binary's path and
// the process's comm.
type ProcessExec struct {
	Header
	Comm string
	Path string
}

func decodeProcessExec(buf []byte) (ProcessExec, error) {
	if len(buf) < sizeProcessExec {
		return ProcessExec{}, DecodeTooSmallError{EventType: typeProcessExec, Got: len(buf), Want: sizeProcessExec}
	}
	return ProcessExec{
		Header: decodeHeader(buf),
		Comm:   cString(buf[32 : 32+maxCommLen]),
		Path:   cString(buf[32+maxCommLen : 32+maxCommLen+maxPathLen]),
	}, nil
}

// ProcessFork is emitted on fork/clone(2).
type ProcessFork struct {
	Header
	ChildPID uint32
	ChildTID uint32
	Flags    uint32
}

func decodeProcessFork(buf []byte) (ProcessFork, error) {
	if len(buf) < sizeProcessFork {
		return ProcessFork{}, DecodeTooSmallError{EventType: typeProcessFork, Got: len(buf), Want: sizeProcessFork}
	}
	return ProcessFork{
		Header:   decodeHeader(buf),
		ChildPID: binary.LittleEndian.Uint32(buf[32:36]),
		ChildTID: binary.LittleEndian.Uint32(buf[36:40]),
		Flags:    binary.LittleEndian.Uint32(buf[40:44]),
	}, nil
}

// ProcessExit is emitted on process termination; used to clear the
// connection tracker's per-PID window.
type ProcessExit struct {
	Header
	Comm     string
	ExitCode uint32
	Signal   uint32
}

func decodeProcessExit(buf []byte) (ProcessExit, error) {
	if len(buf) < sizeProcessExit {
		return ProcessExit{}, DecodeTooSmallError{EventType: typeProcessExit, Got: len(buf), Want: sizeProcessExit}
	}
	return ProcessExit{
		Header:   decodeHeader(buf),
		Comm:     cString(buf[32 : 32+maxCommLen]),
		ExitCode: binary.LittleEndian.Uint32(buf[48:52]),
		Signal:   binary.LittleEndian.Uint32(buf[52:56]),
	}, nil
}

// File is emitted on a write or metadata-changing file operation.
type File struct {
	Header
	Comm  string
	Path  string
	Flags uint32
	Mode  uint32
	Size  uint64
}

func decodeFile(buf []byte) (File, error) {
	if len(buf) < sizeFile {
		return File{}, DecodeTooSmallError{EventType: typeFile, Got: len(buf), Want: sizeFile}
	}
	pathEnd := 32 + maxCommLen + maxPathLen
	return File{
		Header: decodeHeader(buf),
		Comm:   cString(buf[32 : 32+maxCommLen]),
		Path:   cString(buf[32+maxCommLen : pathEnd]),
		Flags:  binary.LittleEndian.Uint32(buf[pathEnd : pathEnd+4]),
		Mode:   binary.LittleEndian.Uint32(buf[pathEnd+4 : pathEnd+8]),
		Size:   binary.LittleEndian.Uint64(buf[pathEnd+8 : pathEnd+16]),
	}, nil
}

// FileOpen is emitted on open(2)/openat(2), before any write occurs —
// the path filter treats this more leniently than File since it carries
// no evidence of mutation.
type FileOpen struct {
	Header
	Comm string
	Path string
}

func decodeFileOpen(buf []byte) (FileOpen, error) {
	if len(buf) < sizeFileOpen {
		return FileOpen{}, DecodeTooSmallError{EventType: typeFileOpen, Got: len(buf), Want: sizeFileOpen}
	}
	return FileOpen{
		Header: decodeHeader(buf),
		Comm:   cString(buf[32 : 32+maxCommLen]),
		Path:   cString(buf[32+maxCommLen : 32+maxCommLen+maxPathLen]),
	}, nil
}

// Connect is the higher-level, post-resolution connection record: the
// remote endpoint plus whatever hostname the sidecar had already
// resolved for it at syscall time (narrower than the DNS cache's full
// hostname width since it's inlined rather than looked up).
type Connect struct {
	Header
	Comm           string
	RemoteAddr     string
	Port           uint16
	Family         uint16
	InlineHostname string
}

const connectHostnameLen = sizeConnect - headerSize - maxCommLen - maxAddrLen - 4

func decodeConnect(buf []byte) (Connect, error) {
	if len(buf) < sizeConnect {
		return Connect{}, DecodeTooSmallError{EventType: typeConnect, Got: len(buf), Want: sizeConnect}
	}
	off := 32
	comm := cString(buf[off : off+maxCommLen])
	off += maxCommLen
	addr := decodeAddr(buf[off : off+maxAddrLen])
	off += maxAddrLen
	port := binary.LittleEndian.Uint16(buf[off : off+2])
	family := binary.LittleEndian.Uint16(buf[off+2 : off+4])
	off += 4
	hostname := cString(buf[off : off+connectHostnameLen])

	return Connect{
		Header:         decodeHeader(buf),
		Comm:           comm,
		RemoteAddr:     addr,
		Port:           port,
		Family:         family,
		InlineHostname: hostname,
	}, nil
}

// NetworkSocket is emitted on socket(2); feeds the per-PID connection
// tracker's (fd, domain, type, protocol) entry.
type NetworkSocket struct {
	Header
	FD       uint32
	Domain   uint32
	SockType uint32
	Protocol uint32
}

func decodeNetworkSocket(buf []byte) (NetworkSocket, error) {
	if len(buf) < sizeNetworkSocket {
		return NetworkSocket{}, DecodeTooSmallError{EventType: typeNetworkSocket, Got: len(buf), Want: sizeNetworkSocket}
	}
	return NetworkSocket{
		Header:   decodeHeader(buf),
		FD:       binary.LittleEndian.Uint32(buf[32:36]),
		Domain:   binary.LittleEndian.Uint32(buf[36:40]),
		SockType: binary.LittleEndian.Uint32(buf[40:44]),
		Protocol: binary.LittleEndian.Uint32(buf[44:48]),
	}, nil
}

// NetworkConnect is emitted on connect(2); feeds the connection
// tracker's (fd, remote_ip, port) association.
type NetworkConnect struct {
	Header
	FD         uint32
	Family     uint32
	RemoteAddr string
	Port       uint32
}

func decodeNetworkConnect(buf []byte) (NetworkConnect, error) {
	if len(buf) < sizeNetworkConnect {
		return NetworkConnect{}, DecodeTooSmallError{EventType: typeNetworkConnect, Got: len(buf), Want: sizeNetworkConnect}
	}
	return NetworkConnect{
		Header:     decodeHeader(buf),
		FD:         binary.LittleEndian.Uint32(buf[32:36]),
		Family:     binary.LittleEndian.Uint32(buf[36:40]),
		RemoteAddr: decodeAddr(buf[40:56]),
		Port:       binary.LittleEndian.Uint32(buf[56:60]),
	}, nil
}

// NetworkListen is emitted on listen(2).
type NetworkListen struct {
	Header
	FD      uint32
	Port    uint32
	Backlog uint32
}

func decodeNetworkListen(buf []byte) (NetworkListen, error) {
	if len(buf) < sizeNetworkListen {
		return NetworkListen{}, DecodeTooSmallError{EventType: typeNetworkListen, Got: len(buf), Want: sizeNetworkListen}
	}
	return NetworkListen{
		Header:  decodeHeader(buf),
		FD:      binary.LittleEndian.Uint32(buf[32:36]),
		Port:    binary.LittleEndian.Uint32(buf[36:40]),
		Backlog: binary.LittleEndian.Uint32(buf[40:44]),
	}, nil
}

// NetworkAccept is emitted on accept(2)/accept4(2).
type NetworkAccept struct {
	Header
	FD         uint32
	NewFD      uint32
	RemoteAddr string
	Port       uint32
}

func decodeNetworkAccept(buf []byte) (NetworkAccept, error) {
	if len(buf) < sizeNetworkAccept {
		return NetworkAccept{}, DecodeTooSmallError{EventType: typeNetworkAccept, Got: len(buf), Want: sizeNetworkAccept}
	}
	return NetworkAccept{
		Header:     decodeHeader(buf),
		FD:         binary.LittleEndian.Uint32(buf[32:36]),
		NewFD:      binary.LittleEndian.Uint32(buf[36:40]),
		RemoteAddr: decodeAddr(buf[40:56]),
		Port:       binary.LittleEndian.Uint32(buf[56:60]),
	}, nil
}

// DNSQuery is emitted when the sandbox issues a DNS lookup.
type DNSQuery struct {
	Header
	Comm     string
	Hostname string
}

func decodeDNSQuery(buf []byte) (DNSQuery, error) {
	if len(buf) < sizeDNSQuery {
		return DNSQuery{}, DecodeTooSmallError{EventType: typeDNSQuery, Got: len(buf), Want: sizeDNSQuery}
	}
	return DNSQuery{
		Header:   decodeHeader(buf),
		Comm:     cString(buf[32 : 32+maxCommLen]),
		Hostname: cString(buf[32+maxCommLen : 32+maxCommLen+maxHostnameLen]),
	}, nil
}

// DNSResponse is emitted when a DNS answer resolves a hostname to an
// address; feeds the DNS cache. TTL isn't carried on the wire record —
// the cache applies a fixed deadline (see NewDNSCache) — since the
// fixed-layout record has no room left once hostname and address are
// both inlined.
type DNSResponse struct {
	Header
	Comm     string
	Hostname string
	Addr     string
}

func decodeDNSResponse(buf []byte) (DNSResponse, error) {
	if len(buf) < sizeDNSResponse {
		return DNSResponse{}, DecodeTooSmallError{EventType: typeDNSResponse, Got: len(buf), Want: sizeDNSResponse}
	}
	off := 32
	comm := cString(buf[off : off+maxCommLen])
	off += maxCommLen
	hostname := cString(buf[off : off+maxHostnameLen])
	off += maxHostnameLen
	addr := decodeAddr(buf[off : off+maxAddrLen])

	return DNSResponse{
		Header:   decodeHeader(buf),
		Comm:     comm,
		Hostname: hostname,
		Addr:     addr,
	}, nil
}

// PrivilegeChange is emitted on setuid/setgid-class syscalls.
type PrivilegeChange struct {
	Header
	OldUID uint32
	NewUID uint32
	OldGID uint32
	NewGID uint32
}

func decodePrivilegeChange(buf []byte) (PrivilegeChange, error) {
	if len(buf) < sizePrivilegeChange {
		return PrivilegeChange{}, DecodeTooSmallError{EventType: typePrivilegeChange, Got: len(buf), Want: sizePrivilegeChange}
	}
	return PrivilegeChange{
		Header: decodeHeader(buf),
		OldUID: binary.LittleEndian.Uint32(buf[32:36]),
		NewUID: binary.LittleEndian.Uint32(buf[36:40]),
		OldGID: binary.LittleEndian.Uint32(buf[40:44]),
		NewGID: binary.LittleEndian.Uint32(buf[44:48]),
	}, nil
}

// MemoryExec is emitted when a mapping is made executable (mmap/mprotect
// with PROT_EXEC) — a common in-memory-payload indicator.
type MemoryExec struct {
	Header
	Comm     string
	Path     string
	Prot     uint32
	MapFlags uint32
	Addr     uint64
}

func decodeMemoryExec(buf []byte) (MemoryExec, error) {
	if len(buf) < sizeMemoryExec {
		return MemoryExec{}, DecodeTooSmallError{EventType: typeMemoryExec, Got: len(buf), Want: sizeMemoryExec}
	}
	pathEnd := 32 + maxCommLen + maxPathLen
	return MemoryExec{
		Header:   decodeHeader(buf),
		Comm:     cString(buf[32 : 32+maxCommLen]),
		Path:     cString(buf[32+maxCommLen : pathEnd]),
		Prot:     binary.LittleEndian.Uint32(buf[pathEnd : pathEnd+4]),
		MapFlags: binary.LittleEndian.Uint32(buf[pathEnd+4 : pathEnd+8]),
		Addr:     binary.LittleEndian.Uint64(buf[pathEnd+8 : pathEnd+16]),
	}, nil
}

// SandboxEscape is the highest-severity record: a syscall or path
// pattern that indicates an attempt to break out of the sandbox.
type SandboxEscape struct {
	Header
	Comm       string
	Path       string
	SyscallNr  uint32
	ReasonCode uint32
}

func decodeSandboxEscape(buf []byte) (SandboxEscape, error) {
	if len(buf) < sizeSandboxEscape {
		return SandboxEscape{}, DecodeTooSmallError{EventType: typeSandboxEscape, Got: len(buf), Want: sizeSandboxEscape}
	}
	pathEnd := 32 + maxCommLen + maxPathLen
	return SandboxEscape{
		Header:     decodeHeader(buf),
		Comm:       cString(buf[32 : 32+maxCommLen]),
		Path:       cString(buf[32+maxCommLen : pathEnd]),
		SyscallNr:  binary.LittleEndian.Uint32(buf[pathEnd : pathEnd+4]),
		ReasonCode: binary.LittleEndian.Uint32(buf[pathEnd+4 : pathEnd+8]),
	}, nil
}
