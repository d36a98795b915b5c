package weaver

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func buildHeader(buf []byte, et EventType, pid, tid, uid, gid uint32) {
	binary.LittleEndian.PutUint32(buf[0:4], uint32(et))
	binary.LittleEndian.PutUint64(buf[8:16], 1234567890)
	binary.LittleEndian.PutUint32(buf[16:20], pid)
	binary.LittleEndian.PutUint32(buf[20:24], tid)
	binary.LittleEndian.PutUint32(buf[24:28], uid)
	binary.LittleEndian.PutUint32(buf[28:32], gid)
}

func putCString(buf []byte, offset int, s string) {
	copy(buf[offset:], s)
}

func TestDecodeProcessExec(t *testing.T) {
	buf := make([]byte, sizeProcessExec)
	buildHeader(buf, typeProcessExec, 100, 100, 0, 0)
	putCString(buf, 32, "bash")
	putCString(buf, 32+maxCommLen, "/usr/bin/bash")

	ev, err := decodeProcessExec(buf)
	require.NoError(t, err)
	require.Equal(t, "bash", ev.Comm)
	require.Equal(t, "/usr/bin/bash", ev.Path)
	require.EqualValues(t, 100, ev.PID)
}

func TestDecodeProcessExecTooSmall(t *testing.T) {
	buf := make([]byte, sizeProcessExec-1)
	_, err := decodeProcessExec(buf)
	require.Error(t, err)
	var tooSmall DecodeTooSmallError
	require.ErrorAs(t, err, &tooSmall)
}

func TestDecodeDNSResponse(t *testing.T) {
	buf := make([]byte, sizeDNSResponse)
	buildHeader(buf, typeDNSResponse, 1, 1, 0, 0)
	putCString(buf, 32, "curl")
	putCString(buf, 32+maxCommLen, "example.com")
	copy(buf[32+maxCommLen+maxHostnameLen:], []byte{93, 184, 216, 34})

	ev, err := decodeDNSResponse(buf)
	require.NoError(t, err)
	require.Equal(t, "example.com", ev.Hostname)
	require.Equal(t, "93.184.216.34", ev.Addr)
}

func TestDecodeConnectWithInlineHostname(t *testing.T) {
	buf := make([]byte, sizeConnect)
	buildHeader(buf, typeConnect, 5, 5, 0, 0)
	putCString(buf, 32, "curl")
	copy(buf[32+maxCommLen:], []byte{10, 0, 0, 1})
	binary.LittleEndian.PutUint16(buf[32+maxCommLen+maxAddrLen:], 443)
	putCString(buf, 32+maxCommLen+maxAddrLen+4, "internal.example")

	ev, err := decodeConnect(buf)
	require.NoError(t, err)
	require.Equal(t, "10.0.0.1", ev.RemoteAddr)
	require.EqualValues(t, 443, ev.Port)
	require.Equal(t, "internal.example", ev.InlineHostname)
}

func TestDecodeProcessExit(t *testing.T) {
	buf := make([]byte, sizeProcessExit)
	buildHeader(buf, typeProcessExit, 9, 9, 0, 0)
	putCString(buf, 32, "sh")
	binary.LittleEndian.PutUint32(buf[48:52], 1)
	binary.LittleEndian.PutUint32(buf[52:56], 0)

	ev, err := decodeProcessExit(buf)
	require.NoError(t, err)
	require.EqualValues(t, 1, ev.ExitCode)
}

func TestDecodeSandboxEscapeTooSmall(t *testing.T) {
	buf := make([]byte, 10)
	_, err := decodeSandboxEscape(buf)
	require.Error(t, err)
}

func TestAllRecordSizesAreConsistentWithHeaderAndFields(t *testing.T) {
	// Every decode function must accept exactly its declared size
	// and reject one byte less, without panicking.
	cases := []struct {
		size int
		et   EventType
		fn   func([]byte) error
	}{
		{sizeProcessExec, typeProcessExec, func(b []byte) error { _, err := decodeProcessExec(b); return err }},
		{sizeProcessFork, typeProcessFork, func(b []byte) error { _, err := decodeProcessFork(b); return err }},
		{sizeProcessExit, typeProcessExit, func(b []byte) error { _, err := decodeProcessExit(b); return err }},
		{sizeFile, typeFile, func(b []byte) error { _, err := decodeFile(b); return err }},
		{sizeFileOpen, typeFileOpen, func(b []byte) error { _, err := decodeFileOpen(b); return err }},
		{sizeConnect, typeConnect, func(b []byte) error { _, err := decodeConnect(b); return err }},
		{sizeNetworkSocket, typeNetworkSocket, func(b []byte) error { _, err := decodeNetworkSocket(b); return err }},
		{sizeNetworkConnect, typeNetworkConnect, func(b []byte) error { _, err := decodeNetworkConnect(b); return err }},
		{sizeNetworkListen, typeNetworkListen, func(b []byte) error { _, err := decodeNetworkListen(b); return err }},
		{sizeNetworkAccept, typeNetworkAccept, func(b []byte) error { _, err := decodeNetworkAccept(b); return err }},
		{sizeDNSQuery, typeDNSQuery, func(b []byte) error { _, err := decodeDNSQuery(b); return err }},
		{sizeDNSResponse, typeDNSResponse, func(b []byte) error { _, err := decodeDNSResponse(b); return err }},
		{sizePrivilegeChange, typePrivilegeChange, func(b []byte) error { _, err := decodePrivilegeChange(b); return err }},
		{sizeMemoryExec, typeMemoryExec, func(b []byte) error { _, err := decodeMemoryExec(b); return err }},
		{sizeSandboxEscape, typeSandboxEscape, func(b []byte) error { _, err := decodeSandboxEscape(b); return err }},
	}

	for _, c := range cases {
		full := make([]byte, c.size)
		buildHeader(full, c.et, 1, 1, 0, 0)
		require.NoError(t, c.fn(full), "event type %v should decode a full-size buffer", c.et)

		short := make([]byte, c.size-1)
		require.Error(t, c.fn(short), "event type %v should reject an undersized buffer", c.et)
	}
}
