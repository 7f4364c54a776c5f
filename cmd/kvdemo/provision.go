//go:build tinygo

package main

import (
	"bufio"
	"crypto/subtle"
	"log/slog"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/openenterprise/nvkv"
	"github.com/openenterprise/nvkv/credentials"

	"github.com/soypat/lneto/tcp"
	"github.com/soypat/lneto/x/xnet"
)

const provisionPort = uint16(4243)

var (
	provisionRxBuf [2048]byte
	provisionTxBuf [512]byte
)

// provisionServer listens for bulk-provisioning TCP sessions: one
// password line followed by any number of "key value\n" lines, each
// applied to the store via Set and acknowledged with "ok\n" or
// "err: <message>\n". Grounded on the reference firmware's console
// accept loop and password check, trimmed to a single line-oriented
// protocol instead of a full command shell.
func provisionServer(stack *xnet.StackAsync, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("provision:panic-recovered")
		}
	}()

	var conn tcp.Conn
	if err := conn.Configure(tcp.ConnConfig{
		RxBuf:             provisionRxBuf[:],
		TxBuf:             provisionTxBuf[:],
		TxPacketQueueSize: 2,
	}); err != nil {
		logger.Error("provision:configure-failed", slog.String("err", err.Error()))
		return
	}

	logger.Info("provision:ready", slog.Int("port", int(provisionPort)))

	for {
		conn.Abort()
		time.Sleep(100 * time.Millisecond)

		if err := stack.ListenTCP(&conn, provisionPort); err != nil {
			logger.Error("provision:listen-failed", slog.String("err", err.Error()))
			time.Sleep(3 * time.Second)
			continue
		}

		for waitCount := 0; conn.State().IsPreestablished() && waitCount < 6000; waitCount++ {
			time.Sleep(10 * time.Millisecond)
		}
		if !conn.State().IsSynchronized() {
			continue
		}

		logger.Info("provision:connected", slog.String("ip", formatRemoteAddr(conn.RemoteAddr())))
		handleProvisionSession(&conn, logger)
	}
}

func handleProvisionSession(conn *tcp.Conn, logger *slog.Logger) {
	conn.SetDeadline(time.Now().Add(30 * time.Second))

	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		return
	}
	if subtle.ConstantTimeCompare([]byte(strings.TrimSpace(scanner.Text())), []byte(credentials.ConsolePassword())) != 1 {
		conn.Write([]byte("err: auth failed\n"))
		logger.Info("provision:auth-failed")
		return
	}
	conn.Write([]byte("ok\n"))

	applied := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "quit" {
			break
		}
		if err := applyProvisionLine(line); err != nil {
			conn.Write([]byte("err: " + err.Error() + "\n"))
			continue
		}
		applied++
		conn.Write([]byte("ok\n"))
	}
	logger.Info("provision:session-complete", slog.Int("applied", applied))
}

func applyProvisionLine(line string) error {
	fields := strings.Fields(line)
	if len(fields) != 2 {
		return errMalformedMessage
	}
	key, err := strconv.ParseUint(fields[0], 10, 16)
	if err != nil {
		return err
	}
	value, err := strconv.ParseInt(fields[1], 10, 32)
	if err != nil {
		return err
	}
	return store.Set(nvkv.Key(key), nvkv.Value(value))
}

func formatRemoteAddr(addr []byte) string {
	if len(addr) != 4 {
		return "?"
	}
	return netip.AddrFrom4([4]byte{addr[0], addr[1], addr[2], addr[3]}).String()
}
