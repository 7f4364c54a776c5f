//go:build tinygo

package main

import (
	"errors"
	"io"
	"log/slog"
	"net/netip"
	"strconv"
	"time"

	"github.com/openenterprise/nvkv"
	"github.com/openenterprise/nvkv/config"

	"github.com/soypat/lneto/tcp"
	"github.com/soypat/lneto/x/xnet"
	mqtt "github.com/soypat/natiu-mqtt"
)

var (
	errConnectTimeout   = errors.New("kvdemo: mqtt connect timeout")
	errConnectionLost   = errors.New("kvdemo: mqtt connection lost")
	errMalformedMessage = errors.New("kvdemo: malformed config message")
)

const (
	mqttTimeout = 10 * time.Second
	tcpBufSize  = 2030
	mqttBufSize = 512
)

var topicConfig = []byte("nvkv/config")

var varSub = mqtt.VariablesSubscribe{
	TopicFilters: []mqtt.SubscribeRequest{
		{TopicFilter: topicConfig, QoS: mqtt.QoS0},
	},
}

// mqttConfigBridge connects to the configured broker and subscribes to the
// remote-config topic, applying every "key=value" message it receives to
// the store via Set. It reconnects on any error. Grounded on the reference
// firmware's fetchScheduleViaMQTT connect/subscribe sequence, trimmed to a
// subscribe-only bridge (no request/response round trip).
func mqttConfigBridge(stack *xnet.StackAsync, logger *slog.Logger) {
	brokerAddr, err := config.BrokerAddr()
	if err != nil {
		logger.Error("mqtt:broker-invalid", slog.String("err", err.Error()))
		return
	}

	for {
		if err := runMQTTSession(stack, brokerAddr, logger); err != nil {
			logger.Warn("mqtt:session-failed", slog.String("err", err.Error()))
		}
		time.Sleep(5 * time.Second)
	}
}

func runMQTTSession(stack *xnet.StackAsync, brokerAddr netip.AddrPort, logger *slog.Logger) error {
	rstack := stack.StackRetrying(5 * time.Millisecond)

	var tcpRxBuf [tcpBufSize]byte
	var tcpTxBuf [tcpBufSize]byte
	var mqttUserBuf [mqttBufSize]byte

	var conn tcp.Conn
	if err := conn.Configure(tcp.ConnConfig{
		RxBuf:             tcpRxBuf[:],
		TxBuf:             tcpTxBuf[:],
		TxPacketQueueSize: 3,
	}); err != nil {
		return err
	}

	cfg := mqtt.ClientConfig{
		Decoder: mqtt.DecoderNoAlloc{UserBuffer: mqttUserBuf[:]},
		OnPub:   onMQTTConfigMessage(logger),
	}

	var varconn mqtt.VariablesConnect
	clientID := append([]byte(nil), config.ClientID()...)
	clientID = append(clientID, '-')
	clientID = appendHex(clientID, uint16(stack.Prand32()))
	varconn.SetDefaultMQTT(clientID)

	client := mqtt.NewClient(cfg)

	conn.SetDeadline(time.Now().Add(mqttTimeout))
	if err := rstack.DoDialTCP(&conn, uint16(stack.Prand32()>>17)+1024, brokerAddr, mqttTimeout, 3); err != nil {
		conn.Abort()
		return err
	}
	defer closeConn(&conn, stack, brokerAddr)

	if err := client.StartConnect(&conn, &varconn); err != nil {
		return err
	}
	for retries := 50; retries > 0 && !client.IsConnected(); retries-- {
		time.Sleep(100 * time.Millisecond)
		client.HandleNext()
	}
	if !client.IsConnected() {
		return errConnectTimeout
	}
	logger.Info("mqtt:connected")

	conn.SetDeadline(time.Now().Add(mqttTimeout))
	varSub.PacketIdentifier = uint16(stack.Prand32())
	if err := client.StartSubscribe(varSub); err != nil {
		return err
	}
	logger.Info("mqtt:subscribed", slog.String("topic", string(topicConfig)))

	for conn.State().IsSynchronized() {
		conn.SetDeadline(time.Now().Add(2 * time.Second))
		client.HandleNext()
	}
	return errConnectionLost
}

// onMQTTConfigMessage returns an OnPub handler that parses "key=value"
// payloads and applies them to the global store.
func onMQTTConfigMessage(logger *slog.Logger) func(mqtt.Header, mqtt.VariablesPublish, io.Reader) error {
	return func(_ mqtt.Header, varPub mqtt.VariablesPublish, r io.Reader) error {
		if !bytesEqual(varPub.TopicName, topicConfig) {
			return nil
		}
		var buf [64]byte
		n, err := r.Read(buf[:])
		if err != nil && err != io.EOF {
			return err
		}
		if err := applyConfigMessage(buf[:n]); err != nil {
			logger.Warn("mqtt:apply-failed", slog.String("err", err.Error()))
		}
		return nil
	}
}

func applyConfigMessage(payload []byte) error {
	sep := -1
	for i, b := range payload {
		if b == '=' {
			sep = i
			break
		}
	}
	if sep < 0 {
		return errMalformedMessage
	}
	key, err := strconv.ParseUint(string(payload[:sep]), 10, 16)
	if err != nil {
		return err
	}
	value, err := strconv.ParseInt(string(payload[sep+1:]), 10, 32)
	if err != nil {
		return err
	}
	return store.Set(nvkv.Key(key), nvkv.Value(value))
}

func closeConn(conn *tcp.Conn, stack *xnet.StackAsync, addr netip.AddrPort) {
	conn.Close()
	for i := 0; i < 50 && !conn.State().IsClosed(); i++ {
		time.Sleep(100 * time.Millisecond)
	}
	conn.Abort()
	stack.DiscardResolveHardwareAddress6(addr.Addr())
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func appendHex(b []byte, v uint16) []byte {
	const hexDigits = "0123456789abcdef"
	return append(b,
		hexDigits[(v>>12)&0xf],
		hexDigits[(v>>8)&0xf],
		hexDigits[(v>>4)&0xf],
		hexDigits[v&0xf],
	)
}
