//go:build tinygo

// Command kvdemo is the RP2350 composition root for the nvkv store: it
// brings up WiFi, maps main/reserved flash regions into a flashnvram
// Medium, and exposes the store over two channels: an MQTT bridge for
// remote-config pushes and a TCP listener for bulk provisioning.
package main

import (
	"log/slog"
	"machine"
	"net/netip"
	"time"

	"github.com/openenterprise/nvkv"
	"github.com/openenterprise/nvkv/config"
	"github.com/openenterprise/nvkv/credentials"
	"github.com/openenterprise/nvkv/flashnvram"
	"github.com/openenterprise/nvkv/ota"
	"github.com/openenterprise/nvkv/telemetry"
	"github.com/openenterprise/nvkv/version"

	"github.com/soypat/cyw43439"
	"github.com/soypat/cyw43439/examples/cywnet"
	"github.com/soypat/lneto/x/xnet"
)

const pollTime = 5 * time.Millisecond

var requestedIP = [4]byte{192, 168, 1, 100}

var globalCyStack *cywnet.Stack

var store *nvkv.Store

func fatalError(msg string) {
	println(msg)
	for i := 0; i < 15; i++ {
		time.Sleep(time.Second)
	}
	println("watchdog timeout - forcing software reset...")
	ota.Reboot()
	for {
		time.Sleep(time.Second)
	}
}

func loopForeverStack(stack *cywnet.Stack) {
	for {
		send, recv, _ := stack.RecvAndSend()
		if send == 0 && recv == 0 {
			time.Sleep(pollTime)
		}
	}
}

func main() {
	// CRITICAL: confirm the OTA partition within 16.7s of boot, or the
	// bootrom auto-reverts to the previous firmware (TBYB).
	confirmResult := ota.ConfirmPartitionWithCode()

	time.Sleep(2 * time.Second)
	println("========================================")
	println("  nvkv demo")
	println("  Version:", version.Version)
	println("  Git SHA:", version.GitSHA)
	println("  Built:  ", version.BuildDate)
	println("========================================")
	println("ota:confirm-result", confirmResult)

	logger := slog.New(telemetry.NewSlogHandler(machine.Serial, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	mainSize, reservedSize := flashnvram.PlanLayout(nvkv.Offset(ota.GetPartitionMaxSize()), 0.2)
	medium := flashnvram.New(ota.GetPartitionOffset(ota.GetCurrentPartition()), mainSize, reservedSize)

	store = nvkv.New(nvkv.Options{MaxEntries: config.MaxEntries(), Logger: logger})
	if cap := store.Init(medium); cap == 0 {
		fatalError("nvkv: init refused partition geometry")
	}
	logger.Info("nvkv:ready",
		slog.Int("used", store.UsedEntries()),
		slog.Int("free", store.FreeEntries()),
		slog.Float64("wear_leveling_factor", store.WearLevelingFactor()),
	)

	devcfg := cyw43439.DefaultWifiConfig()
	devcfg.Logger = logger
	cystack, err := cywnet.NewConfiguredPicoWithStack(
		credentials.SSID(),
		credentials.Password(),
		devcfg,
		cywnet.StackConfig{
			Hostname:    "nvkv-demo",
			MaxTCPPorts: 2, // MQTT bridge + provisioning listener
		},
	)
	if err != nil {
		fatalError("wifi:setup-failed")
	}
	globalCyStack = cystack

	ota.SetWiFiShutdown(func() {
		logger.Info("ota:wifi-shutdown")
		time.Sleep(100 * time.Millisecond)
	})

	go loopForeverStack(cystack)

	dhcpResults, err := cystack.SetupWithDHCP(cywnet.DHCPConfig{
		RequestedAddr: netip.AddrFrom4(requestedIP),
	})
	if err != nil {
		fatalError("dhcp:failed")
	}
	logger.Info("dhcp:complete", slog.String("addr", dhcpResults.AssignedAddr.String()))

	stack := cystack.LnetoStack()

	if collector, err := config.TelemetryCollectorAddr(); err == nil {
		if err := telemetry.Init(stack, logger, collector); err != nil {
			logger.Warn("telemetry:init-failed", slog.String("err", err.Error()))
		}
	}

	go mqttConfigBridge(stack, logger)
	go provisionServer(stack, logger)

	for {
		telemetry.RecordGauge("nvkv.used_entries", int64(store.UsedEntries()))
		telemetry.RecordGauge("nvkv.free_entries", int64(store.FreeEntries()))
		logger.Debug("nvkv:snapshot",
			slog.Int("used", store.UsedEntries()),
			slog.Int("free", store.FreeEntries()),
		)
		time.Sleep(config.SyncInterval())
	}
}
