package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/iotdm/iotdm-go/pkg/client"
	"github.com/iotdm/iotdm-go/pkg/model"
)

var batteryLevel = model.ResourcePath(3, 0, 9)

const simulationInterval = 10 * time.Second

// runSimulation drains the battery level by one percent per interval and
// recharges it once empty.
func runSimulation(ctx context.Context, do func(func(*client.Channel)) bool, logger *slog.Logger) {
	ticker := time.NewTicker(simulationInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !do(func(ch *client.Channel) { drainBattery(ch, logger) }) {
				return
			}
		}
	}
}

func drainBattery(ch *client.Channel, logger *slog.Logger) {
	level := int64(100)
	if v, err := ch.Registry().Get(batteryLevel); err == nil {
		if n, ok := v.(int64); ok {
			level = n
		}
	}
	level--
	if level < 0 {
		level = 100
	}
	if err := ch.SetValue(batteryLevel, level); err != nil {
		logger.Warn("simulation", "error", err)
		return
	}
	logger.Debug("battery level", "percent", level)
}
