package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/shirou/gopsutil/v3/mem"

	"github.com/iotdm/iotdm-go/pkg/client"
	"github.com/iotdm/iotdm-go/pkg/model"
)

var (
	memoryFree  = model.ResourcePath(3, 0, 10)
	currentTime = model.ResourcePath(3, 0, 13)
)

const hostSampleInterval = 30 * time.Second

// hostSampler mirrors host state into the Device object: available
// memory into Memory Free and the wall clock into Current Time.
type hostSampler struct {
	memory func(context.Context) (*mem.VirtualMemoryStat, error)
	now    func() time.Time
	logger *slog.Logger
}

func newHostSampler(logger *slog.Logger) *hostSampler {
	return &hostSampler{
		memory: mem.VirtualMemoryWithContext,
		now:    time.Now,
		logger: logger,
	}
}

// sample reads the host outside the runner. A failed memory query
// leaves Memory Free untouched.
func (h *hostSampler) sample(ctx context.Context) []model.Value {
	values := []model.Value{{Path: currentTime, Type: model.DataTypeInteger, Value: h.now().Unix()}}

	vm, err := h.memory(ctx)
	if err != nil {
		h.logger.Warn("memory collection failed", "error", err)
		return values
	}
	return append(values, model.Value{Path: memoryFree, Type: model.DataTypeInteger, Value: int64(vm.Available / 1024)})
}

func (h *hostSampler) apply(ch *client.Channel, values []model.Value) {
	for _, v := range values {
		if err := ch.SetValue(v.Path, v.Value); err != nil {
			// Custom catalogs may leave these resources out.
			h.logger.Debug("host value not applied", "path", v.Path, "error", err)
		}
	}
}

func (h *hostSampler) run(ctx context.Context, do func(func(*client.Channel)) bool) {
	ticker := time.NewTicker(hostSampleInterval)
	defer ticker.Stop()

	for {
		values := h.sample(ctx)
		if !do(func(ch *client.Channel) { h.apply(ch, values) }) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
