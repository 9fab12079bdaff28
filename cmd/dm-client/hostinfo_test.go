package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shirou/gopsutil/v3/mem"

	"github.com/iotdm/iotdm-go/pkg/objects"
)

func TestHostSamplerApply(t *testing.T) {
	_, _, ch := testShell(t, objects.Options{})

	h := newHostSampler(discardLogger())
	h.now = func() time.Time { return time.Unix(1_700_000_000, 0) }
	h.memory = func(context.Context) (*mem.VirtualMemoryStat, error) {
		return &mem.VirtualMemoryStat{Available: 2048 * 1024}, nil
	}

	h.apply(ch, h.sample(context.Background()))

	if v, err := ch.Registry().Get(memoryFree); err != nil || v != int64(2048) {
		t.Errorf("Memory Free = %v, %v; want 2048", v, err)
	}
	if v, err := ch.Registry().Get(currentTime); err != nil || v != int64(1_700_000_000) {
		t.Errorf("Current Time = %v, %v; want 1700000000", v, err)
	}
}

func TestHostSamplerMemoryFailure(t *testing.T) {
	h := newHostSampler(discardLogger())
	h.memory = func(context.Context) (*mem.VirtualMemoryStat, error) {
		return nil, errors.New("no /proc")
	}

	values := h.sample(context.Background())
	if len(values) != 1 || values[0].Path != currentTime {
		t.Errorf("values = %+v, want only Current Time", values)
	}
}
