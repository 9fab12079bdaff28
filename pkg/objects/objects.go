// Package objects builds the client's built-in LWM2M objects.
package objects

import (
	"errors"
	"fmt"
	"time"

	"github.com/iotdm/iotdm-go/pkg/catalog"
	"github.com/iotdm/iotdm-go/pkg/model"
)

// ErrAlreadyInitialized is returned when the built-in objects already exist.
var ErrAlreadyInitialized = errors.New("default objects already initialized")

// Server (object 1) resource IDs.
const (
	ServerShortID                   uint16 = 0
	ServerLifetime                  uint16 = 1
	ServerDefaultMinPeriod          uint16 = 2
	ServerDefaultMaxPeriod          uint16 = 3
	ServerDisableTimeout            uint16 = 5
	ServerNotificationStoring       uint16 = 6
	ServerBinding                   uint16 = 7
	ServerRegistrationUpdateTrigger uint16 = 8
)

// Device (object 3) resource IDs.
const (
	DeviceManufacturer    uint16 = 0
	DeviceModelNumber     uint16 = 1
	DeviceSerialNumber    uint16 = 2
	DeviceFirmwareVersion uint16 = 3
	DeviceReboot          uint16 = 4
	DeviceFactoryReset    uint16 = 5
	DeviceBatteryLevel    uint16 = 9
	DeviceMemoryFree      uint16 = 10
	DeviceErrorCode       uint16 = 11
	DeviceCurrentTime     uint16 = 13
	DeviceUTCOffset       uint16 = 14
	DeviceTimezone        uint16 = 15
)

// Connectivity Monitoring (object 4) resource IDs.
const (
	ConnNetworkBearer       uint16 = 0
	ConnRadioSignalStrength uint16 = 2
	ConnLinkQuality         uint16 = 3
	ConnIPAddresses         uint16 = 4
)

// Firmware Update (object 5) resource IDs.
const (
	FirmwarePackage      uint16 = 0
	FirmwarePackageURI   uint16 = 1
	FirmwareUpdate       uint16 = 2
	FirmwareState        uint16 = 3
	FirmwareUpdateResult uint16 = 5
)

// Firmware Update states.
const (
	FirmwareStateIdle        int64 = 0
	FirmwareStateDownloading int64 = 1
	FirmwareStateDownloaded  int64 = 2
	FirmwareStateUpdating    int64 = 3
)

// Handlers are the application actions bound to executable resources.
// Nil handlers leave the resource executable with no effect.
type Handlers struct {
	Reboot             model.ExecuteHandler
	FactoryReset       model.ExecuteHandler
	RegistrationUpdate model.ExecuteHandler
	FirmwareUpdate     model.ExecuteHandler
}

// Options override catalog defaults. Zero values keep the catalog default.
type Options struct {
	Manufacturer    string
	ModelNumber     string
	SerialNumber    string
	FirmwareVersion string

	ShortServerID    uint16
	Lifetime         time.Duration
	DefaultMinPeriod time.Duration
	DefaultMaxPeriod time.Duration

	Handlers Handlers
}

// CreateDefaultObjects creates instance 0 of every catalog object in reg.
// It fails with ErrAlreadyInitialized, leaving reg untouched, when any of
// the objects is already present.
func CreateDefaultObjects(reg *model.Registry, cat *catalog.Catalog, opts Options) error {
	if cat == nil {
		var err error
		if cat, err = catalog.Default(); err != nil {
			return err
		}
	}

	defs, err := cat.Definitions()
	if err != nil {
		return err
	}
	for _, d := range defs {
		if reg.Exists(model.ObjectPath(d.ID)) {
			return fmt.Errorf("%w: object %d exists", ErrAlreadyInitialized, d.ID)
		}
	}

	var created []uint16
	rollback := func() {
		for _, id := range created {
			_ = reg.RemoveObject(id)
		}
	}

	for _, d := range defs {
		if err := reg.CreateObject(d); err != nil {
			rollback()
			return err
		}
		created = append(created, d.ID)
		if err := reg.CreateInstance(d.ID, 0); err != nil {
			rollback()
			return err
		}
	}

	if err := applyOptions(reg, opts); err != nil {
		rollback()
		return err
	}
	return nil
}

func applyOptions(reg *model.Registry, opts Options) error {
	type override struct {
		obj, res uint16
		value    any
		set      bool
	}

	overrides := []override{
		{catalog.ObjectDevice, DeviceManufacturer, opts.Manufacturer, opts.Manufacturer != ""},
		{catalog.ObjectDevice, DeviceModelNumber, opts.ModelNumber, opts.ModelNumber != ""},
		{catalog.ObjectDevice, DeviceSerialNumber, opts.SerialNumber, opts.SerialNumber != ""},
		{catalog.ObjectDevice, DeviceFirmwareVersion, opts.FirmwareVersion, opts.FirmwareVersion != ""},
		{catalog.ObjectServer, ServerShortID, int64(opts.ShortServerID), opts.ShortServerID != 0},
		{catalog.ObjectServer, ServerLifetime, seconds(opts.Lifetime), opts.Lifetime > 0},
		{catalog.ObjectServer, ServerDefaultMinPeriod, seconds(opts.DefaultMinPeriod), opts.DefaultMinPeriod > 0},
		{catalog.ObjectServer, ServerDefaultMaxPeriod, seconds(opts.DefaultMaxPeriod), opts.DefaultMaxPeriod > 0},
	}

	for _, o := range overrides {
		p := model.ResourcePath(o.obj, 0, o.res)
		if !o.set || !reg.Exists(p) {
			continue
		}
		if err := reg.Set(p, o.value); err != nil {
			return err
		}
	}

	handlers := []struct {
		obj, res uint16
		fn       model.ExecuteHandler
	}{
		{catalog.ObjectDevice, DeviceReboot, opts.Handlers.Reboot},
		{catalog.ObjectDevice, DeviceFactoryReset, opts.Handlers.FactoryReset},
		{catalog.ObjectServer, ServerRegistrationUpdateTrigger, opts.Handlers.RegistrationUpdate},
		{catalog.ObjectFirmwareUpdate, FirmwareUpdate, opts.Handlers.FirmwareUpdate},
	}
	for _, h := range handlers {
		p := model.ResourcePath(h.obj, 0, h.res)
		if h.fn == nil || !reg.Exists(p) {
			continue
		}
		if err := reg.SetExecuteHandler(p, h.fn); err != nil {
			return err
		}
	}
	return nil
}

func seconds(d time.Duration) int64 {
	return int64(d / time.Second)
}

// ServerPeriods returns the default observation periods held by the
// Server object. ok is false when the object or resources are missing.
func ServerPeriods(reg *model.Registry) (pmin, pmax time.Duration, ok bool) {
	minV, err := reg.Get(model.ResourcePath(catalog.ObjectServer, 0, ServerDefaultMinPeriod))
	if err != nil {
		return 0, 0, false
	}
	maxV, err := reg.Get(model.ResourcePath(catalog.ObjectServer, 0, ServerDefaultMaxPeriod))
	if err != nil {
		return 0, 0, false
	}
	minS, ok1 := minV.(int64)
	maxS, ok2 := maxV.(int64)
	if !ok1 || !ok2 {
		return 0, 0, false
	}
	return time.Duration(minS) * time.Second, time.Duration(maxS) * time.Second, true
}

// ServerLifetimeValue returns the registration lifetime held by the
// Server object.
func ServerLifetimeValue(reg *model.Registry) (time.Duration, bool) {
	v, err := reg.Get(model.ResourcePath(catalog.ObjectServer, 0, ServerLifetime))
	if err != nil {
		return 0, false
	}
	s, ok := v.(int64)
	if !ok || s <= 0 {
		return 0, false
	}
	return time.Duration(s) * time.Second, true
}
