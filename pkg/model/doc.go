// Package model implements the LWM2M resource registry.
//
// # Hierarchy
//
// The registry is a 3-level tree:
//
//	Object > Instance > Resource
//
// An Object is a protocol-defined type (Device, Server, Firmware Update).
// Objects hold Instances, and every Instance holds the Resources declared
// by the Object's definition, optionally extended at runtime.
//
//	Registry
//	├── Object 1 (LwM2M Server)
//	│   └── Instance 0
//	│       ├── 0 Short Server ID
//	│       ├── 1 Lifetime
//	│       └── ...
//	├── Object 3 (Device)
//	│   └── Instance 0
//	│       ├── 0 Manufacturer
//	│       ├── 4 Reboot (E)
//	│       └── ...
//	└── ...
//
// # Addressing
//
// Every node is addressed by a Path rendered as a slash-separated
// numeric string:
//
//	/3        object
//	/3/0      instance
//	/3/0/9    resource
//
// # Access Control
//
// Resources carry an access mode:
//   - R: readable by the server
//   - W: writable by the server
//   - E: executable by the server
//
// Access is enforced only for remote operations (Read, Write, Execute).
// Local application code updates values through Set, which ignores the
// access mode but still validates type and bounds.
//
// # Removal
//
// Listeners registered with OnRemove are called synchronously when an
// Object, Instance or Resource is removed, before the removing call
// returns.
package model
