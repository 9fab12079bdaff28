//go:build tools

package tools

// mockery v3 runs as an installed binary, so it needs no blank import
// here. Run mockery from the module root; .mockery.yaml lists the
// interfaces whose mocks live in pkg/transport/mocks.
