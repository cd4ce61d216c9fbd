//go:build !arm64

package platform

// CycleCounterFrequency is stubbed to 1 on non-arm64 platforms. The
// emulator's cycle-counter timestamps are only meaningful on the arm64 host
// FEX actually runs on; numeric load output elsewhere is for development
// use only.
func CycleCounterFrequency() uint64 {
	return 1
}

// StoreMemoryBarrier is a no-op on non-arm64 platforms: x86 has strong
// memory ordering for stores, so no explicit barrier is required there.
func StoreMemoryBarrier() {}
