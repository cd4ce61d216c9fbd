//go:build arm64

package platform

// CycleCounterFrequency reads the architectural CNTFRQ_EL0 register, the
// frequency of the free-running cycle counter the emulator's producer-side
// timestamps are expressed in.
func CycleCounterFrequency() uint64 {
	return cntfrqEL0()
}

// StoreMemoryBarrier issues a store-side memory barrier visible to the
// inner-shareable domain (dmb ishst), making producer writes observable
// before a sampling pass walks the shared-memory region.
func StoreMemoryBarrier() {
	dmbIshst()
}
