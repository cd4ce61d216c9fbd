//go:build arm64

package platform

// cntfrqEL0 and dmbIshst are implemented in asm_arm64.s; Go cannot express
// system-register reads or barrier instructions without assembly.
func cntfrqEL0() uint64

func dmbIshst()
