package platform

import "runtime"

// HardwareConcurrency returns the number of logical cores available to this
// process, the same source the teacher's report package uses for capacity
// calculations (runtime.NumCPU()).
func HardwareConcurrency() int {
	n := runtime.NumCPU()
	if n < 1 {
		return 1
	}
	return n
}
