package device

import (
	"github.com/golang/glog"
)

// SimCPU stands in for the core of the simulated device. The handoff ends
// the process, as the bootloader ends on hardware.
type SimCPU struct {
	// Exit is called with the exit code in place of the branch.
	Exit func(code int)

	vectors uint32
	masked  bool
}

// DisableInterrupts implements ota.CPU.
func (c *SimCPU) DisableInterrupts() {
	c.masked = true
}

// StopSysTick implements ota.CPU.
func (c *SimCPU) StopSysTick() {
	glog.V(2).Info("cpu: systick stopped")
}

// RelocateVectors implements ota.CPU.
func (c *SimCPU) RelocateVectors(addr uint32) {
	c.vectors = addr
}

// Call implements ota.CPU.
func (c *SimCPU) Call(sp, entry uint32) {
	glog.Infof("cpu: vtor=0x%08X sp=0x%08X pc=0x%08X irq-masked=%v", c.vectors, sp, entry, c.masked)
	glog.Flush()
	if c.Exit != nil {
		c.Exit(0)
	}
}
