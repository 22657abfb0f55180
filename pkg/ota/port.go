package ota

// Port is the board support consumed by the updater.
type Port interface {
	// ShouldEnterUpdate is sampled once per boot pass.
	ShouldEnterUpdate() bool
	// DeinitPeripherals is called once right before the handoff.
	DeinitPeripherals()
}

// CPU is the core control needed by the handoff.
type CPU interface {
	DisableInterrupts()
	// StopSysTick halts and clears the system tick timer.
	StopSysTick()
	// RelocateVectors points the vector table base to addr.
	RelocateVectors(addr uint32)
	// Call loads sp and branches to entry. It does not return on hardware.
	Call(sp, entry uint32)
}

// StaticPort is a Port with a fixed answer.
type StaticPort struct {
	EnterUpdate bool
	OnDeinit    func()
}

// ShouldEnterUpdate implements Port.
func (p *StaticPort) ShouldEnterUpdate() bool {
	return p.EnterUpdate
}

// DeinitPeripherals implements Port.
func (p *StaticPort) DeinitPeripherals() {
	if p.OnDeinit != nil {
		p.OnDeinit()
	}
}
