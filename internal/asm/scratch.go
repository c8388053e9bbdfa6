package asm

import "fmt"

// ScratchRegisters is the set of registers an assembler may hand out as temporaries.
type ScratchRegisters struct {
	available []Register
}

// NewScratchRegisters returns the set initially holding regs, in acquisition order.
func NewScratchRegisters(regs ...Register) *ScratchRegisters {
	return &ScratchRegisters{available: append([]Register(nil), regs...)}
}

// Available returns the registers that can currently be acquired.
func (s *ScratchRegisters) Available() []Register {
	return s.available
}

// ScratchRegisterScope temporarily changes a ScratchRegisters and restores it on Release.
//
//	temps := a.Scratch().Open()
//	defer temps.Release()
//	tmp := temps.Acquire()
type ScratchRegisterScope struct {
	regs  *ScratchRegisters
	saved []Register
}

// Open starts a scope on s.
func (s *ScratchRegisters) Open() *ScratchRegisterScope {
	return &ScratchRegisterScope{regs: s, saved: append([]Register(nil), s.available...)}
}

// Acquire removes and returns the first available scratch register.
func (sc *ScratchRegisterScope) Acquire() Register {
	if len(sc.regs.available) == 0 {
		panic("BUG: no scratch register available")
	}
	r := sc.regs.available[0]
	sc.regs.available = sc.regs.available[1:]
	return r
}

// IsAvailable returns true if r can be acquired.
func (sc *ScratchRegisterScope) IsAvailable(r Register) bool {
	for _, a := range sc.regs.available {
		if a == r {
			return true
		}
	}
	return false
}

// Exclude makes the given registers unavailable for the rest of the scope.
func (sc *ScratchRegisterScope) Exclude(regs ...Register) {
	for _, r := range regs {
		for i, a := range sc.regs.available {
			if a == r {
				sc.regs.available = append(sc.regs.available[:i:i], sc.regs.available[i+1:]...)
				break
			}
		}
	}
}

// Include makes the given registers available for the rest of the scope.
func (sc *ScratchRegisterScope) Include(regs ...Register) {
	for _, r := range regs {
		if !sc.IsAvailable(r) {
			sc.regs.available = append(sc.regs.available, r)
		}
	}
}

// Release restores the set as it was when the scope was opened.
func (sc *ScratchRegisterScope) Release() {
	if sc.regs == nil {
		panic(fmt.Sprintf("BUG: scratch register scope released twice (saved %v)", sc.saved))
	}
	sc.regs.available = sc.saved
	sc.regs = nil
}
