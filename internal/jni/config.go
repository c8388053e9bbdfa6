package jni

// Config controls the runtime features the generated stubs must cooperate with.
// The zero value is not used directly; start from NewConfig.
//
// Every With method returns a modified copy, so a Config can be shared freely.
type Config struct {
	readBarrier        bool
	heapPoisoning      bool
	runtimeDebugChecks bool
}

// NewConfig returns the default configuration: Baker read barriers on, heap
// poisoning and runtime debug checks off.
func NewConfig() *Config {
	return &Config{readBarrier: true}
}

func (c *Config) clone() *Config {
	ret := *c
	return &ret
}

// WithReadBarrier toggles support for a concurrent copying collector using read barriers.
// With it on, the arm and arm64 stubs keep the marking register up to date.
func (c *Config) WithReadBarrier(enabled bool) *Config {
	ret := c.clone()
	ret.readBarrier = enabled
	return ret
}

// WithHeapPoisoning toggles the poisoning of heap references, which have to be unpoisoned
// after every load from a heap object.
func (c *Config) WithHeapPoisoning(enabled bool) *Config {
	ret := c.clone()
	ret.heapPoisoning = enabled
	return ret
}

// WithRuntimeDebugChecks toggles checks emitted into the generated code which trap when
// an assumption of the compiler does not hold at run time.
func (c *Config) WithRuntimeDebugChecks(enabled bool) *Config {
	ret := c.clone()
	ret.runtimeDebugChecks = enabled
	return ret
}

// ReadBarrier returns the value set by WithReadBarrier.
func (c *Config) ReadBarrier() bool { return c.readBarrier }

// HeapPoisoning returns the value set by WithHeapPoisoning.
func (c *Config) HeapPoisoning() bool { return c.heapPoisoning }

// RuntimeDebugChecks returns the value set by WithRuntimeDebugChecks.
func (c *Config) RuntimeDebugChecks() bool { return c.runtimeDebugChecks }
