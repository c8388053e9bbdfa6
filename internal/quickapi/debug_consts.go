package quickapi

// Debug switches of the stub compiler and the optimizing passes live together so
// that turning on tracing is a one-line change.

// Logging to stdout, off unless debugging.

const (
	GVNLoggingEnabled = false
	JNILoggingEnabled = false
	CFILoggingEnabled = false
)

// Dumps of intermediate and final output, off unless debugging.

const (
	PrintGVNGraph              = false
	PrintGVNOptimizedGraph     = false
	PrintJNIStubListing        = false
	PrintJNIStubMachineCodeHex = false
)

// Internal consistency checks, panicking with "BUG:" on failure. They stay on until
// the randomized ValueSet and CFI tests have run clean for a while.

const (
	GVNValidationEnabled = true
	CFIValidationEnabled = true
)
