package aware

// Capabilities is the hardware capability snapshot reported by firmware
// after enablement. It is replaced wholesale when a fresher snapshot
// arrives and is never partially updated.
type Capabilities struct {
	MaxConcurrentClusters   int
	MaxPublishes            int
	MaxSubscribes           int
	MaxServiceNameLen       int
	MaxMatchFilterLen       int
	MaxTotalMatchFilterLen  int
	MaxServiceSpecificLen   int
	MaxVendorSpecificLen    int
	MaxQueuedTransmitFrames int
}
