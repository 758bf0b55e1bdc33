package sim

// VTime is a point or a span in simulated time. The unit is whatever the model
// uses consistently; the squid model works in milliseconds.
type VTime float64
