package engine

// Agent is one participant in the simulation. Wealth starts at 1 and is
// never negative: an agent with nothing to give initiates no transfer,
// though it may still receive one.
type Agent struct {
	ID     int
	Wealth int

	// Grid position; meaningful only when the engine runs in spatial mode.
	X int
	Y int

	// IdleSteps counts consecutive activations without an outgoing
	// transfer (spatial mode). Reset on every successful transfer.
	IdleSteps int
}
