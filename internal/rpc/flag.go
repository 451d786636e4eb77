package rpc

import "sync/atomic"

// Flag is the cooperative cancellation marker shared between the receiver
// loop and the running command handler. The receiver sets it on a cancel
// signal or at end of input and clears it before each new command; handlers
// poll it at safe points. It never interrupts execution by force.
type Flag struct {
	v atomic.Bool
}

func NewFlag() *Flag {
	return &Flag{}
}

func (f *Flag) Set() {
	f.v.Store(true)
}

func (f *Flag) Clear() {
	f.v.Store(false)
}

func (f *Flag) IsSet() bool {
	return f.v.Load()
}
