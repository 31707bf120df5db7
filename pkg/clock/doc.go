// Package clock provides the time sources used by the scheduler.
//
// The scheduler works on a wrapping 32-bit millisecond counter, the same shape
// a microcontroller's millis() has. Deadlines are compared with signed
// differences, so a single wrap of the counter is harmless.
package clock
