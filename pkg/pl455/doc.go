// Package pl455 talks to a daisy chain of PL455 battery monitor chips
// over a UART.
//
// The first chip in the chain is wired to the host UART, the rest are
// reached through the chip's own high/low side links. Every command is a
// frame starting with an initialization byte and ending with a CRC16,
// and every response starts with a byte encoding the data length.
//
// Exchanges are driven by non-blocking state machines (Discovery, Chain,
// Scheduler) advanced from a single control loop.
package pl455
