// Package usage provides usage meters for usage-based pricings.
//
// A meter accumulates a current reading between renewals. When a renewal for
// a usage pricing is paid, the billed amount moves from current to processed
// so that the next cycle starts from whatever was recorded since.
//
// MemoryMeter is for tests and single-process deployments. RedisMeter keeps
// one hash per organization and meter and moves usage with a Lua script so
// that concurrent Record calls are never lost.
package usage
