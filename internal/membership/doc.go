// Package membership applies node join, leave, failure and budget update
// events to a ring. Detecting those events is left to the caller.
package membership
