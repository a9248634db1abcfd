// Package hash provides the 64-bit position functions used to place virtual
// nodes and entities on the ring. Every algorithm truncates a cryptographic
// digest to its first eight bytes, read big-endian.
package hash
