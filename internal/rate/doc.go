// Package rate provides the Redis-backed fixed-window refresh throttle that
// sits in front of the memory-hard verification path.
package rate
