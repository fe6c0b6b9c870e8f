// Package qtile implements a discretized Q-transform.
//
// A Geometry lays out one Q plane: logarithmic frequency bands, each split
// into a power-of-two number of tiles over the chunk time range, so that the
// energy mismatch between adjacent tiles stays below a bound. A Plane adds
// a bisquare window per band and projects whitened frequency-domain data
// onto its tiles with one inverse FFT per band. A Tiling owns one Plane per
// Q value of ComputeQs, a chunk Sequencer, and full maps that combine the
// planes on a common grid.
//
// Times are relative to the chunk centre inside a plane and absolute (chunk
// centre added) in triggers and tile segments.
package qtile
