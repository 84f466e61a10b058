// Package pipeline moves detector output through dedup, clock mapping and
// beat prediction to a sink.
//
// A producer goroutine reads batches from a detector.Source, drops
// re-detections, maps detector time onto the wall clock and pushes the
// surviving events into a bounded drop-oldest EventQueue. A consumer
// goroutine pops events, feeds the predictor and hands the enriched
// record to the sink. The producer never blocks on the consumer; the
// consumer's only blocking point is a bounded Pop.
package pipeline
