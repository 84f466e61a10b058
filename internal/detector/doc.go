// Package detector adapts external beat detectors to the pipeline.
//
// Detectors speak a line protocol, one event per line:
//
//	<stream_time>,<flag>          e.g. 12.48,1
//	{"t":<stream_time>,"type":<flag>}
//
// where flag 1 is a beat and 2 a downbeat. A blank line or a line holding
// only "---" ends one inference cycle; the events between two boundaries
// are delivered together as one batch and may repeat events from earlier
// cycles. Lines starting with '#' are comments.
package detector
