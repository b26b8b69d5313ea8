// Package processing owns the capture of an authorized amount at the processor.
//
// The processor verdict comes from an injected outcome provider. A decline or
// a provider fault is recorded as payment.processing_failed; neither is a
// command rejection.
package processing
