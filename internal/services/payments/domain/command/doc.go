// Package command defines the canonical command envelope and contract used across
// the write path.
//
// Commands express intent from the inbound submit API and from the payment saga.
// They are normalized and validated here before any aggregate decider sees them,
// so deciders can evaluate business rules against well-formed input only.
package command
