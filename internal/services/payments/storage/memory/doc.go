// Package memory provides an in-process implementation of every payments
// storage contract. It backs tests and the simulation command.
package memory
