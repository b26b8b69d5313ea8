// Package emailclaim reserves customer emails.
//
// Each normalized email owns one stream. A reservation is the first append to
// that stream, so two customers racing for an email meet as a version conflict
// in the event store and the loser is rejected once it reloads.
package emailclaim
