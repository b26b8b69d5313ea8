// Package settlement owns the payout of a processed payment to its merchant.
//
// The fee is computed from the configured policy before the rail is asked for
// a verdict, so a settled event always carries the exact fee and net amount the
// merchant receives.
package settlement
