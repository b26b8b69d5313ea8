// Package authorization owns the hold placed on a customer's funds.
//
// An authorization is decided once: risk-approved requests become AUTHORIZED,
// risk-declined ones DECLINED. Only an AUTHORIZED hold can be voided, which is
// the compensation the payment saga issues when a later step fails.
package authorization
