// Package customer owns customer identity and stored payment methods.
//
// A customer registers once with a well-formed email, reserved beforehand
// through the emailclaim aggregate, and may then add card payment methods.
// Cards are stored only as a fingerprint plus the last four digits; a
// fingerprint already on file is rejected.
package customer
