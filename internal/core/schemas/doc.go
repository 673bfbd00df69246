// Package schemas registers the beneficiary and participant import kinds
// with the core registry. Import it for its side effects.
package schemas
