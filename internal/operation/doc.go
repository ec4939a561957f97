// Package operation parses operation expressions and resolves their block
// references against the Management Graph.
//
// Grammar:
//
//	expr     = output "=" ref "(" ref { "," ref } ")"
//	ref      = hashcode | name
//	hashcode = 64 lowercase hex characters
//	name     = (letter | "_") { letter | digit | "_" | "." | "-" }
//
// Whitespace is allowed between tokens. A ref is classified as a hash code
// purely by its shape; anything else must be a valid name. Names are NFC
// normalized.
package operation
