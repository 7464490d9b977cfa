// Package sharecrawler implements the generic slow-walk scheduler over the
// fixed 1024-prefix partition of the storage key space. AccountingCrawler
// (pkg/accounting) specializes it with reconciliation and expiration logic.
package sharecrawler

const base32Alphabet = "abcdefghijklmnopqrstuvwxyz234567"

// Prefixes returns the 1024 two-character base-32 prefixes in stable
// lexicographic order, the fixed partition the crawler walks once per cycle.
func Prefixes() []string {
	prefixes := make([]string, 0, len(base32Alphabet)*len(base32Alphabet))
	for _, a := range base32Alphabet {
		for _, b := range base32Alphabet {
			prefixes = append(prefixes, string(a)+string(b))
		}
	}
	return prefixes
}
