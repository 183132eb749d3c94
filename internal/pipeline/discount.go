package pipeline

// BundleDiscountBps returns the registration fee discount, in basis
// points, for a batch of n files: none for a single file, 10% for small
// bundles, 20% from six files up.
func BundleDiscountBps(n int) int {
	switch {
	case n <= 1:
		return 0
	case n <= 5:
		return 1000
	default:
		return 2000
	}
}
