package domain

// Zero overwrites the given byte slice with zeros. Use it to scrub key
// material and decrypted session secrets once they are no longer needed.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
