package flow

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

// hashBufferSize bounds the memory used while hashing, independent of file size.
const hashBufferSize = 32 * 1024

// HashReader streams r through SHA-256 and returns the lowercase hex digest.
func HashReader(r io.Reader) (string, error) {
	h := sha256.New()
	buf := make([]byte, hashBufferSize)
	if _, err := io.CopyBuffer(h, r, buf); err != nil {
		return "", fmt.Errorf("%w: %v", ErrHashUnavailable, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashFile opens path through fsmgr and hashes its content.
func HashFile(fsmgr FilesystemManager, path string) (string, error) {
	f, err := fsmgr.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: opening %s: %v", ErrHashUnavailable, path, err)
	}
	defer f.Close()
	return HashReader(f)
}
