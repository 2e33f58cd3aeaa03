package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// NormalizeText lowercases and collapses runs of whitespace so that
// insignificant formatting changes do not produce new chunk identities.
func NormalizeText(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// ChunkHash derives the stable chunk id from its source coordinates and
// normalized text. Same input always yields the same id, which is what makes
// re-ingestion idempotent.
func ChunkHash(sourceFile, sourceLocation, text string) string {
	h := sha256.New()
	h.Write([]byte(sourceFile))
	h.Write([]byte{'|'})
	h.Write([]byte(sourceLocation))
	h.Write([]byte{'|'})
	h.Write([]byte(NormalizeText(text)))
	return hex.EncodeToString(h.Sum(nil))
}
