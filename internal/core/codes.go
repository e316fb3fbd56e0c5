package core

import (
	"encoding/base32"
	"strings"

	"github.com/google/uuid"
)

// CodeGenerator produces stable external codes for new materials. The
// code is assigned exactly once at creation and never regenerated; its
// format is opaque to callers but must stay collision-resistant and safe
// to encode in a scannable label.
type CodeGenerator interface {
	NewCode() string
}

// codeEncoding is unpadded base32: upper-case alphanumerics only, which
// survives QR and barcode encoders without escaping.
var codeEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// uuidCodes derives codes from random UUIDs: "M-" plus 26 base32
// characters of the 128-bit value.
type uuidCodes struct{}

func (uuidCodes) NewCode() string {
	id := uuid.New()
	return "M-" + strings.ToUpper(codeEncoding.EncodeToString(id[:]))
}

// NewCodeGenerator returns the default UUID-backed generator.
func NewCodeGenerator() CodeGenerator {
	return uuidCodes{}
}

// NewID returns a fresh material or history entry id.
func NewID() string {
	return uuid.NewString()
}
