package xid

import "github.com/google/uuid"

// New returns a prefixed identifier such as "bkg_3f1c...".
func New(prefix string) string {
	if prefix == "" {
		return uuid.NewString()
	}
	return prefix + "_" + uuid.NewString()
}
