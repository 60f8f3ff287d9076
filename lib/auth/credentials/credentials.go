package credentials

import (
	"encoding/hex"
	"strings"

	"github.com/pglane/pglane/lib/auth"
)

// FromString builds credentials from an auth file value. Values with the
// "md5" prefix are treated as pre-hashed, everything else as a plaintext
// password.
func FromString(user, password string) auth.Credentials {
	if password == "" {
		return nil
	}
	if strings.HasPrefix(password, "md5") {
		hash, err := hex.DecodeString(strings.TrimPrefix(password, "md5"))
		if err == nil {
			return MD5{
				Username: user,
				Hash:     hash,
			}
		}
		// not valid hex, treat the whole thing as a password
	}
	return Cleartext{
		Username: user,
		Password: password,
	}
}
