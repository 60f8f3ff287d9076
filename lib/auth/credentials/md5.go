package credentials

import (
	"crypto/md5" //nolint:gosec
	"encoding/hex"
	"strings"

	"github.com/pglane/pglane/lib/auth"
	"github.com/pglane/pglane/lib/util/slices"
)

// MD5 holds a pre-hashed md5 password, the format pg_authid stores. It can
// verify md5 auth but cannot take part in cleartext or SCRAM.
type MD5 struct {
	Username string
	Hash     []byte
}

func (MD5) Credentials() {}

func (T MD5) EncodeMD5(salt [4]byte) string {
	hexEncoded := make([]byte, hex.EncodedLen(len(T.Hash)))
	hex.Encode(hexEncoded, T.Hash)

	hash := md5.New() //nolint:gosec
	hash.Write(hexEncoded)
	hash.Write(salt[:])
	sum := hash.Sum(nil)
	hexEncoded = slices.Resize(hexEncoded, hex.EncodedLen(len(sum)))
	hex.Encode(hexEncoded, sum)

	var out strings.Builder
	out.Grow(3 + len(hexEncoded))
	out.WriteString("md5")
	out.Write(hexEncoded)
	return out.String()
}

func (T MD5) VerifyMD5(salt [4]byte, value string) error {
	if T.EncodeMD5(salt) != value {
		return auth.ErrFailed
	}
	return nil
}

var _ auth.Credentials = MD5{}
var _ auth.MD5Client = MD5{}
var _ auth.MD5Server = MD5{}
