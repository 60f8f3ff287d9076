package credentials

import (
	"crypto/rand"
	"testing"

	"github.com/pglane/pglane/lib/auth"
)

func TestEncodeMD5(t *testing.T) {
	// vectors generated against a real postgres md5 handshake
	cases := []struct {
		Username string
		Password string
		Salt     [4]byte
		Encoded  string
	}{
		{
			Username: "foo",
			Password: "bar",
			Salt:     [...]byte{49, 216, 227, 148},
			Encoded:  "md5042e94d42b7d6d5240214a5d2787d66c",
		},
		{
			Username: "postgres",
			Password: "password",
			Salt:     [...]byte{64, 94, 241, 253},
			Encoded:  "md5c9b2e85e17689ce9c02b6c45913c5e4f",
		},
	}

	for _, c := range cases {
		creds := Cleartext{Username: c.Username, Password: c.Password}
		if encoded := creds.EncodeMD5(c.Salt); encoded != c.Encoded {
			t.Error("expected", c.Encoded, "but got", encoded)
		}
		if err := creds.VerifyMD5(c.Salt, c.Encoded); err != nil {
			t.Error(err)
		}
	}
}

func TestFromString(t *testing.T) {
	pw := FromString("bob", "jNKuKKlBDO48qbLiVw7IuoaamZ1SmHAUdQ9PKH7qRzsyJVF0BNPSFMbHTQwxe0HJ")
	hashed := FromString("bob", "md5e20510fd38e1c0fd99db13da5c29bd95")

	client, ok := pw.(auth.MD5Client)
	if !ok {
		t.Fatal("expected plaintext credentials to encode md5")
	}
	server, ok := hashed.(auth.MD5Server)
	if !ok {
		t.Fatal("expected md5 credentials to verify md5")
	}

	var salt [4]byte
	if _, err := rand.Read(salt[:]); err != nil {
		t.Fatal(err)
	}

	if err := server.VerifyMD5(salt, client.EncodeMD5(salt)); err != nil {
		t.Error(err)
	}

	if FromString("bob", "") != nil {
		t.Error("expected empty password to yield nil credentials")
	}
}
