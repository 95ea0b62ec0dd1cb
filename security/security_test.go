package security

import (
	"bytes"
	"testing"

	"github.com/scribd/keynote/object"
)

func TestRC4Symmetry(t *testing.T) {
	plain := []byte("stream payload with some binary \x00\x01\x02 bytes")
	for keyLen := 5; keyLen <= 16; keyLen++ {
		key := make([]byte, keyLen)
		for i := range key {
			key[i] = byte(i*7 + keyLen)
		}
		enc := rc4Crypt(key, plain)
		if bytes.Equal(enc, plain) {
			t.Fatalf("keyLen %d: ciphertext equals plaintext", keyLen)
		}
		dec := rc4Crypt(key, enc)
		if !bytes.Equal(dec, plain) {
			t.Fatalf("keyLen %d: round trip mismatch", keyLen)
		}
	}
}

func TestPadPassword(t *testing.T) {
	if got := padPassword(nil); !bytes.Equal(got, passwordPadding) {
		t.Fatal("empty password must pad to the full constant")
	}
	got := padPassword([]byte("secret"))
	if len(got) != 32 {
		t.Fatalf("padded length %d", len(got))
	}
	if !bytes.Equal(got[:6], []byte("secret")) || !bytes.Equal(got[6:], passwordPadding[:26]) {
		t.Fatalf("bad padding: %x", got)
	}
	long := bytes.Repeat([]byte("x"), 40)
	if got := padPassword(long); !bytes.Equal(got, long[:32]) {
		t.Fatal("long password must truncate to 32 bytes")
	}
}

// encryptDict builds a self-consistent /Encrypt dictionary: O is arbitrary,
// U is computed from the key the parameters derive.
func encryptDict(t *testing.T, revision int, keyLen int, password []byte, fileID []byte) *object.Dict {
	t.Helper()
	o := bytes.Repeat([]byte{0xAB}, 32)
	p := int32(-44)
	key := FileKey(password, o, p, fileID, keyLen, revision, true)
	u := ComputeUserValue(key, fileID, revision)

	d := object.NewDict()
	d.Set("Filter", object.MakeName("Standard"))
	d.Set("V", object.Integer(2))
	d.Set("R", object.Integer(int64(revision)))
	d.Set("Length", object.Integer(int64(keyLen*8)))
	d.Set("P", object.Integer(int64(p)))
	d.Set("O", object.String{Bytes: o})
	d.Set("U", object.String{Bytes: u})
	return d
}

func TestAuthenticateRevision2(t *testing.T) {
	fileID := []byte("file-id-bytes")
	d := encryptDict(t, 2, 5, nil, fileID)
	h, err := NewStandardHandler(d, fileID, nil)
	if err != nil {
		t.Fatalf("empty user password rejected: %v", err)
	}
	if h.revision != 2 || len(h.key) != 5 {
		t.Fatalf("revision=%d keyLen=%d", h.revision, len(h.key))
	}
	if _, err := NewStandardHandler(d, fileID, []byte("wrong")); err != ErrInvalidPassword {
		t.Fatalf("expected ErrInvalidPassword, got %v", err)
	}
}

func TestAuthenticateRevision3(t *testing.T) {
	fileID := []byte{0x01, 0x02, 0x03, 0x04}
	d := encryptDict(t, 3, 16, []byte("hunter2"), fileID)
	h, err := NewStandardHandler(d, fileID, []byte("hunter2"))
	if err != nil {
		t.Fatalf("correct password rejected: %v", err)
	}
	if len(h.key) != 16 {
		t.Fatalf("keyLen=%d", len(h.key))
	}
	if _, err := NewStandardHandler(d, fileID, nil); err != ErrInvalidPassword {
		t.Fatalf("expected ErrInvalidPassword, got %v", err)
	}
}

func TestRevision3KeyDerivationIterates(t *testing.T) {
	o := bytes.Repeat([]byte{0x11}, 32)
	id := []byte("id")
	k2 := FileKey(nil, o, -1, id, 16, 2, true)
	k3 := FileKey(nil, o, -1, id, 16, 3, true)
	if bytes.Equal(k2, k3) {
		t.Fatal("revision 3 key must differ after the 50 MD5 rounds")
	}
}

func TestFileKeyEncryptMetadataFalse(t *testing.T) {
	o := bytes.Repeat([]byte{0x22}, 32)
	id := []byte("id")
	// The extra 0xFF bytes apply whenever /EncryptMetadata is false,
	// regardless of revision.
	for _, revision := range []int{2, 3} {
		on := FileKey(nil, o, -1, id, 16, revision, true)
		off := FileKey(nil, o, -1, id, 16, revision, false)
		if bytes.Equal(on, off) {
			t.Fatalf("revision %d: key unchanged by /EncryptMetadata false", revision)
		}
	}
}

func TestCryptRoundTrip(t *testing.T) {
	fileID := []byte("roundtrip")
	d := encryptDict(t, 3, 16, nil, fileID)
	h, err := NewStandardHandler(d, fileID, nil)
	if err != nil {
		t.Fatal(err)
	}
	plain := []byte("q 100 0 0 100 10 10 cm /Im1 Do Q")
	ref := object.Ref{Num: 7, Gen: 0}
	enc := h.Crypt(ref, plain)
	if bytes.Equal(enc, plain) {
		t.Fatal("ciphertext equals plaintext")
	}
	if got := h.Crypt(ref, enc); !bytes.Equal(got, plain) {
		t.Fatalf("round trip mismatch: %q", got)
	}
	// A different object number derives a different key.
	other := h.Crypt(object.Ref{Num: 8, Gen: 0}, plain)
	if bytes.Equal(other, enc) {
		t.Fatal("object keys must differ per object number")
	}
}

func TestRejectUnsupportedHandler(t *testing.T) {
	d := object.NewDict()
	d.Set("Filter", object.MakeName("FancyCrypt"))
	if _, err := NewStandardHandler(d, nil, nil); err == nil {
		t.Fatal("non-standard filter accepted")
	}

	d = encryptDict(t, 2, 5, nil, nil)
	d.Set("R", object.Integer(4))
	if _, err := NewStandardHandler(d, nil, nil); err == nil {
		t.Fatal("revision 4 accepted")
	}

	d = encryptDict(t, 2, 5, nil, nil)
	d.Set("V", object.Integer(4))
	if _, err := NewStandardHandler(d, nil, nil); err == nil {
		t.Fatal("V=4 accepted")
	}
}
