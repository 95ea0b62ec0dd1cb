// Package security implements the standard security handler for encrypted
// documents, covering handler revisions 2 and 3 with RC4 stream ciphers and
// MD5 key derivation.
package security

import (
	"bytes"
	"crypto/md5"
	"crypto/rc4"
	"encoding/binary"
	"errors"

	pkgerrors "github.com/pkg/errors"

	"github.com/scribd/keynote/object"
)

// ErrInvalidPassword is returned when the supplied password fails the user
// password check. It is fatal; no decryption can proceed without the key.
var ErrInvalidPassword = errors.New("security: invalid password")

// passwordPadding is the 32-byte constant mixed into every password before
// key derivation.
var passwordPadding = []byte{
	0x28, 0xBF, 0x4E, 0x5E, 0x4E, 0x75, 0x8A, 0x41,
	0x64, 0x00, 0x4E, 0x56, 0xFF, 0xFA, 0x01, 0x08,
	0x2E, 0x2E, 0x00, 0xB6, 0xD0, 0x68, 0x3E, 0x80,
	0x2F, 0x0C, 0xA9, 0xFE, 0x64, 0x53, 0x69, 0x7A,
}

// StandardHandler holds the authenticated file encryption key and derives
// per-object keys on demand. RC4 is symmetric, so Crypt serves both
// decryption during loading and re-encryption during writing.
type StandardHandler struct {
	revision int
	key      []byte
}

// NewStandardHandler authenticates the user password against the /Encrypt
// dictionary and the first file identifier string. It returns
// ErrInvalidPassword when the password does not unlock the file.
func NewStandardHandler(enc *object.Dict, fileID []byte, password []byte) (*StandardHandler, error) {
	if filter, ok := enc.GetName("Filter"); !ok || filter != "Standard" {
		return nil, pkgerrors.Errorf("security: unsupported security handler /%s", string(filter))
	}
	v, _ := enc.GetInt("V")
	if v != 1 && v != 2 {
		return nil, pkgerrors.Errorf("security: unsupported encryption algorithm V=%d", v)
	}
	r, ok := enc.GetInt("R")
	if !ok || (r != 2 && r != 3) {
		return nil, pkgerrors.Errorf("security: unsupported handler revision R=%d", r)
	}
	o, ok := enc.GetString("O")
	if !ok || len(o) < 32 {
		return nil, pkgerrors.New("security: missing or short /O entry")
	}
	u, ok := enc.GetString("U")
	if !ok || len(u) < 32 {
		return nil, pkgerrors.New("security: missing or short /U entry")
	}
	p, ok := enc.GetInt("P")
	if !ok {
		return nil, pkgerrors.New("security: missing /P entry")
	}

	keyLen := 5
	if r == 3 {
		keyLen = 16
	}
	if l, ok := enc.GetInt("Length"); ok {
		keyLen = int(l) / 8
	}
	if keyLen < 5 || keyLen > 16 {
		return nil, pkgerrors.Errorf("security: key length %d bytes out of range", keyLen)
	}

	encryptMetadata := true
	if em, ok := enc.GetBool("EncryptMetadata"); ok {
		encryptMetadata = bool(em)
	}

	key := FileKey(password, o[:32], int32(p), fileID, keyLen, int(r), encryptMetadata)
	if !checkUserPassword(key, u[:32], fileID, int(r)) {
		return nil, ErrInvalidPassword
	}
	return &StandardHandler{revision: int(r), key: key}, nil
}

// FileKey computes the file encryption key per the standard handler
// algorithm.
func FileKey(password, o []byte, p int32, fileID []byte, keyLen, revision int, encryptMetadata bool) []byte {
	h := md5.New()
	h.Write(padPassword(password))
	h.Write(o)
	var pbuf [4]byte
	binary.LittleEndian.PutUint32(pbuf[:], uint32(p))
	h.Write(pbuf[:])
	h.Write(fileID)
	if !encryptMetadata {
		h.Write([]byte{0xFF, 0xFF, 0xFF, 0xFF})
	}
	key := h.Sum(nil)[:keyLen]
	if revision >= 3 {
		for i := 0; i < 50; i++ {
			sum := md5.Sum(key)
			key = sum[:keyLen]
		}
	}
	return key
}

func padPassword(password []byte) []byte {
	out := make([]byte, 32)
	n := copy(out, password)
	copy(out[n:], passwordPadding)
	return out
}

// checkUserPassword verifies the derived key against the stored /U value.
func checkUserPassword(key, u, fileID []byte, revision int) bool {
	if revision == 2 {
		return bytes.Equal(rc4Crypt(key, passwordPadding), u)
	}
	h := md5.New()
	h.Write(passwordPadding)
	h.Write(fileID)
	val := rc4Crypt(key, h.Sum(nil))
	for i := 1; i <= 19; i++ {
		step := make([]byte, len(key))
		for j := range key {
			step[j] = key[j] ^ byte(i)
		}
		val = rc4Crypt(step, val)
	}
	return bytes.Equal(val, u[:16])
}

// ComputeUserValue produces the /U entry matching key, used when writing an
// encrypted file back out with the same parameters.
func ComputeUserValue(key, fileID []byte, revision int) []byte {
	if revision == 2 {
		return rc4Crypt(key, passwordPadding)
	}
	h := md5.New()
	h.Write(passwordPadding)
	h.Write(fileID)
	val := rc4Crypt(key, h.Sum(nil))
	for i := 1; i <= 19; i++ {
		step := make([]byte, len(key))
		for j := range key {
			step[j] = key[j] ^ byte(i)
		}
		val = rc4Crypt(step, val)
	}
	out := make([]byte, 32)
	copy(out, val)
	copy(out[16:], passwordPadding[:16])
	return out
}

// objectKey derives the per-object RC4 key from the file key and the
// object's number and generation.
func (h *StandardHandler) objectKey(ref object.Ref) []byte {
	m := md5.New()
	m.Write(h.key)
	var nums [5]byte
	nums[0] = byte(ref.Num)
	nums[1] = byte(ref.Num >> 8)
	nums[2] = byte(ref.Num >> 16)
	nums[3] = byte(ref.Gen)
	nums[4] = byte(ref.Gen >> 8)
	m.Write(nums[:])
	n := len(h.key) + 5
	if n > 16 {
		n = 16
	}
	return m.Sum(nil)[:n]
}

// Crypt encrypts or decrypts data belonging to the object identified by ref.
// RC4 is its own inverse, so one operation serves both directions.
func (h *StandardHandler) Crypt(ref object.Ref, data []byte) []byte {
	return rc4Crypt(h.objectKey(ref), data)
}

func rc4Crypt(key, data []byte) []byte {
	c, err := rc4.NewCipher(key)
	if err != nil {
		// Key sizes are bounded to 5..16 bytes above; NewCipher only
		// rejects sizes outside 1..256.
		panic(err)
	}
	out := make([]byte, len(data))
	c.XORKeyStream(out, data)
	return out
}
