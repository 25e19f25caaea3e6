// Package security implements the standard security handler: password
// authentication, file-key derivation for revisions 2 through 6, and
// per-object RC4 / AES-CBC decryption of strings and streams.
package security

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"crypto/rc4"
	"crypto/sha256"
	"crypto/sha512"
	"errors"
	"fmt"

	"pdflib/objects"
)

// ErrInvalidPassword means neither the user nor the owner password
// authenticated against the encryption dictionary.
var ErrInvalidPassword = errors.New("invalid password")

// passwordPad is appended to short passwords and is itself the empty
// password for revisions up to 4.
var passwordPad = []byte{
	0x28, 0xBF, 0x4E, 0x5E, 0x4E, 0x75, 0x8A, 0x41,
	0x64, 0x00, 0x4E, 0x56, 0xFF, 0xFA, 0x01, 0x08,
	0x2E, 0x2E, 0x00, 0xB6, 0xD0, 0x68, 0x3E, 0x80,
	0x2F, 0x0C, 0xA9, 0xFE, 0x64, 0x53, 0x69, 0x7A,
}

// Permissions is the /P value: a bit field of operations the user password
// grants. The owner password implicitly grants everything.
type Permissions uint32

const (
	PermPrint          Permissions = 1 << 2
	PermModify         Permissions = 1 << 3
	PermCopy           Permissions = 1 << 4
	PermAnnotate       Permissions = 1 << 5
	PermFillForms      Permissions = 1 << 8
	PermExtract        Permissions = 1 << 9
	PermAssemble       Permissions = 1 << 10
	PermPrintHighQual  Permissions = 1 << 11
	PermAllPermissions Permissions = 0xFFFFFFFF
)

func (p Permissions) Can(bit Permissions) bool { return p&bit != 0 }

type cryptMethod int

const (
	methodIdentity cryptMethod = iota
	methodRC4
	methodAESV2
	methodAESV3
)

// Handler decrypts strings and stream bodies. The object identity matters
// for revisions below 5, where each object gets its own derived key.
type Handler interface {
	DecryptString(data []byte, ref objects.Reference) ([]byte, error)
	DecryptStream(data []byte, ref objects.Reference) ([]byte, error)
	Permissions() Permissions
	EncryptMetadata() bool
}

// Noop is the handler for unencrypted documents.
type Noop struct{}

func (Noop) DecryptString(data []byte, _ objects.Reference) ([]byte, error) { return data, nil }
func (Noop) DecryptStream(data []byte, _ objects.Reference) ([]byte, error) { return data, nil }
func (Noop) Permissions() Permissions                                       { return PermAllPermissions }
func (Noop) EncryptMetadata() bool                                          { return true }

type standardHandler struct {
	revision    int
	key         []byte
	perms       Permissions
	encryptMeta bool
	stmMethod   cryptMethod
	strMethod   cryptMethod
}

// NewHandler builds a handler from the trailer's /Encrypt dictionary and
// the first element of /ID. The password is tried as the user password
// first, then as the owner password; ErrInvalidPassword if neither fits.
func NewHandler(enc *objects.Dict, fileID []byte, password string) (Handler, error) {
	if enc == nil {
		return Noop{}, nil
	}
	if filter, _ := enc.Name("Filter"); filter != "Standard" {
		return nil, fmt.Errorf("unsupported security handler %q", filter)
	}
	v, _ := enc.Int("V")
	r, _ := enc.Int("R")
	pRaw, _ := enc.Int("P")
	perms := Permissions(uint32(int32(pRaw)))
	encryptMeta := true
	if b, ok := enc.Bool("EncryptMetadata"); ok {
		encryptMeta = b
	}
	o, _ := enc.StringBytes("O")
	u, _ := enc.StringBytes("U")

	h := &standardHandler{
		revision:    int(r),
		perms:       perms,
		encryptMeta: encryptMeta,
		stmMethod:   methodRC4,
		strMethod:   methodRC4,
	}

	keyLen := 5
	if n, ok := enc.Int("Length"); ok {
		keyLen = int(n) / 8
	}

	switch v {
	case 1:
		keyLen = 5
	case 2:
		// keyLen from /Length
	case 4, 5:
		var err error
		h.stmMethod, h.strMethod, keyLen, err = resolveCryptFilters(enc, keyLen)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported encryption version %d", v)
	}

	switch {
	case r >= 2 && r <= 4:
		key, ok := authenticateLegacy([]byte(password), o, u, int(r), keyLen, int32(pRaw), fileID, encryptMeta)
		if !ok {
			return nil, ErrInvalidPassword
		}
		h.key = key
	case r == 5 || r == 6:
		oe, _ := enc.StringBytes("OE")
		ue, _ := enc.StringBytes("UE")
		key, ok, err := authenticateAES256([]byte(password), o, u, oe, ue, int(r))
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrInvalidPassword
		}
		h.key = key
	default:
		return nil, fmt.Errorf("unsupported encryption revision %d", r)
	}
	return h, nil
}

func (h *standardHandler) Permissions() Permissions { return h.perms }
func (h *standardHandler) EncryptMetadata() bool    { return h.encryptMeta }

func (h *standardHandler) DecryptString(data []byte, ref objects.Reference) ([]byte, error) {
	return h.decrypt(data, ref, h.strMethod)
}

func (h *standardHandler) DecryptStream(data []byte, ref objects.Reference) ([]byte, error) {
	return h.decrypt(data, ref, h.stmMethod)
}

func (h *standardHandler) decrypt(data []byte, ref objects.Reference, method cryptMethod) ([]byte, error) {
	switch method {
	case methodIdentity:
		return data, nil
	case methodRC4:
		return rc4Apply(h.objectKey(ref, false), data)
	case methodAESV2:
		return aesCBCDecrypt(h.objectKey(ref, true), data)
	case methodAESV3:
		return aesCBCDecrypt(h.key, data)
	}
	return nil, fmt.Errorf("unknown crypt method %d", method)
}

// objectKey derives the per-object key for revisions below 5: MD5 of the
// file key, the object number (3 bytes LE), the generation (2 bytes LE),
// and for AES the salt sAlT.
func (h *standardHandler) objectKey(ref objects.Reference, aesSalt bool) []byte {
	if h.revision >= 5 {
		return h.key
	}
	return perObjectKey(h.key, ref, aesSalt)
}

func perObjectKey(key []byte, ref objects.Reference, aesSalt bool) []byte {
	in := make([]byte, 0, len(key)+9)
	in = append(in, key...)
	in = append(in, byte(ref.Num), byte(ref.Num>>8), byte(ref.Num>>16))
	in = append(in, byte(ref.Gen), byte(ref.Gen>>8))
	if aesSalt {
		in = append(in, 0x73, 0x41, 0x6C, 0x54)
	}
	sum := md5.Sum(in)
	n := len(key) + 5
	if n > 16 {
		n = 16
	}
	return sum[:n]
}

func resolveCryptFilters(enc *objects.Dict, keyLen int) (stm, str cryptMethod, outLen int, err error) {
	stm, str, outLen = methodIdentity, methodIdentity, keyLen
	cf, _ := enc.Dict("CF")
	lookup := func(name objects.Name) (cryptMethod, int, error) {
		if name == "" || name == "Identity" {
			return methodIdentity, outLen, nil
		}
		if cf == nil {
			return methodIdentity, outLen, fmt.Errorf("crypt filter %s has no /CF entry", name)
		}
		filter, ok := cf.Dict(name)
		if !ok {
			return methodIdentity, outLen, fmt.Errorf("crypt filter %s has no /CF entry", name)
		}
		length := outLen
		if n, ok := filter.Int("Length"); ok {
			// Some writers store bytes, others bits.
			if n > 40 {
				length = int(n) / 8
			} else {
				length = int(n)
			}
		}
		cfm, _ := filter.Name("CFM")
		switch cfm {
		case "V2":
			return methodRC4, length, nil
		case "AESV2":
			return methodAESV2, length, nil
		case "AESV3":
			return methodAESV3, 32, nil
		case "None", "":
			return methodIdentity, length, nil
		default:
			return methodIdentity, length, fmt.Errorf("unsupported crypt filter method %q", cfm)
		}
	}
	stmName, _ := enc.Name("StmF")
	strName, _ := enc.Name("StrF")
	var l int
	if stm, l, err = lookup(stmName); err != nil {
		return
	}
	outLen = l
	if str, l, err = lookup(strName); err != nil {
		return
	}
	if l > outLen {
		outLen = l
	}
	return
}

// padPassword truncates or pads a password to exactly 32 bytes.
func padPassword(password []byte) []byte {
	out := make([]byte, 32)
	n := copy(out, password)
	copy(out[n:], passwordPad)
	return out
}

// deriveKey is the revision 2-4 file key algorithm.
func deriveKey(password, o []byte, p int32, fileID []byte, r, keyLen int, encryptMeta bool) []byte {
	h := md5.New()
	h.Write(padPassword(password))
	h.Write(o[:min(len(o), 32)])
	h.Write([]byte{byte(p), byte(p >> 8), byte(p >> 16), byte(p >> 24)})
	h.Write(fileID)
	if r >= 4 && !encryptMeta {
		h.Write([]byte{0xFF, 0xFF, 0xFF, 0xFF})
	}
	sum := h.Sum(nil)
	if r >= 3 {
		for i := 0; i < 50; i++ {
			sum2 := md5.Sum(sum[:keyLen])
			sum = sum2[:]
		}
	}
	return sum[:keyLen]
}

// userEntry computes the expected /U value for a file key.
func userEntry(key, fileID []byte, r int) []byte {
	if r == 2 {
		out, _ := rc4Apply(key, passwordPad)
		return out
	}
	h := md5.New()
	h.Write(passwordPad)
	h.Write(fileID)
	sum := h.Sum(nil)
	out, _ := rc4Apply(key, sum)
	for i := 1; i <= 19; i++ {
		out, _ = rc4Apply(xorKey(key, byte(i)), out)
	}
	// The stored /U is 32 bytes; only the first 16 are significant.
	return append(out, passwordPad[:16]...)
}

func authenticateLegacy(password, o, u []byte, r, keyLen int, p int32, fileID []byte, encryptMeta bool) ([]byte, bool) {
	// User password first.
	key := deriveKey(password, o, p, fileID, r, keyLen, encryptMeta)
	if legacyUserMatches(key, u, fileID, r) {
		return key, true
	}
	// Owner password: recover the user password from /O, then retry.
	ownerKey := ownerKeyFromPassword(password, r, keyLen)
	userPw := append([]byte(nil), o...)
	if r == 2 {
		userPw, _ = rc4Apply(ownerKey, userPw)
	} else {
		for i := 19; i >= 0; i-- {
			userPw, _ = rc4Apply(xorKey(ownerKey, byte(i)), userPw)
		}
	}
	key = deriveKey(userPw, o, p, fileID, r, keyLen, encryptMeta)
	if legacyUserMatches(key, u, fileID, r) {
		return key, true
	}
	return nil, false
}

func legacyUserMatches(key, u, fileID []byte, r int) bool {
	expect := userEntry(key, fileID, r)
	n := 32
	if r >= 3 {
		n = 16
	}
	if len(u) < n || len(expect) < n {
		return false
	}
	return bytes.Equal(expect[:n], u[:n])
}

// ownerKeyFromPassword is the first half of the /O algorithm: the RC4 key
// derived from the owner password alone.
func ownerKeyFromPassword(password []byte, r, keyLen int) []byte {
	sum := md5.Sum(padPassword(password))
	out := sum[:]
	if r >= 3 {
		for i := 0; i < 50; i++ {
			s := md5.Sum(out)
			out = s[:]
		}
	}
	return out[:keyLen]
}

// ownerEntry computes /O for the given passwords, used when building
// encryption dictionaries.
func ownerEntry(ownerPw, userPw []byte, r, keyLen int) []byte {
	key := ownerKeyFromPassword(ownerPw, r, keyLen)
	out, _ := rc4Apply(key, padPassword(userPw))
	if r >= 3 {
		for i := 1; i <= 19; i++ {
			out, _ = rc4Apply(xorKey(key, byte(i)), out)
		}
	}
	return out
}

// authenticateAES256 handles revisions 5 and 6. /U and /O are 48 bytes:
// 32-byte verification hash, 8-byte validation salt, 8-byte key salt.
func authenticateAES256(password, o, u, oe, ue []byte, r int) ([]byte, bool, error) {
	if len(u) < 48 || len(o) < 48 {
		return nil, false, errors.New("encryption dictionary has short U or O entry")
	}
	if len(password) > 127 {
		password = password[:127]
	}
	hash := func(pw, salt, udata []byte) []byte {
		if r == 5 {
			h := sha256.New()
			h.Write(pw)
			h.Write(salt)
			h.Write(udata)
			return h.Sum(nil)
		}
		return rev6Hash(pw, salt, udata)
	}
	if bytes.Equal(hash(password, u[32:40], nil), u[:32]) {
		inter := hash(password, u[40:48], nil)
		key, err := aesCBCNoPad(inter, make([]byte, 16), ue, false)
		if err != nil {
			return nil, false, err
		}
		return key, true, nil
	}
	if bytes.Equal(hash(password, o[32:40], u[:48]), o[:32]) {
		inter := hash(password, o[40:48], u[:48])
		key, err := aesCBCNoPad(inter, make([]byte, 16), oe, false)
		if err != nil {
			return nil, false, err
		}
		return key, true, nil
	}
	return nil, false, nil
}

// rev6Hash is the iterated hash of revision 6. Rounds continue past 64
// until the last byte of the AES output is at most round-32.
func rev6Hash(password, salt, udata []byte) []byte {
	h := sha256.New()
	h.Write(password)
	h.Write(salt)
	h.Write(udata)
	k := h.Sum(nil)
	for round := 0; ; round++ {
		k1 := make([]byte, 0, 64*(len(password)+len(k)+len(udata)))
		for i := 0; i < 64; i++ {
			k1 = append(k1, password...)
			k1 = append(k1, k...)
			k1 = append(k1, udata...)
		}
		e, err := aesCBCNoPad(k[:16], k[16:32], k1, true)
		if err != nil {
			// Key material is always 32 bytes here; unreachable.
			return k[:32]
		}
		sum := 0
		for _, b := range e[:16] {
			sum += int(b)
		}
		switch sum % 3 {
		case 0:
			s := sha256.Sum256(e)
			k = s[:]
		case 1:
			s := sha512.Sum384(e)
			k = s[:]
		case 2:
			s := sha512.Sum512(e)
			k = s[:]
		}
		if round >= 63 && int(e[len(e)-1]) <= round-31 {
			break
		}
	}
	return k[:32]
}

func rc4Apply(key, data []byte) ([]byte, error) {
	c, err := rc4.NewCipher(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(data))
	c.XORKeyStream(out, data)
	return out, nil
}

// aesCBCDecrypt handles the AES stream/string format: the first 16 bytes
// are the IV, the rest is CBC ciphertext with PKCS#7 padding.
func aesCBCDecrypt(key, data []byte) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}
	if len(data) < 16 || (len(data)-16)%16 != 0 {
		return nil, errors.New("aes data is not block aligned")
	}
	out, err := aesCBCNoPad(key, data[:16], data[16:], false)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return out, nil
	}
	pad := int(out[len(out)-1])
	if pad < 1 || pad > 16 || pad > len(out) {
		// Bad padding is tolerated: return the raw plaintext.
		return out, nil
	}
	return out[:len(out)-pad], nil
}

func aesCBCNoPad(key, iv, data []byte, encrypt bool) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if len(data)%aes.BlockSize != 0 {
		return nil, errors.New("aes data is not block aligned")
	}
	out := make([]byte, len(data))
	var mode cipher.BlockMode
	if encrypt {
		mode = cipher.NewCBCEncrypter(block, iv)
	} else {
		mode = cipher.NewCBCDecrypter(block, iv)
	}
	mode.CryptBlocks(out, data)
	return out, nil
}

func xorKey(key []byte, x byte) []byte {
	out := make([]byte, len(key))
	for i, b := range key {
		out[i] = b ^ x
	}
	return out
}
