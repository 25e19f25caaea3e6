package security

import (
	"crypto/aes"
	"crypto/rand"
	"errors"

	"pdflib/objects"
)

// BuildOptions configures BuildStandardEncryption. Revision selects the
// algorithm family: 3 is 128-bit RC4, 6 is AES-256.
type BuildOptions struct {
	UserPassword  string
	OwnerPassword string
	Revision      int
	Permissions   Permissions
	FileID        []byte
}

// Encryptor encrypts strings and stream bodies for writing.
type Encryptor struct {
	revision int
	key      []byte
}

// BuildStandardEncryption produces an /Encrypt dictionary and the matching
// Encryptor. The owner password defaults to the user password.
func BuildStandardEncryption(opts BuildOptions) (*Encryptor, *objects.Dict, error) {
	if opts.OwnerPassword == "" {
		opts.OwnerPassword = opts.UserPassword
	}
	switch opts.Revision {
	case 3:
		return buildRC4(opts)
	case 6:
		return buildAES256(opts)
	default:
		return nil, nil, errors.New("unsupported encryption revision")
	}
}

func (e *Encryptor) EncryptString(data []byte, ref objects.Reference) ([]byte, error) {
	return e.encrypt(data, ref)
}

func (e *Encryptor) EncryptStream(data []byte, ref objects.Reference) ([]byte, error) {
	return e.encrypt(data, ref)
}

func (e *Encryptor) encrypt(data []byte, ref objects.Reference) ([]byte, error) {
	if e.revision < 5 {
		return rc4Apply(perObjectKey(e.key, ref, false), data)
	}
	return aesCBCEncryptPad(e.key, data)
}

func buildRC4(opts BuildOptions) (*Encryptor, *objects.Dict, error) {
	const keyLen = 16
	p := int32(opts.Permissions)
	o := ownerEntry([]byte(opts.OwnerPassword), []byte(opts.UserPassword), 3, keyLen)
	key := deriveKey([]byte(opts.UserPassword), o, p, opts.FileID, 3, keyLen, true)
	u := userEntry(key, opts.FileID, 3)

	enc := objects.NewDict()
	enc.Set("Filter", objects.Name("Standard"))
	enc.Set("V", objects.Integer(2))
	enc.Set("R", objects.Integer(3))
	enc.Set("Length", objects.Integer(keyLen*8))
	enc.Set("O", objects.String{Data: o})
	enc.Set("U", objects.String{Data: u[:32]})
	enc.Set("P", objects.Integer(p))
	return &Encryptor{revision: 3, key: key}, enc, nil
}

func buildAES256(opts BuildOptions) (*Encryptor, *objects.Dict, error) {
	fileKey := make([]byte, 32)
	salts := make([]byte, 32)
	if _, err := rand.Read(fileKey); err != nil {
		return nil, nil, err
	}
	if _, err := rand.Read(salts); err != nil {
		return nil, nil, err
	}
	userPw := truncPassword([]byte(opts.UserPassword))
	ownerPw := truncPassword([]byte(opts.OwnerPassword))

	uvs, uks := salts[0:8], salts[8:16]
	u := append(rev6Hash(userPw, uvs, nil), uvs...)
	u = append(u, uks...)
	ue, err := aesCBCNoPad(rev6Hash(userPw, uks, nil), make([]byte, 16), fileKey, true)
	if err != nil {
		return nil, nil, err
	}

	ovs, oks := salts[16:24], salts[24:32]
	o := append(rev6Hash(ownerPw, ovs, u[:48]), ovs...)
	o = append(o, oks...)
	oe, err := aesCBCNoPad(rev6Hash(ownerPw, oks, u[:48]), make([]byte, 16), fileKey, true)
	if err != nil {
		return nil, nil, err
	}

	perms, err := permsEntry(fileKey, int32(opts.Permissions))
	if err != nil {
		return nil, nil, err
	}

	stdCF := objects.NewDict()
	stdCF.Set("CFM", objects.Name("AESV3"))
	stdCF.Set("Length", objects.Integer(32))
	cf := objects.NewDict()
	cf.Set("StdCF", stdCF)

	enc := objects.NewDict()
	enc.Set("Filter", objects.Name("Standard"))
	enc.Set("V", objects.Integer(5))
	enc.Set("R", objects.Integer(6))
	enc.Set("Length", objects.Integer(256))
	enc.Set("CF", cf)
	enc.Set("StmF", objects.Name("StdCF"))
	enc.Set("StrF", objects.Name("StdCF"))
	enc.Set("O", objects.String{Data: o})
	enc.Set("U", objects.String{Data: u})
	enc.Set("OE", objects.String{Data: oe})
	enc.Set("UE", objects.String{Data: ue})
	enc.Set("P", objects.Integer(int64(int32(opts.Permissions))))
	enc.Set("Perms", objects.String{Data: perms})
	return &Encryptor{revision: 6, key: fileKey}, enc, nil
}

// permsEntry is the AES-ECB encrypted copy of /P used for tamper checks.
func permsEntry(fileKey []byte, p int32) ([]byte, error) {
	blob := make([]byte, 16)
	blob[0] = byte(p)
	blob[1] = byte(p >> 8)
	blob[2] = byte(p >> 16)
	blob[3] = byte(p >> 24)
	blob[4], blob[5], blob[6], blob[7] = 0xFF, 0xFF, 0xFF, 0xFF
	blob[8] = 'T'
	blob[9], blob[10], blob[11] = 'a', 'd', 'b'
	if _, err := rand.Read(blob[12:]); err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(fileKey)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 16)
	block.Encrypt(out, blob)
	return out, nil
}

func aesCBCEncryptPad(key, data []byte) ([]byte, error) {
	iv := make([]byte, 16)
	if _, err := rand.Read(iv); err != nil {
		return nil, err
	}
	pad := 16 - len(data)%16
	padded := make([]byte, 0, len(data)+pad)
	padded = append(padded, data...)
	for i := 0; i < pad; i++ {
		padded = append(padded, byte(pad))
	}
	ct, err := aesCBCNoPad(key, iv, padded, true)
	if err != nil {
		return nil, err
	}
	return append(iv, ct...), nil
}

func truncPassword(pw []byte) []byte {
	if len(pw) > 127 {
		return pw[:127]
	}
	return pw
}
