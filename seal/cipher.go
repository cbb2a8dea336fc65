package seal

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"

	"github.com/256dpi/xo"
)

// ErrInvalidCiphertext is returned if a ciphertext is malformed or has been
// decrypted with the wrong key.
var ErrInvalidCiphertext = xo.BF("invalid ciphertext")

// the sentinel is prepended to the plaintext before encryption and verified
// after decryption to detect wrong-key decryption
var sentinel = []byte{0, 0, 0, 0}

// Encrypt will encrypt the provided plaintext using AES-256-CTR. The returned
// ciphertext carries a random 16-byte IV as its prefix.
func (k Key) Encrypt(plaintext []byte) ([]byte, error) {
	// create cipher
	block, err := aes.NewCipher(k)
	if err != nil {
		return nil, xo.W(err)
	}

	// generate iv
	iv, err := Rand(aes.BlockSize)
	if err != nil {
		return nil, xo.W(err)
	}

	// prepare buffer
	buf := make([]byte, aes.BlockSize+len(sentinel)+len(plaintext))
	copy(buf, iv)
	copy(buf[aes.BlockSize:], sentinel)
	copy(buf[aes.BlockSize+len(sentinel):], plaintext)

	// encrypt sentinel and plaintext
	stream := cipher.NewCTR(block, iv)
	stream.XORKeyStream(buf[aes.BlockSize:], buf[aes.BlockSize:])

	return buf, nil
}

// Decrypt will decrypt the provided ciphertext. It will return
// ErrInvalidCiphertext if the ciphertext is too short or the embedded
// sentinel does not verify after decryption.
func (k Key) Decrypt(ciphertext []byte) ([]byte, error) {
	// check length
	if len(ciphertext) < aes.BlockSize+len(sentinel) {
		return nil, ErrInvalidCiphertext.Wrap()
	}

	// create cipher
	block, err := aes.NewCipher(k)
	if err != nil {
		return nil, xo.W(err)
	}

	// decrypt sentinel and plaintext
	buf := make([]byte, len(ciphertext)-aes.BlockSize)
	stream := cipher.NewCTR(block, ciphertext[:aes.BlockSize])
	stream.XORKeyStream(buf, ciphertext[aes.BlockSize:])

	// verify sentinel
	if !bytes.Equal(buf[:len(sentinel)], sentinel) {
		return nil, ErrInvalidCiphertext.Wrap()
	}

	return buf[len(sentinel):], nil
}
