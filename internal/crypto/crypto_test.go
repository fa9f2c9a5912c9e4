package crypto

import (
	"bytes"
	"fmt"
	"testing"
)

func TestAESCBCPadRoundTrip(t *testing.T) {
	key := bytes.Repeat([]byte{0x42}, 16)
	iv := bytes.Repeat([]byte{0x07}, 16)

	testcases := [][]byte{
		nil,
		[]byte(""),
		[]byte("a"),
		[]byte("exactly 16 bytes"),
		bytes.Repeat([]byte{0xAB}, 100),
	}
	for pos, plaintext := range testcases {
		t.Run(fmt.Sprintf("case#%d", pos), func(t *testing.T) {
			ciphertext, err := AESCBCEncryptPad(key, iv, plaintext)
			if nil != err {
				t.Fatalf("Failed AESCBCEncryptPad, got error %v", err)
			}
			if 0 != len(ciphertext)%16 {
				t.Errorf("ciphertext length %d not block aligned", len(ciphertext))
			}
			got, err := AESCBCDecryptPad(key, iv, ciphertext)
			if nil != err {
				t.Fatalf("Failed AESCBCDecryptPad, got error %v", err)
			}
			if !bytes.Equal(got, plaintext) {
				t.Fatalf("Failed round trip, got\n% X\n!=\n% X", got, plaintext)
			}
		})
	}
}

func TestAESCBCDecryptPadRejectsGarbage(t *testing.T) {
	key := bytes.Repeat([]byte{0x42}, 16)
	iv := make([]byte, 16)

	_, err := AESCBCDecryptPad(key, iv, []byte("not block aligned"))
	if nil == err {
		t.Error("Expected error for unaligned ciphertext")
	}
	_, err = AESCBCDecryptPad(key, iv, nil)
	if nil == err {
		t.Error("Expected error for empty ciphertext")
	}
}

func TestKDFX963(t *testing.T) {
	secret := []byte("shared secret material")

	out1, err := KDFX963(secret, []byte("info-a"), 32)
	if nil != err {
		t.Fatalf("Failed KDFX963, got error %v", err)
	}
	if len(out1) != 32 {
		t.Fatalf("Failed output size control, %d != 32", len(out1))
	}

	// deterministic for identical inputs
	out2, err := KDFX963(secret, []byte("info-a"), 32)
	if nil != err {
		t.Fatalf("Failed KDFX963, got error %v", err)
	}
	if !bytes.Equal(out1, out2) {
		t.Error("KDFX963 is not deterministic")
	}

	// distinct info strings yield independent keys
	out3, err := KDFX963(secret, []byte("info-b"), 32)
	if nil != err {
		t.Fatalf("Failed KDFX963, got error %v", err)
	}
	if bytes.Equal(out1, out3) {
		t.Error("distinct sharedInfo produced identical output")
	}

	// long output spans several hash rounds, prefix property holds
	long, err := KDFX963(secret, []byte("info-a"), 100)
	if nil != err {
		t.Fatalf("Failed KDFX963, got error %v", err)
	}
	if !bytes.Equal(long[:32], out1) {
		t.Error("counter mode prefix mismatch")
	}

	_, err = KDFX963(nil, nil, 16)
	if nil == err {
		t.Error("Expected error for empty secret")
	}
}

func TestKeyWrapRoundTrip(t *testing.T) {
	kek := bytes.Repeat([]byte{0x11}, 16)

	testcases := [][]byte{
		bytes.Repeat([]byte{0x22}, 16), // signature key
		bytes.Repeat([]byte{0x33}, 32), // device private key scalar
	}
	for pos, key := range testcases {
		t.Run(fmt.Sprintf("case#%d", pos), func(t *testing.T) {
			wrapped, err := WrapKey(kek, key)
			if nil != err {
				t.Fatalf("Failed WrapKey, got error %v", err)
			}
			got, err := UnwrapKey(kek, wrapped)
			if nil != err {
				t.Fatalf("Failed UnwrapKey, got error %v", err)
			}
			if !bytes.Equal(got, key) {
				t.Fatalf("Failed round trip, got\n% X\n!=\n% X", got, key)
			}

			// every single byte flip must break the MAC check
			for bpos := range wrapped {
				tampered := bytes.Clone(wrapped)
				tampered[bpos] ^= 0x01
				_, err = UnwrapKey(kek, tampered)
				if nil == err {
					t.Fatalf("tampered byte %d accepted", bpos)
				}
			}

			// a different kek must not unwrap
			otherKek := bytes.Repeat([]byte{0x99}, 16)
			_, err = UnwrapKey(otherKek, wrapped)
			if nil == err {
				t.Error("wrong kek accepted")
			}
		})
	}
}

func TestIsZeroFilled(t *testing.T) {
	if !IsZeroFilled(make([]byte, 16)) {
		t.Error("zero buffer not detected")
	}
	if IsZeroFilled([]byte{0, 0, 0, 1}) {
		t.Error("non zero buffer flagged as zero")
	}
}

func TestECDSASignVerify(t *testing.T) {
	keypair, err := GenerateP256KeyPair()
	if nil != err {
		t.Fatalf("Failed GenerateP256KeyPair, got error %v", err)
	}
	priv, err := ECDSAPrivateKeyFromScalar(keypair.Bytes())
	if nil != err {
		t.Fatalf("Failed ECDSAPrivateKeyFromScalar, got error %v", err)
	}

	data := []byte("data to be signed")
	sig, err := SignP256(priv, data)
	if nil != err {
		t.Fatalf("Failed SignP256, got error %v", err)
	}

	_, pub, err := ParseP256PublicKey(keypair.PublicKey().Bytes())
	if nil != err {
		t.Fatalf("Failed ParseP256PublicKey, got error %v", err)
	}
	if !VerifyP256(pub, data, sig) {
		t.Error("Failed signature verification")
	}
	if VerifyP256(pub, []byte("other data"), sig) {
		t.Error("signature verified over wrong data")
	}
}

func TestAlgorithmRegistries(t *testing.T) {
	hash, err := GetHash(HashSHA256)
	if nil != err {
		t.Fatalf("Failed GetHash, got error %v", err)
	}
	if !hash.Available() {
		t.Error("SHA256 unavailable")
	}
	_, err = GetHash(HashBLAKE2S)
	if nil != err {
		t.Fatalf("Failed GetHash, got error %v", err)
	}
	_, err = GetHash("MD5")
	if nil == err {
		t.Error("Expected error for unregistered hash")
	}
	err = RegisterHash(HashSHA256, hash)
	if nil == err {
		t.Error("Expected error for duplicate registration")
	}

	_, err = GetCurve(CurveP256)
	if nil != err {
		t.Fatalf("Failed GetCurve, got error %v", err)
	}
	_, err = GetCurve("X25519")
	if nil == err {
		t.Error("Expected error for unregistered curve")
	}
	err = RegisterCurve(CurveP256, nil)
	if nil == err {
		t.Error("Expected error for nil curve")
	}
}
