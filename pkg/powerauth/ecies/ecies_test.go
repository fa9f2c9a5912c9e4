package ecies

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"testing"

	"github.com/milanoid/powerauth-mobile-sdk/internal/crypto"
	"github.com/milanoid/powerauth-mobile-sdk/pkg/powerauth/paerr"
	"github.com/milanoid/powerauth-mobile-sdk/pkg/powerauth/session"
)

func TestEncryptorDecryptor(t *testing.T) {
	testcases := []struct {
		requestData  string
		responseData string
		sharedInfo1  string
		sharedInfo2  string
	}{
		{"hello world!", "hey there!", "", ""},
		{"All your base are belong to us!", "NOPE!", "very secret information", "not-so-secret"},
		{"It's over Johny! It's over.", "Nothing is over! Nothing!", "0123456789abcdef", "John Tramonta"},
		{"", "", "12345-56789", "ZX128"},
		{"{}", "{}", "", ""},
		{"{}", "", "", ""},
	}

	serverKey, err := crypto.GenerateP256KeyPair()
	if nil != err {
		t.Fatalf("Failed server key generation, got error %v", err)
	}

	for pos, tc := range testcases {
		t.Run(fmt.Sprintf("case#%d", pos), func(t *testing.T) {
			si1 := []byte(tc.sharedInfo1)
			si2 := []byte(tc.sharedInfo2)

			encryptor := NewEncryptor(serverKey.PublicKey().Bytes(), si1, si2)
			decryptor, err := NewDecryptor(serverKey.Bytes(), si1, si2)
			if nil != err {
				t.Fatalf("Failed NewDecryptor, got error %v", err)
			}

			request, err := encryptor.EncryptRequest([]byte(tc.requestData))
			if nil != err {
				t.Fatalf("Failed EncryptRequest, got error %v", err)
			}
			if 0 == len(request.Body) {
				t.Error("request has empty body")
			}
			if 32 != len(request.Mac) {
				t.Errorf("request mac length %d != 32", len(request.Mac))
			}
			if 33 != len(request.Key) {
				t.Errorf("request key length %d != 33", len(request.Key))
			}
			if 16 != len(request.Nonce) {
				t.Errorf("request nonce length %d != 16", len(request.Nonce))
			}

			received, err := decryptor.DecryptRequest(request)
			if nil != err {
				t.Fatalf("Failed DecryptRequest, got error %v", err)
			}
			if string(received) != tc.requestData {
				t.Fatalf("Failed request round trip, %q != %q", received, tc.requestData)
			}

			response, err := decryptor.EncryptResponse([]byte(tc.responseData))
			if nil != err {
				t.Fatalf("Failed EncryptResponse, got error %v", err)
			}
			if 0 != len(response.Key) {
				t.Error("response carries an ephemeral key")
			}

			plaintext, err := encryptor.DecryptResponse(response)
			if nil != err {
				t.Fatalf("Failed DecryptResponse, got error %v", err)
			}
			if string(plaintext) != tc.responseData {
				t.Fatalf("Failed response round trip, %q != %q", plaintext, tc.responseData)
			}
		})
	}
}

func TestCryptogramTampering(t *testing.T) {
	serverKey, err := crypto.GenerateP256KeyPair()
	if nil != err {
		t.Fatalf("Failed server key generation, got error %v", err)
	}
	si1 := []byte("si1")
	si2 := []byte("si2")

	encryptor := NewEncryptor(serverKey.PublicKey().Bytes(), si1, si2)
	request, err := encryptor.EncryptRequest([]byte("sensitive payload"))
	if nil != err {
		t.Fatalf("Failed EncryptRequest, got error %v", err)
	}

	// flipping any single bit of any field breaks request decryption
	fields := []struct {
		name string
		data []byte
	}{
		{name: "body", data: request.Body},
		{name: "mac", data: request.Mac},
		{name: "key", data: request.Key},
		{name: "nonce", data: request.Nonce},
	}
	for _, field := range fields {
		for bytePos := range field.data {
			for bit := 0; bit < 8; bit++ {
				decryptor, err := NewDecryptor(serverKey.Bytes(), si1, si2)
				if nil != err {
					t.Fatalf("Failed NewDecryptor, got error %v", err)
				}
				tampered := Cryptogram{
					Body:  bytes.Clone(request.Body),
					Mac:   bytes.Clone(request.Mac),
					Key:   bytes.Clone(request.Key),
					Nonce: bytes.Clone(request.Nonce),
				}
				var target []byte
				switch field.name {
				case "body":
					target = tampered.Body
				case "mac":
					target = tampered.Mac
				case "key":
					target = tampered.Key
				case "nonce":
					target = tampered.Nonce
				}
				target[bytePos] ^= 1 << bit
				_, err = decryptor.DecryptRequest(tampered)
				if !paerr.Is(err, paerr.Encryption) {
					t.Fatalf("tampered %s byte %d bit %d accepted, got error %v", field.name, bytePos, bit, err)
				}
			}
		}
	}

	// a mismatched sharedInfo2 also fails
	decryptor, err := NewDecryptor(serverKey.Bytes(), si1, []byte("other"))
	if nil != err {
		t.Fatalf("Failed NewDecryptor, got error %v", err)
	}
	_, err = decryptor.DecryptRequest(request)
	if !paerr.Is(err, paerr.Encryption) {
		t.Errorf("Expected Encryption, got error %v", err)
	}
}

func TestInvalidCurvePoint(t *testing.T) {
	invalid, err := hex.DecodeString("02B70BF043C144935756F8F4578C369CF960EE510A5A0F90E93A373A21F0D1397F")
	if nil != err {
		t.Fatalf("Failed hex decoding, got error %v", err)
	}

	encryptor := NewEncryptor(invalid, nil, nil)
	cryptogram, err := encryptor.EncryptRequest([]byte("should not be encrypted"))
	if !paerr.Is(err, paerr.Encryption) {
		t.Fatalf("Expected Encryption, got error %v", err)
	}
	if (0 != len(cryptogram.Body)) || (0 != len(cryptogram.Mac)) {
		t.Error("encryption produced output for an invalid point")
	}
	if encryptor.CanDecryptResponse() {
		t.Error("invalid point left a usable envelope")
	}
}

func TestDecryptResponseBeforeRequest(t *testing.T) {
	serverKey, err := crypto.GenerateP256KeyPair()
	if nil != err {
		t.Fatalf("Failed server key generation, got error %v", err)
	}
	encryptor := NewEncryptor(serverKey.PublicKey().Bytes(), nil, nil)
	_, err = encryptor.DecryptResponse(Cryptogram{Body: []byte{1}, Mac: make([]byte, 32), Nonce: make([]byte, 16)})
	if !paerr.Is(err, paerr.WrongState) {
		t.Errorf("Expected WrongState, got error %v", err)
	}
}

func activateTestSession(t *testing.T) (*session.Session, session.SignatureUnlockKeys, []byte) {
	t.Helper()
	ctx := context.Background()

	masterKey, err := crypto.GenerateP256KeyPair()
	if nil != err {
		t.Fatalf("Failed master key generation, got error %v", err)
	}
	serverKey, err := crypto.GenerateP256KeyPair()
	if nil != err {
		t.Fatalf("Failed server key generation, got error %v", err)
	}
	keys := session.SignatureUnlockKeys{
		PossessionUnlockKey: bytes.Repeat([]byte{0x01}, 16),
		Password:            []byte("ecies-test-password"),
	}

	sess, err := session.NewSession(session.SessionSetup{
		ApplicationKey:        "app-key",
		ApplicationSecret:     "app-secret",
		MasterServerPublicKey: base64.StdEncoding.EncodeToString(masterKey.PublicKey().Bytes()),
	})
	if nil != err {
		t.Fatalf("Failed NewSession, got error %v", err)
	}
	_, err = sess.StartActivation(ctx, session.Step1Param{})
	if nil != err {
		t.Fatalf("Failed StartActivation, got error %v", err)
	}
	ctrData, err := crypto.RandomBytes(16)
	if nil != err {
		t.Fatalf("Failed ctrData generation, got error %v", err)
	}
	_, err = sess.ValidateStep2(ctx, session.Step2Param{
		ActivationID:    "ecies-activation",
		ServerPublicKey: base64.StdEncoding.EncodeToString(serverKey.PublicKey().Bytes()),
		CtrData:         base64.StdEncoding.EncodeToString(ctrData),
	})
	if nil != err {
		t.Fatalf("Failed ValidateStep2, got error %v", err)
	}
	err = sess.CompleteActivation(ctx, keys)
	if nil != err {
		t.Fatalf("Failed CompleteActivation, got error %v", err)
	}
	return sess, keys, serverKey.Bytes()
}

func TestScopeGating(t *testing.T) {
	sess, keys, serverPriv := activateTestSession(t)
	si1 := []byte("/pa/generic/activation")

	// activation scope works on a committed session and round trips
	// against a decryptor that mixes the same transport key into si1
	encryptor, err := NewEncryptorForSession(sess, ScopeActivation, keys, si1, nil)
	if nil != err {
		t.Fatalf("Failed NewEncryptorForSession, got error %v", err)
	}
	request, err := encryptor.EncryptRequest([]byte("activation scoped payload"))
	if nil != err {
		t.Fatalf("Failed EncryptRequest, got error %v", err)
	}

	transport, err := sess.TransportKey(keys)
	if nil != err {
		t.Fatalf("Failed TransportKey, got error %v", err)
	}
	decryptor, err := NewDecryptor(serverPriv, append(bytes.Clone(si1), transport...), nil)
	if nil != err {
		t.Fatalf("Failed NewDecryptor, got error %v", err)
	}
	plaintext, err := decryptor.DecryptRequest(request)
	if nil != err {
		t.Fatalf("Failed DecryptRequest, got error %v", err)
	}
	if "activation scoped payload" != string(plaintext) {
		t.Fatalf("Failed round trip, got %q", plaintext)
	}

	// application scope needs no activation
	fresh, err := session.NewSession(sess.Setup())
	if nil != err {
		t.Fatalf("Failed NewSession, got error %v", err)
	}
	_, err = NewEncryptorForSession(fresh, ScopeApplication, session.SignatureUnlockKeys{}, si1, nil)
	if nil != err {
		t.Fatalf("Failed application scope construction, got error %v", err)
	}

	// activation scope on an empty session is a state error
	_, err = NewEncryptorForSession(fresh, ScopeActivation, keys, si1, nil)
	if !paerr.Is(err, paerr.WrongState) {
		t.Errorf("Expected WrongState, got error %v", err)
	}
}
