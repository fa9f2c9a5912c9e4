package main

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/google/uuid"

	"github.com/milanoid/powerauth-mobile-sdk/internal/crypto"
	"github.com/milanoid/powerauth-mobile-sdk/internal/utils"
	"github.com/milanoid/powerauth-mobile-sdk/pkg/powerauth/ecies"
	"github.com/milanoid/powerauth-mobile-sdk/pkg/powerauth/session"
	"github.com/milanoid/powerauth-mobile-sdk/pkg/powerauth/signature"
)

// TestVector captures one full activation with a request signature and an
// ECIES exchange computed from it. Private keys are included so another
// implementation can replay both sides of each flow.
type TestVector struct {
	MasterServerPrivateKey utils.HexBinary `json:"master_server_private_key"`
	MasterServerPublicKey  utils.HexBinary `json:"master_server_public_key"`
	ServerPrivateKey       utils.HexBinary `json:"server_private_key"`
	ServerPublicKey        utils.HexBinary `json:"server_public_key"`
	DevicePrivateKey       utils.HexBinary `json:"device_private_key"`

	ActivationId          string          `json:"activation_id"`
	CtrData               utils.HexBinary `json:"ctr_data"`
	ActivationFingerprint string          `json:"activation_fingerprint"`

	PossessionUnlockKey utils.HexBinary `json:"possession_unlock_key"`
	BiometryUnlockKey   utils.HexBinary `json:"biometry_unlock_key"`
	Password            string          `json:"password"`
	StateBlob           utils.HexBinary `json:"state_blob"`

	SigMethod     string          `json:"sig_method"`
	SigUri        string          `json:"sig_uri"`
	SigBody       string          `json:"sig_body"`
	SigNonce      utils.HexBinary `json:"sig_nonce"`
	SigFactor     string          `json:"sig_factor"`
	SigValue      string          `json:"sig_value"`
	SigAuthHeader string          `json:"sig_auth_header"`

	EciesSharedInfo1  string          `json:"ecies_shared_info1"`
	EciesSharedInfo2  string          `json:"ecies_shared_info2"`
	EciesRequestData  string          `json:"ecies_request_data"`
	EciesRequestBody  utils.HexBinary `json:"ecies_request_body"`
	EciesRequestMac   utils.HexBinary `json:"ecies_request_mac"`
	EciesRequestKey   utils.HexBinary `json:"ecies_request_key"`
	EciesRequestNonce utils.HexBinary `json:"ecies_request_nonce"`
	EciesResponseData string          `json:"ecies_response_data"`
}

var factorMap = map[string]signature.Factor{
	"possession":                    signature.FactorPossession,
	"possession_knowledge":          signature.FactorPossessionKnowledge,
	"possession_biometry":           signature.FactorPossessionBiometry,
	"possession_knowledge_biometry": signature.FactorPossessionKnowledgeBiometry,
}

func fillVector(factorName string, vect *TestVector) error {
	if nil == vect {
		return fmt.Errorf("nil vect")
	}
	factor, found := factorMap[factorName]
	if !found {
		return fmt.Errorf("unknown factor %s", factorName)
	}
	ctx := context.Background()

	// server side keys
	masterKey, err := crypto.GenerateP256KeyPair()
	if nil != err {
		return fmt.Errorf("Failed generating master key, got error %w", err)
	}
	serverKey, err := crypto.GenerateP256KeyPair()
	if nil != err {
		return fmt.Errorf("Failed generating server key, got error %w", err)
	}
	vect.MasterServerPrivateKey = utils.HexBinary(masterKey.Bytes())
	vect.MasterServerPublicKey = utils.HexBinary(masterKey.PublicKey().Bytes())
	vect.ServerPrivateKey = utils.HexBinary(serverKey.Bytes())
	vect.ServerPublicKey = utils.HexBinary(serverKey.PublicKey().Bytes())

	// unlock keys
	possessionKey, err := crypto.RandomBytes(16)
	if nil != err {
		return fmt.Errorf("Failed generating possession key, got error %w", err)
	}
	biometryKey, err := crypto.RandomBytes(16)
	if nil != err {
		return fmt.Errorf("Failed generating biometry key, got error %w", err)
	}
	keys := session.SignatureUnlockKeys{
		PossessionUnlockKey: possessionKey,
		BiometryUnlockKey:   biometryKey,
		Password:            []byte("vector-password"),
	}
	vect.PossessionUnlockKey = utils.HexBinary(possessionKey)
	vect.BiometryUnlockKey = utils.HexBinary(biometryKey)
	vect.Password = string(keys.Password)

	// activation flow
	sess, err := session.NewSession(session.SessionSetup{
		ApplicationKey:        "vector-application-key",
		ApplicationSecret:     "vector-application-secret",
		MasterServerPublicKey: base64.StdEncoding.EncodeToString(masterKey.PublicKey().Bytes()),
	})
	if nil != err {
		return fmt.Errorf("Failed NewSession, got error %w", err)
	}
	_, err = sess.StartActivation(ctx, session.Step1Param{})
	if nil != err {
		return fmt.Errorf("Failed StartActivation, got error %w", err)
	}

	activationId := uuid.New().String()
	ctrData, err := crypto.RandomBytes(16)
	if nil != err {
		return fmt.Errorf("Failed generating ctrData, got error %w", err)
	}
	vect.ActivationId = activationId
	vect.CtrData = utils.HexBinary(ctrData)

	step2, err := sess.ValidateStep2(ctx, session.Step2Param{
		ActivationID:    activationId,
		ServerPublicKey: base64.StdEncoding.EncodeToString(serverKey.PublicKey().Bytes()),
		CtrData:         base64.StdEncoding.EncodeToString(ctrData),
	})
	if nil != err {
		return fmt.Errorf("Failed ValidateStep2, got error %w", err)
	}
	vect.ActivationFingerprint = step2.ActivationFingerprint

	err = sess.CompleteActivation(ctx, keys)
	if nil != err {
		return fmt.Errorf("Failed CompleteActivation, got error %w", err)
	}

	devicePriv, err := sess.DevicePrivateKey(keys)
	if nil != err {
		return fmt.Errorf("Failed DevicePrivateKey, got error %w", err)
	}
	vect.DevicePrivateKey = utils.HexBinary(devicePriv.D.FillBytes(make([]byte, 32)))

	blob, err := sess.SaveState()
	if nil != err {
		return fmt.Errorf("Failed SaveState, got error %w", err)
	}
	vect.StateBlob = utils.HexBinary(blob)

	// request signature over a fixed nonce so it can be replayed
	sigNonce, err := crypto.RandomBytes(16)
	if nil != err {
		return fmt.Errorf("Failed generating signature nonce, got error %w", err)
	}
	rd := signature.RequestData{
		Method:       "POST",
		URI:          "/pa/signature/validate",
		Body:         []byte(`{"vector":true}`),
		OfflineNonce: base64.StdEncoding.EncodeToString(sigNonce),
	}
	sig, err := signature.SignHTTPRequest(ctx, sess, rd, factor, keys)
	if nil != err {
		return fmt.Errorf("Failed SignHTTPRequest, got error %w", err)
	}
	vect.SigMethod = rd.Method
	vect.SigUri = rd.URI
	vect.SigBody = string(rd.Body)
	vect.SigNonce = utils.HexBinary(sigNonce)
	vect.SigFactor = sig.FactorLabel
	vect.SigValue = sig.Signature
	vect.SigAuthHeader = sig.AuthHeaderValue()

	// ECIES exchange in application scope, replayed server side
	vect.EciesSharedInfo1 = "/pa/generic/application"
	vect.EciesSharedInfo2 = "vector-shared-info2"
	vect.EciesRequestData = `{"request":"payload"}`
	vect.EciesResponseData = `{"response":"payload"}`

	encryptor, err := ecies.NewEncryptorForSession(
		sess, ecies.ScopeApplication, keys,
		[]byte(vect.EciesSharedInfo1), []byte(vect.EciesSharedInfo2),
	)
	if nil != err {
		return fmt.Errorf("Failed NewEncryptorForSession, got error %w", err)
	}
	request, err := encryptor.EncryptRequest([]byte(vect.EciesRequestData))
	if nil != err {
		return fmt.Errorf("Failed EncryptRequest, got error %w", err)
	}
	vect.EciesRequestBody = utils.HexBinary(request.Body)
	vect.EciesRequestMac = utils.HexBinary(request.Mac)
	vect.EciesRequestKey = utils.HexBinary(request.Key)
	vect.EciesRequestNonce = utils.HexBinary(request.Nonce)

	// control: the server side must round trip the exchange
	decryptor, err := ecies.NewDecryptor(
		masterKey.Bytes(),
		[]byte(vect.EciesSharedInfo1), []byte(vect.EciesSharedInfo2),
	)
	if nil != err {
		return fmt.Errorf("Failed NewDecryptor, got error %w", err)
	}
	plaintext, err := decryptor.DecryptRequest(request)
	if nil != err {
		return fmt.Errorf("Failed DecryptRequest, got error %w", err)
	}
	if string(plaintext) != vect.EciesRequestData {
		return fmt.Errorf("ECIES request round trip mismatch")
	}
	response, err := decryptor.EncryptResponse([]byte(vect.EciesResponseData))
	if nil != err {
		return fmt.Errorf("Failed EncryptResponse, got error %w", err)
	}
	plaintext, err = encryptor.DecryptResponse(response)
	if nil != err {
		return fmt.Errorf("Failed DecryptResponse, got error %w", err)
	}
	if string(plaintext) != vect.EciesResponseData {
		return fmt.Errorf("ECIES response round trip mismatch")
	}

	return nil
}
