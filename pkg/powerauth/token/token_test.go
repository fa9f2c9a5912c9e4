package token

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/milanoid/powerauth-mobile-sdk/internal/crypto"
	"github.com/milanoid/powerauth-mobile-sdk/pkg/powerauth/paerr"
	"github.com/milanoid/powerauth-mobile-sdk/pkg/powerauth/signature"
)

// fakeProvider simulates the remote token endpoints.
type fakeProvider struct {
	creates atomic.Int32
	removes atomic.Int32
	delay   time.Duration
	fail    bool
	block   bool
}

func (self *fakeProvider) CreateToken(ctx context.Context, name string, _ signature.Factor) (Record, error) {
	self.creates.Add(1)
	if self.block {
		<-ctx.Done()
		return Record{}, ctx.Err()
	}
	if self.delay > 0 {
		time.Sleep(self.delay)
	}
	if self.fail {
		return Record{}, fmt.Errorf("server rejected token %s", name)
	}
	secret, err := crypto.RandomBytes(16)
	if nil != err {
		return Record{}, err
	}
	return Record{Name: name, Identifier: uuid.New().String(), Secret: secret}, nil
}

func (self *fakeProvider) RemoveToken(_ context.Context, name, _ string) error {
	self.removes.Add(1)
	if self.fail {
		return fmt.Errorf("server refused removal of %s", name)
	}
	return nil
}

func newTestStore(t *testing.T, provider *fakeProvider) *Store {
	t.Helper()
	store, err := NewStore(StoreCfg{Local: NewMemoryStore(), Remote: provider})
	if nil != err {
		t.Fatalf("Failed NewStore, got error %v", err)
	}
	t.Cleanup(store.Close)
	return store
}

func TestRecordCheck(t *testing.T) {
	good := Record{Name: "n", Identifier: "i", Secret: make([]byte, 16)}
	testcases := []struct {
		mutate func(*Record)
		fail   bool
	}{
		{mutate: func(*Record) {}},
		{mutate: func(r *Record) { r.Name = "" }, fail: true},
		{mutate: func(r *Record) { r.Identifier = "" }, fail: true},
		{mutate: func(r *Record) { r.Secret = nil }, fail: true},
		{mutate: func(r *Record) { r.Secret = make([]byte, 15) }, fail: true},
	}
	for pos, tc := range testcases {
		t.Run(fmt.Sprintf("case#%d", pos), func(t *testing.T) {
			rec := good
			tc.mutate(&rec)
			err := rec.Check()
			if tc.fail && !paerr.Is(err, paerr.WrongParam) {
				t.Errorf("Expected WrongParam, got error %v", err)
			}
			if !tc.fail && (nil != err) {
				t.Errorf("Failed Check, got error %v", err)
			}
		})
	}
}

func TestRequestAccessToken(t *testing.T) {
	ctx := context.Background()
	provider := &fakeProvider{}
	store := newTestStore(t, provider)

	if store.HasLocalToken("login") {
		t.Fatal("unexpected local token")
	}

	tok, err := store.RequestAccessToken(ctx, "login", signature.FactorPossession)
	if nil != err {
		t.Fatalf("Failed RequestAccessToken, got error %v", err)
	}
	if !tok.IsValid() {
		t.Fatal("Failed token validity control")
	}
	if "login" != tok.Name() {
		t.Errorf("Failed name control, got %s", tok.Name())
	}
	if 1 != provider.creates.Load() {
		t.Errorf("Failed create count control, got %d", provider.creates.Load())
	}

	// second request is served from the local database
	again, err := store.RequestAccessToken(ctx, "login", signature.FactorPossession)
	if nil != err {
		t.Fatalf("Failed RequestAccessToken, got error %v", err)
	}
	if 1 != provider.creates.Load() {
		t.Errorf("cached token triggered a network call, count %d", provider.creates.Load())
	}
	if !tok.Equal(again) {
		t.Error("Failed token equality control")
	}

	// invalid inputs
	_, err = store.RequestAccessToken(ctx, "", signature.FactorPossession)
	if !paerr.Is(err, paerr.WrongParam) {
		t.Errorf("Expected WrongParam, got error %v", err)
	}
	_, err = store.RequestAccessToken(ctx, "x", signature.FactorKnowledge)
	if !paerr.Is(err, paerr.WrongParam) {
		t.Errorf("Expected WrongParam, got error %v", err)
	}

	// a store without remote provider serves cached tokens only
	localOnly, err := NewStore(StoreCfg{Local: NewMemoryStore()})
	if nil != err {
		t.Fatalf("Failed NewStore, got error %v", err)
	}
	defer localOnly.Close()
	if localOnly.CanRequestForAccessToken() {
		t.Error("Failed CanRequestForAccessToken control")
	}
	_, err = localOnly.RequestAccessToken(ctx, "login", signature.FactorPossession)
	if !paerr.Is(err, paerr.WrongState) {
		t.Errorf("Expected WrongState, got error %v", err)
	}
}

func TestRequestCoalescing(t *testing.T) {
	ctx := context.Background()
	provider := &fakeProvider{delay: 20 * time.Millisecond}
	store := newTestStore(t, provider)

	const waiters = 8
	tokens := make([]Token, waiters)
	errs := make([]error, waiters)
	var wg sync.WaitGroup
	for pos := 0; pos < waiters; pos++ {
		wg.Add(1)
		go func(pos int) {
			defer wg.Done()
			tokens[pos], errs[pos] = store.RequestAccessToken(ctx, "shared", signature.FactorPossession)
		}(pos)
	}
	wg.Wait()

	for pos := 0; pos < waiters; pos++ {
		if nil != errs[pos] {
			t.Fatalf("#%d: Failed RequestAccessToken, got error %v", pos, errs[pos])
		}
		if !tokens[0].Equal(tokens[pos]) {
			t.Errorf("#%d: waiters received different tokens", pos)
		}
	}
	if 1 != provider.creates.Load() {
		t.Errorf("Failed coalescing control, %d network calls", provider.creates.Load())
	}
}

func TestGenerateHeader(t *testing.T) {
	ctx := context.Background()
	now := time.UnixMilli(1700000000123)
	provider := &fakeProvider{}
	store, err := NewStore(StoreCfg{Local: NewMemoryStore(), Remote: provider, Now: func() time.Time { return now }})
	if nil != err {
		t.Fatalf("Failed NewStore, got error %v", err)
	}
	defer store.Close()

	tok, err := store.RequestAccessToken(ctx, "header-test", signature.FactorPossession)
	if nil != err {
		t.Fatalf("Failed RequestAccessToken, got error %v", err)
	}
	if !tok.CanGenerateHeader() {
		t.Fatal("Failed CanGenerateHeader control")
	}

	header, err := tok.GenerateHeader()
	if nil != err {
		t.Fatalf("Failed GenerateHeader, got error %v", err)
	}
	if "X-PowerAuth-Token" != header.Name {
		t.Errorf("Failed header name control, got %s", header.Name)
	}
	if !strings.HasPrefix(header.Value, `PowerAuth token_id="`+tok.Identifier()+`"`) {
		t.Errorf("Failed header prefix control, got %s", header.Value)
	}
	if !strings.Contains(header.Value, `timestamp="1700000000123"`) {
		t.Errorf("Failed timestamp control, got %s", header.Value)
	}
	if !strings.HasSuffix(header.Value, `version="3.1"`) {
		t.Errorf("Failed version control, got %s", header.Value)
	}

	// two headers differ by nonce
	other, err := tok.GenerateHeader()
	if nil != err {
		t.Fatalf("Failed GenerateHeader, got error %v", err)
	}
	if other.Value == header.Value {
		t.Error("headers share a nonce")
	}

	// an empty token can not generate headers
	_, err = Token{}.GenerateHeader()
	if !paerr.Is(err, paerr.WrongState) {
		t.Errorf("Expected WrongState, got error %v", err)
	}

	// a closed store invalidates header generation but not token data
	store.Close()
	if tok.CanGenerateHeader() {
		t.Error("Failed CanGenerateHeader control after close")
	}
	if !tok.IsValid() {
		t.Error("token data lost after store close")
	}
	_, err = tok.GenerateHeader()
	if !paerr.Is(err, paerr.WrongState) {
		t.Errorf("Expected WrongState, got error %v", err)
	}
}

func TestParallelHeaderGeneration(t *testing.T) {
	ctx := context.Background()
	provider := &fakeProvider{}
	store := newTestStore(t, provider)

	const names = 4
	tokens := make([]Token, names)
	for pos := 0; pos < names; pos++ {
		tok, err := store.RequestAccessToken(ctx, fmt.Sprintf("token-%d", pos), signature.FactorPossession)
		if nil != err {
			t.Fatalf("Failed RequestAccessToken, got error %v", err)
		}
		tokens[pos] = tok
	}

	var wg sync.WaitGroup
	for pos := 0; pos < names; pos++ {
		for round := 0; round < 8; round++ {
			wg.Add(1)
			go func(pos int) {
				defer wg.Done()
				_, err := tokens[pos].GenerateHeader()
				if nil != err {
					t.Errorf("Failed GenerateHeader, got error %v", err)
				}
			}(pos)
		}
	}
	wg.Wait()
}

func TestRemoveAccessToken(t *testing.T) {
	ctx := context.Background()
	provider := &fakeProvider{}
	store := newTestStore(t, provider)

	_, err := store.RequestAccessToken(ctx, "removable", signature.FactorPossession)
	if nil != err {
		t.Fatalf("Failed RequestAccessToken, got error %v", err)
	}

	// a failed server side removal keeps the local record
	provider.fail = true
	err = store.RemoveAccessToken(ctx, "removable")
	if !paerr.Is(err, paerr.Encryption) {
		t.Errorf("Expected Encryption, got error %v", err)
	}
	if !store.HasLocalToken("removable") {
		t.Fatal("local token removed despite server failure")
	}

	// a successful removal deletes locally too
	provider.fail = false
	err = store.RemoveAccessToken(ctx, "removable")
	if nil != err {
		t.Fatalf("Failed RemoveAccessToken, got error %v", err)
	}
	if store.HasLocalToken("removable") {
		t.Error("local token survived removal")
	}

	// removing an unknown token is a parameter error
	err = store.RemoveAccessToken(ctx, "missing")
	if !paerr.Is(err, paerr.WrongParam) {
		t.Errorf("Expected WrongParam, got error %v", err)
	}

	// local only removal never contacts the server
	_, err = store.RequestAccessToken(ctx, "local-only", signature.FactorPossession)
	if nil != err {
		t.Fatalf("Failed RequestAccessToken, got error %v", err)
	}
	removes := provider.removes.Load()
	store.RemoveLocalToken("local-only")
	if store.HasLocalToken("local-only") {
		t.Error("local token survived RemoveLocalToken")
	}
	if removes != provider.removes.Load() {
		t.Error("RemoveLocalToken contacted the server")
	}

	// RemoveAllLocalTokens clears the database
	_, err = store.RequestAccessToken(ctx, "a", signature.FactorPossession)
	if nil != err {
		t.Fatalf("Failed RequestAccessToken, got error %v", err)
	}
	_, err = store.RequestAccessToken(ctx, "b", signature.FactorPossession)
	if nil != err {
		t.Fatalf("Failed RequestAccessToken, got error %v", err)
	}
	store.RemoveAllLocalTokens()
	if store.HasLocalToken("a") || store.HasLocalToken("b") {
		t.Error("tokens survived RemoveAllLocalTokens")
	}
}

func TestRequestAccessTokenTask(t *testing.T) {
	provider := &fakeProvider{}
	store := newTestStore(t, provider)

	// asynchronous fetch
	var got Token
	var gotErr error
	task := store.RequestAccessTokenTask("async", signature.FactorPossession, func(tok Token, err error) {
		got, gotErr = tok, err
	})
	if nil == task {
		t.Fatal("Expected a task for a cache miss")
	}
	if "" == task.ID() {
		t.Error("Failed task ID control")
	}
	task.Wait()
	if nil != gotErr {
		t.Fatalf("Failed async request, got error %v", gotErr)
	}
	if !got.IsValid() {
		t.Fatal("Failed async token control")
	}

	// cache hit completes synchronously with a nil task
	task = store.RequestAccessTokenTask("async", signature.FactorPossession, func(tok Token, err error) {
		got, gotErr = tok, err
	})
	if nil != task {
		t.Error("Expected nil task for a cache hit")
	}
	if (nil != gotErr) || !got.IsValid() {
		t.Errorf("Failed synchronous completion, got error %v", gotErr)
	}

	// CancelTask is safe with nil and aborts a blocked request
	store.CancelTask(nil)

	blocked := &fakeProvider{block: true}
	blockedStore := newTestStore(t, blocked)
	task = blockedStore.RequestAccessTokenTask("never", signature.FactorPossession, func(tok Token, err error) {
		got, gotErr = tok, err
	})
	if nil == task {
		t.Fatal("Expected a task for a blocked request")
	}
	blockedStore.CancelTask(task)
	task.Wait()
	if nil == gotErr {
		t.Error("Expected an error from the cancelled request")
	}
	if blockedStore.HasLocalToken("never") {
		t.Error("cancelled request persisted a token")
	}
}
