package auth

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storagelite/storagelite/internal/config"
	"github.com/storagelite/storagelite/pkg/errors"
)

const (
	testAccount = "acct"
	testKey     = "c2VjcmV0" // "secret"
)

var testTime = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

func newTestRequest(t *testing.T) *Request {
	t.Helper()
	u, err := url.Parse("https://acct.blob.core.windows.net/mycontainer/my%20blob?comp=block&blockid=AAAA&Timeout=30")
	require.NoError(t, err)

	h := http.Header{}
	h.Set("Content-Length", "11")
	h.Set("Content-Type", "application/octet-stream")
	h.Set("x-ms-version", "2021-08-06")
	h.Set("X-Ms-Meta-Name", "  value ")
	h.Set("User-Agent", "storagelite")
	return &Request{Method: "PUT", URL: u, Header: h}
}

func newTestSigner(t *testing.T) *SharedKeySigner {
	t.Helper()
	cred, err := NewCredential(testAccount, testKey)
	require.NoError(t, err)
	return NewSharedKeySigner(cred)
}

func TestSharedKey_StringToSign(t *testing.T) {
	signer := newTestSigner(t)
	r := newTestRequest(t)
	require.NoError(t, signer.Sign(context.Background(), r, testTime))

	want := "PUT\n" +
		"\n" + // Content-Encoding
		"\n" + // Content-Language
		"11\n" +
		"\n" + // Content-MD5
		"application/octet-stream\n" +
		"\n" + // Date, superseded by x-ms-date
		"\n\n\n\n\n" +
		"x-ms-date:Mon, 01 Jan 2024 00:00:00 GMT\n" +
		"x-ms-meta-name:value\n" +
		"x-ms-version:2021-08-06\n" +
		"/acct/mycontainer/my%20blob\n" +
		"blockid:AAAA\n" +
		"comp:block\n" +
		"timeout:30"

	assert.Equal(t, want, signer.StringToSign(r))

	mac := hmac.New(sha256.New, []byte("secret"))
	mac.Write([]byte(want))
	wantSig := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	assert.Equal(t, "SharedKey acct:"+wantSig, r.Header.Get("Authorization"))
}

func TestSharedKey_StringToSignEdgeCases(t *testing.T) {
	signer := newTestSigner(t)

	u, _ := url.Parse("https://acct.blob.core.windows.net?comp=list&include=metadata&include=deleted")
	h := http.Header{}
	h.Set("Content-Length", "0")
	h.Set("Date", "Mon, 01 Jan 2024 00:00:00 GMT")
	h.Set("Range", "bytes=0-9")
	r := &Request{Method: "get", URL: u, Header: h}

	got := signer.StringToSign(r)
	lines := strings.Split(got, "\n")

	assert.Equal(t, "GET", lines[0])
	assert.Equal(t, "", lines[3], "zero Content-Length is signed as empty")
	assert.Equal(t, "Mon, 01 Jan 2024 00:00:00 GMT", lines[6], "Date is signed without x-ms-date")
	assert.Equal(t, "bytes=0-9", lines[11])
	assert.True(t, strings.HasSuffix(got, "/acct/\ncomp:list\ninclude:deleted,metadata"), got)
}

func TestSharedKey_Deterministic(t *testing.T) {
	signer := newTestSigner(t)

	a, b := newTestRequest(t), newTestRequest(t)
	require.NoError(t, signer.Sign(context.Background(), a, testTime))
	require.NoError(t, signer.Sign(context.Background(), b, testTime))
	assert.Equal(t, a.Header.Get("Authorization"), b.Header.Get("Authorization"))

	c := newTestRequest(t)
	require.NoError(t, signer.Sign(context.Background(), c, testTime.Add(time.Second)))
	assert.NotEqual(t, a.Header.Get("Authorization"), c.Header.Get("Authorization"))
}

func TestSharedKey_ResignReplacesHeaders(t *testing.T) {
	signer := newTestSigner(t)
	r := newTestRequest(t)

	require.NoError(t, signer.Sign(context.Background(), r, testTime))
	require.NoError(t, signer.Sign(context.Background(), r, testTime.Add(time.Minute)))

	assert.Len(t, r.Header.Values("Authorization"), 1)
	assert.Equal(t, "Mon, 01 Jan 2024 00:01:00 GMT", r.Header.Get("x-ms-date"))
}

func TestNewCredential(t *testing.T) {
	tests := []struct {
		name     string
		account  string
		key      string
		wantCode errors.ErrorCode
	}{
		{"missing account", "", testKey, errors.ErrCodeCredentialsMissing},
		{"missing key", testAccount, "", errors.ErrCodeCredentialsMissing},
		{"invalid key", testAccount, "not base64!", errors.ErrCodeCredentialsInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCredential(tt.account, tt.key)
			require.Error(t, err)
			se, ok := errors.AsStorageError(err)
			require.True(t, ok)
			assert.Equal(t, tt.wantCode, se.Code)
			assert.Equal(t, errors.CategoryConfiguration, se.Category)
		})
	}
}

func TestCredential_Redacted(t *testing.T) {
	cred, err := NewCredential(testAccount, testKey)
	require.NoError(t, err)

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	logger.Info("client created", "credential", cred)

	assert.Contains(t, buf.String(), `"account":"acct"`)
	assert.NotContains(t, buf.String(), testKey)
	assert.NotContains(t, buf.String(), "secret")
	assert.NotContains(t, cred.String(), "secret")
}

func TestSigV4_Sign(t *testing.T) {
	signer, err := NewStaticSigV4Signer("AKIDEXAMPLE", "wJalrXUtnFEMI/K7MDENG+bPxRfiCYEXAMPLEKEY", "us-east-1")
	require.NoError(t, err)
	assert.Equal(t, "AWS4-HMAC-SHA256", signer.Scheme())

	sign := func() http.Header {
		u, _ := url.Parse("https://bucket.s3.amazonaws.com/path/to/object?partNumber=1")
		r := &Request{Method: "GET", URL: u, Header: http.Header{}}
		require.NoError(t, signer.Sign(context.Background(), r, testTime))
		return r.Header
	}

	h := sign()
	assert.True(t, strings.HasPrefix(h.Get("Authorization"),
		"AWS4-HMAC-SHA256 Credential=AKIDEXAMPLE/20240101/us-east-1/s3/aws4_request"), h.Get("Authorization"))
	assert.Equal(t, "20240101T000000Z", h.Get("X-Amz-Date"))
	assert.Equal(t, unsignedPayload, h.Get(headerContentSHA256))
	assert.Equal(t, h.Get("Authorization"), sign().Get("Authorization"))
}

func TestSigV4_MissingKeys(t *testing.T) {
	_, err := NewStaticSigV4Signer("", "secret", "us-east-1")
	require.Error(t, err)
	assert.Equal(t, errors.CategoryConfiguration, errors.CategoryOf(err))
}

func TestFromConfig(t *testing.T) {
	cfg := config.NewDefault()
	cfg.Account.Name = testAccount
	cfg.Account.Key = testKey

	signer, err := FromConfig(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "SharedKey", signer.Scheme())

	cfg.Account.AuthScheme = config.AuthSigV4
	signer, err = FromConfig(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "AWS4-HMAC-SHA256", signer.Scheme())

	cfg.Account.AuthScheme = "anonymous"
	_, err = FromConfig(context.Background(), cfg)
	assert.Error(t, err)
}
