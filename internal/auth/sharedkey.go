package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

const msHeaderPrefix = "x-ms-"

// Standard headers in string-to-sign order, after the verb.
var signedStandardHeaders = []string{
	"Content-Encoding",
	"Content-Language",
	"Content-Length",
	"Content-MD5",
	"Content-Type",
	"Date",
	"If-Modified-Since",
	"If-Match",
	"If-None-Match",
	"If-Unmodified-Since",
	"Range",
}

// SharedKeySigner signs with HMAC-SHA256 over the canonicalized request.
type SharedKeySigner struct {
	cred *Credential
}

// NewSharedKeySigner creates a signer for cred.
func NewSharedKeySigner(cred *Credential) *SharedKeySigner {
	return &SharedKeySigner{cred: cred}
}

// Scheme implements Signer.
func (s *SharedKeySigner) Scheme() string { return "SharedKey" }

// Sign stamps x-ms-date with at and sets the Authorization header.
func (s *SharedKeySigner) Sign(_ context.Context, r *Request, at time.Time) error {
	r.Header.Set("x-ms-date", at.UTC().Format(http.TimeFormat))
	r.Header.Set("Authorization", "SharedKey "+s.cred.account+":"+s.Signature(r))
	return nil
}

// Signature computes the base64 HMAC of the string-to-sign.
func (s *SharedKeySigner) Signature(r *Request) string {
	mac := hmac.New(sha256.New, s.cred.key)
	mac.Write([]byte(s.StringToSign(r)))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// StringToSign builds the canonical form of r.
func (s *SharedKeySigner) StringToSign(r *Request) string {
	var b strings.Builder
	b.WriteString(strings.ToUpper(r.Method))
	b.WriteByte('\n')

	for _, name := range signedStandardHeaders {
		value := r.Header.Get(name)
		switch name {
		case "Content-Length":
			if value == "0" {
				value = ""
			}
		case "Date":
			if r.Header.Get("x-ms-date") != "" {
				value = ""
			}
		}
		b.WriteString(value)
		b.WriteByte('\n')
	}

	b.WriteString(canonicalizedHeaders(r.Header))
	b.WriteString(s.canonicalizedResource(r.URL))
	return b.String()
}

func canonicalizedHeaders(h http.Header) string {
	values := make(map[string][]string)
	for name, vs := range h {
		lname := strings.ToLower(name)
		if !strings.HasPrefix(lname, msHeaderPrefix) {
			continue
		}
		for _, v := range vs {
			values[lname] = append(values[lname], strings.TrimSpace(v))
		}
	}

	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		b.WriteString(name)
		b.WriteByte(':')
		b.WriteString(strings.Join(values[name], ","))
		b.WriteByte('\n')
	}
	return b.String()
}

func (s *SharedKeySigner) canonicalizedResource(u *url.URL) string {
	var b strings.Builder
	b.WriteByte('/')
	b.WriteString(s.cred.account)
	if p := u.EscapedPath(); p != "" {
		b.WriteString(p)
	} else {
		b.WriteByte('/')
	}

	params := make(map[string][]string)
	for name, vs := range u.Query() {
		lname := strings.ToLower(name)
		params[lname] = append(params[lname], vs...)
	}
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		vs := params[name]
		sort.Strings(vs)
		b.WriteByte('\n')
		b.WriteString(name)
		b.WriteByte(':')
		b.WriteString(strings.Join(vs, ","))
	}
	return b.String()
}
