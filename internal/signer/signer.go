// Package signer builds HMAC-SHA1 signatures for Alibaba Cloud RPC-style APIs.
//
// Everything here is a pure function of its inputs. Nonce and timestamp are
// supplied by the caller so the output is reproducible. Request bodies are
// never part of the signature.
package signer

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/url"
	"sort"
	"strings"
	"time"
)

// TimestampLayout is the ISO-8601 UTC format the RPC gateway expects.
const TimestampLayout = "2006-01-02T15:04:05Z"

const (
	SignatureMethod  = "HMAC-SHA1"
	SignatureVersion = "1.0"
	ParamSignature   = "Signature"
)

// PercentEncode applies RFC 3986 encoding: only A-Z a-z 0-9 - _ . ~ stay literal.
func PercentEncode(s string) string {
	e := url.QueryEscape(s)
	e = strings.ReplaceAll(e, "+", "%20")
	e = strings.ReplaceAll(e, "*", "%2A")
	e = strings.ReplaceAll(e, "%7E", "~")
	return e
}

// CanonicalQuery sorts params by key and joins the encoded pairs with "&".
func CanonicalQuery(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k == ParamSignature {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(PercentEncode(k))
		b.WriteByte('=')
		b.WriteString(PercentEncode(params[k]))
	}
	return b.String()
}

// StringToSign returns METHOD&%2F&encode(canonical query).
func StringToSign(method string, params map[string]string) string {
	return strings.ToUpper(method) + "&" + PercentEncode("/") + "&" + PercentEncode(CanonicalQuery(params))
}

// Sign computes base64(HMAC-SHA1(secret + "&", stringToSign)).
func Sign(method string, params map[string]string, secret string) string {
	mac := hmac.New(sha1.New, []byte(secret+"&"))
	mac.Write([]byte(StringToSign(method, params)))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// SignParams returns a copy of params with the Signature entry added.
// The input map is left untouched.
func SignParams(method string, params map[string]string, secret string) map[string]string {
	out := make(map[string]string, len(params)+1)
	for k, v := range params {
		out[k] = v
	}
	out[ParamSignature] = Sign(method, params, secret)
	return out
}

// RPCParams returns the common parameters shared by every RPC call.
func RPCParams(action, version, accessKeyID, nonce string, now time.Time) map[string]string {
	return map[string]string{
		"Action":           action,
		"Version":          version,
		"Format":           "JSON",
		"AccessKeyId":      accessKeyID,
		"SignatureMethod":  SignatureMethod,
		"SignatureVersion": SignatureVersion,
		"SignatureNonce":   nonce,
		"Timestamp":        now.UTC().Format(TimestampLayout),
	}
}

// EncodeQuery renders signed params as a URL query string in canonical order.
func EncodeQuery(signed map[string]string) string {
	q := CanonicalQuery(signed)
	if sig, ok := signed[ParamSignature]; ok {
		if q != "" {
			q += "&"
		}
		q += ParamSignature + "=" + PercentEncode(sig)
	}
	return q
}
