package huawei

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

// APIG signing constants
const (
	signAlgorithm = "SDK-HMAC-SHA256"
	dateHeader    = "X-Sdk-Date"
	signTimeFmt   = "20060102T150405Z"
)

// Signer signs requests for Huawei Cloud API Gateway with an AK/SK pair
// using the SDK-HMAC-SHA256 scheme.
type Signer struct {
	AccessKey string
	SecretKey string
}

// Sign computes the request signature over the method, canonical URI, query
// string, signed headers and body hash, then sets the X-Sdk-Date and
// Authorization headers. The body must match what will be sent.
func (s *Signer) Sign(req *http.Request, body []byte, now time.Time) error {
	if s.AccessKey == "" || s.SecretKey == "" {
		return fmt.Errorf("access key and secret key must be set")
	}

	timestamp := now.UTC().Format(signTimeFmt)
	req.Header.Set(dateHeader, timestamp)

	canonical, signedHeaders := canonicalRequest(req, body)

	hashed := sha256Hex([]byte(canonical))
	stringToSign := strings.Join([]string{signAlgorithm, timestamp, hashed}, "\n")

	mac := hmac.New(sha256.New, []byte(s.SecretKey))
	mac.Write([]byte(stringToSign))
	signature := hex.EncodeToString(mac.Sum(nil))

	req.Header.Set("Authorization", fmt.Sprintf(
		"%s Access=%s, SignedHeaders=%s, Signature=%s",
		signAlgorithm, s.AccessKey, signedHeaders, signature))
	return nil
}

// canonicalRequest assembles the canonical form the gateway validates
// against: method, URI with a trailing slash, sorted query string, sorted
// lowercased headers, the signed header list and the hex body hash.
func canonicalRequest(req *http.Request, body []byte) (canonical, signedHeaders string) {
	uri := req.URL.Path
	if uri == "" {
		uri = "/"
	}
	if !strings.HasSuffix(uri, "/") {
		uri += "/"
	}

	headers, signedHeaders := canonicalHeaders(req)

	canonical = strings.Join([]string{
		req.Method,
		uri,
		canonicalQueryString(req.URL.Query()),
		headers,
		signedHeaders,
		sha256Hex(body),
	}, "\n")
	return canonical, signedHeaders
}

// canonicalQueryString sorts parameters by key (then value) and encodes
// them per RFC 3986.
func canonicalQueryString(query url.Values) string {
	keys := make([]string, 0, len(query))
	for k := range query {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var pairs []string
	for _, k := range keys {
		values := append([]string(nil), query[k]...)
		sort.Strings(values)
		for _, v := range values {
			pairs = append(pairs, escape(k)+"="+escape(v))
		}
	}
	return strings.Join(pairs, "&")
}

// canonicalHeaders lowercases names, trims values, sorts by name and always
// includes the host.
func canonicalHeaders(req *http.Request) (headers, signedHeaders string) {
	byName := map[string]string{}
	for name, values := range req.Header {
		byName[strings.ToLower(name)] = strings.TrimSpace(strings.Join(values, ","))
	}
	host := req.Host
	if host == "" && req.URL != nil {
		host = req.URL.Host
	}
	byName["host"] = host

	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		b.WriteString(name)
		b.WriteByte(':')
		b.WriteString(byName[name])
		b.WriteByte('\n')
	}
	return b.String(), strings.Join(names, ";")
}

// escape percent-encodes per RFC 3986, where space is %20 and ~ is left
// unencoded.
func escape(s string) string {
	escaped := url.QueryEscape(s)
	escaped = strings.ReplaceAll(escaped, "+", "%20")
	escaped = strings.ReplaceAll(escaped, "%7E", "~")
	return escaped
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
