package httpmsg

import "strings"

// MethodUnknown is the reserved slot 0 of every method table.
const MethodUnknown = 0

// MethodTable is an immutable list of request method tokens. Slot 0 is
// reserved and never matches, so a lookup result of 0 means "unknown".
type MethodTable []string

// DefaultMethods is the RFC 2616 method set plus the RFC 2774 M- variants.
var DefaultMethods = MethodTable{
	"",
	"OPTIONS",
	"GET",
	"HEAD",
	"POST",
	"PUT",
	"DELETE",
	"TRACE",
	"CONNECT",
	"M-OPTIONS",
	"M-GET",
	"M-HEAD",
	"M-POST",
	"M-PUT",
	"M-DELETE",
	"M-TRACE",
	"M-CONNECT",
}

// Lookup returns the index of token in the table, or MethodUnknown.
// Method tokens are case-sensitive.
func (t MethodTable) Lookup(token string) int {
	for i := 1; i < len(t); i++ {
		if t[i] == token {
			return i
		}
	}
	return MethodUnknown
}

// Name returns the token stored at index i, or "" for the reserved slot
// and out-of-range indices.
func (t MethodTable) Name(i int) string {
	if i <= MethodUnknown || i >= len(t) {
		return ""
	}
	return t[i]
}

// knownHeaders lists the canonical spellings of RFC 2616 and RFC 2774 header
// names. Slot 0 is reserved.
var knownHeaders = [...]string{
	"",
	// general
	"Cache-Control",
	"Connection",
	"Date",
	"Pragma",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
	"Via",
	"Warning",
	// request
	"Accept",
	"Accept-Charset",
	"Accept-Encoding",
	"Accept-Language",
	"Authorization",
	"Expect",
	"From",
	"Host",
	"If-Match",
	"If-Modified-Since",
	"If-None-Match",
	"If-Range",
	"If-Unmodified-Since",
	"Max-Forwards",
	"Proxy-Authorization",
	"Range",
	"Referer",
	"TE",
	"User-Agent",
	// response
	"Accept-Ranges",
	"Age",
	"ETag",
	"Location",
	"Proxy-Authenticate",
	"Retry-After",
	"Server",
	"Vary",
	"WWW-Authenticate",
	// entity
	"Allow",
	"Content-Encoding",
	"Content-Language",
	"Content-Length",
	"Content-Location",
	"Content-MD5",
	"Content-Range",
	"Content-Type",
	"Expires",
	"Last-Modified",
	// RFC 2774
	"Man",
	"Opt",
	"C-Man",
	"C-Opt",
	"Ext",
	"C-Ext",
}

// knownHeaderIndex maps lower-cased header names to their slot in knownHeaders.
var knownHeaderIndex = func() map[string]int {
	idx := make(map[string]int, len(knownHeaders))
	for i := 1; i < len(knownHeaders); i++ {
		idx[strings.ToLower(knownHeaders[i])] = i
	}
	return idx
}()

// CanonicalHeader returns the canonical spelling of name if it is one of the
// recognized header names. Matching is case-insensitive.
func CanonicalHeader(name string) (string, bool) {
	i, ok := knownHeaderIndex[strings.ToLower(name)]
	if !ok {
		return name, false
	}
	return knownHeaders[i], true
}

// Common header names used by the daemon.
const (
	HeaderContentType   = "Content-Type"
	HeaderContentLength = "Content-Length"
	HeaderConnection    = "Connection"
	HeaderHost          = "Host"
	HeaderMan           = "Man"
)

var statusText = map[int]string{
	100: "Continue",
	101: "Switching Protocols",
	200: "OK",
	201: "Created",
	202: "Accepted",
	204: "No Content",
	301: "Moved Permanently",
	302: "Found",
	304: "Not Modified",
	400: "Bad Request",
	401: "Unauthorized",
	403: "Forbidden",
	404: "Not Found",
	405: "Method Not Allowed",
	408: "Request Timeout",
	411: "Length Required",
	413: "Request Entity Too Large",
	414: "Request-URI Too Long",
	415: "Unsupported Media Type",
	500: "Internal Server Error",
	501: "Not Implemented",
	503: "Service Unavailable",
	505: "HTTP Version Not Supported",
}

// StatusText returns the standard reason phrase for code, or "" if unknown.
func StatusText(code int) string {
	return statusText[code]
}
