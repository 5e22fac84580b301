// Package pairing encodes the out-of-band payload a desktop shows as a QR
// code and a mobile scans.
//
// The payload is a compact JSON object with single-letter keys:
//
//	{"v":"1","s":"<session id>","k":"<base64 desktop public key>","r":"<relay url>"}
//
// Decode is strict: unknown keys, trailing data, a missing field or an
// unsupported version all fail, and the version is checked before any other
// field is trusted. Encode refuses payloads longer than MaxEncodedLen because
// scan reliability drops as code density grows.
package pairing
