// Package content detects personally identifiable information in text.
//
// Detection is regex based and covers a fixed catalog of types:
//
//   - email:       name@example.com
//   - phone:       +1 (555) 123-4567, 555.123.4567
//   - ssn:         123-45-6789
//   - credit_card: 16 digits, optionally grouped by spaces or dashes, Luhn checked
//   - ip_address:  IPv4 dotted quads with octets up to 255
//
// Matches report only their type and byte offsets so callers can count or
// redact PII without copying it:
//
//	d, err := content.NewDetector(content.TypeEmail, content.TypeSSN)
//	for _, m := range d.Detect(text) {
//	    fmt.Println(m.Type, m.Start, m.End)
//	}
//	clean := d.Redact(text) // "contact [EMAIL]"
//
// A Detector is immutable and safe for concurrent use.
package content
