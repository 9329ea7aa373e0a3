// Package parse holds the §4.4 line-cursor primitives shared by every log
// parser (subpackages hostsim, nicbm, ns3, replay): trim_left,
// consume_prefix, expect_until, parse_uint, parse_int, parse_ipv4,
// parse_mac. §6 names a slightly larger set on its Reader-side LineHandler
// (consume_char, consume_string, consume_until, extract_until); both are
// implemented on the one Cursor type here rather than split across a
// Reader-owned cursor and a parser-owned one, since every caller needs both
// sets on the same line.
//
// Grounded on the teacher's ios/diskstats_linux.go: fields are decimal
// integers parsed with strconv and a bad line just yields (0, false) rather
// than panicking, the same tolerate-and-skip posture as Cursor here. Unlike
// /proc/diskstats, simulator log lines are not whitespace-field-delimited —
// they interleave fixed prefixes, key=value pairs, and embedded literals —
// so Cursor advances a single read position over the raw string instead of
// pre-splitting on strings.Fields.
package parse

import (
	"strconv"
	"strings"
)

// Cursor is a single-pass, left-to-right read position over one line.
// Every method either advances pos and returns ok=true, or leaves pos
// untouched and returns ok=false — callers can try alternatives without
// needing to save/restore state themselves.
type Cursor struct {
	s   string
	pos int
}

// NewCursor starts a cursor at the beginning of line.
func NewCursor(line string) *Cursor { return &Cursor{s: line} }

// AtEnd reports whether the cursor has consumed the whole line.
func (c *Cursor) AtEnd() bool { return c.pos >= len(c.s) }

// Remaining returns everything not yet consumed.
func (c *Cursor) Remaining() string { return c.s[c.pos:] }

// TrimLeft skips any run of spaces and tabs at the cursor.
func (c *Cursor) TrimLeft() {
	for c.pos < len(c.s) && (c.s[c.pos] == ' ' || c.s[c.pos] == '\t') {
		c.pos++
	}
}

// ConsumeChar consumes exactly one matching byte.
func (c *Cursor) ConsumeChar(ch byte) bool {
	if c.pos < len(c.s) && c.s[c.pos] == ch {
		c.pos++
		return true
	}
	return false
}

// ConsumePrefix consumes prefix if it occurs at the cursor (§4.4's
// consume_prefix, §6's consume_string).
func (c *Cursor) ConsumePrefix(prefix string) bool {
	if strings.HasPrefix(c.s[c.pos:], prefix) {
		c.pos += len(prefix)
		return true
	}
	return false
}

// ExpectUntil consumes and returns everything up to (not including) the
// next occurrence of marker, then consumes marker itself. Fails if marker
// never occurs. This is §4.4's expect_until / §6's consume_until.
func (c *Cursor) ExpectUntil(marker string) (string, bool) {
	idx := strings.Index(c.s[c.pos:], marker)
	if idx < 0 {
		return "", false
	}
	out := c.s[c.pos : c.pos+idx]
	c.pos += idx + len(marker)
	return out, true
}

// ExtractUntil consumes and returns the longest run starting at the cursor
// for which pred holds, without consuming the byte that stopped it. Always
// succeeds (the run may be empty). This is §6's extract_until(predicate).
func (c *Cursor) ExtractUntil(pred func(byte) bool) string {
	start := c.pos
	for c.pos < len(c.s) && pred(c.s[c.pos]) {
		c.pos++
	}
	return c.s[start:c.pos]
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }
func isHex(b byte) bool {
	return isDigit(b) || (b >= 'a' && b <= 'f') || (b >= 'A' && b <= 'F')
}

// ParseUint parses an unsigned run in the given base starting at the
// cursor. Base 16 reads a run of hex digits; any other base reads a run of
// decimal digits. No "0x" prefix is consumed; callers strip it first.
func (c *Cursor) ParseUint(base int) (uint64, bool) {
	var tok string
	if base == 16 {
		tok = c.ExtractUntil(isHex)
	} else {
		tok = c.ExtractUntil(isDigit)
	}
	if tok == "" {
		return 0, false
	}
	v, err := strconv.ParseUint(tok, base, 64)
	if err != nil {
		c.pos -= len(tok)
		return 0, false
	}
	return v, true
}

// ParseInt parses an optionally-signed decimal run starting at the cursor.
func (c *Cursor) ParseInt() (int64, bool) {
	start := c.pos
	neg := c.ConsumeChar('-')
	tok := c.ExtractUntil(isDigit)
	if tok == "" {
		c.pos = start
		return 0, false
	}
	v, err := strconv.ParseInt(tok, 10, 64)
	if err != nil {
		c.pos = start
		return 0, false
	}
	if neg {
		v = -v
	}
	return v, true
}

// ParseIPv4 parses a dotted-quad address (e.g. "10.0.0.1") into its
// big-endian uint32 representation.
func (c *Cursor) ParseIPv4() (uint32, bool) {
	start := c.pos
	var octets [4]uint64
	for i := 0; i < 4; i++ {
		if i > 0 && !c.ConsumeChar('.') {
			c.pos = start
			return 0, false
		}
		v, ok := c.ParseUint(10)
		if !ok || v > 255 {
			c.pos = start
			return 0, false
		}
		octets[i] = v
	}
	return uint32(octets[0])<<24 | uint32(octets[1])<<16 | uint32(octets[2])<<8 | uint32(octets[3]), true
}

// ParseMAC parses a colon-separated hex MAC address (e.g. "cc:18:61:cf:61:4f").
func (c *Cursor) ParseMAC() ([6]byte, bool) {
	start := c.pos
	var mac [6]byte
	for i := 0; i < 6; i++ {
		if i > 0 && !c.ConsumeChar(':') {
			c.pos = start
			return mac, false
		}
		c.TrimLeft()
		hex := c.ExtractUntil(isHex)
		if len(hex) == 0 || len(hex) > 2 {
			c.pos = start
			return mac, false
		}
		v, err := strconv.ParseUint(hex, 16, 8)
		if err != nil {
			c.pos = start
			return mac, false
		}
		mac[i] = byte(v)
	}
	return mac, true
}
