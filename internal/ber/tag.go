package ber

import (
	"fmt"
	"strings"
)

// Class identifies the tag class encoded in the top two bits of the
// identifier octet.
type Class uint8

// Tag classes per X.690.
const (
	ClassUniversal       Class = 0
	ClassApplication     Class = 1
	ClassContextSpecific Class = 2
	ClassPrivate         Class = 3
)

// String returns the class name.
func (c Class) String() string {
	switch c {
	case ClassUniversal:
		return "universal"
	case ClassApplication:
		return "application"
	case ClassContextSpecific:
		return "context"
	case ClassPrivate:
		return "private"
	default:
		return fmt.Sprintf("class(%d)", uint8(c))
	}
}

// LengthIndefinite is the sentinel Length of a tag encoded with the
// indefinite-length form, terminated by an end-of-contents marker.
const LengthIndefinite int64 = -1

// Wire constants fixed by X.690.
const (
	// TagEndOfContents is the identifier of the end-of-contents marker
	// closing an indefinite-length constructed tag.
	TagEndOfContents = 0

	// TagBitString is the universal tag number of BIT STRING, whose
	// payload is speculatively re-decoded as nested ASN.1.
	TagBitString = 3
)

// Tag is one decoded tag-length-value unit. A constructed tag owns its
// Children; a primitive tag owns its Data. A primitive BIT STRING may carry
// both: Data remains authoritative and Children holds the speculative
// interpretation of the payload (see Decode).
//
// All fields are populated during a single decode pass and must be treated
// as immutable afterwards.
type Tag struct {
	// StartOffset is the source offset at which this tag's header began.
	StartOffset int64 `json:"start_offset"`

	// Identifier is the tag number.
	Identifier uint64 `json:"identifier"`

	// Class is the tag class from the identifier octet.
	Class Class `json:"class"`

	// Constructed reports whether the content is a sequence of nested tags.
	Constructed bool `json:"constructed"`

	// Length is the declared content length in bytes, or LengthIndefinite.
	Length int64 `json:"length"`

	// Data holds the raw payload of a primitive tag, byte for byte as read
	// from the wire.
	Data []byte `json:"data,omitempty"`

	// Children holds nested tags in wire order. For an indefinite-length
	// tag the terminating end-of-contents marker is the final child.
	Children []*Tag `json:"children,omitempty"`

	// headerSize is the wire size of the identifier and length fields as
	// actually read, which for legal BER may exceed the minimal encoding.
	// Zero on hand-built tags; HeaderSize then computes the minimal form.
	headerSize int64
}

// IsEOC reports whether the tag is the canonical end-of-contents marker.
func (t *Tag) IsEOC() bool {
	return t.Identifier == TagEndOfContents && t.Length == 0 &&
		t.Class == ClassUniversal && !t.Constructed
}

// TypeName returns the universal type mnemonic for the tag, or "UNKNOWN"
// for non-universal classes and unassigned tag numbers.
func (t *Tag) TypeName() string {
	if t.Class != ClassUniversal {
		return UnknownTypeName
	}
	return UniversalTypeName(t.Identifier)
}

// HeaderSize returns the number of bytes the tag's identifier and length
// fields occupy on the wire. For decoded tags this is the size actually
// read, covering non-minimal long-form lengths; for hand-built tags it is
// the size of the minimal encoding.
func (t *Tag) HeaderSize() int64 {
	if t.headerSize > 0 {
		return t.headerSize
	}
	n := int64(1)
	if t.Identifier >= 0x1F {
		for v := t.Identifier; v > 0; v >>= 7 {
			n++
		}
	}
	n++
	if t.Length >= 0x80 {
		for l := t.Length; l > 0; l >>= 8 {
			n++
		}
	}
	return n
}

// EndOffset returns the offset one past the tag's content for definite
// lengths. For indefinite lengths it returns the start offset of the
// content; callers must walk Children to find the true extent.
func (t *Tag) EndOffset() int64 {
	if t.Length == LengthIndefinite {
		return t.StartOffset + t.HeaderSize()
	}
	return t.StartOffset + t.HeaderSize() + t.Length
}

// NodeCount returns the number of tags in the subtree rooted at t,
// including t itself.
func (t *Tag) NodeCount() int {
	n := 1
	for _, c := range t.Children {
		n += c.NodeCount()
	}
	return n
}

// MaxDepth returns the depth of the subtree rooted at t. A leaf has
// depth 1.
func (t *Tag) MaxDepth() int {
	depth := 0
	for _, c := range t.Children {
		if d := c.MaxDepth(); d > depth {
			depth = d
		}
	}
	return depth + 1
}

// Walk visits t and every tag below it in depth-first wire order. If fn
// returns false the subtree below the current tag is skipped.
func (t *Tag) Walk(fn func(tag *Tag, depth int) bool) {
	t.walk(fn, 0)
}

func (t *Tag) walk(fn func(tag *Tag, depth int) bool, depth int) {
	if !fn(t, depth) {
		return
	}
	for _, c := range t.Children {
		c.walk(fn, depth+1)
	}
}

// Describe returns a one-line human-readable description of the tag:
// offset, class, type, length, and a short payload preview.
func (t *Tag) Describe() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%d] ", t.StartOffset)
	if t.Class == ClassUniversal {
		b.WriteString(t.TypeName())
	} else {
		fmt.Fprintf(&b, "%s %d", t.Class, t.Identifier)
	}
	if t.Constructed {
		b.WriteString(" constructed")
	}
	if t.Length == LengthIndefinite {
		b.WriteString(" len=indefinite")
	} else {
		fmt.Fprintf(&b, " len=%d", t.Length)
	}
	if len(t.Children) > 0 {
		fmt.Fprintf(&b, " children=%d", len(t.Children))
	}
	if !t.Constructed && len(t.Data) > 0 {
		preview := t.Data
		truncated := false
		if len(preview) > 16 {
			preview = preview[:16]
			truncated = true
		}
		fmt.Fprintf(&b, " data=%x", preview)
		if truncated {
			b.WriteString("...")
		}
	}
	return b.String()
}
