// Package ber provides BER/DER (ITU-T X.690) decoding of ASN.1 data into a
// tree of typed tags, and re-encoding of such trees back to the wire form.
package ber

import "errors"

// Decode limits applied when Options leaves them zero.
const (
	DefaultMaxDepth   = 64
	DefaultMaxPayload = 64 * 1024 * 1024
)

// Options controls a decode pass.
type Options struct {
	// SingleNode decodes only the header of the tag at the current
	// position, without consuming its content. Used for peeking.
	SingleNode bool

	// ExpandEmbedded enables speculative re-decoding of BIT STRING
	// payloads as nested ASN.1 structures.
	ExpandEmbedded bool

	// MaxDepth caps the nesting depth. Zero means DefaultMaxDepth.
	MaxDepth int

	// MaxPayload caps the declared length of any single primitive
	// payload. Zero means DefaultMaxPayload.
	MaxPayload int64
}

// Decode reads one complete tag, including nested content, from src.
//
// The returned tree is built in a single forward pass: a constructed tag's
// children are decoded recursively and appended in wire order, a primitive
// tag's payload is read verbatim into Data. An indefinite-length tag is
// terminated by its end-of-contents child, which is kept as the final
// element of Children. Any malformed input aborts the whole decode with an
// error wrapping one of the package's sentinel errors; the one exception is
// the speculative BIT STRING expansion, whose failures are discarded.
func Decode(src Source, opts Options) (*Tag, error) {
	d := &decoder{src: src, opts: opts}
	if d.opts.MaxDepth <= 0 {
		d.opts.MaxDepth = DefaultMaxDepth
	}
	if d.opts.MaxPayload <= 0 {
		d.opts.MaxPayload = DefaultMaxPayload
	}
	return d.decodeTag(0)
}

// DecodeBytes decodes one complete tag from an in-memory buffer.
func DecodeBytes(data []byte, opts Options) (*Tag, error) {
	return Decode(NewBytesSource(data), opts)
}

// decoder holds the state of one decode pass over a single source.
type decoder struct {
	src  Source
	opts Options
}

// decodeTag reads one tag at the source's current position. depth is the
// current nesting level, guarded against opts.MaxDepth.
func (d *decoder) decodeTag(depth int) (*Tag, error) {
	start := d.src.Offset()
	if depth >= d.opts.MaxDepth {
		return nil, decodeError(ErrDepthExceeded, start, "nesting deeper than %d", d.opts.MaxDepth)
	}

	identifier, class, constructed, err := d.readIdentifier()
	if err != nil {
		return nil, err
	}

	length, err := d.readLength()
	if err != nil {
		return nil, err
	}

	tag := &Tag{
		StartOffset: start,
		Identifier:  identifier,
		Class:       class,
		Constructed: constructed,
		Length:      length,
		headerSize:  d.src.Offset() - start,
	}

	if !constructed {
		if length == LengthIndefinite {
			// X.690 8.1.3.2: only constructed encodings may use the
			// indefinite form.
			return nil, decodeError(ErrInvalidEncoding, start, "primitive tag %d with indefinite length", identifier)
		}
		if err := d.readPayload(tag); err != nil {
			return nil, err
		}
		return tag, nil
	}

	if d.opts.SingleNode {
		return tag, nil
	}

	if length == LengthIndefinite {
		for {
			child, err := d.decodeTag(depth + 1)
			if err != nil {
				return nil, err
			}
			tag.Children = append(tag.Children, child)
			if child.IsEOC() {
				return tag, nil
			}
		}
	}

	end := start + tag.headerSize + length
	for d.src.Offset() < end {
		child, err := d.decodeTag(depth + 1)
		if err != nil {
			return nil, err
		}
		tag.Children = append(tag.Children, child)
	}
	if d.src.Offset() != end {
		return nil, decodeError(ErrInvalidEncoding, start, "child tags overrun parent extent %d", end)
	}
	return tag, nil
}

// readIdentifier parses the identifier octets: class, constructed flag and
// tag number in single- or multi-byte form.
func (d *decoder) readIdentifier() (identifier uint64, class Class, constructed bool, err error) {
	offset := d.src.Offset()
	b, err := d.src.ReadByte()
	if err != nil {
		return 0, 0, false, decodeError(ErrTruncatedInput, offset, "missing identifier byte")
	}

	class = Class(b >> 6)
	constructed = b&0x20 != 0

	if b&0x1F != 0x1F {
		return uint64(b & 0x1F), class, constructed, nil
	}

	// Multi-byte form: 7 bits per continuation byte, high bit set on all
	// but the last.
	for {
		offset = d.src.Offset()
		b, err = d.src.ReadByte()
		if err != nil {
			return 0, 0, false, decodeError(ErrTruncatedInput, offset, "missing identifier continuation byte")
		}
		if identifier > (1<<57)-1 {
			return 0, 0, false, decodeError(ErrInvalidIdentifier, offset, "tag number overflows 64 bits")
		}
		identifier = identifier<<7 | uint64(b&0x7F)
		if identifier == 0 {
			return 0, 0, false, decodeError(ErrInvalidIdentifier, offset, "multi-byte tag number is zero")
		}
		if b&0x80 == 0 {
			return identifier, class, constructed, nil
		}
	}
}

// readLength parses the length octets: short form, long form, or the
// indefinite-length marker.
func (d *decoder) readLength() (int64, error) {
	offset := d.src.Offset()
	b, err := d.src.ReadByte()
	if err != nil {
		return 0, decodeError(ErrTruncatedInput, offset, "missing length byte")
	}

	if b&0x80 == 0 {
		return int64(b), nil
	}
	if b == 0x80 {
		return LengthIndefinite, nil
	}

	n := int(b & 0x7F)
	if n > 8 {
		return 0, decodeError(ErrUnsupportedLength, offset, "%d length bytes", n)
	}

	var length uint64
	for i := 0; i < n; i++ {
		offset = d.src.Offset()
		b, err = d.src.ReadByte()
		if err != nil {
			return 0, decodeError(ErrTruncatedInput, offset, "missing length byte %d of %d", i+1, n)
		}
		length = length<<8 | uint64(b)
	}
	if length > 1<<62 {
		return 0, decodeError(ErrUnsupportedLength, offset, "length %d overflows", length)
	}
	return int64(length), nil
}

// readPayload reads a primitive tag's content into Data and, when enabled,
// attempts the speculative BIT STRING expansion.
func (d *decoder) readPayload(tag *Tag) error {
	if tag.Length > d.opts.MaxPayload {
		return decodeError(ErrPayloadTooLarge, tag.StartOffset, "declared length %d exceeds limit %d", tag.Length, d.opts.MaxPayload)
	}
	data := make([]byte, tag.Length)
	offset := d.src.Offset()
	if err := d.src.ReadFull(data); err != nil {
		return decodeError(ErrTruncatedInput, offset, "payload short of %d bytes", tag.Length)
	}
	tag.Data = data

	if d.opts.ExpandEmbedded && tag.Class == ClassUniversal && tag.Identifier == TagBitString && len(data) > 1 {
		// The first content byte of a BIT STRING counts unused trailing
		// bits; the embedded structure, if any, starts after it.
		if embedded, ok := d.tryDecodeEmbedded(data[1:]); ok {
			tag.Children = append(tag.Children, embedded)
		}
	}
	return nil
}

// tryDecodeEmbedded attempts to decode data as a complete nested ASN.1
// structure. Failure is a normal outcome, reported through the boolean, and
// never disturbs the outer decode: the attempt runs on an isolated source
// over already-read bytes.
func (d *decoder) tryDecodeEmbedded(data []byte) (*Tag, bool) {
	sub := NewBytesSource(data)
	tag, err := Decode(sub, Options{
		ExpandEmbedded: true,
		MaxDepth:       d.opts.MaxDepth,
		MaxPayload:     d.opts.MaxPayload,
	})
	if err != nil || sub.Remaining() != 0 {
		return nil, false
	}
	if tag.Describe() == "" {
		return nil, false
	}
	return tag, true
}

// DecodeAll decodes consecutive top-level tags from src until it is
// exhausted. End of input exactly on a tag boundary ends the sequence
// cleanly; any other error aborts it.
func DecodeAll(src Source, opts Options) ([]*Tag, error) {
	var tags []*Tag
	for {
		before := src.Offset()
		tag, err := Decode(src, opts)
		if err != nil {
			if len(tags) > 0 && errors.Is(err, ErrTruncatedInput) && src.Offset() == before {
				return tags, nil
			}
			return nil, err
		}
		tags = append(tags, tag)
	}
}
