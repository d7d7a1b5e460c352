package ber

import "fmt"

// Encode serializes a tag tree back to its X.690 wire form.
//
// A primitive tag is encoded from its Data verbatim, so a decoded tree
// round-trips byte-for-byte for definite-length input. Speculative children
// of a primitive BIT STRING are ignored; Data stays authoritative. A
// constructed definite-length tag's length is recomputed from its encoded
// children, so edited trees re-encode consistently. An indefinite-length
// tag is written with the 0x80 marker and relies on its end-of-contents
// child, which the decoder keeps in place.
func Encode(tag *Tag) ([]byte, error) {
	return appendTag(nil, tag)
}

func appendTag(buf []byte, tag *Tag) ([]byte, error) {
	if tag.Constructed {
		var content []byte
		var err error
		for _, child := range tag.Children {
			content, err = appendTag(content, child)
			if err != nil {
				return nil, err
			}
		}
		if tag.Length == LengthIndefinite {
			if len(tag.Children) == 0 || !tag.Children[len(tag.Children)-1].IsEOC() {
				return nil, fmt.Errorf("ber: indefinite-length tag %d lacks end-of-contents child", tag.Identifier)
			}
			buf = appendIdentifier(buf, tag)
			buf = append(buf, 0x80)
			return append(buf, content...), nil
		}
		buf = appendIdentifier(buf, tag)
		buf = appendLength(buf, int64(len(content)))
		return append(buf, content...), nil
	}

	if tag.Length == LengthIndefinite {
		return nil, fmt.Errorf("ber: primitive tag %d cannot use indefinite length", tag.Identifier)
	}
	buf = appendIdentifier(buf, tag)
	buf = appendLength(buf, int64(len(tag.Data)))
	return append(buf, tag.Data...), nil
}

// appendIdentifier writes the identifier octets: class and constructed bit,
// then the tag number in single- or base-128 multi-byte form.
func appendIdentifier(buf []byte, tag *Tag) []byte {
	b := byte(tag.Class) << 6
	if tag.Constructed {
		b |= 0x20
	}
	if tag.Identifier < 0x1F {
		return append(buf, b|byte(tag.Identifier))
	}

	buf = append(buf, b|0x1F)
	n := 0
	for v := tag.Identifier; v > 0; v >>= 7 {
		n++
	}
	for i := n - 1; i >= 0; i-- {
		c := byte(tag.Identifier>>(uint(i)*7)) & 0x7F
		if i != 0 {
			c |= 0x80
		}
		buf = append(buf, c)
	}
	return buf
}

// appendLength writes a definite length in short or long form.
func appendLength(buf []byte, length int64) []byte {
	if length < 0x80 {
		return append(buf, byte(length))
	}
	n := 0
	for l := length; l > 0; l >>= 8 {
		n++
	}
	buf = append(buf, 0x80|byte(n))
	for i := n - 1; i >= 0; i-- {
		buf = append(buf, byte(length>>(uint(i)*8)))
	}
	return buf
}
