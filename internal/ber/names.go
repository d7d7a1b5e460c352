package ber

// UnknownTypeName is returned for tag numbers outside the universal
// assignment table and for non-universal classes.
const UnknownTypeName = "UNKNOWN"

// universalTypeNames maps universal tag numbers 0-30 to their mnemonics.
var universalTypeNames = [...]string{
	0:  "EOC",
	1:  "BOOLEAN",
	2:  "INTEGER",
	3:  "BIT STRING",
	4:  "OCTET STRING",
	5:  "NULL",
	6:  "OBJECT IDENTIFIER",
	7:  "OBJECT DESCRIPTOR",
	8:  "EXTERNAL",
	9:  "REAL",
	10: "ENUMERATED",
	11: "EMBEDDED PDV",
	12: "UTF8 STRING",
	13: "RELATIVE OID",
	14: "TIME",
	15: "RESERVED",
	16: "SEQUENCE",
	17: "SET",
	18: "NUMERIC STRING",
	19: "PRINTABLE STRING",
	20: "T61 STRING",
	21: "VIDEOTEX STRING",
	22: "IA5 STRING",
	23: "UTC TIME",
	24: "GENERALIZED TIME",
	25: "GRAPHIC STRING",
	26: "VISIBLE STRING",
	27: "GENERAL STRING",
	28: "UNIVERSAL STRING",
	29: "CHARACTER STRING",
	30: "BMP STRING",
}

// UniversalTypeName returns the mnemonic for a universal tag number, or
// UnknownTypeName for values outside the assignment table.
func UniversalTypeName(identifier uint64) string {
	if identifier < uint64(len(universalTypeNames)) {
		return universalTypeNames[identifier]
	}
	return UnknownTypeName
}
