// Package tuple packs a record's columns — each an arbitrary byte slice —
// into the single flat byte sequence that heap files and the catalog
// actually store, and unpacks them again. Columns are concatenated via
// memcmpable encoding, which is what lets Decode recover exactly where one
// column ends and the next begins without storing a separate length or
// offset table alongside the data.
package tuple

import (
	"fmt"

	"github.com/minirel-go/minirel/encoding/memcmpable"
)

// Encode packs elems (one byte slice per column) into a single record,
// appended to bytes.
func Encode(elems [][]byte, bytes *[]byte) {
	for _, elem := range elems {
		memcmpable.Encode(elem, bytes)
	}
}

// Decode unpacks a record produced by Encode back into its columns.
func Decode(bytes []byte, elems *[][]byte) {
	rest := bytes
	for len(rest) > 0 {
		var elem []byte
		memcmpable.Decode(&rest, &elem)
		*elems = append(*elems, elem)
	}
}

// Pretty formats a tuple for human-readable display.
// A column that decodes as UTF-8 without a U+FFFD rune is shown quoted and
// followed by its hex bytes; any other column is shown as hex only.
func Pretty(elems [][]byte) string {
	result := "Tuple("
	for i, elem := range elems {
		if i > 0 {
			result += ", "
		}
		if str := string(elem); isValidUTF8(str) {
			result += fmt.Sprintf("%q %x", str, elem)
		} else {
			result += fmt.Sprintf("%x", elem)
		}
	}
	result += ")"
	return result
}

func isValidUTF8(s string) bool {
	for _, r := range s {
		if r == 0xFFFD {
			return false
		}
	}
	return true
}
