package interfile

import (
	"fmt"
	"io"
	"strconv"
)

// WriteKey emits a keyword with no value.
func WriteKey(w io.Writer, keyName string) {
	fmt.Fprintf(w, "%s :=\n", keyName)
}

// WriteKeyValue emits a keyword and its value. Floats are written with a
// fixed precision of seven digits, lists in braces.
func WriteKeyValue(w io.Writer, keyName string, keyValue any) {
	switch v := keyValue.(type) {
	case float64:
		fmt.Fprintf(w, "%s := %s\n", keyName, strconv.FormatFloat(v, 'f', 7, 64))
	case float32:
		fmt.Fprintf(w, "%s := %s\n", keyName, strconv.FormatFloat(float64(v), 'f', 7, 32))
	case []int:
		writeList(w, keyName, v)
	case []float32:
		writeList(w, keyName, v)
	case []float64:
		writeList(w, keyName, v)
	default:
		fmt.Fprintf(w, "%s := %v\n", keyName, v)
	}
}

func writeList[T any](w io.Writer, keyName string, values []T) {
	fmt.Fprintf(w, "%s := {", keyName)
	for i, value := range values {
		if i > 0 {
			fmt.Fprint(w, ", ")
		}
		fmt.Fprintf(w, "%v", value)
	}
	fmt.Fprint(w, "}\n")
}
