// Package interfile reads and writes the text headers and raw data files
// surrounding the reconstruction core: scanner descriptions, projection and
// volume headers with their binary payloads, and reconstruction parameter
// files. The key syntax follows Interfile 3.3.
package interfile

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	fir "github.com/sixy6e/go-fir"
)

var ErrOpenFile = errors.New("Error Opening File")
var ErrCreateFile = errors.New("Error Creating File")
var ErrParse = errors.New("Error Parsing Key File")
var ErrShortRead = errors.New("Error Data File Too Short")
var ErrDataType = errors.New("Error Unrecognized Data Type")
var ErrByteOrder = errors.New("Error Unrecognized Byte Order")

type keyKind int

const (
	kindStart keyKind = iota
	kindStop
	kindValue
)

type keyEntry struct {
	keyword string
	kind    keyKind
	target  any
}

// KeyParser maps registered keywords onto variables. Keys are registered
// with pointers; supported targets are *string, *int, *float32, *float64,
// *[]int, *[]float32 and *[]float64. Lines look like
//
//	keyword := value
//	list keyword := {v1, v2, v3}
//
// Keywords are standardised before matching: space, tab, underscore and !
// fold into single spaces and case is ignored. ${NAME} references are
// replaced with environment variables. Lines starting with ; are comments.
type KeyParser struct {
	keys []keyEntry
}

// AddStartKey registers the keyword that begins parsing. Content before it
// is rejected.
func (kp *KeyParser) AddStartKey(keyword string) {
	kp.add(keyword, kindStart, nil)
}

// AddStopKey registers the keyword that ends parsing.
func (kp *KeyParser) AddStopKey(keyword string) {
	kp.add(keyword, kindStop, nil)
}

// AddKey registers a value keyword with its target pointer.
func (kp *KeyParser) AddKey(keyword string, target any) {
	switch target.(type) {
	case *string, *int, *float32, *float64, *[]int, *[]float32, *[]float64:
		kp.add(keyword, kindValue, target)
	default:
		panic(fmt.Sprintf("interfile: unsupported key target %T", target))
	}
}

func (kp *KeyParser) add(keyword string, kind keyKind, target any) {
	standardised := StandardiseKeyword(keyword)

	for i := range kp.keys {
		if kp.keys[i].keyword == standardised {
			log.Println("WARNING: keyword", keyword,
				"already registered for parsing; overwriting previous entry")
			kp.keys[i] = keyEntry{keyword: standardised, kind: kind, target: target}
			return
		}
	}

	kp.keys = append(kp.keys, keyEntry{keyword: standardised, kind: kind, target: target})
}

func (kp *KeyParser) find(keyword string) *keyEntry {
	for i := range kp.keys {
		if kp.keys[i].keyword == keyword {
			return &kp.keys[i]
		}
	}

	return nil
}

// Parse reads a key file, locally or from an object store.
func (kp *KeyParser) Parse(file_uri, config_uri string) error {
	stream, err := fir.OpenDataFile(file_uri, config_uri, false)
	if err != nil {
		return errors.Join(ErrOpenFile, err)
	}
	defer stream.Close()

	return kp.ParseReader(stream, file_uri)
}

// ParseReader reads a key file from a stream; name is used in messages.
func (kp *KeyParser) ParseReader(r io.Reader, name string) error {
	scanner := bufio.NewScanner(r)

	parsing := false
	sawStart := false

	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimLeft(line, " \t") == "" {
			continue
		}

		line = substituteEnvironmentVariables(line)

		keyword, rest := splitKeyword(line)
		standardised := StandardiseKeyword(keyword)

		entry := kp.find(standardised)
		if entry == nil {
			if standardised != "" && !strings.HasPrefix(strings.TrimLeft(line, " \t"), ";") {
				log.Println("WARNING: unrecognized keyword:", standardised)
			}
			continue
		}

		switch entry.kind {
		case kindStart:
			parsing = true
			sawStart = true
			continue
		case kindStop:
			parsing = false
			return nil
		}

		if !parsing {
			return errors.Join(
				ErrParse,
				fmt.Errorf("%s: data found before the start keyword", name))
		}

		if err := assignValue(entry.target, rest); err != nil {
			return errors.Join(
				ErrParse,
				fmt.Errorf("%s: keyword %q: %w", name, standardised, err))
		}
	}

	if err := scanner.Err(); err != nil {
		return errors.Join(ErrParse, err)
	}

	if !sawStart {
		return errors.Join(ErrParse, fmt.Errorf("%s: required start keyword not found", name))
	}

	return nil
}

// splitKeyword separates the keyword (before the first colon) from the
// value (after the first equals sign).
func splitKeyword(line string) (keyword, value string) {
	colon := strings.IndexByte(line, ':')
	if colon < 0 {
		return line, ""
	}

	keyword = line[:colon]

	equals := strings.IndexByte(line[colon:], '=')
	if equals < 0 {
		return keyword, ""
	}

	return keyword, strings.Trim(line[colon+equals+1:], " \t")
}

func substituteEnvironmentVariables(s string) string {
	for {
		start := strings.Index(s, "${")
		if start < 0 {
			return s
		}

		end := strings.IndexByte(s[start+2:], '}')
		if end < 0 {
			return s
		}

		name := s[start+2 : start+2+end]
		value, found := os.LookupEnv(name)
		if !found {
			log.Println("WARNING: environment variable", name,
				"not found; replaced by empty string on line:", s)
		}

		s = s[:start] + value + s[start+2+end+1:]
	}
}

// StandardiseKeyword normalises a keyword following Interfile 3.3: space,
// tab, underscore and ! are white space; white space is trimmed at both
// ends and collapsed to single spaces; case is ignored. An opening bracket
// directly after a non-space character gets a space before it.
func StandardiseKeyword(keyword string) string {
	const whiteSpace = " \t_!"

	start := strings.IndexFunc(keyword, func(r rune) bool {
		return !strings.ContainsRune(whiteSpace, r)
	})
	if start < 0 {
		return ""
	}

	end := strings.LastIndexFunc(keyword, func(r rune) bool {
		return !strings.ContainsRune(whiteSpace, r)
	})

	var b strings.Builder
	previousWasWhitespace := false
	for _, r := range keyword[start : end+1] {
		if strings.ContainsRune(whiteSpace, r) {
			if !previousWasWhitespace {
				b.WriteByte(' ')
				previousWasWhitespace = true
			}
			continue
		}

		if r == '[' && !previousWasWhitespace {
			b.WriteString(" [")
		} else {
			b.WriteRune(toLowerRune(r))
		}
		previousWasWhitespace = false
	}

	return b.String()
}

func toLowerRune(r rune) rune {
	if r >= 'A' && r <= 'Z' {
		return r + ('a' - 'A')
	}
	return r
}

func assignValue(target any, value string) error {
	if value == "" {
		// A keyword with no value leaves the target untouched
		return nil
	}

	switch ptr := target.(type) {
	case *string:
		*ptr = value
	case *int:
		parsed, err := strconv.Atoi(firstField(value))
		if err != nil {
			return err
		}
		*ptr = parsed
	case *float32:
		parsed, err := strconv.ParseFloat(firstField(value), 32)
		if err != nil {
			return err
		}
		*ptr = float32(parsed)
	case *float64:
		parsed, err := strconv.ParseFloat(firstField(value), 64)
		if err != nil {
			return err
		}
		*ptr = parsed
	case *[]int:
		items, err := listItems(value)
		if err != nil {
			return err
		}
		out := make([]int, len(items))
		for i, item := range items {
			parsed, err := strconv.Atoi(item)
			if err != nil {
				return err
			}
			out[i] = parsed
		}
		*ptr = out
	case *[]float32:
		items, err := listItems(value)
		if err != nil {
			return err
		}
		out := make([]float32, len(items))
		for i, item := range items {
			parsed, err := strconv.ParseFloat(item, 32)
			if err != nil {
				return err
			}
			out[i] = float32(parsed)
		}
		*ptr = out
	case *[]float64:
		items, err := listItems(value)
		if err != nil {
			return err
		}
		out := make([]float64, len(items))
		for i, item := range items {
			parsed, err := strconv.ParseFloat(item, 64)
			if err != nil {
				return err
			}
			out[i] = parsed
		}
		*ptr = out
	}

	return nil
}

func firstField(value string) string {
	fields := strings.Fields(value)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// listItems splits a {a, b, c} list into trimmed items. A bare value is a
// one-element list.
func listItems(value string) ([]string, error) {
	value = strings.Trim(value, " \t")
	if !strings.HasPrefix(value, "{") {
		return []string{value}, nil
	}

	closing := strings.IndexByte(value, '}')
	if closing < 0 {
		log.Println("WARNING: while reading a list, expected closing } but found end of line")
		closing = len(value)
	}

	inner := strings.Trim(value[1:closing], " \t")
	if inner == "" {
		return nil, nil
	}

	parts := strings.Split(inner, ",")
	items := make([]string, len(parts))
	for i, part := range parts {
		items[i] = strings.Trim(part, " \t")
	}

	return items, nil
}
