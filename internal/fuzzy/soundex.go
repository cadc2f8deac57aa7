package fuzzy

import "strings"

// soundexCodes maps consonants to their American Soundex digit.
var soundexCodes = map[byte]byte{
	'B': '1', 'F': '1', 'P': '1', 'V': '1',
	'C': '2', 'G': '2', 'J': '2', 'K': '2', 'Q': '2', 'S': '2', 'X': '2', 'Z': '2',
	'D': '3', 'T': '3',
	'L': '4',
	'M': '5', 'N': '5',
	'R': '6',
}

// Soundex returns the four character American Soundex code for a name.
// Non-letter characters are ignored; an empty input yields an empty code.
func Soundex(name string) string {
	name = strings.ToUpper(strings.TrimSpace(name))

	var letters []byte
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c >= 'A' && c <= 'Z' {
			letters = append(letters, c)
		}
	}
	if len(letters) == 0 {
		return ""
	}

	code := []byte{letters[0]}
	lastDigit := soundexCodes[letters[0]]

	for _, c := range letters[1:] {
		digit, ok := soundexCodes[c]
		if !ok {
			// H and W are transparent: they do not reset the run of
			// equal codes. Vowels do.
			if c != 'H' && c != 'W' {
				lastDigit = 0
			}
			continue
		}
		if digit != lastDigit {
			code = append(code, digit)
			if len(code) == 4 {
				break
			}
		}
		lastDigit = digit
	}

	for len(code) < 4 {
		code = append(code, '0')
	}
	return string(code)
}
