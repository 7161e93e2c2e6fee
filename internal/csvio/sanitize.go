package csvio

import (
	"unicode/utf8"

	"golang.org/x/text/transform"
)

// sanitizer passes valid UTF-8 through and turns every byte that does not
// start a valid sequence into a single space, resuming at the next byte.
type sanitizer struct{ transform.NopResetter }

// Sanitizer returns the transformer used on both input and output files.
func Sanitizer() transform.Transformer { return sanitizer{} }

func (sanitizer) Transform(dst, src []byte, atEOF bool) (nDst, nSrc int, err error) {
	for nSrc < len(src) {
		c := src[nSrc]
		if c < utf8.RuneSelf {
			if nDst >= len(dst) {
				return nDst, nSrc, transform.ErrShortDst
			}
			dst[nDst] = c
			nDst++
			nSrc++
			continue
		}
		r, size := utf8.DecodeRune(src[nSrc:])
		if r == utf8.RuneError && size == 1 {
			// a truncated sequence may complete with the next read
			if !atEOF && !utf8.FullRune(src[nSrc:]) {
				return nDst, nSrc, transform.ErrShortSrc
			}
			if nDst >= len(dst) {
				return nDst, nSrc, transform.ErrShortDst
			}
			dst[nDst] = ' '
			nDst++
			nSrc++
			continue
		}
		if nDst+size > len(dst) {
			return nDst, nSrc, transform.ErrShortDst
		}
		copy(dst[nDst:], src[nSrc:nSrc+size])
		nDst += size
		nSrc += size
	}
	return nDst, nSrc, nil
}

// SanitizeString applies the sanitizer to s.
func SanitizeString(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	out, _, err := transform.String(Sanitizer(), s)
	if err != nil {
		return s
	}
	return out
}
