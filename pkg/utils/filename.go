package utils

import (
	"net/url"
	"path"
	"regexp"
	"strings"
	"unicode/utf8"
)

// unsafeNameRun matches runs of bytes that are not allowed in file names on common filesystems
var unsafeNameRun = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1F]+`)

const (
	maxNameStem   = 80
	maxNameExt    = 8
	nameHashChars = 10
)

// URLFilename names the local copy of u
// The readable host and path are followed by a short digest of the whole URL,
// so URLs differing only in query or in a truncated tail get distinct names.
// The path's extension stays last.
func URLFilename(u *url.URL) string {
	ext := path.Ext(u.Path)
	if len(ext) > maxNameExt || unsafeNameRun.MatchString(ext) {
		ext = ""
	}
	stem := fileStem(strings.TrimSuffix(u.Host+u.Path, ext))
	return stem + "-" + CalculateStringSHA256(u.String())[:nameHashChars] + ext
}

// fileStem replaces unsafe runs with one underscore and bounds the length
func fileStem(s string) string {
	s = strings.Trim(unsafeNameRun.ReplaceAllString(s, "_"), "_. ")
	if len(s) > maxNameStem {
		cut := maxNameStem
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = strings.TrimRight(s[:cut], "_. ")
	}
	if s == "" {
		return "resource"
	}
	return s
}
