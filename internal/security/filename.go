package security

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// maxFilenameBytes は保存用ファイル名の最大長（UUIDプレフィックスを除く）。
const maxFilenameBytes = 200

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// windowsDeviceNames はWindowsで予約されたファイル名。
var windowsDeviceNames = map[string]bool{
	"CON": true, "AUX": true, "COM1": true, "COM2": true, "COM3": true, "COM4": true,
	"LPT1": true, "LPT2": true, "LPT3": true, "PRN": true, "NUL": true,
}

// SanitizeFilename はクライアントから受け取ったファイル名を保存に安全な形へ変換する。
//
// 互換分解（NFKD）した上でASCII以外の文字を落とし、パス区切りは空白として扱う。
// 空白の連続は "_" 1文字にまとめ、英数字と "_" "." "-" 以外を除去した後、
// 先頭と末尾の "." "_" を取り除く。結果が空文字列になることがある。
func SanitizeFilename(name string) string {
	decomposed := norm.NFKD.String(name)

	var b strings.Builder
	for _, r := range decomposed {
		switch {
		case r == '/' || r == '\\':
			b.WriteRune(' ')
		case r < unicode.MaxASCII:
			b.WriteRune(r)
		}
	}

	s := strings.Join(strings.Fields(b.String()), "_")
	s = unsafeFilenameChars.ReplaceAllString(s, "")
	s = strings.Trim(s, "._")

	if s != "" {
		base, _, _ := strings.Cut(s, ".")
		if windowsDeviceNames[strings.ToUpper(base)] {
			s = "_" + s
		}
	}

	if len(s) > maxFilenameBytes {
		s = s[len(s)-maxFilenameBytes:]
		s = strings.TrimLeft(s, "._")
	}
	return s
}
