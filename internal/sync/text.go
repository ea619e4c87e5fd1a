package sync

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
	"unicode/utf8"
)

var crlfRuns = regexp.MustCompile(`(\r\n)+`)

// GenerateHash 文本的SHA-256哈希，作为记录主键
func GenerateHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// CleanText 丢弃无效的UTF-8字节序列
func CleanText(text string) string {
	if utf8.ValidString(text) {
		return text
	}
	return strings.ToValidUTF8(text, "")
}

// squeezeNewlines 连续的CRLF压缩为一个
func squeezeNewlines(text string) string {
	return crlfRuns.ReplaceAllString(text, "\r\n")
}
