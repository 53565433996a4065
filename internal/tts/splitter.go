package tts

import (
	"strings"
	"unicode/utf8"
)

const sentenceEnds = "。！？!?．\n"

// SplitSentences 按句子边界切分, 每块不超过maxChars个字符; 单句过长时再按逗号或字符数切分
func SplitSentences(text string, maxChars int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if maxChars <= 0 || utf8.RuneCountInString(text) <= maxChars {
		return []string{text}
	}

	var chunks []string
	var cur strings.Builder
	curLen := 0
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			chunks = append(chunks, s)
		}
		cur.Reset()
		curLen = 0
	}
	for _, sentence := range sentences(text) {
		n := utf8.RuneCountInString(sentence)
		if n > maxChars {
			flush()
			chunks = append(chunks, splitLong(sentence, maxChars)...)
			continue
		}
		if curLen+n > maxChars {
			flush()
		}
		cur.WriteString(sentence)
		curLen += n
	}
	flush()
	return chunks
}

// sentences 切分后每句保留结尾的标点
func sentences(text string) []string {
	var out []string
	start := 0
	for i, r := range text {
		if strings.ContainsRune(sentenceEnds, r) || (r == '.' && isSentenceDot(text, i)) {
			end := i + utf8.RuneLen(r)
			out = append(out, text[start:end])
			start = end
		}
	}
	if start < len(text) {
		out = append(out, text[start:])
	}
	return out
}

// isSentenceDot 英文句号后面是空白或结尾
func isSentenceDot(text string, i int) bool {
	next := i + 1
	return next >= len(text) || text[next] == ' ' || text[next] == '\n'
}

func splitLong(sentence string, maxChars int) []string {
	var out []string
	runes := []rune(sentence)
	for len(runes) > maxChars {
		cut := maxChars
		for j := maxChars - 1; j > maxChars/2; j-- {
			if strings.ContainsRune("，,、；;：: ", runes[j]) {
				cut = j + 1
				break
			}
		}
		if s := strings.TrimSpace(string(runes[:cut])); s != "" {
			out = append(out, s)
		}
		runes = runes[cut:]
	}
	if s := strings.TrimSpace(string(runes)); s != "" {
		out = append(out, s)
	}
	return out
}
