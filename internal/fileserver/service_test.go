package fileserver

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContentDisposition(t *testing.T) {
	// ASCII-имя: legacy filename= плюс filename*=.
	d := ContentDisposition("report.pdf")
	assert.Contains(t, d, `filename="report.pdf"`)
	assert.Contains(t, d, "filename*=UTF-8''report.pdf")

	// Кириллица: только filename*= (legacy вариант исказил бы имя).
	d = ContentDisposition("отчёт.pdf")
	assert.NotContains(t, d, `filename="`)
	assert.Contains(t, d, "filename*=UTF-8''")

	// "+" из URL превращается в пробел.
	d = ContentDisposition("annual+report.txt")
	assert.Contains(t, d, "annual%20report.txt")

	assert.Equal(t, "attachment", ContentDisposition("  "))
}

func TestSafeFilename(t *testing.T) {
	assert.Equal(t, "report.pdf", safeFilename("report.pdf"))
	assert.Equal(t, "отчёт.pdf", safeFilename("отчёт.pdf"))
	assert.Equal(t, "ab.txt", safeFilename("a\r\nb\".txt"))
	assert.Equal(t, "..etcpasswd", safeFilename("../etc/passwd"))
	assert.Equal(t, "", safeFilename("   "))
}

func TestMatchMagic(t *testing.T) {
	assert.True(t, matchMagic(".png", []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0}))
	assert.False(t, matchMagic(".png", []byte("not a png header")))
	assert.True(t, matchMagic(".pdf", []byte("%PDF-1.7 ...")))
	assert.False(t, matchMagic(".jpg", []byte{0x00, 0x01, 0x02}))
	// Текстовые форматы без магии всегда проходят.
	assert.True(t, matchMagic(".txt", []byte("hello")))
	// Неизвестное расширение не блокируется по магии.
	assert.True(t, matchMagic(".bin", []byte("anything")))
}

func TestContentTypeByExt(t *testing.T) {
	assert.Equal(t, "application/pdf", contentTypeByExt(".pdf"))
	assert.Equal(t, "image/png", contentTypeByExt(".PNG"))
	assert.Equal(t, "application/octet-stream", contentTypeByExt(".unknown"))
}

func TestBlockedExt(t *testing.T) {
	for _, ext := range []string{".exe", ".sh", ".bat"} {
		_, blocked := BlockedExt[ext]
		assert.True(t, blocked, "%s должен блокироваться", ext)
	}
	_, blocked := BlockedExt[".pdf"]
	assert.False(t, blocked)
}
