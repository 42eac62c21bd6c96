package fileserver

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/google/uuid"
)

// Блокируем только опасные расширения (исполняемые/скрипты). Остальные — разрешены.
var BlockedExt = map[string]bool{
	".exe": true, ".sh": true, ".js": true, ".bat": true, ".cmd": true,
	".php": true, ".py": true, ".rb": true,
}

var (
	ErrBlockedType   = errors.New("file type not allowed")
	ErrMagicMismatch = errors.New("file content does not match type")
	ErrNotFound      = errors.New("file not found")
)

// StoredFile — результат сохранения файла на диск.
type StoredFile struct {
	StoredName  string // имя на диске (uuid + расширение)
	DisplayName string // очищенное исходное имя для показа и скачивания
	Size        int64
	ContentType string
}

// Service хранит файлы документов на диске в сжатом виде.
type Service struct {
	UploadDir     string
	MaxUploadSize int64
}

func New(uploadDir string, maxUploadSize int64) *Service {
	return &Service{UploadDir: uploadDir, MaxUploadSize: maxUploadSize}
}

// Store сохраняет файл из multipart-формы. Расширение проверяется по
// чёрному списку, содержимое — по сигнатуре (magic bytes). Файл хранится
// сжатым (.gz) для экономии места.
func (s *Service) Store(ctx context.Context, file multipart.File, header *multipart.FileHeader) (*StoredFile, error) {
	// В ряде клиентов/прокси пробел в имени кодируется как "+"; нормализуем.
	rawFilename := strings.ReplaceAll(header.Filename, "+", " ")
	ext := strings.ToLower(filepath.Ext(rawFilename))
	if BlockedExt[ext] {
		return nil, ErrBlockedType
	}

	head := make([]byte, 512)
	n, _ := io.ReadAtLeast(file, head, len(head))
	head = head[:n]
	if !matchMagic(ext, head) {
		return nil, ErrMagicMismatch
	}

	newName := uuid.New().String() + ext
	if err := os.MkdirAll(s.UploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}

	dstPath := filepath.Join(s.UploadDir, newName+".gz")
	dst, err := os.Create(dstPath)
	if err != nil {
		return nil, fmt.Errorf("create file: %w", err)
	}
	gz := gzip.NewWriter(dst)
	fail := func(err error) (*StoredFile, error) {
		gz.Close()
		dst.Close()
		os.Remove(dstPath)
		return nil, err
	}
	if _, err := gz.Write(head); err != nil {
		return fail(fmt.Errorf("write: %w", err))
	}
	if err := copyWithContext(ctx, gz, file); err != nil {
		return fail(err)
	}
	if err := gz.Close(); err != nil {
		return fail(fmt.Errorf("close gzip: %w", err))
	}
	if err := dst.Close(); err != nil {
		os.Remove(dstPath)
		return nil, fmt.Errorf("close file: %w", err)
	}

	// Имя для отображения: только базовая часть без пути, безопасные символы;
	// иначе — сгенерированное.
	displayName := strings.TrimSpace(filepath.Base(rawFilename))
	if displayName == "" || safeFilename(displayName) == "" {
		displayName = newName
	} else {
		displayName = safeFilename(displayName)
	}

	return &StoredFile{
		StoredName:  newName,
		DisplayName: displayName,
		Size:        header.Size,
		ContentType: contentTypeByExt(ext),
	}, nil
}

// Open возвращает поток содержимого файла (разархивирует при отдаче).
// Вызывающий обязан закрыть reader.
func (s *Service) Open(storedName string) (io.ReadCloser, error) {
	storedName = filepath.Base(storedName)
	gzPath := filepath.Join(s.UploadDir, storedName+".gz")
	plainPath := filepath.Join(s.UploadDir, storedName)

	// Сначала сжатый .gz, иначе — обычный файл (обратная совместимость).
	if f, err := os.Open(gzPath); err == nil {
		gz, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("read gzip: %w", err)
		}
		return &gzipReadCloser{gz: gz, f: f}, nil
	}
	if f, err := os.Open(plainPath); err == nil {
		return f, nil
	}
	return nil, ErrNotFound
}

// Remove удаляет файл с диска. Отсутствующий файл не считается ошибкой.
func (s *Service) Remove(storedName string) error {
	storedName = filepath.Base(storedName)
	gzErr := os.Remove(filepath.Join(s.UploadDir, storedName+".gz"))
	plainErr := os.Remove(filepath.Join(s.UploadDir, storedName))
	if gzErr != nil && !os.IsNotExist(gzErr) {
		return gzErr
	}
	if plainErr != nil && !os.IsNotExist(plainErr) {
		return plainErr
	}
	return nil
}

// ContentType возвращает MIME-тип по расширению хранимого имени.
func (s *Service) ContentType(storedName string) string {
	return contentTypeByExt(filepath.Ext(storedName))
}

// ContentDisposition строит заголовок скачивания с исходным именем (UTF-8).
func ContentDisposition(origName string) string {
	// В URL пробел может приходить как "+"; нормализуем для сохранения имени (UTF-8).
	origName = strings.TrimSpace(strings.ReplaceAll(origName, "+", " "))
	safe := safeFilename(origName)
	if safe == "" {
		return "attachment"
	}
	// PathEscape, не QueryEscape: пробел должен стать %20, а не "+".
	disp := "attachment; filename*=UTF-8''" + url.PathEscape(safe)
	// Legacy filename= с ASCII искажает кириллицу (подчёркивания) — добавляем
	// его только когда имя целиком ASCII.
	if ascii := asciiFallbackFilename(safe); ascii != "" && ascii == safe {
		disp = "attachment; filename=\"" + ascii + "\"; " + disp
	}
	return disp
}

type gzipReadCloser struct {
	gz *gzip.Reader
	f  *os.File
}

func (g *gzipReadCloser) Read(p []byte) (int, error) { return g.gz.Read(p) }

func (g *gzipReadCloser) Close() error {
	gzErr := g.gz.Close()
	fErr := g.f.Close()
	if gzErr != nil {
		return gzErr
	}
	return fErr
}

func matchMagic(ext string, head []byte) bool {
	switch ext {
	case ".jpg", ".jpeg":
		return len(head) >= 3 && head[0] == 0xFF && head[1] == 0xD8 && head[2] == 0xFF
	case ".png":
		return len(head) >= 8 && bytes.Equal(head[:8], []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A})
	case ".gif":
		return len(head) >= 6 && (bytes.Equal(head[:6], []byte("GIF87a")) || bytes.Equal(head[:6], []byte("GIF89a")))
	case ".webp":
		return len(head) >= 12 && bytes.Equal(head[8:12], []byte("WEBP"))
	case ".pdf":
		return len(head) >= 5 && bytes.Equal(head[:5], []byte("%PDF-"))
	case ".doc", ".xls", ".ppt":
		return len(head) >= 4 && head[0] == 0xD0 && head[1] == 0xCF && head[2] == 0x11 && head[3] == 0xE0
	case ".docx", ".xlsx", ".pptx":
		return len(head) >= 4 && head[0] == 0x50 && head[1] == 0x4B && (head[2] == 0x03 || head[2] == 0x05) && head[3] == 0x04
	case ".txt", ".csv":
		return true
	}
	return true
}

func contentTypeByExt(ext string) string {
	switch strings.ToLower(ext) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".pdf":
		return "application/pdf"
	case ".doc":
		return "application/msword"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".xls":
		return "application/vnd.ms-excel"
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case ".csv":
		return "text/csv"
	case ".txt":
		return "text/plain"
	}
	return "application/octet-stream"
}

// safeFilename оставляет имя файла безопасным для Content-Disposition (без
// управляющих символов и кавычек). UTF-8 сохраняется — кириллица не теряется.
func safeFilename(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '\r', '\n', '"', '\\', '/', '\x00':
			continue
		}
		if unicode.IsPrint(r) {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

// asciiFallbackFilename возвращает имя только из ASCII для legacy filename=.
func asciiFallbackFilename(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) error {
	buf := make([]byte, 32*1024)
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("upload cancelled: %w", ctx.Err())
		default:
		}
		n, readErr := src.Read(buf)
		if n > 0 {
			if _, err := dst.Write(buf[:n]); err != nil {
				return fmt.Errorf("write: %w", err)
			}
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return fmt.Errorf("read: %w", readErr)
		}
	}
}
