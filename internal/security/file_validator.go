package security

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/text/encoding/unicode"

	tmerrors "github.com/standardbeagle/tmxmatch/internal/errors"
)

// DefaultThresholdKB is the size above which external TMX files are sniffed
// before being read in full
const DefaultThresholdKB = 1024

// FileValidator checks that a large file is really TMX before it is loaded
// into memory. Reference directories collect exports from many tools, and a
// misnamed archive or database dump is expensive to read and parse.
type FileValidator struct {
	ValidationThreshold int64 // Files larger than this are validated first
	HeaderSize          int64 // Size of header to read for validation
}

func NewFileValidator(thresholdKB int64) *FileValidator {
	return &FileValidator{
		ValidationThreshold: thresholdKB * 1024,
		HeaderSize:          64 * 1024,
	}
}

var (
	errBinary = errors.New("file appears to be binary")
	errNotTMX = errors.New("no <tmx> root element in file header")
)

// ValidateLargeFile reads only the header of a large file and checks it
// starts like a TMX document. Failures are CorruptStoreErrors.
func (fv *FileValidator) ValidateLargeFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return tmerrors.NewFileError("stat", path, err)
	}
	if info.Size() <= fv.ValidationThreshold {
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return tmerrors.NewFileError("open", path, err)
	}
	defer f.Close()

	header := make([]byte, fv.HeaderSize)
	n, err := io.ReadFull(f, header)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return tmerrors.NewFileError("read", path, err)
	}

	if err := fv.ValidateHeader(header[:n]); err != nil {
		return tmerrors.NewCorruptStoreError(path, 0, 0, err)
	}
	return nil
}

// ValidateHeader checks the leading bytes of a TMX file
func (fv *FileValidator) ValidateHeader(header []byte) error {
	if err := checkMagicBytes(header); err != nil {
		return err
	}

	text, err := decodeHeader(header)
	if err != nil {
		return err
	}
	if isBinaryData(text) {
		return errBinary
	}
	if !bytes.Contains(text, []byte("<tmx")) {
		return errNotTMX
	}
	return nil
}

// checkMagicBytes rejects common container formats saved under a .tmx name
func checkMagicBytes(header []byte) error {
	magicBytes := map[string][]byte{
		"zip":    {0x50, 0x4B, 0x03, 0x04},
		"gzip":   {0x1F, 0x8B},
		"pdf":    {0x25, 0x50, 0x44, 0x46, 0x2D},
		"sqlite": []byte("SQLite format 3\x00"),
		"ole2":   {0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}, // legacy Office, old TM databases
	}

	for format, magic := range magicBytes {
		if bytes.HasPrefix(header, magic) {
			return fmt.Errorf("file is a %s archive, not TMX", format)
		}
	}
	return nil
}

// decodeHeader converts a UTF-16 header to UTF-8 so it can be inspected
func decodeHeader(header []byte) ([]byte, error) {
	var order unicode.Endianness
	switch {
	case bytes.HasPrefix(header, []byte{0xFF, 0xFE}):
		order = unicode.LittleEndian
	case bytes.HasPrefix(header, []byte{0xFE, 0xFF}):
		order = unicode.BigEndian
	default:
		return header, nil
	}

	// a header cut mid code unit would fail to decode
	if len(header)%2 == 1 {
		header = header[:len(header)-1]
	}
	out, err := unicode.UTF16(order, unicode.ExpectBOM).NewDecoder().Bytes(header)
	if err != nil {
		return nil, fmt.Errorf("decoding UTF-16 header: %w", err)
	}
	return out, nil
}

// isBinaryData checks if file contains binary data
func isBinaryData(data []byte) bool {
	if len(data) == 0 {
		return false
	}

	// Control characters other than tab, LF and CR, plus DEL
	nonPrintable := 0
	for _, b := range data {
		if b < 9 || (b > 13 && b < 32) || b == 127 {
			nonPrintable++
		}
	}

	// If more than 30% non-printable, consider binary
	ratio := float64(nonPrintable) / float64(len(data))
	return ratio > 0.3
}
