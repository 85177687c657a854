package validation

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"regexp"
	"slices"
	"strings"
)

var (
	ErrEmptyFile           = errors.New("CSV file is empty")
	ErrHeaderMismatch      = errors.New("CSV file headers are invalid")
	ErrMalformedRow        = errors.New("row has insufficient columns")
	ErrInvalidSerialNumber = errors.New("invalid S.No. (not a number)")
	ErrInvalidProductName  = errors.New("invalid product name (not alphanumeric)")
	ErrInvalidImageURL     = errors.New("invalid image urls in list")
)

var (
	serialNumberRe = regexp.MustCompile(`^[0-9]+$`)
	productNameRe  = regexp.MustCompile(`^[a-zA-Z0-9 ]*$`)
	imageURLRe     = regexp.MustCompile(`(?i)^(http|https)://[^\s/$.?#].[^\s]*\.(jpg|jpeg|png|gif)$`)
)

// Error describes the first violation found in an upload. Row is the 1-based
// data row (0 for file level problems).
type Error struct {
	Kind     error
	Row      int
	Value    string
	Expected []string
}

func (e *Error) Error() string {
	switch {
	case errors.Is(e.Kind, ErrHeaderMismatch):
		return fmt.Sprintf("%s. Allowed headers are %s", e.Kind, strings.Join(e.Expected, ","))
	case e.Row > 0:
		return fmt.Sprintf("%s: %s at row %d", e.Kind, e.Value, e.Row)
	case e.Value != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Value)
	default:
		return e.Kind.Error()
	}
}

func (e *Error) Unwrap() error { return e.Kind }

type Validator struct {
	headers []string
}

func New(headers []string) *Validator {
	return &Validator{headers: slices.Clone(headers)}
}

// Validate checks raw CSV bytes and stops at the first violation, scanning
// rows in order and fields left to right.
func (v *Validator) Validate(raw []byte) error {
	r := NewReader(raw)

	header, err := read(r, 0)
	if err == io.EOF {
		return &Error{Kind: ErrEmptyFile}
	}
	if err != nil {
		return err
	}
	first, err := read(r, 1)
	if err == io.EOF {
		return &Error{Kind: ErrEmptyFile}
	}
	if err != nil {
		return err
	}

	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], bom)
	}
	if !slices.Equal(header, v.headers) {
		return &Error{Kind: ErrHeaderMismatch, Value: strings.Join(header, ","), Expected: v.headers}
	}

	rec := first
	for row := 1; ; row++ {
		if err := validateRow(row, rec); err != nil {
			return err
		}
		rec, err = read(r, row+1)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func validateRow(row int, rec []string) error {
	if len(rec) < 3 {
		return &Error{Kind: ErrMalformedRow, Row: row, Value: strings.Join(rec, ",")}
	}
	sno, name, urls := rec[0], rec[1], rec[2]

	if !serialNumberRe.MatchString(sno) {
		return &Error{Kind: ErrInvalidSerialNumber, Row: row, Value: sno}
	}
	if !productNameRe.MatchString(name) {
		return &Error{Kind: ErrInvalidProductName, Row: row, Value: name}
	}
	for _, u := range ParseImageURLs(urls) {
		if !imageURLRe.MatchString(u) {
			return &Error{Kind: ErrInvalidImageURL, Row: row, Value: urls}
		}
	}
	return nil
}

// ParseImageURLs splits the image_urls field on commas and trims each entry.
func ParseImageURLs(field string) []string {
	parts := strings.Split(field, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}

const bom = "\ufeff"

// NewReader returns a csv.Reader configured the way uploads are parsed:
// variable field counts and lenient quoting.
func NewReader(raw []byte) *csv.Reader {
	r := csv.NewReader(bytes.NewReader(raw))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	return r
}

func read(r *csv.Reader, row int) ([]string, error) {
	rec, err := r.Read()
	if err == nil || err == io.EOF {
		return rec, err
	}
	return nil, &Error{Kind: ErrMalformedRow, Row: row, Value: err.Error()}
}
