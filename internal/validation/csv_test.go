package validation

import (
	"errors"
	"strings"
	"testing"
)

var headers = []string{"sno", "product_name", "image_urls"}

func TestValidate_Accepts(t *testing.T) {
	cases := map[string]string{
		"single row": "sno,product_name,image_urls\n1,Widget A,http://example.com/a.jpg\n",
		"many urls": "sno,product_name,image_urls\n" +
			`1,Widget A,"http://example.com/a.jpg, https://cdn.example.com/b.PNG,http://x.io/c.jpeg"` + "\n" +
			"2,Gadget 2,https://example.com/img/d.gif\n",
		"crlf":        "sno,product_name,image_urls\r\n12,Thing,http://example.com/a.jpeg\r\n",
		"extra field": "sno,product_name,image_urls\n1,Widget,http://example.com/a.jpg,extra\n",
		"bom header":  "\ufeffsno,product_name,image_urls\n1,Widget,http://example.com/a.jpg\n",
		"empty name":  "sno,product_name,image_urls\n1,,http://example.com/a.jpg\n",
	}
	v := New(headers)
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if err := v.Validate([]byte(body)); err != nil {
				t.Fatalf("Validate: %v", err)
			}
		})
	}
}

func TestValidate_Rejects(t *testing.T) {
	cases := []struct {
		name string
		body string
		kind error
		row  int
	}{
		{"no rows", "", ErrEmptyFile, 0},
		{"header only", "sno,product_name,image_urls\n", ErrEmptyFile, 0},
		{"reordered header", "product_name,sno,image_urls\n1,A,http://x.com/a.jpg\n", ErrHeaderMismatch, 0},
		{"renamed header", "sno,name,image_urls\n1,A,http://x.com/a.jpg\n", ErrHeaderMismatch, 0},
		{"extra header", "sno,product_name,image_urls,x\n1,A,http://x.com/a.jpg\n", ErrHeaderMismatch, 0},
		{"short row", "sno,product_name,image_urls\n1,A,http://x.com/a.jpg\n2,B\n", ErrMalformedRow, 2},
		{"serial not digits", "sno,product_name,image_urls\n1a,A,http://x.com/a.jpg\n", ErrInvalidSerialNumber, 1},
		{"serial empty", "sno,product_name,image_urls\n,A,http://x.com/a.jpg\n", ErrInvalidSerialNumber, 1},
		{"serial negative", "sno,product_name,image_urls\n-1,A,http://x.com/a.jpg\n", ErrInvalidSerialNumber, 1},
		{"bad product name", "sno,product_name,image_urls\n1,Widget-A,http://x.com/a.jpg\n", ErrInvalidProductName, 1},
		{"non image url", "sno,product_name,image_urls\n1,A,\"http://x.com/a.jpg,http://x.com/bad.txt\"\n", ErrInvalidImageURL, 1},
		{"ftp url", "sno,product_name,image_urls\n1,A,ftp://x.com/a.jpg\n", ErrInvalidImageURL, 1},
		{"space in url", "sno,product_name,image_urls\n1,A,http://x.com/my image.jpg\n", ErrInvalidImageURL, 1},
		{"empty url", "sno,product_name,image_urls\n1,A,\n", ErrInvalidImageURL, 1},
		{"trailing comma", "sno,product_name,image_urls\n1,A,\"http://x.com/a.jpg,\"\n", ErrInvalidImageURL, 1},
	}

	v := New(headers)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := v.Validate([]byte(tc.body))
			if !errors.Is(err, tc.kind) {
				t.Fatalf("want %v, got %v", tc.kind, err)
			}
			var verr *Error
			if !errors.As(err, &verr) {
				t.Fatalf("want *Error, got %T", err)
			}
			if verr.Row != tc.row {
				t.Fatalf("want row %d, got %d", tc.row, verr.Row)
			}
		})
	}
}

func TestValidate_FailsFastInRowOrder(t *testing.T) {
	body := "sno,product_name,image_urls\n" +
		"1,Fine,http://x.com/a.jpg\n" +
		"x,Bad-Name,http://x.com/b.txt\n" +
		"3,Also-Bad,http://x.com/c.jpg\n"

	err := New(headers).Validate([]byte(body))
	var verr *Error
	if !errors.As(err, &verr) {
		t.Fatalf("want *Error, got %v", err)
	}
	// serial number is the leftmost violation of the first bad row
	if !errors.Is(err, ErrInvalidSerialNumber) || verr.Row != 2 || verr.Value != "x" {
		t.Fatalf("unexpected first violation: %+v", verr)
	}
}

func TestError_Messages(t *testing.T) {
	err := New(headers).Validate([]byte("a,b,c\n1,A,http://x.com/a.jpg\n"))
	if !strings.Contains(err.Error(), "sno,product_name,image_urls") {
		t.Fatalf("header mismatch should list allowed headers: %q", err)
	}

	err = New(headers).Validate([]byte("sno,product_name,image_urls\n7,Bad!,http://x.com/a.jpg\n"))
	if want := "invalid product name (not alphanumeric): Bad! at row 1"; err.Error() != want {
		t.Fatalf("want %q, got %q", want, err)
	}
}

func TestParseImageURLs(t *testing.T) {
	got := ParseImageURLs(" http://a/1.jpg ,http://a/2.png")
	if len(got) != 2 || got[0] != "http://a/1.jpg" || got[1] != "http://a/2.png" {
		t.Fatalf("unexpected split %q", got)
	}
}
