package ocr

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/avvvet/expiry-services/internal/cardsvc/models"
)

const (
	MsgSuccess       = "OCR succeeded"
	MsgNothingFound  = "could not extract any card information"
	MsgNoText        = "OCR did not recognize any text"
	MsgNotConfigured = "OCR API is not configured; set OCR_API_URL and OCR_API_SECRET"
	msgFailedPrefix  = "OCR processing failed: "
	msgParsePrefix   = "failed to parse OCR response: "
)

// Result is what a scan yields. Every field is optional except Success and Message.
type Result struct {
	Name           *string      `json:"name"`
	ExpirationDate *models.Date `json:"expirationDate"`
	Barcode        *string      `json:"barcode"`
	Success        bool         `json:"success"`
	Message        string       `json:"message"`
}

func failure(msg string) Result {
	return Result{Success: false, Message: msg}
}

var (
	// start ~ end, the end date is the expiration date
	rangeDate = regexp.MustCompile(`(\d{4})[-./](\d{1,2})[-./](\d{1,2})\s*[~-]\s*(\d{4})[-./](\d{1,2})[-./](\d{1,2})`)

	singleDates = []*regexp.Regexp{
		regexp.MustCompile(`유효기간[:\s]*(\d{4})[-./](\d{1,2})[-./](\d{1,2})`),
		regexp.MustCompile(`(\d{4})[-./](\d{1,2})[-./](\d{1,2})`),
		regexp.MustCompile(`(\d{4})(\d{2})(\d{2})`),
	}

	barcodeDigits = regexp.MustCompile(`\b(\d{10,15})\b`)
)

// ExtractExpirationDate tries, in order, a date range, a date labeled 유효기간,
// any separated date, and eight contiguous digits. Only the first match of
// each form is considered; if it is not a real calendar date the next form
// is tried.
func ExtractExpirationDate(text string) (models.Date, bool) {
	if m := rangeDate.FindStringSubmatch(text); m != nil {
		if d, ok := calendarDate(m[4], m[5], m[6]); ok {
			return d, true
		}
	}

	for _, re := range singleDates {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if d, ok := calendarDate(m[1], m[2], m[3]); ok {
			return d, true
		}
	}
	return models.Date{}, false
}

// calendarDate rejects dates such as 2025-02-30 that time.Date would normalize.
func calendarDate(ys, ms, ds string) (models.Date, bool) {
	y, err := strconv.Atoi(ys)
	if err != nil {
		return models.Date{}, false
	}
	m, err := strconv.Atoi(ms)
	if err != nil {
		return models.Date{}, false
	}
	d, err := strconv.Atoi(ds)
	if err != nil {
		return models.Date{}, false
	}
	if m < 1 || m > 12 || d < 1 || d > 31 {
		return models.Date{}, false
	}

	date := models.NewDate(y, time.Month(m), d)
	if date.Year() != y || int(date.Month()) != m || date.Day() != d {
		return models.Date{}, false
	}
	return date, true
}

// ExtractBarcode returns the first standalone run of 10 to 15 digits.
func ExtractBarcode(text string) (string, bool) {
	m := barcodeDigits.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// ExtractCardName returns the first non-blank line, trimmed.
func ExtractCardName(text string) (string, bool) {
	for _, line := range strings.Split(text, "\n") {
		if name := strings.TrimSpace(line); name != "" {
			return name, true
		}
	}
	return "", false
}

// Extract runs every extractor over text recognized by OCR.
func Extract(text string) Result {
	if strings.TrimSpace(text) == "" {
		return failure(MsgNoText)
	}

	var res Result
	if d, ok := ExtractExpirationDate(text); ok {
		res.ExpirationDate = &d
	}
	if b, ok := ExtractBarcode(text); ok {
		res.Barcode = &b
	}
	if n, ok := ExtractCardName(text); ok {
		res.Name = &n
	}

	res.Success = res.ExpirationDate != nil || res.Barcode != nil || res.Name != nil
	if res.Success {
		res.Message = MsgSuccess
	} else {
		res.Message = MsgNothingFound
	}
	return res
}
