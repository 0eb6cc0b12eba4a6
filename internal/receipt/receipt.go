// Package receipt pulls the total, date and merchant out of the OCR text of a
// single receipt.
package receipt

import (
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/statement-ingest/internal/categorize"
	"github.com/dvloznov/statement-ingest/internal/domain"
)

// DefaultDescription is used when no merchant or title line is found.
const DefaultDescription = "Receipt"

// Fields is what Parse recovers from a receipt. Nil Amount or Date means the
// value was not found.
type Fields struct {
	Amount      *decimal.Decimal  `json:"amount"`
	Date        *civil.Date       `json:"date"`
	Category    string            `json:"category"`
	Description string            `json:"description"`
	Confidence  domain.Confidence `json:"confidence"`
}

// Missing lists the required fields that are still unset.
func (f Fields) Missing() []string {
	var missing []string
	if f.Amount == nil {
		missing = append(missing, "amount")
	}
	if f.Date == nil {
		missing = append(missing, "date")
	}
	return missing
}

const number = `(\d{1,3}(?:,\d{3})+(?:\.\d{1,2})?|\d+(?:\.\d{1,2})?)`

// amountPatterns are tried in order; label-anchored families come before the
// bare currency pattern.
var amountPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)grand\s*total[^\d\n]{0,20}?` + number),
	regexp.MustCompile(`(?i)\btotal\b[^\d\n]{0,20}?` + number),
	regexp.MustCompile(`(?i)\bamount\b[^\d\n]{0,20}?` + number),
	regexp.MustCompile(`(?i)\bdue\b[^\d\n]{0,20}?` + number),
	regexp.MustCompile(`(?i)(?:[₹$£€]|\brs\.?|\binr)\s*` + number),
}

var maxAmount = decimal.NewFromInt(10000)

var (
	dmyRe   = regexp.MustCompile(`\b\d{1,2}[/\-.]\d{1,2}[/\-.]\d{2,4}\b`)
	ymdRe   = regexp.MustCompile(`\b\d{4}[/\-.]\d{1,2}[/\-.]\d{1,2}\b`)
	monthRe = regexp.MustCompile(`(?i)\b(?:jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec)[a-z]*\.?\s+\d{1,2},?\s+\d{4}\b`)
)

type dateFamily struct {
	re      *regexp.Regexp
	layouts []string
}

var dateFamilies = []dateFamily{
	{dmyRe, []string{"2/1/2006", "2-1-2006", "2.1.2006", "2/1/06", "2-1-06", "2.1.06"}},
	{ymdRe, []string{"2006/1/2", "2006-1-2", "2006.1.2"}},
	{monthRe, []string{"Jan 2, 2006", "Jan 2 2006"}},
}

type merchant struct {
	re   *regexp.Regexp
	name string
}

var merchants = []merchant{
	{regexp.MustCompile(`(?i)\bstarbucks\b`), "Starbucks"},
	{regexp.MustCompile(`(?i)\bmc\s?donald'?s?\b`), "McDonald's"},
	{regexp.MustCompile(`(?i)\bdomino'?s\b`), "Domino's"},
	{regexp.MustCompile(`(?i)\bkfc\b`), "KFC"},
	{regexp.MustCompile(`(?i)\bsubway\b`), "Subway"},
	{regexp.MustCompile(`(?i)\bswiggy\b`), "Swiggy"},
	{regexp.MustCompile(`(?i)\bzomato\b`), "Zomato"},
	{regexp.MustCompile(`(?i)\bwalmart\b`), "Walmart"},
	{regexp.MustCompile(`(?i)\btarget\b`), "Target"},
	{regexp.MustCompile(`(?i)\bcostco\b`), "Costco"},
	{regexp.MustCompile(`(?i)\btesco\b`), "Tesco"},
	{regexp.MustCompile(`(?i)\bwhole\s+foods\b`), "Whole Foods"},
	{regexp.MustCompile(`(?i)\bd-?mart\b`), "DMart"},
	{regexp.MustCompile(`(?i)\bbig\s?bazaar\b`), "Big Bazaar"},
	{regexp.MustCompile(`(?i)\bamazon\b`), "Amazon"},
	{regexp.MustCompile(`(?i)\bflipkart\b`), "Flipkart"},
	{regexp.MustCompile(`(?i)\bikea\b`), "IKEA"},
	{regexp.MustCompile(`(?i)\buber\b`), "Uber"},
	{regexp.MustCompile(`(?i)\bshell\b`), "Shell"},
	{regexp.MustCompile(`(?i)\bwalgreens\b`), "Walgreens"},
	{regexp.MustCompile(`(?i)\bcvs\b`), "CVS"},
	{regexp.MustCompile(`(?i)\bapollo\s+pharmacy\b`), "Apollo Pharmacy"},
}

// Parse extracts receipt fields from text. It never fails; absent fields are
// left nil and Confidence stays low.
func Parse(text string) Fields {
	f := Fields{Confidence: domain.ConfidenceLow}

	if amount, ok := findAmount(text); ok {
		f.Amount = &amount
		f.Confidence = domain.ConfidenceMedium
	}
	if date, ok := findDate(text); ok {
		f.Date = &date
	}

	if name, ok := findMerchant(text); ok {
		f.Description = name
		f.Confidence = domain.ConfidenceHigh
	} else {
		f.Description = titleLine(text)
	}

	f.Category = categorize.Categorize(f.Description+" "+text, true)
	return f
}

func findAmount(text string) (decimal.Decimal, bool) {
	for _, re := range amountPatterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			v := domain.ParseAmount(m[1])
			if v.IsPositive() && v.LessThan(maxAmount) {
				return v, true
			}
		}
	}
	return decimal.Zero, false
}

func findDate(text string) (civil.Date, bool) {
	for _, line := range strings.Split(text, "\n") {
		for _, fam := range dateFamilies {
			for _, s := range fam.re.FindAllString(line, -1) {
				if d, ok := parseDate(s, fam.layouts); ok {
					return d, true
				}
			}
		}
	}
	return civil.Date{}, false
}

func parseDate(s string, layouts []string) (civil.Date, bool) {
	s = shortMonth(s)
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return civil.DateOf(t), true
		}
	}
	return civil.Date{}, false
}

// shortMonth cuts a leading month name such as "Sept." or "February" to the
// three-letter form the layouts use.
func shortMonth(s string) string {
	fields := strings.Fields(s)
	if len(fields) > 0 && len(fields[0]) >= 3 && unicode.IsLetter(rune(fields[0][0])) {
		fields[0] = fields[0][:3]
	}
	return strings.Join(fields, " ")
}

func findMerchant(text string) (string, bool) {
	for _, m := range merchants {
		if m.re.MatchString(text) {
			return m.name, true
		}
	}
	return "", false
}

// titleLine returns the first line of 3 to 40 characters that does not start
// with a digit and holds at least one letter.
func titleLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		s := domain.CollapseSpaces(line)
		n := utf8.RuneCountInString(s)
		if n < 3 || n > 40 {
			continue
		}
		first, _ := utf8.DecodeRuneInString(s)
		if unicode.IsDigit(first) || !strings.ContainsFunc(s, unicode.IsLetter) {
			continue
		}
		return s
	}
	return DefaultDescription
}
