// Package categorize maps free-text transaction descriptions to a fixed set of
// category labels using an ordered list of keyword rules.
package categorize

import (
	"regexp"
	"strings"
)

// Category labels.
const (
	Salary         = "Salary"
	Investment     = "Investment"
	FoodAndDining  = "Food & Dining"
	Transportation = "Transportation"
	Shopping       = "Shopping"
	Entertainment  = "Entertainment"
	BillsUtilities = "Bills & Utilities"
	Healthcare     = "Healthcare"
	Travel         = "Travel"
	OtherExpenses  = "Other Expenses"
	OtherIncome    = "Other Income"
)

// Rule pairs a pattern with the label it assigns.
type Rule struct {
	Pattern *regexp.Regexp
	Label   string
}

// rules are evaluated top to bottom against the lower-cased description;
// the first match wins.
var rules = []Rule{
	{regexp.MustCompile(`salary|payroll|wages|stipend|\bsal\b`), Salary},
	{regexp.MustCompile(`interest|\bint\.? ?cr\b|refund|reversal|cashback|dividend`), Investment},
	{regexp.MustCompile(`swiggy|zomato|restaurant|cafe|coffee|starbucks|mcdonald|\bkfc\b|domino|pizza|burger|subway|dining|\bfood\b|\beats?\b|bakery`), FoodAndDining},
	{regexp.MustCompile(`grocer|supermarket|bigbasket|blinkit|zepto|instamart|dmart|walmart|tesco|costco|whole foods|kroger|aldi|lidl`), FoodAndDining},
	{regexp.MustCompile(`uber|\bola\b|lyft|rapido|\bmetro\b|fuel|petrol|diesel|\bshell\b|parking|\btoll\b|irctc|railway|\btaxi\b|\bcab\b|transport`), Transportation},
	{regexp.MustCompile(`amazon|flipkart|myntra|ajio|meesho|\bshop|store|\bmall\b|marketplace|\bupi\b|paytm|phonepe|gpay|google pay|paypal`), Shopping},
	{regexp.MustCompile(`netflix|spotify|prime video|hotstar|youtube|disney|\bmovie|cinema|\bpvr\b|bookmyshow|entertainment|gaming|steam`), Entertainment},
	{regexp.MustCompile(`electricity|electric|water bill|gas bill|broadband|internet|airtel|\bjio\b|vodafone|verizon|telecom|recharge|utility|utilities|\bbill\b`), BillsUtilities},
	{regexp.MustCompile(`pharmacy|pharma|medical|hospital|clinic|apollo|medplus|doctor|health|dental|diagnostic`), Healthcare},
	{regexp.MustCompile(`flight|airline|airways|indigo|vistara|\bhotel|airbnb|\boyo\b|makemytrip|booking\.com|expedia|travel`), Travel},
}

// Categorize returns the label of the first rule matching description, or the
// income/expense fallback when nothing matches.
func Categorize(description string, isExpense bool) string {
	text := strings.ToLower(description)
	for _, r := range rules {
		if r.Pattern.MatchString(text) {
			return r.Label
		}
	}
	if isExpense {
		return OtherExpenses
	}
	return OtherIncome
}

// Labels returns the vocabulary in rule order followed by the two fallbacks,
// without duplicates.
func Labels() []string {
	seen := make(map[string]bool, len(rules)+2)
	var out []string
	for _, r := range rules {
		if !seen[r.Label] {
			seen[r.Label] = true
			out = append(out, r.Label)
		}
	}
	return append(out, OtherExpenses, OtherIncome)
}

// Rules returns a copy of the ordered rule list.
func Rules() []Rule {
	out := make([]Rule, len(rules))
	copy(out, rules)
	return out
}
