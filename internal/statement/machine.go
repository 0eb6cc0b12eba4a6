// Package statement reconstructs transactions from the plain text of a bank
// statement whose rows are printed as "anchor" lines with optional wrapped
// description lines underneath.
package statement

import (
	"regexp"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/statement-ingest/internal/categorize"
	"github.com/dvloznov/statement-ingest/internal/domain"
)

// State is a parser state.
type State int

const (
	SeekingStart State = iota
	Accumulating
	Done
)

func (s State) String() string {
	switch s {
	case SeekingStart:
		return "seeking_start"
	case Accumulating:
		return "accumulating"
	case Done:
		return "done"
	default:
		return "unknown"
	}
}

// StartMarker opens the transaction table.
const StartMarker = "BALANCE B/F"

const amountPattern = `[₹$£€]?[\d,]+\.\d{2}`

// anchorRe matches: txn date, value date, description, optional debit,
// optional credit, balance and its CR/DR suffix.
var anchorRe = regexp.MustCompile(
	`^(\d{2}/\d{2}/\d{4})\s+(\d{2}/\d{2}/\d{4})\s+(.+?)\s+` +
		`(?:(` + amountPattern + `)\s+)?` +
		`(?:(` + amountPattern + `)\s+)?` +
		`(` + amountPattern + `)\s*(CR|DR)$`,
)

// openingRe reads the carried-forward balance printed on the marker line.
var openingRe = regexp.MustCompile(`(?i)balance\s+b/f\s+(` + amountPattern + `)\s*(CR|DR)?`)

var (
	pageNumberRe   = regexp.MustCompile(`(?i)^(page\s*)?\d+(\s*(of|/)\s*\d+)?$`)
	columnHeaderRe = regexp.MustCompile(`(?i)^(txn\s+|tran\s+|transaction\s+|value\s+|posting\s+)?date\b.*\b(description|particulars|narration|details|debit|credit|withdrawals?|deposits?|balance)\b`)
	carryLineRe    = regexp.MustCompile(`(?i)\bbalance\s+[bc]/f\b`)
	datePrefixRe   = regexp.MustCompile(`^\d{1,2}[/-]\d{1,2}[/-]\d{2,4}\b`)
)

// Anchor is the decoded form of one anchor line. With SingleAmount set only
// one amount column was printed and it was read into Debit.
type Anchor struct {
	TxnDate      string
	ValueDate    string
	Description  string
	Debit        decimal.Decimal
	Credit       decimal.Decimal
	Balance      decimal.Decimal
	BalanceDR    bool
	SingleAmount bool
}

// SignedBalance is the running balance, negative when overdrawn.
func (a Anchor) SignedBalance() decimal.Decimal {
	if a.BalanceDR {
		return a.Balance.Neg()
	}
	return a.Balance
}

// MatchAnchor decodes line as an anchor line.
func MatchAnchor(line string) (Anchor, bool) {
	m := anchorRe.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return Anchor{}, false
	}
	return Anchor{
		TxnDate:      m[1],
		ValueDate:    m[2],
		Description:  domain.CollapseSpaces(m[3]),
		Debit:        domain.ParseAmount(m[4]),
		Credit:       domain.ParseAmount(m[5]),
		Balance:      domain.ParseAmount(m[6]),
		BalanceDR:    m[7] == "DR",
		SingleAmount: m[4] != "" && m[5] == "",
	}, true
}

// IsTrivial reports whether a non-anchor line carries no description text.
func IsTrivial(line string) bool {
	s := strings.TrimSpace(line)
	switch {
	case s == "":
		return true
	case pageNumberRe.MatchString(s):
		return true
	case columnHeaderRe.MatchString(s):
		return true
	case carryLineRe.MatchString(s):
		return true
	case datePrefixRe.MatchString(s):
		return true
	}
	return false
}

// ParseDate reads a day/month/year statement date.
func ParseDate(s string) (civil.Date, bool) {
	t, err := time.Parse("02/01/2006", strings.TrimSpace(s))
	if err != nil {
		return civil.Date{}, false
	}
	return civil.DateOf(t), true
}

// Machine is the line-by-line statement parser. Feed lines in order, then
// call Finish. A Machine is not safe for concurrent use.
type Machine struct {
	ownerID string
	state   State
	txs     []*domain.Candidate
	buffer  []string
	lines   int
	skipped int

	// balance is the last signed running balance, valid when haveBalance.
	balance     decimal.Decimal
	haveBalance bool
}

// NewMachine returns a machine in SeekingStart that attaches ownerID to
// every transaction it opens.
func NewMachine(ownerID string) *Machine {
	return &Machine{ownerID: ownerID, state: SeekingStart}
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// Buffered returns the continuation fragments waiting to be flushed.
func (m *Machine) Buffered() []string {
	out := make([]string, len(m.buffer))
	copy(out, m.buffer)
	return out
}

// Transactions returns the transactions opened so far.
func (m *Machine) Transactions() []*domain.Candidate { return m.txs }

// LinesSeen is the number of lines fed.
func (m *Machine) LinesSeen() int { return m.lines }

// SkippedAnchors counts anchor lines rejected for a bad date or zero amounts.
func (m *Machine) SkippedAnchors() int { return m.skipped }

// Feed advances the machine by one line.
func (m *Machine) Feed(line string) {
	if m.state == Done {
		return
	}
	m.lines++

	switch m.state {
	case SeekingStart:
		if strings.Contains(strings.ToUpper(line), StartMarker) {
			m.state = Accumulating
			m.noteOpening(line)
		}
	case Accumulating:
		if a, ok := MatchAnchor(line); ok {
			m.flush()
			m.open(a)
			return
		}
		if len(m.txs) > 0 && !IsTrivial(line) {
			m.buffer = append(m.buffer, strings.TrimSpace(line))
		}
	}
}

// Finish flushes pending continuation lines and moves to Done.
func (m *Machine) Finish() []*domain.Candidate {
	if m.state != Done {
		m.flush()
		m.state = Done
	}
	return m.txs
}

func (m *Machine) noteOpening(line string) {
	match := openingRe.FindStringSubmatch(strings.TrimSpace(line))
	if match == nil {
		return
	}
	m.balance = domain.ParseAmount(match[1])
	if strings.EqualFold(match[2], "DR") {
		m.balance = m.balance.Neg()
	}
	m.haveBalance = true
}

// open starts a transaction from a, unless a is a balance carry or has an
// invalid date. A lone amount is a credit only when the running balance rose
// by exactly that amount; otherwise it is read as a debit.
func (m *Machine) open(a Anchor) {
	prev, known := m.balance, m.haveBalance
	m.balance, m.haveBalance = a.SignedBalance(), true

	date, ok := ParseDate(a.TxnDate)
	if !ok {
		m.skipped++
		return
	}

	var amount decimal.Decimal
	var txType domain.TxType
	switch {
	case a.SingleAmount && known && !a.Debit.IsZero() && prev.Add(a.Debit).Equal(m.balance):
		amount, txType = a.Debit.Abs(), domain.TxIncome
	case !a.Debit.IsZero():
		amount, txType = a.Debit.Abs(), domain.TxExpense
	case !a.Credit.IsZero():
		amount, txType = a.Credit.Abs(), domain.TxIncome
	default:
		m.skipped++
		return
	}

	m.txs = append(m.txs, &domain.Candidate{
		Date:        date,
		Amount:      amount,
		Type:        txType,
		Description: a.Description,
		Category:    categorize.Categorize(a.Description, txType == domain.TxExpense),
		OwnerID:     m.ownerID,
	})
}

// flush appends buffered fragments to the last transaction and recomputes
// its category.
func (m *Machine) flush() {
	if len(m.buffer) == 0 {
		return
	}
	if n := len(m.txs); n > 0 {
		last := m.txs[n-1]
		last.Description = domain.CollapseSpaces(last.Description + " " + strings.Join(m.buffer, " "))
		last.Category = categorize.Categorize(last.Description, last.Type == domain.TxExpense)
	}
	m.buffer = m.buffer[:0]
}
