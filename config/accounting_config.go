package config

import "strings"

// ReportLayout groups chart-of-accounts codes into balance sheet and P&L sections.
// The defaults follow the Dutch ZZP chart conventions this platform seeds: the first
// two digits of the account code decide the section.
type ReportLayout struct {
	// Balance sheet: asset accounts whose code starts with one of these prefixes are
	// reported as current assets; everything else under ASSET is a fixed asset.
	CurrentAssetPrefixes []string
	// Liability accounts with these prefixes are long-term; the rest is current.
	LongTermLiabilityPrefixes []string
	// P&L: expense accounts with these prefixes count as cost of goods sold.
	COGSPrefixes []string
	// Expense accounts with these prefixes are reported under other expenses.
	OtherExpensePrefixes []string
	// Revenue accounts with these prefixes are reported under other income.
	OtherIncomePrefixes []string
}

// DefaultReportLayout returns the seeded Dutch layout.
func DefaultReportLayout() ReportLayout {
	return ReportLayout{
		CurrentAssetPrefixes:      []string{"10", "11", "12", "13", "14", "15"},
		LongTermLiabilityPrefixes: []string{"06", "07", "08"},
		COGSPrefixes:              []string{"70"},
		OtherExpensePrefixes:      []string{"48", "49"},
		OtherIncomePrefixes:       []string{"49", "85"},
	}
}

// HasPrefix reports whether the account code starts with any of the given prefixes.
func HasPrefix(code string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(code, p) {
			return true
		}
	}
	return false
}

// Entry number formats.
const (
	JournalEntryNumberFormat = "JE-%06d"
	BankEntryNumberFormat    = "BNK-%d-%05d"
)
