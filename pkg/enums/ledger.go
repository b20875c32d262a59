package enums

// LedgerEntryKind maps to the ledger_entry_kind enum in Postgres.
type LedgerEntryKind string

const (
	LedgerEntryKindReceive    LedgerEntryKind = "receive"
	LedgerEntryKindSale       LedgerEntryKind = "sale"
	LedgerEntryKindAdjustment LedgerEntryKind = "adjustment"
	LedgerEntryKindTransfer   LedgerEntryKind = "transfer"
)

var ledgerEntryKinds = []LedgerEntryKind{
	LedgerEntryKindReceive,
	LedgerEntryKindSale,
	LedgerEntryKindAdjustment,
	LedgerEntryKindTransfer,
}

func (k LedgerEntryKind) String() string { return string(k) }

func (k LedgerEntryKind) IsValid() bool { return member(ledgerEntryKinds, k) }

func ParseLedgerEntryKind(value string) (LedgerEntryKind, error) {
	return parse("ledger entry kind", ledgerEntryKinds, value)
}
