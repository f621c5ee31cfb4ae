package models

// Import modes. REPLACE and FULL share one code path: wipe the account's
// ledger, then insert the batch fresh. APPEND merges into existing data.
const (
	ImportModeReplace = "REPLACE"
	ImportModeAppend  = "APPEND"
	ImportModeFull    = "FULL"
)

// ImportBatch is the contract consumed from the CSV-parsing collaborator: one
// account's externally sourced trades, positions, their links and equity
// history, merged in a single transaction.
type ImportBatch struct {
	Mode             string              `json:"mode"`
	AccountID        string              `json:"accountId"`
	Trades           []Trade             `json:"trades"`
	Positions        []Position          `json:"positions"`
	PositionTradeMap map[string][]string `json:"positionTradeMap"`
	EquityCurveData  []EquityPoint       `json:"equityCurveData"`
}

// ImportResult reports the outcome of one batch. Skipped always means
// "recognized as a duplicate", never "lost to an unrelated error"; an
// unrecognized error rolls the whole batch back and zeroes every count.
type ImportResult struct {
	Success               bool   `json:"success"`
	SavedTradesCount      int    `json:"savedTradesCount"`
	SkippedTradesCount    int    `json:"skippedTradesCount"`
	SavedPositionsCount   int    `json:"savedPositionsCount"`
	SkippedPositionsCount int    `json:"skippedPositionsCount"`
	SavedEquityPoints     int    `json:"savedEquityPoints"`
	SkippedEquityPoints   int    `json:"skippedEquityPoints"`
	Message               string `json:"message,omitempty"`
}
