package errors

// ErrorCode represents a unique error code for identifying different error types.
type ErrorCode int

const (
	// General errors (1-99)
	ErrCodeUnknown ErrorCode = 1

	// Validation errors (100-199)
	ErrCodeInvalidParameter   ErrorCode = 100
	ErrCodeInvalidFill        ErrorCode = 101
	ErrCodeInvalidLedgerEntry ErrorCode = 102
	ErrCodeInvalidMapping     ErrorCode = 103
	ErrCodeInvalidAccount     ErrorCode = 104
	ErrCodeMissingParameter   ErrorCode = 105

	// Data/Resource errors (200-299)
	ErrCodeAccountNotFound ErrorCode = 200
	ErrCodeTradeNotFound   ErrorCode = 201
	ErrCodeQueryFailed     ErrorCode = 202
	ErrCodePersistence     ErrorCode = 203

	// Ledger errors (300-399)
	ErrCodeZeroAmount      ErrorCode = 300
	ErrCodeAccountArchived ErrorCode = 301

	// Position/Trade errors (500-599)
	ErrCodeOverClose     ErrorCode = 500
	ErrCodeTradeClosed   ErrorCode = 501
	ErrCodeNoOpenTrade   ErrorCode = 502
	ErrCodeNoMarketPrice ErrorCode = 503

	// Ingestion errors (600-699)
	ErrCodeRowNormalization ErrorCode = 600
	ErrCodeRowRejected      ErrorCode = 601

	// Engine errors (700-799)
	ErrCodeAccountBusy ErrorCode = 700
)
