//revive:disable-next-line:var-naming // legacy package name widely used across the project
package model

import (
	"crypto/rand"
	"math/big"
	"strconv"
	"strings"
	"time"
)

// CaseStatus is the processing state of a submitted petition.
type CaseStatus string

const (
	CaseStatusProcessing CaseStatus = "processing"
	CaseStatusCompleted  CaseStatus = "completed"
	CaseStatusError      CaseStatus = "error"
)

// Valid reports whether the case status is supported.
func (s CaseStatus) Valid() bool {
	switch s {
	case CaseStatusProcessing, CaseStatusCompleted, CaseStatusError:
		return true
	default:
		return false
	}
}

// ParseCaseStatus normalizes a status string and reports whether it is supported.
func ParseCaseStatus(value string) (CaseStatus, bool) {
	s := CaseStatus(strings.ToLower(strings.TrimSpace(value)))
	if s.Valid() {
		return s, true
	}
	return "", false
}

// Case is a submitted petition awaiting or holding the external workflow's results.
type Case struct {
	ID           string     `json:"id"                     db:"id"`
	CaseID       string     `json:"case_id"                db:"case_id"`
	OriginalText string     `json:"original_text"          db:"original_text"`
	UserID       string     `json:"user_id"                db:"user_id"`
	Status       CaseStatus `json:"status"                 db:"status"`
	CreatedAt    time.Time  `json:"created_at"             db:"created_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}

// CreateCaseRequest represents parameters to insert a Case.
type CreateCaseRequest struct {
	CaseID       string
	OriginalText string
	UserID       string
}

// CasesListOptions controls paging and filtering for listing cases.
type CasesListOptions struct {
	Limit  int
	Offset int
	UserID *string     // exact match
	Status *CaseStatus // exact match
}

const caseIDAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// NewCaseID returns a public case identifier of the form CASO_<unix millis>_<9 base36 chars>.
func NewCaseID(now time.Time) string {
	var b strings.Builder
	b.WriteString("CASO_")
	b.WriteString(strconv.FormatInt(now.UnixMilli(), 10))
	b.WriteByte('_')
	limit := big.NewInt(int64(len(caseIDAlphabet)))
	for range 9 {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			b.WriteByte('0')
			continue
		}
		b.WriteByte(caseIDAlphabet[n.Int64()])
	}
	return b.String()
}
