package model

import "time"

// CaseAnalysis is the initial analysis produced by the external workflow.
type CaseAnalysis struct {
	ID        string    `json:"id"         db:"id"`
	CaseID    string    `json:"case_id"    db:"case_id"`
	Content   string    `json:"content"    db:"content"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// CaseInteraction is one turn of the multi-persona debate transcript.
type CaseInteraction struct {
	ID        string    `json:"id"         db:"id"`
	CaseID    string    `json:"case_id"    db:"case_id"`
	Agent     string    `json:"agent"      db:"agent"`
	Round     int       `json:"round"      db:"round"`
	Kind      string    `json:"kind"       db:"kind"`
	Content   string    `json:"content"    db:"content"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// CaseSentence holds the judicial analysis and final decision.
type CaseSentence struct {
	ID               string    `json:"id"                db:"id"`
	CaseID           string    `json:"case_id"           db:"case_id"`
	JudicialAnalysis string    `json:"judicial_analysis" db:"judicial_analysis"`
	FinalSentence    string    `json:"final_sentence"    db:"final_sentence"`
	CreatedAt        time.Time `json:"created_at"        db:"created_at"`
}

// CaseReport is the improvement report attached to a finished case.
type CaseReport struct {
	ID        string    `json:"id"         db:"id"`
	CaseID    string    `json:"case_id"    db:"case_id"`
	Report    string    `json:"report"     db:"report"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// CaseDetail aggregates a case with everything the workflow has written so far.
type CaseDetail struct {
	Case         Case              `json:"case"`
	Analyses     []CaseAnalysis    `json:"analyses"`
	Interactions []CaseInteraction `json:"interactions"`
	Sentence     *CaseSentence     `json:"sentence,omitempty"`
	Report       *CaseReport       `json:"report,omitempty"`
}
