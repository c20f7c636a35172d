package models

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// DocumentType identifies the kind of source document a line item was
// extracted from.
type DocumentType string

const (
	// DocumentBalanceSheet represents a balance sheet document
	DocumentBalanceSheet DocumentType = "BALANCE_SHEET"
	// DocumentIncomeStatement represents an income statement document
	DocumentIncomeStatement DocumentType = "INCOME_STATEMENT"
	// DocumentCashFlow represents a cash flow statement document
	DocumentCashFlow DocumentType = "CASH_FLOW"
	// DocumentRentRoll represents a rent roll document
	DocumentRentRoll DocumentType = "RENT_ROLL"
	// DocumentMortgageStatement represents a mortgage statement document
	DocumentMortgageStatement DocumentType = "MORTGAGE_STATEMENT"
)

// String returns the string representation of DocumentType
func (d DocumentType) String() string {
	return string(d)
}

// IsValid checks if the document type is one of the supported kinds
func (d DocumentType) IsValid() bool {
	switch d {
	case DocumentBalanceSheet, DocumentIncomeStatement, DocumentCashFlow,
		DocumentRentRoll, DocumentMortgageStatement:
		return true
	}
	return false
}

// ParseDocumentType parses and validates a document type from string
func ParseDocumentType(s string) (DocumentType, error) {
	normalized := strings.ToUpper(strings.TrimSpace(s))
	normalized = strings.ReplaceAll(normalized, " ", "_")
	normalized = strings.ReplaceAll(normalized, "-", "_")

	d := DocumentType(normalized)
	if !d.IsValid() {
		return "", fmt.Errorf("invalid document type '%s'", s)
	}
	return d, nil
}

// LineItem is a single extracted financial figure from one document.
// Line items are owned by the external line item provider; the engine holds
// references and never mutates them.
type LineItem struct {
	ID             string          `json:"id"`
	PropertyID     string          `json:"propertyId"`
	PeriodID       string          `json:"periodId"`
	DocumentType   DocumentType    `json:"documentType"`
	AccountID      string          `json:"accountId"`
	Description    string          `json:"description,omitempty"`
	Amount         decimal.Decimal `json:"amount"`
	SourceDocument string          `json:"sourceDocument,omitempty"`
}

// NewLineItem creates a new LineItem instance
func NewLineItem(id, propertyID, periodID string, docType DocumentType, accountID string, amount decimal.Decimal) *LineItem {
	return &LineItem{
		ID:           id,
		PropertyID:   propertyID,
		PeriodID:     periodID,
		DocumentType: docType,
		AccountID:    accountID,
		Amount:       amount,
	}
}

// Validate performs basic validation on the LineItem
func (li *LineItem) Validate() error {
	if strings.TrimSpace(li.ID) == "" {
		return fmt.Errorf("line item ID cannot be empty")
	}

	if strings.TrimSpace(li.PropertyID) == "" {
		return fmt.Errorf("line item property ID cannot be empty")
	}

	if strings.TrimSpace(li.PeriodID) == "" {
		return fmt.Errorf("line item period ID cannot be empty")
	}

	if !li.DocumentType.IsValid() {
		return fmt.Errorf("invalid document type: %s", li.DocumentType)
	}

	if strings.TrimSpace(li.AccountID) == "" {
		return fmt.Errorf("line item account ID cannot be empty")
	}

	return nil
}

// String returns a string representation of the LineItem
func (li *LineItem) String() string {
	return fmt.Sprintf("LineItem{ID: %s, Doc: %s, Account: %s, Amount: %s}",
		li.ID, li.DocumentType, li.AccountID, li.Amount.String())
}

// MarshalJSON implements custom JSON marshaling for LineItem so the amount
// round-trips as a string without float precision loss
func (li *LineItem) MarshalJSON() ([]byte, error) {
	type Alias LineItem
	return json.Marshal(&struct {
		Amount string `json:"amount"`
		*Alias
	}{
		Amount: li.Amount.String(),
		Alias:  (*Alias)(li),
	})
}

// UnmarshalJSON implements custom JSON unmarshaling for LineItem
func (li *LineItem) UnmarshalJSON(data []byte) error {
	type Alias LineItem
	aux := &struct {
		Amount string `json:"amount"`
		*Alias
	}{
		Alias: (*Alias)(li),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	var err error
	li.Amount, err = decimal.NewFromString(aux.Amount)
	if err != nil {
		return fmt.Errorf("invalid amount format: %w", err)
	}

	return nil
}

// AccountKey returns the "doctype:account" key used by rule patterns
func (li *LineItem) AccountKey() string {
	return fmt.Sprintf("%s:%s", strings.ToLower(li.DocumentType.String()), li.AccountID)
}

// NormalizedAmount returns the amount rounded to a common currency scale of
// two decimal places, so amounts extracted at different precisions compare
// byte-identically
func (li *LineItem) NormalizedAmount() decimal.Decimal {
	return li.Amount.Round(2)
}

// ParseDecimalFromString parses a decimal value from string, tolerating
// currency symbols and thousand separators found in extracted documents
func ParseDecimalFromString(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("amount string cannot be empty")
	}

	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, ",", "")

	// Accounting notation: (1234.56) means -1234.56
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		s = "-" + strings.TrimSuffix(strings.TrimPrefix(s, "("), ")")
	}

	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal format '%s': %w", s, err)
	}

	return d, nil
}
