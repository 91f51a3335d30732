// Package extract turns free-form expense text into ledger records and
// produces spending analyses, using a generateContent endpoint with a
// structured JSON response schema.
package extract
