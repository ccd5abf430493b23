// Package questions loads and serves the read-only question bank.
//
// The bank is a single JSON document read once at startup. A missing or
// malformed document must never take the service down: Load falls back to a
// built-in placeholder record and reports the underlying problem as a
// wrapped ErrConfig so the caller can log it.
package questions

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"

	"github.com/rs/zerolog/log"
)

var (
	// ErrConfig reports a missing or malformed question document.
	ErrConfig = errors.New("question bank config error")
	// ErrEmptyBank reports that no questions are available at all.
	ErrEmptyBank = errors.New("question bank is empty")
)

// Kind distinguishes plain-text questions from image questions.
type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
)

const optionCount = 4

// Record is one immutable question. CorrectOption is always a member of
// Options; the loader enforces this.
type Record struct {
	Kind          Kind     `json:"kind"`
	Hint          string   `json:"hint"`
	Prompt        string   `json:"prompt"`
	ImageRef      string   `json:"imageRef,omitempty"`
	Options       []string `json:"options"`
	CorrectOption string   `json:"correctOption"`
}

// WrongOptions returns the options that are not the correct one.
func (r Record) WrongOptions() []string {
	wrong := make([]string, 0, len(r.Options)-1)
	for _, o := range r.Options {
		if o != r.CorrectOption {
			wrong = append(wrong, o)
		}
	}
	return wrong
}

func (r Record) validate(i int) error {
	if r.Prompt == "" {
		return fmt.Errorf("record %d: empty prompt", i)
	}
	if r.Kind != KindText && r.Kind != KindImage {
		return fmt.Errorf("record %d: unknown kind %q", i, r.Kind)
	}
	if len(r.Options) != optionCount {
		return fmt.Errorf("record %d: expected %d options, got %d", i, optionCount, len(r.Options))
	}
	seen := make(map[string]bool, optionCount)
	correctFound := false
	for _, o := range r.Options {
		if seen[o] {
			return fmt.Errorf("record %d: duplicate option %q", i, o)
		}
		seen[o] = true
		if o == r.CorrectOption {
			correctFound = true
		}
	}
	if !correctFound {
		return fmt.Errorf("record %d: correct option %q not among options", i, r.CorrectOption)
	}
	return nil
}

// Bank is an immutable, ordered collection of question records. Safe for
// concurrent use once constructed.
type Bank struct {
	records []Record
}

// NewBank validates records and builds a bank from them.
func NewBank(records []Record) (*Bank, error) {
	for i, r := range records {
		if err := r.validate(i); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConfig, err)
		}
	}
	return &Bank{records: records}, nil
}

// Load reads the question document at path. On any failure it returns a bank
// holding only the placeholder record together with a wrapped ErrConfig; the
// returned bank is always usable.
func Load(path string) (*Bank, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("question document unreadable, using placeholder bank")
		return placeholderBank(), fmt.Errorf("%w: read %s: %v", ErrConfig, path, err)
	}

	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("question document malformed, using placeholder bank")
		return placeholderBank(), fmt.Errorf("%w: parse %s: %v", ErrConfig, path, err)
	}

	bank, err := NewBank(records)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("question document invalid, using placeholder bank")
		return placeholderBank(), err
	}
	if bank.Len() == 0 {
		log.Warn().Str("path", path).Msg("question document empty, using placeholder bank")
		return placeholderBank(), fmt.Errorf("%w: %s holds no records", ErrConfig, path)
	}

	log.Info().Str("path", path).Int("questions", bank.Len()).Msg("question bank loaded")
	return bank, nil
}

// Len returns the number of records in the bank.
func (b *Bank) Len() int {
	return len(b.records)
}

// Records returns the full bank in load order.
func (b *Bank) Records() []Record {
	return b.records
}

// Pick selects a record uniformly at random among those whose prompt is not
// in excluding. When the exclusion set covers the entire bank, Pick selects
// from the full bank instead and reports cycled=true so the caller can clear
// its exclusion set. ErrEmptyBank is returned only for an empty bank.
func (b *Bank) Pick(excluding map[string]bool) (Record, bool, error) {
	if len(b.records) == 0 {
		return Record{}, false, ErrEmptyBank
	}

	candidates := make([]Record, 0, len(b.records))
	for _, r := range b.records {
		if !excluding[r.Prompt] {
			candidates = append(candidates, r)
		}
	}

	cycled := false
	if len(candidates) == 0 {
		candidates = b.records
		cycled = true
	}

	return candidates[rand.IntN(len(candidates))], cycled, nil
}

func placeholderBank() *Bank {
	return &Bank{records: []Record{{
		Kind:          KindText,
		Hint:          "General knowledge",
		Prompt:        "How many minutes are there in one hour?",
		Options:       []string{"30", "60", "90", "120"},
		CorrectOption: "60",
	}}}
}
