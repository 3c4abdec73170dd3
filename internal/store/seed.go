package store

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"budgetly/internal/core"
)

// SeedFile lists starter categories, one per line as "name[,budget]".
// Blank lines and lines starting with # are ignored.
const SeedFile = "seed_categories.txt"

var defaultSeed = []seedLine{
	{name: "Groceries", budget: 400},
	{name: "Housing", budget: 1200},
	{name: "Transport", budget: 150},
}

type seedLine struct {
	name   string
	budget float64
}

// NewFromFiles returns a store where userID owns the categories listed in
// base/seed_categories.txt, or a small default set when the file is missing
// or empty. An empty userID yields an empty store.
//
// The store is always usable. Lines that could not be seeded are skipped
// and reported together in the returned error.
func NewFromFiles(base, userID string) (*Store, error) {
	s := New()
	if userID == "" {
		return s, nil
	}
	lines := readSeed(filepath.Join(base, SeedFile))
	if len(lines) == 0 {
		lines = defaultSeed
	}
	now := time.Now().UTC()
	var errs []error
	for _, l := range lines {
		err := s.Dispatch(CreateCategory{Category: core.Category{
			ID:        uuid.NewString(),
			UserID:    userID,
			Name:      l.name,
			Budget:    l.budget,
			CreatedAt: now,
		}})
		if err != nil {
			errs = append(errs, fmt.Errorf("seed category %q: %w", l.name, err))
		}
	}
	return s, errors.Join(errs...)
}

func readSeed(path string) []seedLine {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	seen := map[string]struct{}{}
	var out []seedLine
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		name, amount, _ := strings.Cut(line, ",")
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		budget, err := strconv.ParseFloat(strings.TrimSpace(amount), 64)
		if err != nil || budget < 0 {
			budget = 0
		}
		out = append(out, seedLine{name: name, budget: budget})
	}
	return out
}
