package harness

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/roach88/swapchain/internal/barter"
	"github.com/roach88/swapchain/internal/directory"
)

// Fixture is the directory state a scenario starts from. The seed command
// loads the same format into a database.
//
//	users:
//	  - id: A
//	    balance: "1000"
//	    items:
//	      - {id: a-item, category: electronics, value: "1000"}
//	    wants:
//	      - {category: books, min: "900", max: "1000"}
type Fixture struct {
	Users []FixtureUser `yaml:"users"`
}

// FixtureUser is one participant with their items and wants.
type FixtureUser struct {
	ID      string        `yaml:"id"`
	Balance string        `yaml:"balance,omitempty"`
	Items   []FixtureItem `yaml:"items,omitempty"`
	Wants   []FixtureWant `yaml:"wants,omitempty"`
}

// FixtureItem is an item owned by the enclosing user. Items are eligible
// for barter unless Ineligible is set.
type FixtureItem struct {
	ID         string `yaml:"id"`
	Category   string `yaml:"category"`
	Value      string `yaml:"value"`
	Region     string `yaml:"region,omitempty"`
	Ineligible bool   `yaml:"ineligible,omitempty"`
}

// FixtureWant is a criteria of the enclosing user. Item names a specific
// item; otherwise Category and the value range apply.
type FixtureWant struct {
	Item     string `yaml:"item,omitempty"`
	Category string `yaml:"category,omitempty"`
	Min      string `yaml:"min,omitempty"`
	Max      string `yaml:"max,omitempty"`
	Region   string `yaml:"region,omitempty"`
}

// LoadFixture reads a fixture YAML file. Unknown fields are rejected.
func LoadFixture(path string) (Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Fixture{}, fmt.Errorf("failed to read fixture file: %w", err)
	}
	var f Fixture
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return Fixture{}, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := f.Validate(); err != nil {
		return Fixture{}, fmt.Errorf("invalid fixture: %w", err)
	}
	return f, nil
}

// Validate checks ids and that every amount parses.
func (f Fixture) Validate() error {
	users := make(map[string]bool, len(f.Users))
	items := make(map[string]bool)
	for i, u := range f.Users {
		if u.ID == "" {
			return fmt.Errorf("users[%d]: id is required", i)
		}
		if users[u.ID] {
			return fmt.Errorf("users[%d]: duplicate id %q", i, u.ID)
		}
		users[u.ID] = true
		if _, err := amount(u.Balance); err != nil {
			return fmt.Errorf("users[%d].balance: %w", i, err)
		}
		for j, it := range u.Items {
			if it.ID == "" {
				return fmt.Errorf("users[%d].items[%d]: id is required", i, j)
			}
			if items[it.ID] {
				return fmt.Errorf("users[%d].items[%d]: duplicate id %q", i, j, it.ID)
			}
			items[it.ID] = true
			if _, err := amount(it.Value); err != nil {
				return fmt.Errorf("users[%d].items[%d].value: %w", i, j, err)
			}
		}
		for j, w := range u.Wants {
			if w.Item == "" && w.Category == "" {
				return fmt.Errorf("users[%d].wants[%d]: item or category is required", i, j)
			}
			if _, err := amount(w.Min); err != nil {
				return fmt.Errorf("users[%d].wants[%d].min: %w", i, j, err)
			}
			if _, err := amount(w.Max); err != nil {
				return fmt.Errorf("users[%d].wants[%d].max: %w", i, j, err)
			}
		}
	}
	return nil
}

// amount parses a money string. Empty means zero.
func amount(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

// Items returns every fixture item as an AVAILABLE directory record.
func (f Fixture) Items() []barter.Item {
	var out []barter.Item
	for _, u := range f.Users {
		for _, it := range u.Items {
			v, _ := amount(it.Value)
			out = append(out, barter.Item{
				ID:             it.ID,
				OwnerID:        u.ID,
				CategoryID:     it.Category,
				EstimatedValue: v,
				Status:         barter.ItemAvailable,
				BarterEligible: !it.Ineligible,
				Region:         it.Region,
			})
		}
	}
	return out
}

// Wants returns every fixture criteria. Ids are left to the directory.
func (f Fixture) Wants() []barter.WantCriteria {
	var out []barter.WantCriteria
	for _, u := range f.Users {
		for _, w := range u.Wants {
			lo, _ := amount(w.Min)
			hi, _ := amount(w.Max)
			out = append(out, barter.WantCriteria{
				OwnerID:           u.ID,
				DesiredItemID:     w.Item,
				DesiredCategoryID: w.Category,
				MinValue:          lo,
				MaxValue:          hi,
				Region:            w.Region,
			})
		}
	}
	return out
}

// Balances returns the opening wallet balance of every user.
func (f Fixture) Balances() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(f.Users))
	for _, u := range f.Users {
		b, _ := amount(u.Balance)
		out[u.ID] = b
	}
	return out
}

// SeedMemory loads the fixture into an in-memory directory.
func (f Fixture) SeedMemory(m *directory.Memory) {
	for _, it := range f.Items() {
		m.PutItem(it)
	}
	for _, w := range f.Wants() {
		m.AddWant(w)
	}
	for user, bal := range f.Balances() {
		m.SetBalance(user, bal)
	}
}

// Seeder is a durable directory the fixture can be written to.
// *store.Store implements it.
type Seeder interface {
	PutItem(ctx context.Context, it barter.Item) error
	PutWant(ctx context.Context, w barter.WantCriteria) (barter.WantCriteria, error)
	SetBalance(ctx context.Context, account string, amount decimal.Decimal) error
}

// Seed writes the fixture through s. Balances are written in user order.
func (f Fixture) Seed(ctx context.Context, s Seeder) error {
	for _, it := range f.Items() {
		if err := s.PutItem(ctx, it); err != nil {
			return fmt.Errorf("put item %s: %w", it.ID, err)
		}
	}
	for _, w := range f.Wants() {
		if _, err := s.PutWant(ctx, w); err != nil {
			return fmt.Errorf("put want for %s: %w", w.OwnerID, err)
		}
	}
	bal := f.Balances()
	for _, u := range f.Users {
		if err := s.SetBalance(ctx, u.ID, bal[u.ID]); err != nil {
			return fmt.Errorf("set balance %s: %w", u.ID, err)
		}
	}
	return nil
}
