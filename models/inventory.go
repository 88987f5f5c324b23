package models

import (
	"errors"
	"fmt"
	"strings"
)

// EquipmentCount is one line of a slot's equipment inventory.
type EquipmentCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Inventory maps equipment names to unit counts. Names compare
// case-insensitively and a name appears at most once.
type Inventory []EquipmentCount

var ErrShortInventory = errors.New("not enough units of the requested equipment")

func (inv Inventory) Validate() error {
	seen := make(map[string]bool, len(inv))
	for _, e := range inv {
		key := strings.ToLower(strings.TrimSpace(e.Name))
		if key == "" {
			return errors.New("equipment name is required")
		}
		if e.Count < 0 {
			return fmt.Errorf("equipment %q has a negative count", e.Name)
		}
		if seen[key] {
			return fmt.Errorf("equipment %q is listed twice", e.Name)
		}
		seen[key] = true
	}
	return nil
}

func (inv Inventory) Total() int {
	total := 0
	for _, e := range inv {
		total += e.Count
	}
	return total
}

func (inv Inventory) Count(name string) int {
	if i := inv.index(name); i >= 0 {
		return inv[i].Count
	}
	return 0
}

// Take returns a copy with n units of name removed. The entry is dropped once
// it reaches zero.
func (inv Inventory) Take(name string, n int) (Inventory, error) {
	i := inv.index(name)
	if i < 0 || inv[i].Count < n {
		return nil, ErrShortInventory
	}
	out := make(Inventory, 0, len(inv))
	for j, e := range inv {
		if j == i {
			e.Count -= n
			if e.Count == 0 {
				continue
			}
		}
		out = append(out, e)
	}
	return out, nil
}

// Add returns a copy with n units of name added.
func (inv Inventory) Add(name string, n int) Inventory {
	out := make(Inventory, len(inv), len(inv)+1)
	copy(out, inv)
	if i := out.index(name); i >= 0 {
		out[i].Count += n
		return out
	}
	return append(out, EquipmentCount{Name: strings.TrimSpace(name), Count: n})
}

func (inv Inventory) index(name string) int {
	name = strings.TrimSpace(name)
	for i, e := range inv {
		if strings.EqualFold(strings.TrimSpace(e.Name), name) {
			return i
		}
	}
	return -1
}

// Canonical returns the stored spelling of name, or name itself when absent.
func (inv Inventory) Canonical(name string) string {
	if i := inv.index(name); i >= 0 {
		return inv[i].Name
	}
	return strings.TrimSpace(name)
}
