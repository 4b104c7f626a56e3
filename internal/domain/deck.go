package domain

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"math/rand"
)

// Category groups catalog cards by theme.
type Category string

const (
	CategoryCharacter Category = "character"
	CategoryAnimal    Category = "animal"
	CategoryNature    Category = "nature"
	CategoryObject    Category = "object"
	CategoryCelestial Category = "celestial"
)

// Card is an immutable catalog entry. Everything else references it by ID.
type Card struct {
	ID         int      `json:"id"`
	Name       string   `json:"name"`
	FlavorText string   `json:"flavorText"`
	Category   Category `json:"category"`
}

//go:embed catalog.json
var catalogJSON []byte

// Catalog is the fixed, ordered list of Lotería cards.
var Catalog = mustLoadCatalog(catalogJSON)

var catalogIndex = indexCatalog(Catalog)

func mustLoadCatalog(data []byte) []Card {
	var cards []Card
	if err := json.Unmarshal(data, &cards); err != nil {
		panic(fmt.Sprintf("domain: invalid card catalog: %v", err))
	}
	return cards
}

func indexCatalog(cards []Card) map[int]Card {
	idx := make(map[int]Card, len(cards))
	for _, c := range cards {
		idx[c.ID] = c
	}
	return idx
}

// CardByID returns the catalog card with the given id.
func CardByID(id int) (Card, bool) {
	c, ok := catalogIndex[id]
	return c, ok
}

// CatalogIDs returns a fresh slice with every catalog id in catalog order.
func CatalogIDs() []int {
	ids := make([]int, len(Catalog))
	for i, c := range Catalog {
		ids[i] = c.ID
	}
	return ids
}

// ShuffleDeck returns a uniformly shuffled copy of the given ids.
func ShuffleDeck(ids []int, rng *rand.Rand) []int {
	out := make([]int, len(ids))
	copy(out, ids)
	// rand.Shuffle is Fisher-Yates.
	rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

// DealBoard returns a board of distinct card ids drawn uniformly from the catalog.
func DealBoard(rng *rand.Rand) Board {
	ids := ShuffleDeck(CatalogIDs(), rng)
	var b Board
	for i := range b {
		b[i] = BoardCell{CardID: ids[i]}
	}
	return b
}
