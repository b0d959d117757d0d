package cart

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	product "github.com/betadomot/storefront/internal/products"
)

func prod(id string, stock int) product.Product {
	return product.Product{ID: id, Name: id, Price: 1000, Stock: stock}
}

func TestAddOrIncrementNeverDuplicatesLines(t *testing.T) {
	c := AddOrIncrement(Cart{}, prod("p1", 5), 1)
	c = AddOrIncrement(c, prod("p1", 5), 1)

	require.Len(t, c.Lines, 1)
	assert.Equal(t, 2, c.Lines[0].Quantity)
}

func TestAddOrIncrementClampsToStock(t *testing.T) {
	c := AddOrIncrement(Cart{}, prod("p1", 3), 10)
	assert.Equal(t, 3, c.Lines[0].Quantity)

	c = AddOrIncrement(c, prod("p1", 3), 1)
	assert.Equal(t, 3, c.Lines[0].Quantity)
}

func TestAddOrIncrementDefaultsToOne(t *testing.T) {
	c := AddOrIncrement(Cart{}, prod("p1", 3), 0)
	assert.Equal(t, 1, c.Lines[0].Quantity)
}

func TestAddOrIncrementRefreshesSnapshot(t *testing.T) {
	c := AddOrIncrement(Cart{}, prod("p1", 5), 4)
	restocked := prod("p1", 2)
	restocked.Price = 900

	c = AddOrIncrement(c, restocked, 1)
	assert.Equal(t, 2, c.Lines[0].Quantity)
	assert.EqualValues(t, 900, c.Lines[0].Product.Price)
}

func TestAddOrIncrementOutOfStockIsNoop(t *testing.T) {
	c := AddOrIncrement(Cart{}, prod("p1", 0), 1)
	assert.True(t, c.IsEmpty())
}

func TestAddOrIncrementKeepsInsertionOrder(t *testing.T) {
	c := AddOrIncrement(Cart{}, prod("a", 5), 1)
	c = AddOrIncrement(c, prod("b", 5), 1)
	c = AddOrIncrement(c, prod("a", 5), 1)

	assert.Equal(t, "a", c.Lines[0].Product.ID)
	assert.Equal(t, "b", c.Lines[1].Product.ID)
}

func TestUpdateQuantity(t *testing.T) {
	base := AddOrIncrement(Cart{}, prod("p1", 3), 2)

	assert.Equal(t, base, UpdateQuantity(base, "p1", 0))
	assert.Equal(t, base, UpdateQuantity(base, "p1", -4))
	assert.Equal(t, base, UpdateQuantity(base, "missing", 2))
	assert.Equal(t, 3, UpdateQuantity(base, "p1", 10).Lines[0].Quantity)
	assert.Equal(t, 1, UpdateQuantity(base, "p1", 1).Lines[0].Quantity)
	assert.Equal(t, 2, base.Lines[0].Quantity, "input cart must not be mutated")
}

func TestRemoveTwiceIsNoop(t *testing.T) {
	c := AddOrIncrement(Cart{}, prod("p1", 3), 1)
	c = AddOrIncrement(c, prod("p2", 3), 1)

	once := Remove(c, "p1")
	twice := Remove(once, "p1")

	assert.Equal(t, once, twice)
	require.Len(t, twice.Lines, 1)
	assert.Equal(t, "p2", twice.Lines[0].Product.ID)
}

func TestClear(t *testing.T) {
	assert.True(t, Clear().IsEmpty())
	assert.NotNil(t, Clear().Lines)
}

func TestRandomMutationsKeepInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	ids := []string{"a", "b", "c", "d"}
	c := Cart{}
	for i := 0; i < 2000; i++ {
		id := ids[rng.Intn(len(ids))]
		switch rng.Intn(3) {
		case 0:
			c = AddOrIncrement(c, prod(id, rng.Intn(6)), rng.Intn(8)-2)
		case 1:
			c = UpdateQuantity(c, id, rng.Intn(10)-3)
		case 2:
			c = Remove(c, id)
		}

		seen := map[string]bool{}
		for _, l := range c.Lines {
			require.False(t, seen[l.Product.ID], "duplicate line for %s", l.Product.ID)
			seen[l.Product.ID] = true
			require.GreaterOrEqual(t, l.Quantity, 1)
			require.LessOrEqual(t, l.Quantity, l.Product.Stock)
		}
	}
}
