package eventlog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-storefront/internal/database/dbtest"
	"ms-storefront/internal/models"
)

func TestAppendDefaultsActorToSystem(t *testing.T) {
	db := dbtest.New(t)
	ctx := context.Background()

	require.NoError(t, Append(ctx, db, Entry{
		Action:     ActionWarrantyExpired,
		EntityType: EntityWarrantyUnit,
		EntityID:   "unit-1",
		Metadata:   map[string]any{"code": "BH-250101-AAAAAA"},
	}))

	rows, err := List(ctx, db, Filter{EntityID: "unit-1"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, models.ActorSystem, rows[0].ActorID)
	assert.Equal(t, "BH-250101-AAAAAA", rows[0].Metadata["code"])
}

func TestListFiltersAndOrdersNewestFirst(t *testing.T) {
	db := dbtest.New(t)
	ctx := context.Background()

	require.NoError(t, Append(ctx, db, Entry{ActorID: "a", Action: ActionOrderPlaced, EntityType: EntityOrder, EntityID: "o1"}))
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, Append(ctx, db, Entry{ActorID: "a", Action: ActionOrderCancelled, EntityType: EntityOrder, EntityID: "o1"}))
	require.NoError(t, Append(ctx, db, Entry{ActorID: "b", Action: ActionReturnApproved, EntityType: EntityReturnRequest, EntityID: "r1"}))

	rows, err := List(ctx, db, Filter{EntityType: EntityOrder})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, ActionOrderCancelled, rows[0].Action)
	assert.Equal(t, ActionOrderPlaced, rows[1].Action)

	rows, err = List(ctx, db, Filter{Action: ActionReturnApproved})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "b", rows[0].ActorID)
}
