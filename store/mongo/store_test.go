package mongo_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/circulate/id"
	"github.com/xraph/circulate/store"
	"github.com/xraph/circulate/store/mongo"
	"github.com/xraph/circulate/store/storetest"
)

// uriEnv names a replica set deployment; transactions need one.
const uriEnv = "CIRCULATE_MONGO_URI"

func TestStore(t *testing.T) {
	uri := os.Getenv(uriEnv)
	if uri == "" {
		t.Skipf("%s not set", uriEnv)
	}

	storetest.Run(t, func(t *testing.T) store.Store {
		t.Helper()
		ctx := context.Background()

		drv := mongodriver.New()
		suffix := id.NewEntryID().String()
		dbName := "circulate_test_" + suffix[len(suffix)-12:]
		require.NoError(t, drv.Open(ctx, uri, mongodriver.WithDatabase(dbName)))
		db, err := grove.Open(drv)
		require.NoError(t, err)

		s := mongo.New(db)
		t.Cleanup(func() {
			_ = drv.Database().Drop(context.Background())
			_ = s.Close()
		})
		require.NoError(t, s.Migrate(ctx))
		return s
	})
}
