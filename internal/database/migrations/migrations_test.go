package migrations

import (
	"io/fs"
	"testing"

	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedSources(t *testing.T) {
	for _, s := range []Schema{Bidding, Auction} {
		src, err := iofs.New(sqlFS, "sql/"+string(s))
		require.NoError(t, err, s)

		first, err := src.First()
		require.NoError(t, err, s)
		assert.EqualValues(t, 1, first)
		require.NoError(t, src.Close())
	}
}

func TestAuctionSchemaHasFailedMessages(t *testing.T) {
	up, err := fs.ReadFile(sqlFS, "sql/auction/000002_create_failed_messages.up.sql")
	require.NoError(t, err)
	assert.Contains(t, string(up), "replayed_at")
}

func TestTablesDiffer(t *testing.T) {
	assert.NotEqual(t, Bidding.table(), Auction.table())
}
