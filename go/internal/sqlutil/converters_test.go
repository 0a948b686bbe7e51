package sqlutil

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSqlTimeRoundTrip(t *testing.T) {
	assert.False(t, ToSqlTime(nil).Valid)
	assert.Nil(t, FromSqlTime(sql.NullTime{}))

	local := time.Date(2026, 6, 1, 11, 0, 0, 0, time.FixedZone("CEST", 2*60*60))
	nt := ToSqlTime(&local)
	require.True(t, nt.Valid)
	assert.Equal(t, time.UTC, nt.Time.Location())

	back := FromSqlTime(nt)
	require.NotNil(t, back)
	assert.True(t, back.Equal(local))
	assert.Equal(t, 9, back.Hour())
}
