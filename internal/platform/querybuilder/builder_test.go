package querybuilder

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSelectBuilder(t *testing.T) {
	t.Run("BuildsWhereOrderAndLimit", func(t *testing.T) {
		sql, args, err := Select("id", "name").
			From("analysis").
			Where(Eq("event_id", "evt-1"), Eq("checksum", "abc")).
			OrderBy("finished_at DESC").
			Limit(1).
			ToSQL()
		require.NoError(t, err)
		require.Equal(t, "SELECT id, name FROM analysis WHERE event_id = $1 AND checksum = $2 ORDER BY finished_at DESC LIMIT 1", sql)
		require.Equal(t, []any{"evt-1", "abc"}, args)
	})

	t.Run("RequiresTable", func(t *testing.T) {
		_, _, err := Select("id").ToSQL()
		require.Error(t, err)
	})
}

func TestInsertBuilder(t *testing.T) {
	t.Run("NumbersPlaceholders", func(t *testing.T) {
		sql, args, err := InsertInto("logs").
			Columns("event", "kind").
			Values("groq_prompt", "info").
			Suffix("RETURNING id").
			ToSQL()
		require.NoError(t, err)
		require.Equal(t, "INSERT INTO logs (event, kind) VALUES ($1, $2) RETURNING id", sql)
		require.Equal(t, []any{"groq_prompt", "info"}, args)
	})

	t.Run("RejectsColumnValueMismatch", func(t *testing.T) {
		_, _, err := InsertInto("logs").Columns("event").Values("a", "b").ToSQL()
		require.Error(t, err)
	})
}
