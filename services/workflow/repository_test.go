package workflow

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNodeExecutionsReadBackInAppendOrder(t *testing.T) {
	schema, err := os.ReadFile("../../db/schema.sql")
	require.NoError(t, err)
	require.Contains(t, string(schema), "seq          BIGSERIAL")

	query := strings.Join(strings.Fields(selectNodeExecutionsSQL), " ")
	require.True(t, strings.HasSuffix(query, "ORDER BY seq"), query)
	require.NotContains(t, query, "created_at, id")
}
