package batch

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"arbfee/internal/dataset"
)

func mustTable(t *testing.T, doc string) *dataset.Table {
	t.Helper()
	tbl, err := dataset.Read(strings.NewReader(doc))
	require.NoError(t, err)
	return tbl
}
