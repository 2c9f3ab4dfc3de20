package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueryRewriting(t *testing.T) {
	sqlite := &sqlProvider{}
	postgres := &sqlProvider{prefix: "rollbook.", dollar: true}

	query := `SELECT id FROM {{sessions}} WHERE date >= ? AND date <= ?`

	assert.Equal(t,
		`SELECT id FROM sessions WHERE date >= ? AND date <= ?`,
		sqlite.q(query))
	assert.Equal(t,
		`SELECT id FROM rollbook.sessions WHERE date >= $1 AND date <= $2`,
		postgres.q(query))
}

func TestEncodeDecodeStrings(t *testing.T) {
	assert.Equal(t, `["Mon","Wed"]`, encodeStrings([]string{"Mon", "Wed"}))
	assert.Equal(t, `[]`, encodeStrings(nil))
	assert.Equal(t, []string{"Mon", "Wed"}, decodeStrings(`["Mon","Wed"]`))
	assert.Equal(t, []string{}, decodeStrings(``))
	assert.Equal(t, []string{}, decodeStrings(`not json`))
	assert.Equal(t, []string{}, decodeStrings(`null`))
}
