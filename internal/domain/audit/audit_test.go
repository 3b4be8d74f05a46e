package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalOptional(t *testing.T) {
	raw, err := marshalOptional(nil)
	require.NoError(t, err)
	assert.Nil(t, raw)

	raw, err = marshalOptional(map[string]string{"from": "calculated", "to": "approved"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"from":"calculated","to":"approved"}`, string(raw))
}

func TestNoopLog(t *testing.T) {
	log := Noop()
	require.NoError(t, log.Record(context.Background(), Entry{Action: ActionRunCreate}))

	events, err := log.ListForEntity(context.Background(), "t1", "payroll_run", "r1", 10)
	require.NoError(t, err)
	assert.Empty(t, events)
}
