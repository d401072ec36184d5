package competition

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistrationOpen(t *testing.T) {
	deadline := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	c := Competition{RegDeadline: deadline}

	assert.True(t, c.RegistrationOpen(deadline.Add(-time.Second)))
	assert.True(t, c.RegistrationOpen(deadline))
	assert.False(t, c.RegistrationOpen(deadline.Add(time.Nanosecond)))
}

func TestTagsRoundTrip(t *testing.T) {
	v, err := Tags{"chess", "rapid play"}.Value()
	require.NoError(t, err)
	assert.Equal(t, `{"chess","rapid play"}`, v)

	var got Tags
	require.NoError(t, got.Scan([]byte(`{chess,"rapid play"}`)))
	assert.Equal(t, Tags{"chess", "rapid play"}, got)
}
